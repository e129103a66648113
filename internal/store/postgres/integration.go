package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
)

// UpsertIntegration keeps one row per (workspace, kind) for every kind but
// WEBHOOK, which may have any number of receivers. Config payloads are
// encrypted before insert.
func (s *Store) UpsertIntegration(ctx context.Context, i *models.Integration) error {
	enc, err := s.encodeConfig(i)
	if err != nil {
		return err
	}
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Kind == models.IntegrationWebhook {
		return s.q.QueryRow(ctx, `
INSERT INTO integrations(id, workspace_id, kind, active, config_enc)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET active = EXCLUDED.active, config_enc = EXCLUDED.config_enc, updated_at = now()
RETURNING created_at, updated_at`,
			i.ID, i.WorkspaceID, i.Kind, i.Active, enc,
		).Scan(&i.CreatedAt, &i.UpdatedAt)
	}
	return s.q.QueryRow(ctx, `
INSERT INTO integrations(id, workspace_id, kind, active, config_enc)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (workspace_id, kind) WHERE kind <> 'WEBHOOK' DO UPDATE
SET active = EXCLUDED.active, config_enc = EXCLUDED.config_enc, updated_at = now()
RETURNING id, created_at, updated_at`,
		i.ID, i.WorkspaceID, i.Kind, i.Active, enc,
	).Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
}

func (s *Store) ListActiveIntegrations(ctx context.Context, workspaceID uuid.UUID, kind models.IntegrationKind) ([]models.Integration, error) {
	rows, err := s.q.Query(ctx, `
SELECT id, workspace_id, kind, active, config_enc, created_at, updated_at
FROM integrations
WHERE workspace_id = $1 AND kind = $2 AND active
ORDER BY created_at`, workspaceID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Integration
	for rows.Next() {
		var i models.Integration
		var enc string
		if err := rows.Scan(&i.ID, &i.WorkspaceID, &i.Kind, &i.Active, &enc, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		if err := s.decodeConfig(&i, enc); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) GetActiveIntegration(ctx context.Context, workspaceID uuid.UUID, kind models.IntegrationKind) (models.Integration, error) {
	var i models.Integration
	var enc string
	err := s.q.QueryRow(ctx, `
SELECT id, workspace_id, kind, active, config_enc, created_at, updated_at
FROM integrations
WHERE workspace_id = $1 AND kind = $2 AND active
ORDER BY created_at
LIMIT 1`, workspaceID, kind).Scan(&i.ID, &i.WorkspaceID, &i.Kind, &i.Active, &enc, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return models.Integration{}, notFound(err, "%s integration", kind)
	}
	if err := s.decodeConfig(&i, enc); err != nil {
		return models.Integration{}, err
	}
	return i, nil
}

func (s *Store) encodeConfig(i *models.Integration) (string, error) {
	var v any
	switch i.Kind {
	case models.IntegrationEmail:
		v = i.Email
	case models.IntegrationWhatsApp:
		v = i.WhatsApp
	case models.IntegrationWebhook:
		v = i.Webhook
	case models.IntegrationCalendar:
		v = i.Calendar
	case models.IntegrationTextGen:
		v = i.TextGen
	default:
		return "", core.Validationf("unknown integration kind %q", i.Kind)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return s.box.EncryptToString(string(raw))
}

func (s *Store) decodeConfig(i *models.Integration, enc string) error {
	raw, err := s.box.DecryptString(enc)
	if err != nil {
		return fmt.Errorf("decrypt %s integration config: %w", i.Kind, err)
	}
	if raw == "null" {
		return nil
	}
	switch i.Kind {
	case models.IntegrationEmail:
		i.Email = &models.EmailConfig{}
		return json.Unmarshal([]byte(raw), i.Email)
	case models.IntegrationWhatsApp:
		i.WhatsApp = &models.WhatsAppConfig{}
		return json.Unmarshal([]byte(raw), i.WhatsApp)
	case models.IntegrationWebhook:
		i.Webhook = &models.WebhookConfig{}
		return json.Unmarshal([]byte(raw), i.Webhook)
	case models.IntegrationCalendar:
		i.Calendar = &models.CalendarConfig{}
		return json.Unmarshal([]byte(raw), i.Calendar)
	case models.IntegrationTextGen:
		i.TextGen = &models.TextGenConfig{}
		return json.Unmarshal([]byte(raw), i.TextGen)
	}
	return core.Validationf("unknown integration kind %q", i.Kind)
}
