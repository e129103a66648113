package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/db"
	"github.com/rajvveer/careOps/internal/models"
)

// CreateAlert returns core.ErrConflict when a keyed alert loses the insert
// race against another instance; the partial unique index on dedupe_key is
// the backstop behind HasAlertWithDedupeKey.
func (s *Store) CreateAlert(ctx context.Context, a *models.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := s.q.QueryRow(ctx, `
INSERT INTO alerts(id, workspace_id, type, message, link, is_read, dedupe_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`,
		a.ID, a.WorkspaceID, a.Type, a.Message, a.Link, a.Read, a.DedupeKey,
	).Scan(&a.CreatedAt)
	if db.IsUniqueViolation(err) {
		return core.Conflictf("alert %q already raised", a.DedupeKey)
	}
	return err
}

func (s *Store) HasAlertWithDedupeKey(ctx context.Context, workspaceID uuid.UUID, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	var exists bool
	err := s.q.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM alerts WHERE workspace_id = $1 AND dedupe_key = $2
)`, workspaceID, key).Scan(&exists)
	return exists, err
}

func (s *Store) ListAlerts(ctx context.Context, workspaceID uuid.UUID) ([]models.Alert, error) {
	rows, err := s.q.Query(ctx, `
SELECT id, workspace_id, type, message, link, is_read, dedupe_key, created_at
FROM alerts
WHERE workspace_id = $1
ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.Type, &a.Message, &a.Link, &a.Read, &a.DedupeKey, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) AppendAutomationLog(ctx context.Context, l *models.AutomationLog) error {
	if l.ID == "" {
		l.ID = ulid.Make().String()
	}
	return s.q.QueryRow(ctx, `
INSERT INTO automation_logs(id, workspace_id, event, action, contact_id, status, details)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`,
		l.ID, l.WorkspaceID, l.Event, l.Action, l.ContactID, l.Status, l.Details,
	).Scan(&l.CreatedAt)
}

func (s *Store) HasAutomationLogSince(ctx context.Context, workspaceID uuid.UUID, event string, contactID *uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM automation_logs
  WHERE workspace_id = $1 AND event = $2 AND created_at >= $3
    AND ($4::uuid IS NULL OR contact_id = $4)
)`, workspaceID, event, since, contactID).Scan(&exists)
	return exists, err
}

func (s *Store) ListAutomationLogs(ctx context.Context, workspaceID uuid.UUID) ([]models.AutomationLog, error) {
	rows, err := s.q.Query(ctx, `
SELECT id, workspace_id, event, action, contact_id, status, details, created_at
FROM automation_logs
WHERE workspace_id = $1
ORDER BY id`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AutomationLog
	for rows.Next() {
		var l models.AutomationLog
		if err := rows.Scan(&l.ID, &l.WorkspaceID, &l.Event, &l.Action, &l.ContactID, &l.Status, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
