package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/models"
)

const workspaceCols = "id, name, timezone, active, onboarding_step, digest_hour, created_at, updated_at"

func scanWorkspace(sc scanner) (models.Workspace, error) {
	var w models.Workspace
	err := sc.Scan(&w.ID, &w.Name, &w.Timezone, &w.Active, &w.OnboardingStep, &w.DigestHour, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *Store) CreateWorkspace(ctx context.Context, w *models.Workspace) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return s.q.QueryRow(ctx, `
INSERT INTO workspaces(id, name, timezone, active, onboarding_step, digest_hour)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`,
		w.ID, w.Name, w.Timezone, w.Active, w.OnboardingStep, w.DigestHour,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (s *Store) GetWorkspace(ctx context.Context, id uuid.UUID) (models.Workspace, error) {
	w, err := scanWorkspace(s.q.QueryRow(ctx, `
SELECT `+workspaceCols+` FROM workspaces WHERE id = $1`, id))
	if err != nil {
		return models.Workspace{}, notFound(err, "workspace %s", id)
	}
	return w, nil
}

func (s *Store) UpdateWorkspace(ctx context.Context, w *models.Workspace) error {
	err := s.q.QueryRow(ctx, `
UPDATE workspaces
SET name = $2, timezone = $3, active = $4, onboarding_step = $5, digest_hour = $6, updated_at = now()
WHERE id = $1
RETURNING updated_at`,
		w.ID, w.Name, w.Timezone, w.Active, w.OnboardingStep, w.DigestHour,
	).Scan(&w.UpdatedAt)
	return notFound(err, "workspace %s", w.ID)
}

func (s *Store) ListActiveWorkspaces(ctx context.Context) ([]models.Workspace, error) {
	rows, err := s.q.Query(ctx, `
SELECT `+workspaceCols+` FROM workspaces WHERE active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return s.q.QueryRow(ctx, `
INSERT INTO users(id, workspace_id, email, name, role, password_hash)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`,
		u.ID, u.WorkspaceID, u.Email, u.Name, u.Role, u.PasswordHash,
	).Scan(&u.CreatedAt)
}

func (s *Store) ListUsers(ctx context.Context, workspaceID uuid.UUID) ([]models.User, error) {
	rows, err := s.q.Query(ctx, `
SELECT id, workspace_id, email, name, role, password_hash, created_at
FROM users
WHERE workspace_id = $1
ORDER BY (role = 'OWNER') DESC, created_at`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.WorkspaceID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
