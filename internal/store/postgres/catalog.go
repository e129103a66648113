package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/models"
)

const serviceTypeCols = "id, workspace_id, name, duration_min, price_cents, location, created_at, updated_at"

func scanServiceType(sc scanner) (models.ServiceType, error) {
	var st models.ServiceType
	err := sc.Scan(&st.ID, &st.WorkspaceID, &st.Name, &st.DurationMin, &st.PriceCents, &st.Location, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

func (s *Store) CreateServiceType(ctx context.Context, st *models.ServiceType) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	return s.q.QueryRow(ctx, `
INSERT INTO service_types(id, workspace_id, name, duration_min, price_cents, location)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`,
		st.ID, st.WorkspaceID, st.Name, st.DurationMin, st.PriceCents, st.Location,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
}

func (s *Store) GetServiceType(ctx context.Context, workspaceID, id uuid.UUID) (models.ServiceType, error) {
	st, err := scanServiceType(s.q.QueryRow(ctx, `
SELECT `+serviceTypeCols+` FROM service_types WHERE workspace_id = $1 AND id = $2`, workspaceID, id))
	if err != nil {
		return models.ServiceType{}, notFound(err, "service type %s", id)
	}
	return st, nil
}

func (s *Store) ListServiceTypes(ctx context.Context, workspaceID uuid.UUID) ([]models.ServiceType, error) {
	rows, err := s.q.Query(ctx, `
SELECT `+serviceTypeCols+` FROM service_types WHERE workspace_id = $1 ORDER BY created_at`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ServiceType
	for rows.Next() {
		st, err := scanServiceType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) CreateAvailability(ctx context.Context, a *models.Availability) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return s.q.QueryRow(ctx, `
INSERT INTO availability(id, workspace_id, service_type_id, weekday, start_time, end_time)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`,
		a.ID, a.WorkspaceID, a.ServiceTypeID, a.Weekday, a.StartTime, a.EndTime,
	).Scan(&a.CreatedAt)
}

// ListAvailability keeps insertion order via the seq column; slot expansion
// depends on it.
func (s *Store) ListAvailability(ctx context.Context, workspaceID, serviceTypeID uuid.UUID) ([]models.Availability, error) {
	return s.listAvailability(ctx, `
SELECT id, workspace_id, service_type_id, weekday, start_time, end_time, created_at
FROM availability
WHERE workspace_id = $1 AND service_type_id = $2
ORDER BY seq`, workspaceID, serviceTypeID)
}

func (s *Store) ListWorkspaceAvailability(ctx context.Context, workspaceID uuid.UUID) ([]models.Availability, error) {
	return s.listAvailability(ctx, `
SELECT id, workspace_id, service_type_id, weekday, start_time, end_time, created_at
FROM availability
WHERE workspace_id = $1
ORDER BY seq`, workspaceID)
}

func (s *Store) listAvailability(ctx context.Context, sql string, args ...any) ([]models.Availability, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Availability
	for rows.Next() {
		var a models.Availability
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.ServiceTypeID, &a.Weekday, &a.StartTime, &a.EndTime, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
