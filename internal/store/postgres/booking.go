package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/db"
	"github.com/rajvveer/careOps/internal/models"
)

const bookingCols = "id, workspace_id, contact_id, service_type_id, start_time, end_time, status, notes, created_at, updated_at"

func scanBooking(sc scanner) (models.Booking, error) {
	var b models.Booking
	err := sc.Scan(&b.ID, &b.WorkspaceID, &b.ContactID, &b.ServiceTypeID, &b.StartTime, &b.EndTime, &b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// CreateBooking relies on the partial unique index over
// (service_type_id, start_time) for non-cancelled rows to turn a lost race
// into core.ErrConflict instead of a double booking.
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := s.q.QueryRow(ctx, `
INSERT INTO bookings(id, workspace_id, contact_id, service_type_id, start_time, end_time, status, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, updated_at`,
		b.ID, b.WorkspaceID, b.ContactID, b.ServiceTypeID, b.StartTime, b.EndTime, b.Status, b.Notes,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return core.Conflictf("slot %s already booked", b.StartTime.Format(time.RFC3339))
	}
	return err
}

func (s *Store) GetBooking(ctx context.Context, workspaceID, id uuid.UUID) (models.Booking, error) {
	b, err := scanBooking(s.q.QueryRow(ctx, `
SELECT `+bookingCols+` FROM bookings WHERE workspace_id = $1 AND id = $2`, workspaceID, id))
	if err != nil {
		return models.Booking{}, notFound(err, "booking %s", id)
	}
	return b, nil
}

func (s *Store) UpdateBookingStatus(ctx context.Context, workspaceID, id uuid.UUID, status models.BookingStatus) error {
	var updatedAt time.Time
	err := s.q.QueryRow(ctx, `
UPDATE bookings SET status = $3, updated_at = now()
WHERE workspace_id = $1 AND id = $2
RETURNING updated_at`, workspaceID, id, status).Scan(&updatedAt)
	return notFound(err, "booking %s", id)
}

func (s *Store) ListBookingsInRange(ctx context.Context, workspaceID, serviceTypeID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	rows, err := s.q.Query(ctx, `
SELECT `+bookingCols+` FROM bookings
WHERE workspace_id = $1 AND service_type_id = $2
  AND status <> 'CANCELLED'
  AND start_time < $4 AND end_time > $3
ORDER BY start_time`, workspaceID, serviceTypeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (s *Store) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	rows, err := s.q.Query(ctx, `
SELECT `+bookingCols+` FROM bookings
WHERE status = 'CONFIRMED' AND start_time >= $1 AND start_time < $2
ORDER BY start_time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
