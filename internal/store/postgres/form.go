package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/models"
)

func (s *Store) CreateFormTemplate(ctx context.Context, t *models.FormTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	fields := t.Fields
	if fields == nil {
		fields = []models.FormField{}
	}
	return s.q.QueryRow(ctx, `
INSERT INTO form_templates(id, workspace_id, service_type_id, name, fields)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`,
		t.ID, t.WorkspaceID, t.ServiceTypeID, t.Name, fields,
	).Scan(&t.CreatedAt)
}

func (s *Store) GetFormTemplate(ctx context.Context, workspaceID, id uuid.UUID) (models.FormTemplate, error) {
	var t models.FormTemplate
	err := s.q.QueryRow(ctx, `
SELECT id, workspace_id, service_type_id, name, fields, created_at
FROM form_templates
WHERE workspace_id = $1 AND id = $2`, workspaceID, id).
		Scan(&t.ID, &t.WorkspaceID, &t.ServiceTypeID, &t.Name, &t.Fields, &t.CreatedAt)
	if err != nil {
		return models.FormTemplate{}, notFound(err, "form template %s", id)
	}
	return t, nil
}

func (s *Store) ListFormTemplatesForService(ctx context.Context, workspaceID, serviceTypeID uuid.UUID) ([]models.FormTemplate, error) {
	rows, err := s.q.Query(ctx, `
SELECT id, workspace_id, service_type_id, name, fields, created_at
FROM form_templates
WHERE workspace_id = $1 AND service_type_id = $2
ORDER BY created_at`, workspaceID, serviceTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FormTemplate
	for rows.Next() {
		var t models.FormTemplate
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.ServiceTypeID, &t.Name, &t.Fields, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const submissionCols = "id, workspace_id, form_template_id, contact_id, booking_id, status, due_date, answers, submitted_at, created_at"

func scanSubmission(sc scanner) (models.FormSubmission, error) {
	var sub models.FormSubmission
	err := sc.Scan(&sub.ID, &sub.WorkspaceID, &sub.FormTemplateID, &sub.ContactID, &sub.BookingID, &sub.Status, &sub.DueDate, &sub.Answers, &sub.SubmittedAt, &sub.CreatedAt)
	return sub, err
}

func (s *Store) CreateFormSubmission(ctx context.Context, sub *models.FormSubmission) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.Status == "" {
		sub.Status = models.FormPending
	}
	answers := sub.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	return s.q.QueryRow(ctx, `
INSERT INTO form_submissions(id, workspace_id, form_template_id, contact_id, booking_id, status, due_date, answers)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at`,
		sub.ID, sub.WorkspaceID, sub.FormTemplateID, sub.ContactID, sub.BookingID, sub.Status, sub.DueDate, answers,
	).Scan(&sub.CreatedAt)
}

func (s *Store) GetFormSubmission(ctx context.Context, id uuid.UUID) (models.FormSubmission, error) {
	sub, err := scanSubmission(s.q.QueryRow(ctx, `
SELECT `+submissionCols+` FROM form_submissions WHERE id = $1`, id))
	if err != nil {
		return models.FormSubmission{}, notFound(err, "form submission %s", id)
	}
	return sub, nil
}

func (s *Store) ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]models.FormSubmission, error) {
	rows, err := s.q.Query(ctx, `
SELECT `+submissionCols+` FROM form_submissions
WHERE status = 'PENDING' AND due_date < $1
ORDER BY due_date`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FormSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// MarkFormSubmissionOverdue is a conditional update; the WHERE clause makes
// the PENDING -> OVERDUE transition happen at most once no matter how many
// sweep runs see the row.
func (s *Store) MarkFormSubmissionOverdue(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.q.Exec(ctx, `
UPDATE form_submissions SET status = 'OVERDUE'
WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return false, s.submissionExists(ctx, id)
}

func (s *Store) CompleteFormSubmission(ctx context.Context, id uuid.UUID, answers map[string]string, submittedAt time.Time) (bool, error) {
	if answers == nil {
		answers = map[string]string{}
	}
	tag, err := s.q.Exec(ctx, `
UPDATE form_submissions SET status = 'COMPLETED', answers = $2, submitted_at = $3
WHERE id = $1 AND status <> 'COMPLETED'`, id, answers, submittedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return false, s.submissionExists(ctx, id)
}

func (s *Store) submissionExists(ctx context.Context, id uuid.UUID) error {
	var one int
	err := s.q.QueryRow(ctx, `SELECT 1 FROM form_submissions WHERE id = $1`, id).Scan(&one)
	return notFound(err, "form submission %s", id)
}
