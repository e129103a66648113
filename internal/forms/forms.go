// Package forms owns the FormSubmission lifecycle: assignment when a booking
// is created, signed completion links, and the submit transition with its
// follow-up notifications.
package forms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/notify"
	"github.com/rajvveer/careOps/internal/store"
)

type Service struct {
	store  store.Store
	outbox *notify.Outbox
	tokens *Tokens
	log    *slog.Logger
	now    func() time.Time
}

func New(st store.Store, outbox *notify.Outbox, tokens *Tokens, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  st,
		outbox: outbox,
		tokens: tokens,
		log:    log.With(slog.String("component", "forms")),
		now:    time.Now,
	}
}

// Assignment is one submission spawned for a booking plus the link the
// contact completes it at.
type Assignment struct {
	Submission models.FormSubmission
	Template   models.FormTemplate
	URL        string
}

// AssignForBooking creates a PENDING submission, due at the booking start,
// for every form template linked to the booked service type. Failures on one
// template do not stop the others; the joined error reports what was skipped.
func (s *Service) AssignForBooking(ctx context.Context, b models.Booking) ([]Assignment, error) {
	templates, err := s.store.ListFormTemplatesForService(ctx, b.WorkspaceID, b.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	var (
		out  []Assignment
		errs []string
	)
	for _, tpl := range templates {
		sub := models.FormSubmission{
			WorkspaceID:    b.WorkspaceID,
			FormTemplateID: tpl.ID,
			ContactID:      b.ContactID,
			BookingID:      &b.ID,
			Status:         models.FormPending,
			DueDate:        b.StartTime,
		}
		if err := s.store.CreateFormSubmission(ctx, &sub); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", tpl.Name, err))
			continue
		}
		url, err := s.tokens.CompletionURL(sub.ID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", tpl.Name, err))
			continue
		}
		out = append(out, Assignment{Submission: sub, Template: tpl, URL: url})
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("assign forms: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

// CompletionURL re-signs the link for an existing submission; the overdue
// sweep uses it to re-send the same destination.
func (s *Service) CompletionURL(submissionID uuid.UUID) (string, error) {
	return s.tokens.CompletionURL(submissionID)
}

// Complete verifies a completion token, validates the answers against the
// template, and transitions the submission to COMPLETED. The follow-up
// notifications run synchronously but their failures only reach the
// AutomationLog, never the submitter.
func (s *Service) Complete(ctx context.Context, token string, answers map[string]string) (models.FormSubmission, error) {
	id, err := s.tokens.Decode(token)
	if err != nil {
		return models.FormSubmission{}, core.NotFoundf("unknown form link")
	}
	sub, err := s.store.GetFormSubmission(ctx, id)
	if err != nil {
		return models.FormSubmission{}, err
	}
	tpl, err := s.store.GetFormTemplate(ctx, sub.WorkspaceID, sub.FormTemplateID)
	if err != nil {
		return models.FormSubmission{}, err
	}

	cleaned, err := validateAnswers(tpl.Fields, answers)
	if err != nil {
		return models.FormSubmission{}, err
	}

	submittedAt := s.now().UTC()
	ok, err := s.store.CompleteFormSubmission(ctx, sub.ID, cleaned, submittedAt)
	if err != nil {
		return models.FormSubmission{}, err
	}
	if !ok {
		return models.FormSubmission{}, core.Conflictf("form already submitted")
	}
	sub.Status = models.FormCompleted
	sub.Answers = cleaned
	sub.SubmittedAt = &submittedAt

	s.afterComplete(ctx, sub, tpl)
	return sub, nil
}

// afterComplete raises the in-app alert, emails the team, and writes the
// audit row. Best effort throughout.
func (s *Service) afterComplete(ctx context.Context, sub models.FormSubmission, tpl models.FormTemplate) {
	contact, err := s.store.GetContact(ctx, sub.WorkspaceID, sub.ContactID)
	if err != nil {
		s.log.Error("load contact for completed form", slog.String("submission", sub.ID.String()), slog.Any("error", err))
		return
	}

	var problems []string
	alert := models.Alert{
		WorkspaceID: sub.WorkspaceID,
		Type:        models.AlertFormSubmitted,
		Message:     fmt.Sprintf("%s completed the %s form", contact.Name, tpl.Name),
		Link:        "/forms/" + sub.ID.String(),
	}
	if err := s.store.CreateAlert(ctx, &alert); err != nil {
		problems = append(problems, fmt.Sprintf("alert: %v", err))
	}

	if err := s.notifyTeam(ctx, sub, tpl, contact); err != nil {
		problems = append(problems, fmt.Sprintf("team email: %v", err))
	}

	logRow := models.AutomationLog{
		WorkspaceID: sub.WorkspaceID,
		Event:       core.EventFormSubmitted,
		Action:      "submission",
		ContactID:   &sub.ContactID,
		Status:      models.LogSuccess,
	}
	if len(problems) > 0 {
		logRow.Status = models.LogFailed
		logRow.Details = strings.Join(problems, "; ")
		s.log.Warn("form completion follow-up", slog.String("submission", sub.ID.String()), slog.String("details", logRow.Details))
	}
	if err := s.store.AppendAutomationLog(ctx, &logRow); err != nil {
		s.log.Error("append automation log", slog.Any("error", err))
	}
}

func (s *Service) notifyTeam(ctx context.Context, sub models.FormSubmission, tpl models.FormTemplate, contact models.Contact) error {
	users, err := s.store.ListUsers(ctx, sub.WorkspaceID)
	if err != nil {
		return err
	}
	to := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			to = append(to, u.Email)
		}
	}
	if len(to) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s completed the %s form.\n\n", contact.Name, tpl.Name)
	keys := make([]string, 0, len(sub.Answers))
	for k := range sub.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", fieldLabel(tpl.Fields, k), sub.Answers[k])
	}

	err = s.outbox.SendEmail(ctx, sub.WorkspaceID, to, fmt.Sprintf("Form submitted: %s", tpl.Name), b.String())
	if errors.Is(err, notify.ErrNotConfigured) {
		return nil
	}
	return err
}

// validateAnswers trims values, rejects keys the template does not define,
// and requires every required field to be present and non-empty.
func validateAnswers(fields []models.FormField, answers map[string]string) (map[string]string, error) {
	known := make(map[string]models.FormField, len(fields))
	for _, f := range fields {
		known[f.Key] = f
	}
	cleaned := make(map[string]string, len(answers))
	for k, v := range answers {
		if _, ok := known[k]; !ok {
			return nil, core.Validationf("unknown form field %q", k)
		}
		cleaned[k] = strings.TrimSpace(v)
	}
	for _, f := range fields {
		if f.Required && cleaned[f.Key] == "" {
			return nil, core.Validationf("field %q is required", f.Key)
		}
	}
	return cleaned, nil
}

func fieldLabel(fields []models.FormField, key string) string {
	for _, f := range fields {
		if f.Key == key {
			if f.Label != "" {
				return f.Label
			}
			break
		}
	}
	return key
}
