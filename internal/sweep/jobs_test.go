package sweep

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/forms"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/notify"
	"github.com/rajvveer/careOps/internal/store/memory"
)

type sentEmail struct {
	to      []string
	subject string
	body    string
}

type fakeEmail struct {
	sent []sentEmail
}

func (f *fakeEmail) Send(ctx context.Context, cfg models.EmailConfig, to []string, subject, body string) error {
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

type fixture struct {
	r       *Runner
	store   *memory.Store
	email   *fakeEmail
	ws      models.Workspace
	service models.ServiceType
	contact models.Contact
	nowAt   time.Time
}

// newFixture builds an active UTC workspace with a configured email channel,
// one owner, one service and one contact. The runner clock is pinned to
// 2025-06-02 07:00 UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ws := models.Workspace{Name: "Glow Studio", Timezone: "UTC", Active: true, DigestHour: 7}
	require.NoError(t, st.CreateWorkspace(ctx, &ws))
	require.NoError(t, st.CreateUser(ctx, &models.User{
		WorkspaceID: ws.ID, Email: "owner@glow.example", Role: models.RoleOwner,
	}))
	service := models.ServiceType{WorkspaceID: ws.ID, Name: "Consult", DurationMin: 30}
	require.NoError(t, st.CreateServiceType(ctx, &service))
	contact := models.Contact{WorkspaceID: ws.ID, Name: "Dana", Email: "dana@example.com"}
	require.NoError(t, st.CreateContact(ctx, &contact))

	email := &fakeEmail{}
	outbox := notify.NewOutbox(st, log, notify.Defaults{
		Email: models.EmailConfig{Host: "smtp.test", From: "noreply@glow.example"},
	})
	outbox.Email = email

	tokens := forms.NewTokens([]byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210fedcba9876543210"), "https://careops.example")
	formsSvc := forms.New(st, outbox, tokens, log)

	f := &fixture{
		r:       New(st, outbox, formsSvc, DefaultIntervals(), log),
		store:   st,
		email:   email,
		ws:      ws,
		service: service,
		contact: contact,
		nowAt:   time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC),
	}
	f.r.now = func() time.Time { return f.nowAt }
	return f
}

func (f *fixture) addBooking(t *testing.T, start time.Time) models.Booking {
	t.Helper()
	b := models.Booking{
		WorkspaceID: f.ws.ID, ContactID: f.contact.ID, ServiceTypeID: f.service.ID,
		StartTime: start, EndTime: start.Add(30 * time.Minute), Status: models.BookingConfirmed,
	}
	require.NoError(t, f.store.CreateBooking(context.Background(), &b))
	return b
}

func (f *fixture) logsFor(t *testing.T, event string) []models.AutomationLog {
	t.Helper()
	logs, err := f.store.ListAutomationLogs(context.Background(), f.ws.ID)
	require.NoError(t, err)
	var out []models.AutomationLog
	for _, l := range logs {
		if l.Event == event {
			out = append(out, l)
		}
	}
	return out
}

func TestRemindersSendOncePerWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addBooking(t, f.nowAt.Add(2*time.Hour))

	require.NoError(t, f.r.SweepReminders(ctx))
	require.Len(t, f.email.sent, 1)
	require.Contains(t, f.email.sent[0].subject, "Reminder")
	require.Contains(t, f.email.sent[0].body, "Consult")

	// The hourly cadence re-runs within the guard window: no second send.
	f.nowAt = f.nowAt.Add(time.Hour)
	require.NoError(t, f.r.SweepReminders(ctx))
	require.Len(t, f.email.sent, 1)

	logs := f.logsFor(t, core.EventBookingReminder)
	require.Len(t, logs, 1)
	require.Equal(t, models.LogSuccess, logs[0].Status)
	require.NotNil(t, logs[0].ContactID)
	require.Equal(t, f.contact.ID, *logs[0].ContactID)

	conv, err := f.store.GetOrCreateConversation(ctx, f.ws.ID, f.contact.ID)
	require.NoError(t, err)
	msgs, err := f.store.ListMessages(ctx, f.ws.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, models.ChannelSystem, msgs[0].Channel)
}

func TestRemindersSkipPausedConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addBooking(t, f.nowAt.Add(2*time.Hour))

	conv, err := f.store.GetOrCreateConversation(ctx, f.ws.ID, f.contact.ID)
	require.NoError(t, err)
	conv.AutomationPaused = true
	require.NoError(t, f.store.UpdateConversation(ctx, &conv))

	require.NoError(t, f.r.SweepReminders(ctx))
	require.Empty(t, f.email.sent)
	require.Empty(t, f.logsFor(t, core.EventBookingReminder))
}

func TestRemindersIgnoreDistantAndCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addBooking(t, f.nowAt.Add(48*time.Hour))
	cancelled := f.addBooking(t, f.nowAt.Add(3*time.Hour))
	require.NoError(t, f.store.UpdateBookingStatus(ctx, f.ws.ID, cancelled.ID, models.BookingCancelled))

	require.NoError(t, f.r.SweepReminders(ctx))
	require.Empty(t, f.email.sent)
}

func TestRemindersSkipInactiveWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addBooking(t, f.nowAt.Add(2*time.Hour))

	f.ws.Active = false
	require.NoError(t, f.store.UpdateWorkspace(ctx, &f.ws))

	require.NoError(t, f.r.SweepReminders(ctx))
	require.Empty(t, f.email.sent)
}

func newSubmission(t *testing.T, f *fixture, due time.Time) models.FormSubmission {
	t.Helper()
	ctx := context.Background()
	tpl := models.FormTemplate{
		WorkspaceID: f.ws.ID, ServiceTypeID: &f.service.ID, Name: "Intake",
		Fields: []models.FormField{{Key: "allergies", Label: "Allergies"}},
	}
	require.NoError(t, f.store.CreateFormTemplate(ctx, &tpl))
	sub := models.FormSubmission{
		WorkspaceID: f.ws.ID, FormTemplateID: tpl.ID, ContactID: f.contact.ID,
		Status: models.FormPending, DueDate: due,
	}
	require.NoError(t, f.store.CreateFormSubmission(ctx, &sub))
	return sub
}

func TestOverdueFormsTransitionOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := newSubmission(t, f, f.nowAt.Add(-time.Hour))

	require.NoError(t, f.r.SweepOverdueForms(ctx))

	got, err := f.store.GetFormSubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, models.FormOverdue, got.Status)

	require.Len(t, f.email.sent, 1)
	require.Equal(t, []string{"dana@example.com"}, f.email.sent[0].to)
	require.Contains(t, f.email.sent[0].body, "/f/", "chase email carries the completion link")

	alerts, err := f.store.ListAlerts(ctx, f.ws.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, models.AlertFormOverdue, alerts[0].Type)

	// Re-running finds nothing PENDING: the transition is the guard.
	require.NoError(t, f.r.SweepOverdueForms(ctx))
	require.Len(t, f.email.sent, 1)
	alerts, err = f.store.ListAlerts(ctx, f.ws.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestOverdueFormsLeaveFutureDueAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := newSubmission(t, f, f.nowAt.Add(time.Hour))

	require.NoError(t, f.r.SweepOverdueForms(ctx))

	got, err := f.store.GetFormSubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, models.FormPending, got.Status)
	require.Empty(t, f.email.sent)
}

func TestLowInventoryAlertsOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	low := models.InventoryItem{WorkspaceID: f.ws.ID, Name: "Massage oil", Quantity: 3, Threshold: 5, Unit: "bottle"}
	require.NoError(t, f.store.CreateInventoryItem(ctx, &low))
	fine := models.InventoryItem{WorkspaceID: f.ws.ID, Name: "Towels", Quantity: 40, Threshold: 10, Unit: "piece"}
	require.NoError(t, f.store.CreateInventoryItem(ctx, &fine))

	require.NoError(t, f.r.SweepLowInventory(ctx))
	require.NoError(t, f.r.SweepLowInventory(ctx))

	alerts, err := f.store.ListAlerts(ctx, f.ws.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "same-day re-runs create exactly one alert")
	require.Equal(t, models.AlertLowInventory, alerts[0].Type)
	require.Contains(t, alerts[0].Message, "Massage oil")

	// Next day it fires again.
	f.nowAt = f.nowAt.AddDate(0, 0, 1)
	require.NoError(t, f.r.SweepLowInventory(ctx))
	alerts, err = f.store.ListAlerts(ctx, f.ws.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
}

func TestDigestFiresAtLocalHourOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addBooking(t, f.nowAt.Add(2*time.Hour))

	require.NoError(t, f.r.SweepDigests(ctx))
	require.Len(t, f.email.sent, 1)
	require.Equal(t, []string{"owner@glow.example"}, f.email.sent[0].to)
	require.Contains(t, f.email.sent[0].subject, "1 booking")
	require.Contains(t, f.email.sent[0].body, "Consult with Dana")

	// Later ticks within the same day hit the guard.
	require.NoError(t, f.r.SweepDigests(ctx))
	require.Len(t, f.email.sent, 1)
	require.Len(t, f.logsFor(t, core.EventDailySummary), 1)
}

func TestDigestSkipsWrongHourAndEmptyDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Right hour, no bookings today: nothing goes out and nothing is
	// logged, so a booking made later today still gets a digest.
	require.NoError(t, f.r.SweepDigests(ctx))
	require.Empty(t, f.email.sent)
	require.Empty(t, f.logsFor(t, core.EventDailySummary))

	// Booking exists but it is not the digest hour.
	f.addBooking(t, f.nowAt.Add(2*time.Hour))
	f.nowAt = f.nowAt.Add(time.Hour) // 08:00, digest hour is 7
	require.NoError(t, f.r.SweepDigests(ctx))
	require.Empty(t, f.email.sent)
}

func TestDigestUsesWorkspaceLocalHour(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A New York workspace at 18:00 local is 22:00/23:00 UTC; pin the clock
	// so local hour matches its digest hour.
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ny := models.Workspace{Name: "East Side", Timezone: "America/New_York", Active: true, DigestHour: 18}
	require.NoError(t, f.store.CreateWorkspace(ctx, &ny))
	require.NoError(t, f.store.CreateUser(ctx, &models.User{WorkspaceID: ny.ID, Email: "ny@glow.example", Role: models.RoleOwner}))
	service := models.ServiceType{WorkspaceID: ny.ID, Name: "Facial", DurationMin: 60}
	require.NoError(t, f.store.CreateServiceType(ctx, &service))
	contact := models.Contact{WorkspaceID: ny.ID, Name: "Lee", Email: "lee@example.com"}
	require.NoError(t, f.store.CreateContact(ctx, &contact))

	local := time.Date(2025, 6, 2, 18, 30, 0, 0, loc)
	b := models.Booking{
		WorkspaceID: ny.ID, ContactID: contact.ID, ServiceTypeID: service.ID,
		StartTime: time.Date(2025, 6, 2, 10, 0, 0, 0, loc), EndTime: time.Date(2025, 6, 2, 11, 0, 0, 0, loc),
		Status: models.BookingConfirmed,
	}
	require.NoError(t, f.store.CreateBooking(ctx, &b))

	f.nowAt = local.UTC()
	require.NoError(t, f.r.SweepDigests(ctx))

	require.Len(t, f.email.sent, 1)
	require.Equal(t, []string{"ny@glow.example"}, f.email.sent[0].to)
	require.Contains(t, f.email.sent[0].body, "10:00 - Facial with Lee")
}
