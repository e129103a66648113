// Package automation is the named-event dispatch table behind every core
// state change: contact.created, booking.created, staff.replied and
// inventory.low. Handlers run a sequence of independent side effects, capture
// failures per effect, and record one AutomationLog row for the handler
// outcome; webhook attempts are logged separately per receiver. Nothing a
// handler does can fail the state change that triggered it.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/forms"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/notify"
	"github.com/rajvveer/careOps/internal/store"
)

// dispatchTimeout bounds one detached handler run. Individual deliveries
// carry their own shorter timeouts; this is the backstop.
const dispatchTimeout = time.Minute

type Dispatcher struct {
	store  store.Store
	outbox *notify.Outbox
	forms  *forms.Service
	log    *slog.Logger
	now    func() time.Time
	hc     *http.Client

	wg sync.WaitGroup
}

func New(st store.Store, outbox *notify.Outbox, formsSvc *forms.Service, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		store:  st,
		outbox: outbox,
		forms:  formsSvc,
		log:    log.With(slog.String("component", "automation")),
		now:    time.Now,
		hc:     &http.Client{Timeout: webhookTimeout},
	}
}

// Go runs the handler detached from the caller. Public endpoints use this so
// a slow or failing side effect never shows up in the HTTP response; the
// outcome is only visible in logs and the AutomationLog trail.
func (d *Dispatcher) Go(evt Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		d.Dispatch(ctx, evt)
	}()
}

// Close waits for detached handlers to drain.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

// Dispatch runs the handler for evt synchronously. Handler failures never
// propagate; they land in the AutomationLog row and the process log.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) {
	ws, err := d.store.GetWorkspace(ctx, evt.WorkspaceID)
	if err != nil {
		d.log.Error("dispatch: load workspace", slog.String("event", evt.Name), slog.Any("error", err))
		return
	}

	var (
		res     result
		contact *uuid.UUID
	)
	switch evt.Name {
	case core.EventContactCreated:
		if !ws.Active {
			return
		}
		contact = &evt.Contact.ID
		d.onContactCreated(ctx, ws, evt, &res)
	case core.EventBookingCreated:
		if !ws.Active {
			return
		}
		contact = &evt.Contact.ID
		d.onBookingCreated(ctx, ws, evt, &res)
	case core.EventStaffReplied:
		contact = &evt.Conversation.ContactID
		d.onStaffReplied(ctx, evt, &res)
	case core.EventInventoryLow:
		d.onInventoryLow(ctx, ws, evt, &res)
	default:
		d.log.Error("dispatch: unknown event", slog.String("event", evt.Name))
		return
	}

	row := models.AutomationLog{
		WorkspaceID: evt.WorkspaceID,
		Event:       evt.Name,
		Action:      "handler",
		ContactID:   contact,
		Status:      models.LogSuccess,
	}
	if failed := res.details(); failed != "" {
		row.Status = models.LogFailed
		row.Details = failed
		d.log.Warn("handler finished with failures", slog.String("event", evt.Name), slog.String("details", failed))
	}
	if err := d.store.AppendAutomationLog(ctx, &row); err != nil {
		d.log.Error("append handler log", slog.String("event", evt.Name), slog.Any("error", err))
	}
}

func (d *Dispatcher) onContactCreated(ctx context.Context, ws models.Workspace, evt Event, res *result) {
	contact := *evt.Contact

	// The welcome goes out only while automation is unpaused; a staff member
	// already in the thread owns the conversation.
	if !evt.Conversation.AutomationPaused {
		body := d.outbox.WelcomeMessage(ctx, ws, contact)
		res.step("welcome message", d.appendSystemMessage(ctx, evt, body))
		res.step("welcome delivery", d.deliver(ctx, ws, contact, "Welcome to "+ws.Name, body))
	}

	res.step("team email", d.notifyTeam(ctx, ws.ID,
		fmt.Sprintf("New lead: %s", contact.Name),
		fmt.Sprintf("%s just reached out.\n\nEmail: %s\nPhone: %s\nSource: %s\n", contact.Name, orDash(contact.Email), orDash(contact.Phone), contact.Source)))

	res.step("alert", d.store.CreateAlert(ctx, &models.Alert{
		WorkspaceID: ws.ID,
		Type:        models.AlertNewLead,
		Message:     fmt.Sprintf("New lead: %s", contact.Name),
		Link:        "/contacts/" + contact.ID.String(),
	}))

	d.fanOut(ctx, ws, evt, res)
}

func (d *Dispatcher) onBookingCreated(ctx context.Context, ws models.Workspace, evt Event, res *result) {
	contact := *evt.Contact
	b := *evt.Booking
	service := *evt.ServiceType

	start := formatLocal(ws, b.StartTime)
	subject, body, err := notify.Render("booking_confirmation", map[string]any{
		"Name":      contact.Name,
		"Service":   service.Name,
		"Workspace": ws.Name,
		"Start":     start,
	})
	if err != nil {
		res.step("confirmation message", err)
	} else {
		if service.Location != "" {
			body += "\nLocation: " + service.Location
		}
		// Confirmation is independent of the conversation pause state; the
		// contact explicitly asked for this booking.
		res.step("confirmation message", d.appendSystemMessage(ctx, evt, body))
		res.step("confirmation delivery", d.deliver(ctx, ws, contact, subject, body))
	}

	res.step("team email", d.notifyTeam(ctx, ws.ID,
		fmt.Sprintf("New booking: %s on %s", service.Name, start),
		fmt.Sprintf("%s booked %s for %s.\n\nEmail: %s\nPhone: %s\nNotes: %s\n",
			contact.Name, service.Name, start, orDash(contact.Email), orDash(contact.Phone), orDash(b.Notes))))

	d.assignForms(ctx, ws, b, contact, res)

	res.step("alert", d.store.CreateAlert(ctx, &models.Alert{
		WorkspaceID: ws.ID,
		Type:        models.AlertNewBooking,
		Message:     fmt.Sprintf("%s booked %s for %s", contact.Name, service.Name, start),
		Link:        "/bookings/" + b.ID.String(),
	}))

	// Calendar sync degrades to a warning; a busy Google API never fails the
	// booking flow.
	if err := d.outbox.SyncBooking(ctx, ws, b, service, contact); err != nil && !errors.Is(err, notify.ErrNotConfigured) {
		d.log.Warn("calendar sync", slog.String("booking", b.ID.String()), slog.Any("error", err))
	}

	d.fanOut(ctx, ws, evt, res)
}

func (d *Dispatcher) assignForms(ctx context.Context, ws models.Workspace, b models.Booking, contact models.Contact, res *result) {
	assignments, err := d.forms.AssignForBooking(ctx, b)
	res.step("assign forms", err)

	if contact.Email == "" && len(assignments) > 0 {
		d.log.Info("form links not emailed: contact has no email", slog.String("contact", contact.ID.String()))
		return
	}
	for _, a := range assignments {
		subject, body, err := notify.Render("form_assigned", map[string]any{
			"Name":      contact.Name,
			"Workspace": ws.Name,
			"Form":      a.Template.Name,
			"Link":      a.URL,
		})
		if err == nil {
			err = d.sendEmail(ctx, ws.ID, []string{contact.Email}, subject, body)
		}
		res.step("form email "+a.Template.Name, err)
	}
}

func (d *Dispatcher) onStaffReplied(ctx context.Context, evt Event, res *result) {
	conv, err := d.store.GetConversation(ctx, evt.WorkspaceID, evt.Conversation.ID)
	if err != nil {
		res.fail("load conversation", err)
		return
	}
	if conv.AutomationPaused {
		return
	}
	conv.AutomationPaused = true
	res.step("pause automation", d.store.UpdateConversation(ctx, &conv))
}

func (d *Dispatcher) onInventoryLow(ctx context.Context, ws models.Workspace, evt Event, res *result) {
	item := *evt.Item

	alert := models.Alert{
		WorkspaceID: ws.ID,
		Type:        models.AlertLowInventory,
		Message:     fmt.Sprintf("Low stock: %s (%d %s left, threshold %d)", item.Name, item.Quantity, item.Unit, item.Threshold),
		Link:        "/inventory/" + item.ID.String(),
		DedupeKey:   InventoryDedupeKey(item.ID, d.now().In(ws.Location())),
	}
	if err := d.store.CreateAlert(ctx, &alert); err != nil && !core.IsConflict(err) {
		res.fail("alert", err)
	}

	res.step("team email", d.notifyTeam(ctx, ws.ID,
		fmt.Sprintf("Low stock: %s", item.Name),
		fmt.Sprintf("%s is down to %d %s (threshold %d). Time to reorder.\n", item.Name, item.Quantity, item.Unit, item.Threshold)))

	d.fanOut(ctx, ws, evt, res)
}

// InventoryDedupeKey is the structured alert guard shared by the dispatcher
// and the daily sweep: one LOW_INVENTORY alert per item per workspace-local
// day, no matter which path raises it first.
func InventoryDedupeKey(itemID uuid.UUID, localNow time.Time) string {
	return fmt.Sprintf("%s/%s/%s", models.AlertLowInventory, itemID, localNow.Format("2006-01-02"))
}

func (d *Dispatcher) appendSystemMessage(ctx context.Context, evt Event, content string) error {
	return d.store.AppendMessage(ctx, &models.Message{
		WorkspaceID:    evt.WorkspaceID,
		ConversationID: evt.Conversation.ID,
		Direction:      models.DirectionOutbound,
		Channel:        models.ChannelSystem,
		Content:        content,
		Meta:           map[string]string{"event": evt.Name},
	})
}

// deliver sends to the contact's preferred channel. An unconfigured channel
// is a logged no-op, not a handler failure.
func (d *Dispatcher) deliver(ctx context.Context, ws models.Workspace, contact models.Contact, subject, body string) error {
	ch, err := d.outbox.DeliverToContact(ctx, ws, contact, subject, body)
	if errors.Is(err, notify.ErrNotConfigured) {
		d.log.Info("delivery skipped: no channel", slog.String("contact", contact.ID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	d.log.Debug("delivered", slog.String("contact", contact.ID.String()), slog.String("channel", string(ch)))
	return nil
}

func (d *Dispatcher) notifyTeam(ctx context.Context, workspaceID uuid.UUID, subject, body string) error {
	users, err := d.store.ListUsers(ctx, workspaceID)
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
	return d.sendEmail(ctx, workspaceID, to, subject, body)
}

func (d *Dispatcher) sendEmail(ctx context.Context, workspaceID uuid.UUID, to []string, subject, body string) error {
	err := d.outbox.SendEmail(ctx, workspaceID, to, subject, body)
	if errors.Is(err, notify.ErrNotConfigured) {
		d.log.Info("email skipped: not configured", slog.String("workspace", workspaceID.String()))
		return nil
	}
	return err
}

func formatLocal(ws models.Workspace, t time.Time) string {
	return t.In(ws.Location()).Format("Mon, 2 Jan 2006 at 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// result collects per-side-effect failures within one handler run.
type result struct {
	errs []string
}

func (r *result) step(name string, err error) {
	if err != nil {
		r.fail(name, err)
	}
}

func (r *result) fail(name string, err error) {
	r.errs = append(r.errs, fmt.Sprintf("%s: %v", name, err))
}

func (r *result) details() string {
	return strings.Join(r.errs, "; ")
}
