package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rajvveer/careOps/internal/automation"
	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/notify"
)

// reminderWindow is how far ahead the reminder sweep looks, and doubles as
// the AutomationLog lookback that keeps hourly runs from re-notifying.
const reminderWindow = 24 * time.Hour

// SweepReminders notifies contacts of CONFIRMED bookings starting within the
// next 24 hours. A booking is skipped when its conversation paused automation
// or when any booking.reminder log row for the contact exists inside the
// lookback window.
func (r *Runner) SweepReminders(ctx context.Context) error {
	now := r.now()
	bookings, err := r.store.ListConfirmedStartingBetween(ctx, now, now.Add(reminderWindow))
	if err != nil {
		return err
	}

	cache := workspaceCache{}
	for _, b := range bookings {
		if err := r.remind(ctx, cache, b, now); err != nil {
			r.log.Error("reminder", slog.String("booking", b.ID.String()), slog.Any("error", err))
		}
	}
	return nil
}

func (r *Runner) remind(ctx context.Context, cache workspaceCache, b models.Booking, now time.Time) error {
	ws, err := r.workspace(ctx, cache, b.WorkspaceID)
	if err != nil {
		return err
	}
	if !ws.Active {
		return nil
	}

	conv, err := r.store.GetOrCreateConversation(ctx, ws.ID, b.ContactID)
	if err != nil {
		return err
	}
	if conv.AutomationPaused {
		return nil
	}

	sent, err := r.store.HasAutomationLogSince(ctx, ws.ID, core.EventBookingReminder, &b.ContactID, now.Add(-reminderWindow))
	if err != nil {
		return err
	}
	if sent {
		return nil
	}

	contact, err := r.store.GetContact(ctx, ws.ID, b.ContactID)
	if err != nil {
		return err
	}
	service, err := r.store.GetServiceType(ctx, ws.ID, b.ServiceTypeID)
	if err != nil {
		return err
	}

	subject, body, err := notify.Render("booking_reminder", map[string]any{
		"Name":      contact.Name,
		"Service":   service.Name,
		"Workspace": ws.Name,
		"Start":     b.StartTime.In(ws.Location()).Format("Mon, 2 Jan 2006 at 15:04"),
	})
	if err != nil {
		return err
	}

	row := models.AutomationLog{
		WorkspaceID: ws.ID,
		Event:       core.EventBookingReminder,
		Action:      "sweep",
		ContactID:   &b.ContactID,
		Status:      models.LogSuccess,
	}
	_, dErr := r.outbox.DeliverToContact(ctx, ws, contact, subject, body)
	switch {
	case errors.Is(dErr, notify.ErrNotConfigured):
		row.Status = models.LogFailed
		row.Details = "no delivery channel configured"
	case dErr != nil:
		row.Status = models.LogFailed
		row.Details = dErr.Error()
	}

	if err := r.store.AppendMessage(ctx, &models.Message{
		WorkspaceID:    ws.ID,
		ConversationID: conv.ID,
		Direction:      models.DirectionOutbound,
		Channel:        models.ChannelSystem,
		Content:        body,
		Meta:           map[string]string{"event": core.EventBookingReminder},
	}); err != nil {
		return err
	}

	// The log row doubles as the de-dup guard, so it is written for failed
	// deliveries too; one attempt per contact per window, whatever the
	// outcome.
	return r.store.AppendAutomationLog(ctx, &row)
}

// SweepOverdueForms transitions PENDING submissions past their due date to
// OVERDUE. The conditional status update is the only guard this job needs:
// whoever wins the transition sends the chase email and raises the alert.
func (r *Runner) SweepOverdueForms(ctx context.Context) error {
	now := r.now()
	due, err := r.store.ListPendingDueBefore(ctx, now)
	if err != nil {
		return err
	}

	cache := workspaceCache{}
	for _, sub := range due {
		if err := r.chaseOverdueForm(ctx, cache, sub); err != nil {
			r.log.Error("overdue form", slog.String("submission", sub.ID.String()), slog.Any("error", err))
		}
	}
	return nil
}

func (r *Runner) chaseOverdueForm(ctx context.Context, cache workspaceCache, sub models.FormSubmission) error {
	moved, err := r.store.MarkFormSubmissionOverdue(ctx, sub.ID)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	ws, err := r.workspace(ctx, cache, sub.WorkspaceID)
	if err != nil {
		return err
	}
	if !ws.Active {
		return nil
	}

	contact, err := r.store.GetContact(ctx, ws.ID, sub.ContactID)
	if err != nil {
		return err
	}
	tpl, err := r.store.GetFormTemplate(ctx, ws.ID, sub.FormTemplateID)
	if err != nil {
		return err
	}

	row := models.AutomationLog{
		WorkspaceID: ws.ID,
		Event:       core.EventFormOverdue,
		Action:      "sweep",
		ContactID:   &sub.ContactID,
		Status:      models.LogSuccess,
	}

	if contact.Email != "" {
		link, err := r.forms.CompletionURL(sub.ID)
		if err != nil {
			return err
		}
		subject, body, err := notify.Render("form_overdue", map[string]any{
			"Name": contact.Name,
			"Form": tpl.Name,
			"Link": link,
		})
		if err != nil {
			return err
		}
		sendErr := r.outbox.SendEmail(ctx, ws.ID, []string{contact.Email}, subject, body)
		if sendErr != nil && !errors.Is(sendErr, notify.ErrNotConfigured) {
			row.Status = models.LogFailed
			row.Details = sendErr.Error()
		}
	}

	if err := r.store.CreateAlert(ctx, &models.Alert{
		WorkspaceID: ws.ID,
		Type:        models.AlertFormOverdue,
		Message:     fmt.Sprintf("%s has not completed the %s form", contact.Name, tpl.Name),
		Link:        "/forms/" + sub.ID.String(),
	}); err != nil {
		return err
	}

	return r.store.AppendAutomationLog(ctx, &row)
}

// SweepLowInventory raises at most one LOW_INVENTORY alert per item per
// workspace-local day. The structured dedupe key makes re-runs and the
// event-driven inventory.low handler converge on the same alert.
func (r *Runner) SweepLowInventory(ctx context.Context) error {
	items, err := r.store.ListLowStockItems(ctx)
	if err != nil {
		return err
	}

	cache := workspaceCache{}
	for _, item := range items {
		if err := r.lowStockAlert(ctx, cache, item); err != nil {
			r.log.Error("low inventory", slog.String("item", item.ID.String()), slog.Any("error", err))
		}
	}
	return nil
}

func (r *Runner) lowStockAlert(ctx context.Context, cache workspaceCache, item models.InventoryItem) error {
	ws, err := r.workspace(ctx, cache, item.WorkspaceID)
	if err != nil {
		return err
	}
	if !ws.Active {
		return nil
	}

	key := automation.InventoryDedupeKey(item.ID, r.now().In(ws.Location()))
	seen, err := r.store.HasAlertWithDedupeKey(ctx, ws.ID, key)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	err = r.store.CreateAlert(ctx, &models.Alert{
		WorkspaceID: ws.ID,
		Type:        models.AlertLowInventory,
		Message:     fmt.Sprintf("Low stock: %s (%d %s left, threshold %d)", item.Name, item.Quantity, item.Unit, item.Threshold),
		Link:        "/inventory/" + item.ID.String(),
		DedupeKey:   key,
	})
	if core.IsConflict(err) {
		// Another instance raised it between the check and the insert.
		return nil
	}
	if err != nil {
		return err
	}

	return r.store.AppendAutomationLog(ctx, &models.AutomationLog{
		WorkspaceID: ws.ID,
		Event:       core.EventInventoryLow,
		Action:      "sweep",
		Status:      models.LogSuccess,
		Details:     item.Name,
	})
}

// SweepDigests emails each active workspace a summary of today's confirmed
// bookings. It runs on every tick but fires only at the workspace-local
// digest hour, and the same-day log row keeps one digest per day.
func (r *Runner) SweepDigests(ctx context.Context) error {
	now := r.now()
	workspaces, err := r.store.ListActiveWorkspaces(ctx)
	if err != nil {
		return err
	}
	for _, ws := range workspaces {
		if err := r.digest(ctx, ws, now); err != nil {
			r.log.Error("digest", slog.String("workspace", ws.ID.String()), slog.Any("error", err))
		}
	}
	return nil
}

func (r *Runner) digest(ctx context.Context, ws models.Workspace, now time.Time) error {
	local := now.In(ws.Location())
	if local.Hour() != ws.DigestHour {
		return nil
	}
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, ws.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	done, err := r.store.HasAutomationLogSince(ctx, ws.ID, core.EventDailySummary, nil, dayStart)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	all, err := r.store.ListConfirmedStartingBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}
	var todays []models.Booking
	for _, b := range all {
		if b.WorkspaceID == ws.ID {
			todays = append(todays, b)
		}
	}
	if len(todays) == 0 {
		return nil
	}
	sort.Slice(todays, func(i, j int) bool { return todays[i].StartTime.Before(todays[j].StartTime) })

	lines := make([]string, 0, len(todays))
	for _, b := range todays {
		contact, err := r.store.GetContact(ctx, ws.ID, b.ContactID)
		if err != nil {
			return err
		}
		service, err := r.store.GetServiceType(ctx, ws.ID, b.ServiceTypeID)
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("%s - %s with %s", b.StartTime.In(ws.Location()).Format("15:04"), service.Name, contact.Name))
	}

	subject, body, err := notify.Render("daily_digest", map[string]any{
		"Workspace": ws.Name,
		"Count":     len(todays),
		"Lines":     strings.Join(lines, "\n"),
	})
	if err != nil {
		return err
	}

	to, err := r.teamEmails(ctx, ws.ID)
	if err != nil {
		return err
	}
	row := models.AutomationLog{
		WorkspaceID: ws.ID,
		Event:       core.EventDailySummary,
		Action:      "sweep",
		Status:      models.LogSuccess,
		Details:     fmt.Sprintf("%d booking(s)", len(todays)),
	}
	if len(to) > 0 {
		sendErr := r.outbox.SendEmail(ctx, ws.ID, to, subject, body)
		switch {
		case errors.Is(sendErr, notify.ErrNotConfigured):
			// Nothing went out; retry on a later tick once email exists.
			return nil
		case sendErr != nil:
			row.Status = models.LogFailed
			row.Details = sendErr.Error()
		}
	}

	return r.store.AppendAutomationLog(ctx, &row)
}
