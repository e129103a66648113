// Package notify owns every outbound channel: SMTP mail, WhatsApp Cloud
// API, Google Calendar, and the optional text-generation endpoint, plus the
// embedded copy deck the automations render their messages from.
//
// Channel configuration resolves workspace integration first, environment
// default second. A channel with neither is reported as ErrNotConfigured
// and the caller decides whether that is a failure or a quiet skip.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/store"
)

var ErrNotConfigured = errors.New("channel not configured")

type EmailGateway interface {
	Send(ctx context.Context, cfg models.EmailConfig, to []string, subject, body string) error
}

type WhatsAppGateway interface {
	Send(ctx context.Context, cfg models.WhatsAppConfig, toPhone, body string) error
}

type CalendarGateway interface {
	CreateEvent(ctx context.Context, cfg models.CalendarConfig, ev Event) error
}

type TextGenerator interface {
	Generate(ctx context.Context, cfg models.TextGenConfig, system, prompt string) (string, error)
}

// Defaults are the environment-level gateway configs used when a workspace
// has not connected its own integration.
type Defaults struct {
	Email    models.EmailConfig
	WhatsApp models.WhatsAppConfig
	TextGen  models.TextGenConfig
}

// Outbox resolves per-workspace channel config and delivers through the
// gateways. The gateway fields are exported so tests swap in fakes.
type Outbox struct {
	store    store.Store
	log      *slog.Logger
	defaults Defaults

	Email    EmailGateway
	WhatsApp WhatsAppGateway
	Calendar CalendarGateway
	TextGen  TextGenerator
}

func NewOutbox(st store.Store, log *slog.Logger, defaults Defaults) *Outbox {
	return &Outbox{
		store:    st,
		log:      log.With("component", "outbox"),
		defaults: defaults,
		Email:    NewSMTP(),
		WhatsApp: NewWhatsApp(),
		Calendar: &GoogleCalendar{},
		TextGen:  NewTextGen(),
	}
}

func (o *Outbox) emailConfig(ctx context.Context, workspaceID uuid.UUID) (models.EmailConfig, bool) {
	integ, err := o.store.GetActiveIntegration(ctx, workspaceID, models.IntegrationEmail)
	if err == nil && integ.Email.Configured() {
		return *integ.Email, true
	}
	if err != nil && !core.IsNotFound(err) {
		o.log.Warn("email integration lookup failed", "workspace", workspaceID, "error", err)
	}
	if o.defaults.Email.Configured() {
		return o.defaults.Email, true
	}
	return models.EmailConfig{}, false
}

func (o *Outbox) whatsappConfig(ctx context.Context, workspaceID uuid.UUID) (models.WhatsAppConfig, bool) {
	integ, err := o.store.GetActiveIntegration(ctx, workspaceID, models.IntegrationWhatsApp)
	if err == nil && integ.WhatsApp.Configured() {
		return *integ.WhatsApp, true
	}
	if err != nil && !core.IsNotFound(err) {
		o.log.Warn("whatsapp integration lookup failed", "workspace", workspaceID, "error", err)
	}
	if o.defaults.WhatsApp.Configured() {
		return o.defaults.WhatsApp, true
	}
	return models.WhatsAppConfig{}, false
}

func (o *Outbox) textGenConfig(ctx context.Context, workspaceID uuid.UUID) (models.TextGenConfig, bool) {
	integ, err := o.store.GetActiveIntegration(ctx, workspaceID, models.IntegrationTextGen)
	if err == nil && integ.TextGen.Configured() {
		return *integ.TextGen, true
	}
	if err != nil && !core.IsNotFound(err) {
		o.log.Warn("textgen integration lookup failed", "workspace", workspaceID, "error", err)
	}
	if o.defaults.TextGen.Configured() {
		return o.defaults.TextGen, true
	}
	return models.TextGenConfig{}, false
}

// HasContactChannel reports whether the workspace can reach contacts at
// all; workspace activation checks this.
func (o *Outbox) HasContactChannel(ctx context.Context, workspaceID uuid.UUID) bool {
	if _, ok := o.emailConfig(ctx, workspaceID); ok {
		return true
	}
	_, ok := o.whatsappConfig(ctx, workspaceID)
	return ok
}

// DeliverToContact sends body over the best channel available for the
// contact: email first, WhatsApp second. The returned channel names the
// transport actually attempted so the caller can record the message.
func (o *Outbox) DeliverToContact(ctx context.Context, ws models.Workspace, contact models.Contact, subject, body string) (models.MessageChannel, error) {
	if contact.Email != "" {
		if cfg, ok := o.emailConfig(ctx, ws.ID); ok {
			err := o.Email.Send(ctx, cfg, []string{contact.Email}, subject, body)
			return models.ChannelEmail, err
		}
	}
	if contact.Phone != "" {
		if cfg, ok := o.whatsappConfig(ctx, ws.ID); ok {
			err := o.WhatsApp.Send(ctx, cfg, contact.Phone, body)
			return models.ChannelWhatsApp, err
		}
	}
	return "", ErrNotConfigured
}

// SendEmail mails workspace recipients (staff digests, overdue notices).
func (o *Outbox) SendEmail(ctx context.Context, workspaceID uuid.UUID, to []string, subject, body string) error {
	cfg, ok := o.emailConfig(ctx, workspaceID)
	if !ok {
		return ErrNotConfigured
	}
	return o.Email.Send(ctx, cfg, to, subject, body)
}

// SyncBooking mirrors a booking into the workspace calendar when one is
// connected. ErrNotConfigured when none is.
func (o *Outbox) SyncBooking(ctx context.Context, ws models.Workspace, b models.Booking, st models.ServiceType, contact models.Contact) error {
	integ, err := o.store.GetActiveIntegration(ctx, ws.ID, models.IntegrationCalendar)
	if core.IsNotFound(err) {
		return ErrNotConfigured
	}
	if err != nil {
		return err
	}
	if !integ.Calendar.Configured() {
		return ErrNotConfigured
	}
	ev := Event{
		Summary:       fmt.Sprintf("%s: %s", st.Name, contact.Name),
		Description:   b.Notes,
		Start:         b.StartTime,
		End:           b.EndTime,
		AttendeeEmail: contact.Email,
	}
	return o.Calendar.CreateEvent(ctx, *integ.Calendar, ev)
}

// WelcomeMessage drafts the first-contact reply, preferring the generation
// endpoint and falling back to the deck template when it is missing or
// misbehaves.
func (o *Outbox) WelcomeMessage(ctx context.Context, ws models.Workspace, contact models.Contact) string {
	name := contact.Name
	if name == "" {
		name = "there"
	}
	if cfg, ok := o.textGenConfig(ctx, ws.ID); ok {
		system := fmt.Sprintf("You write short, friendly replies on behalf of %s, a service business. One or two sentences, no sign-off.", ws.Name)
		prompt := fmt.Sprintf("Write a welcome reply to a new enquiry from %s.", name)
		out, err := o.TextGen.Generate(ctx, cfg, system, prompt)
		if err == nil && strings.TrimSpace(out) != "" {
			return out
		}
		o.log.Warn("text generation failed, using template", "workspace", ws.ID, "error", err)
	}
	_, body, err := Render("welcome", map[string]any{"Name": name, "Workspace": ws.Name})
	if err != nil {
		return fmt.Sprintf("Hi %s, thanks for reaching out to %s!", name, ws.Name)
	}
	return body
}
