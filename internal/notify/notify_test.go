package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/store/memory"
)

type fakeEmail struct {
	to      [][]string
	subject string
	body    string
	err     error
}

func (f *fakeEmail) Send(ctx context.Context, cfg models.EmailConfig, to []string, subject, body string) error {
	f.to = append(f.to, to)
	f.subject, f.body = subject, body
	return f.err
}

type fakeWhatsApp struct {
	sentTo []string
	err    error
}

func (f *fakeWhatsApp) Send(ctx context.Context, cfg models.WhatsAppConfig, toPhone, body string) error {
	f.sentTo = append(f.sentTo, toPhone)
	return f.err
}

type fakeTextGen struct {
	out string
	err error
}

func (f *fakeTextGen) Generate(ctx context.Context, cfg models.TextGenConfig, system, prompt string) (string, error) {
	return f.out, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeliverToContactPrefersEmail(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ws := models.Workspace{Name: "Glow Studio"}
	require.NoError(t, st.CreateWorkspace(ctx, &ws))
	require.NoError(t, st.UpsertIntegration(ctx, &models.Integration{
		WorkspaceID: ws.ID,
		Kind:        models.IntegrationEmail,
		Active:      true,
		Email:       &models.EmailConfig{Host: "smtp.glow", From: "hi@glow"},
	}))

	email := &fakeEmail{}
	wa := &fakeWhatsApp{}
	o := NewOutbox(st, testLogger(), Defaults{})
	o.Email, o.WhatsApp = email, wa

	contact := models.Contact{WorkspaceID: ws.ID, Name: "Dana", Email: "dana@example.com", Phone: "+15550001111"}
	ch, err := o.DeliverToContact(ctx, ws, contact, "Hello", "body")
	require.NoError(t, err)
	require.Equal(t, models.ChannelEmail, ch)
	require.Len(t, email.to, 1)
	require.Empty(t, wa.sentTo)
}

func TestDeliverToContactFallsBackToWhatsApp(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ws := models.Workspace{Name: "Glow Studio"}
	require.NoError(t, st.CreateWorkspace(ctx, &ws))

	email := &fakeEmail{}
	wa := &fakeWhatsApp{}
	// No email integration; WhatsApp comes from environment defaults.
	o := NewOutbox(st, testLogger(), Defaults{
		WhatsApp: models.WhatsAppConfig{PhoneNumberID: "123", AccessToken: "tok"},
	})
	o.Email, o.WhatsApp = email, wa

	contact := models.Contact{WorkspaceID: ws.ID, Email: "dana@example.com", Phone: "+15550001111"}
	ch, err := o.DeliverToContact(ctx, ws, contact, "Hello", "body")
	require.NoError(t, err)
	require.Equal(t, models.ChannelWhatsApp, ch)
	require.Equal(t, []string{"+15550001111"}, wa.sentTo)
	require.Empty(t, email.to)
}

func TestDeliverToContactNoChannel(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ws := models.Workspace{Name: "Glow Studio"}
	require.NoError(t, st.CreateWorkspace(ctx, &ws))

	o := NewOutbox(st, testLogger(), Defaults{})
	contact := models.Contact{WorkspaceID: ws.ID, Email: "dana@example.com"}
	_, err := o.DeliverToContact(ctx, ws, contact, "Hello", "body")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestWorkspaceConfigWinsOverDefaults(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ws := models.Workspace{Name: "Glow Studio"}
	require.NoError(t, st.CreateWorkspace(ctx, &ws))
	require.NoError(t, st.UpsertIntegration(ctx, &models.Integration{
		WorkspaceID: ws.ID,
		Kind:        models.IntegrationEmail,
		Active:      true,
		Email:       &models.EmailConfig{Host: "smtp.workspace", From: "ws@glow"},
	}))

	o := NewOutbox(st, testLogger(), Defaults{
		Email: models.EmailConfig{Host: "smtp.env", From: "env@glow"},
	})
	cfg, ok := o.emailConfig(ctx, ws.ID)
	require.True(t, ok)
	require.Equal(t, "smtp.workspace", cfg.Host)
}

func TestWelcomeMessageGeneratedThenFallback(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ws := models.Workspace{Name: "Glow Studio"}
	require.NoError(t, st.CreateWorkspace(ctx, &ws))

	o := NewOutbox(st, testLogger(), Defaults{
		TextGen: models.TextGenConfig{BaseURL: "http://localhost:0"},
	})
	o.TextGen = &fakeTextGen{out: "Welcome aboard, Dana!"}
	contact := models.Contact{WorkspaceID: ws.ID, Name: "Dana"}
	require.Equal(t, "Welcome aboard, Dana!", o.WelcomeMessage(ctx, ws, contact))

	o.TextGen = &fakeTextGen{err: errors.New("offline")}
	msg := o.WelcomeMessage(ctx, ws, contact)
	require.Contains(t, msg, "Dana")
	require.Contains(t, msg, "Glow Studio")
}

func TestSendEmailNotConfigured(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ws := models.Workspace{Name: "Glow Studio"}
	require.NoError(t, st.CreateWorkspace(ctx, &ws))

	o := NewOutbox(st, testLogger(), Defaults{})
	err := o.SendEmail(ctx, ws.ID, []string{"owner@glow"}, "s", "b")
	require.ErrorIs(t, err, ErrNotConfigured)
}
