package automation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
)

func connectWebhook(t *testing.T, f *fixture, url, secret string) {
	t.Helper()
	require.NoError(t, f.store.UpsertIntegration(context.Background(), &models.Integration{
		WorkspaceID: f.ws.ID,
		Kind:        models.IntegrationWebhook,
		Active:      true,
		Webhook:     &models.WebhookConfig{URL: url, Secret: secret},
	}))
}

func TestWebhookEnvelopeAndSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		gotBody []byte
		gotSig  string
		gotCT   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-CareOps-Signature")
		gotCT = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	connectWebhook(t, f, srv.URL, "shh")
	f.d.Dispatch(ctx, ContactCreated(f.ws.ID, f.contact, f.conv))

	require.Equal(t, "application/json", gotCT)
	require.Equal(t, Sign("shh", gotBody), gotSig, "receiver-side recomputation must match")

	var env struct {
		Event       string         `json:"event"`
		WorkspaceID string         `json:"workspaceId"`
		Data        map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &env))
	require.Equal(t, core.EventContactCreated, env.Event)
	require.Equal(t, f.ws.ID.String(), env.WorkspaceID)
	contact, ok := env.Data["contact"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Dana", contact["name"])
}

func TestWebhookWithoutSecretOmitsSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var header string
	present := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-CareOps-Signature")
		_, present = r.Header["X-Careops-Signature"]
	}))
	defer srv.Close()

	connectWebhook(t, f, srv.URL, "")
	f.d.Dispatch(ctx, ContactCreated(f.ws.ID, f.contact, f.conv))

	require.Empty(t, header)
	require.False(t, present)
}

func TestWebhookFailureIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var goodHits int
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodHits++
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer bad.Close()

	connectWebhook(t, f, bad.URL, "")
	connectWebhook(t, f, good.URL, "")

	f.d.Dispatch(ctx, ContactCreated(f.ws.ID, f.contact, f.conv))

	require.Equal(t, 1, goodHits, "a failing receiver never blocks the others")

	logs, err := f.store.ListAutomationLogs(ctx, f.ws.ID)
	require.NoError(t, err)
	var attempts []models.AutomationLog
	for _, l := range logs {
		if l.Event == core.EventContactCreated && l.Action != "handler" {
			attempts = append(attempts, l)
		}
	}
	require.Len(t, attempts, 2, "each receiver gets its own log row")

	byAction := map[string]models.LogStatus{}
	for _, a := range attempts {
		byAction[a.Action] = a.Status
	}
	require.Equal(t, models.LogFailed, byAction["webhook "+bad.URL])
	require.Equal(t, models.LogSuccess, byAction["webhook "+good.URL])

	// The overall handler row reflects the partial failure.
	handler := f.handlerLogs(t, core.EventContactCreated)
	require.Len(t, handler, 1)
	require.Equal(t, models.LogFailed, handler[0].Status)
	require.Contains(t, handler[0].Details, bad.URL)
}

func TestWebhookSkippedOnBookingWithNoReceivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.d.Dispatch(ctx, BookingCreated(f.ws.ID, f.booking, f.contact, f.conv, f.service))

	logs, err := f.store.ListAutomationLogs(ctx, f.ws.ID)
	require.NoError(t, err)
	for _, l := range logs {
		require.Equal(t, "handler", l.Action, "no webhook rows without receivers")
	}
}
