package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rajvveer/careOps/internal/automation"
	"github.com/rajvveer/careOps/internal/booking"
	"github.com/rajvveer/careOps/internal/forms"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/notify"
	"github.com/rajvveer/careOps/internal/store/memory"
)

type fakeEmail struct {
	sent int
}

func (f *fakeEmail) Send(ctx context.Context, cfg models.EmailConfig, to []string, subject, body string) error {
	f.sent++
	return nil
}

type fixture struct {
	srv     *Server
	h       http.Handler
	store   *memory.Store
	ws      models.Workspace
	service models.ServiceType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ws := models.Workspace{Name: "Glow Studio", Timezone: "UTC", Active: true, DigestHour: 8}
	require.NoError(t, st.CreateWorkspace(ctx, &ws))
	require.NoError(t, st.CreateUser(ctx, &models.User{
		WorkspaceID: ws.ID, Email: "owner@glow.example", Role: models.RoleOwner,
	}))
	service := models.ServiceType{WorkspaceID: ws.ID, Name: "Consult", DurationMin: 30}
	require.NoError(t, st.CreateServiceType(ctx, &service))
	require.NoError(t, st.CreateAvailability(ctx, &models.Availability{
		WorkspaceID: ws.ID, ServiceTypeID: service.ID, Weekday: 1, StartTime: "09:00", EndTime: "10:00",
	}))

	outbox := notify.NewOutbox(st, log, notify.Defaults{
		Email: models.EmailConfig{Host: "smtp.test", From: "noreply@glow.example"},
	})
	outbox.Email = &fakeEmail{}
	tokens := forms.NewTokens([]byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210fedcba9876543210"), "https://careops.example")
	formsSvc := forms.New(st, outbox, tokens, log)
	dispatcher := automation.New(st, outbox, formsSvc, log)
	t.Cleanup(dispatcher.Close)

	srv := &Server{
		Store:      st,
		Bookings:   booking.New(st, log),
		Forms:      formsSvc,
		Outbox:     outbox,
		Dispatcher: dispatcher,
		Log:        log,
	}
	return &fixture{srv: srv, h: srv.Routes(), store: st, ws: ws, service: service}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSlotsEndpoint(t *testing.T) {
	f := newFixture(t)
	// 2025-06-02 is a Monday.
	path := fmt.Sprintf("/public/%s/slots?service_type=%s&date=2025-06-02", f.ws.ID, f.service.ID)
	rec := f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	out := decodeBody[struct {
		Date  string `json:"date"`
		Slots []struct {
			Label string `json:"label"`
		} `json:"slots"`
	}](t, rec)
	require.Equal(t, "2025-06-02", out.Date)
	require.Len(t, out.Slots, 2)
	require.Equal(t, "09:00", out.Slots[0].Label)
	require.Equal(t, "09:30", out.Slots[1].Label)
}

func TestSlotsEndpointErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/public/not-a-uuid/slots?service_type=%s&date=2025-06-02", f.service.ID), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/public/%s/slots?service_type=%s&date=June+2nd", f.ws.ID, f.service.ID), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/public/%s/slots?service_type=%s&date=2025-06-02", f.ws.ID, uuid.New()), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBookingEndpoint(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	rec := f.do(t, http.MethodPost, "/public/"+f.ws.ID.String()+"/bookings", map[string]any{
		"serviceTypeId": f.service.ID,
		"startTime":     start.Format(time.RFC3339),
		"name":          "Dana",
		"email":         "dana@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	out := decodeBody[struct {
		ID        uuid.UUID `json:"id"`
		Status    string    `json:"status"`
		ContactID uuid.UUID `json:"contactId"`
	}](t, rec)
	require.Equal(t, "CONFIRMED", out.Status)
	require.NotEqual(t, uuid.Nil, out.ID)

	// Same slot again conflicts.
	rec = f.do(t, http.MethodPost, "/public/"+f.ws.ID.String()+"/bookings", map[string]any{
		"serviceTypeId": f.service.ID,
		"startTime":     start.Format(time.RFC3339),
		"name":          "Eve",
		"email":         "eve@example.com",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Off-grid time is a validation error, not a conflict.
	rec = f.do(t, http.MethodPost, "/public/"+f.ws.ID.String()+"/bookings", map[string]any{
		"serviceTypeId": f.service.ID,
		"startTime":     start.Add(10 * time.Minute).Format(time.RFC3339),
		"name":          "Eve",
		"email":         "eve@example.com",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingBadJSON(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/public/"+f.ws.ID.String()+"/bookings", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLeadEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/public/"+f.ws.ID.String()+"/leads", map[string]any{
		"name": "Dana", "email": "dana@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeBody[struct {
		ContactID uuid.UUID `json:"contactId"`
		Created   bool      `json:"created"`
	}](t, rec)
	require.True(t, first.Created)

	// The same person again is matched, not duplicated.
	rec = f.do(t, http.MethodPost, "/public/"+f.ws.ID.String()+"/leads", map[string]any{
		"name": "Dana R", "email": "dana@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decodeBody[struct {
		ContactID uuid.UUID `json:"contactId"`
		Created   bool      `json:"created"`
	}](t, rec)
	require.False(t, second.Created)
	require.Equal(t, first.ContactID, second.ContactID)

	rec = f.do(t, http.MethodPost, "/public/"+f.ws.ID.String()+"/leads", map[string]any{"name": "No Reach"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteFormEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tpl := models.FormTemplate{
		WorkspaceID: f.ws.ID, ServiceTypeID: &f.service.ID, Name: "Intake",
		Fields: []models.FormField{{Key: "allergies", Label: "Allergies", Required: true}},
	}
	require.NoError(t, f.store.CreateFormTemplate(ctx, &tpl))
	contact := models.Contact{WorkspaceID: f.ws.ID, Name: "Dana", Email: "dana@example.com"}
	require.NoError(t, f.store.CreateContact(ctx, &contact))
	sub := models.FormSubmission{
		WorkspaceID: f.ws.ID, FormTemplateID: tpl.ID, ContactID: contact.ID,
		Status: models.FormPending, DueDate: time.Now().Add(time.Hour),
	}
	require.NoError(t, f.store.CreateFormSubmission(ctx, &sub))

	link, err := f.srv.Forms.CompletionURL(sub.ID)
	require.NoError(t, err)
	// The path component after /f/ is the signed token.
	token := link[len("https://careops.example/f/"):]

	rec := f.do(t, http.MethodPost, "/f/"+token, map[string]any{
		"answers": map[string]string{"allergies": "none"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[struct {
		Status string `json:"status"`
	}](t, rec)
	require.Equal(t, "COMPLETED", out.Status)

	// Double submission conflicts; a tampered token is unknown.
	rec = f.do(t, http.MethodPost, "/f/"+token, map[string]any{
		"answers": map[string]string{"allergies": "none"},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/f/garbage", map[string]any{
		"answers": map[string]string{"allergies": "none"},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaffReplyEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	contact := models.Contact{WorkspaceID: f.ws.ID, Name: "Dana", Email: "dana@example.com"}
	require.NoError(t, f.store.CreateContact(ctx, &contact))
	conv, err := f.store.GetOrCreateConversation(ctx, f.ws.ID, contact.ID)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/inbox/"+conv.ID.String()+"/reply", map[string]any{
		"workspaceId": f.ws.ID,
		"content":     "We will see you Monday!",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[struct {
		MessageID string `json:"messageId"`
		Channel   string `json:"channel"`
	}](t, rec)
	require.NotEmpty(t, out.MessageID)
	require.Equal(t, "EMAIL", out.Channel)

	msgs, err := f.store.ListMessages(ctx, f.ws.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, models.DirectionOutbound, msgs[0].Direction)

	// The dispatcher pauses the conversation off the request path.
	f.srv.Dispatcher.Close()
	got, err := f.store.GetConversation(ctx, f.ws.ID, conv.ID)
	require.NoError(t, err)
	require.True(t, got.AutomationPaused)

	rec = f.do(t, http.MethodPost, "/inbox/"+conv.ID.String()+"/reply", map[string]any{
		"workspaceId": f.ws.ID,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/inbox/"+uuid.NewString()+"/reply", map[string]any{
		"workspaceId": f.ws.ID,
		"content":     "hello?",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorBodyShape(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/public/%s/slots?service_type=%s&date=bad", f.ws.ID, f.service.ID), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := decodeBody[struct {
		Error string `json:"error"`
	}](t, rec)
	require.NotEmpty(t, out.Error)
}
