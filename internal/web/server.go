// Package web is the public HTTP surface: slot lookup, booking and lead
// capture, form completion and the staff reply hook. Handlers stay thin;
// they decode, call a service, map the error taxonomy to a status code and
// hand side effects to the dispatcher after the write commits.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/automation"
	"github.com/rajvveer/careOps/internal/booking"
	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/forms"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/notify"
	"github.com/rajvveer/careOps/internal/store"
)

type Server struct {
	Store      store.Store
	Bookings   *booking.Service
	Forms      *forms.Service
	Outbox     *notify.Outbox
	Dispatcher *automation.Dispatcher

	Log *slog.Logger
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /public/{workspace}/slots", s.handleSlots)
	mux.HandleFunc("POST /public/{workspace}/bookings", s.handleCreateBooking)
	mux.HandleFunc("POST /public/{workspace}/leads", s.handleCreateLead)
	mux.HandleFunc("POST /f/{token}", s.handleCompleteForm)
	mux.HandleFunc("POST /inbox/{conversation}/reply", s.handleStaffReply)

	return s.logRequests(mux)
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.PathValue("workspace"))
	if err != nil {
		s.writeError(w, core.Validationf("invalid workspace id"))
		return
	}
	serviceTypeID, err := uuid.Parse(r.URL.Query().Get("service_type"))
	if err != nil {
		s.writeError(w, core.Validationf("invalid service_type id"))
		return
	}
	date := r.URL.Query().Get("date")

	slots, err := s.Bookings.AvailableSlots(r.Context(), workspaceID, serviceTypeID, date)
	if err != nil {
		s.writeError(w, err)
		return
	}

	type slotJSON struct {
		Label string    `json:"label"`
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	out := struct {
		Date  string     `json:"date"`
		Slots []slotJSON `json:"slots"`
	}{Date: date, Slots: make([]slotJSON, 0, len(slots))}
	for _, sl := range slots {
		out.Slots = append(out.Slots, slotJSON{Label: sl.Label, Start: sl.Start, End: sl.End})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.PathValue("workspace"))
	if err != nil {
		s.writeError(w, core.Validationf("invalid workspace id"))
		return
	}
	var req struct {
		ServiceTypeID uuid.UUID `json:"serviceTypeId"`
		StartTime     time.Time `json:"startTime"`
		Name          string    `json:"name"`
		Email         string    `json:"email"`
		Phone         string    `json:"phone"`
		Notes         string    `json:"notes"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.Bookings.CreateBooking(r.Context(), booking.CreateBookingParams{
		WorkspaceID:   workspaceID,
		ServiceTypeID: req.ServiceTypeID,
		StartTime:     req.StartTime,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Notes:         req.Notes,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The write is committed; automation runs detached so a slow webhook
	// never delays the confirmation response.
	s.Dispatcher.Go(automation.BookingCreated(workspaceID, res.Booking, res.Contact, res.Conversation, res.ServiceType))

	s.writeJSON(w, http.StatusCreated, struct {
		ID             uuid.UUID `json:"id"`
		Status         string    `json:"status"`
		StartTime      time.Time `json:"startTime"`
		EndTime        time.Time `json:"endTime"`
		ContactID      uuid.UUID `json:"contactId"`
		ConversationID uuid.UUID `json:"conversationId"`
	}{
		ID:             res.Booking.ID,
		Status:         string(res.Booking.Status),
		StartTime:      res.Booking.StartTime,
		EndTime:        res.Booking.EndTime,
		ContactID:      res.Contact.ID,
		ConversationID: res.Conversation.ID,
	})
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.PathValue("workspace"))
	if err != nil {
		s.writeError(w, core.Validationf("invalid workspace id"))
		return
	}
	var req struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		Phone  string `json:"phone"`
		Source string `json:"source"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.Bookings.RegisterLead(r.Context(), booking.LeadParams{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Source:      req.Source,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// A returning contact is matched and updated, never re-welcomed.
	if res.ContactCreated {
		s.Dispatcher.Go(automation.ContactCreated(workspaceID, res.Contact, res.Conversation))
	}

	s.writeJSON(w, http.StatusCreated, struct {
		ContactID      uuid.UUID `json:"contactId"`
		ConversationID uuid.UUID `json:"conversationId"`
		Created        bool      `json:"created"`
	}{ContactID: res.Contact.ID, ConversationID: res.Conversation.ID, Created: res.ContactCreated})
}

func (s *Server) handleCompleteForm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers map[string]string `json:"answers"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	sub, err := s.Forms.Complete(r.Context(), r.PathValue("token"), req.Answers)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		ID          uuid.UUID  `json:"id"`
		Status      string     `json:"status"`
		SubmittedAt *time.Time `json:"submittedAt"`
	}{ID: sub.ID, Status: string(sub.Status), SubmittedAt: sub.SubmittedAt})
}

func (s *Server) handleStaffReply(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("conversation"))
	if err != nil {
		s.writeError(w, core.Validationf("invalid conversation id"))
		return
	}
	var req struct {
		WorkspaceID uuid.UUID `json:"workspaceId"`
		Content     string    `json:"content"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Content == "" {
		s.writeError(w, core.Validationf("reply content is required"))
		return
	}

	conv, err := s.Store.GetConversation(r.Context(), req.WorkspaceID, conversationID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ws, err := s.Store.GetWorkspace(r.Context(), conv.WorkspaceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	contact, err := s.Store.GetContact(r.Context(), conv.WorkspaceID, conv.ContactID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Delivery trouble never blocks the reply: the message is recorded and
	// the pause fires either way.
	channel, err := s.Outbox.DeliverToContact(r.Context(), ws, contact, "Re: your conversation with "+ws.Name, req.Content)
	if err != nil {
		channel = models.ChannelSystem
		if !errors.Is(err, notify.ErrNotConfigured) {
			s.Log.Warn("staff reply delivery", slog.String("conversation", conv.ID.String()), slog.Any("error", err))
		}
	}

	msg := models.Message{
		WorkspaceID:    conv.WorkspaceID,
		ConversationID: conv.ID,
		Direction:      models.DirectionOutbound,
		Channel:        channel,
		Content:        req.Content,
	}
	if err := s.Store.AppendMessage(r.Context(), &msg); err != nil {
		s.writeError(w, err)
		return
	}

	s.Dispatcher.Go(automation.StaffReplied(conv.WorkspaceID, conv))

	s.writeJSON(w, http.StatusOK, struct {
		MessageID string `json:"messageId"`
		Channel   string `json:"channel"`
	}{MessageID: msg.ID, Channel: string(channel)})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, core.Validationf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error("encode response", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case core.IsValidation(err):
		status, msg = http.StatusBadRequest, err.Error()
	case core.IsNotFound(err):
		status, msg = http.StatusNotFound, err.Error()
	case core.IsConflict(err):
		status, msg = http.StatusConflict, err.Error()
	default:
		s.Log.Error("request failed", slog.Any("error", err))
	}
	s.writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.Log.Info("http",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("took", time.Since(start)),
		)
	})
}

// Start serves h on addr until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func Start(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
