// Package booking is the public-facing front desk: slot queries, the
// transactional booking writer, and lead capture. Side effects (messages,
// alerts, webhooks) are not dispatched here; callers receive the committed
// state and hand it to the automation dispatcher after the transaction.
package booking

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/schedule"
	"github.com/rajvveer/careOps/internal/store"
)

// slotCacheTTL bounds how stale a public slot listing can be. Booking commits
// invalidate the affected key immediately, so the TTL only covers availability
// edits, which tolerate half a minute of lag.
const slotCacheTTL = 30 * time.Second

type slotKey struct {
	workspace uuid.UUID
	service   uuid.UUID
	date      string
}

type slotEntry struct {
	slots   []schedule.Slot
	expires time.Time
}

type Service struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time

	mu    sync.Mutex
	cache map[slotKey]slotEntry
}

func New(st store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: st,
		log:   log.With(slog.String("component", "booking")),
		now:   time.Now,
		cache: make(map[slotKey]slotEntry),
	}
}

// AvailableSlots lists bookable slots for one service type on one calendar
// date ("YYYY-MM-DD", interpreted in the workspace timezone). Results are
// cached per (workspace, service, date) for slotCacheTTL.
func (s *Service) AvailableSlots(ctx context.Context, workspaceID, serviceTypeID uuid.UUID, date string) ([]schedule.Slot, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, core.Validationf("invalid date %q (want YYYY-MM-DD)", date)
	}

	key := slotKey{workspace: workspaceID, service: serviceTypeID, date: date}
	s.mu.Lock()
	if e, ok := s.cache[key]; ok && s.now().Before(e.expires) {
		s.mu.Unlock()
		return e.slots, nil
	}
	s.mu.Unlock()

	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.Active {
		return nil, core.NotFoundf("workspace %s is not accepting bookings", workspaceID)
	}
	st, err := s.store.GetServiceType(ctx, workspaceID, serviceTypeID)
	if err != nil {
		return nil, err
	}
	windows, err := s.windowsFor(ctx, workspaceID, serviceTypeID)
	if err != nil {
		return nil, err
	}

	loc := ws.Location()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	booked, err := s.store.ListBookingsInRange(ctx, workspaceID, serviceTypeID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	busy := make([]schedule.Interval, 0, len(booked))
	for _, b := range booked {
		busy = append(busy, schedule.Interval{Start: b.StartTime, End: b.EndTime})
	}

	slots := schedule.SlotsForDate(dayStart, st.DurationMin, windows, busy)

	s.mu.Lock()
	s.cache[key] = slotEntry{slots: slots, expires: s.now().Add(slotCacheTTL)}
	s.mu.Unlock()
	return slots, nil
}

func (s *Service) windowsFor(ctx context.Context, workspaceID, serviceTypeID uuid.UUID) ([]schedule.Window, error) {
	rows, err := s.store.ListAvailability(ctx, workspaceID, serviceTypeID)
	if err != nil {
		return nil, err
	}
	windows := make([]schedule.Window, 0, len(rows))
	for _, a := range rows {
		w, err := schedule.ParseWindow(a.Weekday, a.StartTime, a.EndTime)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func (s *Service) invalidateSlots(workspaceID, serviceTypeID uuid.UUID, localDate string) {
	s.mu.Lock()
	delete(s.cache, slotKey{workspace: workspaceID, service: serviceTypeID, date: localDate})
	s.mu.Unlock()
}

type CreateBookingParams struct {
	WorkspaceID   uuid.UUID
	ServiceTypeID uuid.UUID
	StartTime     time.Time
	Name          string
	Email         string
	Phone         string
	Notes         string
}

// Result is what the caller needs for side-effect dispatch after commit.
type Result struct {
	Booking        models.Booking
	Contact        models.Contact
	Conversation   models.Conversation
	ServiceType    models.ServiceType
	ContactCreated bool
}

// CreateBooking is the transactional writer. Contact resolution, conversation
// resolution, the conflict re-check and the booking insert commit or roll back
// together; no partial state survives a failure. A lost slot race surfaces as
// core.ErrConflict either from the re-check or from the unique index at
// insert.
func (s *Service) CreateBooking(ctx context.Context, p CreateBookingParams) (Result, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = normalizeEmail(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.ServiceTypeID == uuid.Nil {
		return Result{}, core.Validationf("serviceTypeId is required")
	}
	if p.StartTime.IsZero() {
		return Result{}, core.Validationf("startTime is required")
	}
	if p.Name == "" {
		return Result{}, core.Validationf("contact name is required")
	}
	if p.Email == "" && p.Phone == "" {
		return Result{}, core.Validationf("an email or phone number is required")
	}

	ws, err := s.store.GetWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		return Result{}, err
	}
	if !ws.Active {
		return Result{}, core.NotFoundf("workspace %s is not accepting bookings", p.WorkspaceID)
	}
	st, err := s.store.GetServiceType(ctx, p.WorkspaceID, p.ServiceTypeID)
	if err != nil {
		return Result{}, err
	}

	windows, err := s.windowsFor(ctx, p.WorkspaceID, p.ServiceTypeID)
	if err != nil {
		return Result{}, err
	}
	loc := ws.Location()
	start := p.StartTime.In(loc)
	localDate := start.Format("2006-01-02")
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	if !offeredAt(dayStart, st.DurationMin, windows, start) {
		return Result{}, core.Validationf("%s is not a bookable time for %s", start.Format("2006-01-02 15:04"), st.Name)
	}
	end := start.Add(time.Duration(st.DurationMin) * time.Minute)

	var res Result
	err = s.store.InTx(ctx, func(tx store.Store) error {
		contact, created, err := resolveContact(ctx, tx, p.WorkspaceID, p.Name, p.Email, p.Phone, "booking")
		if err != nil {
			return err
		}
		conv, err := tx.GetOrCreateConversation(ctx, p.WorkspaceID, contact.ID)
		if err != nil {
			return err
		}
		taken, err := tx.ListBookingsInRange(ctx, p.WorkspaceID, p.ServiceTypeID, start, end)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return core.Conflictf("slot %s is already booked", start.Format(time.RFC3339))
		}
		b := models.Booking{
			WorkspaceID:   p.WorkspaceID,
			ContactID:     contact.ID,
			ServiceTypeID: p.ServiceTypeID,
			StartTime:     start,
			EndTime:       end,
			Status:        models.BookingConfirmed,
			Notes:         strings.TrimSpace(p.Notes),
		}
		if err := tx.CreateBooking(ctx, &b); err != nil {
			return err
		}
		res = Result{Booking: b, Contact: contact, Conversation: conv, ServiceType: st, ContactCreated: created}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.invalidateSlots(p.WorkspaceID, p.ServiceTypeID, localDate)
	return res, nil
}

// CancelBooking frees the slot. The listing cache for that day is dropped so
// the slot reappears immediately.
func (s *Service) CancelBooking(ctx context.Context, workspaceID, bookingID uuid.UUID) error {
	b, err := s.store.GetBooking(ctx, workspaceID, bookingID)
	if err != nil {
		return err
	}
	if b.Status == models.BookingCancelled {
		return nil
	}
	if err := s.store.UpdateBookingStatus(ctx, workspaceID, bookingID, models.BookingCancelled); err != nil {
		return err
	}
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	s.invalidateSlots(workspaceID, b.ServiceTypeID, b.StartTime.In(ws.Location()).Format("2006-01-02"))
	return nil
}

type LeadParams struct {
	WorkspaceID uuid.UUID
	Name        string
	Email       string
	Phone       string
	Source      string
}

type LeadResult struct {
	Contact        models.Contact
	Conversation   models.Conversation
	ContactCreated bool
}

// RegisterLead captures an inbound contact and its conversation. The
// contact.created dispatch is the caller's job and only fires when
// ContactCreated is true; a returning lead is matched, updated, and never
// re-welcomed.
func (s *Service) RegisterLead(ctx context.Context, p LeadParams) (LeadResult, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = normalizeEmail(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.Name == "" {
		return LeadResult{}, core.Validationf("contact name is required")
	}
	if p.Email == "" && p.Phone == "" {
		return LeadResult{}, core.Validationf("an email or phone number is required")
	}
	if _, err := s.store.GetWorkspace(ctx, p.WorkspaceID); err != nil {
		return LeadResult{}, err
	}
	source := p.Source
	if source == "" {
		source = "lead"
	}

	var res LeadResult
	err := s.store.InTx(ctx, func(tx store.Store) error {
		contact, created, err := resolveContact(ctx, tx, p.WorkspaceID, p.Name, p.Email, p.Phone, source)
		if err != nil {
			return err
		}
		conv, err := tx.GetOrCreateConversation(ctx, p.WorkspaceID, contact.ID)
		if err != nil {
			return err
		}
		res = LeadResult{Contact: contact, Conversation: conv, ContactCreated: created}
		return nil
	})
	if err != nil {
		return LeadResult{}, err
	}
	return res, nil
}

// resolveContact finds a contact by email, then phone, and updates it with the
// latest supplied details; request-time info always wins over stored info.
// When nothing matches it creates the contact with the given source tag.
func resolveContact(ctx context.Context, tx store.Store, workspaceID uuid.UUID, name, email, phone, source string) (models.Contact, bool, error) {
	var (
		found models.Contact
		ok    bool
	)
	if email != "" {
		c, err := tx.FindContactByEmail(ctx, workspaceID, email)
		switch {
		case err == nil:
			found, ok = c, true
		case !core.IsNotFound(err):
			return models.Contact{}, false, err
		}
	}
	if !ok && phone != "" {
		c, err := tx.FindContactByPhone(ctx, workspaceID, phone)
		switch {
		case err == nil:
			found, ok = c, true
		case !core.IsNotFound(err):
			return models.Contact{}, false, err
		}
	}
	if ok {
		if name != "" {
			found.Name = name
		}
		if email != "" {
			found.Email = email
		}
		if phone != "" {
			found.Phone = phone
		}
		if err := tx.UpdateContact(ctx, &found); err != nil {
			return models.Contact{}, false, err
		}
		return found, false, nil
	}
	c := models.Contact{
		WorkspaceID: workspaceID,
		Name:        name,
		Email:       email,
		Phone:       phone,
		Source:      source,
	}
	if err := tx.CreateContact(ctx, &c); err != nil {
		return models.Contact{}, false, err
	}
	return c, true, nil
}

// offeredAt reports whether start is one of the generated slot starts for the
// day, ignoring existing bookings; conflicts are the transaction's concern.
func offeredAt(dayStart time.Time, durationMin int, windows []schedule.Window, start time.Time) bool {
	for _, slot := range schedule.SlotsForDate(dayStart, durationMin, windows, nil) {
		if slot.Start.Equal(start) {
			return true
		}
	}
	return false
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
