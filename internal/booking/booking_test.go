package booking

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/store/memory"
)

// mondayDate is 2025-06-02, a Monday.
const mondayDate = "2025-06-02"

type fixture struct {
	svc     *Service
	store   *memory.Store
	ws      models.Workspace
	service models.ServiceType
}

// newFixture builds an active workspace with a 30-minute service bookable
// Mondays 09:00-10:00 UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	ws := models.Workspace{Name: "Glow Studio", Timezone: "UTC", Active: true, DigestHour: 18}
	require.NoError(t, st.CreateWorkspace(ctx, &ws))
	service := models.ServiceType{WorkspaceID: ws.ID, Name: "Consult", DurationMin: 30}
	require.NoError(t, st.CreateServiceType(ctx, &service))
	require.NoError(t, st.CreateAvailability(ctx, &models.Availability{
		WorkspaceID: ws.ID, ServiceTypeID: service.ID, Weekday: 1, StartTime: "09:00", EndTime: "10:00",
	}))

	return &fixture{
		svc:     New(st, slog.New(slog.NewTextHandler(io.Discard, nil))),
		store:   st,
		ws:      ws,
		service: service,
	}
}

func (f *fixture) slotLabels(t *testing.T) []string {
	t.Helper()
	slots, err := f.svc.AvailableSlots(context.Background(), f.ws.ID, f.service.ID, mondayDate)
	require.NoError(t, err)
	labels := make([]string, 0, len(slots))
	for _, s := range slots {
		labels = append(labels, s.Label)
	}
	return labels
}

func mondayAt(hour, min int) time.Time {
	return time.Date(2025, 6, 2, hour, min, 0, 0, time.UTC)
}

func TestAvailableSlotsForMonday(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, []string{"09:00", "09:30"}, f.slotLabels(t))
}

func TestAvailableSlotsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AvailableSlots(ctx, f.ws.ID, f.service.ID, "June 2nd")
	require.True(t, core.IsValidation(err), "got %v", err)

	_, err = f.svc.AvailableSlots(ctx, f.ws.ID, uuid.New(), mondayDate)
	require.True(t, core.IsNotFound(err), "got %v", err)

	f.ws.Active = false
	require.NoError(t, f.store.UpdateWorkspace(ctx, &f.ws))
	_, err = f.svc.AvailableSlots(ctx, f.ws.ID, f.service.ID, mondayDate)
	require.True(t, core.IsNotFound(err), "inactive workspace: %v", err)
}

func TestCreateBookingHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateBooking(ctx, CreateBookingParams{
		WorkspaceID:   f.ws.ID,
		ServiceTypeID: f.service.ID,
		StartTime:     mondayAt(9, 0),
		Name:          "Dana",
		Email:         "Dana@Example.com",
	})
	require.NoError(t, err)
	require.Equal(t, models.BookingConfirmed, res.Booking.Status)
	require.Equal(t, mondayAt(9, 30), res.Booking.EndTime)
	require.True(t, res.ContactCreated)
	require.Equal(t, "dana@example.com", res.Contact.Email)
	require.Equal(t, "booking", res.Contact.Source)
	require.Equal(t, res.Contact.ID, res.Conversation.ContactID)

	// The committed booking hides its slot right away.
	require.Equal(t, []string{"09:30"}, f.slotLabels(t))
}

func TestCreateBookingConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, CreateBookingParams{
		WorkspaceID: f.ws.ID, ServiceTypeID: f.service.ID, StartTime: mondayAt(9, 0),
		Name: "Dana", Email: "dana@example.com",
	})
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(ctx, CreateBookingParams{
		WorkspaceID: f.ws.ID, ServiceTypeID: f.service.ID, StartTime: mondayAt(9, 0),
		Name: "Erin", Email: "erin@example.com",
	})
	require.True(t, core.IsConflict(err), "got %v", err)

	// The loser's contact must not survive the rolled-back transaction.
	_, err = f.store.FindContactByEmail(ctx, f.ws.ID, "erin@example.com")
	require.True(t, core.IsNotFound(err), "got %v", err)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := CreateBookingParams{
		WorkspaceID: f.ws.ID, ServiceTypeID: f.service.ID, StartTime: mondayAt(9, 0),
		Name: "Dana", Email: "dana@example.com",
	}

	p := valid
	p.StartTime = mondayAt(9, 15)
	_, err := f.svc.CreateBooking(ctx, p)
	require.True(t, core.IsValidation(err), "off-grid time: %v", err)

	p = valid
	p.StartTime = mondayAt(13, 0)
	_, err = f.svc.CreateBooking(ctx, p)
	require.True(t, core.IsValidation(err), "outside window: %v", err)

	p = valid
	p.Name = ""
	_, err = f.svc.CreateBooking(ctx, p)
	require.True(t, core.IsValidation(err), "missing name: %v", err)

	p = valid
	p.Email, p.Phone = "", ""
	_, err = f.svc.CreateBooking(ctx, p)
	require.True(t, core.IsValidation(err), "missing identification: %v", err)

	p = valid
	p.ServiceTypeID = uuid.New()
	_, err = f.svc.CreateBooking(ctx, p)
	require.True(t, core.IsNotFound(err), "unknown service: %v", err)
}

func TestCreateBookingInactiveWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ws.Active = false
	require.NoError(t, f.store.UpdateWorkspace(ctx, &f.ws))

	_, err := f.svc.CreateBooking(ctx, CreateBookingParams{
		WorkspaceID: f.ws.ID, ServiceTypeID: f.service.ID, StartTime: mondayAt(9, 0),
		Name: "Dana", Email: "dana@example.com",
	})
	require.True(t, core.IsNotFound(err), "got %v", err)
}

func TestCreateBookingUpdatesExistingContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateBooking(ctx, CreateBookingParams{
		WorkspaceID: f.ws.ID, ServiceTypeID: f.service.ID, StartTime: mondayAt(9, 0),
		Name: "Dana", Email: "dana@example.com",
	})
	require.NoError(t, err)

	second, err := f.svc.CreateBooking(ctx, CreateBookingParams{
		WorkspaceID: f.ws.ID, ServiceTypeID: f.service.ID, StartTime: mondayAt(9, 30),
		Name: "Dana Reyes", Email: "dana@example.com", Phone: "+15550001111",
	})
	require.NoError(t, err)
	require.False(t, second.ContactCreated)
	require.Equal(t, first.Contact.ID, second.Contact.ID)
	require.Equal(t, "Dana Reyes", second.Contact.Name)
	require.Equal(t, "+15550001111", second.Contact.Phone)
	require.Equal(t, first.Conversation.ID, second.Conversation.ID)
}

func TestSlotCacheServesStaleUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }

	require.Equal(t, []string{"09:00", "09:30"}, f.slotLabels(t))

	// A booking written behind the service's back is invisible while the
	// cache entry is fresh.
	contact := models.Contact{WorkspaceID: f.ws.ID, Name: "Dana", Email: "dana@example.com"}
	require.NoError(t, f.store.CreateContact(ctx, &contact))
	require.NoError(t, f.store.CreateBooking(ctx, &models.Booking{
		WorkspaceID: f.ws.ID, ContactID: contact.ID, ServiceTypeID: f.service.ID,
		StartTime: mondayAt(9, 0), EndTime: mondayAt(9, 30), Status: models.BookingConfirmed,
	}))
	require.Equal(t, []string{"09:00", "09:30"}, f.slotLabels(t))

	// Past the TTL the entry expires and the listing refreshes.
	f.svc.now = func() time.Time { return base.Add(slotCacheTTL + time.Second) }
	require.Equal(t, []string{"09:30"}, f.slotLabels(t))
}

func TestCancelBookingFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateBooking(ctx, CreateBookingParams{
		WorkspaceID: f.ws.ID, ServiceTypeID: f.service.ID, StartTime: mondayAt(9, 0),
		Name: "Dana", Email: "dana@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"09:30"}, f.slotLabels(t))

	require.NoError(t, f.svc.CancelBooking(ctx, f.ws.ID, res.Booking.ID))
	require.Equal(t, []string{"09:00", "09:30"}, f.slotLabels(t))

	// Cancelling twice is a no-op.
	require.NoError(t, f.svc.CancelBooking(ctx, f.ws.ID, res.Booking.ID))
}

func TestRegisterLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RegisterLead(ctx, LeadParams{
		WorkspaceID: f.ws.ID, Name: "Dana", Email: "dana@example.com",
	})
	require.NoError(t, err)
	require.True(t, res.ContactCreated)
	require.Equal(t, "lead", res.Contact.Source)
	require.Equal(t, res.Contact.ID, res.Conversation.ContactID)

	again, err := f.svc.RegisterLead(ctx, LeadParams{
		WorkspaceID: f.ws.ID, Name: "Dana Reyes", Email: "dana@example.com",
	})
	require.NoError(t, err)
	require.False(t, again.ContactCreated)
	require.Equal(t, res.Contact.ID, again.Contact.ID)
	require.Equal(t, "Dana Reyes", again.Contact.Name)

	_, err = f.svc.RegisterLead(ctx, LeadParams{WorkspaceID: f.ws.ID, Name: "Nameless"})
	require.True(t, core.IsValidation(err), "got %v", err)
}
