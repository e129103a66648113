// Package store defines the persistence boundary for the booking and
// automation core. Implementations: store/postgres for production,
// store/memory for tests and single-process demo mode.
//
// Every query is workspace-scoped unless it exists for a cross-workspace
// background sweep, and those are called out explicitly. Missing rows are
// reported as core.ErrNotFound; unique-key races as core.ErrConflict.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/models"
)

type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, w *models.Workspace) error
	GetWorkspace(ctx context.Context, id uuid.UUID) (models.Workspace, error)
	UpdateWorkspace(ctx context.Context, w *models.Workspace) error
	// ListActiveWorkspaces exists for the daily digest sweep.
	ListActiveWorkspaces(ctx context.Context) ([]models.Workspace, error)

	CreateUser(ctx context.Context, u *models.User) error
	// ListUsers returns the whole team, owner first.
	ListUsers(ctx context.Context, workspaceID uuid.UUID) ([]models.User, error)
}

type CatalogStore interface {
	CreateServiceType(ctx context.Context, st *models.ServiceType) error
	GetServiceType(ctx context.Context, workspaceID, id uuid.UUID) (models.ServiceType, error)
	ListServiceTypes(ctx context.Context, workspaceID uuid.UUID) ([]models.ServiceType, error)

	CreateAvailability(ctx context.Context, a *models.Availability) error
	// ListAvailability returns windows for one service type in insertion order.
	ListAvailability(ctx context.Context, workspaceID, serviceTypeID uuid.UUID) ([]models.Availability, error)
	ListWorkspaceAvailability(ctx context.Context, workspaceID uuid.UUID) ([]models.Availability, error)
}

type ContactStore interface {
	CreateContact(ctx context.Context, c *models.Contact) error
	UpdateContact(ctx context.Context, c *models.Contact) error
	GetContact(ctx context.Context, workspaceID, id uuid.UUID) (models.Contact, error)
	FindContactByEmail(ctx context.Context, workspaceID uuid.UUID, email string) (models.Contact, error)
	FindContactByPhone(ctx context.Context, workspaceID uuid.UUID, phone string) (models.Contact, error)

	// GetOrCreateConversation enforces the one-conversation-per-contact
	// invariant at the store level so concurrent callers converge on the
	// same row.
	GetOrCreateConversation(ctx context.Context, workspaceID, contactID uuid.UUID) (models.Conversation, error)
	GetConversation(ctx context.Context, workspaceID, id uuid.UUID) (models.Conversation, error)
	UpdateConversation(ctx context.Context, c *models.Conversation) error

	AppendMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, workspaceID, conversationID uuid.UUID) ([]models.Message, error)
}

type BookingStore interface {
	// CreateBooking returns core.ErrConflict when a non-cancelled booking
	// for the same service type and start time already exists.
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, workspaceID, id uuid.UUID) (models.Booking, error)
	UpdateBookingStatus(ctx context.Context, workspaceID, id uuid.UUID, status models.BookingStatus) error

	// ListBookingsInRange returns non-cancelled bookings for the service
	// type whose [StartTime, EndTime) intersects [from, to).
	ListBookingsInRange(ctx context.Context, workspaceID, serviceTypeID uuid.UUID, from, to time.Time) ([]models.Booking, error)

	// ListConfirmedStartingBetween is cross-workspace; the reminder and
	// digest sweeps group the result themselves.
	ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error)
}

type FormStore interface {
	CreateFormTemplate(ctx context.Context, t *models.FormTemplate) error
	GetFormTemplate(ctx context.Context, workspaceID, id uuid.UUID) (models.FormTemplate, error)
	// ListFormTemplatesForService returns templates linked to the service type.
	ListFormTemplatesForService(ctx context.Context, workspaceID, serviceTypeID uuid.UUID) ([]models.FormTemplate, error)

	CreateFormSubmission(ctx context.Context, s *models.FormSubmission) error
	GetFormSubmission(ctx context.Context, id uuid.UUID) (models.FormSubmission, error)
	// ListPendingDueBefore is cross-workspace, for the overdue sweep.
	ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]models.FormSubmission, error)

	// MarkFormSubmissionOverdue transitions PENDING -> OVERDUE and reports
	// whether this call performed the transition. The conditional update is
	// the sweep's idempotence guard.
	MarkFormSubmissionOverdue(ctx context.Context, id uuid.UUID) (bool, error)
	// CompleteFormSubmission transitions PENDING or OVERDUE -> COMPLETED.
	CompleteFormSubmission(ctx context.Context, id uuid.UUID, answers map[string]string, submittedAt time.Time) (bool, error)
}

type InventoryStore interface {
	CreateInventoryItem(ctx context.Context, i *models.InventoryItem) error
	GetInventoryItem(ctx context.Context, workspaceID, id uuid.UUID) (models.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, i *models.InventoryItem) error
	// ListLowStockItems is cross-workspace: every item with
	// quantity <= threshold.
	ListLowStockItems(ctx context.Context) ([]models.InventoryItem, error)
}

type AlertStore interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	HasAlertWithDedupeKey(ctx context.Context, workspaceID uuid.UUID, key string) (bool, error)
	ListAlerts(ctx context.Context, workspaceID uuid.UUID) ([]models.Alert, error)
}

type LogStore interface {
	AppendAutomationLog(ctx context.Context, l *models.AutomationLog) error
	// HasAutomationLogSince answers the sweep de-duplication question:
	// does a log row for (workspace, event, contact) exist at or after
	// since? A nil contactID skips the contact filter, which is what the
	// workspace-level digest guard wants. Must query the durable store,
	// never process memory, so the guard holds across instances.
	HasAutomationLogSince(ctx context.Context, workspaceID uuid.UUID, event string, contactID *uuid.UUID, since time.Time) (bool, error)
	ListAutomationLogs(ctx context.Context, workspaceID uuid.UUID) ([]models.AutomationLog, error)
}

type IntegrationStore interface {
	UpsertIntegration(ctx context.Context, i *models.Integration) error
	// ListActiveIntegrations returns active integrations of one kind;
	// WEBHOOK is the only kind expected to have several.
	ListActiveIntegrations(ctx context.Context, workspaceID uuid.UUID, kind models.IntegrationKind) ([]models.Integration, error)
	// GetActiveIntegration returns the first active integration of the
	// kind, or core.ErrNotFound.
	GetActiveIntegration(ctx context.Context, workspaceID uuid.UUID, kind models.IntegrationKind) (models.Integration, error)
}

// Store bundles the whole persistence surface.
type Store interface {
	WorkspaceStore
	CatalogStore
	ContactStore
	BookingStore
	FormStore
	InventoryStore
	AlertStore
	LogStore
	IntegrationStore

	// InTx runs fn against a transactional view of the store; if fn
	// returns an error nothing it wrote is visible afterwards. The booking
	// writer relies on this for its no-partial-state guarantee.
	InTx(ctx context.Context, fn func(Store) error) error
}
