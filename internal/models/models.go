// Package models holds the persistence-backed entities shared across the
// booking, automation, and sweep layers. All entities are scoped by
// WorkspaceID; cross-workspace reads or writes are never valid.
package models

import (
	"time"

	"github.com/google/uuid"
)

type Workspace struct {
	ID             uuid.UUID
	Name           string
	Timezone       string // IANA name, informational for wall-clock math
	Active         bool
	OnboardingStep int
	DigestHour     int // workspace-local hour for the daily digest
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Location resolves the workspace timezone, falling back to UTC when the
// stored name is empty or invalid.
func (w Workspace) Location() *time.Location {
	if w.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type UserRole string

const (
	RoleOwner UserRole = "OWNER"
	RoleStaff UserRole = "STAFF"
)

// User is a staff member of a workspace. Authentication is handled outside
// this module; the password hash is written once at provisioning.
type User struct {
	ID           uuid.UUID
	WorkspaceID  uuid.UUID
	Email        string
	Name         string
	Role         UserRole
	PasswordHash string
	CreatedAt    time.Time
}

type ServiceType struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	DurationMin int // minutes, > 0
	PriceCents  int64
	Location    string // optional
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Availability is one recurring weekly window for a service type. Times are
// local wall-clock "HH:MM" strings; Weekday follows time.Weekday numbering
// (0 = Sunday). StartTime < EndTime on the same day. Overlap between windows
// of the same day is the caller's problem, not enforced here.
type Availability struct {
	ID            uuid.UUID
	WorkspaceID   uuid.UUID
	ServiceTypeID uuid.UUID
	Weekday       int
	StartTime     string
	EndTime       string
	CreatedAt     time.Time
}

type Contact struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	Email       string
	Phone       string
	Source      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ConversationStatus string

const ConversationOpen ConversationStatus = "open"

// Conversation is the single message thread for a (workspace, contact) pair.
// AutomationPaused flips to true when a staff member replies and suppresses
// only the automated welcome path.
type Conversation struct {
	ID               uuid.UUID
	WorkspaceID      uuid.UUID
	ContactID        uuid.UUID
	Status           ConversationStatus
	AutomationPaused bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "INBOUND"
	DirectionOutbound MessageDirection = "OUTBOUND"
)

type MessageChannel string

const (
	ChannelEmail    MessageChannel = "EMAIL"
	ChannelWhatsApp MessageChannel = "WHATSAPP"
	ChannelSystem   MessageChannel = "SYSTEM"
)

// Message is an immutable entry in a conversation timeline. IDs are ULIDs so
// lexical order is append order.
type Message struct {
	ID             string
	WorkspaceID    uuid.UUID
	ConversationID uuid.UUID
	Direction      MessageDirection
	Channel        MessageChannel
	Content        string
	Meta           map[string]string
	CreatedAt      time.Time
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingNoShow    BookingStatus = "NO_SHOW"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking is a scheduled appointment. EndTime = StartTime + service duration.
// Cancelled bookings do not count for overlap checks.
type Booking struct {
	ID            uuid.UUID
	WorkspaceID   uuid.UUID
	ContactID     uuid.UUID
	ServiceTypeID uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
	Status        BookingStatus
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type FormField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Kind     string `json:"kind"` // text, textarea, select, checkbox
	Required bool   `json:"required"`
}

type FormTemplate struct {
	ID            uuid.UUID
	WorkspaceID   uuid.UUID
	ServiceTypeID *uuid.UUID // optional link; linked templates spawn submissions on booking
	Name          string
	Fields        []FormField
	CreatedAt     time.Time
}

type FormStatus string

const (
	FormPending   FormStatus = "PENDING"
	FormCompleted FormStatus = "COMPLETED"
	FormOverdue   FormStatus = "OVERDUE"
)

type FormSubmission struct {
	ID             uuid.UUID
	WorkspaceID    uuid.UUID
	FormTemplateID uuid.UUID
	ContactID      uuid.UUID
	BookingID      *uuid.UUID
	Status         FormStatus
	DueDate        time.Time
	Answers        map[string]string
	SubmittedAt    *time.Time
	CreatedAt      time.Time
}

type InventoryItem struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	Quantity    int
	Threshold   int
	Unit        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsLowStock is derived, never stored.
func (i InventoryItem) IsLowStock() bool { return i.Quantity <= i.Threshold }

type AlertType string

const (
	AlertNewLead          AlertType = "NEW_LEAD"
	AlertNewBooking       AlertType = "NEW_BOOKING"
	AlertLowInventory     AlertType = "LOW_INVENTORY"
	AlertFormOverdue      AlertType = "FORM_OVERDUE"
	AlertFormSubmitted    AlertType = "FORM_SUBMITTED"
	AlertAutomationFailed AlertType = "AUTOMATION_FAILED"
)

// Alert is the durable in-app notification record. DedupeKey carries the
// structured guard (workspace/type/subject/day) used by sweeps to avoid
// re-raising the same condition.
type Alert struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Type        AlertType
	Message     string
	Link        string
	Read        bool
	DedupeKey   string
	CreatedAt   time.Time
}

type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
)

// AutomationLog is the append-only ledger of automation and notification
// attempts. Besides observability it is the de-duplication source for the
// time-windowed sweeps, so guard queries must read it from the shared store,
// never from process memory. IDs are ULIDs.
type AutomationLog struct {
	ID          string
	WorkspaceID uuid.UUID
	Event       string
	Action      string
	ContactID   *uuid.UUID
	Status      LogStatus
	Details     string
	CreatedAt   time.Time
}
