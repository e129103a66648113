package automation

import (
	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
)

// Event carries a dispatch name plus the state the handler needs. Only the
// fields relevant to the event are set; the constructors below are the
// supported shapes.
type Event struct {
	Name        string
	WorkspaceID uuid.UUID

	Contact      *models.Contact
	Conversation *models.Conversation
	Booking      *models.Booking
	ServiceType  *models.ServiceType
	Item         *models.InventoryItem
}

func ContactCreated(workspaceID uuid.UUID, contact models.Contact, conv models.Conversation) Event {
	return Event{
		Name:         core.EventContactCreated,
		WorkspaceID:  workspaceID,
		Contact:      &contact,
		Conversation: &conv,
	}
}

func BookingCreated(workspaceID uuid.UUID, b models.Booking, contact models.Contact, conv models.Conversation, st models.ServiceType) Event {
	return Event{
		Name:         core.EventBookingCreated,
		WorkspaceID:  workspaceID,
		Booking:      &b,
		Contact:      &contact,
		Conversation: &conv,
		ServiceType:  &st,
	}
}

func StaffReplied(workspaceID uuid.UUID, conv models.Conversation) Event {
	return Event{
		Name:         core.EventStaffReplied,
		WorkspaceID:  workspaceID,
		Conversation: &conv,
	}
}

func InventoryLow(workspaceID uuid.UUID, item models.InventoryItem) Event {
	return Event{
		Name:        core.EventInventoryLow,
		WorkspaceID: workspaceID,
		Item:        &item,
	}
}

// webhookData is the event-specific "data" object in the webhook envelope.
func (e Event) webhookData() map[string]any {
	switch e.Name {
	case core.EventContactCreated:
		return map[string]any{
			"contact": contactData(e.Contact),
		}
	case core.EventBookingCreated:
		data := map[string]any{
			"booking": map[string]any{
				"id":            e.Booking.ID,
				"serviceTypeId": e.Booking.ServiceTypeID,
				"startTime":     e.Booking.StartTime,
				"endTime":       e.Booking.EndTime,
				"status":        e.Booking.Status,
			},
			"contact": contactData(e.Contact),
		}
		if e.ServiceType != nil {
			data["service"] = map[string]any{"id": e.ServiceType.ID, "name": e.ServiceType.Name}
		}
		return data
	case core.EventInventoryLow:
		return map[string]any{
			"item": map[string]any{
				"id":        e.Item.ID,
				"name":      e.Item.Name,
				"quantity":  e.Item.Quantity,
				"threshold": e.Item.Threshold,
				"unit":      e.Item.Unit,
			},
		}
	default:
		return map[string]any{}
	}
}

func contactData(c *models.Contact) map[string]any {
	if c == nil {
		return nil
	}
	return map[string]any{
		"id":     c.ID,
		"name":   c.Name,
		"email":  c.Email,
		"phone":  c.Phone,
		"source": c.Source,
	}
}
