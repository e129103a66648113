package core

// Automation event names. Dispatcher handlers are registered under the first
// four; the rest only appear as AutomationLog event keys written by sweeps and
// the form-completion path.
const (
	EventContactCreated = "contact.created"
	EventBookingCreated = "booking.created"
	EventStaffReplied   = "staff.replied"
	EventInventoryLow   = "inventory.low"

	EventBookingReminder = "booking.reminder"
	EventDailySummary    = "booking.daily_summary"
	EventFormOverdue     = "form.overdue"
	EventFormSubmitted   = "form.submitted"
)
