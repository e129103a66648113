// Package memory is the in-memory store implementation. It backs the test
// suite and the STORE=memory demo mode; it is not meant to survive a restart.
//
// All reads return copies and all updates replace whole elements, so a
// snapshot taken by InTx can roll the state back with plain slice copies.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/store"
)

type state struct {
	workspaces    []models.Workspace
	users         []models.User
	serviceTypes  []models.ServiceType
	availability  []models.Availability
	contacts      []models.Contact
	conversations []models.Conversation
	messages      []models.Message
	bookings      []models.Booking
	templates     []models.FormTemplate
	submissions   []models.FormSubmission
	inventory     []models.InventoryItem
	alerts        []models.Alert
	logs          []models.AutomationLog
	integrations  []models.Integration
}

func (st state) clone() state {
	return state{
		workspaces:    append([]models.Workspace(nil), st.workspaces...),
		users:         append([]models.User(nil), st.users...),
		serviceTypes:  append([]models.ServiceType(nil), st.serviceTypes...),
		availability:  append([]models.Availability(nil), st.availability...),
		contacts:      append([]models.Contact(nil), st.contacts...),
		conversations: append([]models.Conversation(nil), st.conversations...),
		messages:      append([]models.Message(nil), st.messages...),
		bookings:      append([]models.Booking(nil), st.bookings...),
		templates:     append([]models.FormTemplate(nil), st.templates...),
		submissions:   append([]models.FormSubmission(nil), st.submissions...),
		inventory:     append([]models.InventoryItem(nil), st.inventory...),
		alerts:        append([]models.Alert(nil), st.alerts...),
		logs:          append([]models.AutomationLog(nil), st.logs...),
		integrations:  append([]models.Integration(nil), st.integrations...),
	}
}

// Store holds everything behind one mutex. Public methods lock, do their
// work through the unexported twins, and unlock; InTx holds the lock for
// the whole callback so the transactional view never locks again.
type Store struct {
	mu sync.Mutex
	state
}

func New() *Store { return &Store{} }

var (
	_ store.Store = (*Store)(nil)
	_ store.Store = (*txView)(nil)
)

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// --- workspaces ---

func (s *Store) CreateWorkspace(ctx context.Context, w *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createWorkspace(w)
}

func (s *Store) createWorkspace(w *models.Workspace) error {
	ensureID(&w.ID)
	stamp(&w.CreatedAt)
	stamp(&w.UpdatedAt)
	s.workspaces = append(s.workspaces, *w)
	return nil
}

func (s *Store) GetWorkspace(ctx context.Context, id uuid.UUID) (models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getWorkspace(id)
}

func (s *Store) getWorkspace(id uuid.UUID) (models.Workspace, error) {
	for _, w := range s.workspaces {
		if w.ID == id {
			return w, nil
		}
	}
	return models.Workspace{}, core.NotFoundf("workspace %s", id)
}

func (s *Store) UpdateWorkspace(ctx context.Context, w *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateWorkspace(w)
}

func (s *Store) updateWorkspace(w *models.Workspace) error {
	for i := range s.workspaces {
		if s.workspaces[i].ID == w.ID {
			w.UpdatedAt = time.Now().UTC()
			s.workspaces[i] = *w
			return nil
		}
	}
	return core.NotFoundf("workspace %s", w.ID)
}

func (s *Store) ListActiveWorkspaces(ctx context.Context) ([]models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listActiveWorkspaces()
}

func (s *Store) listActiveWorkspaces() ([]models.Workspace, error) {
	var out []models.Workspace
	for _, w := range s.workspaces {
		if w.Active {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUser(u)
}

func (s *Store) createUser(u *models.User) error {
	ensureID(&u.ID)
	stamp(&u.CreatedAt)
	s.users = append(s.users, *u)
	return nil
}

func (s *Store) ListUsers(ctx context.Context, workspaceID uuid.UUID) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listUsers(workspaceID)
}

func (s *Store) listUsers(workspaceID uuid.UUID) ([]models.User, error) {
	var out []models.User
	for _, u := range s.users {
		if u.WorkspaceID == workspaceID {
			out = append(out, u)
		}
	}
	return out, nil
}

// --- catalog ---

func (s *Store) CreateServiceType(ctx context.Context, st *models.ServiceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createServiceType(st)
}

func (s *Store) createServiceType(st *models.ServiceType) error {
	ensureID(&st.ID)
	stamp(&st.CreatedAt)
	stamp(&st.UpdatedAt)
	s.serviceTypes = append(s.serviceTypes, *st)
	return nil
}

func (s *Store) GetServiceType(ctx context.Context, workspaceID, id uuid.UUID) (models.ServiceType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getServiceType(workspaceID, id)
}

func (s *Store) getServiceType(workspaceID, id uuid.UUID) (models.ServiceType, error) {
	for _, st := range s.serviceTypes {
		if st.WorkspaceID == workspaceID && st.ID == id {
			return st, nil
		}
	}
	return models.ServiceType{}, core.NotFoundf("service type %s", id)
}

func (s *Store) ListServiceTypes(ctx context.Context, workspaceID uuid.UUID) ([]models.ServiceType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listServiceTypes(workspaceID)
}

func (s *Store) listServiceTypes(workspaceID uuid.UUID) ([]models.ServiceType, error) {
	var out []models.ServiceType
	for _, st := range s.serviceTypes {
		if st.WorkspaceID == workspaceID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Store) CreateAvailability(ctx context.Context, a *models.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAvailability(a)
}

func (s *Store) createAvailability(a *models.Availability) error {
	ensureID(&a.ID)
	stamp(&a.CreatedAt)
	s.availability = append(s.availability, *a)
	return nil
}

func (s *Store) ListAvailability(ctx context.Context, workspaceID, serviceTypeID uuid.UUID) ([]models.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listAvailability(workspaceID, serviceTypeID)
}

func (s *Store) listAvailability(workspaceID, serviceTypeID uuid.UUID) ([]models.Availability, error) {
	var out []models.Availability
	for _, a := range s.availability {
		if a.WorkspaceID == workspaceID && a.ServiceTypeID == serviceTypeID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListWorkspaceAvailability(ctx context.Context, workspaceID uuid.UUID) ([]models.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listWorkspaceAvailability(workspaceID)
}

func (s *Store) listWorkspaceAvailability(workspaceID uuid.UUID) ([]models.Availability, error) {
	var out []models.Availability
	for _, a := range s.availability {
		if a.WorkspaceID == workspaceID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- contacts and conversations ---

func (s *Store) CreateContact(ctx context.Context, c *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createContact(c)
}

func (s *Store) createContact(c *models.Contact) error {
	ensureID(&c.ID)
	stamp(&c.CreatedAt)
	stamp(&c.UpdatedAt)
	s.contacts = append(s.contacts, *c)
	return nil
}

func (s *Store) UpdateContact(ctx context.Context, c *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateContact(c)
}

func (s *Store) updateContact(c *models.Contact) error {
	for i := range s.contacts {
		if s.contacts[i].ID == c.ID && s.contacts[i].WorkspaceID == c.WorkspaceID {
			c.UpdatedAt = time.Now().UTC()
			s.contacts[i] = *c
			return nil
		}
	}
	return core.NotFoundf("contact %s", c.ID)
}

func (s *Store) GetContact(ctx context.Context, workspaceID, id uuid.UUID) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getContact(workspaceID, id)
}

func (s *Store) getContact(workspaceID, id uuid.UUID) (models.Contact, error) {
	for _, c := range s.contacts {
		if c.WorkspaceID == workspaceID && c.ID == id {
			return c, nil
		}
	}
	return models.Contact{}, core.NotFoundf("contact %s", id)
}

func (s *Store) FindContactByEmail(ctx context.Context, workspaceID uuid.UUID, email string) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findContactByEmail(workspaceID, email)
}

func (s *Store) findContactByEmail(workspaceID uuid.UUID, email string) (models.Contact, error) {
	if email == "" {
		return models.Contact{}, core.NotFoundf("contact by email")
	}
	for _, c := range s.contacts {
		if c.WorkspaceID == workspaceID && strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return models.Contact{}, core.NotFoundf("contact %q", email)
}

func (s *Store) FindContactByPhone(ctx context.Context, workspaceID uuid.UUID, phone string) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findContactByPhone(workspaceID, phone)
}

func (s *Store) findContactByPhone(workspaceID uuid.UUID, phone string) (models.Contact, error) {
	if phone == "" {
		return models.Contact{}, core.NotFoundf("contact by phone")
	}
	for _, c := range s.contacts {
		if c.WorkspaceID == workspaceID && c.Phone == phone {
			return c, nil
		}
	}
	return models.Contact{}, core.NotFoundf("contact %q", phone)
}

func (s *Store) GetOrCreateConversation(ctx context.Context, workspaceID, contactID uuid.UUID) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateConversation(workspaceID, contactID)
}

func (s *Store) getOrCreateConversation(workspaceID, contactID uuid.UUID) (models.Conversation, error) {
	for _, c := range s.conversations {
		if c.WorkspaceID == workspaceID && c.ContactID == contactID {
			return c, nil
		}
	}
	c := models.Conversation{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		ContactID:   contactID,
		Status:      models.ConversationOpen,
	}
	stamp(&c.CreatedAt)
	stamp(&c.UpdatedAt)
	s.conversations = append(s.conversations, c)
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, workspaceID, id uuid.UUID) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getConversation(workspaceID, id)
}

func (s *Store) getConversation(workspaceID, id uuid.UUID) (models.Conversation, error) {
	for _, c := range s.conversations {
		if c.WorkspaceID == workspaceID && c.ID == id {
			return c, nil
		}
	}
	return models.Conversation{}, core.NotFoundf("conversation %s", id)
}

func (s *Store) UpdateConversation(ctx context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateConversation(c)
}

func (s *Store) updateConversation(c *models.Conversation) error {
	for i := range s.conversations {
		if s.conversations[i].ID == c.ID && s.conversations[i].WorkspaceID == c.WorkspaceID {
			c.UpdatedAt = time.Now().UTC()
			s.conversations[i] = *c
			return nil
		}
	}
	return core.NotFoundf("conversation %s", c.ID)
}

func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMessage(m)
}

func (s *Store) appendMessage(m *models.Message) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	stamp(&m.CreatedAt)
	s.messages = append(s.messages, *m)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, workspaceID, conversationID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listMessages(workspaceID, conversationID)
}

func (s *Store) listMessages(workspaceID, conversationID uuid.UUID) ([]models.Message, error) {
	var out []models.Message
	for _, m := range s.messages {
		if m.WorkspaceID == workspaceID && m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- bookings ---

func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBooking(b)
}

// createBooking mirrors the partial unique index the postgres schema puts on
// (service_type_id, start_time) for non-cancelled rows.
func (s *Store) createBooking(b *models.Booking) error {
	for _, e := range s.bookings {
		if e.ServiceTypeID == b.ServiceTypeID && e.Status != models.BookingCancelled && e.StartTime.Equal(b.StartTime) {
			return core.Conflictf("slot %s already booked", b.StartTime.Format(time.RFC3339))
		}
	}
	ensureID(&b.ID)
	stamp(&b.CreatedAt)
	stamp(&b.UpdatedAt)
	s.bookings = append(s.bookings, *b)
	return nil
}

func (s *Store) GetBooking(ctx context.Context, workspaceID, id uuid.UUID) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBooking(workspaceID, id)
}

func (s *Store) getBooking(workspaceID, id uuid.UUID) (models.Booking, error) {
	for _, b := range s.bookings {
		if b.WorkspaceID == workspaceID && b.ID == id {
			return b, nil
		}
	}
	return models.Booking{}, core.NotFoundf("booking %s", id)
}

func (s *Store) UpdateBookingStatus(ctx context.Context, workspaceID, id uuid.UUID, status models.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBookingStatus(workspaceID, id, status)
}

func (s *Store) updateBookingStatus(workspaceID, id uuid.UUID, status models.BookingStatus) error {
	for i := range s.bookings {
		if s.bookings[i].WorkspaceID == workspaceID && s.bookings[i].ID == id {
			s.bookings[i].Status = status
			s.bookings[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return core.NotFoundf("booking %s", id)
}

func (s *Store) ListBookingsInRange(ctx context.Context, workspaceID, serviceTypeID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listBookingsInRange(workspaceID, serviceTypeID, from, to)
}

func (s *Store) listBookingsInRange(workspaceID, serviceTypeID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range s.bookings {
		if b.WorkspaceID != workspaceID || b.ServiceTypeID != serviceTypeID {
			continue
		}
		if b.Status == models.BookingCancelled {
			continue
		}
		if b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listConfirmedStartingBetween(from, to)
}

func (s *Store) listConfirmedStartingBetween(from, to time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range s.bookings {
		if b.Status != models.BookingConfirmed {
			continue
		}
		if !b.StartTime.Before(from) && b.StartTime.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

// --- forms ---

func (s *Store) CreateFormTemplate(ctx context.Context, t *models.FormTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createFormTemplate(t)
}

func (s *Store) createFormTemplate(t *models.FormTemplate) error {
	ensureID(&t.ID)
	stamp(&t.CreatedAt)
	s.templates = append(s.templates, *t)
	return nil
}

func (s *Store) GetFormTemplate(ctx context.Context, workspaceID, id uuid.UUID) (models.FormTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getFormTemplate(workspaceID, id)
}

func (s *Store) getFormTemplate(workspaceID, id uuid.UUID) (models.FormTemplate, error) {
	for _, t := range s.templates {
		if t.WorkspaceID == workspaceID && t.ID == id {
			return t, nil
		}
	}
	return models.FormTemplate{}, core.NotFoundf("form template %s", id)
}

func (s *Store) ListFormTemplatesForService(ctx context.Context, workspaceID, serviceTypeID uuid.UUID) ([]models.FormTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listFormTemplatesForService(workspaceID, serviceTypeID)
}

func (s *Store) listFormTemplatesForService(workspaceID, serviceTypeID uuid.UUID) ([]models.FormTemplate, error) {
	var out []models.FormTemplate
	for _, t := range s.templates {
		if t.WorkspaceID == workspaceID && t.ServiceTypeID != nil && *t.ServiceTypeID == serviceTypeID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) CreateFormSubmission(ctx context.Context, sub *models.FormSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createFormSubmission(sub)
}

func (s *Store) createFormSubmission(sub *models.FormSubmission) error {
	ensureID(&sub.ID)
	if sub.Status == "" {
		sub.Status = models.FormPending
	}
	stamp(&sub.CreatedAt)
	s.submissions = append(s.submissions, *sub)
	return nil
}

func (s *Store) GetFormSubmission(ctx context.Context, id uuid.UUID) (models.FormSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getFormSubmission(id)
}

func (s *Store) getFormSubmission(id uuid.UUID) (models.FormSubmission, error) {
	for _, sub := range s.submissions {
		if sub.ID == id {
			return sub, nil
		}
	}
	return models.FormSubmission{}, core.NotFoundf("form submission %s", id)
}

func (s *Store) ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]models.FormSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPendingDueBefore(cutoff)
}

func (s *Store) listPendingDueBefore(cutoff time.Time) ([]models.FormSubmission, error) {
	var out []models.FormSubmission
	for _, sub := range s.submissions {
		if sub.Status == models.FormPending && sub.DueDate.Before(cutoff) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) MarkFormSubmissionOverdue(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markFormSubmissionOverdue(id)
}

func (s *Store) markFormSubmissionOverdue(id uuid.UUID) (bool, error) {
	for i := range s.submissions {
		if s.submissions[i].ID != id {
			continue
		}
		if s.submissions[i].Status != models.FormPending {
			return false, nil
		}
		s.submissions[i].Status = models.FormOverdue
		return true, nil
	}
	return false, core.NotFoundf("form submission %s", id)
}

func (s *Store) CompleteFormSubmission(ctx context.Context, id uuid.UUID, answers map[string]string, submittedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeFormSubmission(id, answers, submittedAt)
}

func (s *Store) completeFormSubmission(id uuid.UUID, answers map[string]string, submittedAt time.Time) (bool, error) {
	for i := range s.submissions {
		if s.submissions[i].ID != id {
			continue
		}
		if s.submissions[i].Status == models.FormCompleted {
			return false, nil
		}
		cp := make(map[string]string, len(answers))
		for k, v := range answers {
			cp[k] = v
		}
		at := submittedAt
		s.submissions[i].Status = models.FormCompleted
		s.submissions[i].Answers = cp
		s.submissions[i].SubmittedAt = &at
		return true, nil
	}
	return false, core.NotFoundf("form submission %s", id)
}

// --- inventory ---

func (s *Store) CreateInventoryItem(ctx context.Context, i *models.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createInventoryItem(i)
}

func (s *Store) createInventoryItem(i *models.InventoryItem) error {
	ensureID(&i.ID)
	stamp(&i.CreatedAt)
	stamp(&i.UpdatedAt)
	s.inventory = append(s.inventory, *i)
	return nil
}

func (s *Store) GetInventoryItem(ctx context.Context, workspaceID, id uuid.UUID) (models.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getInventoryItem(workspaceID, id)
}

func (s *Store) getInventoryItem(workspaceID, id uuid.UUID) (models.InventoryItem, error) {
	for _, it := range s.inventory {
		if it.WorkspaceID == workspaceID && it.ID == id {
			return it, nil
		}
	}
	return models.InventoryItem{}, core.NotFoundf("inventory item %s", id)
}

func (s *Store) UpdateInventoryItem(ctx context.Context, i *models.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateInventoryItem(i)
}

func (s *Store) updateInventoryItem(i *models.InventoryItem) error {
	for idx := range s.inventory {
		if s.inventory[idx].ID == i.ID && s.inventory[idx].WorkspaceID == i.WorkspaceID {
			i.UpdatedAt = time.Now().UTC()
			s.inventory[idx] = *i
			return nil
		}
	}
	return core.NotFoundf("inventory item %s", i.ID)
}

func (s *Store) ListLowStockItems(ctx context.Context) ([]models.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLowStockItems()
}

func (s *Store) listLowStockItems() ([]models.InventoryItem, error) {
	var out []models.InventoryItem
	for _, it := range s.inventory {
		if it.IsLowStock() {
			out = append(out, it)
		}
	}
	return out, nil
}

// --- alerts ---

func (s *Store) CreateAlert(ctx context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAlert(a)
}

func (s *Store) createAlert(a *models.Alert) error {
	if a.DedupeKey != "" {
		for _, e := range s.alerts {
			if e.WorkspaceID == a.WorkspaceID && e.DedupeKey == a.DedupeKey {
				return core.Conflictf("alert %q already raised", a.DedupeKey)
			}
		}
	}
	ensureID(&a.ID)
	stamp(&a.CreatedAt)
	s.alerts = append(s.alerts, *a)
	return nil
}

func (s *Store) HasAlertWithDedupeKey(ctx context.Context, workspaceID uuid.UUID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasAlertWithDedupeKey(workspaceID, key)
}

func (s *Store) hasAlertWithDedupeKey(workspaceID uuid.UUID, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	for _, a := range s.alerts {
		if a.WorkspaceID == workspaceID && a.DedupeKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListAlerts(ctx context.Context, workspaceID uuid.UUID) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listAlerts(workspaceID)
}

func (s *Store) listAlerts(workspaceID uuid.UUID) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range s.alerts {
		if a.WorkspaceID == workspaceID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- automation logs ---

func (s *Store) AppendAutomationLog(ctx context.Context, l *models.AutomationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAutomationLog(l)
}

func (s *Store) appendAutomationLog(l *models.AutomationLog) error {
	if l.ID == "" {
		l.ID = ulid.Make().String()
	}
	stamp(&l.CreatedAt)
	s.logs = append(s.logs, *l)
	return nil
}

func (s *Store) HasAutomationLogSince(ctx context.Context, workspaceID uuid.UUID, event string, contactID *uuid.UUID, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasAutomationLogSince(workspaceID, event, contactID, since)
}

func (s *Store) hasAutomationLogSince(workspaceID uuid.UUID, event string, contactID *uuid.UUID, since time.Time) (bool, error) {
	for _, l := range s.logs {
		if l.WorkspaceID != workspaceID || l.Event != event {
			continue
		}
		if l.CreatedAt.Before(since) {
			continue
		}
		if contactID != nil && (l.ContactID == nil || *l.ContactID != *contactID) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *Store) ListAutomationLogs(ctx context.Context, workspaceID uuid.UUID) ([]models.AutomationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listAutomationLogs(workspaceID)
}

func (s *Store) listAutomationLogs(workspaceID uuid.UUID) ([]models.AutomationLog, error) {
	var out []models.AutomationLog
	for _, l := range s.logs {
		if l.WorkspaceID == workspaceID {
			out = append(out, l)
		}
	}
	return out, nil
}

// --- integrations ---

func (s *Store) UpsertIntegration(ctx context.Context, i *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertIntegration(i)
}

func (s *Store) upsertIntegration(i *models.Integration) error {
	if i.ID != uuid.Nil {
		for idx := range s.integrations {
			if s.integrations[idx].ID == i.ID && s.integrations[idx].WorkspaceID == i.WorkspaceID {
				i.UpdatedAt = time.Now().UTC()
				s.integrations[idx] = *i
				return nil
			}
		}
	}
	// WEBHOOK rows multiply; every other kind is one per workspace.
	if i.Kind != models.IntegrationWebhook {
		for idx := range s.integrations {
			if s.integrations[idx].WorkspaceID == i.WorkspaceID && s.integrations[idx].Kind == i.Kind {
				i.ID = s.integrations[idx].ID
				i.CreatedAt = s.integrations[idx].CreatedAt
				i.UpdatedAt = time.Now().UTC()
				s.integrations[idx] = *i
				return nil
			}
		}
	}
	ensureID(&i.ID)
	stamp(&i.CreatedAt)
	stamp(&i.UpdatedAt)
	s.integrations = append(s.integrations, *i)
	return nil
}

func (s *Store) ListActiveIntegrations(ctx context.Context, workspaceID uuid.UUID, kind models.IntegrationKind) ([]models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listActiveIntegrations(workspaceID, kind)
}

func (s *Store) listActiveIntegrations(workspaceID uuid.UUID, kind models.IntegrationKind) ([]models.Integration, error) {
	var out []models.Integration
	for _, i := range s.integrations {
		if i.WorkspaceID == workspaceID && i.Kind == kind && i.Active {
			out = append(out, i)
		}
	}
	return out, nil
}

func (s *Store) GetActiveIntegration(ctx context.Context, workspaceID uuid.UUID, kind models.IntegrationKind) (models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getActiveIntegration(workspaceID, kind)
}

func (s *Store) getActiveIntegration(workspaceID uuid.UUID, kind models.IntegrationKind) (models.Integration, error) {
	for _, i := range s.integrations {
		if i.WorkspaceID == workspaceID && i.Kind == kind && i.Active {
			return i, nil
		}
	}
	return models.Integration{}, core.NotFoundf("%s integration", kind)
}

// --- transactions ---

// InTx holds the lock for the whole callback and rolls the state back from
// a snapshot when fn fails, giving the same all-or-nothing behavior the
// postgres store gets from a real transaction.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state.clone()
	if err := fn(&txView{s: s}); err != nil {
		s.state = snap
		return err
	}
	return nil
}

// txView is the lock-free view handed to InTx callbacks.
type txView struct {
	s *Store
}

func (t *txView) CreateWorkspace(ctx context.Context, w *models.Workspace) error {
	return t.s.createWorkspace(w)
}

func (t *txView) GetWorkspace(ctx context.Context, id uuid.UUID) (models.Workspace, error) {
	return t.s.getWorkspace(id)
}

func (t *txView) UpdateWorkspace(ctx context.Context, w *models.Workspace) error {
	return t.s.updateWorkspace(w)
}

func (t *txView) ListActiveWorkspaces(ctx context.Context) ([]models.Workspace, error) {
	return t.s.listActiveWorkspaces()
}

func (t *txView) CreateUser(ctx context.Context, u *models.User) error {
	return t.s.createUser(u)
}

func (t *txView) ListUsers(ctx context.Context, workspaceID uuid.UUID) ([]models.User, error) {
	return t.s.listUsers(workspaceID)
}

func (t *txView) CreateServiceType(ctx context.Context, st *models.ServiceType) error {
	return t.s.createServiceType(st)
}

func (t *txView) GetServiceType(ctx context.Context, workspaceID, id uuid.UUID) (models.ServiceType, error) {
	return t.s.getServiceType(workspaceID, id)
}

func (t *txView) ListServiceTypes(ctx context.Context, workspaceID uuid.UUID) ([]models.ServiceType, error) {
	return t.s.listServiceTypes(workspaceID)
}

func (t *txView) CreateAvailability(ctx context.Context, a *models.Availability) error {
	return t.s.createAvailability(a)
}

func (t *txView) ListAvailability(ctx context.Context, workspaceID, serviceTypeID uuid.UUID) ([]models.Availability, error) {
	return t.s.listAvailability(workspaceID, serviceTypeID)
}

func (t *txView) ListWorkspaceAvailability(ctx context.Context, workspaceID uuid.UUID) ([]models.Availability, error) {
	return t.s.listWorkspaceAvailability(workspaceID)
}

func (t *txView) CreateContact(ctx context.Context, c *models.Contact) error {
	return t.s.createContact(c)
}

func (t *txView) UpdateContact(ctx context.Context, c *models.Contact) error {
	return t.s.updateContact(c)
}

func (t *txView) GetContact(ctx context.Context, workspaceID, id uuid.UUID) (models.Contact, error) {
	return t.s.getContact(workspaceID, id)
}

func (t *txView) FindContactByEmail(ctx context.Context, workspaceID uuid.UUID, email string) (models.Contact, error) {
	return t.s.findContactByEmail(workspaceID, email)
}

func (t *txView) FindContactByPhone(ctx context.Context, workspaceID uuid.UUID, phone string) (models.Contact, error) {
	return t.s.findContactByPhone(workspaceID, phone)
}

func (t *txView) GetOrCreateConversation(ctx context.Context, workspaceID, contactID uuid.UUID) (models.Conversation, error) {
	return t.s.getOrCreateConversation(workspaceID, contactID)
}

func (t *txView) GetConversation(ctx context.Context, workspaceID, id uuid.UUID) (models.Conversation, error) {
	return t.s.getConversation(workspaceID, id)
}

func (t *txView) UpdateConversation(ctx context.Context, c *models.Conversation) error {
	return t.s.updateConversation(c)
}

func (t *txView) AppendMessage(ctx context.Context, m *models.Message) error {
	return t.s.appendMessage(m)
}

func (t *txView) ListMessages(ctx context.Context, workspaceID, conversationID uuid.UUID) ([]models.Message, error) {
	return t.s.listMessages(workspaceID, conversationID)
}

func (t *txView) CreateBooking(ctx context.Context, b *models.Booking) error {
	return t.s.createBooking(b)
}

func (t *txView) GetBooking(ctx context.Context, workspaceID, id uuid.UUID) (models.Booking, error) {
	return t.s.getBooking(workspaceID, id)
}

func (t *txView) UpdateBookingStatus(ctx context.Context, workspaceID, id uuid.UUID, status models.BookingStatus) error {
	return t.s.updateBookingStatus(workspaceID, id, status)
}

func (t *txView) ListBookingsInRange(ctx context.Context, workspaceID, serviceTypeID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	return t.s.listBookingsInRange(workspaceID, serviceTypeID, from, to)
}

func (t *txView) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	return t.s.listConfirmedStartingBetween(from, to)
}

func (t *txView) CreateFormTemplate(ctx context.Context, tmpl *models.FormTemplate) error {
	return t.s.createFormTemplate(tmpl)
}

func (t *txView) GetFormTemplate(ctx context.Context, workspaceID, id uuid.UUID) (models.FormTemplate, error) {
	return t.s.getFormTemplate(workspaceID, id)
}

func (t *txView) ListFormTemplatesForService(ctx context.Context, workspaceID, serviceTypeID uuid.UUID) ([]models.FormTemplate, error) {
	return t.s.listFormTemplatesForService(workspaceID, serviceTypeID)
}

func (t *txView) CreateFormSubmission(ctx context.Context, sub *models.FormSubmission) error {
	return t.s.createFormSubmission(sub)
}

func (t *txView) GetFormSubmission(ctx context.Context, id uuid.UUID) (models.FormSubmission, error) {
	return t.s.getFormSubmission(id)
}

func (t *txView) ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]models.FormSubmission, error) {
	return t.s.listPendingDueBefore(cutoff)
}

func (t *txView) MarkFormSubmissionOverdue(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.s.markFormSubmissionOverdue(id)
}

func (t *txView) CompleteFormSubmission(ctx context.Context, id uuid.UUID, answers map[string]string, submittedAt time.Time) (bool, error) {
	return t.s.completeFormSubmission(id, answers, submittedAt)
}

func (t *txView) CreateInventoryItem(ctx context.Context, i *models.InventoryItem) error {
	return t.s.createInventoryItem(i)
}

func (t *txView) GetInventoryItem(ctx context.Context, workspaceID, id uuid.UUID) (models.InventoryItem, error) {
	return t.s.getInventoryItem(workspaceID, id)
}

func (t *txView) UpdateInventoryItem(ctx context.Context, i *models.InventoryItem) error {
	return t.s.updateInventoryItem(i)
}

func (t *txView) ListLowStockItems(ctx context.Context) ([]models.InventoryItem, error) {
	return t.s.listLowStockItems()
}

func (t *txView) CreateAlert(ctx context.Context, a *models.Alert) error {
	return t.s.createAlert(a)
}

func (t *txView) HasAlertWithDedupeKey(ctx context.Context, workspaceID uuid.UUID, key string) (bool, error) {
	return t.s.hasAlertWithDedupeKey(workspaceID, key)
}

func (t *txView) ListAlerts(ctx context.Context, workspaceID uuid.UUID) ([]models.Alert, error) {
	return t.s.listAlerts(workspaceID)
}

func (t *txView) AppendAutomationLog(ctx context.Context, l *models.AutomationLog) error {
	return t.s.appendAutomationLog(l)
}

func (t *txView) HasAutomationLogSince(ctx context.Context, workspaceID uuid.UUID, event string, contactID *uuid.UUID, since time.Time) (bool, error) {
	return t.s.hasAutomationLogSince(workspaceID, event, contactID, since)
}

func (t *txView) ListAutomationLogs(ctx context.Context, workspaceID uuid.UUID) ([]models.AutomationLog, error) {
	return t.s.listAutomationLogs(workspaceID)
}

func (t *txView) UpsertIntegration(ctx context.Context, i *models.Integration) error {
	return t.s.upsertIntegration(i)
}

func (t *txView) ListActiveIntegrations(ctx context.Context, workspaceID uuid.UUID, kind models.IntegrationKind) ([]models.Integration, error) {
	return t.s.listActiveIntegrations(workspaceID, kind)
}

func (t *txView) GetActiveIntegration(ctx context.Context, workspaceID uuid.UUID, kind models.IntegrationKind) (models.Integration, error) {
	return t.s.getActiveIntegration(workspaceID, kind)
}

// InTx on an open transaction reuses it; there are no savepoints.
func (t *txView) InTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(t)
}
