// Package workspace handles tenant lifecycle: provisioning a workspace with
// its owner account, building out the bookable catalog, connecting outbound
// integrations, and deciding when the workspace has enough setup to go active.
package workspace

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
	"github.com/rajvveer/careOps/internal/schedule"
	"github.com/rajvveer/careOps/internal/store"
)

type Service struct {
	store store.Store
	log   *slog.Logger
}

func New(st store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, log: log.With(slog.String("component", "workspace"))}
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

type ProvisionParams struct {
	Name          string
	Timezone      string
	DigestHour    int
	OwnerName     string
	OwnerEmail    string
	OwnerPassword string
}

// Provision creates the workspace and its owner account in one transaction.
// The workspace starts inactive; Refresh flips it once the minimum setup
// (a communication channel, a service type, an availability window) exists.
func (s *Service) Provision(ctx context.Context, p ProvisionParams) (models.Workspace, models.User, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.OwnerEmail = normalizeEmail(p.OwnerEmail)
	if p.Name == "" {
		return models.Workspace{}, models.User{}, core.Validationf("workspace name is required")
	}
	if p.OwnerEmail == "" {
		return models.Workspace{}, models.User{}, core.Validationf("owner email is required")
	}
	if p.OwnerPassword == "" {
		return models.Workspace{}, models.User{}, core.Validationf("owner password is required")
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return models.Workspace{}, models.User{}, core.Validationf("unknown timezone %q", p.Timezone)
		}
	}
	if p.DigestHour < 0 || p.DigestHour > 23 {
		return models.Workspace{}, models.User{}, core.Validationf("digest hour must be 0-23, got %d", p.DigestHour)
	}

	hash, err := HashPassword(p.OwnerPassword)
	if err != nil {
		return models.Workspace{}, models.User{}, err
	}

	ws := models.Workspace{
		Name:       p.Name,
		Timezone:   p.Timezone,
		DigestHour: p.DigestHour,
	}
	owner := models.User{
		Email:        p.OwnerEmail,
		Name:         strings.TrimSpace(p.OwnerName),
		Role:         models.RoleOwner,
		PasswordHash: hash,
	}
	err = s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.CreateWorkspace(ctx, &ws); err != nil {
			return err
		}
		owner.WorkspaceID = ws.ID
		return tx.CreateUser(ctx, &owner)
	})
	if err != nil {
		return models.Workspace{}, models.User{}, err
	}
	s.log.Info("workspace provisioned", slog.String("workspace", ws.ID.String()), slog.String("owner", owner.Email))
	return ws, owner, nil
}

type AddStaffParams struct {
	WorkspaceID uuid.UUID
	Name        string
	Email       string
	Password    string
}

func (s *Service) AddStaff(ctx context.Context, p AddStaffParams) (models.User, error) {
	p.Email = normalizeEmail(p.Email)
	if p.Email == "" {
		return models.User{}, core.Validationf("staff email is required")
	}
	if p.Password == "" {
		return models.User{}, core.Validationf("staff password is required")
	}
	if _, err := s.store.GetWorkspace(ctx, p.WorkspaceID); err != nil {
		return models.User{}, err
	}
	hash, err := HashPassword(p.Password)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{
		WorkspaceID:  p.WorkspaceID,
		Email:        p.Email,
		Name:         strings.TrimSpace(p.Name),
		Role:         models.RoleStaff,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

type AddServiceTypeParams struct {
	WorkspaceID uuid.UUID
	Name        string
	DurationMin int
	PriceCents  int64
	Location    string
}

func (s *Service) AddServiceType(ctx context.Context, p AddServiceTypeParams) (models.ServiceType, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return models.ServiceType{}, core.Validationf("service name is required")
	}
	if p.DurationMin <= 0 {
		return models.ServiceType{}, core.Validationf("duration must be a positive number of minutes, got %d", p.DurationMin)
	}
	if p.PriceCents < 0 {
		return models.ServiceType{}, core.Validationf("price must not be negative")
	}
	if _, err := s.store.GetWorkspace(ctx, p.WorkspaceID); err != nil {
		return models.ServiceType{}, err
	}
	st := models.ServiceType{
		WorkspaceID: p.WorkspaceID,
		Name:        p.Name,
		DurationMin: p.DurationMin,
		PriceCents:  p.PriceCents,
		Location:    strings.TrimSpace(p.Location),
	}
	if err := s.store.CreateServiceType(ctx, &st); err != nil {
		return models.ServiceType{}, err
	}
	if err := s.Refresh(ctx, p.WorkspaceID); err != nil {
		return models.ServiceType{}, err
	}
	return st, nil
}

type AddAvailabilityParams struct {
	WorkspaceID   uuid.UUID
	ServiceTypeID uuid.UUID
	Weekday       int
	StartTime     string
	EndTime       string
}

func (s *Service) AddAvailability(ctx context.Context, p AddAvailabilityParams) (models.Availability, error) {
	if _, err := schedule.ParseWindow(p.Weekday, p.StartTime, p.EndTime); err != nil {
		return models.Availability{}, core.Validationf("availability window: %v", err)
	}
	if _, err := s.store.GetServiceType(ctx, p.WorkspaceID, p.ServiceTypeID); err != nil {
		return models.Availability{}, err
	}
	a := models.Availability{
		WorkspaceID:   p.WorkspaceID,
		ServiceTypeID: p.ServiceTypeID,
		Weekday:       p.Weekday,
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
	}
	if err := s.store.CreateAvailability(ctx, &a); err != nil {
		return models.Availability{}, err
	}
	if err := s.Refresh(ctx, p.WorkspaceID); err != nil {
		return models.Availability{}, err
	}
	return a, nil
}

type AddFormTemplateParams struct {
	WorkspaceID   uuid.UUID
	ServiceTypeID *uuid.UUID
	Name          string
	Fields        []models.FormField
}

func (s *Service) AddFormTemplate(ctx context.Context, p AddFormTemplateParams) (models.FormTemplate, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return models.FormTemplate{}, core.Validationf("form name is required")
	}
	seen := map[string]bool{}
	for _, f := range p.Fields {
		if f.Key == "" {
			return models.FormTemplate{}, core.Validationf("form field key is required")
		}
		if seen[f.Key] {
			return models.FormTemplate{}, core.Validationf("duplicate form field key %q", f.Key)
		}
		seen[f.Key] = true
	}
	if p.ServiceTypeID != nil {
		if _, err := s.store.GetServiceType(ctx, p.WorkspaceID, *p.ServiceTypeID); err != nil {
			return models.FormTemplate{}, err
		}
	} else if _, err := s.store.GetWorkspace(ctx, p.WorkspaceID); err != nil {
		return models.FormTemplate{}, err
	}
	t := models.FormTemplate{
		WorkspaceID:   p.WorkspaceID,
		ServiceTypeID: p.ServiceTypeID,
		Name:          p.Name,
		Fields:        p.Fields,
	}
	if err := s.store.CreateFormTemplate(ctx, &t); err != nil {
		return models.FormTemplate{}, err
	}
	return t, nil
}

type AddInventoryItemParams struct {
	WorkspaceID uuid.UUID
	Name        string
	Quantity    int
	Threshold   int
	Unit        string
}

func (s *Service) AddInventoryItem(ctx context.Context, p AddInventoryItemParams) (models.InventoryItem, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return models.InventoryItem{}, core.Validationf("item name is required")
	}
	if p.Quantity < 0 || p.Threshold < 0 {
		return models.InventoryItem{}, core.Validationf("quantity and threshold must not be negative")
	}
	if _, err := s.store.GetWorkspace(ctx, p.WorkspaceID); err != nil {
		return models.InventoryItem{}, err
	}
	i := models.InventoryItem{
		WorkspaceID: p.WorkspaceID,
		Name:        p.Name,
		Quantity:    p.Quantity,
		Threshold:   p.Threshold,
		Unit:        strings.TrimSpace(p.Unit),
	}
	if err := s.store.CreateInventoryItem(ctx, &i); err != nil {
		return models.InventoryItem{}, err
	}
	return i, nil
}

// AdjustInventory applies a signed quantity delta and reports whether this
// adjustment crossed the low-stock threshold from above. The caller owns the
// inventory.low dispatch; crossing detection happens here exactly once so the
// handler never has to re-check.
func (s *Service) AdjustInventory(ctx context.Context, workspaceID, itemID uuid.UUID, delta int) (models.InventoryItem, bool, error) {
	item, err := s.store.GetInventoryItem(ctx, workspaceID, itemID)
	if err != nil {
		return models.InventoryItem{}, false, err
	}
	next := item.Quantity + delta
	if next < 0 {
		return models.InventoryItem{}, false, core.Validationf("adjustment would take %q below zero (%d%+d)", item.Name, item.Quantity, delta)
	}
	wasLow := item.IsLowStock()
	item.Quantity = next
	if err := s.store.UpdateInventoryItem(ctx, &item); err != nil {
		return models.InventoryItem{}, false, err
	}
	crossed := !wasLow && item.IsLowStock()
	return item, crossed, nil
}

// ConnectIntegration validates and saves an outbound channel configuration,
// then re-evaluates activation since a new communication channel may complete
// the minimum setup.
func (s *Service) ConnectIntegration(ctx context.Context, in *models.Integration) error {
	if _, err := s.store.GetWorkspace(ctx, in.WorkspaceID); err != nil {
		return err
	}
	switch in.Kind {
	case models.IntegrationEmail:
		if !in.Email.Configured() {
			return core.Validationf("email integration needs host and from address")
		}
	case models.IntegrationWhatsApp:
		if !in.WhatsApp.Configured() {
			return core.Validationf("whatsapp integration needs phone number id and access token")
		}
	case models.IntegrationWebhook:
		if in.Webhook == nil || !strings.HasPrefix(in.Webhook.URL, "http") {
			return core.Validationf("webhook integration needs an http(s) url")
		}
	case models.IntegrationCalendar:
		if !in.Calendar.Configured() {
			return core.Validationf("calendar integration needs calendar id and refresh token")
		}
	case models.IntegrationTextGen:
		if !in.TextGen.Configured() {
			return core.Validationf("textgen integration needs a base url")
		}
	default:
		return core.Validationf("unknown integration kind %q", in.Kind)
	}
	in.Active = true
	if err := s.store.UpsertIntegration(ctx, in); err != nil {
		return err
	}
	return s.Refresh(ctx, in.WorkspaceID)
}

// Setup is the activation snapshot: which of the three prerequisites hold.
type Setup struct {
	HasChannel      bool
	HasServiceType  bool
	HasAvailability bool
}

func (st Setup) Complete() bool {
	return st.HasChannel && st.HasServiceType && st.HasAvailability
}

// Steps counts satisfied prerequisites, which is what OnboardingStep stores.
func (st Setup) Steps() int {
	n := 0
	for _, ok := range []bool{st.HasChannel, st.HasServiceType, st.HasAvailability} {
		if ok {
			n++
		}
	}
	return n
}

func (s *Service) setup(ctx context.Context, workspaceID uuid.UUID) (Setup, error) {
	var st Setup
	for _, kind := range []models.IntegrationKind{models.IntegrationEmail, models.IntegrationWhatsApp} {
		list, err := s.store.ListActiveIntegrations(ctx, workspaceID, kind)
		if err != nil {
			return Setup{}, err
		}
		if len(list) > 0 {
			st.HasChannel = true
			break
		}
	}
	services, err := s.store.ListServiceTypes(ctx, workspaceID)
	if err != nil {
		return Setup{}, err
	}
	st.HasServiceType = len(services) > 0
	windows, err := s.store.ListWorkspaceAvailability(ctx, workspaceID)
	if err != nil {
		return Setup{}, err
	}
	st.HasAvailability = len(windows) > 0
	return st, nil
}

// Refresh recomputes the onboarding step and the active flag from stored
// state. Activation is one-way: once a workspace went live it stays live even
// if the snapshot later regresses.
func (s *Service) Refresh(ctx context.Context, workspaceID uuid.UUID) error {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	st, err := s.setup(ctx, workspaceID)
	if err != nil {
		return err
	}
	active := ws.Active || st.Complete()
	step := st.Steps()
	if step < ws.OnboardingStep {
		step = ws.OnboardingStep
	}
	if active == ws.Active && step == ws.OnboardingStep {
		return nil
	}
	ws.Active = active
	ws.OnboardingStep = step
	if err := s.store.UpdateWorkspace(ctx, &ws); err != nil {
		return err
	}
	if active {
		s.log.Info("workspace active", slog.String("workspace", workspaceID.String()), slog.Int("steps", step))
	}
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
