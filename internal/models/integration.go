package models

import (
	"time"

	"github.com/google/uuid"
)

type IntegrationKind string

const (
	IntegrationEmail    IntegrationKind = "EMAIL"
	IntegrationWhatsApp IntegrationKind = "WHATSAPP"
	IntegrationWebhook  IntegrationKind = "WEBHOOK"
	IntegrationCalendar IntegrationKind = "CALENDAR"
	IntegrationTextGen  IntegrationKind = "TEXTGEN"
)

// Integration is a per-workspace outbound channel configuration. Exactly one
// of the config pointers matching Kind is set; the store encrypts the config
// payload at rest. Workspace-level config wins over environment defaults,
// which win over the hardcoded fallbacks.
type Integration struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Kind        IntegrationKind
	Active      bool

	Email    *EmailConfig    `json:"email,omitempty"`
	WhatsApp *WhatsAppConfig `json:"whatsapp,omitempty"`
	Webhook  *WebhookConfig  `json:"webhook,omitempty"`
	Calendar *CalendarConfig `json:"calendar,omitempty"`
	TextGen  *TextGenConfig  `json:"textgen,omitempty"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

func (c *EmailConfig) Configured() bool {
	return c != nil && c.Host != "" && c.From != ""
}

type WhatsAppConfig struct {
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"access_token"`
	// APIBase overrides the Graph API origin, mainly for tests.
	APIBase string `json:"api_base,omitempty"`
}

func (c *WhatsAppConfig) Configured() bool {
	return c != nil && c.PhoneNumberID != "" && c.AccessToken != ""
}

type WebhookConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"` // HMAC-SHA256 signing key when set
}

type CalendarConfig struct {
	CalendarID   string `json:"calendar_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

func (c *CalendarConfig) Configured() bool {
	return c != nil && c.CalendarID != "" && c.RefreshToken != ""
}

type TextGenConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model,omitempty"`
}

func (c *TextGenConfig) Configured() bool {
	return c != nil && c.BaseURL != ""
}
