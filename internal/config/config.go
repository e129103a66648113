package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rajvveer/careOps/internal/models"
)

type Config struct {
	ListenAddr  string
	BaseURL     string // public origin used in emailed links
	DatabaseURL string
	Store       string // "postgres" or "memory" (dev/demo only)

	// CredEncKey encrypts integration configs at rest (32 bytes).
	CredEncKey []byte
	// Form token codec keys (securecookie hash/block pair).
	FormHashKey  []byte
	FormBlockKey []byte

	// Sweep cadences. Defaults follow the documented schedule; shorter
	// values are safe because every job carries its own de-dup guard.
	ReminderInterval  time.Duration
	OverdueInterval   time.Duration
	InventoryInterval time.Duration
	DigestInterval    time.Duration

	// Environment-default gateway credentials. A workspace-level
	// integration of the same kind always wins over these.
	Email    models.EmailConfig
	WhatsApp models.WhatsAppConfig
	TextGen  models.TextGenConfig

	DevMode bool
}

func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		BaseURL:     strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Store:       getenv("STORE", "postgres"),
		DevMode:     strings.TrimSpace(os.Getenv("DEV_MODE")) == "1",
	}

	switch cfg.Store {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORE=postgres")
		}
	case "memory":
	default:
		return Config{}, fmt.Errorf("invalid STORE %q (want postgres or memory)", cfg.Store)
	}

	var err error
	if cfg.CredEncKey, err = requireB64("CRED_ENC_KEY"); err != nil {
		return Config{}, err
	}
	if len(cfg.CredEncKey) != 32 {
		return Config{}, fmt.Errorf("CRED_ENC_KEY must decode to 32 bytes (got %d)", len(cfg.CredEncKey))
	}
	if cfg.FormHashKey, err = requireB64("FORM_HASH_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.FormBlockKey, err = requireB64("FORM_BLOCK_KEY"); err != nil {
		return Config{}, err
	}

	if cfg.ReminderInterval, err = duration("REMINDER_SWEEP_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OverdueInterval, err = duration("OVERDUE_SWEEP_INTERVAL", 6*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.InventoryInterval, err = duration("INVENTORY_SWEEP_INTERVAL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	// The digest job ticks hourly and fires only at the workspace-local
	// digest hour; the AutomationLog guard keeps repeated ticks harmless.
	if cfg.DigestInterval, err = duration("DIGEST_SWEEP_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}

	smtpPort, err := strconv.Atoi(getenv("SMTP_PORT", "587"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid SMTP_PORT")
	}
	cfg.Email = models.EmailConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     smtpPort,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
	cfg.WhatsApp = models.WhatsAppConfig{
		PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		APIBase:       os.Getenv("WHATSAPP_API_BASE"),
	}
	cfg.TextGen = models.TextGenConfig{
		BaseURL: os.Getenv("TEXTGEN_BASE_URL"),
		APIKey:  os.Getenv("TEXTGEN_API_KEY"),
		Model:   getenv("TEXTGEN_MODEL", ""),
	}

	return cfg, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func duration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", k)
	}
	return d, nil
}

// requireB64 reads a required base64 env value. The value may instead name a
// file holding the encoded key, for k8s secret mounts.
func requireB64(k string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64)", k)
	}
	if b, err := os.ReadFile(v); err == nil {
		v = strings.TrimSpace(string(b))
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}
