package automation

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rajvveer/careOps/internal/models"
)

const (
	webhookTimeout   = 10 * time.Second
	signatureHeader  = "X-CareOps-Signature"
	signaturePrefix  = "sha256="
	webhookUserAgent = "careops-webhook/1.0"
)

type envelope struct {
	Event       string         `json:"event"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID uuid.UUID      `json:"workspaceId"`
	Data        map[string]any `json:"data"`
}

// fanOut posts the event envelope to every active webhook integration. Each
// receiver is its own failure domain: its outcome gets an AutomationLog row
// and a failure never stops delivery to the rest.
func (d *Dispatcher) fanOut(ctx context.Context, ws models.Workspace, evt Event, res *result) {
	hooks, err := d.store.ListActiveIntegrations(ctx, ws.ID, models.IntegrationWebhook)
	if err != nil {
		res.fail("webhooks", err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	env := envelope{
		Event:       evt.Name,
		Timestamp:   d.now().UTC(),
		WorkspaceID: ws.ID,
		Data:        evt.webhookData(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		res.fail("webhooks", err)
		return
	}

	for _, h := range hooks {
		if h.Webhook == nil || h.Webhook.URL == "" {
			continue
		}
		err := d.deliverWebhook(ctx, *h.Webhook, body)
		row := models.AutomationLog{
			WorkspaceID: ws.ID,
			Event:       evt.Name,
			Action:      "webhook " + h.Webhook.URL,
			Status:      models.LogSuccess,
		}
		if err != nil {
			row.Status = models.LogFailed
			row.Details = err.Error()
			res.fail("webhook "+h.Webhook.URL, err)
		}
		if logErr := d.store.AppendAutomationLog(ctx, &row); logErr != nil {
			d.log.Error("append webhook log", slog.Any("error", logErr))
		}
	}
}

func (d *Dispatcher) deliverWebhook(ctx context.Context, cfg models.WebhookConfig, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	if cfg.Secret != "" {
		req.Header.Set(signatureHeader, Sign(cfg.Secret, body))
	}

	resp, err := d.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook %s: status %d", cfg.URL, resp.StatusCode)
	}
	return nil
}

// Sign computes the signature header value for a raw body: HMAC-SHA256 keyed
// on the shared secret, hex-encoded. Receivers recompute it to authenticate
// the sender.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
