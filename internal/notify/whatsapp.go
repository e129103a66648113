package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rajvveer/careOps/internal/models"
)

const defaultGraphBase = "https://graph.facebook.com/v19.0"

// WhatsApp talks to the WhatsApp Business Cloud API. One text message per
// call; template messages are out of scope.
type WhatsApp struct {
	hc *http.Client
}

func NewWhatsApp() *WhatsApp {
	return &WhatsApp{hc: &http.Client{Timeout: 10 * time.Second}}
}

type waTextMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

func (g *WhatsApp) Send(ctx context.Context, cfg models.WhatsAppConfig, toPhone, body string) error {
	base := cfg.APIBase
	if base == "" {
		base = defaultGraphBase
	}

	msg := waTextMessage{MessagingProduct: "whatsapp", To: toPhone, Type: "text"}
	msg.Text.Body = body
	jb, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", base, cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jb))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	res, err := g.hc.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send to %s: %w", toPhone, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		rb, _ := io.ReadAll(res.Body)
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(rb, &e)
		if e.Error.Message != "" {
			return fmt.Errorf("whatsapp: send failed: %s (status=%d)", e.Error.Message, res.StatusCode)
		}
		return fmt.Errorf("whatsapp: send failed (status=%d)", res.StatusCode)
	}
	return nil
}
