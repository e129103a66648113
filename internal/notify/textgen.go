package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rajvveer/careOps/internal/models"
)

const defaultTextGenModel = "gpt-4o-mini"

// TextGen calls an OpenAI-compatible chat completions endpoint to draft
// message copy. Any provider speaking that wire format works; the base URL
// comes from workspace or environment config.
type TextGen struct {
	hc *http.Client
}

func NewTextGen() *TextGen {
	return &TextGen{hc: &http.Client{Timeout: 15 * time.Second}}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *TextGen) Generate(ctx context.Context, cfg models.TextGenConfig, system, prompt string) (string, error) {
	model := cfg.Model
	if model == "" {
		model = defaultTextGenModel
	}
	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}
	jb, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jb))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	res, err := g.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("textgen: %w", err)
	}
	defer res.Body.Close()

	rb, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	var out chatResponse
	if err := json.Unmarshal(rb, &out); err != nil {
		return "", fmt.Errorf("textgen: bad response: %w", err)
	}
	if res.StatusCode >= 400 {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("textgen: %s (status=%d)", out.Error.Message, res.StatusCode)
		}
		return "", fmt.Errorf("textgen: request failed (status=%d)", res.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("textgen: empty completion")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
