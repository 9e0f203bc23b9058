package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature-256"

// Webhook posts alerts as JSON to a user-supplied URL.
type Webhook struct {
	secret string
	client *http.Client
}

// NewWebhook creates a generic webhook channel. If secret is non-empty,
// requests are signed with HMAC-SHA256.
func NewWebhook(secret string) *Webhook {
	return &Webhook{secret: secret, client: newHTTPClient()}
}

func (c *Webhook) Kind() model.ChannelKind { return model.ChannelWebhook }

func (c *Webhook) Validate(prefs *model.Preferences) bool {
	return prefs.WebhookURL != ""
}

func (c *Webhook) Send(ctx context.Context, payload model.NotificationPayload, prefs *model.Preferences) model.NotificationResult {
	if prefs.WebhookURL == "" {
		return failed(c.Kind(), fmt.Errorf("webhook: %w", ErrRecipientNotConfigured))
	}

	delivery := uuid.New().String()
	body, err := json.Marshal(webhookPayload{
		Event:     "price_alert",
		Delivery:  delivery,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Alert:     payload,
	})
	if err != nil {
		return failed(c.Kind(), fmt.Errorf("marshal webhook payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, prefs.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return failed(c.Kind(), fmt.Errorf("create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(body, []byte(c.secret)))
	}

	if err := do(c.client, req, "webhook", nil); err != nil {
		return failed(c.Kind(), err)
	}
	return succeeded(c.Kind(), delivery)
}

type webhookPayload struct {
	Event     string                    `json:"event"`
	Delivery  string                    `json:"delivery_id"`
	Timestamp string                    `json:"timestamp"`
	Alert     model.NotificationPayload `json:"alert"`
}

// Sign returns the hex HMAC-SHA256 of message under key.
func Sign(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
