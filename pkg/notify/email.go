package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

const (
	defaultResendURL = "https://api.resend.com"
	defaultEmailFrom = "ORBIT Alerts <alerts@orbit.app>"
)

// EmailConfig configures the Resend email channel.
type EmailConfig struct {
	APIKey  string
	From    string
	BaseURL string
	AppURL  string
}

// Email sends alerts through the Resend API.
type Email struct {
	cfg    EmailConfig
	client *http.Client
}

// NewEmail creates an email channel. Empty From and BaseURL use defaults.
func NewEmail(cfg EmailConfig) *Email {
	if cfg.From == "" {
		cfg.From = defaultEmailFrom
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultResendURL
	}
	return &Email{cfg: cfg, client: newHTTPClient()}
}

func (c *Email) Kind() model.ChannelKind { return model.ChannelEmail }

func (c *Email) Validate(prefs *model.Preferences) bool {
	return prefs.Email != "" && c.cfg.APIKey != ""
}

func (c *Email) Send(ctx context.Context, payload model.NotificationPayload, prefs *model.Preferences) model.NotificationResult {
	if c.cfg.APIKey == "" {
		return failed(c.Kind(), fmt.Errorf("email: %w", ErrProviderNotConfigured))
	}
	if prefs.Email == "" {
		return failed(c.Kind(), fmt.Errorf("email: %w", ErrRecipientNotConfigured))
	}

	html, err := c.render(payload)
	if err != nil {
		return failed(c.Kind(), err)
	}

	body, err := json.Marshal(resendRequest{
		From:    c.cfg.From,
		To:      []string{prefs.Email},
		Subject: fmt.Sprintf("🚨 %s Price Alert", payload.Token),
		HTML:    html,
	})
	if err != nil {
		return failed(c.Kind(), fmt.Errorf("marshal email payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/emails", bytes.NewReader(body))
	if err != nil {
		return failed(c.Kind(), fmt.Errorf("create email request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var out resendResponse
	if err := do(c.client, req, "Resend", &out); err != nil {
		return failed(c.Kind(), err)
	}
	return succeeded(c.Kind(), out.ID)
}

func (c *Email) render(payload model.NotificationPayload) (string, error) {
	color := "#ef4444"
	if payload.Condition == model.ConditionAbove {
		color = "#10b981"
	}
	data := emailData{
		Token:        payload.Token,
		Condition:    string(payload.Condition),
		Emoji:        trendEmoji(payload.Condition),
		Color:        color,
		CurrentPrice: formatUSD(payload.CurrentPrice),
		TargetPrice:  formatUSD(payload.TargetPrice),
		TriggeredAt:  payload.Timestamp.UTC().Format("Jan 2, 2006 15:04 MST"),
		AlertsURL:    alertsLink(c.cfg.AppURL),
		SettingsURL:  strings.TrimRight(c.cfg.AppURL, "/") + "/settings",
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type emailData struct {
	Token        string
	Condition    string
	Emoji        string
	Color        string
	CurrentPrice string
	TargetPrice  string
	TriggeredAt  string
	AlertsURL    string
	SettingsURL  string
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="margin:0;padding:0;background-color:#0f1419;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:600px;margin:0 auto;padding:40px 20px;">
    <div style="background:#1a1f2e;border:1px solid #2d3748;border-radius:16px;padding:32px;">
      <div style="text-align:center;margin-bottom:32px;">
        <h1 style="color:#6366f1;font-size:28px;margin:0 0 8px 0;">ORBIT</h1>
        <p style="color:#9ca3af;font-size:14px;margin:0;">Price Alert Triggered</p>
      </div>
      <div style="border:2px solid {{.Color}};border-radius:12px;padding:24px;margin-bottom:24px;text-align:center;">
        <div style="font-size:48px;margin-bottom:16px;">{{.Emoji}}</div>
        <h2 style="color:#ffffff;font-size:32px;margin:0 0 8px 0;">{{.Token}}</h2>
        <p style="color:#9ca3af;font-size:16px;margin:0;">Price is now <span style="color:{{.Color}};font-weight:bold;">{{.Condition}}</span> your target</p>
      </div>
      <table style="width:100%;border-collapse:collapse;margin-bottom:24px;">
        <tr><td style="color:#9ca3af;padding:8px 0;">Current Price:</td><td style="color:#ffffff;font-weight:bold;text-align:right;">{{.CurrentPrice}}</td></tr>
        <tr><td style="color:#9ca3af;padding:8px 0;">Target Price:</td><td style="color:#6366f1;font-weight:bold;text-align:right;">{{.TargetPrice}}</td></tr>
        <tr><td style="color:#9ca3af;padding:8px 0;">Triggered At:</td><td style="color:#ffffff;text-align:right;">{{.TriggeredAt}}</td></tr>
      </table>
      <div style="text-align:center;margin-bottom:24px;">
        <a href="{{.AlertsURL}}" style="display:inline-block;background:#6366f1;color:#ffffff;text-decoration:none;padding:12px 32px;border-radius:8px;font-weight:600;">View in ORBIT</a>
      </div>
      <div style="text-align:center;padding-top:24px;border-top:1px solid #2d3748;">
        <p style="color:#6b7280;font-size:12px;margin:0 0 8px 0;">This alert was triggered based on your settings in ORBIT.</p>
        <p style="color:#6b7280;font-size:12px;margin:0;"><a href="{{.SettingsURL}}" style="color:#6366f1;text-decoration:none;">Manage Alert Settings</a></p>
      </div>
    </div>
  </div>
</body>
</html>
`))
