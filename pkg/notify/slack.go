package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

// DefaultSlackPrefix is the only webhook origin accepted unless overridden.
const DefaultSlackPrefix = "https://hooks.slack.com/"

var errSlackURLNotAllowed = errors.New("slack webhook URL not allowed")

// SlackConfig configures the Slack incoming-webhook channel.
type SlackConfig struct {
	AllowedPrefix string
	AppURL        string
}

// Slack posts Block Kit messages to the user's incoming webhook.
type Slack struct {
	cfg    SlackConfig
	client *http.Client
}

// NewSlack creates a Slack channel.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.AllowedPrefix == "" {
		cfg.AllowedPrefix = DefaultSlackPrefix
	}
	return &Slack{cfg: cfg, client: newHTTPClient()}
}

func (c *Slack) Kind() model.ChannelKind { return model.ChannelSlack }

// Validate needs no process credential; the webhook URL is the credential.
func (c *Slack) Validate(prefs *model.Preferences) bool {
	return prefs.SlackWebhookURL != "" && strings.HasPrefix(prefs.SlackWebhookURL, c.cfg.AllowedPrefix)
}

func (c *Slack) Send(ctx context.Context, payload model.NotificationPayload, prefs *model.Preferences) model.NotificationResult {
	if prefs.SlackWebhookURL == "" {
		return failed(c.Kind(), fmt.Errorf("slack: %w", ErrRecipientNotConfigured))
	}
	if !strings.HasPrefix(prefs.SlackWebhookURL, c.cfg.AllowedPrefix) {
		return failed(c.Kind(), errSlackURLNotAllowed)
	}

	body, err := json.Marshal(c.message(payload))
	if err != nil {
		return failed(c.Kind(), fmt.Errorf("marshal slack payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, prefs.SlackWebhookURL, bytes.NewReader(body))
	if err != nil {
		return failed(c.Kind(), fmt.Errorf("create slack request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	if err := do(c.client, req, "Slack webhook", nil); err != nil {
		return failed(c.Kind(), err)
	}
	// Incoming webhooks return no message id.
	return succeeded(c.Kind(), fmt.Sprintf("slack-%d", time.Now().UnixMilli()))
}

func (c *Slack) message(p model.NotificationPayload) slackMessage {
	color := "#ef4444"
	if p.Condition == model.ConditionAbove {
		color = "#10b981"
	}
	return slackMessage{
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: trendEmoji(p.Condition) + " ORBIT Price Alert", Emoji: true}},
			{Type: "section", Fields: []slackText{
				{Type: "mrkdwn", Text: "*Token:*\n" + p.Token},
				{Type: "mrkdwn", Text: "*Condition:*\n" + strings.ToUpper(string(p.Condition))},
				{Type: "mrkdwn", Text: "*Current Price:*\n" + formatUSD(p.CurrentPrice)},
				{Type: "mrkdwn", Text: "*Target Price:*\n" + formatUSD(p.TargetPrice)},
			}},
			{Type: "context", Elements: []slackElement{
				{Type: "mrkdwn", Text: "Triggered at " + p.Timestamp.UTC().Format(time.RFC1123)},
			}},
			{Type: "actions", Elements: []slackElement{
				{Type: "button", Text: &slackText{Type: "plain_text", Text: "View in ORBIT", Emoji: true}, URL: alertsLink(c.cfg.AppURL), Style: "primary"},
			}},
		},
		Attachments: []slackAttachment{
			{
				Color: color,
				Blocks: []slackBlock{
					{Type: "section", Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s* has %s your target price of *%s*",
						p.Token, movement(p.Condition), formatUSD(p.TargetPrice))}},
				},
			},
		},
	}
}

type slackMessage struct {
	Blocks      []slackBlock      `json:"blocks"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// slackElement covers both context text and button elements.
type slackElement struct {
	Type  string `json:"type"`
	Text  any    `json:"text,omitempty"`
	URL   string `json:"url,omitempty"`
	Style string `json:"style,omitempty"`
}
