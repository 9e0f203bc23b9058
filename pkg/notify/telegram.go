package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

const defaultTelegramURL = "https://api.telegram.org"

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	BotToken string
	BaseURL  string
	AppURL   string
}

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegram creates a Telegram channel.
func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelegramURL
	}
	return &Telegram{cfg: cfg, client: newHTTPClient()}
}

func (c *Telegram) Kind() model.ChannelKind { return model.ChannelTelegram }

func (c *Telegram) Validate(prefs *model.Preferences) bool {
	return prefs.TelegramChatID != "" && c.cfg.BotToken != ""
}

func (c *Telegram) Send(ctx context.Context, payload model.NotificationPayload, prefs *model.Preferences) model.NotificationResult {
	if c.cfg.BotToken == "" {
		return failed(c.Kind(), fmt.Errorf("telegram: %w", ErrProviderNotConfigured))
	}
	if prefs.TelegramChatID == "" {
		return failed(c.Kind(), fmt.Errorf("telegram: %w", ErrRecipientNotConfigured))
	}

	body, err := json.Marshal(telegramRequest{
		ChatID:                prefs.TelegramChatID,
		Text:                  telegramText(payload, c.cfg.AppURL),
		ParseMode:             "MarkdownV2",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return failed(c.Kind(), fmt.Errorf("marshal telegram payload: %w", err))
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return failed(c.Kind(), fmt.Errorf("create telegram request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	var out telegramResponse
	if err := do(c.client, req, "Telegram", &out); err != nil {
		return failed(c.Kind(), redactToken(err, c.cfg.BotToken))
	}
	if !out.OK {
		return failed(c.Kind(), fmt.Errorf("telegram API error: %s", out.Description))
	}
	return succeeded(c.Kind(), strconv.FormatInt(out.Result.MessageID, 10))
}

func telegramText(p model.NotificationPayload, appURL string) string {
	color := "🔴"
	if p.Condition == model.ConditionAbove {
		color = "🟢"
	}
	lines := []string{
		trendEmoji(p.Condition) + " *ORBIT Price Alert*",
		"",
		fmt.Sprintf("%s *%s* is now *%s* your target price%s", color,
			EscapeMarkdownV2(p.Token), EscapeMarkdownV2(string(p.Condition)), EscapeMarkdownV2("!")),
		"",
		"📊 *Current Price:* " + EscapeMarkdownV2(formatUSD(p.CurrentPrice)),
		"🎯 *Target Price:* " + EscapeMarkdownV2(formatUSD(p.TargetPrice)),
		"⏰ *Time:* " + EscapeMarkdownV2(p.Timestamp.UTC().Format("2006-01-02 15:04 MST")),
		"",
		fmt.Sprintf("[View in ORBIT](%s)", escapeMarkdownURL(alertsLink(appURL))),
	}
	return strings.Join(lines, "\n")
}

var markdownV2Replacer = strings.NewReplacer(
	`\`, `\\`,
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// EscapeMarkdownV2 escapes text for Telegram's MarkdownV2 parse mode.
func EscapeMarkdownV2(text string) string {
	return markdownV2Replacer.Replace(text)
}

// Inside (...) of a link only ')' and '\' need escaping.
func escapeMarkdownURL(u string) string {
	return strings.NewReplacer(`\`, `\\`, ")", `\)`).Replace(u)
}

// redactToken keeps the bot token out of transport errors, which embed the URL.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}
