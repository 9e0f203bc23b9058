package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Condition is the direction of a price threshold.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// Valid reports whether c is one of the two known directions.
func (c Condition) Valid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// Met reports whether current satisfies the threshold. Both directions are
// inclusive: a price equal to the target counts as triggered.
func (c Condition) Met(current, target float64) bool {
	cmp := decimal.NewFromFloat(current).Cmp(decimal.NewFromFloat(target))
	switch c {
	case ConditionAbove:
		return cmp >= 0
	case ConditionBelow:
		return cmp <= 0
	default:
		return false
	}
}

// Alert is a user rule pairing a token, a threshold, a direction and the
// channels to notify when it fires.
type Alert struct {
	ID            string      `json:"id" db:"id"`
	UserID        string      `json:"user_id" db:"user_id" validate:"required"`
	Token         string      `json:"token" db:"token" validate:"required,max=10,alphanum,uppercase"`
	Condition     Condition   `json:"condition" db:"condition" validate:"required,oneof=above below"`
	TargetPrice   float64     `json:"target_price" db:"target_price" validate:"gt=0,finite"`
	Active        bool        `json:"active" db:"active"`
	Channels      ChannelList `json:"channels" db:"channels" validate:"min=1,unique,dive,channel_kind"`
	LastTriggered *time.Time  `json:"last_triggered,omitempty" db:"last_triggered"`
	Archived      bool        `json:"archived" db:"archived"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// InCooldown reports whether the alert fired less than window ago.
func (a *Alert) InCooldown(now time.Time, window time.Duration) bool {
	if a.LastTriggered == nil {
		return false
	}
	return now.Sub(*a.LastTriggered) < window
}

// Preferences holds a user's contact data and globally enabled channels.
// Empty strings mean the field is not configured.
type Preferences struct {
	UserID          string      `json:"user_id" db:"user_id" validate:"required"`
	Email           string      `json:"email,omitempty" db:"email" validate:"omitempty,email"`
	PhoneNumber     string      `json:"phone_number,omitempty" db:"phone_number" validate:"omitempty,e164"`
	TelegramChatID  string      `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	SlackWebhookURL string      `json:"slack_webhook_url,omitempty" db:"slack_webhook_url" validate:"omitempty,url"`
	WebhookURL      string      `json:"webhook_url,omitempty" db:"webhook_url" validate:"omitempty,url"`
	Channels        ChannelList `json:"channels" db:"channels" validate:"min=1,unique,dive,channel_kind"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// NotificationPayload describes one trigger event handed to the channels.
type NotificationPayload struct {
	AlertID      string      `json:"alert_id"`
	UserID       string      `json:"user_id"`
	Token        string      `json:"token"`
	Condition    Condition   `json:"condition"`
	TargetPrice  float64     `json:"target_price"`
	CurrentPrice float64     `json:"current_price"`
	Timestamp    time.Time   `json:"timestamp"`
	Channels     ChannelList `json:"channels"`
}

// NotificationResult is the outcome of a single channel attempt.
type NotificationResult struct {
	Channel   ChannelKind `json:"channel"`
	Success   bool        `json:"success"`
	MessageID string      `json:"message_id,omitempty"`
	Error     string      `json:"error,omitempty"`
	SentAt    time.Time   `json:"sent_at"`
}

// InboxNotification is a row in the in-app notification inbox.
type InboxNotification struct {
	ID           string     `json:"id" db:"id"`
	UserID       string     `json:"user_id" db:"user_id"`
	AlertID      string     `json:"alert_id" db:"alert_id"`
	Type         string     `json:"type" db:"type"`
	Title        string     `json:"title" db:"title"`
	Message      string     `json:"message" db:"message"`
	Token        string     `json:"token" db:"token"`
	Condition    Condition  `json:"condition" db:"condition"`
	TargetPrice  float64    `json:"target_price" db:"target_price"`
	CurrentPrice float64    `json:"current_price" db:"current_price"`
	Read         bool       `json:"read" db:"is_read"`
	ReadAt       *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// NormalizeToken upper-cases and trims a token symbol.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}
