package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

// Result messages for dispatch failures decided by the service itself.
const (
	MsgChannelNotFound      = "Channel not found"
	MsgChannelNotConfigured = "Channel not configured or invalid preferences"
)

// Channels is the closed registry of channel implementations, one field per
// known kind. A nil field means the kind has no implementation.
type Channels struct {
	InApp    Channel
	Email    Channel
	SMS      Channel
	Phone    Channel
	Telegram Channel
	Slack    Channel
	Webhook  Channel
}

func (c Channels) lookup(kind model.ChannelKind) Channel {
	switch kind {
	case model.ChannelInApp:
		return c.InApp
	case model.ChannelEmail:
		return c.Email
	case model.ChannelSMS:
		return c.SMS
	case model.ChannelPhone:
		return c.Phone
	case model.ChannelTelegram:
		return c.Telegram
	case model.ChannelSlack:
		return c.Slack
	case model.ChannelWebhook:
		return c.Webhook
	default:
		return nil
	}
}

// Service fans a notification out to every channel enabled for both the
// alert and the user.
type Service struct {
	channels Channels
	logger   *slog.Logger
}

// NewService creates a notification service over the given channels.
func NewService(channels Channels, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{channels: channels, logger: logger}
}

// SendNotification dispatches payload to payload.Channels ∩ prefs.Channels
// concurrently and returns one result per enabled kind, in payload order.
// It never fails as a whole.
func (s *Service) SendNotification(ctx context.Context, payload model.NotificationPayload, prefs *model.Preferences) []model.NotificationResult {
	if prefs == nil {
		return []model.NotificationResult{}
	}
	enabled := payload.Channels.Intersect(prefs.Channels)

	mapper := iter.Mapper[model.ChannelKind, model.NotificationResult]{MaxGoroutines: len(enabled)}
	results := mapper.Map(enabled, func(kind *model.ChannelKind) model.NotificationResult {
		return s.dispatch(ctx, *kind, payload, prefs)
	})

	for _, r := range results {
		if r.Success {
			s.logger.Debug("notification sent", "alert_id", payload.AlertID, "channel", r.Channel, "message_id", r.MessageID)
		} else {
			s.logger.Warn("notification failed", "alert_id", payload.AlertID, "channel", r.Channel, "error", r.Error)
		}
	}
	return results
}

// TestChannel sends a synthetic alert through a single channel.
func (s *Service) TestChannel(ctx context.Context, kind model.ChannelKind, prefs *model.Preferences) model.NotificationResult {
	payload := TestPayload(time.Now().UTC())
	payload.Channels = model.ChannelList{kind}
	if prefs != nil {
		payload.UserID = prefs.UserID
	}
	return s.dispatch(ctx, kind, payload, prefs)
}

// TestPayload is the fixed payload used for channel tests.
func TestPayload(now time.Time) model.NotificationPayload {
	return model.NotificationPayload{
		AlertID:      "test-alert",
		Token:        "BTC",
		Condition:    model.ConditionAbove,
		TargetPrice:  50000,
		CurrentPrice: 51000,
		Timestamp:    now,
	}
}

func (s *Service) dispatch(ctx context.Context, kind model.ChannelKind, payload model.NotificationPayload, prefs *model.Preferences) (result model.NotificationResult) {
	ch := s.channels.lookup(kind)
	if ch == nil {
		return failedMsg(kind, MsgChannelNotFound)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("channel panicked", "channel", kind, "alert_id", payload.AlertID, "panic", r)
			result = failedMsg(kind, fmt.Sprintf("channel panicked: %v", r))
		}
	}()

	if prefs == nil || !ch.Validate(prefs) {
		return failedMsg(kind, MsgChannelNotConfigured)
	}

	result = ch.Send(ctx, payload, prefs)
	result.Channel = kind
	if result.SentAt.IsZero() {
		result.SentAt = time.Now().UTC()
	}
	return result
}
