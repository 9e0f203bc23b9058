package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

// InboxStore persists in-app notifications.
type InboxStore interface {
	CreateNotification(ctx context.Context, n *model.InboxNotification) error
}

// InApp writes notifications to the user's inbox.
type InApp struct {
	store InboxStore
}

// NewInApp creates an in-app channel backed by store.
func NewInApp(store InboxStore) *InApp {
	return &InApp{store: store}
}

func (c *InApp) Kind() model.ChannelKind { return model.ChannelInApp }

// Validate needs no contact data, only a configured store.
func (c *InApp) Validate(_ *model.Preferences) bool {
	return c.store != nil
}

func (c *InApp) Send(ctx context.Context, payload model.NotificationPayload, _ *model.Preferences) model.NotificationResult {
	if c.store == nil {
		return failed(c.Kind(), ErrProviderNotConfigured)
	}

	n := &model.InboxNotification{
		UserID:  payload.UserID,
		AlertID: payload.AlertID,
		Type:    "price_alert",
		Title:   fmt.Sprintf("%s Price Alert", payload.Token),
		Message: fmt.Sprintf("%s is now %s %s. Current price: %s",
			payload.Token, payload.Condition, formatUSD(payload.TargetPrice), formatUSD(payload.CurrentPrice)),
		Token:        payload.Token,
		Condition:    payload.Condition,
		TargetPrice:  payload.TargetPrice,
		CurrentPrice: payload.CurrentPrice,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.store.CreateNotification(ctx, n); err != nil {
		return failed(c.Kind(), fmt.Errorf("store notification: %w", err))
	}
	return succeeded(c.Kind(), n.ID)
}
