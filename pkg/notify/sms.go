package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

// SMS sends text messages through Twilio.
type SMS struct {
	twilio *twilioClient
	appURL string
}

// NewSMS creates an SMS channel.
func NewSMS(cfg TwilioConfig, appURL string) *SMS {
	return &SMS{twilio: newTwilioClient(cfg), appURL: appURL}
}

func (c *SMS) Kind() model.ChannelKind { return model.ChannelSMS }

func (c *SMS) Validate(prefs *model.Preferences) bool {
	return prefs.PhoneNumber != "" && c.twilio.cfg.configured()
}

func (c *SMS) Send(ctx context.Context, payload model.NotificationPayload, prefs *model.Preferences) model.NotificationResult {
	if !c.twilio.cfg.configured() {
		return failed(c.Kind(), fmt.Errorf("sms: %w", ErrProviderNotConfigured))
	}
	if prefs.PhoneNumber == "" {
		return failed(c.Kind(), fmt.Errorf("sms: %w", ErrRecipientNotConfigured))
	}

	form := url.Values{}
	form.Set("To", prefs.PhoneNumber)
	form.Set("Body", smsBody(payload, c.appURL))

	sid, err := c.twilio.create(ctx, "Messages", form)
	if err != nil {
		return failed(c.Kind(), err)
	}
	return succeeded(c.Kind(), sid)
}

func smsBody(p model.NotificationPayload, appURL string) string {
	return fmt.Sprintf("%s ORBIT ALERT: %s is now %s %s. Current price: %s. View details: %s",
		trendEmoji(p.Condition), p.Token, p.Condition, formatUSD(p.TargetPrice), formatUSD(p.CurrentPrice), alertsLink(appURL))
}
