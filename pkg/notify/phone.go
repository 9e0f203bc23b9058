package notify

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

// TwiMLPath is the HTTP path serving the voice script for phone alerts.
const TwiMLPath = "/api/v1/voice/twiml"

// Phone places text-to-speech voice calls through Twilio.
type Phone struct {
	twilio *twilioClient
	appURL string
}

// NewPhone creates a phone channel. appURL must be reachable by Twilio,
// which fetches the call script from it.
func NewPhone(cfg TwilioConfig, appURL string) *Phone {
	return &Phone{twilio: newTwilioClient(cfg), appURL: appURL}
}

func (c *Phone) Kind() model.ChannelKind { return model.ChannelPhone }

func (c *Phone) Validate(prefs *model.Preferences) bool {
	return prefs.PhoneNumber != "" && c.twilio.cfg.configured()
}

func (c *Phone) Send(ctx context.Context, payload model.NotificationPayload, prefs *model.Preferences) model.NotificationResult {
	if !c.twilio.cfg.configured() {
		return failed(c.Kind(), fmt.Errorf("phone: %w", ErrProviderNotConfigured))
	}
	if prefs.PhoneNumber == "" {
		return failed(c.Kind(), fmt.Errorf("phone: %w", ErrRecipientNotConfigured))
	}

	form := url.Values{}
	form.Set("To", prefs.PhoneNumber)
	form.Set("Url", c.twimlURL(payload))

	sid, err := c.twilio.create(ctx, "Calls", form)
	if err != nil {
		return failed(c.Kind(), err)
	}
	return succeeded(c.Kind(), sid)
}

func (c *Phone) twimlURL(p model.NotificationPayload) string {
	q := url.Values{}
	q.Set("token", p.Token)
	q.Set("condition", string(p.Condition))
	q.Set("target", strconv.FormatFloat(p.TargetPrice, 'f', -1, 64))
	q.Set("current", strconv.FormatFloat(p.CurrentPrice, 'f', -1, 64))
	return strings.TrimRight(c.appURL, "/") + TwiMLPath + "?" + q.Encode()
}

// VoiceMessage is the sentence read out on an alert call.
func VoiceMessage(token string, condition model.Condition, target, current float64) string {
	return fmt.Sprintf("This is an alert from ORBIT. %s has %s your target price of %s. The current price is %s. Log into ORBIT to view details.",
		token, movement(condition), formatUSD(target), formatUSD(current))
}

type twimlResponse struct {
	XMLName xml.Name    `xml:"Response"`
	Verbs   []twimlVerb `xml:",any"`
}

type twimlVerb struct {
	XMLName xml.Name
	Voice   string `xml:"voice,attr,omitempty"`
	Length  int    `xml:"length,attr,omitempty"`
	Text    string `xml:",chardata"`
}

// RenderTwiML builds the TwiML document that speaks message.
func RenderTwiML(message string) ([]byte, error) {
	doc := twimlResponse{Verbs: []twimlVerb{
		{XMLName: xml.Name{Local: "Say"}, Voice: "alice", Text: message},
		{XMLName: xml.Name{Local: "Pause"}, Length: 1},
		{XMLName: xml.Name{Local: "Say"}, Text: "Thank you."},
	}}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
