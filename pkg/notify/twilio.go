package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultTwilioURL = "https://api.twilio.com"

// TwilioConfig holds the credentials shared by the SMS and phone channels.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
}

func (c TwilioConfig) configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

type twilioClient struct {
	cfg    TwilioConfig
	client *http.Client
}

func newTwilioClient(cfg TwilioConfig) *twilioClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioURL
	}
	return &twilioClient{cfg: cfg, client: newHTTPClient()}
}

// create posts a form to an account resource (Messages or Calls) and
// returns the new resource SID.
func (t *twilioClient) create(ctx context.Context, resource string, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s.json",
		strings.TrimRight(t.cfg.BaseURL, "/"), url.PathEscape(t.cfg.AccountSID), resource)

	form.Set("From", t.cfg.FromNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)

	var out struct {
		SID string `json:"sid"`
	}
	if err := do(t.client, req, "Twilio", &out); err != nil {
		return "", err
	}
	return out.SID, nil
}
