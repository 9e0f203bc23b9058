// Package notify delivers triggered price alerts over the supported channels.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "Orbit-Alerts/1.0"
	maxErrorBody   = 1 << 10
)

var (
	// ErrProviderNotConfigured means the process-wide credentials for a
	// provider are missing.
	ErrProviderNotConfigured = errors.New("provider credentials not configured")

	// ErrRecipientNotConfigured means the user has no contact data for the channel.
	ErrRecipientNotConfigured = errors.New("recipient not configured")
)

// Channel delivers a notification over one medium.
type Channel interface {
	// Kind returns the channel identifier.
	Kind() model.ChannelKind

	// Validate reports whether the user's preferences and the provider
	// credentials allow sending. It performs no I/O.
	Validate(prefs *model.Preferences) bool

	// Send delivers the payload. Failures are reported in the result,
	// never returned or panicked. Implementations must be safe for
	// concurrent use.
	Send(ctx context.Context, payload model.NotificationPayload, prefs *model.Preferences) model.NotificationResult
}

// ProviderError is returned when a provider answers with a non-2xx status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API error: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func succeeded(kind model.ChannelKind, messageID string) model.NotificationResult {
	return model.NotificationResult{
		Channel:   kind,
		Success:   true,
		MessageID: messageID,
		SentAt:    time.Now().UTC(),
	}
}

func failed(kind model.ChannelKind, err error) model.NotificationResult {
	return failedMsg(kind, err.Error())
}

func failedMsg(kind model.ChannelKind, msg string) model.NotificationResult {
	return model.NotificationResult{
		Channel: kind,
		Success: false,
		Error:   msg,
		SentAt:  time.Now().UTC(),
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// do executes req, maps non-2xx answers to *ProviderError and decodes a
// JSON body into out when out is non-nil.
func do(client *http.Client, req *http.Request, provider string, out any) error {
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}
