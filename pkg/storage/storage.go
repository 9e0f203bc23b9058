package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

// ErrNotFound is returned when a lookup or targeted update matches no row.
var ErrNotFound = errors.New("not found")

// Retention windows applied by Cleanup.
const (
	NotificationRetention  = 30 * 24 * time.Hour
	InactiveAlertRetention = 90 * 24 * time.Hour

	// TriggeredAlertArchiveAge marks alerts archived once their last
	// trigger is older than this. Archived alerts keep being evaluated.
	TriggeredAlertArchiveAge = 30 * 24 * time.Hour
)

// AlertStore is the alert persistence contract.
type AlertStore interface {
	// CreateAlert validates and inserts a new alert.
	CreateAlert(ctx context.Context, alert *model.Alert) error

	// GetAlert returns a single alert by id.
	GetAlert(ctx context.Context, id string) (*model.Alert, error)

	// ListAlerts returns all alerts owned by a user.
	ListAlerts(ctx context.Context, userID string) ([]model.Alert, error)

	// ListActiveAlerts returns every alert with active = true.
	ListActiveAlerts(ctx context.Context) ([]model.Alert, error)

	// SetAlertActive toggles the active flag of a user's alert.
	SetAlertActive(ctx context.Context, userID, id string, active bool) error

	// DeleteAlert removes a user's alert.
	DeleteAlert(ctx context.Context, userID, id string) error

	// UpdateTriggered sets last_triggered and updated_at on one alert only.
	UpdateTriggered(ctx context.Context, id string, at time.Time) error
}

// PreferenceStore is the user preference persistence contract.
type PreferenceStore interface {
	// GetPreferences returns ErrNotFound when the user has no preferences.
	GetPreferences(ctx context.Context, userID string) (*model.Preferences, error)

	// UpsertPreferences validates and creates or replaces a user's preferences.
	UpsertPreferences(ctx context.Context, prefs *model.Preferences) error
}

// InboxStore holds in-app notifications.
type InboxStore interface {
	CreateNotification(ctx context.Context, n *model.InboxNotification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.InboxNotification, error)
	MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// CleanupResult reports what Cleanup removed or archived.
type CleanupResult struct {
	DeletedNotifications int64 `json:"deleted_notifications"`
	DeletedAlerts        int64 `json:"deleted_alerts"`
	ArchivedAlerts       int64 `json:"archived_alerts"`
}

// Storage combines every store with lifecycle operations.
type Storage interface {
	AlertStore
	PreferenceStore
	InboxStore

	// Cleanup deletes old inbox rows and long-inactive alerts.
	Cleanup(ctx context.Context, now time.Time) (*CleanupResult, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
