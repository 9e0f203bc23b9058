package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

const alertColumns = `id, user_id, token, condition, target_price, active, channels, last_triggered, archived, created_at, updated_at`

const preferenceColumns = `user_id, email, phone_number, telegram_chat_id, slack_webhook_url, webhook_url, channels, created_at, updated_at`

const notificationColumns = `id, user_id, alert_id, type, title, message, token, condition, target_price, current_price, is_read, read_at, created_at`

// SQLStore implements Storage on top of sqlx. Queries are written with '?'
// placeholders and rebound for the active driver.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects to driver using dsn and applies pending migrations.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLite(dsn)
	case DriverPostgres:
		db, err := sqlx.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return newSQLStore(db)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under the concurrent monitor pool.
	db.SetMaxOpenConns(1)

	return newSQLStore(db)
}

func newSQLStore(db *sqlx.DB) (*SQLStore, error) {
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) CreateAlert(ctx context.Context, alert *model.Alert) error {
	alert.Token = model.NormalizeToken(alert.Token)
	if err := alert.Validate(); err != nil {
		return err
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = alert.CreatedAt

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		alert.ID, alert.UserID, alert.Token, alert.Condition, alert.TargetPrice,
		alert.Active, alert.Channels, alert.LastTriggered, alert.Archived, alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	var a model.Alert
	err := s.db.GetContext(ctx, &a, s.db.Rebind(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return &a, nil
}

func (s *SQLStore) ListAlerts(ctx context.Context, userID string) ([]model.Alert, error) {
	var alerts []model.Alert
	err := s.db.SelectContext(ctx, &alerts, s.db.Rebind(
		`SELECT `+alertColumns+` FROM alerts WHERE user_id = ? ORDER BY created_at, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func (s *SQLStore) ListActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	var alerts []model.Alert
	err := s.db.SelectContext(ctx, &alerts, s.db.Rebind(
		`SELECT `+alertColumns+` FROM alerts WHERE active = ? ORDER BY created_at, id`), true)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	return alerts, nil
}

func (s *SQLStore) SetAlertActive(ctx context.Context, userID, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE alerts SET active = ?, updated_at = ? WHERE id = ? AND user_id = ?`),
		active, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	return expectRow(res, "alert", id)
}

func (s *SQLStore) DeleteAlert(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM alerts WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return expectRow(res, "alert", id)
}

func (s *SQLStore) UpdateTriggered(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE alerts SET last_triggered = ?, updated_at = ? WHERE id = ?`), at, at, id)
	if err != nil {
		return fmt.Errorf("update last_triggered: %w", err)
	}
	return expectRow(res, "alert", id)
}

func (s *SQLStore) GetPreferences(ctx context.Context, userID string) (*model.Preferences, error) {
	var p model.Preferences
	err := s.db.GetContext(ctx, &p, s.db.Rebind(
		`SELECT `+preferenceColumns+` FROM user_preferences WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preferences for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) UpsertPreferences(ctx context.Context, prefs *model.Preferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if prefs.CreatedAt.IsZero() {
		prefs.CreatedAt = now
	}
	prefs.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO user_preferences (`+preferenceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			email = excluded.email,
			phone_number = excluded.phone_number,
			telegram_chat_id = excluded.telegram_chat_id,
			slack_webhook_url = excluded.slack_webhook_url,
			webhook_url = excluded.webhook_url,
			channels = excluded.channels,
			updated_at = excluded.updated_at`),
		prefs.UserID, prefs.Email, prefs.PhoneNumber, prefs.TelegramChatID,
		prefs.SlackWebhookURL, prefs.WebhookURL, prefs.Channels, prefs.CreatedAt, prefs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateNotification(ctx context.Context, n *model.InboxNotification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Type == "" {
		n.Type = "price_alert"
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.UserID, n.AlertID, n.Type, n.Title, n.Message, n.Token, n.Condition,
		n.TargetPrice, n.CurrentPrice, n.Read, n.ReadAt, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *SQLStore) ListNotifications(ctx context.Context, userID string, limit int) ([]model.InboxNotification, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.InboxNotification
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ?
		 ORDER BY created_at DESC, id LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (s *SQLStore) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		`UPDATE notifications SET is_read = ?, read_at = ? WHERE user_id = ? AND is_read = ? AND id IN (?)`,
		true, time.Now().UTC(), userID, false, ids)
	if err != nil {
		return 0, fmt.Errorf("build mark read query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE notifications SET is_read = ?, read_at = ? WHERE user_id = ? AND is_read = ?`),
		true, time.Now().UTC(), userID, false)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) Cleanup(ctx context.Context, now time.Time) (*CleanupResult, error) {
	now = now.UTC()
	result := &CleanupResult{}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM notifications WHERE created_at < ?`), now.Add(-NotificationRetention))
	if err != nil {
		return nil, fmt.Errorf("delete old notifications: %w", err)
	}
	result.DeletedNotifications, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM alerts WHERE active = ? AND updated_at < ?`), false, now.Add(-InactiveAlertRetention))
	if err != nil {
		return nil, fmt.Errorf("delete inactive alerts: %w", err)
	}
	result.DeletedAlerts, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE alerts SET archived = ?, archived_at = ? WHERE archived = ? AND last_triggered < ?`),
		true, now, false, now.Add(-TriggeredAlertArchiveAge))
	if err != nil {
		return nil, fmt.Errorf("archive triggered alerts: %w", err)
	}
	result.ArchivedAlerts, _ = res.RowsAffected()

	return result, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func expectRow(res sql.Result, kind, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
