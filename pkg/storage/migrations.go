package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Statements are portable between SQLite and PostgreSQL.
var migrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS alerts (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		token          TEXT NOT NULL,
		condition      TEXT NOT NULL CHECK(condition IN ('above', 'below')),
		target_price   DOUBLE PRECISION NOT NULL CHECK(target_price > 0),
		active         BOOLEAN NOT NULL DEFAULT TRUE,
		channels       TEXT NOT NULL DEFAULT '[]',
		last_triggered TIMESTAMP,
		created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(active);
	CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id);

	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id           TEXT PRIMARY KEY,
		email             TEXT NOT NULL DEFAULT '',
		phone_number      TEXT NOT NULL DEFAULT '',
		telegram_chat_id  TEXT NOT NULL DEFAULT '',
		slack_webhook_url TEXT NOT NULL DEFAULT '',
		webhook_url       TEXT NOT NULL DEFAULT '',
		channels          TEXT NOT NULL DEFAULT '["in-app"]',
		created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		alert_id      TEXT NOT NULL,
		type          TEXT NOT NULL DEFAULT 'price_alert',
		title         TEXT NOT NULL,
		message       TEXT NOT NULL,
		token         TEXT NOT NULL,
		condition     TEXT NOT NULL,
		target_price  DOUBLE PRECISION NOT NULL,
		current_price DOUBLE PRECISION NOT NULL,
		is_read       BOOLEAN NOT NULL DEFAULT FALSE,
		read_at       TIMESTAMP,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);`,

	// Migration 2: Archive flag for long-quiet alerts
	`ALTER TABLE alerts ADD COLUMN archived BOOLEAN NOT NULL DEFAULT FALSE;
	ALTER TABLE alerts ADD COLUMN archived_at TIMESTAMP;`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	if err := db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(tx.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
