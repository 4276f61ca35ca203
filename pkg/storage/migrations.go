package storage

import (
	"database/sql"
	"fmt"
)

// Both dialects accept this DDL. Calendar dates are stored as YYYY-MM-DD text
// so the rules can compare them without driver-specific date handling.
var migrations = []string{
	// Migration 1: alerts
	`CREATE TABLE IF NOT EXISTS alerts (
		id              TEXT PRIMARY KEY,
		alert_type      TEXT NOT NULL,
		condition_key   TEXT NOT NULL UNIQUE,
		title           TEXT NOT NULL,
		message         TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'sent', 'failed')),
		client_id       TEXT NOT NULL DEFAULT '',
		subscription_id TEXT NOT NULL DEFAULT '',
		installment_id  TEXT NOT NULL DEFAULT '',
		metadata        TEXT NOT NULL DEFAULT '{}',
		webhook_url     TEXT NOT NULL DEFAULT '',
		attempts        INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP NOT NULL,
		sent_at         TIMESTAMP NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_status_created ON alerts(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(alert_type);`,

	// Migration 2: business entities read by the rules
	`CREATE TABLE IF NOT EXISTS clients (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		email           TEXT NOT NULL DEFAULT '',
		discord_channel TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id         TEXT PRIMARY KEY,
		client_id  TEXT NOT NULL REFERENCES clients(id),
		plan       TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'canceled', 'expired')),
		start_date TEXT NOT NULL,
		end_date   TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_end ON subscriptions(status, end_date);

	CREATE TABLE IF NOT EXISTS installments (
		id              TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL REFERENCES subscriptions(id),
		amount          REAL NOT NULL DEFAULT 0,
		due_date        TEXT NOT NULL,
		paid_at         TIMESTAMP NULL
	);

	CREATE INDEX IF NOT EXISTS idx_installments_due ON installments(due_date);

	CREATE TABLE IF NOT EXISTS program_stages (
		id              TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL REFERENCES subscriptions(id),
		stage_number    INTEGER NOT NULL,
		stage_name      TEXT NOT NULL,
		start_date      TEXT NOT NULL,
		end_date        TEXT NOT NULL,
		completed_at    TIMESTAMP NULL,
		UNIQUE (subscription_id, stage_number)
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB, d Dialect) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(d.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
