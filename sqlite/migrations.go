package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/etnz/wealth/internal/logger"
)

// migration is one step of the schema history. Steps are applied once, in
// order, each in its own transaction.
type migration struct {
	name string
	fn   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{"base_schema", baseSchema},
	{"add_auto_funding", addAutoFunding},
	{"add_schedule_anchor_day", addScheduleAnchorDay},
}

// migrate applies the migrations not recorded yet in the migrations table.
func migrate(ctx context.Context, db *sql.DB) error {
	log := logger.FromContext(ctx)
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE name = ?", m.name).Scan(&count); err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if count > 0 {
			log.Debug().Str("migration", m.name).Msg("skipping already applied migration")
			continue
		}
		log.Info().Str("migration", m.name).Msg("applying migration")
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := m.fn(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (name) VALUES (?)", m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func execAll(ctx context.Context, tx *sql.Tx, statements ...string) error {
	for _, s := range statements {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// baseSchema creates the four tables. Amounts are decimal strings and dates
// ISO-8601 strings, so that ordering by date is ordering by text.
func baseSchema(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, `
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			type TEXT NOT NULL,
			balance TEXT NOT NULL,
			opening_balance TEXT NOT NULL,
			currency TEXT NOT NULL,
			exchange_rate TEXT NOT NULL DEFAULT '1',
			include_in_net_worth BOOLEAN NOT NULL DEFAULT 1,
			is_liquid_asset BOOLEAN NOT NULL DEFAULT 0,
			goal_amount TEXT,
			goal_date TEXT,
			sort_order INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			notes TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1
		);`, `
		CREATE TABLE transactions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			date TEXT NOT NULL,
			amount TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			from_account_id TEXT REFERENCES accounts(id),
			to_account_id TEXT REFERENCES accounts(id),
			category TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			batch_id TEXT
		);`,
		`CREATE INDEX idx_transactions_date ON transactions(date, seq);`,
		`CREATE INDEX idx_transactions_batch ON transactions(batch_id);`, `
		CREATE TABLE schedule_entries (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			from_account_id TEXT REFERENCES accounts(id),
			to_account_id TEXT REFERENCES accounts(id),
			frequency TEXT NOT NULL,
			next_run_date TEXT NOT NULL,
			is_manual BOOLEAN NOT NULL DEFAULT 0,
			category TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX idx_schedule_next_run ON schedule_entries(next_run_date);`, `
		CREATE TABLE categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			type TEXT NOT NULL,
			budget_limit TEXT NOT NULL DEFAULT '0'
		);`,
	)
}

// addAutoFunding promotes the auto-funding settings of sinking funds to
// columns of their own.
func addAutoFunding(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`ALTER TABLE accounts ADD COLUMN auto_fund_enabled BOOLEAN NOT NULL DEFAULT 0;`,
		`ALTER TABLE accounts ADD COLUMN funding_term_months INTEGER NOT NULL DEFAULT 0;`,
	)
}

// addScheduleAnchorDay stores the day of month monthly entries return to,
// initialized from the current next run date.
func addScheduleAnchorDay(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`ALTER TABLE schedule_entries ADD COLUMN anchor_day INTEGER NOT NULL DEFAULT 0;`,
		`UPDATE schedule_entries SET anchor_day = CAST(substr(next_run_date, 9, 2) AS INTEGER);`,
	)
}
