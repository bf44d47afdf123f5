package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"loan-portfolio-engine/internal/utils"
)

// migrations run in order; each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS borrowers (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		phone       TEXT NOT NULL DEFAULT '',
		email       TEXT NOT NULL DEFAULT '',
		address     TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id                    TEXT PRIMARY KEY,
		borrower_id           TEXT NOT NULL,
		principal             NUMERIC(14,2) NOT NULL DEFAULT 0,
		interest              NUMERIC(14,2) NOT NULL DEFAULT 0,
		total_repayable       NUMERIC(14,2) NOT NULL DEFAULT 0,
		repaid_amount         NUMERIC(14,2) NOT NULL DEFAULT 0,
		start_date            DATE,
		due_date              DATE,
		interest_duration     INTEGER NOT NULL DEFAULT 0,
		manual_interest_rate  NUMERIC(8,6),
		status                TEXT NOT NULL DEFAULT '',
		refinanced_from_id    TEXT NOT NULL DEFAULT '',
		refinanced_to_id      TEXT NOT NULL DEFAULT '',
		last_payment_at       TIMESTAMPTZ,
		defaulted_at          TIMESTAMPTZ,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans (borrower_id)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_start_date ON loans (start_date)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id       TEXT PRIMARY KEY,
		loan_id  TEXT NOT NULL REFERENCES loans (id) ON DELETE CASCADE,
		amount   NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		paid_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments (loan_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_paid_at ON payments (paid_at)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id           TEXT PRIMARY KEY,
		amount       NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		spent_at     TIMESTAMPTZ NOT NULL,
		category     TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_spent_at ON expenses (spent_at)`,
	`CREATE TABLE IF NOT EXISTS interest_settings (
		id          SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		settings    JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the schema if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	utils.Logger.Info("Database schema up to date", zap.Int("statements", len(migrations)))
	return nil
}
