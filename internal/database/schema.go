package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS rounds (
	id BIGSERIAL PRIMARY KEY,
	round_id BIGINT NOT NULL,
	ts DOUBLE PRECISION NOT NULL,
	bookmaker TEXT NOT NULL,
	score DOUBLE PRECISION,
	total_win DOUBLE PRECISION,
	total_players INTEGER
);

CREATE TABLE IF NOT EXISTS snapshots (
	id BIGSERIAL PRIMARY KEY,
	round_id BIGINT NOT NULL,
	ts DOUBLE PRECISION NOT NULL,
	bookmaker TEXT NOT NULL,
	current_score DOUBLE PRECISION,
	current_players INTEGER,
	current_players_win DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS earnings (
	id BIGSERIAL PRIMARY KEY,
	round_id BIGINT NOT NULL,
	ts DOUBLE PRECISION NOT NULL,
	bookmaker TEXT NOT NULL,
	bet_amount DOUBLE PRECISION,
	auto_stop DOUBLE PRECISION,
	balance DOUBLE PRECISION
);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS rounds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	round_id INTEGER NOT NULL,
	ts REAL NOT NULL,
	bookmaker TEXT NOT NULL,
	score REAL,
	total_win REAL,
	total_players INTEGER
);

CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	round_id INTEGER NOT NULL,
	ts REAL NOT NULL,
	bookmaker TEXT NOT NULL,
	current_score REAL,
	current_players INTEGER,
	current_players_win REAL
);

CREATE TABLE IF NOT EXISTS earnings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	round_id INTEGER NOT NULL,
	ts REAL NOT NULL,
	bookmaker TEXT NOT NULL,
	bet_amount REAL,
	auto_stop REAL,
	balance REAL
);
`

// InitSchema ensures the three record tables exist. One table per record
// kind; batches map 1:1 to multi-row insert transactions on these tables.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	slog.Info("🛡️ [Database] Initializing Schema...", "driver", db.DriverName())

	schema := schemaSQLite
	if db.DriverName() == "pgx" {
		schema = schemaPostgres
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_rounds_bookmaker ON rounds(bookmaker, round_id)",
		"CREATE INDEX IF NOT EXISTS idx_snapshots_round ON snapshots(bookmaker, round_id)",
		"CREATE INDEX IF NOT EXISTS idx_earnings_round ON earnings(bookmaker, round_id)",
	}
	for _, idx := range indices {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			slog.Warn("failed_to_create_index", "err", err)
		}
	}

	slog.Info("✅ [Database] Schema is ready.")
	return nil
}
