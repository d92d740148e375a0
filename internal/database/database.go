package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// Open connects to the persistence destination. A postgres:// URL selects the
// pgx driver; anything else is treated as a sqlite file path, the default for
// the single-machine deployment.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		db, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		return db, nil
	}

	dsn := sqliteDSN(databaseURL)
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", databaseURL, err)
	}
	// Single connection: sqlite has one writer anyway, and the batch worker
	// is the only component issuing writes.
	db.SetMaxOpenConns(1)
	return db, nil
}

// sqliteDSN applies the batch-insert pragmas the collector has always run
// with (WAL, relaxed sync, in-memory temp store).
func sqliteDSN(path string) string {
	pragmas := url.Values{}
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "synchronous(OFF)")
	pragmas.Add("_pragma", "temp_store(MEMORY)")
	pragmas.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + pragmas.Encode()
}
