package pipeline

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aviator-tracker-go/internal/models"

	"github.com/jmoiron/sqlx"
)

const (
	insertRounds = `INSERT INTO rounds (round_id, ts, bookmaker, score, total_win, total_players)
		VALUES (:round_id, :ts, :bookmaker, :score, :total_win, :total_players)`
	insertSnapshots = `INSERT INTO snapshots (round_id, ts, bookmaker, current_score, current_players, current_players_win)
		VALUES (:round_id, :ts, :bookmaker, :current_score, :current_players, :current_players_win)`
	insertEarnings = `INSERT INTO earnings (round_id, ts, bookmaker, bet_amount, auto_stop, balance)
		VALUES (:round_id, :ts, :bookmaker, :bet_amount, :auto_stop, :balance)`
)

type roundRow struct {
	models.Round
	TS        float64 `db:"ts"`
	Bookmaker string  `db:"bookmaker"`
}

type snapshotRow struct {
	models.Snapshot
	TS        float64 `db:"ts"`
	Bookmaker string  `db:"bookmaker"`
}

type earningsRow struct {
	models.Earnings
	TS        float64 `db:"ts"`
	Bookmaker string  `db:"bookmaker"`
}

// Writer applies one batch as a single all-or-nothing transaction. A
// transient failure gets up to retries immediate re-attempts, then the batch
// is abandoned: items are never re-queued (at-most-once delivery, so a dying
// database cannot amplify load through retry storms).
type Writer struct {
	db      *sqlx.DB
	retries int
}

func NewWriter(db *sqlx.DB, retries int) *Writer {
	if retries < 0 {
		retries = 0
	}
	return &Writer{db: db, retries: retries}
}

// Commit writes every item of the batch inside one transaction. The returned
// error, if any, is a *WriteError whose Transient flag reflects the last
// attempt; the caller discards the batch either way.
func (w *Writer) Commit(ctx context.Context, b *Batch) error {
	if b == nil || len(b.Items) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			slog.Warn("📝 Writer: retrying transient failure",
				"destination", b.Key.String(),
				"attempt", attempt,
				"err", lastErr)
		}

		lastErr = w.commitOnce(ctx, b)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			break
		}
	}

	return &WriteError{
		Key:       b.Key,
		BatchSize: len(b.Items),
		Transient: isTransient(lastErr),
		Err:       lastErr,
	}
}

func (w *Writer) commitOnce(ctx context.Context, b *Batch) error {
	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			slog.Debug("📝 Writer: Rollback skipped", "reason", "already_committed")
		}
	}()

	query, rows, err := rowsForBatch(b)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("insert %s: %w", b.Key.Kind, err)
	}
	return tx.Commit()
}

// rowsForBatch maps records to table rows. All items of a batch share one
// destination key, so the batch targets exactly one table.
func rowsForBatch(b *Batch) (string, interface{}, error) {
	switch b.Key.Kind {
	case models.KindRound:
		rows := make([]roundRow, 0, len(b.Items))
		for _, rec := range b.Items {
			if rec.Round == nil {
				return "", nil, fmt.Errorf("record for %s missing round payload", b.Key)
			}
			rows = append(rows, roundRow{Round: *rec.Round, TS: unixSeconds(rec.Timestamp), Bookmaker: rec.Bookmaker})
		}
		return insertRounds, rows, nil

	case models.KindSnapshot:
		rows := make([]snapshotRow, 0, len(b.Items))
		for _, rec := range b.Items {
			if rec.Snapshot == nil {
				return "", nil, fmt.Errorf("record for %s missing snapshot payload", b.Key)
			}
			rows = append(rows, snapshotRow{Snapshot: *rec.Snapshot, TS: unixSeconds(rec.Timestamp), Bookmaker: rec.Bookmaker})
		}
		return insertSnapshots, rows, nil

	case models.KindEarnings:
		rows := make([]earningsRow, 0, len(b.Items))
		for _, rec := range b.Items {
			if rec.Earnings == nil {
				return "", nil, fmt.Errorf("record for %s missing earnings payload", b.Key)
			}
			rows = append(rows, earningsRow{Earnings: *rec.Earnings, TS: unixSeconds(rec.Timestamp), Bookmaker: rec.Bookmaker})
		}
		return insertEarnings, rows, nil

	default:
		return "", nil, fmt.Errorf("unknown record kind %q", b.Key.Kind)
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// isTransient classifies commit failures. Lock contention, timeouts and
// connection drops are worth one more attempt; everything else (constraint
// violations, malformed statements) will fail identically on retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"database is locked", "busy", "timeout", "connection reset", "connection refused", "broken pipe", "deadlock"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
