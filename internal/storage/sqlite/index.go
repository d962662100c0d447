// Package sqlite persists the run index of an output directory: which
// batches ran there, which configurations each batch completed and the
// stages of every successful run.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/cavesweep/internal/monitoring"
	"github.com/banshee-data/cavesweep/internal/solver"
)

// FileName is the index database name inside an output directory.
const FileName = "runs.db"

// Run statuses stored in the index.
const (
	RunOK     = "ok"
	RunFailed = "failed"
)

// RunIndex is the SQLite-backed run index.
type RunIndex struct {
	db   *sql.DB
	path string
}

// RunRecord is one configuration's outcome within a batch.
type RunRecord struct {
	Fingerprint string
	Index       int
	Status      string
	Stages      int
	Duration    time.Duration
	Error       string
	// Result holds the stages of an ok run.
	Result *solver.RunResult
}

// BatchRecord summarises one batch.
type BatchRecord struct {
	BatchID     string
	StartedAt   time.Time
	CompletedAt *time.Time
	Total       int
	Failed      int
	Skipped     int
	Matches     int
	Status      string
}

// Open opens or creates the index at path and applies pending migrations.
func Open(path string) (*RunIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run index %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	x := &RunIndex{db: db, path: path}
	if err := x.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return x, nil
}

// OpenInDir opens the index stored in an output directory.
func OpenInDir(dir string) (*RunIndex, error) {
	return Open(filepath.Join(dir, FileName))
}

// Path returns the database file path.
func (x *RunIndex) Path() string { return x.path }

// Close closes the database.
func (x *RunIndex) Close() error {
	return x.db.Close()
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

// BeginBatch records the start of a batch.
func (x *RunIndex) BeginBatch(ctx context.Context, batchID string, startedAt time.Time, total int) error {
	return retryOnBusy(ctx, func() error {
		_, err := x.db.ExecContext(ctx,
			`INSERT INTO batches (batch_id, started_at, total) VALUES (?, ?, ?)`,
			batchID, startedAt.UnixNano(), total)
		return err
	})
}

// RecordRuns stores run outcomes for a batch in one transaction. A
// fingerprint already recorded for the batch is left unchanged.
func (x *RunIndex) RecordRuns(ctx context.Context, batchID string, runs []RunRecord) error {
	if len(runs) == 0 {
		return nil
	}
	return retryOnBusy(ctx, func() error {
		tx, err := x.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO runs (batch_id, fingerprint, run_index, status, stages, duration_ms, error, result)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range runs {
			var errText interface{}
			if r.Error != "" {
				errText = r.Error
			}
			result, err := encodeResult(r.Result)
			if err != nil {
				return fmt.Errorf("encode result of %s: %w", r.Fingerprint, err)
			}
			if _, err := stmt.ExecContext(ctx, batchID, r.Fingerprint, r.Index, r.Status, r.Stages, r.Duration.Milliseconds(), errText, result); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// FinishBatch stores the final counters of a batch.
func (x *RunIndex) FinishBatch(ctx context.Context, batchID string, completedAt time.Time, status string, failed, skipped, matches int) error {
	return retryOnBusy(ctx, func() error {
		res, err := x.db.ExecContext(ctx, `
			UPDATE batches SET completed_at = ?, status = ?, failed = ?, skipped = ?, matches = ?
			WHERE batch_id = ?`,
			completedAt.UnixNano(), status, failed, skipped, matches, batchID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("batch %s not found", batchID)
		}
		return nil
	})
}

// CompletedRuns returns the stored result of every fingerprint with a
// successful run in any batch. The most recent run wins. Runs recorded
// without their stages are not returned.
func (x *RunIndex) CompletedRuns(ctx context.Context) (map[string]*solver.RunResult, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT fingerprint, result FROM runs
		WHERE status = ? AND result IS NOT NULL
		ORDER BY rowid`, RunOK)
	if err != nil {
		return nil, fmt.Errorf("query completed runs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*solver.RunResult)
	for rows.Next() {
		var fp, data string
		if err := rows.Scan(&fp, &data); err != nil {
			return nil, err
		}
		res, err := decodeResult(data)
		if err != nil {
			monitoring.Logf("[runindex] WARNING: unreadable result for %s: %v", fp, err)
			continue
		}
		out[fp] = res
	}
	return out, rows.Err()
}

// Batches lists recorded batches, oldest first.
func (x *RunIndex) Batches(ctx context.Context) ([]BatchRecord, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT batch_id, started_at, completed_at, total, failed, skipped, matches, status
		FROM batches ORDER BY started_at, batch_id`)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var (
			b         BatchRecord
			started   int64
			completed sql.NullInt64
		)
		if err := rows.Scan(&b.BatchID, &started, &completed, &b.Total, &b.Failed, &b.Skipped, &b.Matches, &b.Status); err != nil {
			return nil, err
		}
		b.StartedAt = time.Unix(0, started).UTC()
		if completed.Valid {
			t := time.Unix(0, completed.Int64).UTC()
			b.CompletedAt = &t
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Runs lists the runs recorded for a batch in run order.
func (x *RunIndex) Runs(ctx context.Context, batchID string) ([]RunRecord, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT fingerprint, run_index, status, stages, duration_ms, COALESCE(error, '')
		FROM runs WHERE batch_id = ? ORDER BY run_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r  RunRecord
			ms int64
		)
		if err := rows.Scan(&r.Fingerprint, &r.Index, &r.Status, &r.Stages, &ms, &r.Error); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// retryOnBusy retries fn while SQLite reports the database as locked.
func retryOnBusy(ctx context.Context, fn func() error) error {
	const attempts = 5
	backoff := 20 * time.Millisecond

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		monitoring.Logf("[runindex] database busy, retrying in %v (attempt %d/%d)", backoff, i+1, attempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
