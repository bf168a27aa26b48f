package artifact

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger is a small SQLite table tracking every live job directory. Job
// state itself is never persisted; the ledger exists solely so a restarted
// daemon can sweep directories whose jobs died with the previous process —
// the one cleanup path an in-memory registry cannot cover.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenLedger opens (or creates) the ledger database inside dataDir.
// Pass ":memory:" as dataDir for an in-memory ledger (used by tests).
func OpenLedger(dataDir string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "ledger.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging ledger: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent jobs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS job_dirs (
		job_id     TEXT PRIMARY KEY,
		dir        TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	return &Ledger{db: db, logger: logger}, nil
}

// Record registers a job directory as live.
func (l *Ledger) Record(ctx context.Context, jobID, dir string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO job_dirs (job_id, dir, created_at) VALUES (?, ?, ?)`,
		jobID, dir, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	return nil
}

// Forget removes a job's entry after its directory is gone.
func (l *Ledger) Forget(ctx context.Context, jobID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM job_dirs WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("ledger forget: %w", err)
	}
	return nil
}

// Sweep removes every directory still registered and clears the table.
// Called once on startup, before any new job is accepted.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT job_id, dir FROM job_dirs`)
	if err != nil {
		return 0, fmt.Errorf("ledger sweep query: %w", err)
	}
	defer rows.Close()

	type entry struct{ jobID, dir string }
	var orphans []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.jobID, &e.dir); err != nil {
			return 0, fmt.Errorf("ledger sweep scan: %w", err)
		}
		orphans = append(orphans, e)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("ledger sweep rows: %w", err)
	}

	swept := 0
	for _, e := range orphans {
		if err := os.RemoveAll(e.dir); err != nil {
			l.logger.Warn("ledger.sweep.remove_failed", "job_id", e.jobID, "dir", e.dir, "error", err)
			continue
		}
		if err := l.Forget(ctx, e.jobID); err != nil {
			l.logger.Warn("ledger.sweep.forget_failed", "job_id", e.jobID, "error", err)
			continue
		}
		l.logger.Info("ledger.sweep.removed_orphan", "job_id", e.jobID, "dir", e.dir)
		swept++
	}
	return swept, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
