package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

// RunLedger persists run summaries and the single in-flight lock in the state database.
type RunLedger struct {
	db  *sql.DB
	now func() time.Time
}

var _ ports.RunLedger = (*RunLedger)(nil)

// NewRunLedger expects a database migrated with RunMigrations.
func NewRunLedger(db *sql.DB) *RunLedger {
	return &RunLedger{db: db, now: time.Now}
}

// Acquire takes the pipeline lock for runID. An expired lock is taken over;
// a live one yields domain.ErrRunInProgress.
func (l *RunLedger) Acquire(ctx context.Context, runID string, ttl time.Duration) error {
	now := l.now().UTC()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin acquire: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := builder.Delete("run_lock").Where(sq.Lt{"expires_at": now.UnixMilli()}).ToSql()
	if err != nil {
		return fmt.Errorf("build lock cleanup: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear expired lock: %w", err)
	}

	query, args, err = builder.Insert("run_lock").
		Columns("id", "run_id", "acquired_at", "expires_at").
		Values(1, runID, now.UnixMilli(), now.Add(ttl).UnixMilli()).
		Suffix("ON CONFLICT(id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build lock insert: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert lock: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("lock rows affected: %w", err)
	} else if n == 0 {
		return domain.ErrRunInProgress
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit acquire: %w", err)
	}
	return nil
}

// Renew pushes the lock expiry to now+ttl while runID holds it.
func (l *RunLedger) Renew(ctx context.Context, runID string, ttl time.Duration) error {
	now := l.now().UTC()
	query, args, err := builder.Update("run_lock").
		Set("expires_at", now.Add(ttl).UnixMilli()).
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build renew: %w", err)
	}
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("renew lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renew rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrLockLost
	}
	return nil
}

// Release drops the lock if runID still holds it.
func (l *RunLedger) Release(ctx context.Context, runID string) error {
	query, args, err := builder.Delete("run_lock").Where(sq.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return fmt.Errorf("build release: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Start records a run as running.
func (l *RunLedger) Start(ctx context.Context, summary domain.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	query, args, err := builder.Insert("runs").
		Columns("id", "run_trigger", "status", "started_at", "summary").
		Values(summary.RunID, string(summary.Trigger), string(summary.Status), summary.StartedAt.UTC().UnixMilli(), string(payload)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run %s: %w", summary.RunID, err)
	}
	return nil
}

// Finish stores the final summary of a run.
func (l *RunLedger) Finish(ctx context.Context, summary domain.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	var proposalURL any
	if summary.Proposal != nil {
		proposalURL = summary.Proposal.URL
	}
	query, args, err := builder.Update("runs").
		Set("status", string(summary.Status)).
		Set("finished_at", summary.FinishedAt.UTC().UnixMilli()).
		Set("new_count", len(summary.NewNames)).
		Set("proposal_url", proposalURL).
		Set("summary", string(payload)).
		Where(sq.Eq{"id": summary.RunID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run update: %w", err)
	}
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", summary.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", summary.RunID, domain.ErrRunNotFound)
	}
	return nil
}

// Get returns the stored summary of one run.
func (l *RunLedger) Get(ctx context.Context, runID string) (domain.RunSummary, error) {
	query, args, err := builder.Select("summary").From("runs").Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("build run query: %w", err)
	}
	var payload string
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RunSummary{}, domain.ErrRunNotFound
		}
		return domain.RunSummary{}, fmt.Errorf("query run %s: %w", runID, err)
	}
	var summary domain.RunSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return domain.RunSummary{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return summary, nil
}

// List returns the most recent runs first.
func (l *RunLedger) List(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := builder.Select("summary").From("runs").
		OrderBy("started_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var summary domain.RunSummary
		if err := json.Unmarshal([]byte(payload), &summary); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
