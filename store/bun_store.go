package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelq/kestrelq/job"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// BunStore implements Store on top of github.com/uptrace/bun.
//
// Claim uses a row-locking SELECT ... FOR UPDATE SKIP LOCKED inside a
// transaction when the underlying dialect supports it (Postgres).
// Against dialects without row-level locking (SQLite, used by default
// and in tests), it falls back to a single UPDATE ... WHERE ...
// RETURNING statement, which is race-free without needing locks
// because SQLite serializes writers at the database level.
//
// PollEligible only reads: it is a single SELECT, with FOR UPDATE SKIP
// LOCKED added on Postgres and no lock on SQLite. It runs outside any
// transaction, so the returned row is not held; Claim decides which
// executor gets it.
type BunStore struct {
	db *bun.DB
}

// New wraps an already-configured, already-connected *bun.DB. Callers
// must run InitSchema before using the returned Store.
func New(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

func (s *BunStore) supportsRowLocking() bool {
	return s.db.Dialect().Name() == dialect.PG
}

func (s *BunStore) Insert(ctx context.Context, j *job.Job) error {
	m := fromJob(j)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

func (s *BunStore) Claim(ctx context.Context, id uuid.UUID, workerID string) (*job.Job, error) {
	now := time.Now()
	var out *jobModel

	if s.supportsRowLocking() {
		err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			m := new(jobModel)
			err := tx.NewSelect().
				Model(m).
				Where("id = ?", id).
				Where("status IN (?, ?, ?)", job.Pending, job.Queued, job.Retrying).
				For("UPDATE SKIP LOCKED").
				Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			m.Status = job.Running
			m.Attempt++
			m.StartedAt = &now
			m.WorkerID = &workerID
			m.NextRetryAt = nil
			_, err = tx.NewUpdate().
				Model(m).
				Column("status", "attempt", "started_at", "worker_id", "next_retry_at").
				Where("id = ?", id).
				Exec(ctx)
			if err != nil {
				return err
			}
			out = m
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("store: claim: %w", err)
		}
		if out == nil {
			return nil, nil
		}
		return out.toJob(), nil
	}

	m := new(jobModel)
	err := s.db.NewUpdate().
		Model(m).
		Set("status = ?", job.Running).
		Set("attempt = attempt + 1").
		Set("started_at = ?", now).
		Set("worker_id = ?", workerID).
		Set("next_retry_at = NULL").
		Where("id = ?", id).
		Where("status IN (?, ?, ?)", job.Pending, job.Queued, job.Retrying).
		Returning("*").
		Exec(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim: %w", err)
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return m.toJob(), nil
}

// Complete overwrites the row with a Completed outcome. It is not
// restricted to rows currently Running: a Cancel can race an executor
// that already claimed the job, flipping the row to Cancelled before
// the handler returns. The executor's own outcome write wins that
// race, so Complete is allowed to overwrite Cancelled too; only an
// outcome already recorded by Complete or Fail is left alone.
func (s *BunStore) Complete(ctx context.Context, id uuid.UUID, result job.Doc) (*job.Job, error) {
	now := time.Now()
	var out *jobModel
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
		if m.Status == job.Completed || m.Status == job.Failed {
			return ErrInvalidTransition
		}
		duration := now.Sub(derefTime(m.StartedAt, now)).Seconds()
		m.Status = job.Completed
		m.Result = result
		m.ErrorMessage = nil
		m.CompletedAt = &now
		m.DurationSeconds = &duration
		_, err = tx.NewUpdate().
			Model(m).
			Column("status", "result", "error_message", "completed_at", "duration_seconds").
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: complete: %w", err)
	}
	if out == nil {
		return nil, nil
	}
	return out.toJob(), nil
}

// Fail overwrites the row with a Failed outcome under the same
// cancel-race rule as Complete: a Cancelled row can still be
// overwritten, only an already-recorded Complete/Fail outcome cannot.
func (s *BunStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) (*job.Job, error) {
	now := time.Now()
	var out *jobModel
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
		if m.Status == job.Completed || m.Status == job.Failed {
			return ErrInvalidTransition
		}
		duration := now.Sub(derefTime(m.StartedAt, now)).Seconds()
		m.Status = job.Failed
		m.ErrorMessage = &errMsg
		m.CompletedAt = &now
		m.DurationSeconds = &duration
		_, err = tx.NewUpdate().
			Model(m).
			Column("status", "error_message", "completed_at", "duration_seconds").
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: fail: %w", err)
	}
	if out == nil {
		return nil, nil
	}
	return out.toJob(), nil
}

func (s *BunStore) Retry(ctx context.Context, id uuid.UUID, errMsg string, nextRetryAt time.Time) (*job.Job, error) {
	m := new(jobModel)
	_, err := s.db.NewUpdate().
		Model(m).
		Set("status = ?", job.Retrying).
		Set("error_message = ?", errMsg).
		Set("next_retry_at = ?", nextRetryAt).
		Where("id = ?", id).
		Where("status = ?", job.Running).
		Returning("*").
		Exec(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: retry: %w", err)
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return m.toJob(), nil
}

func (s *BunStore) Cancel(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	var out *jobModel
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
		if m.Status.IsTerminal() {
			return ErrInvalidTransition
		}
		m.Status = job.Cancelled
		_, err = tx.NewUpdate().
			Model(m).
			Column("status").
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: cancel: %w", err)
	}
	if out == nil {
		return nil, nil
	}
	return out.toJob(), nil
}

func (s *BunStore) ResetForRetry(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	m := new(jobModel)
	_, err := s.db.NewUpdate().
		Model(m).
		Set("status = ?", job.Queued).
		Set("attempt = 0").
		Set("error_message = NULL").
		Set("result = NULL").
		Set("next_retry_at = NULL").
		Set("started_at = NULL").
		Set("completed_at = NULL").
		Set("duration_seconds = NULL").
		Where("id = ?", id).
		Where("status IN (?, ?)", job.Failed, job.Cancelled).
		Returning("*").
		Exec(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reset for retry: %w", err)
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return m.toJob(), nil
}

func (s *BunStore) DueRetries(ctx context.Context, limit int) ([]*job.Job, error) {
	var models []*jobModel
	err := s.db.NewSelect().
		Model(&models).
		Where("status = ?", job.Retrying).
		Where("next_retry_at <= ?", time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: due retries: %w", err)
	}
	jobs := make([]*job.Job, 0, len(models))
	for _, m := range models {
		jobs = append(jobs, m.toJob())
	}
	return jobs, nil
}

func (s *BunStore) PromoteRetryToQueued(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	m := new(jobModel)
	_, err := s.db.NewUpdate().
		Model(m).
		Set("status = ?", job.Queued).
		Set("next_retry_at = NULL").
		Where("id = ?", id).
		Where("status = ?", job.Retrying).
		Returning("*").
		Exec(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: promote retry: %w", err)
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return m.toJob(), nil
}

func (s *BunStore) PollEligible(ctx context.Context) (*job.Job, error) {
	m := new(jobModel)
	q := s.db.NewSelect().
		Model(m).
		Where("status IN (?, ?)", job.Pending, job.Queued).
		WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.WhereOr("scheduled_at IS NULL").WhereOr("scheduled_at <= ?", time.Now())
		}).
		Order("priority DESC", "created_at ASC").
		Limit(1)
	if s.supportsRowLocking() {
		q = q.For("UPDATE SKIP LOCKED")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: poll eligible: %w", err)
	}
	return m.toJob(), nil
}

func (s *BunStore) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return m.toJob(), nil
}

func (s *BunStore) List(ctx context.Context, filter Filter) ([]*job.Job, error) {
	var models []*jobModel
	q := s.db.NewSelect().Model(&models).Order("created_at DESC")
	if filter.Status != job.Unknown {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	jobs := make([]*job.Job, 0, len(models))
	for _, m := range models {
		jobs = append(jobs, m.toJob())
	}
	return jobs, nil
}

// lockRow loads the row by id, taking a row lock when the dialect
// supports it. It returns (nil, nil) if the row does not exist.
func (s *BunStore) lockRow(ctx context.Context, tx bun.Tx, id uuid.UUID) (*jobModel, error) {
	m := new(jobModel)
	q := tx.NewSelect().Model(m).Where("id = ?", id)
	if s.supportsRowLocking() {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}
