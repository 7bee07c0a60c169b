package store

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*jobModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createDispatchIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_priority").
		Column("status", "priority").
		IfNotExists().
		Exec(ctx)
	return err
}

func createScheduledIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_scheduled_at").
		Column("scheduled_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func createRetryIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_next_retry_at").
		Column("next_retry_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func initDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createTable(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createDispatchIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createScheduledIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createRetryIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// InitSchema creates the jobs table and its supporting indexes inside a
// single transaction, rolling back on any failure.
//
// InitSchema is idempotent and may be called on every process startup;
// it never drops or alters existing objects.
func InitSchema(ctx context.Context, db *bun.DB) error {
	return initDB(ctx, db)
}

// MustInitSchema behaves like InitSchema but panics on failure. It is
// intended for use at application bootstrap, where an unusable schema
// is not recoverable.
func MustInitSchema(ctx context.Context, db *bun.DB) {
	if err := initDB(ctx, db); err != nil {
		panic(err)
	}
}
