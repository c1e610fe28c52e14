package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE lock_not_available, raised when lock_timeout expires.
const codeLockNotAvailable = "55P03"

// Querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// DB owns the pool and the ambient transaction carried in context.
type DB struct {
	Pool        *pgxpool.Pool
	LockTimeout time.Duration
	Log         *logger.Logger
}

func NewDB(pool *pgxpool.Pool, lockTimeout time.Duration, log *logger.Logger) *DB {
	return &DB{Pool: pool, LockTimeout: lockTimeout, Log: log}
}

// WithTx runs fn inside a transaction. If ctx already carries one, fn joins it
// and the outermost caller decides commit or rollback.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return MapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if v := recover(); v != nil {
			d.Log.Errorw("rolling back transaction due to panic", "panic", v)
			_ = tx.Rollback(context.Background())
			panic(v)
		}
	}()

	if d.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.LockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return MapError(err)
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rerr := tx.Rollback(context.Background()); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			d.Log.Errorw("rollback failed", "error", rerr, "cause", err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return MapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Q returns the ambient transaction if there is one, else the pool.
func (d *DB) Q(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return d.Pool
}

// Outside returns the pool, ignoring any ambient transaction. Reads that must
// not join the caller's transaction use it, since a failed statement aborts
// the whole transaction.
func (d *DB) Outside() Querier { return d.Pool }

// MapError translates driver errors into domain sentinels.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ierr.WithError(err).Mark(ierr.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable {
		return ierr.WithError(err).
			WithHint("the record is busy, try again shortly").
			Mark(ierr.ErrLockTimeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ierr.WithError(err).Mark(ierr.ErrLockTimeout)
	}
	return ierr.WithError(err).Mark(ierr.ErrDatabase)
}
