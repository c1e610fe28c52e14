package postgres

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// abortedTx stands in for a transaction that already failed; any call panics.
type abortedTx struct{ pgx.Tx }

func newLazyDB(t *testing.T) *DB {
	t.Helper()
	// pgxpool dials lazily, so no server is needed
	pool, err := pgxpool.New(context.Background(), "postgres://billing@127.0.0.1:1/billing")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewDB(pool, 0, logger.NewNop())
}

func TestQueryRouting(t *testing.T) {
	db := newLazyDB(t)
	tx := &abortedTx{}
	ctx := context.WithValue(context.Background(), txKey{}, pgx.Tx(tx))

	assert.Same(t, db.Pool, db.Q(context.Background()))
	assert.Same(t, tx, db.Q(ctx))
	assert.Same(t, db.Pool, db.Outside())
}

func TestWithTxJoinsAmbientTransaction(t *testing.T) {
	db := newLazyDB(t)
	tx := &abortedTx{}
	ctx := context.WithValue(context.Background(), txKey{}, pgx.Tx(tx))

	var joined Querier
	require.NoError(t, db.WithTx(ctx, func(ctx context.Context) error {
		joined = db.Q(ctx)
		return nil
	}))
	assert.Same(t, tx, joined)
}
