// Package postgres implements the persistence ports on PostgreSQL via pgx.
// All import/restore work runs inside a single pgx transaction; best-effort
// steps nest a savepoint so their failure cannot poison the outer
// transaction.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/infra/cache"
	"github.com/rvelloso/finledger-go/internal/port"
)

var tracer = otel.Tracer("postgres")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same SQL
// methods serve pooled reads and transactional work.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store implements port.Store on a pgx pool.
type Store struct {
	queries

	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates the store. schemaTTL bounds how long introspected column
// sets are reused before being re-read from information_schema.
func NewStore(pool *pgxpool.Pool, schemaTTL time.Duration, logger *zap.Logger) *Store {
	colCache := cache.New[map[string]bool](schemaTTL)
	return &Store{
		queries: queries{q: pool, logger: logger, colCache: colCache},
		pool:    pool,
		logger:  logger,
	}
}

// Ping reports database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunInTx executes fn inside one database transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(tx port.Tx) error) error {
	ctx, span := tracer.Start(ctx, "Store.RunInTx")
	defer span.End()

	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	t := &Tx{queries: queries{q: pgtx, logger: s.logger, colCache: s.colCache}, tx: pgtx}
	if err := fn(t); err != nil {
		if rbErr := pgtx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			s.logger.Error("postgres: rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return pgtx.Commit(ctx)
}

// Tx implements port.Tx on a live pgx transaction.
type Tx struct {
	queries

	tx pgx.Tx
}

// BestEffort runs fn inside a savepoint (pgx nested transaction). On
// failure the savepoint is rolled back and the error returned; the outer
// transaction stays usable.
func (t *Tx) BestEffort(ctx context.Context, fn func(tx port.Tx) error) error {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}

	inner := &Tx{queries: queries{q: nested, logger: t.logger, colCache: t.colCache}, tx: nested}
	if err := fn(inner); err != nil {
		if rbErr := nested.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			t.logger.Error("postgres: savepoint rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return nested.Commit(ctx)
}
