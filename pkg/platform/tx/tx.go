// Package tx carries a SQL transaction through a context so store methods
// join the caller's transaction without changing their signatures.
package tx

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	dErrors "waterlily/pkg/domain-errors"
	"waterlily/pkg/requestcontext"
)

// DefaultTimeout bounds a transaction when the runner is given no timeout.
const DefaultTimeout = 5 * time.Second

type ctxKey struct{}

var txKey = ctxKey{}

// Querier is the subset of *sql.DB and *sql.Tx used by stores.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// QuerierFrom returns the transaction in ctx, or db when there is none.
func QuerierFrom(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// SQLRunner opens one database transaction per RunInTx call.
type SQLRunner struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger
}

func NewSQLRunner(db *sql.DB, timeout time.Duration, logger *slog.Logger) *SQLRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLRunner{db: db, timeout: timeout, logger: logger}
}

// RunInTx runs fn with a transaction attached to its context. The transaction
// commits when fn returns nil and rolls back otherwise. It is bounded by the
// runner's timeout or the caller's deadline, whichever is sooner. A call made
// while a transaction is already attached joins it.
func (r *SQLRunner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	// The caller's deadline wins only when it is sooner.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return abortErr(ctx, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.WarnContext(ctx, "transaction rollback failed",
				"error", rbErr,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return abortErr(ctx, err)
	}

	if err := sqlTx.Commit(); err != nil {
		return abortErr(ctx, err)
	}
	committed = true
	return nil
}

// abortErr reports a cancelled or expired transaction as a timeout, keeping
// domain errors raised by fn intact.
func abortErr(ctx context.Context, err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: "+ctxErr.Error())
	}
	return err
}
