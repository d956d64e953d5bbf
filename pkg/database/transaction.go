package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

// Tx is the transactional statement surface. Commit and Rollback are safe to
// call at any nesting depth: only the scope that began the transaction closes
// it, scopes that joined an ambient transaction no-op both calls.
type Tx interface {
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// txState is shared between every Tx handle issued for one underlying
// transaction so closing it is observed everywhere.
type txState struct {
	tx     *sqlx.Tx
	closed bool
}

// Transaction wraps sqlx.Tx with join semantics: the owning handle commits or
// rolls back for real, joined handles leave that to the owner.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	state  *txState
	owned  bool
}

// HasTx reports whether ctx carries an open ambient transaction.
func HasTx(ctx context.Context) bool {
	state, ok := ctx.Value(txKey).(*txState)
	return ok && !state.closed
}

// GetTx returns the transaction carried by ctx when one is open, otherwise it
// begins a new one and stores it on the returned context so downstream
// repository calls join it.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if state, ok := ctx.Value(txKey).(*txState); ok && !state.closed {
		return ctx, &Transaction{Tx: state.tx, logger: logger, state: state, owned: false}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction")
	}

	state := &txState{tx: tx}
	ctx = context.WithValue(ctx, txKey, state)
	return ctx, &Transaction{Tx: tx, logger: logger, state: state, owned: true}, nil
}

func (t *Transaction) IsOpen() bool {
	return !t.state.closed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if !t.owned || t.state.closed {
		return nil // ambient transaction is closed by its owner
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}

	t.state.closed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if !t.owned || t.state.closed {
		return nil // ambient transaction is closed by its owner
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}

	t.state.closed = true
	return nil
}
