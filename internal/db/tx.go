package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Repositories run every
// statement through it so they join the caller's transaction when there is one.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// TxManager is the unit of work: it opens one database transaction per outermost
// WithinTx call and carries it in the context.
type TxManager struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewTxManager returns a TxManager using READ COMMITTED isolation.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// WithinTx runs fn inside a transaction. If ctx already carries one, fn joins it and
// the outer call decides commit or rollback. An error or panic from fn rolls back;
// the error is returned and the panic re-raised.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// Conn returns the active transaction in ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}
