package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Querier is satisfied by *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
}

// TxError reports a failure to begin or commit the outermost transaction of
// a writer call tree. The mutation did not happen.
type TxError struct {
	Op  string // "begin" or "commit"
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// IsTxError reports whether err is or wraps a TxError.
func IsTxError(err error) bool {
	var te *TxError
	return errors.As(err, &te)
}

// InTx runs fn inside a transaction. With a non-nil tx the caller owns the
// unit of work: fn joins it and InTx never commits or rolls back. Otherwise
// InTx begins a transaction, rolls it back if fn fails, and commits only
// when fn succeeds. Errors from fn are returned unchanged.
func InTx(ctx context.Context, db *sqlx.DB, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	own, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return &TxError{Op: "begin", Err: err}
	}
	defer own.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(own); err != nil {
		return err
	}
	if err := own.Commit(); err != nil {
		return &TxError{Op: "commit", Err: err}
	}
	return nil
}

// Reader picks the handle a read should use: the caller's transaction when
// one is open, else the database.
func Reader(db *sqlx.DB, tx *sqlx.Tx) Querier {
	if tx != nil {
		return tx
	}
	return db
}
