package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInTx_CommitsOwnTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cash").WillReturnResult(sqlmockResult())
	mock.ExpectCommit()

	err := InTx(context.Background(), db, nil, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE cash SET total = 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := InTx(context.Background(), db, nil, func(*sqlx.Tx) error { return boom })
	assert.Same(t, boom, err, "errors from fn are returned unchanged")
	assert.False(t, IsTxError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_BeginFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err := InTx(context.Background(), db, nil, func(*sqlx.Tx) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)

	var te *TxError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "begin", te.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_CommitFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err := InTx(context.Background(), db, nil, func(*sqlx.Tx) error { return nil })

	var te *TxError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "commit", te.Op)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_JoinsCallerTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	ctx := context.Background()
	outer, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)

	// Nested calls neither commit nor roll back, even on error.
	var seen *sqlx.Tx
	err = InTx(ctx, db, outer, func(tx *sqlx.Tx) error {
		seen = tx
		return InTx(ctx, db, tx, func(*sqlx.Tx) error { return errors.New("inner") })
	})
	assert.EqualError(t, err, "inner")
	assert.Same(t, outer, seen)

	require.NoError(t, outer.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReader(t *testing.T) {
	db, mock := newMockDB(t)
	assert.Equal(t, Querier(db), Reader(db, nil))

	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)
	assert.Equal(t, Querier(tx), Reader(db, tx))
}
