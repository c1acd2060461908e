package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	owner     *fakeBeginner
	commitErr error
}

func (t *fakeTx) Commit(context.Context) error {
	t.owner.commits++
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.owner.rollbacks++
	return nil
}

type fakeBeginner struct {
	begins     int
	commits    int
	rollbacks  int
	commitErrs []error
	iso        pgx.TxIsoLevel
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	b.iso = opts.IsoLevel
	tx := &fakeTx{owner: b}
	if len(b.commitErrs) > 0 {
		tx.commitErr, b.commitErrs = b.commitErrs[0], b.commitErrs[1:]
	}
	return tx, nil
}

func TestWithTxRerunsSerializationFailure(t *testing.T) {
	pool := &fakeBeginner{}
	calls := 0
	err := WithTx(context.Background(), pool, func(pgx.Tx) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("insert transaction: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, pool.begins)
	require.Equal(t, 1, pool.commits)
	require.Equal(t, pgx.RepeatableRead, pool.iso)
}

func TestWithTxRerunsFailedCommit(t *testing.T) {
	pool := &fakeBeginner{commitErrs: []error{&pgconn.PgError{Code: "40001"}}}
	calls := 0
	require.NoError(t, WithTx(context.Background(), pool, func(pgx.Tx) error {
		calls++
		return nil
	}))
	require.Equal(t, 2, calls)
}

func TestWithTxGivesUpAfterMaxAttempts(t *testing.T) {
	pool := &fakeBeginner{}
	calls := 0
	err := WithTx(context.Background(), pool, func(pgx.Tx) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	require.Equal(t, MaxTxAttempts, calls)
	require.Equal(t, MaxTxAttempts, pool.rollbacks)
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	require.Equal(t, "40P01", pgErr.Code)
}

func TestWithTxReturnsOtherErrorsAtOnce(t *testing.T) {
	boom := errors.New("boom")
	pool := &fakeBeginner{}
	calls := 0
	err := WithTx(context.Background(), pool, func(pgx.Tx) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
	require.Zero(t, pool.commits)

	err = WithTx(context.Background(), pool, func(pgx.Tx) error {
		return &pgconn.PgError{Code: "23505"}
	})
	require.False(t, Retryable(err))
}

func TestWithTxStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithTx(ctx, &fakeBeginner{}, func(pgx.Tx) error {
		calls++
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
