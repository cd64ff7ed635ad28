package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTx struct {
	pgx.Tx
	execs      []string
	committed  bool
	rolledBack bool
}

func (t *recordingTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (t *recordingTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *recordingTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type beginner struct {
	tx   *recordingTx
	opts pgx.TxOptions
	err  error
}

func (b *beginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	b := &beginner{tx: &recordingTx{}}
	err := WithTx(context.Background(), b, 90*time.Second, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "REFRESH MATERIALIZED VIEW CONCURRENTLY mv")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)
	assert.Equal(t, []string{"SET LOCAL statement_timeout = 90000", "REFRESH MATERIALIZED VIEW CONCURRENTLY mv"}, b.tx.execs)
	assert.True(t, b.tx.committed)
	assert.False(t, b.tx.rolledBack)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &beginner{tx: &recordingTx{}}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, 0, func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, b.tx.execs)
	assert.False(t, b.tx.committed)
	assert.True(t, b.tx.rolledBack)
}

func TestWithTxBeginError(t *testing.T) {
	b := &beginner{err: errors.New("too many connections")}
	err := WithTx(context.Background(), b, 0, func(pgx.Tx) error { return nil })
	assert.ErrorContains(t, err, "begin tx")
}

type fakeRows struct {
	pgx.Rows
	fields []pgconn.FieldDescription
	data   [][]any
	pos    int
	err    error
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.pos-1], nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() {}

func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }

type queryer struct {
	rows    pgx.Rows
	err     error
	gotSQL  string
	gotArgs []any
}

func (q *queryer) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.gotSQL = sql
	q.gotArgs = args
	return q.rows, q.err
}

func TestSourceQueryMapsColumns(t *testing.T) {
	q := &queryer{rows: &fakeRows{
		fields: []pgconn.FieldDescription{{Name: "laboratory"}, {Name: "ca_ht"}},
		data:   [][]any{{"SANOFI", 1200.5}, {"BIOGARAN", int64(30)}},
	}}
	rows, err := NewSource(q).Query(context.Background(), "SELECT $1", "2025-01-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "SANOFI", rows[0].String("laboratory"))
	assert.Equal(t, 1200.5, rows[0].Float("ca_ht"))
	assert.Equal(t, int64(30), rows[1].Int("ca_ht"))
	assert.Equal(t, []any{"2025-01-01"}, q.gotArgs)
}

func TestSourceQueryErrors(t *testing.T) {
	_, err := NewSource(&queryer{err: errors.New("conn refused")}).Query(context.Background(), "SELECT 1")
	assert.Error(t, err)

	pgErr := &pgconn.PgError{Code: "57014"}
	_, err = NewSource(&queryer{rows: &fakeRows{err: pgErr}}).Query(context.Background(), "SELECT 1")
	var got *pgconn.PgError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "57014", got.Code)
}
