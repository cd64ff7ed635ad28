package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pharmastats/pharmastats/internal/kpi"
)

// Queryer is the subset of *pgxpool.Pool (and pgx.Tx) the Source needs.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Source runs KPI statements on PostgreSQL and returns rows keyed by column name.
type Source struct {
	db Queryer
}

// NewSource wraps a pool.
func NewSource(db Queryer) *Source {
	return &Source{db: db}
}

var _ kpi.Querier = (*Source)(nil)

// Query executes sql with positional args. Values keep their pgx decoding
// (NUMERIC arrives as pgtype.Numeric, counts as int64); kpi.Row normalises them.
func (s *Source) Query(ctx context.Context, sql string, args ...any) ([]kpi.Row, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]kpi.Row, len(maps))
	for i, m := range maps {
		out[i] = kpi.Row(m)
	}
	return out, nil
}
