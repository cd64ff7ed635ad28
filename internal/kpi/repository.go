package kpi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Querier is the data source: positional placeholders ($1, $2, ...) and an ordered
// argument list in, rows keyed by column name out.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// Repository exposes the KPI computations the service caches.
type Repository interface {
	Purchases(ctx context.Context, req FilterRequest) (PurchasesResult, error)
	Sales(ctx context.Context, req FilterRequest) (SalesResult, error)
	Margin(ctx context.Context, req FilterRequest) (MarginResult, error)
	Stock(ctx context.Context, req FilterRequest) (StockResult, error)
	PriceEvolution(ctx context.Context, req FilterRequest) (PriceEvolutionResult, error)
	ReceptionRate(ctx context.Context, req FilterRequest) (ReceptionRateResult, error)
	InventoryDays(ctx context.Context, req FilterRequest) (InventoryDaysResult, error)
	NetworkHealth(ctx context.Context, req FilterRequest) (NetworkHealthResult, error)
	Laboratories(ctx context.Context, req FilterRequest) (LaboratoriesResult, error)
	Products(ctx context.Context, req FilterRequest) (ProductsResult, error)
}

// SQLRepository computes KPIs against the materialized views.
type SQLRepository struct {
	db      Querier
	view    View
	logger  *slog.Logger
	timeout time.Duration
	tracer  trace.Tracer
}

// NewSQLRepository wires a data source. A zero timeout leaves query deadlines to
// the caller's context.
func NewSQLRepository(db Querier, logger *slog.Logger, timeout time.Duration) *SQLRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLRepository{
		db:      db,
		view:    ProductStatsView,
		logger:  logger,
		timeout: timeout,
		tracer:  otel.Tracer("github.com/pharmastats/pharmastats/internal/kpi"),
	}
}

// statement is a composed KPI query whose first placeholders are the period bounds.
type statement struct {
	sql  string
	head []any
	frag Fragment
}

// args assembles the positional arguments for one period.
func (s statement) args(p Period) []any {
	args := make([]any, 0, 2+len(s.head)+len(s.frag.Args))
	args = append(args, p.Params()...)
	args = append(args, s.head...)
	return append(args, s.frag.Args...)
}

// compose assembles SELECT/FROM/JOIN/WHERE. head holds arguments the select list
// refers to, numbered right after the two date bounds; filter placeholders follow.
// An empty datePredicate filters the view's date column on $1..$2.
func (r *SQLRepository) compose(req FilterRequest, selectList, datePredicate string, head []any, extend func(*ConditionBuilder)) (statement, error) {
	b := NewConditionBuilder(r.view.Columns, 2+len(head)).Apply(req)
	if extend != nil {
		extend(b)
	}
	frag, err := b.Build()
	if err != nil {
		return statement{}, err
	}
	if datePredicate == "" {
		datePredicate = r.view.DateColumn + " BETWEEN $1 AND $2"
	}
	sql := "SELECT " + selectList +
		" FROM " + r.view.From() + JoinClauses(req, r.view) +
		" WHERE " + datePredicate + frag.SQL
	return statement{sql: sql, head: head, frag: frag}, nil
}

// query runs one statement. Data source errors are returned unchanged.
func (r *SQLRepository) query(ctx context.Context, kpi, sql string, args []any) ([]Row, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ctx, span := r.tracer.Start(ctx, "kpi."+kpi, trace.WithAttributes(
		attribute.String("kpi.name", kpi),
		attribute.Int("db.args", len(args)),
	))
	defer span.End()

	start := time.Now()
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		attrs := []any{slog.String("kpi", kpi), slog.Any("error", err)}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			attrs = append(attrs, slog.String("sqlstate", pgErr.Code))
		}
		r.logger.Error("kpi query failed", attrs...)
		return nil, err
	}
	r.logger.Debug("kpi query",
		slog.String("kpi", kpi),
		slog.Int("rows", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return rows, nil
}

// queryOne returns the first row, or an empty row when nothing matched.
func (r *SQLRepository) queryOne(ctx context.Context, kpi, sql string, args []any) (Row, error) {
	rows, err := r.query(ctx, kpi, sql, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return Row{}, nil
	}
	return rows[0], nil
}

// perPeriod runs fn for the current period and, when compare is set, for the
// previous one concurrently. Each pass writes its own result value.
func perPeriod[T any](ctx context.Context, periods Periods, compare bool, fn func(context.Context, Period) (T, error)) (T, *T, error) {
	var current T
	if !compare {
		v, err := fn(ctx, periods.Current)
		return v, nil, err
	}
	var previous T
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := fn(gctx, periods.Current)
		if err != nil {
			return err
		}
		current = v
		return nil
	})
	g.Go(func() error {
		v, err := fn(gctx, periods.Previous)
		if err != nil {
			return err
		}
		previous = v
		return nil
	})
	if err := g.Wait(); err != nil {
		var zero T
		return zero, nil, err
	}
	return current, &previous, nil
}
