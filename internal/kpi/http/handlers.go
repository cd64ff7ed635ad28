package kpihttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/pharmastats/pharmastats/internal/kpi"
	"github.com/pharmastats/pharmastats/internal/platform/httpx"
)

const defaultRequestTimeout = 20 * time.Second

// KPIService defines the KPI contract used by the handler.
type KPIService interface {
	GetPurchases(ctx context.Context, req kpi.FilterRequest) (kpi.PurchasesResult, error)
	GetSales(ctx context.Context, req kpi.FilterRequest) (kpi.SalesResult, error)
	GetMargin(ctx context.Context, req kpi.FilterRequest) (kpi.MarginResult, error)
	GetStock(ctx context.Context, req kpi.FilterRequest) (kpi.StockResult, error)
	GetPriceEvolution(ctx context.Context, req kpi.FilterRequest) (kpi.PriceEvolutionResult, error)
	GetReceptionRate(ctx context.Context, req kpi.FilterRequest) (kpi.ReceptionRateResult, error)
	GetInventoryDays(ctx context.Context, req kpi.FilterRequest) (kpi.InventoryDaysResult, error)
	GetNetworkHealth(ctx context.Context, req kpi.FilterRequest) (kpi.NetworkHealthResult, error)
	GetLaboratories(ctx context.Context, req kpi.FilterRequest) (kpi.LaboratoriesResult, error)
	GetProducts(ctx context.Context, req kpi.FilterRequest) (kpi.ProductsResult, error)
}

// Handler serves the KPI endpoints.
type Handler struct {
	logger  *slog.Logger
	service KPIService
	timeout time.Duration
}

// NewHandler constructs the KPI HTTP handler. A non-positive timeout selects the default.
func NewHandler(logger *slog.Logger, service KPIService, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Handler{logger: logger, service: service, timeout: timeout}
}

// serve decodes the filter body, runs one KPI and writes its JSON.
func serve[T any](h *Handler, name string, fn func(context.Context, kpi.FilterRequest) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req kpi.FilterRequest
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		result, err := fn(ctx, req)
		if err != nil {
			h.respondKPIError(w, r, name, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}

// Dashboard is the headline card set loaded in one round trip.
type Dashboard struct {
	Purchases kpi.PurchasesResult `json:"purchases"`
	Sales     kpi.SalesResult     `json:"sales"`
	Margin    kpi.MarginResult    `json:"margin"`
	Stock     kpi.StockResult     `json:"stock"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var req kpi.FilterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	data, err := h.loadDashboard(ctx, req)
	if err != nil {
		h.respondKPIError(w, r, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) loadDashboard(ctx context.Context, req kpi.FilterRequest) (Dashboard, error) {
	var data Dashboard
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := h.service.GetPurchases(ctx, req)
		if err != nil {
			return err
		}
		data.Purchases = res
		return nil
	})
	g.Go(func() error {
		res, err := h.service.GetSales(ctx, req)
		if err != nil {
			return err
		}
		data.Sales = res
		return nil
	})
	g.Go(func() error {
		res, err := h.service.GetMargin(ctx, req)
		if err != nil {
			return err
		}
		data.Margin = res
		return nil
	})
	g.Go(func() error {
		res, err := h.service.GetStock(ctx, req)
		if err != nil {
			return err
		}
		data.Stock = res
		return nil
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return data, nil
}

func (h *Handler) respondKPIError(w http.ResponseWriter, r *http.Request, name string, err error) {
	if errors.Is(err, kpi.ErrInvalidRequest) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	h.logger.Error("kpi request failed",
		slog.String("kpi", name),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Any("error", err),
	)
	httpx.RespondError(w, err)
}
