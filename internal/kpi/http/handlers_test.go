package kpihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmastats/pharmastats/internal/kpi"
	"github.com/pharmastats/pharmastats/internal/platform/httpx"
)

type stubService struct {
	mu    sync.Mutex
	err   error
	last  kpi.FilterRequest
	calls map[string]int
}

func (s *stubService) record(name string, req kpi.FilterRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[name]++
	s.last = req
	if s.err != nil {
		return s.err
	}
	return req.Validate()
}

func (s *stubService) GetPurchases(_ context.Context, req kpi.FilterRequest) (kpi.PurchasesResult, error) {
	return kpi.PurchasesResult{PurchasesTotals: kpi.PurchasesTotals{MontantAchatHT: 10}}, s.record("purchases", req)
}

func (s *stubService) GetSales(_ context.Context, req kpi.FilterRequest) (kpi.SalesResult, error) {
	return kpi.SalesResult{SalesTotals: kpi.SalesTotals{MontantTTC: 1200}}, s.record("sales", req)
}

func (s *stubService) GetMargin(_ context.Context, req kpi.FilterRequest) (kpi.MarginResult, error) {
	return kpi.MarginResult{}, s.record("margin", req)
}

func (s *stubService) GetStock(_ context.Context, req kpi.FilterRequest) (kpi.StockResult, error) {
	return kpi.StockResult{}, s.record("stock", req)
}

func (s *stubService) GetPriceEvolution(_ context.Context, req kpi.FilterRequest) (kpi.PriceEvolutionResult, error) {
	return kpi.PriceEvolutionResult{}, s.record("price_evolution", req)
}

func (s *stubService) GetReceptionRate(_ context.Context, req kpi.FilterRequest) (kpi.ReceptionRateResult, error) {
	return kpi.ReceptionRateResult{}, s.record("reception_rate", req)
}

func (s *stubService) GetInventoryDays(_ context.Context, req kpi.FilterRequest) (kpi.InventoryDaysResult, error) {
	return kpi.InventoryDaysResult{}, s.record("inventory_days", req)
}

func (s *stubService) GetNetworkHealth(_ context.Context, req kpi.FilterRequest) (kpi.NetworkHealthResult, error) {
	return kpi.NetworkHealthResult{Strategy: kpi.StrategyGlobal}, s.record("network_health", req)
}

func (s *stubService) GetLaboratories(_ context.Context, req kpi.FilterRequest) (kpi.LaboratoriesResult, error) {
	return kpi.LaboratoriesResult{Rows: []kpi.LaboratoryRow{{Laboratory: "SANOFI"}}, Total: 1, Page: 1, PageSize: 20}, s.record("laboratories", req)
}

func (s *stubService) GetProducts(_ context.Context, req kpi.FilterRequest) (kpi.ProductsResult, error) {
	return kpi.ProductsResult{}, s.record("products", req)
}

func newTestRouter(svc KPIService) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/kpi", NewHandler(nil, svc, 0).MountRoutes)
	return r
}

const januaryBody = `{"dateRange":{"start":"2025-01-01","end":"2025-01-31"},"pharmacyIds":["ph-1"]}`

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestKPIEndpointsReturnJSON(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	paths := []string{"purchases", "sales", "margin", "stock", "price-evolution", "reception-rate",
		"inventory-days", "network-health", "laboratories", "products"}
	for _, p := range paths {
		rr := post(t, router, "/api/kpi/"+p, januaryBody)
		assert.Equal(t, http.StatusOK, rr.Code, p)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"), p)
	}
	assert.Len(t, svc.calls, len(paths))
	assert.Equal(t, []string{"ph-1"}, svc.last.PharmacyIDs)
}

func TestSalesBody(t *testing.T) {
	rr := post(t, newTestRouter(&stubService{}), "/api/kpi/sales", januaryBody)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1200.0, body["montant_ttc"])
	assert.NotContains(t, body, "comparison")
}

func TestInvalidRequestIsBadRequest(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	cases := map[string]string{
		"reversed range": `{"dateRange":{"start":"2025-02-01","end":"2025-01-01"}}`,
		"missing range":  `{}`,
		"unknown field":  `{"dateRange":{"start":"2025-01-01","end":"2025-01-31"},"foo":1}`,
		"malformed":      `{"dateRange":`,
	}
	for name, body := range cases {
		rr := post(t, router, "/api/kpi/margin", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)

		var problem httpx.ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem), name)
		assert.Equal(t, http.StatusBadRequest, problem.Status, name)
	}
}

func TestServiceFailureIsInternalError(t *testing.T) {
	svc := &stubService{err: errors.New("connection refused: secret-host:5432")}
	rr := post(t, newTestRouter(svc), "/api/kpi/stock", januaryBody)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret-host")
}

func TestWrappedInvalidRequestIsBadRequest(t *testing.T) {
	svc := &stubService{err: fmt.Errorf("service: %w", kpi.ErrInvalidRequest)}
	rr := post(t, newTestRouter(svc), "/api/kpi/sales", januaryBody)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardFansOut(t *testing.T) {
	svc := &stubService{}
	rr := post(t, newTestRouter(svc), "/api/kpi/dashboard", januaryBody)
	require.Equal(t, http.StatusOK, rr.Code)

	var body Dashboard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 10.0, body.Purchases.MontantAchatHT)
	assert.Equal(t, 1200.0, body.Sales.MontantTTC)
	for _, name := range []string{"purchases", "sales", "margin", "stock"} {
		assert.Equal(t, 1, svc.calls[name], name)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/kpi/sales", nil)
	rr := httptest.NewRecorder()
	newTestRouter(&stubService{}).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
