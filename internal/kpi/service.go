package kpi

import (
	"context"
	"log/slog"
)

// Cache key prefixes, one per KPI.
const (
	PrefixPurchases      = "kpi:purchases"
	PrefixSales          = "kpi:sales"
	PrefixMargin         = "kpi:margin"
	PrefixStock          = "kpi:stock"
	PrefixPriceEvolution = "kpi:price_evolution"
	PrefixReceptionRate  = "kpi:reception_rate"
	PrefixInventoryDays  = "kpi:inventory_days"
	PrefixNetworkHealth  = "kpi:network_health"
	PrefixLaboratories   = "kpi:laboratories"
	PrefixProducts       = "kpi:products"
)

// Service coordinates KPI computations with the cache layer.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService wires a Repository with a Cache. A nil cache disables caching.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Cache exposes the underlying cache, mainly for purges after view refreshes.
func (s *Service) Cache() *Cache {
	return s.cache
}

// cached validates the request, then serves the KPI from cache or computes it.
// Invalid requests never reach the repository nor the cache.
func cached[T any](ctx context.Context, s *Service, prefix string, req FilterRequest, load func(context.Context, FilterRequest) (T, error)) (T, error) {
	var out T
	if err := req.Validate(); err != nil {
		return out, err
	}
	if s.cache == nil {
		return load(ctx, req)
	}
	key, err := GenerateKey(prefix, req)
	if err != nil {
		return out, err
	}
	loader := func(ctx context.Context) (any, error) {
		s.logger.Debug("kpi cache miss", slog.String("prefix", prefix))
		return load(ctx, req)
	}
	if err := s.cache.WithCache(ctx, key, &out, loader); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (s *Service) GetPurchases(ctx context.Context, req FilterRequest) (PurchasesResult, error) {
	return cached(ctx, s, PrefixPurchases, req, s.repo.Purchases)
}

func (s *Service) GetSales(ctx context.Context, req FilterRequest) (SalesResult, error) {
	return cached(ctx, s, PrefixSales, req, s.repo.Sales)
}

func (s *Service) GetMargin(ctx context.Context, req FilterRequest) (MarginResult, error) {
	return cached(ctx, s, PrefixMargin, req, s.repo.Margin)
}

func (s *Service) GetStock(ctx context.Context, req FilterRequest) (StockResult, error) {
	return cached(ctx, s, PrefixStock, req, s.repo.Stock)
}

func (s *Service) GetPriceEvolution(ctx context.Context, req FilterRequest) (PriceEvolutionResult, error) {
	return cached(ctx, s, PrefixPriceEvolution, req, s.repo.PriceEvolution)
}

func (s *Service) GetReceptionRate(ctx context.Context, req FilterRequest) (ReceptionRateResult, error) {
	return cached(ctx, s, PrefixReceptionRate, req, s.repo.ReceptionRate)
}

func (s *Service) GetInventoryDays(ctx context.Context, req FilterRequest) (InventoryDaysResult, error) {
	return cached(ctx, s, PrefixInventoryDays, req, s.repo.InventoryDays)
}

// GetNetworkHealth resolves the network health KPI; the strategy follows from the
// pharmacy selection.
func (s *Service) GetNetworkHealth(ctx context.Context, req FilterRequest) (NetworkHealthResult, error) {
	return cached(ctx, s, PrefixNetworkHealth, req, s.repo.NetworkHealth)
}

// GetLaboratories resolves one page of the laboratory ranking.
func (s *Service) GetLaboratories(ctx context.Context, req FilterRequest) (LaboratoriesResult, error) {
	return cached(ctx, s, PrefixLaboratories, req, s.repo.Laboratories)
}

// GetProducts resolves one page of the product ranking.
func (s *Service) GetProducts(ctx context.Context, req FilterRequest) (ProductsResult, error) {
	return cached(ctx, s, PrefixProducts, req, s.repo.Products)
}

// Purge drops every cached KPI.
func (s *Service) Purge(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Purge(ctx); err != nil {
		return err
	}
	s.logger.Info("kpi cache purged")
	return nil
}
