package kpihttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pharmastats/pharmastats/internal/platform/httpx"
)

// tableLimit bounds the paginated endpoints, whose queries scan the most rows.
const tableLimit = 30

// MountRoutes registers the KPI endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(tableLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)

	r.Post("/purchases", serve(h, "purchases", h.service.GetPurchases))
	r.Post("/sales", serve(h, "sales", h.service.GetSales))
	r.Post("/margin", serve(h, "margin", h.service.GetMargin))
	r.Post("/stock", serve(h, "stock", h.service.GetStock))
	r.Post("/price-evolution", serve(h, "price_evolution", h.service.GetPriceEvolution))
	r.Post("/reception-rate", serve(h, "reception_rate", h.service.GetReceptionRate))
	r.Post("/inventory-days", serve(h, "inventory_days", h.service.GetInventoryDays))
	r.Post("/network-health", serve(h, "network_health", h.service.GetNetworkHealth))
	r.Post("/dashboard", h.handleDashboard)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/laboratories", serve(h, "laboratories", h.service.GetLaboratories))
		gr.Post("/products", serve(h, "products", h.service.GetProducts))
	})
}
