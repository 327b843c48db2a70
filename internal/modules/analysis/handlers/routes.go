package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers portfolio, risk and optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)
		r.Put("/", h.HandleReplace)
		r.Post("/positions", h.HandleAddPosition)
		r.Post("/positions/market", h.HandleAddMarketPosition)
		r.Delete("/positions/{name}", h.HandleRemovePosition)
		r.Post("/merge", h.HandleMerge)
		r.Post("/import", h.HandleImportCSV)
		r.Get("/export", h.HandleExportCSV)
		r.Post("/what-if", h.HandleWhatIf)
		r.Get("/what-if/last", h.HandleGetLastWhatIf)
	})

	r.Route("/risk", func(r chi.Router) {
		r.Get("/correlation", h.HandleGetCorrelation)
		r.Put("/correlation", h.HandleSetCorrelation)
		r.Post("/correlation/refresh", h.HandleRefreshCorrelation)
		r.Get("/metrics", h.HandleGetMetrics)
	})

	r.Route("/optimization", func(r chi.Router) {
		r.Post("/run", h.HandleOptimize)
		r.Get("/last", h.HandleGetLastOptimization)
	})
}
