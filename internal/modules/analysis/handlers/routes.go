package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all analysis routes
func (h *AnalysisHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/analysis", func(r chi.Router) {
		r.Post("/scan", h.HandleScan)
	})
}
