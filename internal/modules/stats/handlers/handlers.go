// Package handlers provides HTTP handlers for dashboard statistics.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/modules/prices"
	"github.com/aristath/chartwatch/internal/modules/stats"
)

// StatsHandlers contains HTTP handlers for the stats API
type StatsHandlers struct {
	service   *stats.Service
	priceRepo *prices.Repository
	log       zerolog.Logger
}

// NewStatsHandlers creates a new stats handlers instance
func NewStatsHandlers(service *stats.Service, priceRepo *prices.Repository, log zerolog.Logger) *StatsHandlers {
	return &StatsHandlers{
		service:   service,
		priceRepo: priceRepo,
		log:       log.With().Str("handler", "stats").Logger(),
	}
}

// RegisterRoutes registers all stats routes
func (h *StatsHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/stats", func(r chi.Router) {
		r.Get("/summary", h.HandleSummary)
		r.Get("/scatter", h.HandleScatter)
	})
	r.Get("/prices/latest", h.HandleLatestPrice)
}

// HandleSummary returns rule performance and journal totals
// GET /api/stats/summary
func (h *StatsHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build stats summary")
		http.Error(w, "Failed to build stats summary", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

// HandleScatter returns the confidence/outcome scatter series
// GET /api/stats/scatter?limit=200
func (h *StatsHandlers) HandleScatter(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}

	points, err := h.service.Scatter(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build scatter series")
		http.Error(w, "Failed to build scatter series", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(points)
}

// HandleLatestPrice returns the newest observed price with an RSI annotation
// GET /api/prices/latest
func (h *StatsHandlers) HandleLatestPrice(w http.ResponseWriter, r *http.Request) {
	latest, err := h.priceRepo.Latest()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get latest price")
		http.Error(w, "Failed to get latest price", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"latest": latest,
		"rsi":    nil,
	}

	if latest != nil {
		closes, err := h.priceRepo.RecentCloses(100)
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to load price history for RSI")
		} else if rsi := prices.CalculateRSI(closes, prices.DefaultRSIPeriod); rsi != nil {
			response["rsi"] = *rsi
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
