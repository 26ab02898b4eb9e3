// Package handlers provides HTTP handlers for the trade journal.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/modules/journal"
)

// JournalHandlers contains HTTP handlers for the journal API
type JournalHandlers struct {
	trades *journal.TradeRepository
	log    zerolog.Logger
}

// NewJournalHandlers creates a new journal handlers instance
func NewJournalHandlers(trades *journal.TradeRepository, log zerolog.Logger) *JournalHandlers {
	return &JournalHandlers{
		trades: trades,
		log:    log.With().Str("handler", "journal").Logger(),
	}
}

// RegisterRoutes registers all journal routes
func (h *JournalHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleGetTrades)
		r.Get("/pending", h.HandleGetPending)
	})
}

// HandleGetTrades returns the journal, most recent first
// GET /api/trades?limit=50
func (h *JournalHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}

	trades, err := h.trades.GetHistory(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get trade history")
		http.Error(w, "Failed to get trade history", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []journal.Trade{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(trades)
}

// HandleGetPending returns trades awaiting an audit
// GET /api/trades/pending
func (h *JournalHandlers) HandleGetPending(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.GetPending()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get pending trades")
		http.Error(w, "Failed to get pending trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []journal.Trade{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(trades)
}
