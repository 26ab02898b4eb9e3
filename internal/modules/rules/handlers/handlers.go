// Package handlers provides HTTP handlers for rule statistics and evolution.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/modules/rules"
)

// RuleHandlers contains HTTP handlers for the rules API
type RuleHandlers struct {
	store     *rules.Store
	evolution *rules.EvolutionService
	log       zerolog.Logger
}

// NewRuleHandlers creates a new rule handlers instance
func NewRuleHandlers(store *rules.Store, evolution *rules.EvolutionService, log zerolog.Logger) *RuleHandlers {
	return &RuleHandlers{
		store:     store,
		evolution: evolution,
		log:       log.With().Str("handler", "rules").Logger(),
	}
}

// RegisterRoutes registers all rule routes
func (h *RuleHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/rules", func(r chi.Router) {
		r.Get("/", h.HandleGetRules)
		r.Get("/stats", h.HandleGetRules)
		r.Post("/evolve", h.HandleEvolve)
	})
}

// HandleGetRules returns the current rule statistics document
// GET /api/rules
func (h *RuleHandlers) HandleGetRules(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Load()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load rule config")
		http.Error(w, "Failed to load rule config", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"version":      doc.Version,
		"total_losses": doc.TotalLosses,
		"rule_stats":   doc.RuleStats,
		"best_rule":    doc.BestRule(),
		"worst_rule":   doc.WorstRule(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// HandleEvolve replaces the worst-performing rule with an AI rewrite
// POST /api/rules/evolve
func (h *RuleHandlers) HandleEvolve(w http.ResponseWriter, r *http.Request) {
	result, err := h.evolution.EvolveWorstRule(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Rule evolution failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
