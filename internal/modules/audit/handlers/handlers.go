// Package handlers provides the manual audit HTTP endpoint.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/modules/audit"
	"github.com/aristath/chartwatch/internal/modules/prices"
)

// AuditHandlers contains HTTP handlers for manual audits
type AuditHandlers struct {
	auditor   *audit.Auditor
	priceRepo *prices.Repository
	log       zerolog.Logger
}

// NewAuditHandlers creates a new audit handlers instance
func NewAuditHandlers(auditor *audit.Auditor, priceRepo *prices.Repository, log zerolog.Logger) *AuditHandlers {
	return &AuditHandlers{
		auditor:   auditor,
		priceRepo: priceRepo,
		log:       log.With().Str("handler", "audit").Logger(),
	}
}

// RegisterRoutes registers all audit routes
func (h *AuditHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/audit", h.HandleAudit)
}

// HandleAudit reconciles pending trades against a manually observed price
// POST /api/audit {"price": 123.45}
func (h *AuditHandlers) HandleAudit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Price <= 0 {
		http.Error(w, "Price must be positive", http.StatusBadRequest)
		return
	}

	result, err := h.auditor.Run(r.Context(), req.Price)
	if err != nil {
		h.log.Error().Err(err).Msg("Manual audit failed")
		http.Error(w, "Audit failed", http.StatusInternalServerError)
		return
	}

	if err := h.priceRepo.Record(req.Price, prices.SourceManual); err != nil {
		h.log.Warn().Err(err).Msg("Failed to record manual price")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
