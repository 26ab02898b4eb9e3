// Package handlers provides HTTP handlers for chart scans.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/modules/analysis"
)

// maxChartBytes caps one uploaded chart image (camera captures included)
const maxChartBytes = 10 << 20 // 10 MiB

// AnalysisHandlers contains HTTP handlers for the scan API
type AnalysisHandlers struct {
	service *analysis.Service
	log     zerolog.Logger
}

// NewAnalysisHandlers creates a new analysis handlers instance
func NewAnalysisHandlers(service *analysis.Service, log zerolog.Logger) *AnalysisHandlers {
	return &AnalysisHandlers{
		service: service,
		log:     log.With().Str("handler", "analysis").Logger(),
	}
}

// scanResponse wraps per-file results; a failed file carries an error
// string instead of aborting the whole batch.
type scanResponse struct {
	Results []scanFileResult `json:"results"`
}

type scanFileResult struct {
	Filename string               `json:"filename"`
	Result   *analysis.ScanResult `json:"result,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// HandleScan runs auto-audit & predict over every uploaded chart
// POST /api/analysis/scan (multipart/form-data, field "charts")
func (h *AnalysisHandlers) HandleScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxChartBytes); err != nil {
		http.Error(w, "Invalid multipart upload", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["charts"]
	if len(files) == 0 {
		http.Error(w, "No chart images uploaded", http.StatusBadRequest)
		return
	}

	resp := scanResponse{Results: make([]scanFileResult, 0, len(files))}
	for _, header := range files {
		fileResult := scanFileResult{Filename: header.Filename}

		file, err := header.Open()
		if err != nil {
			fileResult.Error = "failed to open upload"
			resp.Results = append(resp.Results, fileResult)
			continue
		}

		data, err := io.ReadAll(io.LimitReader(file, maxChartBytes))
		file.Close()
		if err != nil {
			fileResult.Error = "failed to read upload"
			resp.Results = append(resp.Results, fileResult)
			continue
		}

		result, err := h.service.ScanChart(r.Context(), data)
		if err != nil {
			// Malformed AI output and upstream failures surface as an
			// error string on the result, matching the catch-and-display
			// fault handling of the rest of the system.
			h.log.Error().Err(err).Str("filename", header.Filename).Msg("Chart scan failed")
			fileResult.Error = err.Error()
		} else {
			fileResult.Result = result
		}
		resp.Results = append(resp.Results, fileResult)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
