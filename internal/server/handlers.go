package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the /health payload
type HealthResponse struct {
	Status    string `json:"status"` // "healthy" or "degraded"
	Service   string `json:"service"`
	Database  string `json:"database"`
	Positions int    `json:"positions"`
	Ready     bool   `json:"ready"` // portfolio service is mounted
}

// handleHealth reports whether the history database answers and the
// portfolio service is mounted. A failing database yields 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:   "healthy",
		Service:  "allocator",
		Database: "unavailable",
	}
	status := http.StatusOK

	if s.container != nil && s.container.HistoryDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.container.HistoryDB.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Health check: history database failed")
			response.Database = err.Error()
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			response.Database = "ok"
		}
	}

	if s.container != nil && s.container.AnalysisService != nil {
		response.Ready = true
		response.Positions = len(s.container.AnalysisService.Tickers())
	}

	s.writeJSON(w, status, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
