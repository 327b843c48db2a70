package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/allocator/internal/di"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system-wide HTTP requests
type SystemHandlers struct {
	log         zerolog.Logger
	container   *di.Container
	jobs        *di.JobInstances
	startupTime time.Time
}

// NewSystemHandlers creates a new system handlers instance. container and
// jobs may be nil; the affected fields and triggers then report as unavailable.
func NewSystemHandlers(log zerolog.Logger, container *di.Container, jobs *di.JobInstances) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		container:   container,
		jobs:        jobs,
		startupTime: time.Now(),
	}
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status         string  `json:"status"` // "healthy" or "unhealthy"
	UptimeSeconds  float64 `json:"uptime_seconds"`
	CPUPercent     float64 `json:"cpu_percent"`
	RAMPercent     float64 `json:"ram_percent"`
	Database       string  `json:"database"` // "ok", "unavailable" or the health check error
	PositionCount  int     `json:"position_count"`
	HasCorrelation bool    `json:"has_correlation"`
}

// HandleSystemStatus returns system status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, ramPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Database:      "unavailable",
	}

	if h.container != nil && h.container.HistoryDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.container.HistoryDB.HealthCheck(ctx); err != nil {
			h.log.Warn().Err(err).Msg("History database health check failed")
			response.Status = "unhealthy"
			response.Database = err.Error()
		} else {
			response.Database = "ok"
		}
	}

	if h.container != nil && h.container.AnalysisService != nil {
		response.PositionCount = len(h.container.AnalysisService.Tickers())
		_, response.HasCorrelation = h.container.AnalysisService.Correlation()
	}

	h.writeJSON(w, response)
}

// HandleTriggerPriceSync runs the price sync job in the background
// POST /api/system/jobs/price-sync
func (h *SystemHandlers) HandleTriggerPriceSync(w http.ResponseWriter, r *http.Request) {
	var job scheduler.Job
	if h.jobs != nil && h.jobs.PriceSync != nil {
		job = h.jobs.PriceSync
	}
	h.trigger(w, job)
}

// HandleTriggerHistoryMaintenance runs the history maintenance job in the background
// POST /api/system/jobs/history-maintenance
func (h *SystemHandlers) HandleTriggerHistoryMaintenance(w http.ResponseWriter, r *http.Request) {
	var job scheduler.Job
	if h.jobs != nil && h.jobs.HistoryMaintenance != nil {
		job = h.jobs.HistoryMaintenance
	}
	h.trigger(w, job)
}

func (h *SystemHandlers) trigger(w http.ResponseWriter, job scheduler.Job) {
	if job == nil {
		h.log.Warn().Msg("Job not registered")
		h.writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Job not registered",
		})
		return
	}

	h.log.Info().Str("job", job.Name()).Msg("Manual job run triggered")

	go func() {
		if err := job.Run(); err != nil {
			h.log.Error().Err(err).Str("job", job.Name()).Msg("Manual job run failed")
		}
	}()

	h.writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"status":  "success",
		"message": job.Name() + " triggered successfully",
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// The CPU sample window is kept short so the request does not block for long.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *SystemHandlers) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
