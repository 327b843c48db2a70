// Package handlers provides HTTP handlers for portfolio analysis.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/portfolio"
	"github.com/aristath/allocator/internal/modules/risk"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds JSON and CSV request bodies
const maxBodyBytes = 1 << 20

// Handler handles portfolio, risk and optimization HTTP requests
type Handler struct {
	service       *analysis.Service
	defaultLambda float64
	log           zerolog.Logger
}

// NewHandler creates a new analysis handler. defaultLambda is used for
// optimization requests that do not set one.
func NewHandler(service *analysis.Service, defaultLambda float64, log zerolog.Logger) *Handler {
	return &Handler{
		service:       service,
		defaultLambda: defaultLambda,
		log:           log.With().Str("handler", "analysis").Logger(),
	}
}

// PositionRequest is a manually specified position
type PositionRequest struct {
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	Quantity       float64 `json:"quantity"`
}

// PositionsRequest is a list of positions for merge and replace
type PositionsRequest struct {
	Positions []PositionRequest `json:"positions"`
}

// MarketPositionRequest adds a position priced from market data
type MarketPositionRequest struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
}

// WhatIfRequest describes a simulated quantity change
type WhatIfRequest struct {
	Name          string  `json:"name"`
	QuantityDelta float64 `json:"quantity_delta"`
}

// CorrelationRequest carries a manual correlation matrix in asset order
type CorrelationRequest struct {
	Matrix [][]float64 `json:"matrix"`
}

// OptimizeRequest configures an optimization run. Objective defaults to
// min_variance and Lambda to the configured default.
type OptimizeRequest struct {
	Objective     string   `json:"objective"`
	TargetReturn  *float64 `json:"target_return"`
	MaxVolatility *float64 `json:"max_volatility"`
	Lambda        *float64 `json:"lambda"`
}

// HandleGetPortfolio handles GET /api/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, h.service.Snapshot())
}

// HandleAddPosition handles POST /api/portfolio/positions
func (h *Handler) HandleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !h.decode(w, r, &req) {
		return
	}

	asset, err := portfolio.NewAsset(req.Name, req.Price, req.ExpectedReturn, req.Volatility)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := h.service.AddPosition(asset, req.Quantity); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusCreated, h.service.Snapshot())
}

// HandleAddMarketPosition handles POST /api/portfolio/positions/market
func (h *Handler) HandleAddMarketPosition(w http.ResponseWriter, r *http.Request) {
	var req MarketPositionRequest
	if !h.decode(w, r, &req) {
		return
	}

	asset, err := h.service.AddFromMarket(r.Context(), req.Ticker, req.Quantity)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusCreated, map[string]interface{}{
		"asset": map[string]interface{}{
			"name":            asset.Name(),
			"price":           asset.Price(),
			"expected_return": asset.ExpectedReturn(),
			"volatility":      asset.Volatility(),
		},
		"portfolio": h.service.Snapshot(),
	})
}

// HandleRemovePosition handles DELETE /api/portfolio/positions/{name}?quantity=
func (h *Handler) HandleRemovePosition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	quantity, err := strconv.ParseFloat(r.URL.Query().Get("quantity"), 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "quantity query parameter must be a number")
		return
	}

	if err := h.service.RemovePosition(name, quantity); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, h.service.Snapshot())
}

// HandleMerge handles POST /api/portfolio/merge
func (h *Handler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	other, ok := h.decodePortfolio(w, r)
	if !ok {
		return
	}
	if err := h.service.Merge(other); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, h.service.Snapshot())
}

// HandleReplace handles PUT /api/portfolio
func (h *Handler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decodePortfolio(w, r)
	if !ok {
		return
	}
	h.service.Replace(p)

	h.writeData(w, http.StatusOK, h.service.Snapshot())
}

// HandleImportCSV handles POST /api/portfolio/import with a CSV body
func (h *Handler) HandleImportCSV(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ImportCSV(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"imported":  n,
		"portfolio": h.service.Snapshot(),
	})
}

// HandleExportCSV handles GET /api/portfolio/export
func (h *Handler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=portfolio_export.csv")
	if err := h.service.ExportCSV(w); err != nil {
		h.log.Error().Err(err).Msg("Failed to export portfolio")
	}
}

// HandleWhatIf handles POST /api/portfolio/what-if
func (h *Handler) HandleWhatIf(w http.ResponseWriter, r *http.Request) {
	var req WhatIfRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.WhatIf(req.Name, req.QuantityDelta)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleGetLastWhatIf handles GET /api/portfolio/what-if/last
func (h *Handler) HandleGetLastWhatIf(w http.ResponseWriter, r *http.Request) {
	result, ok := h.service.LastWhatIf()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no what-if simulation yet")
		return
	}
	h.writeData(w, http.StatusOK, result)
}

// HandleSetCorrelation handles PUT /api/risk/correlation
func (h *Handler) HandleSetCorrelation(w http.ResponseWriter, r *http.Request) {
	var req CorrelationRequest
	if !h.decode(w, r, &req) {
		return
	}

	snapshot, err := h.service.SetCorrelationMatrix(risk.CorrelationMatrix(req.Matrix))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, snapshot)
}

// HandleRefreshCorrelation handles POST /api/risk/correlation/refresh
func (h *Handler) HandleRefreshCorrelation(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.RefreshCorrelationMatrix(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, snapshot)
}

// HandleGetCorrelation handles GET /api/risk/correlation
func (h *Handler) HandleGetCorrelation(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.service.Correlation()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no correlation matrix yet")
		return
	}
	h.writeData(w, http.StatusOK, snapshot)
}

// HandleGetMetrics handles GET /api/risk/metrics
func (h *Handler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.Metrics()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, metrics)
}

// HandleOptimize handles POST /api/optimization/run
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	params := analysis.OptimizeParams{
		Objective:     optimization.MinVariance,
		TargetReturn:  req.TargetReturn,
		MaxVolatility: req.MaxVolatility,
		Lambda:        h.defaultLambda,
	}
	if req.Objective != "" {
		objective, err := optimization.ParseObjective(req.Objective)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		params.Objective = objective
	}
	if req.Lambda != nil {
		params.Lambda = *req.Lambda
	}

	result, err := h.service.Optimize(r.Context(), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleGetLastOptimization handles GET /api/optimization/last
func (h *Handler) HandleGetLastOptimization(w http.ResponseWriter, r *http.Request) {
	result, ok := h.service.LastOptimization()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no optimization result for the current portfolio")
		return
	}
	h.writeData(w, http.StatusOK, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.log.Debug().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) decodePortfolio(w http.ResponseWriter, r *http.Request) (*portfolio.Portfolio, bool) {
	var req PositionsRequest
	if !h.decode(w, r, &req) {
		return nil, false
	}

	p := portfolio.New()
	for i, pos := range req.Positions {
		asset, err := portfolio.NewAsset(pos.Name, pos.Price, pos.ExpectedReturn, pos.Volatility)
		if err == nil {
			err = p.AddPosition(asset, pos.Quantity)
		}
		if err != nil {
			h.writeServiceError(w, fmt.Errorf("position %d: %w", i, err))
			return nil, false
		}
	}
	return p, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), domain.IsMatrixError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInfeasible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrData):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
