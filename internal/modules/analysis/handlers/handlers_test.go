package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/portfolio"
	"github.com/aristath/allocator/internal/modules/risk"
	testingpkg "github.com/aristath/allocator/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarket struct {
	assets map[string]portfolio.Asset
}

func (s *stubMarket) FetchAsset(_ context.Context, ticker string) (portfolio.Asset, error) {
	a, ok := s.assets[ticker]
	if !ok {
		return portfolio.Asset{}, fmt.Errorf("%w: no history for %s", domain.ErrData, ticker)
	}
	return a, nil
}

func (s *stubMarket) FetchCorrelationMatrix(_ context.Context, tickers []string) (risk.CorrelationMatrix, error) {
	return risk.Identity(len(tickers)), nil
}

func setupRouter(t *testing.T) (*chi.Mux, *analysis.Service) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	market := &stubMarket{assets: map[string]portfolio.Asset{
		"MSFT": portfolio.MustAsset("MSFT", 400, 0.12, 0.25),
	}}
	service := analysis.NewService(market, market, optimization.NewOptimizer(log), log)

	router := chi.NewRouter()
	NewHandler(service, optimization.DefaultLambda, log).RegisterRoutes(router)
	return router, service
}

func seed(t *testing.T, service *analysis.Service) {
	t.Helper()
	service.Replace(testingpkg.NewPortfolioFixture(t))
}

func do(t *testing.T, router http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// envelope decodes the data member of a success response into v.
func envelope(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp struct {
		Data     json.RawMessage        `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Metadata["timestamp"])
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["error"]
}

func TestHandleAddPosition(t *testing.T) {
	router, _ := setupRouter(t)

	rec := do(t, router, http.MethodPost, "/portfolio/positions", PositionRequest{
		Name: "AAPL", Price: 200, ExpectedReturn: 0.10, Volatility: 0.20, Quantity: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var summary analysis.Summary
	envelope(t, rec, &summary)
	assert.Equal(t, []string{"AAPL"}, summary.AssetOrder)
	assert.InDelta(t, 2000.0, summary.TotalValue, 1e-9)
}

func TestHandleAddPosition_Invalid(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "{"},
		{"empty name", PositionRequest{Price: 1, Quantity: 1}},
		{"negative price", PositionRequest{Name: "X", Price: -1, Quantity: 1}},
		{"zero quantity", PositionRequest{Name: "X", Price: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/portfolio/positions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, errorMessage(t, rec))
		})
	}
}

func TestHandleAddMarketPosition(t *testing.T) {
	router, service := setupRouter(t)

	rec := do(t, router, http.MethodPost, "/portfolio/positions/market", MarketPositionRequest{Ticker: "MSFT", Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"MSFT"}, service.Snapshot().AssetOrder)

	rec = do(t, router, http.MethodPost, "/portfolio/positions/market", MarketPositionRequest{Ticker: "NOPE", Quantity: 2})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleRemovePosition(t *testing.T) {
	router, service := setupRouter(t)
	seed(t, service)

	rec := do(t, router, http.MethodDelete, "/portfolio/positions/AAPL?quantity=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"BOND"}, service.Snapshot().AssetOrder)

	rec = do(t, router, http.MethodDelete, "/portfolio/positions/AAPL?quantity=1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/portfolio/positions/BOND?quantity=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, "/portfolio/positions/BOND?quantity=50", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMergeAndReplace(t *testing.T) {
	router, service := setupRouter(t)
	seed(t, service)

	rec := do(t, router, http.MethodPost, "/portfolio/merge", PositionsRequest{Positions: []PositionRequest{
		{Name: "GOLD", Price: 50, ExpectedReturn: 0.04, Volatility: 0.15, Quantity: 4},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL", "BOND", "GOLD"}, service.Snapshot().AssetOrder)

	rec = do(t, router, http.MethodPut, "/portfolio", PositionsRequest{Positions: []PositionRequest{
		{Name: "CASH", Price: 1, Quantity: 100},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"CASH"}, service.Snapshot().AssetOrder)

	rec = do(t, router, http.MethodPut, "/portfolio", PositionsRequest{Positions: []PositionRequest{
		{Name: "BAD", Price: -1, Quantity: 1},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "position 0")
	assert.Equal(t, []string{"CASH"}, service.Snapshot().AssetOrder)
}

func TestHandleCorrelationAndMetrics(t *testing.T) {
	router, service := setupRouter(t)
	seed(t, service)

	rec := do(t, router, http.MethodGet, "/risk/metrics", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/risk/correlation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPut, "/risk/correlation", CorrelationRequest{Matrix: [][]float64{{1, 0.3}, {0.3, 1}}})
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot analysis.CorrelationSnapshot
	envelope(t, rec, &snapshot)
	assert.Equal(t, []string{"AAPL", "BOND"}, snapshot.Labels)
	assert.Equal(t, analysis.SourceManual, snapshot.Source)

	rec = do(t, router, http.MethodGet, "/risk/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics analysis.RiskMetrics
	envelope(t, rec, &metrics)
	assert.InDelta(t, 0.012125, metrics.Variance, 1e-12)
	require.Len(t, metrics.Contributions, 2)
	assert.InDelta(t, 0.01075, metrics.Contributions[0], 1e-12)
}

func TestHandleSetCorrelation_MatrixErrors(t *testing.T) {
	router, service := setupRouter(t)
	seed(t, service)

	tests := []struct {
		name   string
		matrix [][]float64
		want   error
	}{
		{"dimension", [][]float64{{1}}, domain.ErrDimension},
		{"diagonal", [][]float64{{0.9, 0}, {0, 1}}, domain.ErrDiagonal},
		{"bounds", [][]float64{{1, 1.2}, {1.2, 1}}, domain.ErrBounds},
		{"symmetry", [][]float64{{1, 0.3}, {0.2, 1}}, domain.ErrSymmetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPut, "/risk/correlation", CorrelationRequest{Matrix: tt.matrix})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorMessage(t, rec), tt.want.Error())
		})
	}
}

func TestHandleRefreshCorrelation(t *testing.T) {
	router, service := setupRouter(t)

	rec := do(t, router, http.MethodPost, "/risk/correlation/refresh", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	seed(t, service)
	rec = do(t, router, http.MethodPost, "/risk/correlation/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot analysis.CorrelationSnapshot
	envelope(t, rec, &snapshot)
	assert.Equal(t, analysis.SourceMarket, snapshot.Source)
}

func TestHandleWhatIf(t *testing.T) {
	router, service := setupRouter(t)
	seed(t, service)

	rec := do(t, router, http.MethodGet, "/portfolio/what-if/last", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/portfolio/what-if", WhatIfRequest{Name: "AAPL", QuantityDelta: 5})
	require.Equal(t, http.StatusOK, rec.Code)

	var result analysis.WhatIfResult
	envelope(t, rec, &result)
	assert.InDelta(t, 4000.0, result.Before.TotalValue, 1e-9)
	assert.InDelta(t, 5000.0, result.After.TotalValue, 1e-9)
	assert.InDelta(t, 4000.0, service.Snapshot().TotalValue, 1e-9)

	rec = do(t, router, http.MethodGet, "/portfolio/what-if/last", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/portfolio/what-if", WhatIfRequest{Name: "MISSING", QuantityDelta: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleOptimize(t *testing.T) {
	router, service := setupRouter(t)
	seed(t, service)

	rec := do(t, router, http.MethodGet, "/optimization/last", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/optimization/run", OptimizeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "matrix required")

	_, err := service.SetCorrelationMatrix(testingpkg.NewCorrelationFixture(0))
	require.NoError(t, err)

	rec = do(t, router, http.MethodPost, "/optimization/run", OptimizeRequest{})
	require.Equal(t, http.StatusOK, rec.Code)

	var result optimization.Result
	envelope(t, rec, &result)
	assert.Equal(t, optimization.MinVariance, result.Objective)
	assert.Equal(t, optimization.DefaultLambda, result.Lambda)
	assert.Equal(t, optimization.RandomCandidates+1, result.Evaluated)

	rec = do(t, router, http.MethodGet, "/optimization/last", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	lambda := 2.0
	rec = do(t, router, http.MethodPost, "/optimization/run", OptimizeRequest{Objective: " MAX_SCORE ", Lambda: &lambda})
	require.Equal(t, http.StatusOK, rec.Code)
	envelope(t, rec, &result)
	assert.Equal(t, optimization.MaxScore, result.Objective)
	assert.Equal(t, 2.0, result.Lambda)

	rec = do(t, router, http.MethodPost, "/optimization/run", OptimizeRequest{Objective: "sharpe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	target := 0.5
	rec = do(t, router, http.MethodPost, "/optimization/run", OptimizeRequest{TargetReturn: &target})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleImportExportCSV(t *testing.T) {
	router, service := setupRouter(t)

	body := "name,price,mu,sigma,qty\nAAPL,200,0.10,0.20,10\nBOND,100,0.02,0.05,20\n"
	rec := do(t, router, http.MethodPost, "/portfolio/import", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL", "BOND"}, service.Snapshot().AssetOrder)

	rec = do(t, router, http.MethodGet, "/portfolio/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "portfolio_export.csv")
	assert.Contains(t, rec.Body.String(), "total_value,4000")

	rec = do(t, router, http.MethodPost, "/portfolio/import", "AAPL,notaprice,0.1,0.2,1\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", domain.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: x", domain.ErrSymmetry), http.StatusBadRequest},
		{fmt.Errorf("%w: x", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: x", domain.ErrInfeasible), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: x", domain.ErrData), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
