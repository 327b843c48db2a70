// Package analysis owns the live portfolio and its cached correlation matrix,
// and exposes the risk, what-if and optimization operations on them.
package analysis

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/portfolio"
	"github.com/aristath/allocator/internal/modules/risk"
	"github.com/rs/zerolog"
)

// Correlation sources
const (
	SourceManual = "manual"
	SourceMarket = "market"
)

// CorrelationSnapshot is a validated correlation matrix together with the
// asset order it was built for.
type CorrelationSnapshot struct {
	Matrix     risk.CorrelationMatrix `json:"matrix"`
	Labels     []string               `json:"labels"`
	Source     string                 `json:"source"`
	ComputedAt time.Time              `json:"computed_at"`
}

// compatible reports whether the snapshot's axes match order.
func (c *CorrelationSnapshot) compatible(order []string) bool {
	return c != nil && slices.Equal(c.Labels, order)
}

func (c *CorrelationSnapshot) clone() *CorrelationSnapshot {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Matrix = c.Matrix.Clone()
	cp.Labels = slices.Clone(c.Labels)
	return &cp
}

// PositionSummary is one position as reported by Snapshot.
type PositionSummary struct {
	Name           string  `json:"name"`
	Quantity       float64 `json:"quantity"`
	Price          float64 `json:"price"`
	Value          float64 `json:"value"`
	Weight         float64 `json:"weight"`
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
}

// Summary is a consistent view of the portfolio. Risk is present only when
// the cached correlation matrix matches the current asset order.
type Summary struct {
	Positions         []PositionSummary   `json:"positions"`
	AssetOrder        []string            `json:"asset_order"`
	TotalValue        float64             `json:"total_value"`
	ExpectedReturn    float64             `json:"expected_return"`
	Risk              *risk.RiskBreakdown `json:"risk,omitempty"`
	CorrelationSource string              `json:"correlation_source,omitempty"`
	HasOptimization   bool                `json:"has_optimization"`
}

// RiskMetrics are the portfolio risk figures against the cached matrix.
type RiskMetrics struct {
	AssetOrder     []string         `json:"asset_order"`
	TotalValue     float64          `json:"total_value"`
	ExpectedReturn float64          `json:"expected_return"`
	Variance       float64          `json:"variance"`
	Volatility     float64          `json:"volatility"`
	Contributions  []float64        `json:"contributions"`
	Assets         []risk.AssetRisk `json:"assets"`
}

// ScenarioMetrics describes a portfolio state in a what-if comparison.
// Volatility and Risk are nil when no compatible matrix is cached.
type ScenarioMetrics struct {
	TotalValue     float64             `json:"total_value"`
	ExpectedReturn float64             `json:"expected_return"`
	Volatility     *float64            `json:"volatility,omitempty"`
	Risk           *risk.RiskBreakdown `json:"risk,omitempty"`
}

// WhatIfResult compares the live portfolio with a simulated quantity change.
type WhatIfResult struct {
	Name          string          `json:"name"`
	QuantityDelta float64         `json:"quantity_delta"`
	Before        ScenarioMetrics `json:"before"`
	After         ScenarioMetrics `json:"after"`
	SimulatedAt   time.Time       `json:"simulated_at"`
}

// OptimizeParams are the caller-controlled inputs of an optimization run.
type OptimizeParams struct {
	Objective     optimization.Objective
	TargetReturn  *float64
	MaxVolatility *float64
	Lambda        float64
}

// Service is the single owner of the live portfolio. Every method takes the
// service lock internally; market-data fetches and optimizer runs happen
// outside it.
type Service struct {
	mu               sync.Mutex
	portfolio        *portfolio.Portfolio
	corr             *CorrelationSnapshot
	lastWhatIf       *WhatIfResult
	lastOptimization *optimization.Result
	// version changes on every mutation of the portfolio or matrix
	version uint64

	assets       AssetFetcher
	correlations CorrelationFetcher
	optimizer    *optimization.Optimizer
	log          zerolog.Logger
}

// NewService creates an analysis service with an empty portfolio. The
// fetchers may be nil, in which case market-data operations fail with
// domain.ErrData.
func NewService(
	assets AssetFetcher,
	correlations CorrelationFetcher,
	optimizer *optimization.Optimizer,
	log zerolog.Logger,
) *Service {
	return &Service{
		portfolio:    portfolio.New(),
		assets:       assets,
		correlations: correlations,
		optimizer:    optimizer,
		log:          log.With().Str("service", "analysis").Logger(),
	}
}

// touch records a mutation. Caller holds s.mu.
func (s *Service) touch() {
	s.version++
	s.lastOptimization = nil
}

// AddPosition adds quantity of asset to the live portfolio.
func (s *Service) AddPosition(asset portfolio.Asset, quantity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.portfolio.AddPosition(asset, quantity); err != nil {
		return err
	}
	s.touch()

	s.log.Info().
		Str("asset", asset.Name()).
		Float64("quantity", quantity).
		Msg("Position added")
	return nil
}

// AddFromMarket derives the asset for ticker from market data and adds
// quantity of it. The fetch runs without holding the service lock.
func (s *Service) AddFromMarket(ctx context.Context, ticker string, quantity float64) (portfolio.Asset, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return portfolio.Asset{}, fmt.Errorf("%w: ticker is required", domain.ErrInvalidInput)
	}
	if !(quantity > 0) {
		return portfolio.Asset{}, fmt.Errorf("%w: add quantity must be > 0, got %g", domain.ErrInvalidInput, quantity)
	}
	if s.assets == nil {
		return portfolio.Asset{}, fmt.Errorf("%w: market data is not configured", domain.ErrData)
	}

	asset, err := s.assets.FetchAsset(ctx, ticker)
	if err != nil {
		return portfolio.Asset{}, err
	}

	if err := s.AddPosition(asset, quantity); err != nil {
		return portfolio.Asset{}, err
	}
	return asset, nil
}

// RemovePosition removes quantity of the named asset.
func (s *Service) RemovePosition(name string, quantity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.portfolio.RemovePosition(name, quantity); err != nil {
		return err
	}
	s.touch()

	s.log.Info().
		Str("asset", name).
		Float64("quantity", quantity).
		Msg("Position removed")
	return nil
}

// Merge adds every position of other into the live portfolio, or none of
// them on error.
func (s *Service) Merge(other *portfolio.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.portfolio.Merge(other); err != nil {
		return err
	}
	s.touch()

	s.log.Info().Int("positions", other.Size()).Msg("Portfolio merged")
	return nil
}

// Replace swaps the live portfolio for a copy of p and drops every cached
// result, including the correlation matrix.
func (s *Service) Replace(p *portfolio.Portfolio) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.portfolio = p.Clone()
	s.corr = nil
	s.lastWhatIf = nil
	s.touch()

	s.log.Info().Int("positions", p.Size()).Msg("Portfolio replaced")
}

// Snapshot returns a consistent summary of the live portfolio.
func (s *Service) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.portfolio
	order := p.AssetOrder()
	weights := p.Weights()

	out := Summary{
		Positions:       make([]PositionSummary, len(order)),
		AssetOrder:      order,
		TotalValue:      p.TotalValue(),
		ExpectedReturn:  p.ExpectedReturn(),
		HasOptimization: s.lastOptimization != nil,
	}
	for i, pos := range p.Positions() {
		out.Positions[i] = PositionSummary{
			Name:           pos.Asset.Name(),
			Quantity:       pos.Quantity,
			Price:          pos.Asset.Price(),
			Value:          pos.Value(),
			ExpectedReturn: pos.Asset.ExpectedReturn(),
			Volatility:     pos.Asset.Volatility(),
		}
		if weights != nil {
			out.Positions[i].Weight = weights[i]
		}
	}

	if s.corr.compatible(order) {
		out.CorrelationSource = s.corr.Source
		breakdown, err := risk.Breakdown(p, s.corr.Matrix)
		if err != nil {
			s.log.Warn().Err(err).Msg("Cached correlation matrix rejected")
		} else {
			out.Risk = breakdown
		}
	}
	return out
}

// SetCorrelationMatrix validates m against the current asset order and
// caches it as a manual matrix.
func (s *Service) SetCorrelationMatrix(m risk.CorrelationMatrix) (*CorrelationSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.portfolio.AssetOrder()
	if err := risk.ValidateCorrelationMatrix(m, len(order)); err != nil {
		return nil, err
	}

	s.corr = &CorrelationSnapshot{
		Matrix:     m.Clone(),
		Labels:     order,
		Source:     SourceManual,
		ComputedAt: time.Now(),
	}
	s.touch()

	s.log.Info().Strs("labels", order).Msg("Correlation matrix set manually")
	return s.corr.clone(), nil
}

// RefreshCorrelationMatrix computes the matrix for the current asset order
// from market data and caches it. The fetch runs without holding the
// service lock; if the asset order changes meanwhile the result is discarded.
func (s *Service) RefreshCorrelationMatrix(ctx context.Context) (*CorrelationSnapshot, error) {
	if s.correlations == nil {
		return nil, fmt.Errorf("%w: market data is not configured", domain.ErrData)
	}

	order := s.Tickers()
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: portfolio is empty", domain.ErrInvalidInput)
	}

	m, err := s.correlations.FetchCorrelationMatrix(ctx, order)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Equal(order, s.portfolio.AssetOrder()) {
		return nil, fmt.Errorf("%w: portfolio changed during refresh", domain.ErrInvalidInput)
	}
	if err := risk.ValidateCorrelationMatrix(m, len(order)); err != nil {
		return nil, err
	}

	s.corr = &CorrelationSnapshot{
		Matrix:     m.Clone(),
		Labels:     order,
		Source:     SourceMarket,
		ComputedAt: time.Now(),
	}
	s.touch()

	s.log.Info().Strs("labels", order).Msg("Correlation matrix refreshed from market data")
	return s.corr.clone(), nil
}

// Correlation returns a copy of the cached matrix, if any.
func (s *Service) Correlation() (*CorrelationSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corr == nil {
		return nil, false
	}
	return s.corr.clone(), true
}

// Metrics computes expected return, variance, volatility and per-asset
// contributions against the cached matrix.
func (s *Service) Metrics() (*RiskMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.portfolio
	order := p.AssetOrder()
	if !s.corr.compatible(order) {
		return nil, fmt.Errorf("%w: compute correlation matrix first", domain.ErrInvalidInput)
	}
	m := s.corr.Matrix

	variance, err := risk.Variance(p, m)
	if err != nil {
		return nil, err
	}
	volatility, err := risk.Volatility(p, m)
	if err != nil {
		return nil, err
	}
	contributions, err := risk.VarianceContributions(p, m)
	if err != nil {
		return nil, err
	}
	breakdown, err := risk.Breakdown(p, m)
	if err != nil {
		return nil, err
	}

	return &RiskMetrics{
		AssetOrder:     order,
		TotalValue:     p.TotalValue(),
		ExpectedReturn: p.ExpectedReturn(),
		Variance:       variance,
		Volatility:     volatility,
		Contributions:  contributions,
		Assets:         breakdown.Assets,
	}, nil
}

// WhatIf simulates changing the named position by quantityDelta (positive
// adds at the held asset's parameters, negative removes) and compares the
// result with the live portfolio, which is left untouched.
func (s *Service) WhatIf(name string, quantityDelta float64) (*WhatIfResult, error) {
	if quantityDelta == 0 || math.IsNaN(quantityDelta) {
		return nil, fmt.Errorf("%w: quantity delta must be non-zero", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	held, err := s.portfolio.Get(name)
	if err != nil {
		return nil, err
	}

	simulated := s.portfolio.Clone()
	if quantityDelta > 0 {
		err = simulated.AddPosition(held.Asset, quantityDelta)
	} else {
		err = simulated.RemovePosition(name, -quantityDelta)
	}
	if err != nil {
		return nil, err
	}

	before, err := s.scenario(s.portfolio)
	if err != nil {
		return nil, err
	}
	after, err := s.scenario(simulated)
	if err != nil {
		return nil, err
	}

	s.lastWhatIf = &WhatIfResult{
		Name:          name,
		QuantityDelta: quantityDelta,
		Before:        before,
		After:         after,
		SimulatedAt:   time.Now(),
	}
	return s.lastWhatIf, nil
}

// LastWhatIf returns the most recent simulation since the last portfolio
// replacement.
func (s *Service) LastWhatIf() (*WhatIfResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastWhatIf, s.lastWhatIf != nil
}

// scenario measures p against the cached matrix. Caller holds s.mu.
func (s *Service) scenario(p *portfolio.Portfolio) (ScenarioMetrics, error) {
	out := ScenarioMetrics{
		TotalValue:     p.TotalValue(),
		ExpectedReturn: p.ExpectedReturn(),
	}
	if !s.corr.compatible(p.AssetOrder()) {
		return out, nil
	}

	breakdown, err := risk.Breakdown(p, s.corr.Matrix)
	if err != nil {
		return ScenarioMetrics{}, err
	}
	vol := breakdown.Volatility
	out.Volatility = &vol
	out.Risk = breakdown
	return out, nil
}

// Optimize searches allocations over the current assets using the cached
// matrix. Inputs are captured under the lock and the search runs without it;
// the result becomes LastOptimization only if nothing changed meanwhile.
func (s *Service) Optimize(ctx context.Context, params OptimizeParams) (*optimization.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, version, err := s.optimizationRequest(params)
	if err != nil {
		return nil, err
	}

	result, err := s.optimizer.Run(req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.version == version {
		s.lastOptimization = result
	} else {
		s.log.Info().Str("run_id", result.ID).Msg("Portfolio changed during optimization, result not kept")
	}

	s.log.Info().
		Str("run_id", result.ID).
		Str("objective", string(result.Objective)).
		Int("best_index", result.BestIndex).
		Int("eligible", result.Eligible).
		Msg("Optimization completed")
	return result, nil
}

func (s *Service) optimizationRequest(params OptimizeParams) (optimization.Request, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.portfolio
	order := p.AssetOrder()
	if len(order) < 2 {
		return optimization.Request{}, 0, fmt.Errorf("%w: need at least 2 assets to optimize", domain.ErrInvalidInput)
	}
	if !s.corr.compatible(order) {
		return optimization.Request{}, 0, fmt.Errorf("%w: compute correlation matrix first", domain.ErrInvalidInput)
	}

	current := p.Weights()
	if current == nil {
		current = make([]float64, len(order))
	}

	return optimization.Request{
		AssetOrder:      order,
		ExpectedReturns: p.ExpectedReturns(),
		Volatilities:    p.Volatilities(),
		Current:         current,
		Matrix:          s.corr.Matrix.Clone(),
		Objective:       params.Objective,
		TargetReturn:    params.TargetReturn,
		MaxVolatility:   params.MaxVolatility,
		Lambda:          params.Lambda,
	}, s.version, nil
}

// LastOptimization returns the most recent result computed against the
// current portfolio and matrix.
func (s *Service) LastOptimization() (*optimization.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastOptimization, s.lastOptimization != nil
}

// Tickers returns the current asset order.
func (s *Service) Tickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.portfolio.AssetOrder()
}
