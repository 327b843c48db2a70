// Package optimization searches long-only allocations over a fixed asset set
// by deterministic random sampling.
package optimization

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/risk"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RandomCandidates is the number of sampled allocations evaluated after the
// current one.
const RandomCandidates = 3500

// DefaultLambda is the risk-aversion used by max_score when none is given.
const DefaultLambda = 0.5

// Objective selects how candidates are ranked.
type Objective string

const (
	// MinVariance keeps the eligible candidate with the lowest volatility.
	MinVariance Objective = "min_variance"
	// MaxReturn keeps the eligible candidate with the highest expected return.
	MaxReturn Objective = "max_return"
	// MaxScore keeps the eligible candidate with the highest
	// expectedReturn - lambda*volatility.
	MaxScore Objective = "max_score"
)

// ParseObjective maps a name to an Objective. Matching ignores case and
// surrounding whitespace.
func ParseObjective(s string) (Objective, error) {
	switch Objective(strings.ToLower(strings.TrimSpace(s))) {
	case MinVariance:
		return MinVariance, nil
	case MaxReturn:
		return MaxReturn, nil
	case MaxScore:
		return MaxScore, nil
	}
	return "", fmt.Errorf("%w: unknown objective %q", domain.ErrInvalidInput, s)
}

// Request describes one optimization run. All vectors and both matrix axes
// follow AssetOrder.
type Request struct {
	AssetOrder      []string
	ExpectedReturns []float64
	Volatilities    []float64
	// Current is the present allocation as weights; it is evaluated as
	// candidate 0.
	Current   []float64
	Matrix    risk.CorrelationMatrix
	Objective Objective
	// TargetReturn, when set, requires expectedReturn >= *TargetReturn.
	TargetReturn *float64
	// MaxVolatility, when set, requires volatility <= *MaxVolatility.
	MaxVolatility *float64
	Lambda        float64
}

// Candidate is one evaluated allocation.
type Candidate struct {
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	Score          float64   `json:"score"`
	Eligible       bool      `json:"eligible"`
}

// Result is the outcome of a run.
type Result struct {
	ID            string    `json:"id"`
	Objective     Objective `json:"objective"`
	AssetOrder    []string  `json:"asset_order"`
	Lambda        float64   `json:"lambda"`
	TargetReturn  *float64  `json:"target_return,omitempty"`
	MaxVolatility *float64  `json:"max_volatility,omitempty"`
	Best          Candidate `json:"best"`
	// BestIndex is the position of Best in Candidates; 0 means the current
	// allocation was kept.
	BestIndex  int         `json:"best_index"`
	Current    Candidate   `json:"current"`
	Candidates []Candidate `json:"-"`
	Eligible   int         `json:"eligible"`
	Evaluated  int         `json:"evaluated"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Optimizer runs allocation searches. It holds no state between runs.
type Optimizer struct {
	log zerolog.Logger
}

// NewOptimizer creates an optimizer.
func NewOptimizer(log zerolog.Logger) *Optimizer {
	return &Optimizer{
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// Run evaluates the current allocation followed by RandomCandidates sampled
// allocations and returns the best eligible one under req.Objective.
//
// Candidates are compared in generation order and the best is replaced only
// on strict improvement, so ties keep the earlier candidate. A fresh generator
// is seeded on every call: identical requests yield identical results.
func (o *Optimizer) Run(req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	model, err := risk.NewModel(req.Volatilities, req.Matrix)
	if err != nil {
		return nil, err
	}

	n := len(req.AssetOrder)
	rng := newLCG(generatorSeed)

	candidates := make([]Candidate, 0, RandomCandidates+1)
	best := -1
	eligible := 0
	for k := 0; k <= RandomCandidates; k++ {
		var w []float64
		if k == 0 {
			w = append([]float64(nil), req.Current...)
		} else {
			w = rng.weights(n)
		}

		c, err := evaluate(model, w, req)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)

		if !c.Eligible {
			continue
		}
		eligible++
		if best < 0 || improves(req.Objective, c, candidates[best]) {
			best = k
		}
	}

	if best < 0 {
		return nil, fmt.Errorf("%w: none of %d candidates meets the constraints", domain.ErrInfeasible, len(candidates))
	}

	result := &Result{
		ID:            uuid.New().String(),
		Objective:     req.Objective,
		AssetOrder:    append([]string(nil), req.AssetOrder...),
		Lambda:        req.Lambda,
		TargetReturn:  req.TargetReturn,
		MaxVolatility: req.MaxVolatility,
		Best:          candidates[best],
		BestIndex:     best,
		Current:       candidates[0],
		Candidates:    candidates,
		Eligible:      eligible,
		Evaluated:     len(candidates),
		CreatedAt:     time.Now(),
	}

	o.log.Debug().
		Str("run_id", result.ID).
		Str("objective", string(req.Objective)).
		Int("assets", n).
		Int("eligible", eligible).
		Int("best_index", best).
		Float64("expected_return", result.Best.ExpectedReturn).
		Float64("volatility", result.Best.Volatility).
		Msg("Optimization run complete")

	return result, nil
}

func evaluate(model *risk.Model, w []float64, req Request) (Candidate, error) {
	vol, err := model.Volatility(w)
	if err != nil {
		return Candidate{}, err
	}
	ret := risk.ExpectedReturnFromWeights(w, req.ExpectedReturns)

	c := Candidate{
		Weights:        w,
		ExpectedReturn: ret,
		Volatility:     vol,
		Score:          ret - req.Lambda*vol,
		Eligible:       true,
	}
	if req.TargetReturn != nil && ret < *req.TargetReturn {
		c.Eligible = false
	}
	if req.MaxVolatility != nil && vol > *req.MaxVolatility {
		c.Eligible = false
	}
	return c, nil
}

// improves reports whether c is strictly better than best.
func improves(objective Objective, c, best Candidate) bool {
	switch objective {
	case MinVariance:
		return c.Volatility < best.Volatility
	case MaxReturn:
		return c.ExpectedReturn > best.ExpectedReturn
	default:
		return c.Score > best.Score
	}
}

func validateRequest(req Request) error {
	n := len(req.AssetOrder)
	if n < 2 {
		return fmt.Errorf("%w: need at least 2 assets to optimize, got %d", domain.ErrInvalidInput, n)
	}
	if len(req.ExpectedReturns) != n || len(req.Volatilities) != n || len(req.Current) != n {
		return fmt.Errorf("%w: vector lengths (returns %d, volatilities %d, current %d) do not match %d assets",
			domain.ErrInvalidInput, len(req.ExpectedReturns), len(req.Volatilities), len(req.Current), n)
	}
	switch req.Objective {
	case MinVariance, MaxReturn, MaxScore:
	default:
		return fmt.Errorf("%w: unknown objective %q", domain.ErrInvalidInput, req.Objective)
	}
	if req.TargetReturn != nil && (*req.TargetReturn < 0 || math.IsNaN(*req.TargetReturn)) {
		return fmt.Errorf("%w: target return must be >= 0, got %g", domain.ErrInvalidInput, *req.TargetReturn)
	}
	if req.MaxVolatility != nil && !(*req.MaxVolatility > 0) {
		return fmt.Errorf("%w: max volatility must be > 0, got %g", domain.ErrInvalidInput, *req.MaxVolatility)
	}
	if !(req.Lambda >= 0) {
		return fmt.Errorf("%w: lambda must be >= 0, got %g", domain.ErrInvalidInput, req.Lambda)
	}
	return nil
}
