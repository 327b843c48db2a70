package risk

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model is the covariance structure Σ = D·ρ·D built from per-asset
// volatilities (D = diag(σ)) and a validated correlation matrix ρ.
// It evaluates weight vectors given in the same axis order.
type Model struct {
	n   int
	cov *mat.Dense
}

// NewModel validates corr against len(volatilities) and builds the covariance.
func NewModel(volatilities []float64, corr CorrelationMatrix) (*Model, error) {
	n := len(volatilities)
	if err := ValidateCorrelationMatrix(corr, n); err != nil {
		return nil, err
	}

	// ρ is only symmetric within SymmetryTolerance: keep both triangles.
	cov := mat.NewDense(max(n, 1), max(n, 1), nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cov.Set(i, j, corr[i][j]*volatilities[i]*volatilities[j])
		}
	}

	return &Model{n: n, cov: cov}, nil
}

// Size returns the number of assets.
func (m *Model) Size() int {
	return m.n
}

// Covariance returns a copy of Σ as nested slices.
func (m *Model) Covariance() [][]float64 {
	out := make([][]float64, m.n)
	for i := 0; i < m.n; i++ {
		out[i] = make([]float64, m.n)
		for j := 0; j < m.n; j++ {
			out[i][j] = m.cov.At(i, j)
		}
	}
	return out
}

// Variance returns wᵀΣw.
func (m *Model) Variance(weights []float64) (float64, error) {
	if err := m.checkWeights(weights); err != nil {
		return 0, err
	}
	if m.n == 0 {
		return 0, nil
	}
	w := mat.NewVecDense(m.n, weights)
	return mat.Inner(w, m.cov, w), nil
}

// Volatility returns sqrt(max(0, wᵀΣw)). Negative round-off on near-singular
// matrices is clamped to zero.
func (m *Model) Volatility(weights []float64) (float64, error) {
	v, err := m.Variance(weights)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(math.Max(0, v)), nil
}

// Contributions returns the Euler decomposition w_i·(Σw)_i, whose sum is the
// variance.
func (m *Model) Contributions(weights []float64) ([]float64, error) {
	if err := m.checkWeights(weights); err != nil {
		return nil, err
	}
	out := make([]float64, m.n)
	if m.n == 0 {
		return out, nil
	}

	w := mat.NewVecDense(m.n, weights)
	var sw mat.VecDense
	sw.MulVec(m.cov, w)
	for i := 0; i < m.n; i++ {
		out[i] = weights[i] * sw.AtVec(i)
	}
	return out, nil
}

func (m *Model) checkWeights(weights []float64) error {
	if len(weights) != m.n {
		return fmt.Errorf("%w: %d weights for %d assets", domain.ErrInvalidInput, len(weights), m.n)
	}
	return nil
}

// ExpectedReturnFromWeights returns Σ w_i·μ_i. The slices must have equal length.
func ExpectedReturnFromWeights(weights, expectedReturns []float64) float64 {
	return floats.Dot(weights, expectedReturns)
}

// PortfolioVolatility is the weight-vector form of Volatility: it validates
// corr against len(sigma) and returns sqrt(max(0, wᵀΣw)).
func PortfolioVolatility(weights, sigma []float64, corr CorrelationMatrix) (float64, error) {
	model, err := NewModel(sigma, corr)
	if err != nil {
		return 0, err
	}
	return model.Volatility(weights)
}
