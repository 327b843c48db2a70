package risk

import (
	"github.com/aristath/allocator/internal/modules/portfolio"
)

// Variance returns Σ_i Σ_j w_i w_j ρ_ij σ_i σ_j over the portfolio's lexical
// order. corr is validated against the current asset count on every call.
// An empty or zero-valued portfolio has variance 0.
func Variance(p *portfolio.Portfolio, corr CorrelationMatrix) (float64, error) {
	model, err := NewModel(p.Volatilities(), corr)
	if err != nil {
		return 0, err
	}

	w := p.Weights()
	if w == nil {
		return 0, nil
	}
	return model.Variance(w)
}

// Volatility returns sqrt(max(0, Variance(p, corr))).
func Volatility(p *portfolio.Portfolio, corr CorrelationMatrix) (float64, error) {
	model, err := NewModel(p.Volatilities(), corr)
	if err != nil {
		return 0, err
	}

	w := p.Weights()
	if w == nil {
		return 0, nil
	}
	return model.Volatility(w)
}

// VarianceContributions returns, per asset in axis order,
// w_i × Σ_j ρ_ij σ_i σ_j w_j. The contributions sum to Variance(p, corr).
// All contributions are 0 for a zero-valued portfolio.
func VarianceContributions(p *portfolio.Portfolio, corr CorrelationMatrix) ([]float64, error) {
	model, err := NewModel(p.Volatilities(), corr)
	if err != nil {
		return nil, err
	}

	w := p.Weights()
	if w == nil {
		return make([]float64, p.Size()), nil
	}
	return model.Contributions(w)
}

// AssetRisk is one asset's line in a RiskBreakdown.
type AssetRisk struct {
	Name         string  `json:"name"`
	Weight       float64 `json:"weight"`
	Volatility   float64 `json:"volatility"`
	Contribution float64 `json:"contribution"`
	// Share is Contribution / Variance, or 0 when the variance is not positive.
	Share float64 `json:"share"`
}

// RiskBreakdown is the portfolio risk decomposed per asset.
type RiskBreakdown struct {
	Variance   float64     `json:"variance"`
	Volatility float64     `json:"volatility"`
	Assets     []AssetRisk `json:"assets"`
}

// Breakdown computes variance, volatility and per-asset contributions in one pass.
func Breakdown(p *portfolio.Portfolio, corr CorrelationMatrix) (*RiskBreakdown, error) {
	model, err := NewModel(p.Volatilities(), corr)
	if err != nil {
		return nil, err
	}

	order := p.AssetOrder()
	sigma := p.Volatilities()
	out := &RiskBreakdown{Assets: make([]AssetRisk, len(order))}
	for i, name := range order {
		out.Assets[i] = AssetRisk{Name: name, Volatility: sigma[i]}
	}

	w := p.Weights()
	if w == nil {
		return out, nil
	}

	contributions, err := model.Contributions(w)
	if err != nil {
		return nil, err
	}
	if out.Variance, err = model.Variance(w); err != nil {
		return nil, err
	}
	if out.Volatility, err = model.Volatility(w); err != nil {
		return nil, err
	}

	for i := range out.Assets {
		out.Assets[i].Weight = w[i]
		out.Assets[i].Contribution = contributions[i]
		if out.Variance > 0 {
			out.Assets[i].Share = contributions[i] / out.Variance
		}
	}
	return out, nil
}
