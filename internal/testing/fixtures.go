package testing

import (
	"testing"

	"github.com/aristath/allocator/internal/modules/portfolio"
	"github.com/aristath/allocator/internal/modules/risk"
)

// NewAssetFixtures returns AAPL (price 200, mu 0.10, sigma 0.20) and
// BOND (price 100, mu 0.02, sigma 0.05).
func NewAssetFixtures() []portfolio.Asset {
	return []portfolio.Asset{
		portfolio.MustAsset("AAPL", 200, 0.10, 0.20),
		portfolio.MustAsset("BOND", 100, 0.02, 0.05),
	}
}

// NewPortfolioFixture returns 10 AAPL and 20 BOND: total value 4000 with
// equal weights.
func NewPortfolioFixture(t *testing.T) *portfolio.Portfolio {
	t.Helper()

	assets := NewAssetFixtures()
	p := portfolio.New()
	for i, qty := range []float64{10, 20} {
		if err := p.AddPosition(assets[i], qty); err != nil {
			t.Fatalf("Failed to build portfolio fixture: %v", err)
		}
	}
	return p
}

// NewCorrelationFixture returns [[1, rho], [rho, 1]].
func NewCorrelationFixture(rho float64) risk.CorrelationMatrix {
	return risk.CorrelationMatrix{{1, rho}, {rho, 1}}
}
