package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/allocator/internal/domain"
)

// ParameterTolerance is the absolute tolerance used when the same asset name is
// added twice: expected return and volatility must agree within it.
const ParameterTolerance = 1e-12

// Portfolio holds positions keyed by asset name.
//
// Iteration is always in ascending lexical order of names. That order is the
// axis order of every correlation matrix and weight vector built from the
// portfolio.
type Portfolio struct {
	positions map[string]*Position
}

// New creates an empty portfolio.
func New() *Portfolio {
	return &Portfolio{positions: make(map[string]*Position)}
}

// Size returns the number of distinct assets.
func (p *Portfolio) Size() int {
	return len(p.positions)
}

// IsEmpty reports whether the portfolio holds no positions.
func (p *Portfolio) IsEmpty() bool {
	return len(p.positions) == 0
}

// AddPosition adds quantity of asset.
//
// A new name inserts a position. An existing name requires the expected return
// and volatility to match the stored asset within ParameterTolerance; the
// quantities are then summed and the stored asset's price is kept (the price
// carried by the new asset is discarded).
func (p *Portfolio) AddPosition(asset Asset, quantity float64) error {
	if !validQuantity(quantity) {
		return fmt.Errorf("%w: add quantity must be finite and > 0, got %g", domain.ErrInvalidInput, quantity)
	}

	existing, ok := p.positions[asset.Name()]
	if !ok {
		pos, err := NewPosition(asset, quantity)
		if err != nil {
			return err
		}
		p.positions[asset.Name()] = &pos
		return nil
	}

	if math.Abs(existing.Asset.ExpectedReturn()-asset.ExpectedReturn()) > ParameterTolerance ||
		math.Abs(existing.Asset.Volatility()-asset.Volatility()) > ParameterTolerance {
		return fmt.Errorf("%w: parameter mismatch for asset %s (expected return/volatility differ from held asset)",
			domain.ErrInvalidInput, asset.Name())
	}

	existing.Quantity += quantity
	return nil
}

// RemovePosition removes quantity of the named asset. Removing exactly the held
// quantity deletes the entry.
func (p *Portfolio) RemovePosition(name string, quantity float64) error {
	if !validQuantity(quantity) {
		return fmt.Errorf("%w: remove quantity must be finite and > 0, got %g", domain.ErrInvalidInput, quantity)
	}

	pos, ok := p.positions[name]
	if !ok {
		return fmt.Errorf("%w: asset %s", domain.ErrNotFound, name)
	}

	if quantity > pos.Quantity {
		return fmt.Errorf("%w: cannot remove %g of %s, only %g held",
			domain.ErrInvalidInput, quantity, name, pos.Quantity)
	}

	pos.Quantity -= quantity
	if pos.Quantity <= 0 {
		delete(p.positions, name)
	}
	return nil
}

// Merge adds every position of other into p using AddPosition semantics.
// Either every position is merged or, on the first error, p is left unchanged.
func (p *Portfolio) Merge(other *Portfolio) error {
	staged := p.Clone()
	for _, pos := range other.Positions() {
		if err := staged.AddPosition(pos.Asset, pos.Quantity); err != nil {
			return fmt.Errorf("merge %s: %w", pos.Asset.Name(), err)
		}
	}
	p.positions = staged.positions
	return nil
}

// Plus returns a new portfolio holding p merged with other. Neither operand changes.
func (p *Portfolio) Plus(other *Portfolio) (*Portfolio, error) {
	out := p.Clone()
	if err := out.Merge(other); err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup returns the live position for name. Changes made through the returned
// pointer (quantity, asset price) are visible in the portfolio.
func (p *Portfolio) Lookup(name string) (*Position, error) {
	pos, ok := p.positions[name]
	if !ok {
		return nil, fmt.Errorf("%w: asset %s", domain.ErrNotFound, name)
	}
	return pos, nil
}

// Get returns a copy of the position for name.
func (p *Portfolio) Get(name string) (Position, error) {
	pos, err := p.Lookup(name)
	if err != nil {
		return Position{}, err
	}
	return *pos, nil
}

// AssetOrder returns asset names in ascending lexical order.
func (p *Portfolio) AssetOrder() []string {
	names := make([]string, 0, len(p.positions))
	for name := range p.positions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AssetNames returns the set of held asset names.
func (p *Portfolio) AssetNames() map[string]struct{} {
	set := make(map[string]struct{}, len(p.positions))
	for name := range p.positions {
		set[name] = struct{}{}
	}
	return set
}

// Positions returns copies of all positions in axis order.
func (p *Portfolio) Positions() []Position {
	order := p.AssetOrder()
	out := make([]Position, len(order))
	for i, name := range order {
		out[i] = *p.positions[name]
	}
	return out
}

// TotalValue returns the sum of position values.
func (p *Portfolio) TotalValue() float64 {
	total := 0.0
	for _, name := range p.AssetOrder() {
		total += p.positions[name].Value()
	}
	return total
}

// Weights returns value weights in axis order, or nil when the total value is
// not positive.
func (p *Portfolio) Weights() []float64 {
	total := p.TotalValue()
	if total <= 0 {
		return nil
	}

	order := p.AssetOrder()
	w := make([]float64, len(order))
	for i, name := range order {
		w[i] = p.positions[name].Value() / total
	}
	return w
}

// ExpectedReturn returns the value-weighted expected return, 0 when the total
// value is not positive.
func (p *Portfolio) ExpectedReturn() float64 {
	w := p.Weights()
	if w == nil {
		return 0
	}

	er := 0.0
	for i, name := range p.AssetOrder() {
		er += w[i] * p.positions[name].Asset.ExpectedReturn()
	}
	return er
}

// ExpectedReturns returns each asset's expected return in axis order.
func (p *Portfolio) ExpectedReturns() []float64 {
	order := p.AssetOrder()
	mu := make([]float64, len(order))
	for i, name := range order {
		mu[i] = p.positions[name].Asset.ExpectedReturn()
	}
	return mu
}

// Volatilities returns each asset's volatility in axis order.
func (p *Portfolio) Volatilities() []float64 {
	order := p.AssetOrder()
	sigma := make([]float64, len(order))
	for i, name := range order {
		sigma[i] = p.positions[name].Asset.Volatility()
	}
	return sigma
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	out := New()
	for name, pos := range p.positions {
		cp := *pos
		out.positions[name] = &cp
	}
	return out
}
