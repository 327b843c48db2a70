package portfolio

import (
	"fmt"

	"github.com/aristath/allocator/internal/domain"
)

// Position is an asset held in some quantity.
type Position struct {
	Asset    Asset
	Quantity float64
}

// NewPosition creates a position; quantity must be finite and > 0.
func NewPosition(asset Asset, quantity float64) (Position, error) {
	if !validQuantity(quantity) {
		return Position{}, fmt.Errorf("%w: position quantity must be finite and > 0, got %g", domain.ErrInvalidInput, quantity)
	}
	return Position{Asset: asset, Quantity: quantity}, nil
}

// Value returns price × quantity.
func (p Position) Value() float64 {
	return p.Asset.Price() * p.Quantity
}
