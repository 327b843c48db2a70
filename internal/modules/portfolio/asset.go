// Package portfolio provides the asset, position and portfolio data model.
package portfolio

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/domain"
)

// Asset is a named instrument with its risk/return parameters.
// Only the price can change after construction.
type Asset struct {
	name           string
	price          float64
	expectedReturn float64
	volatility     float64
}

// NewAsset creates a validated asset.
// expectedReturn is unconstrained and may be negative.
func NewAsset(name string, price, expectedReturn, volatility float64) (Asset, error) {
	if name == "" {
		return Asset{}, fmt.Errorf("%w: asset name must be non-empty", domain.ErrInvalidInput)
	}
	if !validPrice(price) {
		return Asset{}, fmt.Errorf("%w: asset %s price must be finite and >= 0, got %g", domain.ErrInvalidInput, name, price)
	}
	if !isFinite(expectedReturn) {
		return Asset{}, fmt.Errorf("%w: asset %s expected return must be finite, got %g", domain.ErrInvalidInput, name, expectedReturn)
	}
	if !(volatility >= 0) || math.IsInf(volatility, 1) {
		return Asset{}, fmt.Errorf("%w: asset %s volatility must be finite and >= 0, got %g", domain.ErrInvalidInput, name, volatility)
	}

	return Asset{
		name:           name,
		price:          price,
		expectedReturn: expectedReturn,
		volatility:     volatility,
	}, nil
}

// MustAsset is NewAsset for fixtures; it panics on invalid input.
func MustAsset(name string, price, expectedReturn, volatility float64) Asset {
	a, err := NewAsset(name, price, expectedReturn, volatility)
	if err != nil {
		panic(err)
	}
	return a
}

// Name returns the asset name (the portfolio key).
func (a Asset) Name() string { return a.name }

// Price returns the current unit price.
func (a Asset) Price() float64 { return a.price }

// ExpectedReturn returns the annualized expected return.
func (a Asset) ExpectedReturn() float64 { return a.expectedReturn }

// Volatility returns the annualized volatility.
func (a Asset) Volatility() float64 { return a.volatility }

// SetPrice updates the unit price in place.
func (a *Asset) SetPrice(price float64) error {
	if !validPrice(price) {
		return fmt.Errorf("%w: asset %s price must be finite and >= 0, got %g", domain.ErrInvalidInput, a.name, price)
	}
	a.price = price
	return nil
}

// The comparisons are written so that NaN fails them.
func validPrice(price float64) bool {
	return price >= 0 && !math.IsInf(price, 1)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validQuantity(quantity float64) bool {
	return quantity > 0 && !math.IsInf(quantity, 1)
}
