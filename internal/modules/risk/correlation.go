// Package risk provides correlation matrix validation and the variance,
// volatility and Euler risk-contribution calculations.
package risk

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/domain"
)

// Tolerances applied by ValidateCorrelationMatrix.
const (
	DiagonalTolerance = 1e-10
	SymmetryTolerance = 1e-10
)

// CorrelationMatrix is a square matrix of pairwise correlations whose axes
// follow the portfolio's lexical asset order.
type CorrelationMatrix [][]float64

// Identity returns the n×n identity correlation matrix.
func Identity(n int) CorrelationMatrix {
	m := make(CorrelationMatrix, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

// Clone returns a deep copy.
func (m CorrelationMatrix) Clone() CorrelationMatrix {
	if m == nil {
		return nil
	}
	out := make(CorrelationMatrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// HasSize reports whether m is n×n. It does not check contents.
func (m CorrelationMatrix) HasSize(n int) bool {
	if len(m) != n {
		return false
	}
	for _, row := range m {
		if len(row) != n {
			return false
		}
	}
	return true
}

// ValidateCorrelationMatrix checks m against an asset count n.
//
// Checks run in a fixed order and the first failure is returned:
// row count, row widths, then for each row i its diagonal followed by each
// pair (i, j>i): bounds of both entries, then symmetry.
func ValidateCorrelationMatrix(m CorrelationMatrix, n int) error {
	if len(m) != n {
		return fmt.Errorf("%w: expected %d rows, got %d", domain.ErrDimension, n, len(m))
	}
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d columns, expected %d", domain.ErrDimension, i, len(row), n)
		}
	}

	for i := 0; i < n; i++ {
		if !(math.Abs(m[i][i]-1) <= DiagonalTolerance) {
			return fmt.Errorf("%w: M[%d][%d] = %g", domain.ErrDiagonal, i, i, m[i][i])
		}
		for j := i + 1; j < n; j++ {
			a, b := m[i][j], m[j][i]
			if !inUnitRange(a) || !inUnitRange(b) {
				return fmt.Errorf("%w: M[%d][%d] = %g, M[%d][%d] = %g", domain.ErrBounds, i, j, a, j, i, b)
			}
			if math.Abs(a-b) > SymmetryTolerance {
				return fmt.Errorf("%w: M[%d][%d] = %g, M[%d][%d] = %g", domain.ErrSymmetry, i, j, a, j, i, b)
			}
		}
	}

	return nil
}

// inUnitRange is false for NaN as well as values outside [-1, 1].
func inUnitRange(x float64) bool {
	return x >= -1 && x <= 1
}
