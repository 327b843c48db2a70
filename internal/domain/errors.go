// Package domain provides the error taxonomy shared by the engine and its collaborators.
package domain

import "errors"

// Sentinel errors. Call sites wrap them with fmt.Errorf("%w: ...", ErrX)
// and callers match with errors.Is.
var (
	// ErrInvalidInput reports a malformed argument: empty name, non-positive
	// quantity, negative price, parameter mismatch on merge, too few assets.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound reports a lookup or removal of an absent asset.
	ErrNotFound = errors.New("not found")

	// ErrDimension reports a correlation matrix with the wrong shape.
	ErrDimension = errors.New("correlation matrix dimension mismatch")
	// ErrDiagonal reports a diagonal entry that is not 1.
	ErrDiagonal = errors.New("correlation matrix diagonal must be 1")
	// ErrBounds reports an off-diagonal entry outside [-1, 1].
	ErrBounds = errors.New("correlation must be in [-1, 1]")
	// ErrSymmetry reports M[i][j] != M[j][i].
	ErrSymmetry = errors.New("correlation matrix must be symmetric")

	// ErrInfeasible reports that no optimizer candidate satisfies the constraints.
	ErrInfeasible = errors.New("no candidate satisfies constraints")

	// ErrData reports a market-data failure (network, insufficient history).
	ErrData = errors.New("market data error")
)

// IsMatrixError reports whether err is one of the correlation matrix errors.
func IsMatrixError(err error) bool {
	return errors.Is(err, ErrDimension) ||
		errors.Is(err, ErrDiagonal) ||
		errors.Is(err, ErrBounds) ||
		errors.Is(err, ErrSymmetry)
}
