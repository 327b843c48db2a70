package risk

import (
	"math"
	"testing"

	"github.com/aristath/allocator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCorrelationMatrix(t *testing.T) {
	tests := []struct {
		name    string
		matrix  CorrelationMatrix
		n       int
		wantErr error
	}{
		{"identity", Identity(3), 3, nil},
		{"empty for empty portfolio", CorrelationMatrix{}, 0, nil},
		{"valid correlated", CorrelationMatrix{{1, 0.3}, {0.3, 1}}, 2, nil},
		{"boundary values", CorrelationMatrix{{1, -1}, {-1, 1}}, 2, nil},
		{"too few rows", Identity(2), 3, domain.ErrDimension},
		{"ragged row", CorrelationMatrix{{1, 0}, {0}}, 2, domain.ErrDimension},
		{"wrong dimension and diagonal reports dimension", CorrelationMatrix{{2, 0}, {0, 2}}, 3, domain.ErrDimension},
		{"diagonal off", CorrelationMatrix{{1, 0}, {0, 0.9}}, 2, domain.ErrDiagonal},
		{"diagonal NaN", CorrelationMatrix{{math.NaN(), 0}, {0, 1}}, 2, domain.ErrDiagonal},
		{"out of bounds", CorrelationMatrix{{1, 1.2}, {1.2, 1}}, 2, domain.ErrBounds},
		{"lower triangle out of bounds", CorrelationMatrix{{1, 0.5}, {-1.5, 1}}, 2, domain.ErrBounds},
		{"off-diagonal NaN", CorrelationMatrix{{1, math.NaN()}, {math.NaN(), 1}}, 2, domain.ErrBounds},
		{"asymmetric", CorrelationMatrix{{1, 0.3}, {0.2, 1}}, 2, domain.ErrSymmetry},
		{"diagonal within tolerance", CorrelationMatrix{{1 + 1e-11, 0}, {0, 1}}, 2, nil},
		{"symmetry within tolerance", CorrelationMatrix{{1, 0.3}, {0.3 + 1e-11, 1}}, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCorrelationMatrix(tt.matrix, tt.n)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsMatrixError(err))
		})
	}
}

func TestValidateCorrelationMatrix_RowDiagonalBeforePairs(t *testing.T) {
	// Row 0 has a bad pair, row 1 a bad diagonal: row 0 is checked first.
	m := CorrelationMatrix{
		{1, 5, 0},
		{5, 3, 0},
		{0, 0, 1},
	}
	assert.ErrorIs(t, ValidateCorrelationMatrix(m, 3), domain.ErrBounds)

	// Row 0's diagonal is checked before its pairs.
	m[0][0] = 0
	assert.ErrorIs(t, ValidateCorrelationMatrix(m, 3), domain.ErrDiagonal)
}

func TestValidateCorrelationMatrix_DoesNotMutate(t *testing.T) {
	m := CorrelationMatrix{{1, 1.2}, {1.2, 1}}
	_ = ValidateCorrelationMatrix(m, 2)
	assert.Equal(t, CorrelationMatrix{{1, 1.2}, {1.2, 1}}, m, "validation must not clamp")
}

func TestCorrelationMatrix_CloneAndSize(t *testing.T) {
	m := CorrelationMatrix{{1, 0.4}, {0.4, 1}}
	c := m.Clone()
	c[0][1] = 0

	assert.Equal(t, 0.4, m[0][1])
	assert.True(t, m.HasSize(2))
	assert.False(t, m.HasSize(3))
	assert.False(t, CorrelationMatrix{{1, 0}, {0}}.HasSize(2))
	assert.Nil(t, CorrelationMatrix(nil).Clone())
}
