package matutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEye(t *testing.T) {
	e := Eye(3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			require.Equal(t, want, e.At(i, j))
		}
	}
}

func TestBlockDiag(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(1, 1, []float64{5})
	d := BlockDiag(a, b)

	rows, cols := d.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 3, cols)
	require.Equal(t, []float64{
		1, 2, 0,
		3, 4, 0,
		0, 0, 5,
	}, d.RawMatrix().Data)
}

func TestBlockDiagRepeat(t *testing.T) {
	a := mat.NewDense(1, 1, []float64{2})
	d := BlockDiag(Repeat(a, 3)...)
	require.Equal(t, []float64{
		2, 0, 0,
		0, 2, 0,
		0, 0, 2,
	}, d.RawMatrix().Data)
}

func TestHasNaNOrInf(t *testing.T) {
	clean := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	require.False(t, HasNaNOrInf(clean))

	clean.Set(1, 0, math.NaN())
	require.True(t, HasNaNOrInf(clean))

	clean.Set(1, 0, math.Inf(-1))
	require.True(t, HasNaNOrInf(clean))
}

func TestSpectralNorm(t *testing.T) {
	// diag(3, 1) has spectral norm 3.
	d := mat.NewDense(2, 2, []float64{3, 0, 0, 1})
	require.InDelta(t, 3, SpectralNorm(d), 1e-12)
}
