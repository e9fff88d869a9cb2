package projection

import (
	"testing"

	"github.com/hammal/mcao/errs"
	"github.com/hammal/mcao/matutil"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNew(t *testing.T) {
	p, err := New(Numerical, 64)
	require.NoError(t, err)
	require.IsType(t, &NumericalProjector{}, p)

	p, err = New(Analytic, 0)
	require.NoError(t, err)
	require.IsType(t, &AnalyticProjector{}, p)

	_, err = New(Kind(99), 0)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestProjectValidation(t *testing.T) {
	for _, p := range []Projector{NewNumerical(32), NewAnalytic()} {
		_, err := p.Project(0, 1, 0, 0)
		require.ErrorIs(t, err, errs.ErrInvalidParameter)
		_, err = p.Project(5, 0.5, 0, 0)
		require.ErrorIs(t, err, errs.ErrInvalidParameter)
	}
}

// An undisplaced, unmagnified footprint sees the layer expansion unchanged.
func TestProjectIdentity(t *testing.T) {
	const nz = 6
	eye := matutil.Eye(nz)

	t.Run("numerical", func(t *testing.T) {
		m, err := NewNumerical(64).Project(nz, 1, 0, 0)
		require.NoError(t, err)
		require.InDeltaSlice(t, eye.RawMatrix().Data, m.RawMatrix().Data, 1e-8)
	})
	t.Run("analytic", func(t *testing.T) {
		m, err := NewAnalytic().Project(nz, 1, 0, 0)
		require.NoError(t, err)
		require.InDeltaSlice(t, eye.RawMatrix().Data, m.RawMatrix().Data, 1e-10)
	})
}

// The grid quadrature must agree with the exact monomial basis change.
func TestNumericalMatchesAnalytic(t *testing.T) {
	const nz = 6
	want, err := NewAnalytic().Project(nz, 1.4, 0.3, 0.7)
	require.NoError(t, err)
	got, err := NewNumerical(128).Project(nz, 1.4, 0.3, 0.7)
	require.NoError(t, err)
	require.InDeltaSlice(t, want.RawMatrix().Data, got.RawMatrix().Data, 5e-3)
}

func TestProjectDeterministic(t *testing.T) {
	for _, p := range []Projector{NewNumerical(32), NewAnalytic()} {
		a, err := p.Project(5, 1.2, 0.4, 1.1)
		require.NoError(t, err)
		b, err := p.Project(5, 1.2, 0.4, 1.1)
		require.NoError(t, err)
		require.Equal(t, a.RawMatrix().Data, b.RawMatrix().Data)
	}
}

func TestTensorBlocks(t *testing.T) {
	tensor := NewTensor(2, 3, 2)
	block := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	tensor.SetBlock(1, 0, block)

	require.Equal(t, block.RawMatrix().Data, tensor.Block(1, 0).RawMatrix().Data)
	require.Equal(t, []float64{0, 0, 0, 0}, tensor.Block(0, 0).RawMatrix().Data)
	require.True(t, tensor.Consistent())
}

func TestTensorSlice(t *testing.T) {
	tensor := NewTensor(3, 3, 2)
	for h := 0; h < 3; h++ {
		for s := 0; s < 2; s++ {
			block := mat.NewDense(3, 3, nil)
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					block.Set(a, b, float64(1000*h+100*s+10*a+b))
				}
			}
			tensor.SetBlock(h, s, block)
		}
	}

	sliced, err := tensor.Slice(2, []int{0, 2})
	require.NoError(t, err)
	require.Equal(t, 2, sliced.NZernike)
	require.Equal(t, 2, sliced.NHeights)
	require.Equal(t, 2, sliced.NStars)
	// Height 2 of the source is height 1 of the slice, modes truncated.
	require.Equal(t, []float64{2000, 2001, 2010, 2011}, sliced.Block(1, 0).RawMatrix().Data)
	require.Equal(t, []float64{100, 101, 110, 111}, sliced.Block(0, 1).RawMatrix().Data)

	_, err = tensor.Slice(4, []int{0})
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = tensor.Slice(2, []int{3})
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}
