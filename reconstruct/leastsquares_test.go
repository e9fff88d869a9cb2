package reconstruct

import (
	"math/rand/v2"
	"testing"

	"github.com/hammal/mcao/errs"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// wellConditionedSystem builds a random tall system matrix and the
// measurement of a known coefficient matrix.
func wellConditionedSystem(rows, modes, nLayers int, seed uint64) (*mat.Dense, *mat.Dense, *mat.VecDense) {
	cols := modes * nLayers
	rng := rand.New(rand.NewPCG(seed, seed))
	stacked := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			stacked.Set(i, j, rng.NormFloat64())
		}
	}
	truth := mat.NewDense(modes, nLayers, nil)
	for i := 0; i < modes; i++ {
		for j := 0; j < nLayers; j++ {
			truth.Set(i, j, rng.NormFloat64())
		}
	}
	x := mat.NewVecDense(cols, nil)
	for l := 0; l < nLayers; l++ {
		for i := 0; i < modes; i++ {
			x.SetVec(l*modes+i, truth.At(i, l))
		}
	}
	b := mat.NewVecDense(rows, nil)
	b.MulVec(stacked, x)
	return stacked, truth, b
}

func relErr(got, want *mat.Dense) float64 {
	var diff mat.Dense
	diff.Sub(got, want)
	return mat.Norm(&diff, 2) / mat.Norm(want, 2)
}

func TestLeastSquaresRecoversNoiseless(t *testing.T) {
	stacked, truth, b := wellConditionedSystem(12, 3, 2, 1)

	est, err := LeastSquares(stacked, b, nil, 2, false)
	require.NoError(t, err)
	require.Equal(t, MethodLeastSquares, est.Method)
	require.True(t, est.Converged)
	require.Less(t, relErr(est.Coeffs, truth), 1e-8)
	require.Less(t, est.Residual, 1e-8)
}

func TestLeastSquaresSingular(t *testing.T) {
	// Two identical columns make the normal matrix rank-deficient.
	stacked := mat.NewDense(3, 2, []float64{1, 1, 2, 2, 3, 3})
	b := mat.NewVecDense(3, []float64{1, 2, 3})
	_, err := LeastSquares(stacked, b, nil, 1, false)
	require.ErrorIs(t, err, errs.ErrSingularMatrix)
}

func TestLeastSquaresValidation(t *testing.T) {
	stacked := mat.NewDense(4, 4, nil)
	b := mat.NewVecDense(3, nil)
	_, err := LeastSquares(stacked, b, nil, 2, false)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)

	b = mat.NewVecDense(4, nil)
	_, err = LeastSquares(stacked, b, nil, 3, false)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = LeastSquares(stacked, b, nil, 2, true)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)

	wrong := mat.NewSymDense(3, nil)
	_, err = LeastSquares(stacked, b, wrong, 2, true)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

// With identity covariance the regularized solution is a ridge estimate and
// must be strictly smaller in norm than the plain one under noise.
func TestLeastSquaresRegularizedShrinks(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		stacked, _, b := wellConditionedSystem(10, 3, 2, seed)
		rng := rand.New(rand.NewPCG(seed+100, seed+100))
		for i := 0; i < b.Len(); i++ {
			b.SetVec(i, b.AtVec(i)+0.5*rng.NormFloat64())
		}

		eye := mat.NewSymDense(3, nil)
		for i := 0; i < 3; i++ {
			eye.SetSym(i, i, 1)
		}

		plain, err := LeastSquares(stacked, b, nil, 2, false)
		require.NoError(t, err)
		ridge, err := LeastSquares(stacked, b, eye, 2, true)
		require.NoError(t, err)

		require.Less(t, mat.Norm(ridge.Coeffs, 2), mat.Norm(plain.Coeffs, 2),
			"seed %d", seed)
	}
}

func TestLeastSquaresRegularizedSingularCovariance(t *testing.T) {
	stacked, _, b := wellConditionedSystem(10, 3, 2, 3)
	singular := mat.NewSymDense(3, nil) // all-zero covariance has no inverse
	_, err := LeastSquares(stacked, b, singular, 2, true)
	require.ErrorIs(t, err, errs.ErrSingularMatrix)
}
