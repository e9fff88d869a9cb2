package mcao

import (
	"math/rand/v2"
	"testing"

	"github.com/hammal/mcao/errs"
	"github.com/hammal/mcao/geometry"
	"github.com/hammal/mcao/projection"
	"github.com/hammal/mcao/reconstruct"
	"github.com/hammal/mcao/turbulence"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(geometry.Config{
		NStars:   3,
		NZernike: 5,
		FOV:      60,
		Heights:  []float64{0, 10},
		DTel:     4,
	}, Options{Projector: projection.NewNumerical(32)})
	require.NoError(t, err)
	return s
}

func TestNewSessionRejectsBadConfig(t *testing.T) {
	_, err := NewSession(geometry.Config{}, Options{})
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestSystemMatrixMemoized(t *testing.T) {
	s := testSession(t)
	a, err := s.SystemMatrix()
	require.NoError(t, err)
	rows, cols := a.Dims()
	require.Equal(t, 3*5, rows)
	require.Equal(t, 2*5, cols)

	b, err := s.SystemMatrix()
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestEndToEndLeastSquares(t *testing.T) {
	s := testSession(t)

	stats := turbulence.Stats{Model: turbulence.Kolmogorov, R0: 0.15}
	r, err := s.GenerateTurbulence(stats, nil, rand.NewPCG(42, 42))
	require.NoError(t, err)
	require.NotNil(t, s.Covariance())
	require.Same(t, r, s.Original())

	b, err := s.Measure(r)
	require.NoError(t, err)
	require.Equal(t, 3*5, b.Len())

	// Noiseless, overdetermined and well conditioned: the plain solve
	// recovers the draw.
	est, err := s.SolveLeastSquares(b, false)
	require.NoError(t, err)
	var diff mat.Dense
	diff.Sub(est.Coeffs, r.Coeffs)
	require.Less(t, mat.Norm(&diff, 2)/mat.Norm(r.Coeffs, 2), 1e-6)

	got, ok := s.Estimate(reconstruct.MethodLeastSquares)
	require.True(t, ok)
	require.Same(t, est, got)
}

func TestEndToEndSparse(t *testing.T) {
	s := testSession(t)

	stats := turbulence.Stats{Model: turbulence.Kolmogorov, R0: 0.15}
	r, err := s.GenerateTurbulence(stats, []float64{10}, rand.NewPCG(7, 7))
	require.NoError(t, err)

	// The ground layer was zeroed by the keep list.
	for i := 0; i < 5; i++ {
		require.Zero(t, r.Coeffs.At(i, 0))
	}

	b, err := s.Measure(r)
	require.NoError(t, err)

	est, err := s.SolveSparse(b, 1e-6, reconstruct.SparseOptions{Accelerate: true})
	require.NoError(t, err)
	require.True(t, est.Converged)
	var diff mat.Dense
	diff.Sub(est.Coeffs, r.Coeffs)
	require.Less(t, mat.Norm(&diff, 2)/mat.Norm(r.Coeffs, 2), 1e-3)

	_, ok := s.Estimate(reconstruct.MethodSparse)
	require.True(t, ok)
}

func TestSparseCapStillRecorded(t *testing.T) {
	s := testSession(t)
	r, err := s.GenerateTurbulence(turbulence.Stats{Model: turbulence.Kolmogorov, R0: 0.15}, nil, rand.NewPCG(1, 1))
	require.NoError(t, err)
	b, err := s.Measure(r)
	require.NoError(t, err)

	est, err := s.SolveSparse(b, 1e-6, reconstruct.SparseOptions{MaxIterations: 2})
	require.ErrorIs(t, err, errs.ErrNonConvergence)
	require.NotNil(t, est)

	recorded, ok := s.Estimate(reconstruct.MethodSparse)
	require.True(t, ok)
	require.Same(t, est, recorded)
}

func TestGenerateTurbulenceVonKarman(t *testing.T) {
	// Enough modes that the truncated von Karman covariance is indefinite;
	// the draw must still succeed.
	s, err := NewSession(geometry.Config{
		NStars:   3,
		NZernike: 12,
		FOV:      60,
		Heights:  []float64{0, 10},
		DTel:     4,
	}, Options{Projector: projection.NewNumerical(32)})
	require.NoError(t, err)

	r, err := s.GenerateTurbulence(turbulence.Stats{Model: turbulence.VonKarman, R0: 0.15, OuterScale: 25},
		nil, rand.NewPCG(6, 6))
	require.NoError(t, err)
	require.Equal(t, 12, r.NZernike())
}

func TestGenerateTurbulenceUnknownKeepHeight(t *testing.T) {
	s := testSession(t)
	_, err := s.GenerateTurbulence(turbulence.Stats{Model: turbulence.Kolmogorov, R0: 0.15},
		[]float64{3}, rand.NewPCG(1, 1))
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestRegularizedSolveNeedsCovariance(t *testing.T) {
	s := testSession(t)
	b := mat.NewVecDense(3*5, nil)
	_, err := s.SolveLeastSquares(b, true)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}
