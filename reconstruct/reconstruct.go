// Package reconstruct inverts the tomographic measurement model: it
// recovers per-layer Zernike coefficients from stacked wavefront-sensor
// measurements, either by a Tikhonov-regularized normal-equations solve or
// by an accelerated proximal-gradient minimization of a quadratic
// data-fidelity term plus an L1 penalty.
package reconstruct

import (
	"gonum.org/v1/gonum/mat"
)

// Method names under which estimates are keyed.
const (
	MethodLeastSquares = "least-squares"
	MethodSparse       = "sparse"
)

// Estimate is the result of one inversion.
type Estimate struct {
	// Method identifies the solver that produced the estimate.
	Method string
	// Coeffs is the recovered (nZernike by nLayers) coefficient matrix,
	// laid out like a turbulence realization.
	Coeffs *mat.Dense
	// Iterations is the number of solver iterations (zero for the direct
	// solve).
	Iterations int
	// Residual is the final data misfit, the 2-norm of M x - b.
	Residual float64
	// Converged reports whether an iterative solver met its tolerance
	// before the iteration cap.
	Converged bool
}

// Flatten returns the estimate's coefficients as a layer-major vector.
func (e *Estimate) Flatten() *mat.VecDense {
	m, n := e.Coeffs.Dims()
	res := mat.NewVecDense(m*n, nil)
	for l := 0; l < n; l++ {
		for a := 0; a < m; a++ {
			res.SetVec(l*m+a, e.Coeffs.At(a, l))
		}
	}
	return res
}

// residualNorm returns the 2-norm of M x - b.
func residualNorm(stacked mat.Matrix, x, b mat.Vector) float64 {
	var r mat.VecDense
	r.MulVec(stacked, x)
	r.SubVec(&r, b)
	return mat.Norm(&r, 2)
}
