package reconstruct

import (
	"fmt"

	"github.com/hammal/mcao/errs"
	"github.com/hammal/mcao/matutil"
	"github.com/hammal/mcao/turbulence"
	"gonum.org/v1/gonum/mat"
)

// LeastSquares recovers the layer coefficients by solving the normal
// equations
//
//	(MᵀM) x = Mᵀ b
//
// and, when regularize is set, the Tikhonov-regularized system
//
//	(MᵀM + CᵀC) x = Mᵀ b
//
// where C is the block-diagonal inverse of the per-layer covariance, one
// block per layer. The regularization penalizes solutions inconsistent with
// the expected turbulence statistics. A numerically degenerate system fails
// with ErrSingularMatrix; there is no silent pseudo-inverse fallback.
func LeastSquares(stacked mat.Matrix, b mat.Vector, cov mat.Symmetric, nLayers int, regularize bool) (*Estimate, error) {
	rows, cols := stacked.Dims()
	if b.Len() != rows {
		return nil, fmt.Errorf("reconstruct: %d measurements for %d matrix rows: %w",
			b.Len(), rows, errs.ErrInvalidParameter)
	}
	if nLayers < 1 || cols%nLayers != 0 {
		return nil, fmt.Errorf("reconstruct: %d columns do not split into %d layers: %w",
			cols, nLayers, errs.ErrInvalidParameter)
	}

	var normal mat.Dense
	normal.Mul(stacked.T(), stacked)

	if regularize {
		if cov == nil {
			return nil, fmt.Errorf("reconstruct: regularized solve needs a covariance: %w",
				errs.ErrInvalidParameter)
		}
		if cov.SymmetricDim() != cols/nLayers {
			return nil, fmt.Errorf("reconstruct: covariance dimension %d for %d modes: %w",
				cov.SymmetricDim(), cols/nLayers, errs.ErrInvalidParameter)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(cov); !ok {
			return nil, fmt.Errorf("reconstruct: covariance inversion: %w", errs.ErrSingularMatrix)
		}
		var invCov mat.SymDense
		if err := chol.InverseTo(&invCov); err != nil {
			return nil, fmt.Errorf("reconstruct: covariance inversion: %w", errs.ErrSingularMatrix)
		}
		c := matutil.BlockDiag(matutil.Repeat(&invCov, nLayers)...)
		var ctc mat.Dense
		ctc.Mul(c.T(), c)
		normal.Add(&normal, &ctc)
	}

	var rhs mat.VecDense
	rhs.MulVec(stacked.T(), b)

	var x mat.VecDense
	if err := x.SolveVec(&normal, &rhs); err != nil {
		return nil, fmt.Errorf("reconstruct: normal equations: %w", errs.ErrSingularMatrix)
	}
	if matutil.HasNaNOrInf(&x) {
		return nil, fmt.Errorf("reconstruct: non-finite solution: %w", errs.ErrSingularMatrix)
	}

	r, err := turbulence.Unflatten(&x, nLayers)
	if err != nil {
		return nil, err
	}
	return &Estimate{
		Method:    MethodLeastSquares,
		Coeffs:    r.Coeffs,
		Residual:  residualNorm(stacked, &x, b),
		Converged: true,
	}, nil
}
