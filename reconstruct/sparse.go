package reconstruct

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/hammal/mcao/errs"
	"github.com/hammal/mcao/matutil"
	"github.com/hammal/mcao/turbulence"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Sparse solver defaults, matching the forward-backward splitting scheme
// the solver implements.
const (
	DefaultTolerance     = 1e-12
	DefaultMaxIterations = 60000

	// The gradient step stays stable slightly above 1/L for this scheme.
	stepSizeSafety = 1.32

	// Backtracking halves the step at most this many times per iteration.
	maxBacktracks = 20
)

// SparseOptions tunes the optional behaviors of the sparse solver. The zero
// value runs plain forward-backward splitting with the default tolerance
// and iteration cap.
type SparseOptions struct {
	// Tolerance on the relative change of objective or iterate; zero
	// selects DefaultTolerance.
	Tolerance float64
	// MaxIterations caps the iteration count; zero selects
	// DefaultMaxIterations.
	MaxIterations int
	// Accelerate adds Nesterov momentum between consecutive iterates.
	Accelerate bool
	// Backtrack shrinks the step size whenever the forward step fails the
	// sufficient-decrease test.
	Backtrack bool
	// Adaptive adjusts the step size from the observed curvature between
	// consecutive gradients.
	Adaptive bool
	// StepSize overrides the initial step size; zero derives it from the
	// spectral norm of the system matrix.
	StepSize float64
	// Prox overrides the global soft-threshold, e.g. with a per-layer
	// weighted penalty. When set, the lambda argument of Sparse is ignored.
	Prox Prox
	// Logger is optional; solver progress is reported at debug level.
	Logger *slog.Logger
}

// Sparse recovers the layer coefficients by minimizing
//
//	0.5 ||M x - b||² + lambda ||x||₁
//
// with forward-backward splitting: a gradient step on the quadratic term
// followed by the proximal (soft-threshold) step on the penalty. The
// iteration stops when the relative change of the objective or of the
// iterate falls below the tolerance, or at the iteration cap, whichever
// comes first. Hitting the cap is recoverable: the best iterate found is
// returned together with ErrNonConvergence. A diverging iterate stops the
// solve the same way, returning the last finite iterate.
func Sparse(stacked mat.Matrix, b mat.Vector, lambda float64, nLayers int, opts SparseOptions) (*Estimate, error) {
	rows, cols := stacked.Dims()
	if b.Len() != rows {
		return nil, fmt.Errorf("reconstruct: %d measurements for %d matrix rows: %w",
			b.Len(), rows, errs.ErrInvalidParameter)
	}
	if nLayers < 1 || cols%nLayers != 0 {
		return nil, fmt.Errorf("reconstruct: %d columns do not split into %d layers: %w",
			cols, nLayers, errs.ErrInvalidParameter)
	}
	if lambda < 0 {
		return nil, fmt.Errorf("reconstruct: regularization weight %g: %w", lambda, errs.ErrInvalidParameter)
	}

	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	prox := opts.Prox
	if prox == nil {
		prox = L1{Lambda: lambda}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	// The Lipschitz constant of the gradient is the squared spectral norm.
	tau := opts.StepSize
	if tau <= 0 {
		lip := matutil.SpectralNorm(stacked)
		lip *= lip
		if lip == 0 || math.IsNaN(lip) || math.IsInf(lip, 0) {
			return nil, fmt.Errorf("reconstruct: step size from Lipschitz constant %g: %w",
				lip, errs.ErrInvalidParameter)
		}
		tau = stepSizeSafety / lip
	}

	var (
		x        = mat.NewVecDense(cols, nil) // current iterate
		y        = mat.NewVecDense(cols, nil) // extrapolation point
		xNew     = mat.NewVecDense(cols, nil)
		gy       = mat.NewVecDense(cols, nil) // gradient at y
		gx       = mat.NewVecDense(cols, nil) // gradient at x (adaptive only)
		dx       = mat.NewVecDense(cols, nil)
		dg       = mat.NewVecDense(cols, nil)
		ry       mat.VecDense // residual scratch
		momentum = 1.0
	)
	grad := func(dst *mat.VecDense, v mat.Vector) float64 {
		// dst = Mᵀ(Mv - b); returns f(v) = 0.5||Mv - b||².
		ry.MulVec(stacked, v)
		ry.SubVec(&ry, b)
		dst.MulVec(stacked.T(), &ry)
		n := mat.Norm(&ry, 2)
		return 0.5 * n * n
	}
	objective := func(v *mat.VecDense) float64 {
		var r mat.VecDense
		r.MulVec(stacked, v)
		r.SubVec(&r, b)
		n := mat.Norm(&r, 2)
		return 0.5*n*n + prox.Penalty(v)
	}
	if opts.Adaptive {
		grad(gx, x)
	}

	objPrev := objective(x)
	iterations := 0
	converged := false
	diverged := false

	for k := 1; k <= maxIter; k++ {
		iterations = k
		fy := grad(gy, y)

		// Forward (gradient) then backward (proximal) step.
		xNew.AddScaledVec(y, -tau, gy)
		prox.Apply(xNew, xNew, tau)

		if opts.Backtrack {
			for bt := 0; bt < maxBacktracks; bt++ {
				dx.SubVec(xNew, y)
				quad := fy + floats.Dot(gy.RawVector().Data, dx.RawVector().Data) +
					floats.Dot(dx.RawVector().Data, dx.RawVector().Data)/(2*tau)
				var r mat.VecDense
				r.MulVec(stacked, xNew)
				r.SubVec(&r, b)
				n := mat.Norm(&r, 2)
				if 0.5*n*n <= quad+1e-15 {
					break
				}
				tau /= 2
				xNew.AddScaledVec(y, -tau, gy)
				prox.Apply(xNew, xNew, tau)
			}
		}

		// x still holds the previous, finite iterate when the step blows up.
		if matutil.HasNaNOrInf(xNew) {
			diverged = true
			break
		}

		if opts.Adaptive {
			// Barzilai-Borwein style update from the curvature between the
			// gradients at consecutive iterates.
			dx.SubVec(xNew, x)
			gNew := mat.NewVecDense(cols, nil)
			grad(gNew, xNew)
			dg.SubVec(gNew, gx)
			gx.CopyVec(gNew)

			dxdg := floats.Dot(dx.RawVector().Data, dg.RawVector().Data)
			if dxdg > 0 {
				tauS := floats.Dot(dx.RawVector().Data, dx.RawVector().Data) / dxdg
				tauM := dxdg / floats.Dot(dg.RawVector().Data, dg.RawVector().Data)
				next := tauS - tauM/2
				if 2*tauM > tauS {
					next = tauM
				}
				if next > 0 && !math.IsInf(next, 0) && !math.IsNaN(next) {
					tau = next
				}
			}
		}

		if opts.Accelerate {
			// Nesterov extrapolation between consecutive iterates.
			next := (1 + math.Sqrt(1+4*momentum*momentum)) / 2
			dx.SubVec(xNew, x)
			y.AddScaledVec(xNew, (momentum-1)/next, dx)
			momentum = next
		} else {
			y.CopyVec(xNew)
		}

		obj := objective(xNew)
		dx.SubVec(xNew, x)
		relObj := math.Abs(obj-objPrev) / math.Max(math.Abs(objPrev), 1e-300)
		relX := mat.Norm(dx, 2) / math.Max(mat.Norm(x, 2), 1)
		x.CopyVec(xNew)
		objPrev = obj

		if k%1000 == 0 {
			log.Debug("sparse solver progress", "iteration", k, "objective", obj, "step", tau)
		}
		if relObj < tol || relX < tol {
			converged = true
			break
		}
	}

	r, err := turbulence.Unflatten(x, nLayers)
	if err != nil {
		return nil, err
	}
	est := &Estimate{
		Method:     MethodSparse,
		Coeffs:     r.Coeffs,
		Iterations: iterations,
		Residual:   residualNorm(stacked, x, b),
		Converged:  converged,
	}
	if diverged {
		return est, fmt.Errorf("reconstruct: sparse iterate diverged after %d iterations: %w",
			iterations, errs.ErrNonConvergence)
	}
	if !converged {
		return est, fmt.Errorf("reconstruct: %d iterations without meeting tolerance %g: %w",
			iterations, tol, errs.ErrNonConvergence)
	}
	log.Debug("sparse solver finished", "iterations", iterations, "residual", est.Residual)
	return est, nil
}
