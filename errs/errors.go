// Package errs defines the sentinel errors shared by the tomography packages.
// Callers are expected to test them with errors.Is after unwrapping.
package errs

import "errors"

var (
	// ErrInvalidParameter signals a non-positive physical parameter, an
	// unrecognized turbulence model or a negative regularization weight.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrSingularMatrix signals that a required matrix inversion is
	// numerically degenerate. It is never silently replaced by a
	// pseudo-inverse.
	ErrSingularMatrix = errors.New("singular matrix")

	// ErrNonConvergence signals that an iterative solver hit its iteration
	// cap before meeting tolerance. The solver still returns its best
	// iterate together with this error.
	ErrNonConvergence = errors.New("solver did not converge")

	// ErrCacheInconsistency signals that a persisted projection record does
	// not match its claimed key. The cache treats it as a miss.
	ErrCacheInconsistency = errors.New("inconsistent cache record")
)
