// Package projection computes the linear basis change between the Zernike
// expansion of a turbulence layer over its metapupil and the expansion seen
// by one guide star over its footprint. Two implementations are provided:
// a numerical one that least-squares fits the footprint wavefront on a pixel
// grid, and an analytic one that carries out the basis change exactly
// through the monomial expansion of the Zernike polynomials.
package projection

import (
	"fmt"

	"github.com/hammal/mcao/errs"
	"gonum.org/v1/gonum/mat"
)

// Kind selects a projection basis-change implementation.
type Kind int

const (
	// Numerical integrates the basis change on a pixel grid.
	Numerical Kind = iota
	// Analytic carries out the basis change exactly in monomial space.
	Analytic
)

// Projector maps layer-local Zernike coefficients to star-local ones for a
// single (layer, star) geometry. Implementations must be deterministic for
// identical inputs.
type Projector interface {
	// Project returns the (nZernike by nZernike) matrix M such that
	// cStar = M cLayer, for a footprint of relative size 1/magnification
	// displaced by scale metapupil radii along direction rotation.
	Project(nZernike int, magnification, scale, rotation float64) (*mat.Dense, error)
}

// New returns a projector of the requested kind. The resolution is only
// used by the numerical kind; zero selects the default.
func New(kind Kind, resolution int) (Projector, error) {
	switch kind {
	case Numerical:
		return NewNumerical(resolution), nil
	case Analytic:
		return NewAnalytic(), nil
	}
	return nil, fmt.Errorf("projection: kind %d: %w", kind, errs.ErrInvalidParameter)
}

func validate(nZernike int, magnification float64) error {
	if nZernike < 1 {
		return fmt.Errorf("projection: number of modes %d: %w", nZernike, errs.ErrInvalidParameter)
	}
	if magnification < 1 {
		return fmt.Errorf("projection: magnification %g: %w", magnification, errs.ErrInvalidParameter)
	}
	return nil
}
