package projection

import (
	"math"

	"github.com/hammal/mcao/geometry"
	"github.com/hammal/mcao/zernike"
	"gonum.org/v1/gonum/mat"
)

// AnalyticProjector performs the basis change exactly. Each layer mode is
// composed with the affine footprint map in monomial space and projected
// onto the local modes using closed-form monomial integrals over the unit
// disk. No discretization error is introduced.
type AnalyticProjector struct{}

// NewAnalytic returns an analytic projector.
func NewAnalytic() *AnalyticProjector {
	return &AnalyticProjector{}
}

// Project implements Projector.
func (p *AnalyticProjector) Project(nZernike int, magnification, scale, rotation float64) (*mat.Dense, error) {
	if err := validate(nZernike, magnification); err != nil {
		return nil, err
	}

	cx := scale * math.Cos(rotation)
	cy := scale * math.Sin(rotation)

	local := make([]zernike.Poly, nZernike)
	shifted := make([]zernike.Poly, nZernike)
	for a := 0; a < nZernike; a++ {
		mode := zernike.Polynomial(a + geometry.NollOffset)
		local[a] = mode
		shifted[a] = mode.Shift(cx, cy, magnification)
	}

	// The local modes are orthonormal over the footprint, so the expansion
	// coefficients are plain inner products.
	res := mat.NewDense(nZernike, nZernike, nil)
	for a := 0; a < nZernike; a++ {
		for b := 0; b < nZernike; b++ {
			res.Set(a, b, local[a].Mul(shifted[b]).DiskIntegral()/math.Pi)
		}
	}
	return res, nil
}
