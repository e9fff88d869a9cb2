package projection

import (
	"fmt"
	"math"

	"github.com/hammal/mcao/errs"
	"github.com/hammal/mcao/geometry"
	"github.com/hammal/mcao/zernike"
	"gonum.org/v1/gonum/mat"
)

// DefaultResolution is the default pixel radius of the numerical grid.
const DefaultResolution = 128

// NumericalProjector evaluates the basis change on a Cartesian pixel grid
// over the star footprint and least-squares fits the local Zernike
// expansion.
type NumericalProjector struct {
	// Resolution is the number of pixels across the footprint radius.
	Resolution int
}

// NewNumerical returns a numerical projector with the given grid resolution
// across the footprint radius. A resolution of zero selects
// DefaultResolution.
func NewNumerical(resolution int) *NumericalProjector {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &NumericalProjector{Resolution: resolution}
}

// Project implements Projector.
func (p *NumericalProjector) Project(nZernike int, magnification, scale, rotation float64) (*mat.Dense, error) {
	if err := validate(nZernike, magnification); err != nil {
		return nil, err
	}

	n := 2 * p.Resolution
	step := 2.0 / float64(n)
	cx := scale * math.Cos(rotation)
	cy := scale * math.Sin(rotation)

	// Collect the pixel centers inside the footprint's unit disk.
	var xs, ys []float64
	for row := 0; row < n; row++ {
		y := -1 + (float64(row)+0.5)*step
		for col := 0; col < n; col++ {
			x := -1 + (float64(col)+0.5)*step
			if x*x+y*y <= 1 {
				xs = append(xs, x)
				ys = append(ys, y)
			}
		}
	}

	// local[p, a] holds mode a of the footprint expansion at pixel p,
	// global[p, b] holds layer mode b mapped into footprint coordinates.
	local := mat.NewDense(len(xs), nZernike, nil)
	global := mat.NewDense(len(xs), nZernike, nil)
	for i := range xs {
		ux := cx + xs[i]/magnification
		uy := cy + ys[i]/magnification
		for a := 0; a < nZernike; a++ {
			local.Set(i, a, zernike.Eval(a+geometry.NollOffset, xs[i], ys[i]))
			global.Set(i, a, zernike.Eval(a+geometry.NollOffset, ux, uy))
		}
	}

	var res mat.Dense
	if err := res.Solve(local, global); err != nil {
		return nil, fmt.Errorf("projection: footprint fit: %w", errs.ErrSingularMatrix)
	}
	return &res, nil
}
