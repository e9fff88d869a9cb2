// Package geometry derives the per-(layer, star) metapupil geometry of a
// multi-conjugate adaptive optics configuration: metapupil diameters,
// footprint displacements and magnifications for every guide star direction.
package geometry

import (
	"fmt"
	"math"

	"github.com/hammal/mcao/errs"
)

// ArcsecPerRadian converts field angles given in arcsec to radians.
const ArcsecPerRadian = 206265.0

// NollOffset is the Noll index of the first mode used throughout the module.
// Piston carries no wavefront information for a single aperture and is
// excluded.
const NollOffset = 2

// Config holds the immutable parameters of a tomography session. All derived
// geometry follows deterministically from it.
type Config struct {
	// Number of guide stars, equally spaced on the field circle.
	NStars int
	// Number of Zernike modes per pupil, starting at Noll index NollOffset.
	NZernike int
	// Field of view [arcsec].
	FOV float64
	// Layer altitudes [km].
	Heights []float64
	// Telescope diameter [m].
	DTel float64
}

// Validate checks the physical parameters of the configuration.
func (c Config) Validate() error {
	switch {
	case c.NStars < 1:
		return fmt.Errorf("geometry: number of stars %d: %w", c.NStars, errs.ErrInvalidParameter)
	case c.NZernike < 1:
		return fmt.Errorf("geometry: number of Zernike modes %d: %w", c.NZernike, errs.ErrInvalidParameter)
	case c.FOV <= 0:
		return fmt.Errorf("geometry: field of view %g arcsec: %w", c.FOV, errs.ErrInvalidParameter)
	case c.DTel <= 0:
		return fmt.Errorf("geometry: telescope diameter %g m: %w", c.DTel, errs.ErrInvalidParameter)
	case len(c.Heights) == 0:
		return fmt.Errorf("geometry: empty height set: %w", errs.ErrInvalidParameter)
	}
	for _, h := range c.Heights {
		if h < 0 {
			return fmt.Errorf("geometry: height %g km: %w", h, errs.ErrInvalidParameter)
		}
	}
	return nil
}

// NHeights returns the number of turbulence layers.
func (c Config) NHeights() int { return len(c.Heights) }

// FOVRadians returns the field of view in radians.
func (c Config) FOVRadians() float64 { return c.FOV / ArcsecPerRadian }

// MetapupilDiameter returns the diameter [m] of the metapupil at layer i,
// the telescope aperture grown by the field cone at that altitude.
func (c Config) MetapupilDiameter(i int) float64 {
	return c.DTel + c.Heights[i]*1e3*c.FOVRadians()
}

// Triple holds the geometry of one (layer, star) footprint.
type Triple struct {
	// Scale is the footprint displacement as a fraction of the metapupil
	// radius.
	Scale float64
	// Magnification is the metapupil-to-telescope diameter ratio.
	Magnification float64
	// Rotation is the star's azimuthal angle on the field [rad].
	Rotation float64
}

// Triples returns the geometry of every (layer, star) pair, indexed
// [layer][star]. The stars sit on the field circle at equally spaced
// azimuths.
func (c Config) Triples() [][]Triple {
	res := make([][]Triple, c.NHeights())
	for i := range res {
		dMeta := c.MetapupilDiameter(i)
		res[i] = make([]Triple, c.NStars)
		for j := range res[i] {
			res[i][j] = Triple{
				Scale:         c.Heights[i] * 1e3 * c.FOVRadians() / dMeta,
				Magnification: dMeta / c.DTel,
				Rotation:      float64(j) * 2 * math.Pi / float64(c.NStars),
			}
		}
	}
	return res
}
