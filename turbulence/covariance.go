// Package turbulence synthesizes atmospheric turbulence statistics in the
// Zernike basis: the closed-form Noll covariance of the expansion
// coefficients for Kolmogorov and von Karman spectra, and zero-mean
// multivariate-normal realizations drawn from it.
package turbulence

import (
	"fmt"
	"math"

	"github.com/hammal/mcao/errs"
	"github.com/hammal/mcao/geometry"
	"github.com/hammal/mcao/zernike"
	"gonum.org/v1/gonum/mat"
)

// Model selects the turbulence power spectrum.
type Model int

const (
	// Kolmogorov is the infinite-outer-scale spectrum.
	Kolmogorov Model = iota
	// VonKarman truncates the spectrum at a finite outer scale.
	VonKarman
)

// String returns the model name.
func (m Model) String() string {
	switch m {
	case Kolmogorov:
		return "kolmogorov"
	case VonKarman:
		return "von-karman"
	}
	return fmt.Sprintf("model(%d)", int(m))
}

// vonKarmanSeriesTerms truncates the hypergeometric series of the von
// Karman covariance. The tail beyond this count is negligible for
// telescope-scale D/L0 ratios; see the accompanying test for an empirical
// bound.
const vonKarmanSeriesTerms = 50

// Stats bundles the physical parameters of a turbulence model.
type Stats struct {
	Model Model
	// Fried parameter r0 [m].
	R0 float64
	// Outer scale L0 [m], used by the von Karman model only.
	OuterScale float64
}

// Covariance builds the (nZernike by nZernike) covariance matrix of the
// Zernike coefficients of a wavefront after propagation through turbulence
// with the given statistics, for a telescope of diameter dTel. Mode i of
// the matrix is Noll index i + geometry.NollOffset.
//
// An entry is nonzero only when the two modes share their azimuthal
// frequency and the mode-index difference is even; everything else
// vanishes by the parity of the turbulence power spectrum.
func Covariance(nZernike int, dTel float64, s Stats) (*mat.SymDense, error) {
	if nZernike < 1 {
		return nil, fmt.Errorf("turbulence: number of modes %d: %w", nZernike, errs.ErrInvalidParameter)
	}
	if dTel <= 0 {
		return nil, fmt.Errorf("turbulence: telescope diameter %g m: %w", dTel, errs.ErrInvalidParameter)
	}
	if s.R0 <= 0 {
		return nil, fmt.Errorf("turbulence: Fried parameter %g m: %w", s.R0, errs.ErrInvalidParameter)
	}

	var entry func(ni, nj, m int) float64
	switch s.Model {
	case Kolmogorov:
		entry = func(ni, nj, m int) float64 {
			return kolmogorovEntry(ni, nj, m, dTel/s.R0)
		}
	case VonKarman:
		if s.OuterScale <= 0 {
			return nil, fmt.Errorf("turbulence: outer scale %g m: %w", s.OuterScale, errs.ErrInvalidParameter)
		}
		entry = func(ni, nj, m int) float64 {
			return vonKarmanEntry(ni, nj, m, dTel/s.R0, math.Pi*dTel/s.OuterScale, vonKarmanSeriesTerms)
		}
	default:
		return nil, fmt.Errorf("turbulence: model %v: %w", s.Model, errs.ErrInvalidParameter)
	}

	cov := mat.NewSymDense(nZernike, nil)
	for i := 0; i < nZernike; i++ {
		ni, mi := zernike.Noll(i + geometry.NollOffset)
		for j := i; j < nZernike; j++ {
			nj, mj := zernike.Noll(j + geometry.NollOffset)
			if mi != mj || (j-i)%2 != 0 {
				continue
			}
			cov.SetSym(i, j, entry(ni, nj, abs(mi)))
		}
	}
	return cov, nil
}

// kolmogorovEntry is the closed-form Noll covariance of two modes with
// radial degrees ni, nj and common azimuthal frequency m.
func kolmogorovEntry(ni, nj, m int, dOverR0 float64) float64 {
	fi := float64(ni)
	fj := float64(nj)
	phase := sign((ni + nj - 2*m) / 2)
	t1 := math.Sqrt(float64((ni+1)*(nj+1))) * math.Pow(math.Pi, 8.0/3.0) *
		0.0072 * math.Pow(dOverR0, 5.0/3.0)
	t2 := math.Gamma(14.0/3.0) * math.Gamma((fi+fj-5.0/3.0)/2)
	t3 := math.Gamma((fi-fj+17.0/3.0)/2) * math.Gamma((fj-fi+17.0/3.0)/2) *
		math.Gamma((fi+fj+23.0/3.0)/2)
	return phase * t1 * t2 / t3
}

// vonKarmanEntry is the finite-outer-scale covariance, a truncated series
// in even powers of pi*D/L0.
func vonKarmanEntry(ni, nj, m int, dOverR0, piDOverL0 float64, terms int) float64 {
	fi := float64(ni)
	fj := float64(nj)
	phase := sign((ni + nj - 2*m) / 2)
	t1 := math.Sqrt(float64((ni+1)*(nj+1))) * math.Pow(math.Pi, 8.0/3.0) *
		1.16 * math.Pow(dOverR0, 5.0/3.0)

	var res float64
	for k := 0; k < terms; k++ {
		fk := float64(k)
		phase2 := sign(k) / math.Gamma(fk+1) *
			math.Pow(piDOverL0, 2*fk+fi+fj-5.0/3.0)
		t2 := math.Gamma(fk+(3+fi+fj)/2) * math.Gamma(fk+2+(fi+fj)/2) *
			math.Gamma(fk+1+(fi+fj)/5) * math.Gamma(5.0/6.0-fk-(fi+fj)/2)
		t3 := math.Gamma(3+fk+fi+fj) * math.Gamma(2+fk+fi) * math.Gamma(2+fk+fj)

		phase3 := math.Pow(piDOverL0, 2*fk)
		t4 := math.Gamma((fi+fj)/2-5.0/6.0-fk) * math.Gamma(fk+7.0/3.0) *
			math.Gamma(fk+17.0/6.0) * math.Gamma(fk+11.0/6.0)
		t5 := math.Gamma((fi+fj)/2+23.0/6.0+fk) *
			math.Gamma((fi-fj)/2+17.0/6.0+fk) * math.Gamma((fi-fj)/2+17.0/6.0+fk)

		res += phase * t1 * (phase2*t2/t3 + phase3*t4/t5)
	}
	return res
}

func sign(k int) float64 {
	if k%2 != 0 {
		return -1
	}
	return 1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
