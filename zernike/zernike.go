// Package zernike provides Noll-index bookkeeping and evaluation of the
// Zernike polynomial basis on the unit disk. The modes follow Noll's
// numbering and normalization, so that the basis is orthonormal with respect
// to the area-averaged inner product over the pupil.
package zernike

import (
	"errors"
	"math"
)

// Noll returns the radial degree n and the azimuthal frequency m of the
// Zernike mode with Noll index j (1-based). The sign of m encodes the
// angular dependence: m >= 0 is a cosine mode, m < 0 a sine mode.
func Noll(j int) (n, m int) {
	if j < 1 {
		panic(errors.New("zernike: Noll index must be >= 1"))
	}
	for (n+1)*(n+2)/2 < j {
		n++
	}
	// Position within the degree-n row, 1..n+1.
	s := j - n*(n+1)/2
	if n%2 == 0 {
		m = 2 * (s / 2)
	} else {
		m = 2*((s-1)/2) + 1
	}
	// Odd Noll indices carry the sine modes.
	if j%2 != 0 {
		m = -m
	}
	return n, m
}

// Radial evaluates the radial polynomial R_n^m at rho, with m >= 0 and
// n-m even.
func Radial(n, m int, rho float64) float64 {
	var res float64
	for k := 0; k <= (n-m)/2; k++ {
		c := factorial(n-k) / (factorial(k) * factorial((n+m)/2-k) * factorial((n-m)/2-k))
		if k%2 != 0 {
			c = -c
		}
		res += c * math.Pow(rho, float64(n-2*k))
	}
	return res
}

// Eval evaluates the Noll-normalized Zernike mode j at the Cartesian point
// (x, y) in pupil coordinates. The polynomial is evaluated as given, also
// outside the unit disk.
func Eval(j int, x, y float64) float64 {
	n, m := Noll(j)
	rho := math.Hypot(x, y)
	theta := math.Atan2(y, x)
	ma := m
	if ma < 0 {
		ma = -ma
	}
	res := Radial(n, ma, rho)
	if m == 0 {
		return math.Sqrt(float64(n+1)) * res
	}
	res *= math.Sqrt(2 * float64(n+1))
	if m > 0 {
		return res * math.Cos(float64(ma)*theta)
	}
	return res * math.Sin(float64(ma)*theta)
}

func factorial(n int) float64 {
	return math.Gamma(float64(n) + 1)
}
