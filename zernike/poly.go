package zernike

import "math"

// Exponent indexes one monomial x^P y^Q of a bivariate polynomial.
type Exponent struct {
	P, Q int
}

// Poly is a bivariate polynomial in pupil coordinates, stored as monomial
// coefficients keyed by exponent pair.
type Poly map[Exponent]float64

// Add accumulates c * x^p y^q into the polynomial.
func (p Poly) Add(px, qy int, c float64) {
	if c == 0 {
		return
	}
	e := Exponent{px, qy}
	p[e] += c
	if p[e] == 0 {
		delete(p, e)
	}
}

// Mul returns the product of the two polynomials.
func (p Poly) Mul(other Poly) Poly {
	res := make(Poly, len(p)*len(other))
	for ea, ca := range p {
		for eb, cb := range other {
			res.Add(ea.P+eb.P, ea.Q+eb.Q, ca*cb)
		}
	}
	return res
}

// Shift returns the polynomial p(cx + x/beta, cy + y/beta), the exact
// composition with the affine map from subaperture to metapupil coordinates.
func (p Poly) Shift(cx, cy, beta float64) Poly {
	res := make(Poly)
	for e, c := range p {
		for k := 0; k <= e.P; k++ {
			ck := c * binomial(e.P, k) * math.Pow(cx, float64(e.P-k)) / math.Pow(beta, float64(k))
			for l := 0; l <= e.Q; l++ {
				cl := ck * binomial(e.Q, l) * math.Pow(cy, float64(e.Q-l)) / math.Pow(beta, float64(l))
				res.Add(k, l, cl)
			}
		}
	}
	return res
}

// DiskIntegral returns the integral of the polynomial over the unit disk.
func (p Poly) DiskIntegral() float64 {
	var res float64
	for e, c := range p {
		res += c * monomialDiskIntegral(e.P, e.Q)
	}
	return res
}

// Polynomial returns the monomial expansion of the Noll-normalized Zernike
// mode j. The expansion is exact, so that evaluating it agrees with Eval at
// every point of the plane.
func Polynomial(j int) Poly {
	n, m := Noll(j)
	ma := m
	if ma < 0 {
		ma = -ma
	}
	norm := math.Sqrt(float64(n + 1))
	if m != 0 {
		norm *= math.Sqrt2
	}

	res := make(Poly)
	for k := 0; k <= (n-ma)/2; k++ {
		c := norm * factorial(n-k) / (factorial(k) * factorial((n+ma)/2-k) * factorial((n-ma)/2-k))
		if k%2 != 0 {
			c = -c
		}
		// rho^(n-2k) trig(m theta) = (x^2+y^2)^a * rho^|m| trig(|m| theta)
		// with a = (n-2k-|m|)/2.
		a := (n - 2*k - ma) / 2
		for b := 0; b <= a; b++ {
			cb := c * binomial(a, b)
			for _, t := range trigMonomials(ma, m < 0) {
				res.Add(2*(a-b)+t.e.P, 2*b+t.e.Q, cb*t.c)
			}
		}
	}
	return res
}

type term struct {
	e Exponent
	c float64
}

// trigMonomials expands rho^m cos(m theta) (or sin for sine modes) into
// monomials using the real or imaginary part of (x + iy)^m.
func trigMonomials(m int, sine bool) []term {
	if m == 0 {
		return []term{{Exponent{0, 0}, 1}}
	}
	res := make([]term, 0, m/2+1)
	for l := 0; l <= m; l++ {
		c := binomial(m, l)
		switch {
		case !sine && l%2 == 0:
			if (l/2)%2 != 0 {
				c = -c
			}
			res = append(res, term{Exponent{m - l, l}, c})
		case sine && l%2 != 0:
			if ((l-1)/2)%2 != 0 {
				c = -c
			}
			res = append(res, term{Exponent{m - l, l}, c})
		}
	}
	return res
}

// monomialDiskIntegral returns the integral of x^p y^q over the unit disk,
// which vanishes unless both exponents are even.
func monomialDiskIntegral(p, q int) float64 {
	if p%2 != 0 || q%2 != 0 {
		return 0
	}
	fp := float64(p)
	fq := float64(q)
	return 2 * math.Gamma((fp+1)/2) * math.Gamma((fq+1)/2) /
		((fp + fq + 2) * math.Gamma((fp+fq+2)/2))
}

func binomial(n, k int) float64 {
	return factorial(n) / (factorial(k) * factorial(n-k))
}
