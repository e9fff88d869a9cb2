package turbulence

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/hammal/mcao/errs"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Realization holds one synthetic turbulence draw: a column of Zernike
// coefficients per layer.
type Realization struct {
	// Coeffs is (nZernike by nLayers); column i is layer i.
	Coeffs *mat.Dense
}

// NZernike returns the number of modes per layer.
func (r *Realization) NZernike() int {
	m, _ := r.Coeffs.Dims()
	return m
}

// NLayers returns the number of layers.
func (r *Realization) NLayers() int {
	_, n := r.Coeffs.Dims()
	return n
}

// Flatten returns the layer-major coefficient vector: all modes of layer 0,
// then all modes of layer 1, and so on. This is the layout the stacked
// system matrix acts on.
func (r *Realization) Flatten() *mat.VecDense {
	nz := r.NZernike()
	nl := r.NLayers()
	res := mat.NewVecDense(nz*nl, nil)
	for l := 0; l < nl; l++ {
		for a := 0; a < nz; a++ {
			res.SetVec(l*nz+a, r.Coeffs.At(a, l))
		}
	}
	return res
}

// Unflatten reshapes a layer-major coefficient vector back into a
// Realization of nLayers columns.
func Unflatten(x mat.Vector, nLayers int) (*Realization, error) {
	if nLayers < 1 || x.Len()%nLayers != 0 {
		return nil, fmt.Errorf("turbulence: cannot reshape %d coefficients into %d layers: %w",
			x.Len(), nLayers, errs.ErrInvalidParameter)
	}
	nz := x.Len() / nLayers
	coeffs := mat.NewDense(nz, nLayers, nil)
	for l := 0; l < nLayers; l++ {
		for a := 0; a < nz; a++ {
			coeffs.Set(a, l, x.AtVec(l*nz+a))
		}
	}
	return &Realization{Coeffs: coeffs}, nil
}

// Draw samples one independent zero-mean multivariate-normal coefficient
// vector per layer from the covariance. When keepLayers is non-nil, every
// layer not listed is zeroed, which simulates turbulence confined to
// specific altitudes while the solver still works on the full grid.
//
// A covariance that is not positive definite, such as the truncated von
// Karman series at larger mode counts, is sampled through its
// eigendecomposition with negative eigenvalues clamped to zero.
func Draw(cov mat.Symmetric, nLayers int, keepLayers []int, src rand.Source) (*Realization, error) {
	if nLayers < 1 {
		return nil, fmt.Errorf("turbulence: number of layers %d: %w", nLayers, errs.ErrInvalidParameter)
	}
	nz := cov.SymmetricDim()
	sample, err := newSampler(cov, src)
	if err != nil {
		return nil, err
	}

	coeffs := mat.NewDense(nz, nLayers, nil)
	buf := make([]float64, nz)
	for l := 0; l < nLayers; l++ {
		sample(buf)
		coeffs.SetCol(l, buf)
	}
	res := &Realization{Coeffs: coeffs}

	if keepLayers != nil {
		keep := make(map[int]bool, len(keepLayers))
		for _, l := range keepLayers {
			if l < 0 || l >= nLayers {
				return nil, fmt.Errorf("turbulence: keep layer %d of %d: %w", l, nLayers, errs.ErrInvalidParameter)
			}
			keep[l] = true
		}
		zero := make([]float64, nz)
		for l := 0; l < nLayers; l++ {
			if !keep[l] {
				res.Coeffs.SetCol(l, zero)
			}
		}
	}
	return res, nil
}

// newSampler returns a zero-mean multivariate-normal sampler for the
// covariance. A positive definite matrix samples through its Cholesky
// factor; otherwise the sampler projects onto the nearest positive
// semidefinite matrix by clamping negative eigenvalues to zero and draws
// x = V sqrt(L) z with z standard normal.
func newSampler(cov mat.Symmetric, src rand.Source) (func(dst []float64), error) {
	nz := cov.SymmetricDim()
	if normal, ok := distmv.NewNormal(make([]float64, nz), cov, src); ok {
		return func(dst []float64) { normal.Rand(dst) }, nil
	}

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return nil, fmt.Errorf("turbulence: covariance eigendecomposition: %w", errs.ErrSingularMatrix)
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	scale := eig.Values(nil)
	for i, v := range scale {
		if v < 0 {
			v = 0
		}
		scale[i] = math.Sqrt(v)
	}

	unit := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	z := make([]float64, nz)
	return func(dst []float64) {
		for i := range z {
			z[i] = scale[i] * unit.Rand()
		}
		mat.NewVecDense(nz, dst).MulVec(&vecs, mat.NewVecDense(nz, z))
	}, nil
}
