package tomography

import (
	"math/rand/v2"

	"github.com/hammal/mcao/turbulence"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Measure applies the stacked system matrix to a turbulence realization and
// returns the synthetic wavefront-sensor measurement vector, one block of
// Zernike coefficients per guide star. The function is pure; measurement
// noise is the caller's explicit, separate step so noise realizations stay
// independently reproducible.
func Measure(stacked mat.Matrix, r *turbulence.Realization) *mat.VecDense {
	m, _ := stacked.Dims()
	res := mat.NewVecDense(m, nil)
	res.MulVec(stacked, r.Flatten())
	return res
}

// AddNoise perturbs the measurement in place with zero-mean Gaussian noise
// of the given standard deviation. A non-positive sigma leaves the
// measurement untouched.
func AddNoise(b *mat.VecDense, sigma float64, src rand.Source) {
	if sigma <= 0 {
		return
	}
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	for i := 0; i < b.Len(); i++ {
		b.SetVec(i, b.AtVec(i)+noise.Rand())
	}
}
