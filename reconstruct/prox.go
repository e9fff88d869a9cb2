package reconstruct

import (
	"fmt"
	"math"

	"github.com/hammal/mcao/errs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Prox is the proximal operator of the non-smooth penalty g in the sparse
// solver. Implementations must satisfy dst = argmin_u g(u) + ||u-v||²/(2τ).
type Prox interface {
	// Apply writes prox_{tau g}(v) into dst. dst and v may alias.
	Apply(dst, v *mat.VecDense, tau float64)
	// Penalty returns g(v).
	Penalty(v *mat.VecDense) float64
}

// SoftThreshold applies the element-wise shrinkage operator
//
//	dst_i = sign(v_i) * max(|v_i| - theta, 0)
//
// the proximal operator of theta*||.||₁. dst and v may alias.
func SoftThreshold(dst, v *mat.VecDense, theta float64) {
	for i := 0; i < v.Len(); i++ {
		vi := v.AtVec(i)
		shrunk := math.Abs(vi) - theta
		if shrunk <= 0 {
			dst.SetVec(i, 0)
			continue
		}
		dst.SetVec(i, math.Copysign(shrunk, vi))
	}
}

// L1 is the global L1 penalty lambda*||x||₁.
type L1 struct {
	Lambda float64
}

// Apply implements Prox.
func (p L1) Apply(dst, v *mat.VecDense, tau float64) {
	SoftThreshold(dst, v, tau*p.Lambda)
}

// Penalty implements Prox.
func (p L1) Penalty(v *mat.VecDense) float64 {
	return p.Lambda * floats.Norm(v.RawVector().Data, 1)
}

// LayerL1 applies a distinct L1 weight to each layer's block of modes, so
// different altitudes receive different sparsity pressure.
type LayerL1 struct {
	lambdas []float64
	modes   int
}

// NewLayerL1 returns a per-layer L1 penalty with one weight per layer and
// modes coefficients per layer block.
func NewLayerL1(lambdas []float64, modes int) (*LayerL1, error) {
	if len(lambdas) == 0 || modes < 1 {
		return nil, fmt.Errorf("reconstruct: per-layer penalty needs layers and modes: %w", errs.ErrInvalidParameter)
	}
	for _, l := range lambdas {
		if l < 0 {
			return nil, fmt.Errorf("reconstruct: regularization weight %g: %w", l, errs.ErrInvalidParameter)
		}
	}
	res := &LayerL1{lambdas: make([]float64, len(lambdas)), modes: modes}
	copy(res.lambdas, lambdas)
	return res, nil
}

// Apply implements Prox.
func (p *LayerL1) Apply(dst, v *mat.VecDense, tau float64) {
	for l, lambda := range p.lambdas {
		block := v.SliceVec(l*p.modes, (l+1)*p.modes).(*mat.VecDense)
		out := dst.SliceVec(l*p.modes, (l+1)*p.modes).(*mat.VecDense)
		SoftThreshold(out, block, tau*lambda)
	}
}

// Penalty implements Prox.
func (p *LayerL1) Penalty(v *mat.VecDense) float64 {
	var res float64
	raw := v.RawVector().Data
	for l, lambda := range p.lambdas {
		res += lambda * floats.Norm(raw[l*p.modes:(l+1)*p.modes], 1)
	}
	return res
}
