package reconstruct

import (
	"testing"

	"github.com/hammal/mcao/errs"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSoftThreshold(t *testing.T) {
	v := mat.NewVecDense(4, []float64{3, -2, 0.5, -0.1})
	dst := mat.NewVecDense(4, nil)
	SoftThreshold(dst, v, 1)
	require.Equal(t, []float64{2, -1, 0, 0}, dst.RawVector().Data)
}

func TestSoftThresholdAliasing(t *testing.T) {
	v := mat.NewVecDense(3, []float64{2, -2, 0.5})
	SoftThreshold(v, v, 1)
	require.Equal(t, []float64{1, -1, 0}, v.RawVector().Data)
}

func TestL1(t *testing.T) {
	p := L1{Lambda: 2}
	v := mat.NewVecDense(3, []float64{1, -2, 3})
	require.Equal(t, 12.0, p.Penalty(v))

	dst := mat.NewVecDense(3, nil)
	p.Apply(dst, v, 0.25) // effective threshold 0.5
	require.Equal(t, []float64{0.5, -1.5, 2.5}, dst.RawVector().Data)
}

func TestLayerL1(t *testing.T) {
	p, err := NewLayerL1([]float64{0, 2}, 2)
	require.NoError(t, err)

	v := mat.NewVecDense(4, []float64{1, -1, 1, -1})
	require.Equal(t, 4.0, p.Penalty(v))

	dst := mat.NewVecDense(4, nil)
	p.Apply(dst, v, 0.25) // layer 0 untouched, layer 1 shrunk by 0.5
	require.Equal(t, []float64{1, -1, 0.5, -0.5}, dst.RawVector().Data)
}

func TestNewLayerL1Validation(t *testing.T) {
	_, err := NewLayerL1(nil, 2)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = NewLayerL1([]float64{1}, 0)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = NewLayerL1([]float64{1, -1}, 2)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestNewLayerL1CopiesWeights(t *testing.T) {
	lambdas := []float64{1, 1}
	p, err := NewLayerL1(lambdas, 1)
	require.NoError(t, err)
	lambdas[0] = 100

	v := mat.NewVecDense(2, []float64{1, 1})
	require.Equal(t, 2.0, p.Penalty(v))
}
