package projection

import (
	"fmt"

	"github.com/hammal/mcao/errs"
	"gonum.org/v1/gonum/mat"
)

// Tensor holds the full set of projection matrices of a configuration,
// indexed [mode, mode, height, star]. The per-(height, star) blocks are
// stored contiguously so they can be viewed without copying.
type Tensor struct {
	NZernike int
	NHeights int
	NStars   int
	// Data is laid out height-major, then star, then the (mode, mode)
	// block in row-major order.
	Data []float64
}

// NewTensor returns a zero tensor of the given dimensions.
func NewTensor(nZernike, nHeights, nStars int) *Tensor {
	return &Tensor{
		NZernike: nZernike,
		NHeights: nHeights,
		NStars:   nStars,
		Data:     make([]float64, nZernike*nZernike*nHeights*nStars),
	}
}

func (t *Tensor) blockOffset(height, star int) int {
	return (height*t.NStars + star) * t.NZernike * t.NZernike
}

// Block returns the projection matrix of the (height, star) pair as a view
// into the tensor.
func (t *Tensor) Block(height, star int) *mat.Dense {
	off := t.blockOffset(height, star)
	return mat.NewDense(t.NZernike, t.NZernike, t.Data[off:off+t.NZernike*t.NZernike])
}

// SetBlock copies m into the (height, star) block.
func (t *Tensor) SetBlock(height, star int, m mat.Matrix) {
	t.Block(height, star).Copy(m)
}

// Consistent reports whether the stored dimensions match the data length.
func (t *Tensor) Consistent() bool {
	return t.NZernike > 0 && t.NHeights > 0 && t.NStars > 0 &&
		len(t.Data) == t.NZernike*t.NZernike*t.NHeights*t.NStars
}

// Slice returns a copy restricted to the first nZernike modes and the
// heights selected by index. It is used to serve a request from a superset
// record.
func (t *Tensor) Slice(nZernike int, heights []int) (*Tensor, error) {
	if nZernike < 1 || nZernike > t.NZernike {
		return nil, fmt.Errorf("projection: slice to %d of %d modes: %w", nZernike, t.NZernike, errs.ErrInvalidParameter)
	}
	res := NewTensor(nZernike, len(heights), t.NStars)
	for hi, h := range heights {
		if h < 0 || h >= t.NHeights {
			return nil, fmt.Errorf("projection: slice height index %d: %w", h, errs.ErrInvalidParameter)
		}
		for s := 0; s < t.NStars; s++ {
			src := t.Block(h, s)
			res.SetBlock(hi, s, src.Slice(0, nZernike, 0, nZernike))
		}
	}
	return res, nil
}
