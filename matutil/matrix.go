// Package matutil collects small dense-matrix helpers used across the
// tomography packages.
package matutil

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Eye returns the (n by n) identity matrix.
func Eye(n int) *mat.Dense {
	res := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		res.Set(i, i, 1)
	}
	return res
}

// BlockDiag places the given square blocks on the diagonal of a new matrix
// and returns it. The off-diagonal blocks are zero.
func BlockDiag(blocks ...mat.Matrix) *mat.Dense {
	var rows, cols int
	for _, b := range blocks {
		m, n := b.Dims()
		rows += m
		cols += n
	}
	res := mat.NewDense(rows, cols, nil)
	var r, c int
	for _, b := range blocks {
		m, n := b.Dims()
		res.Slice(r, r+m, c, c+n).(*mat.Dense).Copy(b)
		r += m
		c += n
	}
	return res
}

// Repeat returns n copies of block for use with BlockDiag.
func Repeat(block mat.Matrix, n int) []mat.Matrix {
	res := make([]mat.Matrix, n)
	for i := range res {
		res[i] = block
	}
	return res
}

// HasNaNOrInf checks if there are any NaN or Inf entries in matrix.
func HasNaNOrInf(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}

// SpectralNorm returns the largest singular value of matrix.
func SpectralNorm(matrix mat.Matrix) float64 {
	var svd mat.SVD
	if ok := svd.Factorize(matrix, mat.SVDNone); !ok {
		return math.NaN()
	}
	return svd.Values(nil)[0]
}
