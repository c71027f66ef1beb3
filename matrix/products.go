// SPDX-License-Identifier: MIT
// Package matrix: zero-annihilating products.
//
// Purpose:
//   - IEEE arithmetic gives 0·Inf = NaN, which is wrong for the missing-data
//     convention used here: a zero weight on an infinite (missing) entry must
//     contribute nothing. Every kernel in this file treats 0·x as exactly 0.
//
// All kernels are O(n·m) (or O(n·m·p) for MulSafe), allocate nothing, and
// iterate in fixed order.

package matrix

import (
	"gonum.org/v1/gonum/mat"
)

// MulVecSafe computes dst = a·x with 0·x = 0.
// Errors: ErrNilMatrix for nil slices, ErrDimensionMismatch if
// len(x) != cols(a) or len(dst) != rows(a).
// dst must not alias x.
func MulVecSafe(dst []float64, a mat.Matrix, x []float64) error {
	r, c := a.Dims()
	if err := ValidateVecLen(x, c); err != nil {
		return matrixErrorf("MulVecSafe", err)
	}
	if err := ValidateVecLen(dst, r); err != nil {
		return matrixErrorf("MulVecSafe", err)
	}
	var (
		i, j     int
		sum, aij float64
	)
	for i = 0; i < r; i++ {
		sum = 0
		for j = 0; j < c; j++ {
			aij = a.At(i, j)
			if aij == 0 || x[j] == 0 {
				continue
			}
			sum += aij * x[j]
		}
		dst[i] = sum
	}

	return nil
}

// MulSafe computes dst = a·b with 0·x = 0.
// Errors: ErrDimensionMismatch on incompatible shapes.
// dst must not alias a or b.
func MulSafe(dst *mat.Dense, a, b mat.Matrix) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	dr, dc := dst.Dims()
	if ac != br || dr != ar || dc != bc {
		return matrixErrorf("MulSafe", ErrDimensionMismatch)
	}
	var (
		i, j, k       int
		sum, aik, bkj float64
	)
	for i = 0; i < ar; i++ {
		for j = 0; j < bc; j++ {
			sum = 0
			for k = 0; k < ac; k++ {
				aik = a.At(i, k)
				if aik == 0 {
					continue
				}
				bkj = b.At(k, j)
				if bkj == 0 {
					continue
				}
				sum += aik * bkj
			}
			dst.Set(i, j, sum)
		}
	}

	return nil
}

// AddScaled computes dst = a + alpha·b with 0·x = 0.
// dst may alias a (element-wise update).
// Errors: ErrDimensionMismatch on shape differences.
func AddScaled(dst *mat.Dense, a mat.Matrix, alpha float64, b mat.Matrix) error {
	if err := ValidateSameShape(a, b); err != nil {
		return matrixErrorf("AddScaled", err)
	}
	if err := ValidateSameShape(dst, a); err != nil {
		return matrixErrorf("AddScaled", err)
	}
	r, c := a.Dims()
	var (
		i, j int
		bij  float64
	)
	for i = 0; i < r; i++ {
		for j = 0; j < c; j++ {
			bij = b.At(i, j)
			if alpha == 0 || bij == 0 {
				dst.Set(i, j, a.At(i, j))
				continue
			}
			dst.Set(i, j, a.At(i, j)+alpha*bij)
		}
	}

	return nil
}

// QuadForm returns xᵀ·a·y with 0·x = 0.
// Errors: ErrNilMatrix for nil slices, ErrDimensionMismatch if
// len(x) != rows(a) or len(y) != cols(a).
func QuadForm(x []float64, a mat.Matrix, y []float64) (float64, error) {
	r, c := a.Dims()
	if err := ValidateVecLen(x, r); err != nil {
		return 0, matrixErrorf("QuadForm", err)
	}
	if err := ValidateVecLen(y, c); err != nil {
		return 0, matrixErrorf("QuadForm", err)
	}
	var (
		i, j     int
		sum, aij float64
	)
	for i = 0; i < r; i++ {
		if x[i] == 0 {
			continue
		}
		for j = 0; j < c; j++ {
			aij = a.At(i, j)
			if aij == 0 || y[j] == 0 {
				continue
			}
			sum += x[i] * aij * y[j]
		}
	}

	return sum, nil
}
