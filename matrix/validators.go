// SPDX-License-Identifier: MIT
// Package: matrix
//
// Purpose:
//  - Provide a single, canonical source of truth for common validation checks.
//  - Keep kernels minimal by delegating shape/nil/symmetry checks here.
//  - Return sentinel errors wrapped with the validator tag so call sites can
//    still match with errors.Is.
//
// Determinism & Performance:
//  - All checks are pure, deterministic and allocate nothing.
//  - Symmetry check runs O(n²) on the upper triangle only.

package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// validatorErrorf wraps an underlying error with the given validator tag.
func validatorErrorf(tag string, err error) error {
	return fmt.Errorf("%s: %w", tag, err)
}

// ValidateNotNil ensures the matrix reference is non-nil.
// Returns ErrNilMatrix if m == nil. Complexity: O(1).
func ValidateNotNil(m mat.Matrix) error {
	if m == nil {
		return validatorErrorf("ValidateNotNil", ErrNilMatrix)
	}

	return nil
}

// ValidateSquare checks that m is non-nil and square (Rows == Cols).
// Errors: ErrNilMatrix if nil, ErrNonSquare if not square. Complexity: O(1).
func ValidateSquare(m mat.Matrix) error {
	if err := ValidateNotNil(m); err != nil {
		return err
	}
	r, c := m.Dims()
	if r != c {
		return validatorErrorf("ValidateSquare", ErrNonSquare)
	}

	return nil
}

// ValidateSameShape ensures a and b have equal dimensions.
// Assumes a and b are not nil (caller must ensure). Complexity: O(1).
func ValidateSameShape(a, b mat.Matrix) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		return validatorErrorf("ValidateSameShape: Rows", ErrDimensionMismatch)
	}
	if ac != bc {
		return validatorErrorf("ValidateSameShape: Columns", ErrDimensionMismatch)
	}

	return nil
}

// ValidateVecLen ensures the vector length matches the required size n.
func ValidateVecLen(x []float64, n int) error {
	if x == nil {
		return validatorErrorf("ValidateVecLen", ErrNilMatrix)
	}
	if len(x) != n {
		return validatorErrorf("ValidateVecLen", ErrDimensionMismatch)
	}

	return nil
}

// ValidateNoNaN rejects NaN entries. ±Inf is accepted: infinite diagonals
// encode exact or missing observations. Complexity: O(r*c).
func ValidateNoNaN(m mat.Matrix) error {
	r, c := m.Dims()
	var i, j int
	for i = 0; i < r; i++ {
		for j = 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				return validatorErrorf("ValidateNoNaN", ErrNaN)
			}
		}
	}

	return nil
}

// ValidateSymmetric checks that m is square and a[i,j] ≈ a[j,i] within the
// configured symmetry tolerance. Infinite pairs must match exactly.
// Complexity: O(n²).
func ValidateSymmetric(m mat.Matrix, opts ...Option) error {
	if err := ValidateSquare(m); err != nil {
		return err
	}
	o := gatherOptions(opts...)
	n, _ := m.Dims()
	var (
		i, j   int
		aij, b float64
	)
	for i = 0; i < n; i++ {
		for j = i + 1; j < n; j++ {
			aij, b = m.At(i, j), m.At(j, i)
			if aij == b {
				continue
			}
			if math.IsInf(aij, 0) || math.IsInf(b, 0) || math.Abs(aij-b) > o.symTol {
				return validatorErrorf("ValidateSymmetric", ErrAsymmetry)
			}
		}
	}

	return nil
}
