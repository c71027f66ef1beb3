// SPDX-License-Identifier: MIT
// Package matrix: sentinel error set.
// This file defines ONLY package-level sentinel errors used across the matrix
// package. All kernels return these sentinels (optionally wrapped with an
// operation tag) and tests check them via errors.Is.
//
// Degenerate numeric input (singular, rank-deficient or partially infinite
// matrices) is NOT an error here: it is reported through InversionResult.

package matrix

import "errors"

// NOTE ON NAMING & PREFIXING
// --------------------------
// Every message is prefixed with "matrix: ..." for consistency and to allow
// easy grepping across logs. Wrap with fmt.Errorf("ctx: %w", ErrX) at the
// outer boundary; callers still use errors.Is to match.
//
// ERROR PRIORITY (documented, enforced in tests):
// nil -> shape -> NaN -> dimension mismatch.

var (
	// ErrNilMatrix indicates that a nil matrix (receiver or argument) was used.
	ErrNilMatrix = errors.New("matrix: nil matrix")

	// ErrNonSquare signals that a square matrix was required but the input wasn't.
	ErrNonSquare = errors.New("matrix: matrix is not square")

	// ErrDimensionMismatch indicates incompatible dimensions between operands,
	// e.g. a destination whose shape differs from the source.
	ErrDimensionMismatch = errors.New("matrix: dimension mismatch")

	// ErrAsymmetry signals that a matrix expected to be symmetric violated symmetry
	// within the configured tolerance.
	ErrAsymmetry = errors.New("matrix: matrix is not symmetric within eps")

	// ErrNaN signals a NaN entry. Infinite entries are legal (missing-data
	// convention), NaN never is.
	ErrNaN = errors.New("matrix: NaN encountered")

	// ErrNonFinite signals an infinite off-diagonal entry inside the retained
	// (finite-diagonal) block, which no covariance or precision can carry.
	ErrNonFinite = errors.New("matrix: non-finite entry in retained block")

	// ErrEigenFailed indicates that the symmetric eigendecomposition did not converge.
	ErrEigenFailed = errors.New("matrix: eigen decomposition failed")

	// ErrInvalidDimensions indicates that requested matrix dimensions are non-positive.
	ErrInvalidDimensions = errors.New("matrix: dimensions must be > 0")
)
