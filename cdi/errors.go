// SPDX-License-Identifier: MIT
// Package cdi: sentinel error set.
//
// Every sentinel below is a precondition violation (programming error) or an
// explicit "not implemented" signal. Degenerate numeric input (missing or
// exactly observed traits) is never an error: it is absorbed by the
// rank-aware inversion in package matrix.

package cdi

import "errors"

var (
	// ErrInvalidDimensions indicates a non-positive construction parameter.
	ErrInvalidDimensions = errors.New("cdi: dimensions must be > 0")

	// ErrInvalidPrecision indicates an unknown PrecisionType.
	ErrInvalidPrecision = errors.New("cdi: unknown precision type")

	// ErrOutOfRange indicates a buffer, matrix, diffusion or trait index
	// outside the bounds fixed at construction.
	ErrOutOfRange = errors.New("cdi: index out of range")

	// ErrDimensionMismatch indicates a slice whose length does not match the layout.
	ErrDimensionMismatch = errors.New("cdi: dimension mismatch")

	// ErrBufferNotSet indicates that an operation read a buffer that was
	// never written (by the caller or by an earlier operation).
	ErrBufferNotSet = errors.New("cdi: buffer read before being set")

	// ErrAliasedBuffer indicates that an operation's destination buffer is
	// also one of its sources.
	ErrAliasedBuffer = errors.New("cdi: destination buffer aliases a source")

	// ErrVarianceNotSet indicates that a merge referenced a branch slot whose
	// variance was never written by UpdateDiffusionMatrices.
	ErrVarianceNotSet = errors.New("cdi: branch variance read before being set")

	// ErrDiffusionNotSet indicates that a diffusion index was selected before
	// its precision matrix was set.
	ErrDiffusionNotSet = errors.New("cdi: diffusion precision not set")

	// ErrNoActiveDiffusion indicates that a merge, pre-order or root call
	// happened before UpdateDiffusionMatrices selected a diffusion entry.
	ErrNoActiveDiffusion = errors.New("cdi: no active diffusion; call UpdateDiffusionMatrices first")

	// ErrNotPositiveDefinite indicates a diffusion precision that is not
	// symmetric positive definite.
	ErrNotPositiveDefinite = errors.New("cdi: diffusion precision is not positive definite")

	// ErrInvalidEdgeLength indicates a NaN, infinite or negative branch variance.
	ErrInvalidEdgeLength = errors.New("cdi: edge length must be finite and >= 0")

	// ErrInvalidPrior indicates a NaN or negative prior precision.
	ErrInvalidPrior = errors.New("cdi: prior precision must be >= 0")

	// ErrNotImplemented marks an operation that the selected precision
	// representation intentionally does not provide (scalar pre-order).
	ErrNotImplemented = errors.New("cdi: operation not implemented for this precision type")

	// ErrWrongPrecision indicates input that the selected precision
	// representation cannot encode (e.g. per-dimension missingness under scalar).
	ErrWrongPrecision = errors.New("cdi: input not representable under this precision type")
)
