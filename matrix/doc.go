// SPDX-License-Identifier: MIT

// Package matrix is the linear-algebra capability of the diffusion
// integrator: rank-aware inversion of symmetric variance and precision
// matrices in which some directions may be exactly observed or entirely
// missing.
//
// The package provides:
//
//   - Inverter / Invert: inversion that returns an InversionResult
//     (observation code, effective rank, log pseudo-determinant) instead of
//     failing on singular or partially infinite input.
//   - Zero-annihilating products (MulVecSafe, MulSafe, AddScaled, QuadForm)
//     in which 0·Inf contributes 0 rather than NaN.
//   - Central validators (ValidateSquare, ValidateSymmetric, ValidateNoNaN, ...).
//
// Storage is gonum's mat.Dense; this package never copies caller data into
// private formats, so views over flat arenas (mat.NewDense(r, c, slice))
// can be passed directly.
//
// Errors are sentinels (errors.go) wrapped with the operation tag; degenerate
// numeric input is reported through InversionResult, never as an error.
package matrix
