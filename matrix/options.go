// SPDX-License-Identifier: MIT

// Package matrix: functional configuration for the inversion kernels.
// This file defines:
//   - Option / Options (functional options with internal state),
//   - documented defaults (constants),
//   - WithX constructors with strong validation (panic on nonsensical values),
//   - gatherOptions helper (internal) that enforces invariants.
//
// Design goals:
//   - Deterministic behavior: no global state, no implicit randomness.
//   - No dead switches: each flag impacts behavior and is covered by tests.
//   - Safe by construction: panic only on invalid parameters (programmer error).
package matrix

import "math"

// ---------- Defaults (single source of truth) ----------

const (
	// DefaultEpsilon is the relative eigenvalue tolerance: eigenvalues at or
	// below eps * max|eigenvalue| are treated as rank-deficient directions.
	DefaultEpsilon = 1e-12

	// DefaultSymmetryTolerance bounds |a[i,j] - a[j,i]| accepted by ValidateSymmetric.
	DefaultSymmetryTolerance = 1e-9
)

// ---------- Internal panic messages (no magic strings) ----------

const (
	panicEpsilonInvalid = "matrix: WithEpsilon: eps must be finite, non-negative and < 1"
	panicSymTolInvalid  = "matrix: WithSymmetryTolerance: tol must be finite, non-negative"
)

// Option mutates internal options. Safe to apply repeatedly (idempotent).
type Option func(*Options)

// Options stores the effective configuration after applying Option setters.
// Fields are unexported; public entry points accept `...Option`.
type Options struct {
	eps    float64 // relative rank tolerance; DefaultEpsilon
	symTol float64 // absolute symmetry tolerance; DefaultSymmetryTolerance
}

// defaultOptions returns the zero-configuration baseline.
func defaultOptions() Options {
	return Options{
		eps:    DefaultEpsilon,
		symTol: DefaultSymmetryTolerance,
	}
}

// WithEpsilon sets the relative eigenvalue tolerance used for rank decisions.
// Panics on NaN, ±Inf, negative values or values >= 1.
func WithEpsilon(eps float64) Option {
	if math.IsNaN(eps) || math.IsInf(eps, 0) || eps < 0 || eps >= 1 {
		panic(panicEpsilonInvalid)
	}

	return func(o *Options) { o.eps = eps }
}

// WithSymmetryTolerance sets the absolute tolerance for symmetry checks.
// Panics on NaN, ±Inf or negative values.
func WithSymmetryTolerance(tol float64) Option {
	if math.IsNaN(tol) || math.IsInf(tol, 0) || tol < 0 {
		panic(panicSymTolInvalid)
	}

	return func(o *Options) { o.symTol = tol }
}

// gatherOptions applies opts over the defaults in order (last wins).
func gatherOptions(opts ...Option) Options {
	o := defaultOptions()
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}

	return o
}
