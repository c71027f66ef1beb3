// SPDX-License-Identifier: MIT
// Package cdi: functional options for New.
//
// Panics only on programmer errors (nil logger, non-positive epsilon);
// runtime input errors are always returned.

package cdi

import (
	"io"
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zedomel/beast-mcmc/matrix"
)

// Option configures an Integrator.
type Option func(*Options)

// Options is the resolved configuration of an Integrator.
type Options struct {
	// Logger receives debug traces of every operation when its handler is
	// enabled at slog.LevelDebug. Default: a logger that discards everything.
	Logger *slog.Logger

	// Timing enables per-phase wall-clock histograms reported by Report.
	Timing bool

	// Registerer, when non-nil, also receives the timing collector so that
	// a host process can expose it. Ignored when Timing is false.
	Registerer prometheus.Registerer

	// Epsilon is the relative eigenvalue cutoff of the rank-aware inversion.
	Epsilon float64

	// SymmetryTolerance bounds the asymmetry accepted in a diffusion
	// precision before it is symmetrized.
	SymmetryTolerance float64
}

// DefaultOptions returns the baseline configuration.
func DefaultOptions() Options {
	return Options{
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timing:            false,
		Epsilon:           matrix.DefaultEpsilon,
		SymmetryTolerance: matrix.DefaultSymmetryTolerance,
	}
}

// WithLogger routes operation traces to l.
// Panics if l is nil.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("cdi: WithLogger(nil)")
	}

	return func(o *Options) { o.Logger = l }
}

// WithTiming toggles per-phase timing.
func WithTiming(on bool) Option {
	return func(o *Options) { o.Timing = on }
}

// WithRegisterer additionally registers the timing collector with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *Options) { o.Registerer = r }
}

// WithEpsilon sets the relative eigenvalue cutoff used when inverting
// partial precisions and variances.
// Panics if eps <= 0 or eps >= 1.
func WithEpsilon(eps float64) Option {
	if !(eps > 0 && eps < 1) {
		panic("cdi: WithEpsilon requires 0 < eps < 1")
	}

	return func(o *Options) { o.Epsilon = eps }
}

// WithSymmetryTolerance sets the largest |P[i,j] − P[j,i]| accepted by
// SetDiffusionPrecision.
// Panics if tol is negative, NaN or infinite.
func WithSymmetryTolerance(tol float64) Option {
	if !(tol >= 0) || math.IsInf(tol, 1) {
		panic("cdi: WithSymmetryTolerance requires a finite tol >= 0")
	}

	return func(o *Options) { o.SymmetryTolerance = tol }
}

func gatherOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	return o
}
