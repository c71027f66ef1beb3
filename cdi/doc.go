// SPDX-License-Identifier: MIT

// Package cdi integrates continuous traits along a phylogeny under
// Brownian diffusion.
//
// An Integrator owns a fixed arena of partial buffers (one per tree node,
// plus any prior buffers), a cache of diffusion precision matrices and the
// per-branch scalar variances. Callers seed tip partials, select a diffusion
// with UpdateDiffusionMatrices, run a batch of post-order merges and ask for
// the root log-likelihood:
//
//	in, _ := cdi.New(cdi.Full, 1, 2, 5, 1)
//	_ = in.SetDiffusionPrecision(0, []float64{1, 0, 0, 1})
//	_ = in.UpdateDiffusionMatrices(0, slots, lengths)
//	_ = in.SetPostOrderPartial(0, tipA) // built with Layout().TipPartial
//	...
//	_ = in.UpdatePostOrderPartials(ops, count, false)
//	_ = in.CalculateRootLogLikelihood(root, prior, ll, false)
//
// Two interchangeable representations share one buffer contract:
//
//   - Scalar: the precision of a partial is p·D with one scalar p per trait.
//     Closed-form merges; no pre-order.
//   - Full: a d×d precision and variance per trait, inverted with the
//     rank-aware capability of package matrix so that missing dimensions
//     (zero precision) and exact ones (infinite precision) are carried
//     without producing NaN.
//
// For d = 1 the two agree exactly.
//
// The remainder of a buffer is the log normalizing constant accumulated by
// every merge below it; the root log-likelihood is the root's remainder plus
// the density of the root partial under the prior. A zero prior precision is
// a flat prior and yields the restricted (contrast-only) likelihood.
//
// Optional Wishart sufficient statistics (per-trait outer products of
// weighted contrasts and degrees of freedom) are accumulated when a batch
// asks for them.
//
// Errors are sentinels wrapped with the calling method's name. Degenerate
// numeric input is never an error. Debug tracing goes to an slog.Logger and
// is skipped entirely unless the logger is enabled at debug level; per-phase
// timing is collected in Prometheus histograms when WithTiming is set.
package cdi
