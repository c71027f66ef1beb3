// SPDX-License-Identifier: MIT

// Package impute fills missing tip trait values from the pre-order partials
// computed by package cdi.
//
// The pre-order record of a tip is the Gaussian distribution of its value
// given every other tip. Conditioning it on the tip's own observed
// dimensions (Condition) gives the distribution of the missing ones, from
// which a Sampler draws (or takes the mean). Operator applies this to every
// tip of an Integrator in one call, overwriting only missing entries.
package impute
