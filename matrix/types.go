// SPDX-License-Identifier: MIT

// Package matrix: domain types returned by the inversion kernels.
// This file intentionally contains ONLY result types; errors and options live
// in dedicated files (errors.go, options.go).
package matrix

import "fmt"

// Code classifies how much of a matrix carried usable information when it
// was inverted.
type Code int

const (
	// FullyObserved: every direction was finite, non-zero and retained.
	FullyObserved Code = iota

	// PartiallyObserved: some directions were excluded (infinite or zero
	// diagonal) or numerically rank-deficient.
	PartiallyObserved

	// NotObserved: no direction was retained; the result is all degenerate.
	NotObserved
)

// String returns a stable, human-readable name for the code.
func (c Code) String() string {
	switch c {
	case FullyObserved:
		return "fully-observed"
	case PartiallyObserved:
		return "partially-observed"
	case NotObserved:
		return "not-observed"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// InversionResult describes one rank-aware inversion.
//   - Code classifies the source (see Code).
//   - Rank is the number of retained directions (effective dimension).
//   - LogDet is the log pseudo-determinant of the SOURCE over the retained
//     directions; 0 when Rank == 0.
type InversionResult struct {
	Code   Code    // observation class of the source
	Rank   int     // effective dimension, 0..n
	LogDet float64 // log pseudo-determinant of the source block
}

// String implements fmt.Stringer for debugging and trace output.
func (r InversionResult) String() string {
	return fmt.Sprintf("%s rank=%d logdet=%g", r.Code, r.Rank, r.LogDet)
}
