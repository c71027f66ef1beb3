// SPDX-License-Identifier: MIT
// Package cdi: operations and the per-representation kernel contract.

package cdi

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/zedomel/beast-mcmc/matrix"
)

// OperationTupleSize is the number of integers per operation in the flat
// operation slices accepted by UpdatePostOrderPartials and
// UpdatePreOrderPartials.
const OperationTupleSize = 5

// LogSqrt2Pi is log(√(2π)).
const LogSqrt2Pi = 0.91893853320467274178032973640561763986139747363778

// Operation is one 5-tuple of buffer and matrix indices.
//
// Post-order: Dest = merge(ChildA over ChildAMatrix, ChildB over ChildBMatrix).
// Pre-order tuples are laid out (parent, node, nodeMatrix, sibling,
// siblingMatrix) on the wire and decoded by preOrderAt so that Dest is the
// node written, ChildA its parent (pre-order source) and ChildB its sibling
// (post-order source).
type Operation struct {
	Dest         int
	ChildA       int
	ChildAMatrix int
	ChildB       int
	ChildBMatrix int
}

// String renders the tuple for traces and error messages.
func (o Operation) String() string {
	return fmt.Sprintf("(%d <- %d@%d, %d@%d)", o.Dest, o.ChildA, o.ChildAMatrix, o.ChildB, o.ChildBMatrix)
}

// Ints appends the flat encoding of o to dst.
func (o Operation) Ints(dst []int) []int {
	return append(dst, o.Dest, o.ChildA, o.ChildAMatrix, o.ChildB, o.ChildBMatrix)
}

// operationAt decodes the i-th tuple of ops. No bounds check.
func operationAt(ops []int, i int) Operation {
	b := i * OperationTupleSize

	return Operation{
		Dest:         ops[b],
		ChildA:       ops[b+1],
		ChildAMatrix: ops[b+2],
		ChildB:       ops[b+3],
		ChildBMatrix: ops[b+4],
	}
}

// preOrderAt decodes the i-th pre-order tuple of ops. No bounds check.
func preOrderAt(ops []int, i int) Operation {
	b := i * OperationTupleSize

	return Operation{
		Dest:         ops[b+1],
		ChildA:       ops[b],
		ChildAMatrix: ops[b+2],
		ChildB:       ops[b+3],
		ChildBMatrix: ops[b+4],
	}
}

// state is the storage shared by the integrator and its kernel.
type state struct {
	layout Layout
	buf    *arena
	diff   *diffusionCache
	stats  *statistics

	logger *slog.Logger
	trace  bool
}

// traceDegenerate logs an inversion that did not see a full-rank source.
func (s *state) traceDegenerate(where string, node, trait int, res matrix.InversionResult) {
	if !s.trace || res.Code == matrix.FullyObserved {
		return
	}
	s.logger.Debug("cdi: degenerate inversion", "at", where, "buffer", node, "trait", trait, "result", res.String())
}

// kernel is the representation-specific arithmetic. Callers validate
// indices, set flags and variances before dispatching.
type kernel interface {
	// merge writes the post-order partial of op.Dest and its remainders.
	merge(op Operation, vi, vj float64, accumulate bool) error

	// preOrder writes the pre-order partial of op.Dest.
	// vi is the variance of Dest's branch, vj that of the sibling's branch.
	preOrder(op Operation, vi, vj float64) error

	// root writes one log-likelihood per trait into out.
	root(root, prior int, out []float64, accumulate bool) error

	// seedRoot writes the pre-order partial of root from the prior buffer.
	seedRoot(root, prior int) error
}

// inflate returns the effective precision of a scalar precision p seen
// through a branch of variance v: 1/(1/p + v), with p = +Inf giving 1/v.
func inflate(p, v float64) float64 {
	if math.IsInf(p, 1) {
		return 1 / v
	}

	return p / (1 + p*v)
}

// contrastPrecision returns a·b/(a+b) for non-negative a, b with the limits
// a→Inf (b) and b→Inf (a). ok is false when both are infinite.
func contrastPrecision(a, b float64) (float64, bool) {
	ai, bi := math.IsInf(a, 1), math.IsInf(b, 1)
	switch {
	case ai && bi:
		return 0, false
	case ai:
		return b, true
	case bi:
		return a, true
	case a+b == 0:
		return 0, true
	default:
		return a * b / (a + b), true
	}
}
