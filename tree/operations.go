// SPDX-License-Identifier: MIT
// Package tree: operation batches and branch slots for the integrator.
//
// Buffer convention: node i uses partial buffer i, and the branch above node
// i uses matrix slot i. The root's slot is never referenced. A prior buffer,
// when needed, is conventionally NumNodes().

package tree

import (
	"context"
	"fmt"
	"math"

	"github.com/zedomel/beast-mcmc/cdi"
)

// PostOrderOperations returns the merge batch for every internal node in
// post-order, as flat (parent, left, left, right, right) tuples, and the
// operation count. Errors come from the traversal.
func (t *Tree) PostOrderOperations() ([]int, int, error) {
	return t.postOrderOperations(context.Background())
}

func (t *Tree) postOrderOperations(ctx context.Context) ([]int, int, error) {
	ops := make([]int, 0, (t.NumNodes()-t.numTips)*cdi.OperationTupleSize)
	count := 0
	_, err := Walk(t, WithContext(ctx), WithOnExit(func(n *Node, _ int) error {
		if n.IsTip() {
			return nil
		}
		l, r := n.Children[0], n.Children[1]
		ops = cdi.Operation{Dest: n.Index, ChildA: l, ChildAMatrix: l, ChildB: r, ChildBMatrix: r}.Ints(ops)
		count++

		return nil
	}))
	if err != nil {
		return nil, 0, fmt.Errorf("tree: operations: %w", err)
	}

	return ops, count, nil
}

// PreOrderOperations returns the pre-order batch for every non-root node,
// parents before children, as flat (parent, node, node, sibling, sibling)
// tuples, and the operation count.
func (t *Tree) PreOrderOperations() ([]int, int, error) {
	return t.preOrderOperations(context.Background())
}

func (t *Tree) preOrderOperations(ctx context.Context) ([]int, int, error) {
	ops := make([]int, 0, (t.NumNodes()-1)*cdi.OperationTupleSize)
	count := 0
	_, err := Walk(t, WithContext(ctx), WithOnVisit(func(n *Node, _ int) error {
		if n.Parent == None {
			return nil
		}
		s := t.Sibling(n.Index)
		ops = append(ops, n.Parent, n.Index, n.Index, s, s)
		count++

		return nil
	}))
	if err != nil {
		return nil, 0, fmt.Errorf("tree: operations: %w", err)
	}

	return ops, count, nil
}

// BranchSlots returns the matrix slot and variance (rate × length) of every
// non-root branch, in node-index order, ready for UpdateDiffusionMatrices.
//
// Errors: ErrInvalidArgument if rate is negative, NaN or infinite.
func (t *Tree) BranchSlots(rate float64) ([]int, []float64, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return nil, nil, fmt.Errorf("tree: BranchSlots rate %v: %w", rate, ErrInvalidArgument)
	}
	n := t.NumNodes() - 1
	slots := make([]int, 0, n)
	lengths := make([]float64, 0, n)
	for i := range t.nodes {
		if t.nodes[i].Parent == None {
			continue
		}
		slots = append(slots, i)
		lengths = append(lengths, rate*t.nodes[i].Length)
	}

	return slots, lengths, nil
}
