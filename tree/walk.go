// SPDX-License-Identifier: MIT
// Package tree: depth-first walker with pre- and post-order hooks.
//
// Walk visits the subtree under a start node (the root by default), children
// in input order. OnVisit runs on discovery (pre-order), OnExit after all
// children (post-order); an error from either aborts the walk.
//
// Complexity:
//   - Time:   O(V) plus hook cost.
//   - Memory: O(height) recursion.

package tree

import (
	"context"
	"fmt"
)

// WalkOption configures Walk.
type WalkOption func(*WalkOptions)

// WalkOptions holds configurable parameters for Walk.
type WalkOptions struct {
	// Ctx allows cancellation; defaults to context.Background().
	Ctx context.Context

	// Start is the node the walk begins at. Default: the root.
	Start int

	// OnVisit, if non-nil, is invoked when a node is discovered.
	OnVisit func(n *Node, depth int) error

	// OnExit, if non-nil, is invoked after all children of a node have been
	// walked, before the node is appended to WalkResult.Order.
	OnExit func(n *Node, depth int) error

	// MaxDepth, if non-negative, stops descent below that depth.
	// A depth of 0 visits only the start node. Default -1 (no limit).
	MaxDepth int
}

// DefaultWalkOptions returns background context, root start, no hooks and
// no depth limit.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		Ctx:      context.Background(),
		Start:    None,
		MaxDepth: -1,
	}
}

// WithContext sets the cancellation context. A nil ctx is ignored.
func WithContext(ctx context.Context) WalkOption {
	return func(o *WalkOptions) {
		if ctx != nil {
			o.Ctx = ctx
		}
	}
}

// WithStart begins the walk at node i instead of the root.
func WithStart(i int) WalkOption {
	return func(o *WalkOptions) { o.Start = i }
}

// WithOnVisit installs a pre-order hook.
func WithOnVisit(fn func(n *Node, depth int) error) WalkOption {
	return func(o *WalkOptions) { o.OnVisit = fn }
}

// WithOnExit installs a post-order hook.
func WithOnExit(fn func(n *Node, depth int) error) WalkOption {
	return func(o *WalkOptions) { o.OnExit = fn }
}

// WithMaxDepth limits descent depth.
func WithMaxDepth(limit int) WalkOption {
	return func(o *WalkOptions) { o.MaxDepth = limit }
}

// WalkResult captures the outcome of a walk.
type WalkResult struct {
	// Order lists node indices in finishing (post-order) sequence.
	Order []int

	// Depth maps node index to edge count from the start; -1 if unvisited.
	Depth []int
}

type walker struct {
	t    *Tree
	opts WalkOptions
	res  *WalkResult
}

// Walk traverses t depth-first.
//
// Errors: ErrInvalidArgument for an out-of-range start, ctx.Err() on
// cancellation, or any hook error (wrapped; Order is then nil).
func Walk(t *Tree, opts ...WalkOption) (*WalkResult, error) {
	o := DefaultWalkOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.Start == None {
		o.Start = t.Root()
	}
	if o.Start < 0 || o.Start >= t.NumNodes() {
		return nil, fmt.Errorf("tree: Walk start %d: %w", o.Start, ErrInvalidArgument)
	}

	res := &WalkResult{
		Order: make([]int, 0, t.NumNodes()),
		Depth: make([]int, t.NumNodes()),
	}
	for i := range res.Depth {
		res.Depth[i] = -1
	}
	w := &walker{t: t, opts: o, res: res}
	if err := w.traverse(o.Start, 0); err != nil {
		return res, err
	}

	return res, nil
}

func (w *walker) traverse(i, depth int) error {
	// 1. Cancellation
	select {
	case <-w.opts.Ctx.Done():
		return w.opts.Ctx.Err()
	default:
	}

	// 2. Depth limit
	if w.opts.MaxDepth >= 0 && depth > w.opts.MaxDepth {
		return nil
	}
	w.res.Depth[i] = depth
	n := &w.t.nodes[i]

	// 3. Pre-order hook
	if w.opts.OnVisit != nil {
		if err := w.opts.OnVisit(n, depth); err != nil {
			w.res.Order = nil

			return fmt.Errorf("tree: OnVisit hook for node %d: %w", i, err)
		}
	}

	// 4. Children
	for _, c := range n.Children {
		if err := w.traverse(c, depth+1); err != nil {
			return err
		}
	}

	// 5. Post-order hook
	if w.opts.OnExit != nil {
		if err := w.opts.OnExit(n, depth); err != nil {
			w.res.Order = nil

			return fmt.Errorf("tree: OnExit hook for node %d: %w", i, err)
		}
	}
	w.res.Order = append(w.res.Order, i)

	return nil
}
