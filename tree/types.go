// SPDX-License-Identifier: MIT
// Package tree: core types, sentinels and accessors.

package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned when the input holds no tree.
	ErrEmpty = errors.New("tree: empty input")

	// ErrSyntax wraps every Newick parse failure.
	ErrSyntax = errors.New("tree: newick syntax error")

	// ErrNotBinary is returned when an internal node has other than two children.
	ErrNotBinary = errors.New("tree: internal node is not bifurcating")

	// ErrNegativeLength is returned for a negative branch length.
	ErrNegativeLength = errors.New("tree: negative branch length")

	// ErrDuplicateName is returned when two tips share a name.
	ErrDuplicateName = errors.New("tree: duplicate tip name")

	// ErrUnknownTip is returned when a tip name is not in the tree.
	ErrUnknownTip = errors.New("tree: unknown tip")

	// ErrInvalidArgument is returned for malformed arguments to simulation
	// or slot helpers (wrong lengths, negative rate, nil source).
	ErrInvalidArgument = errors.New("tree: invalid argument")
)

// None marks the absent parent of the root.
const None = -1

// Node is one vertex of a rooted binary tree.
type Node struct {
	Index    int     // position in Tree.Nodes; tips occupy 0..NumTips-1
	Name     string  // label from the input; may be empty for internal nodes
	Length   float64 // length of the branch to the parent; 0 at the root
	Parent   int     // parent index, None at the root
	Children []int   // 0 (tip) or 2 (internal) child indices, in input order
}

// IsTip reports whether n has no children.
func (n *Node) IsTip() bool { return len(n.Children) == 0 }

// Tree is a rooted binary phylogeny with deterministic node indexing:
// tips first in input order, then internal nodes in post-order, so the root
// has the largest index.
type Tree struct {
	nodes   []Node
	numTips int
	byName  map[string]int
}

// NumNodes returns the total node count.
func (t *Tree) NumNodes() int { return len(t.nodes) }

// NumTips returns the number of tips.
func (t *Tree) NumTips() int { return t.numTips }

// Root returns the index of the root.
func (t *Tree) Root() int { return len(t.nodes) - 1 }

// Node returns node i. Panics if i is out of range.
func (t *Tree) Node(i int) *Node { return &t.nodes[i] }

// TipNames returns tip names in index order.
func (t *Tree) TipNames() []string {
	out := make([]string, t.numTips)
	for i := 0; i < t.numTips; i++ {
		out[i] = t.nodes[i].Name
	}

	return out
}

// TipIndex returns the index of the tip called name.
func (t *Tree) TipIndex(name string) (int, error) {
	i, ok := t.byName[name]
	if !ok {
		return None, fmt.Errorf("tree: TipIndex(%q): %w", name, ErrUnknownTip)
	}

	return i, nil
}

// Sibling returns the other child of i's parent, or None at the root.
func (t *Tree) Sibling(i int) int {
	p := t.nodes[i].Parent
	if p == None {
		return None
	}
	c := t.nodes[p].Children
	if c[0] == i {
		return c[1]
	}

	return c[0]
}

// Height returns the summed branch length from the root to node i.
func (t *Tree) Height(i int) float64 {
	var h float64
	for n := i; t.nodes[n].Parent != None; n = t.nodes[n].Parent {
		h += t.nodes[n].Length
	}

	return h
}
