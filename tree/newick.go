// SPDX-License-Identifier: MIT
// Package tree: Newick parsing.
//
// Tokenizing and parsing are delegated to gotree's Newick reader; this file
// converts its node graph into a Tree and enforces the constraints the
// integrator needs: named tips, bifurcating internal nodes, finite
// non-negative branch lengths and unique tip names. Missing lengths are 0.
// The terminating ';' is optional.

package tree

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/evolbioinfo/gotree/io/newick"
	gotree "github.com/evolbioinfo/gotree/tree"
)

type pnode struct {
	name     string
	length   float64
	children []*pnode
}

// Parse reads one Newick tree.
//
// Errors: ErrEmpty, ErrSyntax, ErrNotBinary, ErrNegativeLength, ErrDuplicateName.
// Complexity: O(len(s)).
func Parse(s string) (*Tree, error) {
	body := strings.TrimSpace(s)
	if body == "" {
		return nil, ErrEmpty
	}
	if i := strings.IndexByte(body, ';'); i < 0 {
		body += ";"
	} else if rest := strings.TrimSpace(body[i+1:]); rest != "" {
		return nil, fmt.Errorf("%w: trailing input %q", ErrSyntax, rest)
	}

	gt, err := newick.NewParser(strings.NewReader(body)).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	root, err := convert(gt.Root(), nil, 0)
	if err != nil {
		return nil, err
	}

	return build(root)
}

// MustParse is Parse that panics on error; for tests and examples.
func MustParse(s string) *Tree {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return t
}

// convert copies the subtree of n, reached from prev over a branch of the
// given length, into a pnode. Children keep their input order.
func convert(n, prev *gotree.Node, length float64) (*pnode, error) {
	p := &pnode{name: n.Name(), length: length}
	edges := n.Edges()
	for i, c := range n.Neigh() {
		if c == prev {
			continue
		}
		l := edges[i].Length()
		switch {
		case l == gotree.NIL_LENGTH:
			l = 0
		case math.IsNaN(l) || math.IsInf(l, 0):
			return nil, fmt.Errorf("%w: branch length %v", ErrSyntax, l)
		case l < 0:
			return nil, fmt.Errorf("%w: %v", ErrNegativeLength, l)
		}
		child, err := convert(c, n, l)
		if err != nil {
			return nil, err
		}
		p.children = append(p.children, child)
	}
	if len(p.children) == 0 && p.name == "" {
		return nil, fmt.Errorf("%w: tip without a name", ErrSyntax)
	}

	return p, nil
}

// build assigns indices (tips in input order, internals in post-order) and
// flattens the parse tree.
func build(root *pnode) (*Tree, error) {
	var tips, internals []*pnode
	var collect func(n *pnode) error
	collect = func(n *pnode) error {
		if len(n.children) == 0 {
			tips = append(tips, n)
			return nil
		}
		if len(n.children) != 2 {
			return fmt.Errorf("%w: node %q has %d children", ErrNotBinary, n.name, len(n.children))
		}
		for _, c := range n.children {
			if err := collect(c); err != nil {
				return err
			}
		}
		internals = append(internals, n)

		return nil
	}
	if err := collect(root); err != nil {
		return nil, err
	}

	index := make(map[*pnode]int, len(tips)+len(internals))
	t := &Tree{
		nodes:   make([]Node, 0, len(tips)+len(internals)),
		numTips: len(tips),
		byName:  make(map[string]int, len(tips)),
	}
	for _, n := range append(tips, internals...) {
		i := len(t.nodes)
		index[n] = i
		t.nodes = append(t.nodes, Node{Index: i, Name: n.name, Length: n.length, Parent: None})
		if len(n.children) > 0 {
			continue
		}
		if _, dup := t.byName[n.name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, n.name)
		}
		t.byName[n.name] = i
	}
	for _, n := range internals {
		i := index[n]
		for _, c := range n.children {
			ci := index[c]
			t.nodes[i].Children = append(t.nodes[i].Children, ci)
			t.nodes[ci].Parent = i
		}
	}

	return t, nil
}

// String renders t as Newick with branch lengths.
func (t *Tree) String() string {
	var sb strings.Builder
	var write func(i int)
	write = func(i int) {
		n := &t.nodes[i]
		if !n.IsTip() {
			sb.WriteByte('(')
			write(n.Children[0])
			sb.WriteByte(',')
			write(n.Children[1])
			sb.WriteByte(')')
		}
		sb.WriteString(n.Name)
		if n.Parent != None {
			sb.WriteByte(':')
			sb.WriteString(strconv.FormatFloat(n.Length, 'g', -1, 64))
		}
	}
	write(t.Root())
	sb.WriteByte(';')

	return sb.String()
}
