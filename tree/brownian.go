// SPDX-License-Identifier: MIT
// Package tree: Brownian-motion moments and simulation on a tree.

package tree

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Covariance returns the tips×tips matrix of shared root-to-MRCA path
// lengths: under unit-rate Brownian motion, cov(x_a, x_b) = C[a,b]·Σ.
// Complexity: O(n²·h) for n tips and height h.
func (t *Tree) Covariance() *mat.SymDense {
	n := t.numTips
	c := mat.NewSymDense(n, nil)
	onPath := make([]bool, t.NumNodes())
	for a := 0; a < n; a++ {
		clear(onPath)
		for x := a; x != None; x = t.nodes[x].Parent {
			onPath[x] = true
		}
		for b := a; b < n; b++ {
			m := b
			for !onPath[m] {
				m = t.nodes[m].Parent
			}
			c.SetSym(a, b, t.Height(m))
		}
	}

	return c
}

// SimulateBrownian draws a value at every node: the root gets rootValue and
// each child its parent's value plus N(0, rate·length·sigma). The returned
// slice is indexed by node.
//
// Errors: ErrInvalidArgument for a nil source, a negative rate, a sigma
// that is not positive definite, or rootValue of the wrong length.
func (t *Tree) SimulateBrownian(src rand.Source, sigma mat.Symmetric, rootValue []float64, rate float64) ([][]float64, error) {
	d := sigma.SymmetricDim()
	if src == nil || rate < 0 || len(rootValue) != d {
		return nil, fmt.Errorf("tree: SimulateBrownian: %w", ErrInvalidArgument)
	}

	out := make([][]float64, t.NumNodes())
	zero := make([]float64, d)
	var scaled mat.SymDense
	_, err := Walk(t, WithOnVisit(func(n *Node, _ int) error {
		if n.Parent == None {
			out[n.Index] = append([]float64(nil), rootValue...)
			return nil
		}
		v := append([]float64(nil), out[n.Parent]...)
		out[n.Index] = v
		if n.Length == 0 || rate == 0 {
			return nil
		}
		scaled.ScaleSym(rate*n.Length, sigma)
		dist, ok := distmv.NewNormal(zero, &scaled, src)
		if !ok {
			return fmt.Errorf("sigma is not positive definite: %w", ErrInvalidArgument)
		}
		floats.Add(v, dist.Rand(nil))

		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("tree: SimulateBrownian: %w", err)
	}

	return out, nil
}
