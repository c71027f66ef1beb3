// SPDX-License-Identifier: MIT
// Package cdi: Wishart sufficient statistics.
//
// For each trait: a d×d outer-product accumulator and a degrees-of-freedom
// counter. Merges and the root evaluation add weighted contrasts when the
// caller asks for it.

package cdi

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type statistics struct {
	dim   int
	outer []float64 // numTraits·d·d
	dof   []int     // numTraits
	delta []float64 // d scratch
}

func newStatistics(dim, numTraits int) *statistics {
	return &statistics{
		dim:   dim,
		outer: make([]float64, numTraits*dim*dim),
		dof:   make([]int, numTraits),
		delta: make([]float64, dim),
	}
}

// accumulate adds w·(a−b)(a−b)ᵀ to the outer product of trait t and counts
// one degree of freedom. Means are finite (missing dimensions hold 0), so
// the update is a plain rank-one BLAS call.
func (s *statistics) accumulate(t int, a, b []float64, w float64) {
	s.dof[t]++
	if w == 0 {
		return
	}
	d := s.dim
	block := mat.NewDense(d, d, s.outer[t*d*d:(t+1)*d*d])
	floats.SubTo(s.delta, a, b)
	x := mat.NewVecDense(d, s.delta)
	block.RankOne(block, w, x, x)
}

func (s *statistics) reset() {
	clear(s.outer)
	clear(s.dof)
}

func (s *statistics) set(dof []int, outer []float64) error {
	if len(dof) != len(s.dof) || len(outer) != len(s.outer) {
		return fmt.Errorf("wishart statistics %d/%d, want %d/%d: %w",
			len(dof), len(outer), len(s.dof), len(s.outer), ErrDimensionMismatch)
	}
	copy(s.dof, dof)
	copy(s.outer, outer)

	return nil
}

func (s *statistics) get(dof []int, outer []float64) error {
	if len(dof) != len(s.dof) || len(outer) != len(s.outer) {
		return fmt.Errorf("wishart statistics %d/%d, want %d/%d: %w",
			len(dof), len(outer), len(s.dof), len(s.outer), ErrDimensionMismatch)
	}
	copy(dof, s.dof)
	copy(outer, s.outer)

	return nil
}
