// SPDX-License-Identifier: MIT
// Package cdi: diffusion cache.
//
// Holds up to diffusionCount precision matrices (each with its cached
// inverse and log-determinant), the per-branch scalar variances indexed by
// matrix slot, and the index of the active entry used by every merge.

package cdi

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/zedomel/beast-mcmc/matrix"
)

type diffusionCache struct {
	dim   int
	count int

	precisions []float64 // count·d·d, row-major
	variances  []float64 // count·d·d, inverse of precisions
	logDets    []float64 // log det of each precision
	set        []bool

	branch    []float64 // scalar variance per matrix slot
	branchSet []bool

	active int // -1 until UpdateDiffusionMatrices succeeds

	symTol float64 // accepted |P[i,j] − P[j,i]|
}

func newDiffusionCache(dim, count, slots int) *diffusionCache {
	return &diffusionCache{
		dim:        dim,
		count:      count,
		precisions: make([]float64, count*dim*dim),
		variances:  make([]float64, count*dim*dim),
		logDets:    make([]float64, count),
		set:        make([]bool, count),
		branch:     make([]float64, slots),
		branchSet:  make([]bool, slots),
		active:     -1,
		symTol:     matrix.DefaultSymmetryTolerance,
	}
}

func (c *diffusionCache) block(data []float64, i int) []float64 {
	n := c.dim * c.dim

	return data[i*n : (i+1)*n : (i+1)*n]
}

// setPrecision validates precision as symmetric positive definite and caches
// its inverse and log-determinant in slot index.
//
// Implementation:
//   - Stage 1: no NaN, symmetry within symTol (matrix.ValidateNoNaN,
//     matrix.ValidateSymmetric).
//   - Stage 2: Cholesky factorization; failure means not positive definite.
//   - Stage 3: cache precision, variance, log-determinant.
func (c *diffusionCache) setPrecision(index int, precision []float64) error {
	if index < 0 || index >= c.count {
		return fmt.Errorf("diffusion %d of %d: %w", index, c.count, ErrOutOfRange)
	}
	d := c.dim
	if len(precision) != d*d {
		return fmt.Errorf("precision length %d, want %d: %w", len(precision), d*d, ErrDimensionMismatch)
	}

	// Stage 1: entries and symmetry.
	dense := mat.NewDense(d, d, append([]float64(nil), precision...))
	if err := matrix.ValidateNoNaN(dense); err != nil {
		return fmt.Errorf("diffusion %d: %w: %w", index, ErrNotPositiveDefinite, err)
	}
	if err := matrix.ValidateSymmetric(dense, matrix.WithSymmetryTolerance(c.symTol)); err != nil {
		return fmt.Errorf("diffusion %d: %w: %w", index, ErrNotPositiveDefinite, err)
	}

	// Stage 2: positive definiteness.
	sym := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			sym.SetSym(i, j, 0.5*(precision[i*d+j]+precision[j*d+i]))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return fmt.Errorf("diffusion %d: %w", index, ErrNotPositiveDefinite)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return fmt.Errorf("diffusion %d: %w: %w", index, ErrNotPositiveDefinite, err)
	}

	// Stage 3: cache.
	p, v := c.block(c.precisions, index), c.block(c.variances, index)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			p[i*d+j] = sym.At(i, j)
			v[i*d+j] = inv.At(i, j)
		}
	}
	c.logDets[index] = chol.LogDet()
	c.set[index] = true

	return nil
}

// update writes the branch variances and selects the active diffusion.
// All arguments are validated before anything is written.
func (c *diffusionCache) update(precisionIndex int, branchIndices []int, edgeLengths []float64) error {
	if precisionIndex < 0 || precisionIndex >= c.count {
		return fmt.Errorf("diffusion %d of %d: %w", precisionIndex, c.count, ErrOutOfRange)
	}
	if !c.set[precisionIndex] {
		return fmt.Errorf("diffusion %d: %w", precisionIndex, ErrDiffusionNotSet)
	}
	if len(branchIndices) != len(edgeLengths) {
		return fmt.Errorf("%d branch indices, %d edge lengths: %w", len(branchIndices), len(edgeLengths), ErrDimensionMismatch)
	}
	for k, idx := range branchIndices {
		if idx < 0 || idx >= len(c.branch) {
			return fmt.Errorf("branch slot %d of %d: %w", idx, len(c.branch), ErrOutOfRange)
		}
		if l := edgeLengths[k]; math.IsNaN(l) || math.IsInf(l, 0) || l < 0 {
			return fmt.Errorf("branch slot %d length %v: %w", idx, l, ErrInvalidEdgeLength)
		}
	}

	for k, idx := range branchIndices {
		c.branch[idx] = edgeLengths[k]
		c.branchSet[idx] = true
	}
	c.active = precisionIndex

	return nil
}

// variance returns the scalar variance of matrix slot i.
func (c *diffusionCache) variance(i int) (float64, error) {
	if i < 0 || i >= len(c.branch) {
		return 0, fmt.Errorf("branch slot %d of %d: %w", i, len(c.branch), ErrOutOfRange)
	}
	if !c.branchSet[i] {
		return 0, fmt.Errorf("branch slot %d: %w", i, ErrVarianceNotSet)
	}

	return c.branch[i], nil
}

// activePrecision returns a d×d view of the active precision.
func (c *diffusionCache) activePrecision() *mat.Dense {
	return mat.NewDense(c.dim, c.dim, c.block(c.precisions, c.active))
}

// activeVariance returns a d×d view of the active variance.
func (c *diffusionCache) activeVariance() *mat.Dense {
	return mat.NewDense(c.dim, c.dim, c.block(c.variances, c.active))
}

func (c *diffusionCache) activeLogDet() float64 { return c.logDets[c.active] }
