// SPDX-License-Identifier: MIT
// Package impute: Gaussian conditioning of a tip on its observed dimensions.

package impute

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/zedomel/beast-mcmc/cdi"
	"github.com/zedomel/beast-mcmc/matrix"
)

var (
	// ErrDimensionMismatch indicates slices that disagree with the trait dimension.
	ErrDimensionMismatch = errors.New("impute: dimension mismatch")

	// ErrNotFull indicates a layout without per-dimension variances.
	ErrNotFull = errors.New("impute: full precision layout required")

	// ErrNonFinite indicates a pre-order record with a non-finite mean or variance.
	ErrNonFinite = errors.New("impute: non-finite pre-order record")
)

// Conditional is the distribution of the missing dimensions of one tip
// trait given its observed dimensions.
type Conditional struct {
	Missing    []int         // missing dimension indices, ascending
	Mean       []float64     // conditional mean, len(Missing)
	Covariance *mat.SymDense // conditional covariance; nil when nothing is missing
}

// FromPreOrder extracts the mean and absolute variance of trait t from a
// pre-order partial laid out by l.
func FromPreOrder(l cdi.Layout, partial []float64, t int) ([]float64, *mat.SymDense, error) {
	if l.Precision != cdi.Full {
		return nil, nil, ErrNotFull
	}
	if t < 0 || t >= l.NumTraits || len(partial) != l.PartialLength() {
		return nil, nil, fmt.Errorf("impute: FromPreOrder(trait %d): %w", t, ErrDimensionMismatch)
	}
	d := l.DimTrait
	mo, vo := l.MeanOffset(t), l.VarianceOffset(t)
	mean := append([]float64(nil), partial[mo:mo+d]...)
	v := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			x := 0.5 * (partial[vo+i*d+j] + partial[vo+j*d+i])
			if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(mean[i]) {
				return nil, nil, fmt.Errorf("impute: FromPreOrder(trait %d): %w", t, ErrNonFinite)
			}
			v.SetSym(i, j, x)
		}
	}

	return mean, v, nil
}

// Condition returns the distribution of the unobserved dimensions of
// N(mean, variance) given values at the observed ones:
//
//	μ_m|o = μ_m + V_mo·V_oo⁺·(x_o − μ_o)
//	V_m|o = V_mm − V_mo·V_oo⁺·V_om
//
// V_oo⁺ is the rank-aware inverse from package matrix, so exactly
// duplicated observed directions do not fail.
func Condition(mean []float64, variance mat.Symmetric, values []float64, observed []bool) (*Conditional, error) {
	d := len(mean)
	if variance.SymmetricDim() != d || len(values) != d || len(observed) != d {
		return nil, fmt.Errorf("impute: Condition: %w", ErrDimensionMismatch)
	}

	var obs, miss []int
	for g := 0; g < d; g++ {
		if observed[g] {
			obs = append(obs, g)
		} else {
			miss = append(miss, g)
		}
	}
	c := &Conditional{Missing: miss, Mean: make([]float64, len(miss))}
	if len(miss) == 0 {
		return c, nil
	}
	for k, g := range miss {
		c.Mean[k] = mean[g]
	}
	c.Covariance = mat.NewSymDense(len(miss), nil)
	for a, g := range miss {
		for b := a; b < len(miss); b++ {
			c.Covariance.SetSym(a, b, variance.At(g, miss[b]))
		}
	}
	if len(obs) == 0 {
		return c, nil
	}

	no, nm := len(obs), len(miss)
	voo := mat.NewDense(no, no, nil)
	vmo := mat.NewDense(nm, no, nil)
	resid := mat.NewVecDense(no, nil)
	for a, g := range obs {
		resid.SetVec(a, values[g]-mean[g])
		for b, h := range obs {
			voo.Set(a, b, variance.At(g, h))
		}
		for b, h := range miss {
			vmo.Set(b, a, variance.At(h, g))
		}
	}
	poo := mat.NewDense(no, no, nil)
	if _, err := matrix.Invert(poo, voo); err != nil {
		return nil, fmt.Errorf("impute: Condition: %w", err)
	}

	var gain mat.Dense // V_mo·V_oo⁺
	gain.Mul(vmo, poo)
	var shift mat.VecDense
	shift.MulVec(&gain, resid)
	var reduce mat.Dense
	reduce.Mul(&gain, vmo.T())
	for a := 0; a < nm; a++ {
		c.Mean[a] += shift.AtVec(a)
		for b := a; b < nm; b++ {
			c.Covariance.SetSym(a, b, c.Covariance.At(a, b)-0.5*(reduce.At(a, b)+reduce.At(b, a)))
		}
	}

	return c, nil
}
