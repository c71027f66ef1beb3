// SPDX-License-Identifier: MIT
// Package impute: drawing missing tip values.

package impute

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distmv"

	"github.com/zedomel/beast-mcmc/cdi"
)

// Sampler draws missing values from Conditional distributions.
// A Sampler with a nil source fills conditional means instead of draws.
type Sampler struct {
	src rand.Source
}

// NewSampler returns a Sampler drawing from src; nil src selects means.
func NewSampler(src rand.Source) *Sampler { return &Sampler{src: src} }

// Fill overwrites values at c.Missing with a draw from c (or its mean).
// A degenerate conditional covariance (zero variance, e.g. a zero-length tip
// branch) also yields the mean.
func (s *Sampler) Fill(values []float64, c *Conditional) error {
	for _, g := range c.Missing {
		if g < 0 || g >= len(values) {
			return fmt.Errorf("impute: Fill: %w", ErrDimensionMismatch)
		}
	}
	if len(c.Missing) == 0 {
		return nil
	}

	draw := c.Mean
	if s.src != nil {
		if dist, ok := distmv.NewNormal(c.Mean, c.Covariance, s.src); ok {
			draw = dist.Rand(nil)
		}
	}
	for k, g := range c.Missing {
		values[g] = draw[k]
	}

	return nil
}

// Operator replaces the missing entries of tip trait values with draws
// conditioned on everything else in the tree, using the pre-order partials
// held by an Integrator (tip i reads pre-order buffer i).
type Operator struct {
	integrator *cdi.Integrator
	sampler    *Sampler
	partial    []float64
}

// NewOperator binds an Operator to a full-precision Integrator.
func NewOperator(in *cdi.Integrator, s *Sampler) (*Operator, error) {
	if in.Layout().Precision != cdi.Full {
		return nil, ErrNotFull
	}

	return &Operator{integrator: in, sampler: s, partial: make([]float64, in.Layout().PartialLength())}, nil
}

// Apply fills values[tip] (numTraits·dimTrait, trait-major) wherever
// observed[tip] is false. Tips are buffers 0..len(values)-1 and their
// pre-order records must be current.
func (o *Operator) Apply(values [][]float64, observed [][]bool) error {
	l := o.integrator.Layout()
	d, n := l.DimTrait, l.NumTraits
	if len(values) != len(observed) {
		return fmt.Errorf("impute: Apply: %w", ErrDimensionMismatch)
	}

	for tip := range values {
		if len(values[tip]) != n*d || len(observed[tip]) != n*d {
			return fmt.Errorf("impute: Apply tip %d: %w", tip, ErrDimensionMismatch)
		}
		if allObserved(observed[tip]) {
			continue
		}
		if err := o.integrator.GetPreOrderPartial(tip, o.partial); err != nil {
			return fmt.Errorf("impute: Apply tip %d: %w", tip, err)
		}
		for t := 0; t < n; t++ {
			mean, variance, err := FromPreOrder(l, o.partial, t)
			if err != nil {
				return fmt.Errorf("impute: Apply tip %d: %w", tip, err)
			}
			x, m := values[tip][t*d:(t+1)*d], observed[tip][t*d:(t+1)*d]
			c, err := Condition(mean, variance, x, m)
			if err != nil {
				return fmt.Errorf("impute: Apply tip %d trait %d: %w", tip, t, err)
			}
			if err = o.sampler.Fill(x, c); err != nil {
				return fmt.Errorf("impute: Apply tip %d trait %d: %w", tip, t, err)
			}
		}
	}

	return nil
}

func allObserved(m []bool) bool {
	for _, ok := range m {
		if !ok {
			return false
		}
	}

	return true
}
