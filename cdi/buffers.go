// SPDX-License-Identifier: MIT
// Package cdi: buffer arena.
//
// All partials live in two flat slices (post-order and pre-order) indexed by
// buffer handle; remainders are one scalar per (buffer, trait). A set flag
// per buffer records whether it was ever written, so reads of garbage are
// reported instead of silently propagated.

package cdi

import "fmt"

type arena struct {
	layout Layout
	count  int
	stride int

	post       []float64
	pre        []float64
	remainders []float64
	postSet    []bool
	preSet     []bool
}

func newArena(layout Layout, count int) *arena {
	stride := layout.PartialLength()

	return &arena{
		layout:     layout,
		count:      count,
		stride:     stride,
		post:       make([]float64, count*stride),
		pre:        make([]float64, count*stride),
		remainders: make([]float64, count*layout.NumTraits),
		postSet:    make([]bool, count),
		preSet:     make([]bool, count),
	}
}

func (a *arena) checkIndex(i int) error {
	if i < 0 || i >= a.count {
		return fmt.Errorf("buffer %d of %d: %w", i, a.count, ErrOutOfRange)
	}

	return nil
}

// postPartial returns the post-order view of buffer i. No bounds check.
func (a *arena) postPartial(i int) []float64 {
	return a.post[i*a.stride : (i+1)*a.stride : (i+1)*a.stride]
}

// prePartial returns the pre-order view of buffer i. No bounds check.
func (a *arena) prePartial(i int) []float64 {
	return a.pre[i*a.stride : (i+1)*a.stride : (i+1)*a.stride]
}

// remainder returns the remainder slots of buffer i, one per trait.
func (a *arena) remainder(i int) []float64 {
	n := a.layout.NumTraits

	return a.remainders[i*n : (i+1)*n : (i+1)*n]
}

// setPost copies src into buffer i and zeroes its remainders.
func (a *arena) setPost(i int, src []float64) error {
	if err := a.checkIndex(i); err != nil {
		return err
	}
	if len(src) != a.stride {
		return fmt.Errorf("partial length %d, want %d: %w", len(src), a.stride, ErrDimensionMismatch)
	}
	copy(a.postPartial(i), src)
	clear(a.remainder(i))
	a.postSet[i] = true

	return nil
}

func (a *arena) setPre(i int, src []float64) error {
	if err := a.checkIndex(i); err != nil {
		return err
	}
	if len(src) != a.stride {
		return fmt.Errorf("partial length %d, want %d: %w", len(src), a.stride, ErrDimensionMismatch)
	}
	copy(a.prePartial(i), src)
	a.preSet[i] = true

	return nil
}

func (a *arena) getPost(i int, dst []float64) error {
	if err := a.checkIndex(i); err != nil {
		return err
	}
	if len(dst) != a.stride {
		return fmt.Errorf("partial length %d, want %d: %w", len(dst), a.stride, ErrDimensionMismatch)
	}
	if !a.postSet[i] {
		return fmt.Errorf("post-order buffer %d: %w", i, ErrBufferNotSet)
	}
	copy(dst, a.postPartial(i))

	return nil
}

func (a *arena) getPre(i int, dst []float64) error {
	if err := a.checkIndex(i); err != nil {
		return err
	}
	if len(dst) != a.stride {
		return fmt.Errorf("partial length %d, want %d: %w", len(dst), a.stride, ErrDimensionMismatch)
	}
	if !a.preSet[i] {
		return fmt.Errorf("pre-order buffer %d: %w", i, ErrBufferNotSet)
	}
	copy(dst, a.prePartial(i))

	return nil
}
