// SPDX-License-Identifier: MIT
// Package cdi: scalar-precision kernel.
//
// A partial's precision is p·D, D the active diffusion precision, so each
// trait carries one scalar. Merges are closed-form; pre-order is not
// provided under this representation.

package cdi

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zedomel/beast-mcmc/matrix"
)

type scalarKernel struct {
	*state
	delta []float64 // d scratch for contrasts
}

func newScalarKernel(s *state) *scalarKernel {
	return &scalarKernel{state: s, delta: make([]float64, s.layout.DimTrait)}
}

// merge combines two children under the scalar representation.
//
// Per trait:
//
//	p'  = p/(1+p·v)        (1/v when p = +Inf)
//	pk  = pi' + pj'
//	mk  = (pi'·mi + pj'·mj)/pk
//	rem = −d·log√(2π) + ½(d·log(pi'pj'/pk) + log|D|) − ½(pi'·SSi + pj'·SSj − pk·SSk)
//
// with SSx = mxᵀ·D·mx. The local remainder is only computed when both child
// precisions are non-zero; degrees of freedom follow the same condition.
func (k *scalarKernel) merge(op Operation, vi, vj float64, accumulate bool) error {
	l := k.layout
	d := l.DimTrait
	D := k.diff.activePrecision()
	logDetD := k.diff.activeLogDet()
	kb, ib, jb := k.buf.postPartial(op.Dest), k.buf.postPartial(op.ChildA), k.buf.postPartial(op.ChildB)
	remK, remI, remJ := k.buf.remainder(op.Dest), k.buf.remainder(op.ChildA), k.buf.remainder(op.ChildB)

	for t := 0; t < l.NumTraits; t++ {
		mo, po := l.MeanOffset(t), l.PrecisionOffset(t)
		mi, mj, mk := ib[mo:mo+d], jb[mo:mo+d], kb[mo:mo+d]
		pi, pj := ib[po], jb[po]
		pip, pjp := inflate(pi, vi), inflate(pj, vj)
		pk := pip + pjp

		switch {
		case math.IsInf(pip, 1):
			copy(mk, mi)
		case math.IsInf(pjp, 1):
			copy(mk, mj)
		case pk == 0:
			clear(mk)
		default:
			for g := 0; g < d; g++ {
				mk[g] = (pip*mi[g] + pjp*mj[g]) / pk
			}
		}
		kb[po] = pk

		local := 0.0
		if pi != 0 && pj != 0 {
			rp, ok := contrastPrecision(pip, pjp)
			if ok {
				var err error
				if local, err = k.remainder(D, logDetD, mi, mj, mk, pip, pjp, pk, rp); err != nil {
					return fmt.Errorf("trait %d: %w", t, err)
				}
				if accumulate {
					k.stats.accumulate(t, mi, mj, rp)
				}
			}
		}
		remK[t] = local + remI[t] + remJ[t]
	}

	return nil
}

func (k *scalarKernel) remainder(D *mat.Dense, logDetD float64, mi, mj, mk []float64, pip, pjp, pk, rp float64) (float64, error) {
	d := float64(k.layout.DimTrait)
	head := -d*LogSqrt2Pi + 0.5*(d*math.Log(rp)+logDetD)

	// An exact child makes the three-term form Inf−Inf; use the contrast form.
	if math.IsInf(pip, 1) || math.IsInf(pjp, 1) {
		floats.SubTo(k.delta, mi, mj)
		ss, err := matrix.QuadForm(k.delta, D, k.delta)
		if err != nil {
			return 0, err
		}

		return head - 0.5*rp*ss, nil
	}

	ssi, err := matrix.QuadForm(mi, D, mi)
	if err != nil {
		return 0, err
	}
	ssj, err := matrix.QuadForm(mj, D, mj)
	if err != nil {
		return 0, err
	}
	ssk, err := matrix.QuadForm(mk, D, mk)
	if err != nil {
		return 0, err
	}

	return head - 0.5*(pip*ssi+pjp*ssj-pk*ssk), nil
}

// preOrder is not provided under the scalar representation.
func (k *scalarKernel) preOrder(Operation, float64, float64) error {
	return ErrNotImplemented
}

func (k *scalarKernel) seedRoot(int, int) error {
	return ErrNotImplemented
}

// root integrates the root partial against the prior.
//
// Per trait, with r the root scalar and q the prior scalar:
//
//	r'  = r·q/(r+q)     (r unchanged when q = +Inf)
//	ll  = −d·log√(2π) + ½(d·log r' + log|D|) − ½·r'·(Δᵀ·D·Δ),  Δ = m_root − m_prior
//
// A zero r' (flat prior or unobserved root) contributes 0; the root's
// remainder is always added.
func (k *scalarKernel) root(rootIndex, priorIndex int, out []float64, accumulate bool) error {
	l := k.layout
	d := l.DimTrait
	D := k.diff.activePrecision()
	logDetD := k.diff.activeLogDet()
	rb, qb := k.buf.postPartial(rootIndex), k.buf.postPartial(priorIndex)
	rem := k.buf.remainder(rootIndex)

	for t := 0; t < l.NumTraits; t++ {
		mo, po := l.MeanOffset(t), l.PrecisionOffset(t)
		r, q := rb[po], qb[po]
		if !math.IsInf(q, 1) {
			r, _ = contrastPrecision(r, q)
		}
		floats.SubTo(k.delta, rb[mo:mo+d], qb[mo:mo+d])

		ll := 0.0
		if r > 0 && !math.IsInf(r, 1) {
			ss, err := matrix.QuadForm(k.delta, D, k.delta)
			if err != nil {
				return fmt.Errorf("trait %d: %w", t, err)
			}
			ll = -float64(d)*LogSqrt2Pi + 0.5*(float64(d)*math.Log(r)+logDetD) - 0.5*r*ss
		}
		out[t] = ll + rem[t]

		if accumulate {
			w := r
			if math.IsInf(w, 1) {
				w = 0
			}
			k.stats.accumulate(t, rb[mo:mo+d], qb[mo:mo+d], w)
		}
	}

	return nil
}
