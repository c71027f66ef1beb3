// SPDX-License-Identifier: MIT
// Package cdi: full-precision kernel.
//
// Each trait carries a d×d precision P, its rank-aware inverse V and an
// effective scalar p. Zero precision directions (missing data) have infinite
// variance and vice versa, so missingness survives arbitrarily deep merges;
// products use the zero-annihilating kernels of package matrix.

package cdi

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zedomel/beast-mcmc/matrix"
)

type fullKernel struct {
	*state
	inv *matrix.Inverter

	// d×d scratch
	vip, vjp, pip, pjp, pk, vk, vs, ps, scaled *mat.Dense
	// d scratch
	wi, wj, sum, delta []float64
}

func newFullKernel(s *state, opts Options) (*fullKernel, error) {
	d := s.layout.DimTrait
	inv, err := matrix.NewInverter(d, matrix.WithEpsilon(opts.Epsilon))
	if err != nil {
		return nil, err
	}

	return &fullKernel{
		state:  s,
		inv:    inv,
		vip:    mat.NewDense(d, d, nil),
		vjp:    mat.NewDense(d, d, nil),
		pip:    mat.NewDense(d, d, nil),
		pjp:    mat.NewDense(d, d, nil),
		pk:     mat.NewDense(d, d, nil),
		vk:     mat.NewDense(d, d, nil),
		vs:     mat.NewDense(d, d, nil),
		ps:     mat.NewDense(d, d, nil),
		scaled: mat.NewDense(d, d, nil),
		wi:     make([]float64, d),
		wj:     make([]float64, d),
		sum:    make([]float64, d),
		delta:  make([]float64, d),
	}, nil
}

// view wraps the d×d block of buf at off without copying.
func (k *fullKernel) view(buf []float64, off int) *mat.Dense {
	d := k.layout.DimTrait

	return mat.NewDense(d, d, buf[off:off+d*d:off+d*d])
}

// store copies a d×d scratch matrix into buf at off.
func (k *fullKernel) store(buf []float64, off int, m *mat.Dense) {
	d := k.layout.DimTrait
	raw := m.RawMatrix()
	for i := 0; i < d; i++ {
		copy(buf[off+i*d:off+(i+1)*d], raw.Data[i*raw.Stride:i*raw.Stride+d])
	}
}

// inflate writes dstV = V + v·Vd and dstP = inverse(dstV).
func (k *fullKernel) inflate(dstP, dstV *mat.Dense, V mat.Matrix, v float64, vd mat.Matrix) (matrix.InversionResult, error) {
	if err := matrix.AddScaled(dstV, V, v, vd); err != nil {
		return matrix.InversionResult{}, err
	}

	return k.inv.Invert(dstP, dstV)
}

// combineMeans writes mk = Vk·(Pa·ma + Pb·mb). Directions that are exact
// (infinite precision) in the combined precision copy the exact child's mean.
func (k *fullKernel) combineMeans(mk []float64, vk, pkm, pa mat.Matrix, ma []float64, pb mat.Matrix, mb []float64) error {
	if err := matrix.MulVecSafe(k.wi, pa, ma); err != nil {
		return err
	}
	if err := matrix.MulVecSafe(k.wj, pb, mb); err != nil {
		return err
	}
	for g := range k.sum {
		k.sum[g] = k.wi[g] + k.wj[g]
	}
	if err := matrix.MulVecSafe(mk, vk, k.sum); err != nil {
		return err
	}
	for g := range mk {
		if !math.IsInf(pkm.At(g, g), 1) {
			continue
		}
		if math.IsInf(pa.At(g, g), 1) {
			mk[g] = ma[g]
		} else {
			mk[g] = mb[g]
		}
	}

	return nil
}

// informative reports whether p has a non-zero diagonal entry, i.e. the
// partial constrains at least one direction (exactly or not).
func informative(p mat.Matrix) bool {
	r, _ := p.Dims()
	for g := 0; g < r; g++ {
		if p.At(g, g) != 0 {
			return true
		}
	}

	return false
}

// exact reports whether p has an infinite diagonal entry.
func exact(p mat.Matrix) bool {
	r, _ := p.Dims()
	for g := 0; g < r; g++ {
		if math.IsInf(p.At(g, g), 1) {
			return true
		}
	}

	return false
}

// remainder is the log normalizing constant of the product of the two
// inflated children, from the three inversion results.
func (k *fullKernel) remainder(mi, mj, mk []float64, ci, cj, ck matrix.InversionResult) (float64, error) {
	ssi, err := matrix.QuadForm(mi, k.pip, mi)
	if err != nil {
		return 0, err
	}
	ssj, err := matrix.QuadForm(mj, k.pjp, mj)
	if err != nil {
		return 0, err
	}
	ssk, err := matrix.QuadForm(mk, k.pk, mk)
	if err != nil {
		return 0, err
	}
	dd := float64(ci.Rank + cj.Rank - ck.Rank)

	return -dd*LogSqrt2Pi - 0.5*(ci.LogDet+cj.LogDet+ck.LogDet) - 0.5*(ssi+ssj-ssk), nil
}

// contrastRemainder is the density of Δ = mi − mj under S = Vi' + Vj':
//
//	−rank(S)·log√(2π) − ½·log|S|₊ − ½·Δᵀ·S⁺·Δ
//
// Missing directions have infinite S and drop out.
func (k *fullKernel) contrastRemainder(mi, mj []float64) (float64, error) {
	k.vs.Add(k.vip, k.vjp)
	cs, err := k.inv.Invert(k.ps, k.vs)
	if err != nil {
		return 0, err
	}
	floats.SubTo(k.delta, mi, mj)
	ss, err := matrix.QuadForm(k.delta, k.ps, k.delta)
	if err != nil {
		return 0, err
	}

	return -float64(cs.Rank)*LogSqrt2Pi - 0.5*cs.LogDet - 0.5*ss, nil
}

// merge combines two children under the full representation.
//
// Implementation:
//   - Stage 1: inflate each child by its branch: Vx' = Vx + vx·Vd, Px' = Vx'⁻¹.
//   - Stage 2: Pk = Pi' + Pj', Vk = Pk⁻¹, mk = Vk·(Pi'·mi + Pj'·mj).
//   - Stage 3: carried scalar pk = pi' + pj' (scalar inflation rule).
//   - Stage 4: when both children constrain some direction,
//     rem = −Δd·log√(2π) − ½(ldi + ldj + ldk) − ½(SSi + SSj − SSk)
//     with Δd = ri + rj − rk and SSx the quadratic form of mx under Px'.
//     A child that is still exact after inflation (zero-length branch) makes
//     that form Inf−Inf; the contrast form is used instead. Two children
//     that are both still exact carry no contrast and add nothing, as in
//     the scalar kernel.
func (k *fullKernel) merge(op Operation, vi, vj float64, accumulate bool) error {
	l := k.layout
	d := l.DimTrait
	vd := k.diff.activeVariance()
	kb, ib, jb := k.buf.postPartial(op.Dest), k.buf.postPartial(op.ChildA), k.buf.postPartial(op.ChildB)
	remK, remI, remJ := k.buf.remainder(op.Dest), k.buf.remainder(op.ChildA), k.buf.remainder(op.ChildB)

	for t := 0; t < l.NumTraits; t++ {
		mo, po, vo, so := l.MeanOffset(t), l.PrecisionOffset(t), l.VarianceOffset(t), l.ScalarOffset(t)
		mi, mj, mk := ib[mo:mo+d], jb[mo:mo+d], kb[mo:mo+d]

		// Stage 1: inflate.
		ci, err := k.inflate(k.pip, k.vip, k.view(ib, vo), vi, vd)
		if err != nil {
			return fmt.Errorf("trait %d child %d: %w", t, op.ChildA, err)
		}
		cj, err := k.inflate(k.pjp, k.vjp, k.view(jb, vo), vj, vd)
		if err != nil {
			return fmt.Errorf("trait %d child %d: %w", t, op.ChildB, err)
		}

		// Stage 2: combine.
		k.pk.Add(k.pip, k.pjp)
		ck, err := k.inv.Invert(k.vk, k.pk)
		if err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		k.traceDegenerate("merge child", op.ChildA, t, ci)
		k.traceDegenerate("merge child", op.ChildB, t, cj)
		k.traceDegenerate("merge", op.Dest, t, ck)
		if err = k.combineMeans(mk, k.vk, k.pk, k.pip, mi, k.pjp, mj); err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		k.store(kb, po, k.pk)
		k.store(kb, vo, k.vk)

		// Stage 3: carried scalar.
		lpi, lpj := inflate(ib[so], vi), inflate(jb[so], vj)
		kb[so] = lpi + lpj

		// Stage 4: remainder.
		local := 0.0
		w, ok := contrastPrecision(lpi, lpj)
		if ok && informative(k.pip) && informative(k.pjp) {
			if exact(k.pip) || exact(k.pjp) {
				local, err = k.contrastRemainder(mi, mj)
			} else {
				local, err = k.remainder(mi, mj, mk, ci, cj, ck)
			}
			if err != nil {
				return fmt.Errorf("trait %d: %w", t, err)
			}
			if accumulate {
				k.stats.accumulate(t, mi, mj, w)
			}
		}
		remK[t] = local + remI[t] + remJ[t]
	}

	return nil
}

// root integrates the root partial against the prior. The prior variance is
// relative to the diffusion, so the total variance is Vroot + Vd·Vprior; the
// prior buffer itself is never modified.
func (k *fullKernel) root(rootIndex, priorIndex int, out []float64, accumulate bool) error {
	l := k.layout
	d := l.DimTrait
	vd := k.diff.activeVariance()
	rb, qb := k.buf.postPartial(rootIndex), k.buf.postPartial(priorIndex)
	rem := k.buf.remainder(rootIndex)

	for t := 0; t < l.NumTraits; t++ {
		mo, vo, so := l.MeanOffset(t), l.VarianceOffset(t), l.ScalarOffset(t)

		if err := matrix.MulSafe(k.scaled, vd, k.view(qb, vo)); err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		if err := matrix.AddScaled(k.vk, k.view(rb, vo), 1, k.scaled); err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		ct, err := k.inv.Invert(k.pk, k.vk)
		if err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		k.traceDegenerate("root", rootIndex, t, ct)
		floats.SubTo(k.delta, rb[mo:mo+d], qb[mo:mo+d])
		ss, err := matrix.QuadForm(k.delta, k.pk, k.delta)
		if err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		out[t] = -float64(ct.Rank)*LogSqrt2Pi - 0.5*ct.LogDet - 0.5*ss + rem[t]

		if accumulate {
			w := rb[so]
			if q := qb[so]; !math.IsInf(q, 1) {
				w, _ = contrastPrecision(w, q)
			}
			if math.IsInf(w, 1) {
				w = 0
			}
			k.stats.accumulate(t, rb[mo:mo+d], qb[mo:mo+d], w)
		}
	}

	return nil
}

// preOrder computes the pre-order partial of op.Dest from its parent's
// pre-order partial (op.ChildA) and its sibling's post-order partial
// (op.ChildB).
//
// Implementation:
//   - Stage 1: sibling inflated by its branch: Vj' = Vj + vj·Vd, Pj' = Vj'⁻¹.
//   - Stage 2: Pc = Pk + Pj', Vc = Pc⁻¹, mc = Vc·(Pk·mk + Pj'·mj).
//   - Stage 3: down the node's own branch: Vi = Vc + vi·Vd, Pi = Vi⁻¹.
//
// The carried scalar slot of the destination is left unchanged.
func (k *fullKernel) preOrder(op Operation, vi, vj float64) error {
	l := k.layout
	d := l.DimTrait
	vd := k.diff.activeVariance()
	ib := k.buf.prePartial(op.Dest)
	kb := k.buf.prePartial(op.ChildA)
	jb := k.buf.postPartial(op.ChildB)

	for t := 0; t < l.NumTraits; t++ {
		mo, po, vo := l.MeanOffset(t), l.PrecisionOffset(t), l.VarianceOffset(t)
		pkm := k.view(kb, po)

		// Stage 1: sibling.
		if _, err := k.inflate(k.pjp, k.vjp, k.view(jb, vo), vj, vd); err != nil {
			return fmt.Errorf("trait %d sibling %d: %w", t, op.ChildB, err)
		}

		// Stage 2: condition the parent on the sibling subtree.
		k.pk.Add(pkm, k.pjp)
		if _, err := k.inv.Invert(k.vk, k.pk); err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		if err := k.combineMeans(k.delta, k.vk, k.pk, pkm, kb[mo:mo+d], k.pjp, jb[mo:mo+d]); err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}

		// Stage 3: down the branch.
		if _, err := k.inflate(k.pip, k.vip, k.vk, vi, vd); err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		copy(ib[mo:mo+d], k.delta)
		k.store(ib, po, k.pip)
		k.store(ib, vo, k.vip)
	}

	return nil
}

// seedRoot writes the pre-order partial of the root as the prior expressed
// in absolute units: mean m_prior, variance Vd·Vprior and its inverse. Rows
// and columns of infinite-variance directions are cleared off the diagonal.
func (k *fullKernel) seedRoot(rootIndex, priorIndex int) error {
	l := k.layout
	d := l.DimTrait
	vd := k.diff.activeVariance()
	rb, qb := k.buf.prePartial(rootIndex), k.buf.postPartial(priorIndex)

	for t := 0; t < l.NumTraits; t++ {
		mo, po, vo, so := l.MeanOffset(t), l.PrecisionOffset(t), l.VarianceOffset(t), l.ScalarOffset(t)
		if err := matrix.MulSafe(k.vk, vd, k.view(qb, vo)); err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		for g := 0; g < d; g++ {
			if !math.IsInf(k.vk.At(g, g), 1) {
				continue
			}
			for h := 0; h < d; h++ {
				if h != g {
					k.vk.Set(g, h, 0)
					k.vk.Set(h, g, 0)
				}
			}
		}
		if _, err := k.inv.Invert(k.pk, k.vk); err != nil {
			return fmt.Errorf("trait %d: %w", t, err)
		}
		copy(rb[mo:mo+d], qb[mo:mo+d])
		k.store(rb, po, k.pk)
		k.store(rb, vo, k.vk)
		rb[so] = qb[so]
	}

	return nil
}
