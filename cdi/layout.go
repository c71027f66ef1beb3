// SPDX-License-Identifier: MIT
// Package cdi: flat partial layout.
//
// A partial buffer is numTraits consecutive trait blocks. Each block is
//
//	Scalar: mean[d] | p
//	Full:   mean[d] | P[d·d] | V[d·d] | p
//
// where P is the row-major precision, V its (rank-aware) inverse and p the
// effective scalar precision carried for sufficient statistics.

package cdi

import (
	"fmt"
	"math"
)

// Layout describes the flat encoding of one partial buffer.
type Layout struct {
	Precision PrecisionType
	NumTraits int
	DimTrait  int
}

// MatrixLength is the number of precision values per trait block.
func (l Layout) MatrixLength() int { return l.Precision.MatrixLength(l.DimTrait) }

// TraitLength is the size of one trait block.
func (l Layout) TraitLength() int { return l.DimTrait + l.MatrixLength() }

// PartialLength is the size of a whole partial buffer.
func (l Layout) PartialLength() int { return l.NumTraits * l.TraitLength() }

// MeanOffset returns the offset of the mean of trait t.
func (l Layout) MeanOffset(t int) int { return t * l.TraitLength() }

// PrecisionOffset returns the offset of the precision of trait t. Under
// Scalar this is the single precision scalar.
func (l Layout) PrecisionOffset(t int) int { return l.MeanOffset(t) + l.DimTrait }

// VarianceOffset returns the offset of the variance matrix of trait t, or -1
// under Scalar.
func (l Layout) VarianceOffset(t int) int {
	if l.Precision != Full {
		return -1
	}

	return l.PrecisionOffset(t) + l.DimTrait*l.DimTrait
}

// ScalarOffset returns the offset of the effective scalar precision of trait t.
func (l Layout) ScalarOffset(t int) int {
	if l.Precision != Full {
		return l.PrecisionOffset(t)
	}

	return l.PrecisionOffset(t) + 2*l.DimTrait*l.DimTrait
}

func (l Layout) checkTrait(tag string, dst []float64, t int) error {
	if t < 0 || t >= l.NumTraits {
		return fmt.Errorf("%s: trait %d of %d: %w", tag, t, l.NumTraits, ErrOutOfRange)
	}
	if len(dst) != l.PartialLength() {
		return fmt.Errorf("%s: buffer length %d, want %d: %w", tag, len(dst), l.PartialLength(), ErrDimensionMismatch)
	}

	return nil
}

// TipPartial encodes an observed tip for trait t into dst.
//
// observed[g] marks dimension g as measured; a nil observed means every
// dimension is measured. Measured dimensions get infinite precision (zero
// variance); missing ones get zero precision (infinite variance) and mean 0.
// The effective scalar is +Inf when any dimension is measured and 0 otherwise.
//
// Under Scalar, a tip must be either fully measured or fully missing;
// anything else returns ErrWrongPrecision.
func (l Layout) TipPartial(dst []float64, t int, values []float64, observed []bool) error {
	const tag = "TipPartial"
	if err := l.checkTrait(tag, dst, t); err != nil {
		return err
	}
	d := l.DimTrait
	if len(values) != d || (observed != nil && len(observed) != d) {
		return fmt.Errorf("%s: %w", tag, ErrDimensionMismatch)
	}

	var seen, missing int
	for g := 0; g < d; g++ {
		if observed == nil || observed[g] {
			seen++
		} else {
			missing++
		}
	}

	mo := l.MeanOffset(t)
	for g := 0; g < d; g++ {
		if observed == nil || observed[g] {
			dst[mo+g] = values[g]
		} else {
			dst[mo+g] = 0
		}
	}

	scalar := 0.0
	if seen > 0 {
		scalar = math.Inf(1)
	}

	if l.Precision == Scalar {
		if seen > 0 && missing > 0 {
			return fmt.Errorf("%s: partially observed tip: %w", tag, ErrWrongPrecision)
		}
		dst[l.PrecisionOffset(t)] = scalar

		return nil
	}

	po, vo := l.PrecisionOffset(t), l.VarianceOffset(t)
	clear(dst[po : po+2*d*d])
	for g := 0; g < d; g++ {
		if observed == nil || observed[g] {
			dst[po+g*d+g] = math.Inf(1)
		} else {
			dst[vo+g*d+g] = math.Inf(1)
		}
	}
	dst[l.ScalarOffset(t)] = scalar

	return nil
}

// PriorPartial encodes a root prior for trait t into dst: mean and a
// precision scalar expressed relative to the diffusion precision. Under Full
// the precision block is precision·I, the variance block (1/precision)·I and
// the effective scalar is precision. A zero precision is a flat prior.
func (l Layout) PriorPartial(dst []float64, t int, mean []float64, precision float64) error {
	const tag = "PriorPartial"
	if err := l.checkTrait(tag, dst, t); err != nil {
		return err
	}
	d := l.DimTrait
	if len(mean) != d {
		return fmt.Errorf("%s: %w", tag, ErrDimensionMismatch)
	}
	if math.IsNaN(precision) || precision < 0 {
		return fmt.Errorf("%s: precision %v: %w", tag, precision, ErrInvalidPrior)
	}

	copy(dst[l.MeanOffset(t):], mean)
	if l.Precision == Scalar {
		dst[l.PrecisionOffset(t)] = precision

		return nil
	}

	po, vo := l.PrecisionOffset(t), l.VarianceOffset(t)
	clear(dst[po : po+2*d*d])
	variance := math.Inf(1)
	if precision != 0 {
		variance = 1 / precision
	}
	for g := 0; g < d; g++ {
		dst[po+g*d+g] = precision
		dst[vo+g*d+g] = variance
	}
	dst[l.ScalarOffset(t)] = precision

	return nil
}
