// SPDX-License-Identifier: MIT
// Package matrix: rank-aware inversion for covariance and precision matrices.
//
// Purpose:
//   - Invert symmetric variance/precision matrices in which whole directions
//     may be missing (infinite variance, zero precision) or exact (zero
//     variance, infinite precision), without failing.
//   - Report the observation class, effective rank and log pseudo-determinant
//     of the source through InversionResult instead of returning an error.
//
// Conventions (per diagonal index i of the source):
//   - src[i,i] == ±Inf → index excluded, dst row/col i = 0.
//   - src[i,i] == 0    → index excluded, dst[i,i] = +Inf, rest of row/col 0.
//   - otherwise        → index retained; the retained block is inverted via a
//     symmetric eigendecomposition, eigenvalues <= eps*max|λ| are dropped.
//
// Determinism:
//   - Fixed loop orders; the result depends only on src and the options.

package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Operation name constants for unified error wrapping.
const (
	opInvert      = "Invert"
	opNewInverter = "NewInverter"
)

// matrixErrorf wraps err with an operation tag, preserving the original error via %w.
// Use only when err != nil.
func matrixErrorf(tag string, err error) error {
	return fmt.Errorf("%s: %w", tag, err)
}

// Inverter performs repeated rank-aware inversions of n×n matrices while
// reusing its scratch storage. An Inverter is NOT safe for concurrent use;
// give each goroutine its own.
type Inverter struct {
	n    int
	opts Options

	keep    []int     // retained indices of the current source
	subData []float64 // backing storage for the retained block (n*n)
	vals    []float64 // eigenvalues (n)
	vecs    mat.Dense // eigenvectors, reused across calls
	eig     mat.EigenSym
}

// NewInverter allocates an Inverter for n×n matrices.
// Errors: ErrInvalidDimensions if n <= 0.
// Complexity: O(n²) memory.
func NewInverter(n int, opts ...Option) (*Inverter, error) {
	if n <= 0 {
		return nil, matrixErrorf(opNewInverter, ErrInvalidDimensions)
	}

	return &Inverter{
		n:       n,
		opts:    gatherOptions(opts...),
		keep:    make([]int, 0, n),
		subData: make([]float64, n*n),
		vals:    make([]float64, n),
	}, nil
}

// Dim returns the matrix dimension served by the Inverter.
func (inv *Inverter) Dim() int { return inv.n }

// Invert writes the rank-aware inverse of src into dst and reports what it saw.
//
// Implementation:
//   - Stage 1: validate shapes and reject NaN on the diagonal.
//   - Stage 2: classify diagonal entries into retained / infinite / zero.
//   - Stage 3: gather the retained block (symmetrized) and eigendecompose it.
//   - Stage 4: scatter the pseudo-inverse back and fill degenerate entries.
//
// Errors:
//   - ErrNonSquare, ErrDimensionMismatch on shape violations.
//   - ErrNaN when a diagonal entry is NaN.
//   - ErrNonFinite when the retained block holds an infinite off-diagonal entry.
//   - ErrEigenFailed when the decomposition does not converge.
//
// Complexity: O(k³) for k retained indices.
func (inv *Inverter) Invert(dst *mat.Dense, src mat.Matrix) (InversionResult, error) {
	// Stage 1: shapes.
	if err := ValidateSquare(src); err != nil {
		return InversionResult{}, matrixErrorf(opInvert, err)
	}
	if r, _ := src.Dims(); r != inv.n {
		return InversionResult{}, matrixErrorf(opInvert, ErrDimensionMismatch)
	}
	if dst == nil {
		return InversionResult{}, matrixErrorf(opInvert, ErrNilMatrix)
	}
	if r, c := dst.Dims(); r != inv.n || c != inv.n {
		return InversionResult{}, matrixErrorf(opInvert, ErrDimensionMismatch)
	}

	// Stage 2: classify the diagonal.
	n := inv.n
	dst.Zero()
	inv.keep = inv.keep[:0]
	var (
		i, j int
		d    float64
	)
	for i = 0; i < n; i++ {
		d = src.At(i, i)
		switch {
		case math.IsNaN(d):
			return InversionResult{}, matrixErrorf(opInvert, ErrNaN)
		case math.IsInf(d, 0):
			// missing direction: contributes nothing to the inverse
		case d == 0:
			dst.Set(i, i, math.Inf(1))
		default:
			inv.keep = append(inv.keep, i)
		}
	}

	k := len(inv.keep)
	if k == 0 {
		return InversionResult{Code: NotObserved}, nil
	}

	// Stage 3: gather and decompose the retained block.
	sub := mat.NewSymDense(k, inv.subData[:k*k])
	var v float64
	for i = 0; i < k; i++ {
		for j = i; j < k; j++ {
			v = 0.5 * (src.At(inv.keep[i], inv.keep[j]) + src.At(inv.keep[j], inv.keep[i]))
			if math.IsInf(v, 0) || math.IsNaN(v) {
				return InversionResult{}, matrixErrorf(opInvert, ErrNonFinite)
			}
			sub.SetSym(i, j, v)
		}
	}

	rank, logDet, err := inv.pseudoInverse(dst, sub, k)
	if err != nil {
		return InversionResult{}, matrixErrorf(opInvert, err)
	}

	// Stage 4: classify.
	res := InversionResult{Rank: rank, LogDet: logDet}
	switch {
	case rank == 0:
		res.Code = NotObserved
		res.LogDet = 0
	case rank == n:
		res.Code = FullyObserved
	default:
		res.Code = PartiallyObserved
	}

	return res, nil
}

// pseudoInverse eigendecomposes the k×k retained block and scatters
// Σ_l v_l v_lᵀ / λ_l (over retained eigenvalues) into dst at inv.keep.
func (inv *Inverter) pseudoInverse(dst *mat.Dense, sub *mat.SymDense, k int) (int, float64, error) {
	// 1×1 fast path: no decomposition needed.
	if k == 1 {
		d := sub.At(0, 0)
		if d <= 0 {
			return 0, 0, nil
		}
		dst.Set(inv.keep[0], inv.keep[0], 1/d)

		return 1, math.Log(d), nil
	}

	if ok := inv.eig.Factorize(sub, true); !ok {
		return 0, 0, ErrEigenFailed
	}
	vals := inv.eig.Values(inv.vals[:k])
	inv.vecs.Reset()
	inv.eig.VectorsTo(&inv.vecs)

	var maxAbs float64
	for _, l := range vals {
		maxAbs = math.Max(maxAbs, math.Abs(l))
	}
	tol := inv.opts.eps * maxAbs

	var (
		rank    int
		logDet  float64
		a, b, l int
		sum     float64
	)
	for l = 0; l < k; l++ {
		if vals[l] > tol {
			rank++
			logDet += math.Log(vals[l])
		}
	}
	for a = 0; a < k; a++ {
		for b = a; b < k; b++ {
			sum = 0
			for l = 0; l < k; l++ {
				if vals[l] <= tol {
					continue
				}
				sum += inv.vecs.At(a, l) * inv.vecs.At(b, l) / vals[l]
			}
			dst.Set(inv.keep[a], inv.keep[b], sum)
			dst.Set(inv.keep[b], inv.keep[a], sum)
		}
	}

	return rank, logDet, nil
}

// Invert is a convenience wrapper that allocates a transient Inverter sized
// to src. Prefer a long-lived Inverter in hot loops.
func Invert(dst *mat.Dense, src mat.Matrix, opts ...Option) (InversionResult, error) {
	if err := ValidateSquare(src); err != nil {
		return InversionResult{}, matrixErrorf(opInvert, err)
	}
	n, _ := src.Dims()
	inv, err := NewInverter(n, opts...)
	if err != nil {
		return InversionResult{}, err
	}

	return inv.Invert(dst, src)
}
