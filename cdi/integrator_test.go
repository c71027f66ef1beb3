// SPDX-License-Identifier: MIT
package cdi_test

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/zedomel/beast-mcmc/cdi"
	"github.com/zedomel/beast-mcmc/matrix"
)

const twoLeavesLogLikelihood = -2.2655121234846454

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := cdi.New(cdi.PrecisionType(7), 1, 1, 2, 1)
	require.ErrorIs(t, err, cdi.ErrInvalidPrecision)

	for _, dims := range [][4]int{{0, 1, 1, 1}, {1, 0, 1, 1}, {1, 1, 0, 1}, {1, 1, 1, 0}} {
		_, err = cdi.New(cdi.Full, dims[0], dims[1], dims[2], dims[3])
		require.ErrorIs(t, err, cdi.ErrInvalidDimensions, "dims=%v", dims)
	}

	in, err := cdi.New(cdi.Full, 2, 3, 5, 1)
	require.NoError(t, err)
	det := in.Details()
	assert.Equal(t, cdi.Details{
		Precision: cdi.Full, NumTraits: 2, DimTrait: 3, BufferCount: 5, DiffusionCount: 1, PartialLength: 2 * (3 + 19),
	}, det)
	assert.Equal(t, "precision=full traits=2 dim=3 buffers=5 diffusions=1 partial=44", det.String())
	assert.True(t, in.RequiresDataAugmentation())

	sc, err := cdi.New(cdi.Scalar, 1, 3, 5, 1)
	require.NoError(t, err)
	assert.False(t, sc.RequiresDataAugmentation())
}

// TestTwoLeaves pins the hand-computed value for tips 1 and 3 on unit
// branches with a flat prior.
func TestTwoLeaves(t *testing.T) {
	t.Parallel()

	for _, p := range []cdi.PrecisionType{cdi.Scalar, cdi.Full} {
		t.Run(p.String(), func(t *testing.T) {
			ll, in, tr := twoLeaves.logLikelihood(t, p)
			assert.InDelta(t, twoLeavesLogLikelihood, ll, 1e-12)

			rem := make([]float64, 1)
			require.NoError(t, in.Remainders(tr.Root(), rem))
			assert.InDelta(t, twoLeavesLogLikelihood, rem[0], 1e-12)

			root := make([]float64, in.Layout().PartialLength())
			require.NoError(t, in.GetPostOrderPartial(tr.Root(), root))
			assert.InDelta(t, 2.0, root[0], 1e-12)
			assert.InDelta(t, 2.0, root[in.Layout().ScalarOffset(0)], 1e-12)

			dof := make([]int, 1)
			outer := make([]float64, 1)
			require.NoError(t, in.WishartStatistics(dof, outer))
			assert.Equal(t, 2, dof[0])
			assert.InDelta(t, 2.0, outer[0], 1e-12)
		})
	}
}

// TestAgainstMultivariateNormal compares both representations with the
// density of the stacked tip values under (C + J/prior) ⊗ Σ.
func TestAgainstMultivariateNormal(t *testing.T) {
	t.Parallel()

	want := threeTips.bruteForce(t)
	for _, p := range []cdi.PrecisionType{cdi.Scalar, cdi.Full} {
		ll, _, _ := threeTips.logLikelihood(t, p)
		assert.InDelta(t, want, ll, 1e-9, "precision=%s", p)
	}
}

// TestMissingData covers a fully missing tip (both representations) and a
// partially observed tip (full only).
func TestMissingData(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	absent := threeTips.withTips([]float64{1.0, -0.5}, []float64{2.5, 0.3}, []float64{nan, nan})
	want := absent.bruteForce(t)
	for _, p := range []cdi.PrecisionType{cdi.Scalar, cdi.Full} {
		ll, in, _ := absent.logLikelihood(t, p)
		assert.InDelta(t, want, ll, 1e-9, "precision=%s", p)

		dof := make([]int, 1)
		require.NoError(t, in.WishartStatistics(dof, make([]float64, 4)))
		assert.Equal(t, 2, dof[0], "precision=%s", p)
	}

	partial := threeTips.withTips([]float64{1.0, nan}, []float64{2.5, 0.3}, []float64{nan, 0.8})
	ll, _, _ := partial.logLikelihood(t, cdi.Full)
	assert.InDelta(t, partial.bruteForce(t), ll, 1e-9)
}

// TestFlatPriorAgreement checks that both representations agree when the
// prior carries no information.
func TestFlatPriorAgreement(t *testing.T) {
	t.Parallel()

	flat := threeTips
	flat.prior = 0
	scalar, _, _ := flat.logLikelihood(t, cdi.Scalar)
	full, _, _ := flat.logLikelihood(t, cdi.Full)
	assert.InDelta(t, scalar, full, 1e-9)
	assert.False(t, math.IsNaN(full))
}

// TestChildOrderInvariance swaps the children of every operation.
func TestChildOrderInvariance(t *testing.T) {
	t.Parallel()

	for _, p := range []cdi.PrecisionType{cdi.Scalar, cdi.Full} {
		want, _, _ := threeTips.logLikelihood(t, p)

		in, tr := threeTips.load(t, p)
		ops, n, err := tr.PostOrderOperations()
		require.NoError(t, err)
		for k := 0; k < n; k++ {
			b := k * cdi.OperationTupleSize
			ops[b+1], ops[b+2], ops[b+3], ops[b+4] = ops[b+3], ops[b+4], ops[b+1], ops[b+2]
		}
		require.NoError(t, in.UpdatePostOrderPartials(ops, n, false))
		out := make([]float64, 1)
		require.NoError(t, in.CalculateRootLogLikelihood(tr.Root(), tr.NumNodes(), out, false))
		assert.InDelta(t, want, out[0], 1e-12, "precision=%s", p)
	}
}

// TestZeroLengthBranch keeps an exact tip exact across a zero-length branch.
func TestZeroLengthBranch(t *testing.T) {
	t.Parallel()

	f := twoLeaves
	f.newick = "(A:0,B:1);"
	f.prior = 1
	for _, p := range []cdi.PrecisionType{cdi.Scalar, cdi.Full} {
		ll, in, tr := f.logLikelihood(t, p)
		assert.InDelta(t, f.bruteForce(t), ll, 1e-9, "precision=%s", p)

		root := make([]float64, in.Layout().PartialLength())
		require.NoError(t, in.GetPostOrderPartial(tr.Root(), root))
		assert.Equal(t, 1.0, root[0], "root mean pinned to the exact tip, precision=%s", p)
	}

	// Two exact siblings with different values carry no contrast.
	g := twoLeaves.withTips([]float64{1}, []float64{2}, []float64{3})
	g.newick = "((A:0,B:0):1,C:1);"
	g.prior = 1
	var lls []float64
	for _, p := range []cdi.PrecisionType{cdi.Scalar, cdi.Full} {
		ll, in, _ := g.logLikelihood(t, p)
		require.False(t, math.IsInf(ll, 0) || math.IsNaN(ll), "precision=%s ll=%v", p, ll)
		lls = append(lls, ll)

		dof, outer := make([]int, 1), make([]float64, 1)
		require.NoError(t, in.WishartStatistics(dof, outer))
		assert.Equal(t, []int{2}, dof, "precision=%s", p)
	}
	assert.InDelta(t, lls[0], lls[1], 1e-12)
}

// TestPreOrderMatchesConditional compares tip pre-order partials with the
// conditional distribution of each tip given all the others.
func TestPreOrderMatchesConditional(t *testing.T) {
	t.Parallel()

	f := threeTips
	d := f.dim()
	_, in, tr := f.logLikelihood(t, cdi.Full)
	require.NoError(t, in.SeedPreOrderRoot(tr.Root(), tr.NumNodes()))
	ops, n, err := tr.PreOrderOperations()
	require.NoError(t, err)
	require.NoError(t, in.UpdatePreOrderPartials(ops, n))

	joint := f.jointCovariance(t)
	l := in.Layout()
	buf := make([]float64, l.PartialLength())
	for tip := 0; tip < tr.NumTips(); tip++ {
		require.NoError(t, in.GetPreOrderPartial(tip, buf))
		wantMean, wantVar := conditional(t, f, joint, tip)

		mo, vo := l.MeanOffset(0), l.VarianceOffset(0)
		assert.InDeltaSlice(t, wantMean, buf[mo:mo+d], 1e-9, "tip %d mean", tip)
		got := mat.NewDense(d, d, buf[vo:vo+d*d])
		assert.True(t, mat.EqualApprox(wantVar, got, 1e-9), "tip %d variance %v", tip, mat.Formatted(got))
	}
}

// conditional returns the mean and variance of tip given every other tip.
func conditional(t *testing.T, f fixture, joint *mat.SymDense, tip int) ([]float64, *mat.Dense) {
	t.Helper()
	d := f.dim()
	n := len(f.tips)
	var own, rest []int
	for k := 0; k < n*d; k++ {
		if k/d == tip {
			own = append(own, k)
		} else {
			rest = append(rest, k)
		}
	}
	pick := func(rows, cols []int) *mat.Dense {
		m := mat.NewDense(len(rows), len(cols), nil)
		for a, r := range rows {
			for b, c := range cols {
				m.Set(a, b, joint.At(r, c))
			}
		}
		return m
	}
	soo, sor, srr := pick(own, own), pick(own, rest), pick(rest, rest)

	var inv mat.Dense
	require.NoError(t, inv.Inverse(srr))
	var gain mat.Dense
	gain.Mul(sor, &inv)

	resid := mat.NewVecDense(len(rest), nil)
	for a, k := range rest {
		resid.SetVec(a, f.tips[k/d][k%d]-f.mean[k%d])
	}
	var shift mat.VecDense
	shift.MulVec(&gain, resid)
	mean := make([]float64, d)
	for g := 0; g < d; g++ {
		mean[g] = f.mean[g] + shift.AtVec(g)
	}

	var reduce, v mat.Dense
	reduce.Mul(&gain, sor.T())
	v.Sub(soo, &reduce)

	return mean, &v
}

func TestPreOrder_Errors(t *testing.T) {
	t.Parallel()

	sc, tr := threeTips.load(t, cdi.Scalar)
	require.ErrorIs(t, sc.UpdatePreOrderPartial(tr.Root(), 3, 3, 2, 2), cdi.ErrNotImplemented)
	require.ErrorIs(t, sc.SeedPreOrderRoot(tr.Root(), tr.NumNodes()), cdi.ErrNotImplemented)

	in, tr := threeTips.load(t, cdi.Full)
	root := tr.Root()
	// parent pre-order record not set yet
	require.ErrorIs(t, in.UpdatePreOrderPartial(root, 3, 3, 2, 2), cdi.ErrBufferNotSet)
	// root post-order partial not computed yet
	require.ErrorIs(t, in.SeedPreOrderRoot(root, tr.NumNodes()), cdi.ErrBufferNotSet)

	ops, n, err := tr.PostOrderOperations()
	require.NoError(t, err)
	require.NoError(t, in.UpdatePostOrderPartials(ops, n, false))
	require.NoError(t, in.SeedPreOrderRoot(root, tr.NumNodes()))
	require.ErrorIs(t, in.UpdatePreOrderPartial(root, root, 3, 2, 2), cdi.ErrAliasedBuffer)
	require.ErrorIs(t, in.UpdatePreOrderPartial(root, 3, 3, 99, 2), cdi.ErrOutOfRange)
	require.ErrorIs(t, in.UpdatePreOrderPartials([]int{root, 3, 3}, 1), cdi.ErrDimensionMismatch)
	require.NoError(t, in.UpdatePreOrderPartial(root, 3, 3, 2, 2))
}

func TestPostOrder_Errors(t *testing.T) {
	t.Parallel()

	in, err := cdi.New(cdi.Scalar, 1, 1, 4, 2)
	require.NoError(t, err)
	l := in.Layout()
	buf := make([]float64, l.PartialLength())
	require.NoError(t, l.TipPartial(buf, 0, []float64{1}, nil))
	require.NoError(t, in.SetPostOrderPartial(0, buf))
	require.NoError(t, in.SetPostOrderPartial(1, buf))

	op := []int{2, 0, 0, 1, 1}
	require.ErrorIs(t, in.UpdatePostOrderPartials(op, 1, false), cdi.ErrNoActiveDiffusion)

	require.ErrorIs(t, in.UpdateDiffusionMatrices(1, []int{0}, []float64{1}), cdi.ErrDiffusionNotSet)
	require.ErrorIs(t, in.UpdateDiffusionMatrices(5, []int{0}, []float64{1}), cdi.ErrOutOfRange)
	require.NoError(t, in.SetDiffusionPrecision(0, []float64{1}))
	require.ErrorIs(t, in.UpdateDiffusionMatrices(0, []int{0, 1}, []float64{1, -1}), cdi.ErrInvalidEdgeLength)
	require.ErrorIs(t, in.UpdateDiffusionMatrices(0, []int{0, 1}, []float64{1, math.Inf(1)}), cdi.ErrInvalidEdgeLength)
	require.ErrorIs(t, in.UpdateDiffusionMatrices(0, []int{0}, []float64{1, 2}), cdi.ErrDimensionMismatch)

	// a rejected update writes nothing, so slot 0 is still unset
	require.NoError(t, in.UpdateDiffusionMatrices(0, []int{1}, []float64{1}))
	require.ErrorIs(t, in.UpdatePostOrderPartials(op, 1, false), cdi.ErrVarianceNotSet)
	require.NoError(t, in.UpdateDiffusionMatrices(0, []int{0}, []float64{1}))

	require.ErrorIs(t, in.UpdatePostOrderPartials([]int{0, 0, 0, 1, 1}, 1, false), cdi.ErrAliasedBuffer)
	require.ErrorIs(t, in.UpdatePostOrderPartials([]int{2, 0, 0, 3, 1}, 1, false), cdi.ErrBufferNotSet)
	require.ErrorIs(t, in.UpdatePostOrderPartials([]int{9, 0, 0, 1, 1}, 1, false), cdi.ErrOutOfRange)
	require.ErrorIs(t, in.UpdatePostOrderPartials(op, 2, false), cdi.ErrDimensionMismatch)
	require.NoError(t, in.UpdatePostOrderPartials(op, 1, false))

	require.ErrorIs(t, in.CalculateRootLogLikelihood(2, 3, make([]float64, 1), false), cdi.ErrBufferNotSet)
	require.ErrorIs(t, in.CalculateRootLogLikelihood(2, 3, make([]float64, 2), false), cdi.ErrDimensionMismatch)
}

func TestSetDiffusionPrecision_Errors(t *testing.T) {
	t.Parallel()

	in, err := cdi.New(cdi.Full, 1, 2, 2, 1)
	require.NoError(t, err)

	err = in.SetDiffusionPrecision(0, []float64{1, 2, 2, 1})
	require.ErrorIs(t, err, cdi.ErrNotPositiveDefinite)

	err = in.SetDiffusionPrecision(0, []float64{1, 0.5, 0, 1})
	require.ErrorIs(t, err, cdi.ErrNotPositiveDefinite)

	err = in.SetDiffusionPrecision(0, []float64{1, math.NaN(), math.NaN(), 1})
	require.ErrorIs(t, err, cdi.ErrNotPositiveDefinite)
	require.ErrorIs(t, err, matrix.ErrNaN)

	require.ErrorIs(t, in.SetDiffusionPrecision(0, []float64{1}), cdi.ErrDimensionMismatch)
	require.ErrorIs(t, in.SetDiffusionPrecision(1, []float64{1, 0, 0, 1}), cdi.ErrOutOfRange)
	require.NoError(t, in.SetDiffusionPrecision(0, []float64{1, 0, 0, 1}))

	// A small asymmetry passes once the tolerance allows it.
	nearly := []float64{1, 0.5, 0.5 + 1e-6, 1}
	require.ErrorIs(t, in.SetDiffusionPrecision(0, nearly), matrix.ErrAsymmetry)
	loose, err := cdi.New(cdi.Full, 1, 2, 2, 1, cdi.WithSymmetryTolerance(1e-3))
	require.NoError(t, err)
	require.NoError(t, loose.SetDiffusionPrecision(0, nearly))
}

func TestPartialIO(t *testing.T) {
	t.Parallel()

	in, err := cdi.New(cdi.Scalar, 1, 2, 2, 1)
	require.NoError(t, err)
	dst := make([]float64, 3)

	require.ErrorIs(t, in.GetPostOrderPartial(0, dst), cdi.ErrBufferNotSet)
	require.ErrorIs(t, in.GetPreOrderPartial(0, dst), cdi.ErrBufferNotSet)
	require.ErrorIs(t, in.SetPostOrderPartial(0, make([]float64, 2)), cdi.ErrDimensionMismatch)
	require.ErrorIs(t, in.SetPostOrderPartial(2, dst), cdi.ErrOutOfRange)
	require.ErrorIs(t, in.Remainders(0, make([]float64, 2)), cdi.ErrDimensionMismatch)

	require.NoError(t, in.SetPreOrderPartial(1, []float64{1, 2, 3}))
	require.NoError(t, in.GetPreOrderPartial(1, dst))
	assert.Equal(t, []float64{1, 2, 3}, dst)
}

func TestWishartStatistics(t *testing.T) {
	t.Parallel()

	_, in, _ := twoLeaves.logLikelihood(t, cdi.Scalar)
	require.NoError(t, in.SetWishartStatistics([]int{5}, []float64{1.5}))
	dof, outer := make([]int, 1), make([]float64, 1)
	require.NoError(t, in.WishartStatistics(dof, outer))
	assert.Equal(t, []int{5}, dof)
	assert.Equal(t, []float64{1.5}, outer)

	in.ResetWishartStatistics()
	require.NoError(t, in.WishartStatistics(dof, outer))
	assert.Equal(t, []int{0}, dof)
	assert.Equal(t, []float64{0}, outer)

	require.ErrorIs(t, in.WishartStatistics(dof, make([]float64, 2)), cdi.ErrDimensionMismatch)
	require.ErrorIs(t, in.SetWishartStatistics(nil, outer), cdi.ErrDimensionMismatch)
}

func TestTimingReport(t *testing.T) {
	t.Parallel()

	_, quiet, _ := twoLeaves.logLikelihood(t, cdi.Scalar)
	assert.Empty(t, quiet.Report())

	reg := prometheus.NewRegistry()
	_, timed, _ := twoLeaves.logLikelihood(t, cdi.Full, cdi.WithTiming(true), cdi.WithRegisterer(reg))
	rep := timed.Report()
	assert.Contains(t, rep, "TIMING:\n")
	for _, phase := range []string{"diffusion", "postorder", "root"} {
		assert.Contains(t, rep, phase)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "cdi_phase_duration_seconds", families[0].GetName())

	_, err = cdi.New(cdi.Full, 1, 1, 3, 1, cdi.WithTiming(true), cdi.WithRegisterer(reg))
	require.Error(t, err)
}

func TestDebugTrace(t *testing.T) {
	t.Parallel()

	var sink bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&sink, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, in, tr := twoLeaves.logLikelihood(t, cdi.Full, cdi.WithLogger(logger))
	assert.Contains(t, sink.String(), "cdi: merge")
	assert.Contains(t, sink.String(), "cdi: root")
	// the flat prior makes the root inversion degenerate
	assert.Contains(t, sink.String(), "not-observed")

	dump, err := in.DumpPartial(tr.Root())
	require.NoError(t, err)
	assert.Contains(t, dump, "trait 0 mean=[2]")
	_, err = in.DumpPartial(-1)
	require.ErrorIs(t, err, cdi.ErrOutOfRange)
}

func TestOptions_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { cdi.WithLogger(nil) })
	assert.Panics(t, func() { cdi.WithEpsilon(0) })
	assert.Panics(t, func() { cdi.WithEpsilon(1) })
	assert.NotPanics(t, func() { cdi.WithEpsilon(1e-8) })
	assert.Panics(t, func() { cdi.WithSymmetryTolerance(-1) })
	assert.Panics(t, func() { cdi.WithSymmetryTolerance(math.NaN()) })
	assert.Panics(t, func() { cdi.WithSymmetryTolerance(math.Inf(1)) })
	assert.NotPanics(t, func() { cdi.WithSymmetryTolerance(0) })
}
