// SPDX-License-Identifier: MIT
// Package cdi: the Integrator façade.
//
// The Integrator validates every call against the construction-time layout,
// then dispatches the arithmetic to the scalar or full kernel. It owns all
// storage; callers address it by integer handles.

package cdi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Integrator computes Gaussian partials and log-likelihoods of continuous
// traits on a tree. It is NOT safe for concurrent use.
type Integrator struct {
	st     *state
	kernel kernel
	timer  *timer
	logger *slog.Logger
	trace  bool // logger enabled at debug; checked once at construction

	bufferCount    int
	diffusionCount int
}

// Details summarizes the construction-time shape of an Integrator.
type Details struct {
	Precision      PrecisionType
	NumTraits      int
	DimTrait       int
	BufferCount    int
	DiffusionCount int
	PartialLength  int
}

// String renders the details on one line.
func (d Details) String() string {
	return fmt.Sprintf("precision=%s traits=%d dim=%d buffers=%d diffusions=%d partial=%d",
		d.Precision, d.NumTraits, d.DimTrait, d.BufferCount, d.DiffusionCount, d.PartialLength)
}

// New allocates an Integrator.
//
// bufferCount sizes both the partial arena and the branch-variance slots, so
// matrix indices share the range of buffer indices.
//
// Errors: ErrInvalidPrecision, ErrInvalidDimensions.
// Complexity: O(bufferCount·PartialLength) memory.
func New(precision PrecisionType, numTraits, dimTrait, bufferCount, diffusionCount int, opts ...Option) (*Integrator, error) {
	if !precision.Valid() {
		return nil, fmt.Errorf("New: %w", ErrInvalidPrecision)
	}
	if numTraits <= 0 || dimTrait <= 0 || bufferCount <= 0 || diffusionCount <= 0 {
		return nil, fmt.Errorf("New(traits=%d, dim=%d, buffers=%d, diffusions=%d): %w",
			numTraits, dimTrait, bufferCount, diffusionCount, ErrInvalidDimensions)
	}
	o := gatherOptions(opts...)

	layout := Layout{Precision: precision, NumTraits: numTraits, DimTrait: dimTrait}
	st := &state{
		layout: layout,
		buf:    newArena(layout, bufferCount),
		diff:   newDiffusionCache(dimTrait, diffusionCount, bufferCount),
		stats:  newStatistics(dimTrait, numTraits),
		logger: o.Logger,
		trace:  o.Logger.Enabled(context.Background(), slog.LevelDebug),
	}

	st.diff.symTol = o.SymmetryTolerance

	var k kernel
	if precision == Full {
		fk, err := newFullKernel(st, o)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		k = fk
	} else {
		k = newScalarKernel(st)
	}

	t, err := newTimer(o)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	in := &Integrator{
		st:             st,
		kernel:         k,
		timer:          t,
		logger:         o.Logger,
		trace:          st.trace,
		bufferCount:    bufferCount,
		diffusionCount: diffusionCount,
	}
	if in.trace {
		in.logger.Debug("cdi: created", "details", in.Details().String())
	}

	return in, nil
}

// Layout returns the partial layout used by this Integrator.
func (in *Integrator) Layout() Layout { return in.st.layout }

// Details returns the construction-time shape.
func (in *Integrator) Details() Details {
	l := in.st.layout

	return Details{
		Precision:      l.Precision,
		NumTraits:      l.NumTraits,
		DimTrait:       l.DimTrait,
		BufferCount:    in.bufferCount,
		DiffusionCount: in.diffusionCount,
		PartialLength:  l.PartialLength(),
	}
}

// RequiresDataAugmentation reports whether outer products are only exact
// after missing tip values have been imputed (see package impute). The full
// representation weights contrasts by the carried scalar precision, which
// ignores per-dimension missingness.
func (in *Integrator) RequiresDataAugmentation() bool {
	return in.st.layout.Precision == Full
}

// Report returns the collected per-phase timing, or "" when timing is off.
func (in *Integrator) Report() string { return in.timer.report() }

// ---------- partial I/O ----------

// SetPostOrderPartial copies partial into buffer index and clears its
// remainders. Use Layout().TipPartial / PriorPartial to build partial.
func (in *Integrator) SetPostOrderPartial(index int, partial []float64) error {
	if err := in.st.buf.setPost(index, partial); err != nil {
		return fmt.Errorf("SetPostOrderPartial: %w", err)
	}

	return nil
}

// GetPostOrderPartial copies buffer index into dst.
func (in *Integrator) GetPostOrderPartial(index int, dst []float64) error {
	if err := in.st.buf.getPost(index, dst); err != nil {
		return fmt.Errorf("GetPostOrderPartial: %w", err)
	}

	return nil
}

// SetPreOrderPartial copies partial into the pre-order record of index.
// Pre-order precisions and variances are in absolute units.
func (in *Integrator) SetPreOrderPartial(index int, partial []float64) error {
	if err := in.st.buf.setPre(index, partial); err != nil {
		return fmt.Errorf("SetPreOrderPartial: %w", err)
	}

	return nil
}

// GetPreOrderPartial copies the pre-order record of index into dst.
func (in *Integrator) GetPreOrderPartial(index int, dst []float64) error {
	if err := in.st.buf.getPre(index, dst); err != nil {
		return fmt.Errorf("GetPreOrderPartial: %w", err)
	}

	return nil
}

// Remainders copies the accumulated log remainders of buffer index (one per
// trait) into dst.
func (in *Integrator) Remainders(index int, dst []float64) error {
	if err := in.st.buf.checkIndex(index); err != nil {
		return fmt.Errorf("Remainders: %w", err)
	}
	if len(dst) != in.st.layout.NumTraits {
		return fmt.Errorf("Remainders: %w", ErrDimensionMismatch)
	}
	copy(dst, in.st.buf.remainder(index))

	return nil
}

// ---------- diffusion ----------

// SetDiffusionPrecision stores a d×d row-major precision in slot index after
// checking it is symmetric positive definite; its inverse and
// log-determinant are cached.
func (in *Integrator) SetDiffusionPrecision(index int, precision []float64) error {
	defer in.timer.track(phaseDiffusion)()
	if err := in.st.diff.setPrecision(index, precision); err != nil {
		return fmt.Errorf("SetDiffusionPrecision: %w", err)
	}
	if in.trace {
		in.logger.Debug("cdi: diffusion precision set", "index", index, "logDet", in.st.diff.logDets[index])
	}

	return nil
}

// UpdateDiffusionMatrices writes edgeLengths[k] as the scalar variance of
// branch slot branchIndices[k] and makes precisionIndex the active diffusion.
// Nothing is written when any argument is invalid.
func (in *Integrator) UpdateDiffusionMatrices(precisionIndex int, branchIndices []int, edgeLengths []float64) error {
	defer in.timer.track(phaseDiffusion)()
	if err := in.st.diff.update(precisionIndex, branchIndices, edgeLengths); err != nil {
		return fmt.Errorf("UpdateDiffusionMatrices: %w", err)
	}
	if in.trace {
		in.logger.Debug("cdi: diffusion updated", "active", precisionIndex, "branches", len(branchIndices))
	}

	return nil
}

// ---------- post-order ----------

// UpdatePostOrderPartials executes count merges encoded as consecutive
// OperationTupleSize-int tuples in operations. Each operation's children
// must already be set. When incrementOuterProducts is true, contrasts are
// added to the Wishart statistics.
//
// On error, operations before the failing one have been applied.
func (in *Integrator) UpdatePostOrderPartials(operations []int, count int, incrementOuterProducts bool) error {
	defer in.timer.track(phasePostOrder)()
	if count < 0 || len(operations) < count*OperationTupleSize {
		return fmt.Errorf("UpdatePostOrderPartials: %d ints for %d operations: %w",
			len(operations), count, ErrDimensionMismatch)
	}
	if in.st.diff.active < 0 {
		return fmt.Errorf("UpdatePostOrderPartials: %w", ErrNoActiveDiffusion)
	}

	buf := in.st.buf
	for n := 0; n < count; n++ {
		op := operationAt(operations, n)
		vi, vj, err := in.checkPostOrder(op)
		if err != nil {
			return fmt.Errorf("UpdatePostOrderPartials: operation %d %s: %w", n, op, err)
		}
		if err = in.kernel.merge(op, vi, vj, incrementOuterProducts); err != nil {
			return fmt.Errorf("UpdatePostOrderPartials: operation %d %s: %w", n, op, err)
		}
		buf.postSet[op.Dest] = true
		if in.trace {
			in.logger.Debug("cdi: merge", "op", op.String(), "vi", vi, "vj", vj,
				"remainder", buf.remainder(op.Dest))
		}
	}

	return nil
}

func (in *Integrator) checkPostOrder(op Operation) (float64, float64, error) {
	buf := in.st.buf
	for _, idx := range [...]int{op.Dest, op.ChildA, op.ChildB} {
		if err := buf.checkIndex(idx); err != nil {
			return 0, 0, err
		}
	}
	if op.Dest == op.ChildA || op.Dest == op.ChildB {
		return 0, 0, ErrAliasedBuffer
	}
	for _, idx := range [...]int{op.ChildA, op.ChildB} {
		if !buf.postSet[idx] {
			return 0, 0, fmt.Errorf("post-order buffer %d: %w", idx, ErrBufferNotSet)
		}
	}
	vi, err := in.st.diff.variance(op.ChildAMatrix)
	if err != nil {
		return 0, 0, err
	}
	vj, err := in.st.diff.variance(op.ChildBMatrix)
	if err != nil {
		return 0, 0, err
	}

	return vi, vj, nil
}

// ---------- pre-order ----------

// UpdatePreOrderPartials executes count pre-order operations encoded as
// consecutive tuples (parent, node, nodeMatrix, sibling, siblingMatrix).
// The parent's pre-order record and the sibling's post-order partial must
// be set. Scalar precision returns ErrNotImplemented.
func (in *Integrator) UpdatePreOrderPartials(operations []int, count int) error {
	defer in.timer.track(phasePreOrder)()
	if count < 0 || len(operations) < count*OperationTupleSize {
		return fmt.Errorf("UpdatePreOrderPartials: %d ints for %d operations: %w",
			len(operations), count, ErrDimensionMismatch)
	}
	for n := 0; n < count; n++ {
		if err := in.preOrder(preOrderAt(operations, n)); err != nil {
			return fmt.Errorf("UpdatePreOrderPartials: operation %d: %w", n, err)
		}
	}

	return nil
}

// UpdatePreOrderPartial computes the pre-order partial of node from its
// parent's pre-order record and its sibling's post-order partial.
func (in *Integrator) UpdatePreOrderPartial(parent, node, nodeMatrix, sibling, siblingMatrix int) error {
	defer in.timer.track(phasePreOrder)()
	op := Operation{Dest: node, ChildA: parent, ChildAMatrix: nodeMatrix, ChildB: sibling, ChildBMatrix: siblingMatrix}
	if err := in.preOrder(op); err != nil {
		return fmt.Errorf("UpdatePreOrderPartial: %w", err)
	}

	return nil
}

func (in *Integrator) preOrder(op Operation) error {
	if in.st.layout.Precision != Full {
		return ErrNotImplemented
	}
	if in.st.diff.active < 0 {
		return ErrNoActiveDiffusion
	}
	buf := in.st.buf
	for _, idx := range [...]int{op.Dest, op.ChildA, op.ChildB} {
		if err := buf.checkIndex(idx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if op.Dest == op.ChildA || op.Dest == op.ChildB {
		return fmt.Errorf("%s: %w", op, ErrAliasedBuffer)
	}
	if !buf.preSet[op.ChildA] {
		return fmt.Errorf("%s: pre-order buffer %d: %w", op, op.ChildA, ErrBufferNotSet)
	}
	if !buf.postSet[op.ChildB] {
		return fmt.Errorf("%s: post-order buffer %d: %w", op, op.ChildB, ErrBufferNotSet)
	}
	vi, err := in.st.diff.variance(op.ChildAMatrix)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	vj, err := in.st.diff.variance(op.ChildBMatrix)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = in.kernel.preOrder(op, vi, vj); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	buf.preSet[op.Dest] = true
	if in.trace {
		in.logger.Debug("cdi: pre-order", "op", op.String(), "vi", vi, "vj", vj)
	}

	return nil
}

// SeedPreOrderRoot sets the pre-order record of root from the prior buffer,
// converting the prior's relative variance to absolute units with the
// active diffusion. Full precision only.
func (in *Integrator) SeedPreOrderRoot(root, prior int) error {
	defer in.timer.track(phasePreOrder)()
	if in.st.layout.Precision != Full {
		return fmt.Errorf("SeedPreOrderRoot: %w", ErrNotImplemented)
	}
	if err := in.checkRoot(root, prior); err != nil {
		return fmt.Errorf("SeedPreOrderRoot: %w", err)
	}
	if err := in.kernel.seedRoot(root, prior); err != nil {
		return fmt.Errorf("SeedPreOrderRoot: %w", err)
	}
	in.st.buf.preSet[root] = true

	return nil
}

// ---------- root ----------

// CalculateRootLogLikelihood writes one log-likelihood per trait into
// logLikelihoods by integrating the root partial against the prior partial
// and adding the root's accumulated remainders. When incrementOuterProducts
// is true the root contrast is added to the Wishart statistics.
func (in *Integrator) CalculateRootLogLikelihood(root, prior int, logLikelihoods []float64, incrementOuterProducts bool) error {
	defer in.timer.track(phaseRoot)()
	if len(logLikelihoods) != in.st.layout.NumTraits {
		return fmt.Errorf("CalculateRootLogLikelihood: %d outputs for %d traits: %w",
			len(logLikelihoods), in.st.layout.NumTraits, ErrDimensionMismatch)
	}
	if err := in.checkRoot(root, prior); err != nil {
		return fmt.Errorf("CalculateRootLogLikelihood: %w", err)
	}
	if err := in.kernel.root(root, prior, logLikelihoods, incrementOuterProducts); err != nil {
		return fmt.Errorf("CalculateRootLogLikelihood: %w", err)
	}
	if in.trace {
		in.logger.Debug("cdi: root", "root", root, "prior", prior, "logLikelihoods", logLikelihoods)
	}

	return nil
}

func (in *Integrator) checkRoot(root, prior int) error {
	buf := in.st.buf
	if err := buf.checkIndex(root); err != nil {
		return err
	}
	if err := buf.checkIndex(prior); err != nil {
		return err
	}
	if in.st.diff.active < 0 {
		return ErrNoActiveDiffusion
	}
	if !buf.postSet[root] {
		return fmt.Errorf("root buffer %d: %w", root, ErrBufferNotSet)
	}
	if !buf.postSet[prior] {
		return fmt.Errorf("prior buffer %d: %w", prior, ErrBufferNotSet)
	}

	return nil
}

// ---------- Wishart statistics ----------

// WishartStatistics copies the degrees of freedom (numTraits) and the
// row-major outer products (numTraits·d·d) into the given slices.
func (in *Integrator) WishartStatistics(degreesOfFreedom []int, outerProducts []float64) error {
	if err := in.st.stats.get(degreesOfFreedom, outerProducts); err != nil {
		return fmt.Errorf("WishartStatistics: %w", err)
	}

	return nil
}

// SetWishartStatistics overwrites the accumulated statistics.
func (in *Integrator) SetWishartStatistics(degreesOfFreedom []int, outerProducts []float64) error {
	if err := in.st.stats.set(degreesOfFreedom, outerProducts); err != nil {
		return fmt.Errorf("SetWishartStatistics: %w", err)
	}

	return nil
}

// ResetWishartStatistics zeroes the accumulated statistics.
func (in *Integrator) ResetWishartStatistics() { in.st.stats.reset() }

// DumpPartial renders the post-order partial of index trait by trait, for
// diagnostics.
func (in *Integrator) DumpPartial(index int) (string, error) {
	if err := in.st.buf.checkIndex(index); err != nil {
		return "", fmt.Errorf("DumpPartial: %w", err)
	}
	l := in.st.layout
	d := l.DimTrait
	p := in.st.buf.postPartial(index)
	var sb strings.Builder
	for t := 0; t < l.NumTraits; t++ {
		mo := l.MeanOffset(t)
		fmt.Fprintf(&sb, "trait %d mean=%v", t, p[mo:mo+d])
		if l.Precision == Full {
			po, vo := l.PrecisionOffset(t), l.VarianceOffset(t)
			fmt.Fprintf(&sb, " P=%v V=%v", p[po:po+d*d], p[vo:vo+d*d])
		}
		fmt.Fprintf(&sb, " p=%v remainder=%v\n", p[l.ScalarOffset(t)], in.st.buf.remainder(index)[t])
	}

	return sb.String(), nil
}
