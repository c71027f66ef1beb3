// SPDX-License-Identifier: MIT
package cdi_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/zedomel/beast-mcmc/cdi"
	"github.com/zedomel/beast-mcmc/tree"
)

// fixture is a one-trait model on a small tree. NaN tip values are missing.
type fixture struct {
	newick    string
	precision []float64 // diffusion precision, row-major
	mean      []float64 // prior mean
	prior     float64   // prior precision relative to the diffusion
	tips      [][]float64
}

var (
	threeTips = fixture{
		newick:    "((A:1,B:2):0.5,C:1.5);",
		precision: []float64{2, 0.5, 0.5, 1},
		mean:      []float64{0.2, -0.1},
		prior:     0.5,
		tips: [][]float64{
			{1.0, -0.5},
			{2.5, 0.3},
			{-1.2, 0.8},
		},
	}

	twoLeaves = fixture{
		newick:    "(A:1,B:1);",
		precision: []float64{1},
		mean:      []float64{0},
		prior:     0,
		tips:      [][]float64{{1}, {3}},
	}
)

func (f fixture) dim() int { return len(f.mean) }

func (f fixture) tree(t *testing.T) *tree.Tree {
	t.Helper()
	tr, err := tree.Parse(f.newick)
	require.NoError(t, err)

	return tr
}

func (f fixture) observed(i int) []bool {
	obs := make([]bool, f.dim())
	for g, v := range f.tips[i] {
		obs[g] = !math.IsNaN(v)
	}

	return obs
}

// load builds an Integrator with tips, prior and diffusion set. The prior
// lives in buffer NumNodes().
func (f fixture) load(t *testing.T, p cdi.PrecisionType, opts ...cdi.Option) (*cdi.Integrator, *tree.Tree) {
	t.Helper()
	tr := f.tree(t)
	in, err := cdi.New(p, 1, f.dim(), tr.NumNodes()+1, 1, opts...)
	require.NoError(t, err)

	l := in.Layout()
	buf := make([]float64, l.PartialLength())
	for i := 0; i < tr.NumTips(); i++ {
		require.NoError(t, l.TipPartial(buf, 0, f.tips[i], f.observed(i)))
		require.NoError(t, in.SetPostOrderPartial(i, buf))
	}
	require.NoError(t, l.PriorPartial(buf, 0, f.mean, f.prior))
	require.NoError(t, in.SetPostOrderPartial(tr.NumNodes(), buf))

	require.NoError(t, in.SetDiffusionPrecision(0, f.precision))
	slots, lengths, err := tr.BranchSlots(1)
	require.NoError(t, err)
	require.NoError(t, in.UpdateDiffusionMatrices(0, slots, lengths))

	return in, tr
}

// logLikelihood runs the post-order batch and the root evaluation.
func (f fixture) logLikelihood(t *testing.T, p cdi.PrecisionType, opts ...cdi.Option) (float64, *cdi.Integrator, *tree.Tree) {
	t.Helper()
	in, tr := f.load(t, p, opts...)
	ops, n, err := tr.PostOrderOperations()
	require.NoError(t, err)
	require.NoError(t, in.UpdatePostOrderPartials(ops, n, true))

	out := make([]float64, 1)
	require.NoError(t, in.CalculateRootLogLikelihood(tr.Root(), tr.NumNodes(), out, true))

	return out[0], in, tr
}

// sigma returns the diffusion variance.
func (f fixture) sigma(t *testing.T) *mat.SymDense {
	t.Helper()
	d := f.dim()
	var chol mat.Cholesky
	require.True(t, chol.Factorize(mat.NewSymDense(d, append([]float64(nil), f.precision...))))
	var s mat.SymDense
	require.NoError(t, chol.InverseTo(&s))

	return &s
}

// jointCovariance returns the covariance of all tip values stacked tip by
// tip: (C + J/prior) ⊗ Σ.
func (f fixture) jointCovariance(t *testing.T) *mat.SymDense {
	t.Helper()
	tr := f.tree(t)
	c := tr.Covariance()
	n := tr.NumTips()
	shifted := mat.NewDense(n, n, nil)
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			shifted.Set(a, b, c.At(a, b)+1/f.prior)
		}
	}
	var k mat.Dense
	k.Kronecker(shifted, f.sigma(t))

	r, _ := k.Dims()
	out := mat.NewSymDense(r, nil)
	for a := 0; a < r; a++ {
		for b := a; b < r; b++ {
			out.SetSym(a, b, k.At(a, b))
		}
	}

	return out
}

// bruteForce evaluates the multivariate normal density of the observed tip
// values directly.
func (f fixture) bruteForce(t *testing.T) float64 {
	t.Helper()
	d := f.dim()
	full := f.jointCovariance(t)

	var idx []int
	for i, v := range f.tips {
		for g := range v {
			if !math.IsNaN(f.tips[i][g]) {
				idx = append(idx, i*d+g)
			}
		}
	}
	k := len(idx)
	cov := mat.NewSymDense(k, nil)
	x, mu := make([]float64, k), make([]float64, k)
	for a, ia := range idx {
		x[a] = f.tips[ia/d][ia%d]
		mu[a] = f.mean[ia%d]
		for b := a; b < k; b++ {
			cov.SetSym(a, b, full.At(ia, idx[b]))
		}
	}
	dist, ok := distmv.NewNormal(mu, cov, nil)
	require.True(t, ok)

	return dist.LogProb(x)
}

// withTips returns a copy of f with replaced tip values.
func (f fixture) withTips(tips ...[]float64) fixture {
	f.tips = tips

	return f
}
