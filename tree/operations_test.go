// SPDX-License-Identifier: MIT
package tree_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/zedomel/beast-mcmc/cdi"
	"github.com/zedomel/beast-mcmc/tree"
)

func TestPostOrderOperations(t *testing.T) {
	t.Parallel()

	tr := tree.MustParse(balanced)
	ops, n, err := tr.PostOrderOperations()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, ops, n*cdi.OperationTupleSize)
	assert.Equal(t, []int{
		4, 0, 0, 1, 1,
		5, 2, 2, 3, 3,
		6, 4, 4, 5, 5,
	}, ops)
}

func TestPreOrderOperations(t *testing.T) {
	t.Parallel()

	tr := tree.MustParse(balanced)
	ops, n, err := tr.PreOrderOperations()
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []int{
		6, 4, 4, 5, 5,
		4, 0, 0, 1, 1,
		4, 1, 1, 0, 0,
		6, 5, 5, 4, 4,
		5, 2, 2, 3, 3,
		5, 3, 3, 2, 2,
	}, ops)
}

func TestBranchSlots(t *testing.T) {
	t.Parallel()

	tr := tree.MustParse("((A:1,B:2):0.5,C:1.5);")
	slots, lengths, err := tr.BranchSlots(2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, slots)
	assert.Equal(t, []float64{2, 4, 3, 1}, lengths)

	for _, rate := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, _, err = tr.BranchSlots(rate)
		require.ErrorIs(t, err, tree.ErrInvalidArgument)
	}
}

func TestCovariance(t *testing.T) {
	t.Parallel()

	tr := tree.MustParse("((A:1,B:2):0.5,C:1.5);")
	want := mat.NewSymDense(3, []float64{
		1.5, 0.5, 0,
		0.5, 2.5, 0,
		0, 0, 1.5,
	})
	assert.True(t, mat.Equal(want, tr.Covariance()))
}

func TestSimulateBrownian(t *testing.T) {
	t.Parallel()

	tr := tree.MustParse("((A:1,B:0):0.5,C:1.5);")
	sigma := mat.NewSymDense(2, []float64{1, 0.3, 0.3, 2})
	root := []float64{1, -1}

	vals, err := tr.SimulateBrownian(rand.NewPCG(1, 2), sigma, root, 1)
	require.NoError(t, err)
	require.Len(t, vals, tr.NumNodes())
	assert.Equal(t, root, vals[tr.Root()])
	assert.Equal(t, vals[3], vals[1], "zero-length branch copies the parent")
	assert.NotEqual(t, vals[3], vals[0])

	again, err := tr.SimulateBrownian(rand.NewPCG(1, 2), sigma, root, 1)
	require.NoError(t, err)
	assert.Equal(t, vals, again)

	still, err := tr.SimulateBrownian(rand.NewPCG(1, 2), sigma, root, 0)
	require.NoError(t, err)
	for _, v := range still {
		assert.Equal(t, root, v)
	}

	_, err = tr.SimulateBrownian(nil, sigma, root, 1)
	require.ErrorIs(t, err, tree.ErrInvalidArgument)
	_, err = tr.SimulateBrownian(rand.NewPCG(1, 2), sigma, []float64{0}, 1)
	require.ErrorIs(t, err, tree.ErrInvalidArgument)
	_, err = tr.SimulateBrownian(rand.NewPCG(1, 2), mat.NewSymDense(2, []float64{1, 2, 2, 1}), root, 1)
	require.ErrorIs(t, err, tree.ErrInvalidArgument)
}
