// SPDX-License-Identifier: MIT
package impute_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/zedomel/beast-mcmc/cdi"
	"github.com/zedomel/beast-mcmc/impute"
)

func TestCondition_Bivariate(t *testing.T) {
	t.Parallel()

	v := mat.NewSymDense(2, []float64{2, 1, 1, 2})
	c, err := impute.Condition([]float64{0, 0}, v, []float64{1, 99}, []bool{true, false})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, c.Missing)
	assert.InDeltaSlice(t, []float64{0.5}, c.Mean, 1e-12)
	assert.InDelta(t, 1.5, c.Covariance.At(0, 0), 1e-12)
}

func TestCondition_NothingOrEverythingMissing(t *testing.T) {
	t.Parallel()

	v := mat.NewSymDense(2, []float64{2, 1, 1, 2})
	c, err := impute.Condition([]float64{3, 4}, v, []float64{1, 2}, []bool{true, true})
	require.NoError(t, err)
	assert.Empty(t, c.Missing)
	assert.Nil(t, c.Covariance)

	c, err = impute.Condition([]float64{3, 4}, v, []float64{0, 0}, []bool{false, false})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, c.Missing)
	assert.Equal(t, []float64{3, 4}, c.Mean)
	assert.True(t, mat.Equal(v, c.Covariance))
}

// TestCondition_DuplicatedObservations uses a singular observed block.
func TestCondition_DuplicatedObservations(t *testing.T) {
	t.Parallel()

	v := mat.NewSymDense(3, []float64{
		1, 1, 1,
		1, 1, 1,
		1, 1, 2,
	})
	c, err := impute.Condition([]float64{0, 0, 0}, v, []float64{1, 1, 0}, []bool{true, true, false})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1}, c.Mean, 1e-9)
	assert.InDelta(t, 1.0, c.Covariance.At(0, 0), 1e-9)
}

func TestCondition_Errors(t *testing.T) {
	t.Parallel()

	v := mat.NewSymDense(2, nil)
	_, err := impute.Condition([]float64{0}, v, []float64{0, 0}, []bool{true, true})
	require.ErrorIs(t, err, impute.ErrDimensionMismatch)
	_, err = impute.Condition([]float64{0, 0}, v, []float64{0, 0}, []bool{true})
	require.ErrorIs(t, err, impute.ErrDimensionMismatch)
}

func TestFromPreOrder(t *testing.T) {
	t.Parallel()

	l := cdi.Layout{Precision: cdi.Full, NumTraits: 1, DimTrait: 2}
	partial := []float64{
		1, 2, // mean
		1, 0, 0, 1, // precision
		2, 0.5, 0.5, 3, // variance
		1, // scalar
	}
	mean, v, err := impute.FromPreOrder(l, partial, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, mean)
	assert.Equal(t, 0.5, v.At(1, 0))
	assert.Equal(t, 3.0, v.At(1, 1))

	partial[9] = math.Inf(1)
	_, _, err = impute.FromPreOrder(l, partial, 0)
	require.ErrorIs(t, err, impute.ErrNonFinite)

	_, _, err = impute.FromPreOrder(l, partial, 1)
	require.ErrorIs(t, err, impute.ErrDimensionMismatch)
	_, _, err = impute.FromPreOrder(l, partial[:5], 0)
	require.ErrorIs(t, err, impute.ErrDimensionMismatch)

	_, _, err = impute.FromPreOrder(cdi.Layout{Precision: cdi.Scalar, NumTraits: 1, DimTrait: 2}, partial[:3], 0)
	require.ErrorIs(t, err, impute.ErrNotFull)
}
