// SPDX-License-Identifier: MIT
package tree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOperations_TraversalErrorSurfaces ensures an interrupted walk never
// yields a truncated batch.
func TestOperations_TraversalErrorSurfaces(t *testing.T) {
	tr := MustParse("((A:1,B:1):1,(C:1,D:1):1);")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ops, n, err := tr.postOrderOperations(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, ops)
	assert.Zero(t, n)

	ops, n, err = tr.preOrderOperations(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, ops)
	assert.Zero(t, n)
}
