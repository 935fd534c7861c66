// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package handles

import (
	"testing"

	"github.com/gomlx/fusion/pkg/core/ops"
	. "github.com/gomlx/fusion/pkg/core/ops/opstest"
	"github.com/gomlx/fusion/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeBuffer struct{ shape shapes.Shape }

func (b fakeBuffer) Shape() shapes.Shape { return b.shape }

func TestContainer(t *testing.T) {
	c := New()
	c.Register(1, fakeBuffer{shapes.Make(dtypes.Float32, 32, 32)})
	c.Register(2, fakeBuffer{shapes.Make(dtypes.Float32, 32, 32)})
	require.Equal(t, 2, c.Len())

	_, err := c.Input(RO(1, 32, 32))
	require.NoError(t, err)
	_, err = c.Input(RO(3, 32, 32))
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = c.Input(RO(1, 16, 32))
	require.Error(t, err)

	c.Release(RO(1, 32, 32), RW(2, 32, 32))
	_, found := c.Get(1)
	require.True(t, found)
	_, found = c.Get(2)
	require.False(t, found)

	_, found = c.Remove(1)
	require.True(t, found)
	require.Equal(t, 0, c.Len())
}

func TestNewTensorID(t *testing.T) {
	seen := make(map[ops.TensorID]bool)
	for range 100 {
		id := NewTensorID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
