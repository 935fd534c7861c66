// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package relative

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/fusion/pkg/core/ops"
	. "github.com/gomlx/fusion/pkg/core/ops/opstest"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	stream := []ops.Op{
		Add32x32(10, 11, 12),
		AddScalar32x32(12, 5, 13),
		Binary(ops.OpTypeMul, RW(13, 32, 32), RO(10, 32, 32), Out(14, 32, 32)),
	}
	relativeStream, bindings := Convert(stream)
	want := []ops.Op{
		Add32x32(0, 1, 2),
		AddScalar32x32(2, 0, 3),
		Binary(ops.OpTypeMul, RW(3, 32, 32), RO(0, 32, 32), Out(4, 32, 32)),
	}
	if diff := cmp.Diff(want, relativeStream); diff != "" {
		t.Fatalf("Convert() diff (-want +got):\n%s", diff)
	}
	require.Equal(t, []ops.TensorID{10, 11, 12, 13, 14}, bindings.Tensors)
	require.Equal(t, []float64{5}, bindings.Scalars)
	require.Equal(t, 3, bindings.NumOps)

	// Inverse binding gives back the original stream.
	require.True(t, ops.SequenceEqual(stream, bindings.Bind(relativeStream)))
}

func TestSameStructureSameRelativeForm(t *testing.T) {
	a, _ := Convert([]ops.Op{Add32x32(1, 2, 3), AddScalar32x32(3, 1.5, 4)})
	b, _ := Convert([]ops.Op{Add32x32(7, 8, 9), AddScalar32x32(9, -2, 10)})
	require.True(t, ops.SequenceEqual(a, b))

	// Different wiring is a different structure.
	c, _ := Convert([]ops.Op{Add32x32(7, 8, 9), AddScalar32x32(7, -2, 10)})
	require.False(t, ops.SequenceEqual(a, c))
}

func TestPrefix(t *testing.T) {
	stream := []ops.Op{
		AddScalar32x32(10, 1, 11),
		Add32x32(11, 12, 13),
		AddScalar32x32(13, 2, 14),
	}
	relativeStream, bindings := Convert(stream)

	prefix := bindings.Prefix(2)
	require.Equal(t, 2, prefix.NumOps)
	require.Equal(t, []ops.TensorID{10, 11, 12, 13}, prefix.Tensors)
	require.Equal(t, []float64{1}, prefix.Scalars)
	require.True(t, ops.SequenceEqual(stream[:2], prefix.Bind(relativeStream[:2])))

	empty := bindings.Prefix(0)
	require.Empty(t, empty.Tensors)
	require.Empty(t, empty.Scalars)

	require.NotNil(t, exceptions.Try(func() { bindings.Prefix(4) }))
	require.NotNil(t, exceptions.Try(func() { prefix.Tensor(4) }))
}
