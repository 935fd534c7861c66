// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"testing"

	"github.com/gomlx/fusion/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestBuffers(t *testing.T) {
	buf := must.M1(NewBuffer(shapes.Make(dtypes.Float16, 2, 3)))
	require.Len(t, buf.Flat().([]float16.Float16), 6)
	buf.store(1, []float64{1.5, 1.0 / 3.0})
	values := buf.Float64s()
	require.Equal(t, 1.5, values[1])
	require.Equal(t, roundTo(dtypes.Float16, 1.0/3.0), values[2])
	require.NotEqual(t, 1.0/3.0, values[2])

	_, err := NewBuffer(shapes.Make(dtypes.Int32, 2))
	require.Error(t, err)

	buf = must.M1(BufferFromFlat([]float32{1, 2, 3, 4}, 2, 2))
	require.True(t, buf.Shape().Equal(shapes.Make(dtypes.Float32, 2, 2)))
	require.Equal(t, []float64{1, 2, 3, 4}, buf.Float64s())
	_, err = BufferFromFlat([]float64{1, 2, 3}, 2, 2)
	require.Error(t, err)
}

func TestRoundTo(t *testing.T) {
	require.Equal(t, float64(float32(0.1)), roundTo(dtypes.Float32, 0.1))
	require.Equal(t, 0.1, roundTo(dtypes.Float64, 0.1))
	require.Equal(t, float64(float16.Fromfloat32(0.1).Float32()), roundTo(dtypes.Float16, 0.1))
}
