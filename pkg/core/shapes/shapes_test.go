// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Equal(t, 1, shape0.Size())

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 24, shape1.Size())
	require.Equal(t, 2, shape1.Dim(-1))
	require.Equal(t, "(Float32)[4 3 2]", shape1.String())

	require.True(t, shape1.Equal(Make(dtypes.Float32, 4, 3, 2)))
	require.False(t, shape1.Equal(Make(dtypes.Float64, 4, 3, 2)))
	require.True(t, shape1.EqualDimensions(Make(dtypes.Float64, 4, 3, 2)))
	require.False(t, shape1.Equal(Make(dtypes.Float32, 4, 3)))

	require.NotNil(t, exceptions.Try(func() { Make(dtypes.Float32, 2, 0) }))
	require.NotNil(t, exceptions.Try(func() { shape1.Dim(3) }))
}

func TestReduced(t *testing.T) {
	shape := Make(dtypes.Float32, 4, 3, 2)
	require.Equal(t, []int{4, 1, 2}, shape.Reduced(1).Dimensions)
	require.Equal(t, []int{4, 3, 1}, shape.Reduced(-1).Dimensions)
	// Original is untouched.
	require.Equal(t, []int{4, 3, 2}, shape.Dimensions)
}

func TestGobSerialize(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := gob.NewEncoder(buf)
	for _, s := range []Shape{Make(dtypes.Float16, 2, 3), Make(dtypes.Float64)} {
		require.NoError(t, s.GobSerialize(enc))
	}
	dec := gob.NewDecoder(buf)
	s, err := GobDeserialize(dec)
	require.NoError(t, err)
	require.True(t, s.Equal(Make(dtypes.Float16, 2, 3)))
	s, err = GobDeserialize(dec)
	require.NoError(t, err)
	require.True(t, s.Equal(Make(dtypes.Float64)))
	require.True(t, s.IsScalar())
}
