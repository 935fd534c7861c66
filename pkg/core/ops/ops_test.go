// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops_test

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/gomlx/fusion/pkg/core/ops"
	. "github.com/gomlx/fusion/pkg/core/ops/opstest"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpType(t *testing.T) {
	assert.Equal(t, "Add", ops.OpTypeAdd.String())
	assert.Equal(t, "ReduceMean", ops.OpTypeReduceMean.String())
	assert.Equal(t, "OpType(1000)", ops.OpType(1000).String())
	assert.Equal(t, ops.KindBinary, ops.OpTypeMin.Kind())
	assert.Equal(t, ops.KindScalar, ops.OpTypeDivScalar.Kind())
	assert.Equal(t, ops.KindUnary, ops.OpTypeLogistic.Kind())
	assert.Equal(t, ops.KindReduce, ops.OpTypeReduceSum.Kind())
	assert.Equal(t, ops.KindInvalid, ops.OpTypeInvalid.Kind())
	assert.True(t, ops.OpTypeExp.IsElementwise())
	assert.False(t, ops.OpTypeReduceMax.IsElementwise())
	for opType := ops.OpTypeInvalid; opType < ops.OpTypeLast; opType++ {
		assert.NotEmpty(t, opType.String())
	}
}

func TestEqual(t *testing.T) {
	require.True(t, Add32x32(0, 1, 2).Equal(Add32x32(0, 1, 2)))
	require.False(t, Add32x32(0, 1, 2).Equal(Sub32x32(0, 1, 2)))
	require.False(t, Add32x32(0, 1, 2).Equal(Add32x32(0, 1, 3)))
	require.False(t, Add32x32(0, 1, 2).Equal(AddScalar32x32(0, 1, 2)))
	require.False(t, Add32x32(0, 1, 2).Equal(
		Binary(ops.OpTypeAdd, RW(0, 32, 32), RO(1, 32, 32), Out(2, 32, 32))))
	require.False(t, Add32x32(0, 1, 2).Equal(
		Binary(ops.OpTypeAdd, RO(0, 32, 16), RO(1, 32, 32), Out(2, 32, 32))))

	require.True(t, AddScalar32x32(0, 5, 2).Equal(AddScalar32x32(0, 5, 2)))
	require.False(t, AddScalar32x32(0, 5, 2).Equal(AddScalar32x32(0, 6, 2)))

	// Not reflexive: NaN scalars never match.
	nanOp := AddScalar32x32(0, math.NaN(), 2)
	require.False(t, nanOp.Equal(nanOp))

	require.False(t, Reduce(ops.OpTypeReduceSum, RO(0, 4, 3), 0, Out(1, 1, 3)).Equal(
		Reduce(ops.OpTypeReduceSum, RO(0, 4, 3), 1, Out(1, 1, 3))))
}

func TestHash(t *testing.T) {
	require.Equal(t, ops.Hash(Add32x32(0, 1, 2)), ops.Hash(Add32x32(0, 1, 2)))
	require.NotEqual(t, ops.Hash(Add32x32(0, 1, 2)), ops.Hash(Sub32x32(0, 1, 2)))
	require.NotEqual(t, ops.Hash(Add32x32(0, 1, 2)), ops.Hash(Add32x32(1, 0, 2)))

	// Equal ops must hash the same, even when the scalar bits differ.
	pos, neg := AddScalar32x32(0, 0, 2), AddScalar32x32(0, math.Copysign(0, -1), 2)
	require.True(t, pos.Equal(neg))
	require.Equal(t, ops.Hash(pos), ops.Hash(neg))
}

func TestMapTensors(t *testing.T) {
	var visited []ops.TensorID
	op := Add32x32(7, 8, 9).MapTensors(func(d ops.TensorDescription) ops.TensorDescription {
		visited = append(visited, d.ID)
		d.ID += 100
		return d
	})
	require.Equal(t, []ops.TensorID{7, 8, 9}, visited)
	require.True(t, op.Equal(Add32x32(107, 108, 109)))
}

func TestString(t *testing.T) {
	assert.Equal(t, "Add(#0, #1)->#2(Float32)[32 32]", Add32x32(0, 1, 2).String())
	assert.Equal(t, "AddScalar(#0, 5)->#2(Float32)[32 32]", AddScalar32x32(0, 5, 2).String())
	assert.Equal(t, "ReduceSum(#0, axis=1)->#1(Float32)[4 1]",
		Reduce(ops.OpTypeReduceSum, RO(0, 4, 3), 1, Out(1, 4, 1)).String())
}

func TestGob(t *testing.T) {
	sequence := []ops.Op{
		Add32x32(0, 1, 2),
		AddScalar32x32(2, 5, 3),
		Unary(ops.OpTypeExp, RW(3, 32, 32), Out(4, 32, 32)),
		Reduce(ops.OpTypeReduceMax, RW(4, 32, 32), -1, Out(5, 32, 1)),
	}
	buf := &bytes.Buffer{}
	enc := gob.NewEncoder(buf)
	for _, op := range sequence {
		require.NoError(t, ops.GobSerialize(enc, op))
	}
	dec := gob.NewDecoder(buf)
	got := make([]ops.Op, 0, len(sequence))
	for range sequence {
		op, err := ops.GobDeserialize(dec)
		require.NoError(t, err)
		got = append(got, op)
	}
	if diff := cmp.Diff(sequence, got); diff != "" {
		t.Errorf("GobDeserialize() returned diff (-want +got):\n%s", diff)
	}
	require.True(t, ops.SequenceEqual(sequence, got))
}

func TestPrefix(t *testing.T) {
	sequence := []ops.Op{Add32x32(0, 1, 2), Sub32x32(2, 1, 3)}
	require.True(t, ops.HasPrefix(sequence, sequence[:1]))
	require.True(t, ops.HasPrefix(sequence, nil))
	require.False(t, ops.HasPrefix(sequence[:1], sequence))
	require.False(t, ops.HasPrefix(sequence, []ops.Op{Sub32x32(2, 1, 3)}))
}
