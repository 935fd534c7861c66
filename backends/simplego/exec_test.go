// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math"
	"testing"

	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/pkg/core/handles"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func tensor(id ops.TensorID, status ops.TensorStatus, dtype dtypes.DType, dims ...int) ops.TensorDescription {
	return ops.TensorDescription{ID: id, Shape: shapes.Make(dtype, dims...), Status: status}
}

// execRaw executes op over the given inputs, and returns the values of its output.
func execRaw(t *testing.T, op ops.Op, inputs ...*Buffer) []float64 {
	container := handles.New()
	for ii, input := range op.Inputs() {
		container.Register(input.ID, inputs[ii])
	}
	require.NoError(t, backend.ExecuteRaw(0, op, container))
	output, found := container.Get(op.Output().ID)
	require.True(t, found)
	require.True(t, output.Shape().Equal(op.Output().Shape))
	return output.(*Buffer).Float64s()
}

func f32s(values ...float64) []float64 {
	for ii, v := range values {
		values[ii] = float64(float32(v))
	}
	return values
}

func TestExecBinary(t *testing.T) {
	x := must.M1(BufferFromFlat([]float32{1, -2, 3, 4}, 2, 2))
	y := must.M1(BufferFromFlat([]float32{10, 20, -30, 0.5}, 2, 2))
	binary := func(opType ops.OpType) ops.Op {
		return ops.BinaryOp{OpType: opType,
			Lhs: tensor(0, ops.ReadOnly, dtypes.Float32, 2, 2),
			Rhs: tensor(1, ops.ReadOnly, dtypes.Float32, 2, 2),
			Out: tensor(2, ops.NotInit, dtypes.Float32, 2, 2)}
	}
	require.Equal(t, []float64{11, 18, -27, 4.5}, execRaw(t, binary(ops.OpTypeAdd), x, y))
	require.Equal(t, []float64{-9, -22, 33, 3.5}, execRaw(t, binary(ops.OpTypeSub), x, y))
	require.Equal(t, []float64{10, -40, -90, 2}, execRaw(t, binary(ops.OpTypeMul), x, y))
	require.Equal(t, f32s(0.1, -0.1, -0.1, 8), execRaw(t, binary(ops.OpTypeDiv), x, y))
	require.Equal(t, []float64{10, 20, 3, 4}, execRaw(t, binary(ops.OpTypeMax), x, y))
	require.Equal(t, []float64{1, -2, -30, 0.5}, execRaw(t, binary(ops.OpTypeMin), x, y))
}

func TestExecScalarAndUnary(t *testing.T) {
	x := must.M1(BufferFromFlat([]float64{1, -2, 0.5}, 3))
	scalar := func(opType ops.OpType, value float64) ops.Op {
		return ops.ScalarOp{OpType: opType, Scalar: value,
			Lhs: tensor(0, ops.ReadOnly, dtypes.Float64, 3),
			Out: tensor(1, ops.NotInit, dtypes.Float64, 3)}
	}
	require.Equal(t, []float64{3, 0, 2.5}, execRaw(t, scalar(ops.OpTypeAddScalar, 2), x))
	require.Equal(t, []float64{-1, -4, -1.5}, execRaw(t, scalar(ops.OpTypeSubScalar, 2), x))
	require.Equal(t, []float64{2, -4, 1}, execRaw(t, scalar(ops.OpTypeMulScalar, 2), x))
	require.Equal(t, []float64{0.5, -1, 0.25}, execRaw(t, scalar(ops.OpTypeDivScalar, 2), x))

	unary := func(opType ops.OpType) ops.Op {
		return ops.UnaryOp{OpType: opType,
			Input: tensor(0, ops.ReadOnly, dtypes.Float64, 3),
			Out:   tensor(1, ops.NotInit, dtypes.Float64, 3)}
	}
	require.Equal(t, []float64{-1, 2, -0.5}, execRaw(t, unary(ops.OpTypeNeg), x))
	require.Equal(t, []float64{1, 2, 0.5}, execRaw(t, unary(ops.OpTypeAbs), x))
	require.Equal(t, []float64{math.Exp(1), math.Exp(-2), math.Exp(0.5)}, execRaw(t, unary(ops.OpTypeExp), x))
	require.Equal(t, []float64{math.Tanh(1), math.Tanh(-2), math.Tanh(0.5)}, execRaw(t, unary(ops.OpTypeTanh), x))
	logs := execRaw(t, unary(ops.OpTypeLog), x)
	require.Equal(t, 0.0, logs[0])
	require.True(t, math.IsNaN(logs[1]))
	sigmoid := execRaw(t, unary(ops.OpTypeLogistic), x)
	require.InDelta(t, 1/(1+math.Exp(2)), sigmoid[1], 1e-15)
	require.InDelta(t, 1/(1+math.Exp(-1)), sigmoid[0], 1e-15)
}

func TestExecReduce(t *testing.T) {
	// [[1, 2, 3], [4, 5, 6]]
	x := must.M1(BufferFromFlat([]float32{1, 2, 3, 4, 5, 6}, 2, 3))
	reduceOp := func(opType ops.OpType, axis int) ops.Op {
		input := tensor(0, ops.ReadOnly, dtypes.Float32, 2, 3)
		return ops.ReduceOp{OpType: opType, Axis: axis, Input: input,
			Out: ops.TensorDescription{ID: 1, Shape: input.Shape.Reduced(axis), Status: ops.NotInit}}
	}
	require.Equal(t, []float64{5, 7, 9}, execRaw(t, reduceOp(ops.OpTypeReduceSum, 0), x))
	require.Equal(t, []float64{6, 15}, execRaw(t, reduceOp(ops.OpTypeReduceSum, 1), x))
	require.Equal(t, []float64{4, 5, 6}, execRaw(t, reduceOp(ops.OpTypeReduceMax, 0), x))
	require.Equal(t, []float64{3, 6}, execRaw(t, reduceOp(ops.OpTypeReduceMax, 1), x))
	require.Equal(t, []float64{2, 5}, execRaw(t, reduceOp(ops.OpTypeReduceMean, 1), x))

	nan := must.M1(BufferFromFlat([]float32{1, float32(math.NaN()), 3, 4, 5, 6}, 2, 3))
	maxes := execRaw(t, reduceOp(ops.OpTypeReduceMax, 1), nan)
	require.True(t, math.IsNaN(maxes[0]))
	require.Equal(t, 6.0, maxes[1])
}

func TestExecRawErrors(t *testing.T) {
	container := handles.New()
	container.Register(0, must.M1(BufferFromFlat([]float32{1, 2}, 2)))

	// Missing input.
	op := ops.BinaryOp{OpType: ops.OpTypeAdd,
		Lhs: tensor(0, ops.ReadOnly, dtypes.Float32, 2),
		Rhs: tensor(5, ops.ReadOnly, dtypes.Float32, 2),
		Out: tensor(6, ops.NotInit, dtypes.Float32, 2)}
	require.ErrorIs(t, backend.ExecuteRaw(0, op, container), handles.ErrNotFound)

	// Unsupported dtype and inconsistent shapes.
	intOp := ops.UnaryOp{OpType: ops.OpTypeNeg, Input: tensor(1, ops.ReadOnly, dtypes.Int32, 2), Out: tensor(2, ops.NotInit, dtypes.Int32, 2)}
	require.ErrorIs(t, backend.ExecuteRaw(0, intOp, container), backends.ErrUnsupportedOperation)
	badShape := ops.UnaryOp{OpType: ops.OpTypeNeg, Input: tensor(0, ops.ReadOnly, dtypes.Float32, 2), Out: tensor(2, ops.NotInit, dtypes.Float32, 3)}
	require.ErrorIs(t, backend.ExecuteRaw(0, badShape, container), backends.ErrUnsupportedOperation)
	badAxis := ops.ReduceOp{OpType: ops.OpTypeReduceSum, Axis: 1, Input: tensor(0, ops.ReadOnly, dtypes.Float32, 2), Out: tensor(2, ops.NotInit, dtypes.Float32, 1)}
	require.ErrorIs(t, backend.ExecuteRaw(0, badAxis, container), backends.ErrUnsupportedOperation)
	badType := ops.UnaryOp{OpType: ops.OpTypeReduceSum, Input: tensor(0, ops.ReadOnly, dtypes.Float32, 2), Out: tensor(2, ops.NotInit, dtypes.Float32, 2)}
	require.ErrorIs(t, backend.ExecuteRaw(0, badType, container), backends.ErrUnsupportedOperation)

	// ReadWrite inputs are released.
	last := ops.UnaryOp{OpType: ops.OpTypeNeg, Input: tensor(0, ops.ReadWrite, dtypes.Float32, 2), Out: tensor(3, ops.NotInit, dtypes.Float32, 2)}
	require.NoError(t, backend.ExecuteRaw(0, last, container))
	_, found := container.Get(0)
	require.False(t, found)
	require.Equal(t, 1, container.Len())
}

func TestExecLarge(t *testing.T) {
	// More than one chunk, so it is split among workers.
	const size = 3*chunkSize + 17
	flat := make([]float32, size)
	for ii := range flat {
		flat[ii] = float32(ii)
	}
	x := must.M1(BufferFromFlat(flat, size))
	op := ops.ScalarOp{OpType: ops.OpTypeMulScalar, Scalar: 0.5,
		Lhs: tensor(0, ops.ReadOnly, dtypes.Float32, size),
		Out: tensor(1, ops.NotInit, dtypes.Float32, size)}
	got := execRaw(t, op, x)
	for ii, v := range got {
		if v != float64(ii)*0.5 {
			t.Fatalf("element %d: got %g, wanted %g", ii, v, float64(ii)*0.5)
		}
	}
}
