// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package opstest holds helpers to build operation descriptors in tests.
package opstest

import (
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
)

// Tensor returns a Float32 tensor description.
func Tensor(id ops.TensorID, status ops.TensorStatus, dims ...int) ops.TensorDescription {
	return ops.TensorDescription{ID: id, Shape: shapes.Make(dtypes.Float32, dims...), Status: status}
}

// RO returns a ReadOnly Float32 tensor description.
func RO(id ops.TensorID, dims ...int) ops.TensorDescription { return Tensor(id, ops.ReadOnly, dims...) }

// RW returns a ReadWrite Float32 tensor description.
func RW(id ops.TensorID, dims ...int) ops.TensorDescription { return Tensor(id, ops.ReadWrite, dims...) }

// Out returns a NotInit Float32 tensor description.
func Out(id ops.TensorID, dims ...int) ops.TensorDescription { return Tensor(id, ops.NotInit, dims...) }

// Binary returns a BinaryOp.
func Binary(opType ops.OpType, lhs, rhs, out ops.TensorDescription) ops.Op {
	return ops.BinaryOp{OpType: opType, Lhs: lhs, Rhs: rhs, Out: out}
}

// Scalar returns a ScalarOp.
func Scalar(opType ops.OpType, lhs ops.TensorDescription, scalar float64, out ops.TensorDescription) ops.Op {
	return ops.ScalarOp{OpType: opType, Lhs: lhs, Scalar: scalar, Out: out}
}

// Unary returns a UnaryOp.
func Unary(opType ops.OpType, input, out ops.TensorDescription) ops.Op {
	return ops.UnaryOp{OpType: opType, Input: input, Out: out}
}

// Reduce returns a ReduceOp.
func Reduce(opType ops.OpType, input ops.TensorDescription, axis int, out ops.TensorDescription) ops.Op {
	return ops.ReduceOp{OpType: opType, Input: input, Axis: axis, Out: out}
}

// Add32x32 returns Add(#lhs, #rhs)->#out over read-only [32, 32] operands.
func Add32x32(lhs, rhs, out ops.TensorID) ops.Op {
	return Binary(ops.OpTypeAdd, RO(lhs, 32, 32), RO(rhs, 32, 32), Out(out, 32, 32))
}

// Sub32x32 returns Sub(#lhs, #rhs)->#out over read-only [32, 32] operands.
func Sub32x32(lhs, rhs, out ops.TensorID) ops.Op {
	return Binary(ops.OpTypeSub, RO(lhs, 32, 32), RO(rhs, 32, 32), Out(out, 32, 32))
}

// AddScalar32x32 returns AddScalar(#lhs, scalar)->#out over a read-only [32, 32] operand.
func AddScalar32x32(lhs ops.TensorID, scalar float64, out ops.TensorID) ops.Op {
	return Scalar(ops.OpTypeAddScalar, RO(lhs, 32, 32), scalar, Out(out, 32, 32))
}
