// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops describes the elementary tensor operations registered in a stream.
//
// An Op is an immutable value: one of BinaryOp, ScalarOp, UnaryOp or ReduceOp. Ops can be hashed
// (see Hash) and compared with Op.Equal, but they are not meant to be used as Go map keys: scalar
// operands are floating point values, and NaN is never equal to itself. Indexes over ops hash
// them for locality and then fall back to Equal.
package ops

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Op describes one elementary tensor operation and the tensors it reads and writes.
//
// The set of implementations is closed: BinaryOp, ScalarOp, UnaryOp and ReduceOp.
type Op interface {
	// Type of the operation.
	Type() OpType

	// Inputs returns the descriptions of the tensors read, in operand order.
	Inputs() []TensorDescription

	// Output returns the description of the tensor written.
	Output() TensorDescription

	// Equal returns whether other is structurally equal: same variant, type, tensors and scalars.
	Equal(other Op) bool

	// MapTensors returns a copy of the op with every tensor description replaced by fn(description),
	// visited in the order: inputs, then output.
	MapTensors(fn func(TensorDescription) TensorDescription) Op

	fmt.Stringer

	isOp()
}

// BinaryOp is an elementwise operation between two tensors of the same shape.
type BinaryOp struct {
	OpType        OpType
	Lhs, Rhs, Out TensorDescription
}

// ScalarOp is an elementwise operation between a tensor and a scalar.
type ScalarOp struct {
	OpType OpType
	Lhs    TensorDescription
	Scalar float64
	Out    TensorDescription
}

// UnaryOp is an elementwise function of one tensor.
type UnaryOp struct {
	OpType     OpType
	Input, Out TensorDescription
}

// ReduceOp reduces one axis of its input. The reduced axis is kept, with dimension 1.
type ReduceOp struct {
	OpType OpType
	Input  TensorDescription
	Axis   int
	Out    TensorDescription
}

var (
	_ Op = BinaryOp{}
	_ Op = ScalarOp{}
	_ Op = UnaryOp{}
	_ Op = ReduceOp{}
)

func (BinaryOp) isOp() {}
func (ScalarOp) isOp() {}
func (UnaryOp) isOp()  {}
func (ReduceOp) isOp() {}

// Type implements Op.
func (o BinaryOp) Type() OpType { return o.OpType }

// Inputs implements Op.
func (o BinaryOp) Inputs() []TensorDescription { return []TensorDescription{o.Lhs, o.Rhs} }

// Output implements Op.
func (o BinaryOp) Output() TensorDescription { return o.Out }

// Equal implements Op.
func (o BinaryOp) Equal(other Op) bool {
	o2, ok := other.(BinaryOp)
	return ok && o.OpType == o2.OpType && o.Lhs.Equal(o2.Lhs) && o.Rhs.Equal(o2.Rhs) && o.Out.Equal(o2.Out)
}

// MapTensors implements Op.
func (o BinaryOp) MapTensors(fn func(TensorDescription) TensorDescription) Op {
	o.Lhs = fn(o.Lhs)
	o.Rhs = fn(o.Rhs)
	o.Out = fn(o.Out)
	return o
}

// String implements fmt.Stringer.
func (o BinaryOp) String() string { return format(o.OpType, o.Inputs(), "", o.Out) }

// Type implements Op.
func (o ScalarOp) Type() OpType { return o.OpType }

// Inputs implements Op.
func (o ScalarOp) Inputs() []TensorDescription { return []TensorDescription{o.Lhs} }

// Output implements Op.
func (o ScalarOp) Output() TensorDescription { return o.Out }

// Equal implements Op. Scalars are compared with ==, so a NaN scalar never matches.
func (o ScalarOp) Equal(other Op) bool {
	o2, ok := other.(ScalarOp)
	return ok && o.OpType == o2.OpType && o.Scalar == o2.Scalar && o.Lhs.Equal(o2.Lhs) && o.Out.Equal(o2.Out)
}

// MapTensors implements Op.
func (o ScalarOp) MapTensors(fn func(TensorDescription) TensorDescription) Op {
	o.Lhs = fn(o.Lhs)
	o.Out = fn(o.Out)
	return o
}

// String implements fmt.Stringer.
func (o ScalarOp) String() string {
	return format(o.OpType, o.Inputs(), fmt.Sprintf("%g", o.Scalar), o.Out)
}

// Type implements Op.
func (o UnaryOp) Type() OpType { return o.OpType }

// Inputs implements Op.
func (o UnaryOp) Inputs() []TensorDescription { return []TensorDescription{o.Input} }

// Output implements Op.
func (o UnaryOp) Output() TensorDescription { return o.Out }

// Equal implements Op.
func (o UnaryOp) Equal(other Op) bool {
	o2, ok := other.(UnaryOp)
	return ok && o.OpType == o2.OpType && o.Input.Equal(o2.Input) && o.Out.Equal(o2.Out)
}

// MapTensors implements Op.
func (o UnaryOp) MapTensors(fn func(TensorDescription) TensorDescription) Op {
	o.Input = fn(o.Input)
	o.Out = fn(o.Out)
	return o
}

// String implements fmt.Stringer.
func (o UnaryOp) String() string { return format(o.OpType, o.Inputs(), "", o.Out) }

// Type implements Op.
func (o ReduceOp) Type() OpType { return o.OpType }

// Inputs implements Op.
func (o ReduceOp) Inputs() []TensorDescription { return []TensorDescription{o.Input} }

// Output implements Op.
func (o ReduceOp) Output() TensorDescription { return o.Out }

// Equal implements Op.
func (o ReduceOp) Equal(other Op) bool {
	o2, ok := other.(ReduceOp)
	return ok && o.OpType == o2.OpType && o.Axis == o2.Axis && o.Input.Equal(o2.Input) && o.Out.Equal(o2.Out)
}

// MapTensors implements Op.
func (o ReduceOp) MapTensors(fn func(TensorDescription) TensorDescription) Op {
	o.Input = fn(o.Input)
	o.Out = fn(o.Out)
	return o
}

// String implements fmt.Stringer.
func (o ReduceOp) String() string {
	return format(o.OpType, o.Inputs(), fmt.Sprintf("axis=%d", o.Axis), o.Out)
}

func format(opType OpType, inputs []TensorDescription, extra string, out TensorDescription) string {
	parts := make([]string, 0, len(inputs)+1)
	for _, input := range inputs {
		parts = append(parts, input.ID.String())
	}
	if extra != "" {
		parts = append(parts, extra)
	}
	return fmt.Sprintf("%s(%s)->%s", opType, strings.Join(parts, ", "), out)
}

// SequenceEqual returns whether both sequences have the same length and are element-wise Equal.
func SequenceEqual(a, b []Op) bool {
	if len(a) != len(b) {
		return false
	}
	for ii := range a {
		if !a[ii].Equal(b[ii]) {
			return false
		}
	}
	return true
}

// HasPrefix returns whether prefix is element-wise Equal to the leading ops of sequence.
func HasPrefix(sequence, prefix []Op) bool {
	return len(prefix) <= len(sequence) && SequenceEqual(sequence[:len(prefix)], prefix)
}

// ErrInvariantViolation is the error wrapped by panics on programming errors, e.g. registering an
// operation whose output is already materialized, or an optimization with an empty sequence.
var ErrInvariantViolation = errors.New("invariant violation")
