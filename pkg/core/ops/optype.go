// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import "fmt"

// OpType is an enum of all elementary operations that can be registered in a stream.
//
// The numbering is part of the persisted catalog format: new values are only ever appended
// right before OpTypeLast.
type OpType int

const (
	OpTypeInvalid OpType = iota

	// Binary operations: BinaryOp.
	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeDiv
	OpTypeMax
	OpTypeMin

	// Tensor-scalar operations: ScalarOp.
	OpTypeAddScalar
	OpTypeSubScalar
	OpTypeMulScalar
	OpTypeDivScalar

	// Unary operations: UnaryOp.
	OpTypeNeg
	OpTypeAbs
	OpTypeExp
	OpTypeLog
	OpTypeSqrt
	OpTypeTanh
	OpTypeLogistic

	// Reductions along one axis: ReduceOp.
	OpTypeReduceSum
	OpTypeReduceMax
	OpTypeReduceMean

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

var opTypeNames = [OpTypeLast]string{
	OpTypeInvalid:    "Invalid",
	OpTypeAdd:        "Add",
	OpTypeSub:        "Sub",
	OpTypeMul:        "Mul",
	OpTypeDiv:        "Div",
	OpTypeMax:        "Max",
	OpTypeMin:        "Min",
	OpTypeAddScalar:  "AddScalar",
	OpTypeSubScalar:  "SubScalar",
	OpTypeMulScalar:  "MulScalar",
	OpTypeDivScalar:  "DivScalar",
	OpTypeNeg:        "Neg",
	OpTypeAbs:        "Abs",
	OpTypeExp:        "Exp",
	OpTypeLog:        "Log",
	OpTypeSqrt:       "Sqrt",
	OpTypeTanh:       "Tanh",
	OpTypeLogistic:   "Logistic",
	OpTypeReduceSum:  "ReduceSum",
	OpTypeReduceMax:  "ReduceMax",
	OpTypeReduceMean: "ReduceMean",
}

// String implements fmt.Stringer.
func (t OpType) String() string {
	if t < 0 || t >= OpTypeLast {
		return fmt.Sprintf("OpType(%d)", int(t))
	}
	return opTypeNames[t]
}

// OpKind groups operation types by operand arity, and tells which Op variant describes them.
type OpKind int

const (
	KindInvalid OpKind = iota
	KindBinary
	KindScalar
	KindUnary
	KindReduce
)

// Kind returns the operand arity group of the operation type.
func (t OpType) Kind() OpKind {
	switch {
	case t >= OpTypeAdd && t <= OpTypeMin:
		return KindBinary
	case t >= OpTypeAddScalar && t <= OpTypeDivScalar:
		return KindScalar
	case t >= OpTypeNeg && t <= OpTypeLogistic:
		return KindUnary
	case t >= OpTypeReduceSum && t <= OpTypeReduceMean:
		return KindReduce
	default:
		return KindInvalid
	}
}

// IsElementwise returns whether the output element i depends only on input elements i.
func (t OpType) IsElementwise() bool {
	kind := t.Kind()
	return kind == KindBinary || kind == KindScalar || kind == KindUnary
}
