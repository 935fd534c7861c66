// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math"

	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Elementwise functions, computed in float64: results are rounded to the dtype of the output when stored.
type (
	binaryFn func(lhs, rhs float64) float64
	unaryFn  func(x float64) float64
)

var binaryFns = map[ops.OpType]binaryFn{
	ops.OpTypeAdd:       func(lhs, rhs float64) float64 { return lhs + rhs },
	ops.OpTypeSub:       func(lhs, rhs float64) float64 { return lhs - rhs },
	ops.OpTypeMul:       func(lhs, rhs float64) float64 { return lhs * rhs },
	ops.OpTypeDiv:       func(lhs, rhs float64) float64 { return lhs / rhs },
	ops.OpTypeMax:       math.Max,
	ops.OpTypeMin:       math.Min,
	ops.OpTypeAddScalar: func(lhs, rhs float64) float64 { return lhs + rhs },
	ops.OpTypeSubScalar: func(lhs, rhs float64) float64 { return lhs - rhs },
	ops.OpTypeMulScalar: func(lhs, rhs float64) float64 { return lhs * rhs },
	ops.OpTypeDivScalar: func(lhs, rhs float64) float64 { return lhs / rhs },
}

var unaryFns = map[ops.OpType]unaryFn{
	ops.OpTypeNeg:      func(x float64) float64 { return -x },
	ops.OpTypeAbs:      math.Abs,
	ops.OpTypeExp:      math.Exp,
	ops.OpTypeLog:      math.Log,
	ops.OpTypeSqrt:     math.Sqrt,
	ops.OpTypeTanh:     math.Tanh,
	ops.OpTypeLogistic: logistic,
}

func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// validate checks that SimpleGo can execute op: supported op type and dtype, and consistent shapes.
// Errors wrap backends.ErrUnsupportedOperation.
func validate(op ops.Op) error {
	out := op.Output().Shape
	if !IsSupportedDType(out.DType) {
		return unsupportedf("%s: dtype %s not supported", op, out.DType)
	}
	for _, input := range op.Inputs() {
		if input.Shape.DType != out.DType {
			return unsupportedf("%s: mixed dtypes %s and %s not supported", op, input.Shape.DType, out.DType)
		}
	}
	switch o := op.(type) {
	case ops.BinaryOp:
		if _, found := binaryFns[o.OpType]; !found || o.OpType.Kind() != ops.KindBinary {
			return unsupportedf("%s: unknown binary op", op)
		}
		if !o.Lhs.Shape.Equal(out) || !o.Rhs.Shape.Equal(out) {
			return unsupportedf("%s: operands must have the same shape as the output", op)
		}
	case ops.ScalarOp:
		if _, found := binaryFns[o.OpType]; !found || o.OpType.Kind() != ops.KindScalar {
			return unsupportedf("%s: unknown scalar op", op)
		}
		if !o.Lhs.Shape.Equal(out) {
			return unsupportedf("%s: operand must have the same shape as the output", op)
		}
	case ops.UnaryOp:
		if _, found := unaryFns[o.OpType]; !found {
			return unsupportedf("%s: unknown unary op", op)
		}
		if !o.Input.Shape.Equal(out) {
			return unsupportedf("%s: operand must have the same shape as the output", op)
		}
	case ops.ReduceOp:
		if o.OpType.Kind() != ops.KindReduce {
			return unsupportedf("%s: unknown reduce op", op)
		}
		if o.Axis < 0 || o.Axis >= o.Input.Shape.Rank() {
			return unsupportedf("%s: axis out-of-bounds for input shape %s", op, o.Input.Shape)
		}
		if !o.Input.Shape.Reduced(o.Axis).Equal(out) {
			return unsupportedf("%s: output shape must be %s", op, o.Input.Shape.Reduced(o.Axis))
		}
	default:
		return unsupportedf("%s: unknown op variant %T", op, op)
	}
	return nil
}

// reduceAxes splits shape around axis: outerSize * axisSize * innerSize == shape.Size().
func reduceAxes(shape shapes.Shape, axis int) (outerSize, axisSize, innerSize int) {
	outerSize, innerSize = 1, 1
	for ii, dim := range shape.Dimensions {
		switch {
		case ii < axis:
			outerSize *= dim
		case ii == axis:
			axisSize = dim
		default:
			innerSize *= dim
		}
	}
	return
}

// reduce input (values of the shape split by reduceAxes) into output, of size outerSize*innerSize.
func reduce(opType ops.OpType, input []float64, outerSize, axisSize, innerSize int, output []float64) {
	for outer := range outerSize {
		for inner := range innerSize {
			base := outer*axisSize*innerSize + inner
			var acc float64
			if opType == ops.OpTypeReduceMax {
				acc = math.Inf(-1)
			}
			for ii := range axisSize {
				v := input[base+ii*innerSize]
				if opType == ops.OpTypeReduceMax {
					// NaN propagates.
					if v > acc || math.IsNaN(v) {
						acc = v
					}
					if math.IsNaN(acc) {
						break
					}
				} else {
					acc += v
				}
			}
			if opType == ops.OpTypeReduceMean {
				acc /= float64(axisSize)
			}
			output[outer*innerSize+inner] = acc
		}
	}
}

// chunkSize is the number of elements processed by each task of an elementwise kernel.
const chunkSize = 4096

func unsupportedf(format string, args ...any) error {
	return errors.Wrapf(errUnsupported, format, args...)
}
