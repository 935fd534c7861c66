// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"encoding/gob"

	"github.com/pkg/errors"
)

// GobSerialize op in binary format: the op type followed by its variant fields.
func GobSerialize(encoder *gob.Encoder, op Op) (err error) {
	enc := func(e any) {
		if err != nil {
			return
		}
		err = encoder.Encode(e)
		if err != nil {
			err = errors.Wrapf(err, "failed to serialize op %s", op)
		}
	}
	tensor := func(d TensorDescription) {
		if err != nil {
			return
		}
		err = d.GobSerialize(encoder)
	}
	enc(int(op.Type()))
	switch o := op.(type) {
	case BinaryOp:
		tensor(o.Lhs)
		tensor(o.Rhs)
		tensor(o.Out)
	case ScalarOp:
		tensor(o.Lhs)
		enc(o.Scalar)
		tensor(o.Out)
	case UnaryOp:
		tensor(o.Input)
		tensor(o.Out)
	case ReduceOp:
		tensor(o.Input)
		enc(o.Axis)
		tensor(o.Out)
	default:
		return errors.Errorf("cannot serialize op of type %T", op)
	}
	return
}

// GobDeserialize an Op written by GobSerialize.
func GobDeserialize(decoder *gob.Decoder) (op Op, err error) {
	dec := func(data any) {
		if err != nil {
			return
		}
		err = decoder.Decode(data)
		if err != nil {
			err = errors.Wrapf(err, "failed to deserialize op")
		}
	}
	tensor := func() (d TensorDescription) {
		if err != nil {
			return
		}
		d, err = GobDeserializeTensor(decoder)
		return
	}
	var opTypeInt int
	dec(&opTypeInt)
	if err != nil {
		return nil, err
	}
	opType := OpType(opTypeInt)
	switch opType.Kind() {
	case KindBinary:
		o := BinaryOp{OpType: opType}
		o.Lhs = tensor()
		o.Rhs = tensor()
		o.Out = tensor()
		op = o
	case KindScalar:
		o := ScalarOp{OpType: opType}
		o.Lhs = tensor()
		dec(&o.Scalar)
		o.Out = tensor()
		op = o
	case KindUnary:
		o := UnaryOp{OpType: opType}
		o.Input = tensor()
		o.Out = tensor()
		op = o
	case KindReduce:
		o := ReduceOp{OpType: opType}
		o.Input = tensor()
		dec(&o.Axis)
		o.Out = tensor()
		op = o
	default:
		return nil, errors.Errorf("cannot deserialize op with unknown type %s", opType)
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}
