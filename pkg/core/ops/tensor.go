// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"encoding/gob"
	"fmt"

	"github.com/gomlx/fusion/pkg/core/shapes"
	"github.com/pkg/errors"
)

// TensorID identifies a tensor. It is opaque and unique within the process.
type TensorID uint64

// String implements fmt.Stringer.
func (id TensorID) String() string { return fmt.Sprintf("#%d", uint64(id)) }

// TensorStatus tells how an operation uses a tensor.
type TensorStatus int

const (
	// ReadOnly tensors are read, and still used by later operations.
	ReadOnly TensorStatus = iota

	// ReadWrite marks the last read of a tensor: its buffer can be released (or reused) by the
	// operation reading it.
	ReadWrite

	// NotInit is the status of an output that has not been materialized yet.
	NotInit
)

// String implements fmt.Stringer.
func (s TensorStatus) String() string {
	switch s {
	case ReadOnly:
		return "ReadOnly"
	case ReadWrite:
		return "ReadWrite"
	case NotInit:
		return "NotInit"
	default:
		return fmt.Sprintf("TensorStatus(%d)", int(s))
	}
}

// TensorDescription describes a tensor read or written by an operation.
type TensorDescription struct {
	ID     TensorID
	Shape  shapes.Shape
	Status TensorStatus
}

// Equal compares id, status and shape.
func (d TensorDescription) Equal(d2 TensorDescription) bool {
	return d.ID == d2.ID && d.Status == d2.Status && d.Shape.Equal(d2.Shape)
}

// String implements fmt.Stringer.
func (d TensorDescription) String() string {
	return fmt.Sprintf("%s%s", d.ID, d.Shape)
}

// GobSerialize the tensor description in binary format.
func (d TensorDescription) GobSerialize(encoder *gob.Encoder) error {
	if err := encoder.Encode(uint64(d.ID)); err != nil {
		return errors.Wrapf(err, "failed to serialize TensorDescription %s", d)
	}
	if err := encoder.Encode(int(d.Status)); err != nil {
		return errors.Wrapf(err, "failed to serialize TensorDescription %s", d)
	}
	return d.Shape.GobSerialize(encoder)
}

// GobDeserializeTensor reads a TensorDescription written by TensorDescription.GobSerialize.
func GobDeserializeTensor(decoder *gob.Decoder) (d TensorDescription, err error) {
	var id uint64
	var status int
	if err = decoder.Decode(&id); err != nil {
		return d, errors.Wrap(err, "failed to deserialize TensorDescription")
	}
	if err = decoder.Decode(&status); err != nil {
		return d, errors.Wrap(err, "failed to deserialize TensorDescription")
	}
	d.ID = TensorID(id)
	d.Status = TensorStatus(status)
	d.Shape, err = shapes.GobDeserialize(decoder)
	return
}
