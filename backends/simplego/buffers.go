// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/fusion/pkg/core/handles"
	"github.com/gomlx/fusion/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// SupportedTypes enumerates the Go types of the buffers supported by SimpleGo.
type SupportedTypes interface {
	float16.Float16 | float32 | float64
}

// Buffer for SimpleGo backend holds a shape and the flat data, a slice of the Go type of the shape's dtype.
type Buffer struct {
	shape shapes.Shape

	// flat is always a slice of the underlying data type (shape.DType).
	flat any
}

var _ handles.Buffer = (*Buffer)(nil)

// IsSupportedDType returns whether SimpleGo buffers can hold values of dtype.
func IsSupportedDType(dtype dtypes.DType) bool {
	switch dtype {
	case dtypes.Float16, dtypes.Float32, dtypes.Float64:
		return true
	}
	return false
}

// NewBuffer creates a zero initialized buffer of the given shape.
func NewBuffer(shape shapes.Shape) (*Buffer, error) {
	size := shape.Size()
	buffer := &Buffer{shape: shape.Clone()}
	switch shape.DType {
	case dtypes.Float16:
		buffer.flat = make([]float16.Float16, size)
	case dtypes.Float32:
		buffer.flat = make([]float32, size)
	case dtypes.Float64:
		buffer.flat = make([]float64, size)
	default:
		return nil, errors.Errorf("SimpleGo doesn't support buffers of dtype %s (shape %s)", shape.DType, shape)
	}
	return buffer, nil
}

// BufferFromFlat creates a buffer that takes ownership of flat, with the given dimensions.
// The dtype is inferred from the type of flat.
func BufferFromFlat[T SupportedTypes](flat []T, dimensions ...int) (*Buffer, error) {
	var dtype dtypes.DType
	switch any(flat).(type) {
	case []float16.Float16:
		dtype = dtypes.Float16
	case []float32:
		dtype = dtypes.Float32
	case []float64:
		dtype = dtypes.Float64
	}
	shape := shapes.Make(dtype, dimensions...)
	if shape.Size() != len(flat) {
		return nil, errors.Errorf("flat data has %d elements, but shape %s requires %d", len(flat), shape, shape.Size())
	}
	return &Buffer{shape: shape, flat: flat}, nil
}

// Shape implements handles.Buffer.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// Flat returns the underlying flat data: a []float16.Float16, []float32 or []float64, according to the dtype.
// It is not a copy.
func (b *Buffer) Flat() any { return b.flat }

// Float64s returns a copy of the values of the buffer converted to float64.
func (b *Buffer) Float64s() []float64 {
	values := make([]float64, b.shape.Size())
	b.load(0, values)
	return values
}

// load values[i] = flat[start+i] for all values.
func (b *Buffer) load(start int, values []float64) {
	switch flat := b.flat.(type) {
	case []float16.Float16:
		for ii := range values {
			values[ii] = float64(flat[start+ii].Float32())
		}
	case []float32:
		loadGeneric(flat, start, values)
	case []float64:
		loadGeneric(flat, start, values)
	}
}

// store flat[start+i] = values[i] for all values, rounding to the dtype of the buffer.
func (b *Buffer) store(start int, values []float64) {
	switch flat := b.flat.(type) {
	case []float16.Float16:
		for ii, v := range values {
			flat[start+ii] = float16.Fromfloat32(float32(v))
		}
	case []float32:
		storeGeneric(flat, start, values)
	case []float64:
		storeGeneric(flat, start, values)
	}
}

func loadGeneric[T constraints.Float](flat []T, start int, values []float64) {
	for ii := range values {
		values[ii] = float64(flat[start+ii])
	}
}

func storeGeneric[T constraints.Float](flat []T, start int, values []float64) {
	for ii, v := range values {
		flat[start+ii] = T(v)
	}
}

// roundTo returns v rounded to the precision of dtype: the value that store followed by load would return.
func roundTo(dtype dtypes.DType, v float64) float64 {
	switch dtype {
	case dtypes.Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case dtypes.Float32:
		return float64(float32(v))
	default:
		return v
	}
}
