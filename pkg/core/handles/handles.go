// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package handles implements the container of live tensor buffers referenced by operation descriptors.
//
// The container is mutated in place by backends while they execute operations, and it is not
// safe for concurrent use: a stream processor must have exclusive access to it during an
// invocation.
package handles

import (
	"sync/atomic"

	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Buffer is a backend specific storage of a tensor's value.
type Buffer interface {
	Shape() shapes.Shape
}

// ErrNotFound is returned when a tensor has no materialized buffer.
var ErrNotFound = errors.New("tensor handle not found")

// nextTensorID is shared by all containers, so ids are unique within the process.
var nextTensorID atomic.Uint64

// NewTensorID returns a new process-unique tensor id.
func NewTensorID() ops.TensorID {
	return ops.TensorID(nextTensorID.Add(1) - 1)
}

// Container of live buffers, indexed by tensor id.
type Container struct {
	buffers map[ops.TensorID]Buffer
}

// New returns an empty Container.
func New() *Container {
	return &Container{buffers: make(map[ops.TensorID]Buffer)}
}

// Register the buffer for the tensor id, replacing any previous one.
func (c *Container) Register(id ops.TensorID, buffer Buffer) {
	c.buffers[id] = buffer
}

// Get returns the buffer of the tensor id, if materialized.
func (c *Container) Get(id ops.TensorID) (Buffer, bool) {
	buffer, found := c.buffers[id]
	return buffer, found
}

// Input returns the buffer for an operand of an operation.
// It returns an error wrapping ErrNotFound if the tensor has not been materialized.
func (c *Container) Input(desc ops.TensorDescription) (Buffer, error) {
	buffer, found := c.buffers[desc.ID]
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "tensor %s (%s)", desc, desc.Status)
	}
	if !buffer.Shape().Equal(desc.Shape) {
		return nil, errors.Errorf("tensor %s has a buffer of shape %s, but it is used with shape %s",
			desc.ID, buffer.Shape(), desc.Shape)
	}
	return buffer, nil
}

// Release drops the buffers of operands whose status is ReadWrite: it was their last read.
func (c *Container) Release(inputs ...ops.TensorDescription) {
	for _, input := range inputs {
		if input.Status == ops.ReadWrite {
			delete(c.buffers, input.ID)
		}
	}
}

// Remove the buffer of the tensor id, and returns it.
func (c *Container) Remove(id ops.TensorID) (Buffer, bool) {
	buffer, found := c.buffers[id]
	delete(c.buffers, id)
	return buffer, found
}

// Len returns the number of live buffers.
func (c *Container) Len() int { return len(c.buffers) }
