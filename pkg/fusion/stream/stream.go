// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package stream implements the ordered buffer of operations waiting to be executed.
//
// Operations are appended at the tail and consumed from the head, never reordered: this is the
// only ordering guarantee of the fusion runtime.
package stream

import (
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/support/sets"
	"github.com/pkg/errors"
)

// Stream of pending operations.
type Stream struct {
	ops []ops.Op

	// reads counts the tensors read by pending operations.
	reads sets.Counted[ops.TensorID]
}

// New returns an empty Stream.
func New() *Stream {
	return &Stream{reads: sets.MakeCounted[ops.TensorID]()}
}

// Append op to the tail of the stream.
//
// It panics with an error wrapping ops.ErrInvariantViolation if the output of op is not NotInit,
// or if it is read by an operation already in the stream.
func (s *Stream) Append(op ops.Op) {
	out := op.Output()
	if out.Status != ops.NotInit {
		panic(errors.Wrapf(ops.ErrInvariantViolation,
			"cannot register %s: its output has status %s, it must be %s", op, out.Status, ops.NotInit))
	}
	if s.reads.Has(out.ID) {
		panic(errors.Wrapf(ops.ErrInvariantViolation,
			"cannot register %s: its output is read by an operation registered earlier", op))
	}
	s.ops = append(s.ops, op)
	for _, input := range op.Inputs() {
		s.reads.Insert(input.ID)
	}
}

// Peek returns the first n operations (or all of them, if there are fewer), without consuming them.
//
// The returned slice is only valid until the next call to Append or Consume, and it must not be modified.
func (s *Stream) Peek(n int) []ops.Op {
	n = min(max(n, 0), len(s.ops))
	return s.ops[:n:n]
}

// Consume removes the first n operations. It panics if there are fewer than n operations.
//
// Once the stream is fully consumed its storage is kept for reuse.
func (s *Stream) Consume(n int) {
	if n < 0 || n > len(s.ops) {
		panic(errors.Wrapf(ops.ErrInvariantViolation, "cannot consume %d operations from a stream of %d", n, len(s.ops)))
	}
	for _, op := range s.ops[:n] {
		for _, input := range op.Inputs() {
			s.reads.Remove(input.ID)
		}
	}
	remaining := copy(s.ops, s.ops[n:])
	clear(s.ops[remaining:])
	s.ops = s.ops[:remaining]
}

// IsEmpty returns whether there are no pending operations.
func (s *Stream) IsEmpty() bool { return len(s.ops) == 0 }

// Len returns the number of pending operations.
func (s *Stream) Len() int { return len(s.ops) }
