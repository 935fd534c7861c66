// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package stream

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/fusion/pkg/core/ops"
	. "github.com/gomlx/fusion/pkg/core/ops/opstest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func requireInvariantViolation(t *testing.T, fn func()) {
	exception := exceptions.Try(fn)
	require.NotNil(t, exception)
	err, ok := exception.(error)
	require.True(t, ok, "expected an error, got %v", exception)
	require.True(t, errors.Is(err, ops.ErrInvariantViolation), "got %+v", err)
}

func TestAppendPeekConsume(t *testing.T) {
	s := New()
	require.True(t, s.IsEmpty())
	require.Empty(t, s.Peek(3))

	sequence := []ops.Op{Add32x32(0, 1, 2), AddScalar32x32(2, 1, 3), Sub32x32(3, 1, 4)}
	for _, op := range sequence {
		s.Append(op)
	}
	require.Equal(t, 3, s.Len())
	require.True(t, ops.SequenceEqual(sequence[:2], s.Peek(2)))
	require.True(t, ops.SequenceEqual(sequence, s.Peek(10)))
	require.Equal(t, 3, s.Len(), "Peek must not consume")

	s.Consume(1)
	require.Equal(t, 2, s.Len())
	require.True(t, s.Peek(1)[0].Equal(sequence[1]))

	s.Consume(2)
	require.True(t, s.IsEmpty())
	require.Equal(t, 0, len(s.reads))
}

func TestConsumeKeepsStorage(t *testing.T) {
	s := New()
	s.Append(Add32x32(0, 1, 2))
	s.Append(Add32x32(0, 1, 3))
	capacity := cap(s.ops)
	s.Consume(2)
	require.Equal(t, capacity, cap(s.ops))
	s.Append(Add32x32(0, 1, 4))
	require.Equal(t, capacity, cap(s.ops))
}

func TestConsumeTooMany(t *testing.T) {
	s := New()
	s.Append(Add32x32(0, 1, 2))
	requireInvariantViolation(t, func() { s.Consume(2) })
	require.Equal(t, 1, s.Len())
}

func TestAppendInvariants(t *testing.T) {
	s := New()
	// Output already materialized.
	requireInvariantViolation(t, func() {
		s.Append(Binary(ops.OpTypeAdd, RO(0, 32, 32), RO(1, 32, 32), RO(2, 32, 32)))
	})

	// Output read by an earlier operation.
	s.Append(Add32x32(0, 1, 2))
	requireInvariantViolation(t, func() { s.Append(Add32x32(2, 2, 1)) })

	// Once the reader is consumed, the tensor id can be written again.
	s.Consume(1)
	s.Append(Add32x32(2, 2, 1))
	require.Equal(t, 1, s.Len())
}
