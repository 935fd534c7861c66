// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package relative converts streams of operations to their canonical, "relative", form.
//
// In a relative stream tensor ids are renumbered in order of first appearance (0, 1, 2, ...) and
// scalar operands are set to zero. Two streams with the same structure but different tensors or
// constants share the same relative form, so cached optimizations can be matched against it.
//
// Bindings is the inverse step: it maps the relative stream back to the concrete tensors and
// scalar values it was derived from.
package relative

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/fusion/pkg/core/ops"
)

// Bindings of a relative stream to the concrete stream it came from.
type Bindings struct {
	// Tensors maps a relative tensor id (the index) to the concrete tensor id.
	Tensors []ops.TensorID

	// Scalars holds the scalar operands of the concrete stream, in op order.
	Scalars []float64

	// NumOps is the number of ops converted.
	NumOps int

	// scalarsAt[i] is the number of scalars in the first i ops, it has NumOps+1 entries.
	scalarsAt []int

	// tensorsAt[i] is the number of distinct tensors in the first i ops, it has NumOps+1 entries.
	tensorsAt []int
}

// Convert returns the relative form of stream, and the Bindings to map it back.
func Convert(stream []ops.Op) (relativeStream []ops.Op, bindings Bindings) {
	mapping := make(map[ops.TensorID]ops.TensorID, 2*len(stream))
	bindings.NumOps = len(stream)
	bindings.scalarsAt = make([]int, 0, len(stream)+1)
	bindings.tensorsAt = make([]int, 0, len(stream)+1)
	relativeStream = make([]ops.Op, 0, len(stream))
	for _, op := range stream {
		bindings.scalarsAt = append(bindings.scalarsAt, len(bindings.Scalars))
		bindings.tensorsAt = append(bindings.tensorsAt, len(bindings.Tensors))
		relativeOp := op.MapTensors(func(d ops.TensorDescription) ops.TensorDescription {
			relativeID, found := mapping[d.ID]
			if !found {
				relativeID = ops.TensorID(len(bindings.Tensors))
				mapping[d.ID] = relativeID
				bindings.Tensors = append(bindings.Tensors, d.ID)
			}
			d.ID = relativeID
			return d
		})
		if scalarOp, ok := relativeOp.(ops.ScalarOp); ok {
			bindings.Scalars = append(bindings.Scalars, scalarOp.Scalar)
			scalarOp.Scalar = 0
			relativeOp = scalarOp
		}
		relativeStream = append(relativeStream, relativeOp)
	}
	bindings.scalarsAt = append(bindings.scalarsAt, len(bindings.Scalars))
	bindings.tensorsAt = append(bindings.tensorsAt, len(bindings.Tensors))
	return
}

// Prefix returns the bindings restricted to the first numOps ops of the converted stream.
//
// Relative ids are assigned in order of first appearance, so the bindings of a prefix are a
// prefix of the bindings.
func (b Bindings) Prefix(numOps int) Bindings {
	if numOps < 0 || numOps > b.NumOps {
		exceptions.Panicf("relative.Bindings.Prefix(%d) out-of-bounds for %d ops", numOps, b.NumOps)
	}
	return Bindings{
		Tensors:   b.Tensors[:b.tensorsAt[numOps]:b.tensorsAt[numOps]],
		Scalars:   b.Scalars[:b.scalarsAt[numOps]:b.scalarsAt[numOps]],
		NumOps:    numOps,
		scalarsAt: b.scalarsAt[:numOps+1],
		tensorsAt: b.tensorsAt[:numOps+1],
	}
}

// Tensor returns the concrete tensor id bound to the relative id.
func (b Bindings) Tensor(relativeID ops.TensorID) ops.TensorID {
	if int(relativeID) >= len(b.Tensors) {
		exceptions.Panicf("relative tensor %s is not bound (%d tensors bound)", relativeID, len(b.Tensors))
	}
	return b.Tensors[relativeID]
}

// Bind returns the concrete ops of a relative sequence, which must have the same structure as the
// converted stream (e.g. a cached optimization that matched it).
func (b Bindings) Bind(relativeStream []ops.Op) []ops.Op {
	concrete := make([]ops.Op, 0, len(relativeStream))
	scalarIdx := 0
	for _, op := range relativeStream {
		concreteOp := op.MapTensors(func(d ops.TensorDescription) ops.TensorDescription {
			d.ID = b.Tensor(d.ID)
			return d
		})
		if scalarOp, ok := concreteOp.(ops.ScalarOp); ok {
			if scalarIdx >= len(b.Scalars) {
				exceptions.Panicf("relative stream has more scalar operands than the %d bound", len(b.Scalars))
			}
			scalarOp.Scalar = b.Scalars[scalarIdx]
			scalarIdx++
			concreteOp = scalarOp
		}
		concrete = append(concrete, concreteOp)
	}
	return concrete
}
