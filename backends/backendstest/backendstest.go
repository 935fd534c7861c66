// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backendstest implements a recording backend, to test the fusion core without computing
// any values.
//
// Buffers only carry a shape. Executions check that every input is materialized with the expected
// shape, register the outputs and release ReadWrite inputs, the same bookkeeping a real backend does.
package backendstest

import (
	"fmt"
	"slices"

	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/pkg/core/handles"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/core/relative"
	"github.com/gomlx/fusion/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Buffer holds only the shape of a tensor.
type Buffer struct {
	shape shapes.Shape
}

// NewBuffer returns a Buffer with the given shape.
func NewBuffer(shape shapes.Shape) *Buffer { return &Buffer{shape: shape} }

// Shape implements handles.Buffer.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// Optimization compiled by Backend: it simply holds the relative sequence.
type Optimization struct {
	Sequence []ops.Op
}

// String implements backends.Optimization.
func (o *Optimization) String() string { return fmt.Sprintf("fake[%d ops]", len(o.Sequence)) }

// FusedCall records one call to ExecuteFused.
type FusedCall struct {
	Device       backends.DeviceNum
	Optimization *Optimization

	// Ops are the concrete ops executed: the optimization's sequence bound to the concrete tensors.
	Ops []ops.Op
}

// Backend records the raw and fused executions it is asked to do.
//
// It implements backends.Backend and backends.Compiler.
type Backend struct {
	// BackendName returned by Name, "fake" if empty.
	BackendName string

	// Devices is the number of devices, 1 if 0.
	Devices backends.DeviceNum

	// Candidates returned by DiscoverOptimizations, for every device.
	Candidates []backends.Candidate

	// DiscoverErr, if set, is returned by DiscoverOptimizations.
	DiscoverErr error

	// Unsupported op types: executing them, raw or fused, fails with backends.ErrUnsupportedOperation.
	Unsupported []ops.OpType

	// DiscoverCalls counts the calls to DiscoverOptimizations.
	DiscoverCalls int

	// Raw are the ops executed with ExecuteRaw, in order.
	Raw []ops.Op

	// Fused are the calls to ExecuteFused, in order.
	Fused []FusedCall

	finalized bool
}

var (
	_ backends.Backend  = (*Backend)(nil)
	_ backends.Compiler = (*Backend)(nil)
)

// New returns a fake backend that offers the given candidates.
func New(candidates ...backends.Candidate) *Backend {
	return &Backend{Candidates: candidates}
}

// Candidate returns a candidate for the sequence, compiled by the fake backend.
// The sequence is converted to its relative form.
func Candidate(sequence ...ops.Op) backends.Candidate {
	relativeSequence, _ := relative.Convert(sequence)
	return backends.Candidate{Sequence: relativeSequence, Optimization: &Optimization{Sequence: relativeSequence}}
}

// Name implements backends.Backend.
func (b *Backend) Name() string {
	if b.BackendName == "" {
		return "fake"
	}
	return b.BackendName
}

// Description implements backends.Backend.
func (b *Backend) Description() string { return "Fake recording backend (" + b.Name() + ")" }

// NumDevices implements backends.Backend.
func (b *Backend) NumDevices() backends.DeviceNum { return max(b.Devices, 1) }

// DiscoverOptimizations implements backends.Backend.
func (b *Backend) DiscoverOptimizations(device backends.DeviceNum) ([]backends.Candidate, error) {
	b.DiscoverCalls++
	if err := b.checkDevice(device); err != nil {
		return nil, err
	}
	if b.DiscoverErr != nil {
		return nil, b.DiscoverErr
	}
	return slices.Clone(b.Candidates), nil
}

// Canonicalize implements backends.Backend.
func (b *Backend) Canonicalize(stream []ops.Op) ([]ops.Op, relative.Bindings) {
	return relative.Convert(stream)
}

// Compile implements backends.Compiler.
func (b *Backend) Compile(device backends.DeviceNum, sequence []ops.Op) (backends.Optimization, error) {
	if err := b.checkDevice(device); err != nil {
		return nil, err
	}
	for _, op := range sequence {
		if slices.Contains(b.Unsupported, op.Type()) {
			return nil, errors.Wrapf(backends.ErrUnsupportedOperation, "fake backend can't fuse %s", op)
		}
	}
	return &Optimization{Sequence: slices.Clone(sequence)}, nil
}

// ExecuteRaw implements backends.Backend.
func (b *Backend) ExecuteRaw(device backends.DeviceNum, op ops.Op, container *handles.Container) error {
	if err := b.checkDevice(device); err != nil {
		return err
	}
	if err := b.execute(op, container); err != nil {
		return err
	}
	b.Raw = append(b.Raw, op)
	return nil
}

// ExecuteFused implements backends.Backend.
func (b *Backend) ExecuteFused(device backends.DeviceNum, optimization backends.Optimization,
	bindings relative.Bindings, container *handles.Container) error {
	if err := b.checkDevice(device); err != nil {
		return err
	}
	fakeOptimization, ok := optimization.(*Optimization)
	if !ok {
		return errors.Errorf("fake backend can't execute optimization %s of type %T", optimization, optimization)
	}
	concrete := bindings.Bind(fakeOptimization.Sequence)
	for _, op := range concrete {
		if err := b.execute(op, container); err != nil {
			return errors.WithMessagef(err, "executing fused %s", optimization)
		}
	}
	b.Fused = append(b.Fused, FusedCall{Device: device, Optimization: fakeOptimization, Ops: concrete})
	return nil
}

// Finalize implements backends.Backend.
func (b *Backend) Finalize() { b.finalized = true }

// IsFinalized returns whether Finalize was called.
func (b *Backend) IsFinalized() bool { return b.finalized }

// NumFusedOps returns the total number of ops executed through ExecuteFused.
func (b *Backend) NumFusedOps() int {
	var count int
	for _, call := range b.Fused {
		count += len(call.Ops)
	}
	return count
}

// Reset clears the recorded executions.
func (b *Backend) Reset() {
	b.Raw = nil
	b.Fused = nil
}

func (b *Backend) checkDevice(device backends.DeviceNum) error {
	if b.finalized {
		return errors.Errorf("fake backend %q already finalized", b.Name())
	}
	if device < 0 || device >= b.NumDevices() {
		return errors.Errorf("fake backend %q has no device #%d", b.Name(), device)
	}
	return nil
}

func (b *Backend) execute(op ops.Op, container *handles.Container) error {
	if slices.Contains(b.Unsupported, op.Type()) {
		return errors.Wrapf(backends.ErrUnsupportedOperation, "fake backend can't execute %s", op)
	}
	inputs := op.Inputs()
	for _, input := range inputs {
		if _, err := container.Input(input); err != nil {
			return errors.WithMessagef(err, "executing %s", op)
		}
	}
	container.Release(inputs...)
	container.Register(op.Output().ID, NewBuffer(op.Output().Shape))
	return nil
}

// Materialize registers a buffer for each of the descriptions, so they can be used as inputs.
func Materialize(container *handles.Container, tensors ...ops.TensorDescription) {
	for _, t := range tensors {
		container.Register(t.ID, NewBuffer(t.Shape))
	}
}
