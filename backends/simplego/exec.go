// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/pkg/core/handles"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/core/relative"
	"github.com/pkg/errors"
)

// Canonicalize implements backends.Backend.
func (b *Backend) Canonicalize(stream []ops.Op) ([]ops.Op, relative.Bindings) {
	return relative.Convert(stream)
}

// inputBuffer returns the SimpleGo buffer of an operand.
func inputBuffer(container *handles.Container, desc ops.TensorDescription) (*Buffer, error) {
	buffer, err := container.Input(desc)
	if err != nil {
		return nil, err
	}
	goBuffer, ok := buffer.(*Buffer)
	if !ok {
		return nil, errors.Errorf("tensor %s holds a %T, not a %q backend buffer", desc.ID, buffer, BackendName)
	}
	return goBuffer, nil
}

// ExecuteRaw implements backends.Backend.
func (b *Backend) ExecuteRaw(device backends.DeviceNum, op ops.Op, container *handles.Container) error {
	if err := b.checkDevice(device); err != nil {
		return err
	}
	if err := validate(op); err != nil {
		return err
	}
	inputDescs := op.Inputs()
	inputs := make([]*Buffer, len(inputDescs))
	for ii, desc := range inputDescs {
		var err error
		inputs[ii], err = inputBuffer(container, desc)
		if err != nil {
			return errors.WithMessagef(err, "executing %s", op)
		}
	}
	output, err := NewBuffer(op.Output().Shape)
	if err != nil {
		return err
	}

	switch o := op.(type) {
	case ops.ReduceOp:
		b.execReduce(o, inputs[0], output)
	default:
		// Elementwise ops: a fused program of one step.
		step := newStep(o, 0)
		b.parallelChunks(output.shape.Size(), func(start, end int) {
			operands := make([][]float64, len(inputs))
			for ii, input := range inputs {
				operands[ii] = make([]float64, end-start)
				input.load(start, operands[ii])
			}
			result := make([]float64, end-start)
			step.eval(operands, scalarOf(op), result)
			output.store(start, result)
		})
	}
	container.Release(inputDescs...)
	container.Register(op.Output().ID, output)
	return nil
}

// scalarOf returns the scalar operand of op, or 0 if it has none.
func scalarOf(op ops.Op) float64 {
	if scalarOp, ok := op.(ops.ScalarOp); ok {
		return scalarOp.Scalar
	}
	return 0
}

// execReduce reduces input into output.
func (b *Backend) execReduce(op ops.ReduceOp, input, output *Buffer) {
	outerSize, axisSize, innerSize := reduceAxes(input.shape, op.Axis)
	values := input.Float64s()
	results := make([]float64, output.shape.Size())
	reduce(op.OpType, values, outerSize, axisSize, innerSize, results)
	output.store(0, results)
}

// parallelChunks calls fn for the chunks [start, end) that cover [0, size), in parallel when workers are available.
func (b *Backend) parallelChunks(size int, fn func(start, end int)) {
	numChunks := (size + chunkSize - 1) / chunkSize
	b.workers.ForEach(numChunks, func(chunkIdx int) {
		start := chunkIdx * chunkSize
		fn(start, min(start+chunkSize, size))
	})
}
