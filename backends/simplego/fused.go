// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"strings"

	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/pkg/core/handles"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/core/relative"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// step computes one elementwise operation over chunks of values.
type step struct {
	opType ops.OpType
	kind   ops.OpKind
	binary binaryFn
	unary  unaryFn
	dtype  dtypes.DType

	// scalarIdx is the index of the scalar operand in the bound scalars, for ops.KindScalar.
	scalarIdx int
}

func newStep(op ops.Op, scalarIdx int) step {
	s := step{
		opType:    op.Type(),
		kind:      op.Type().Kind(),
		dtype:     op.Output().Shape.DType,
		scalarIdx: scalarIdx,
	}
	if s.kind == ops.KindUnary {
		s.unary = unaryFns[s.opType]
	} else {
		s.binary = binaryFns[s.opType]
	}
	return s
}

// eval the step: result[i] = op(operands[...][i]), rounded to the dtype.
//
// Rounding after every step makes a fused evaluation bit identical to executing the ops one at a time.
func (s step) eval(operands [][]float64, scalar float64, result []float64) {
	switch s.kind {
	case ops.KindBinary:
		lhs, rhs := operands[0], operands[1]
		for ii := range result {
			result[ii] = roundTo(s.dtype, s.binary(lhs[ii], rhs[ii]))
		}
	case ops.KindScalar:
		lhs := operands[0]
		for ii := range result {
			result[ii] = roundTo(s.dtype, s.binary(lhs[ii], scalar))
		}
	case ops.KindUnary:
		x := operands[0]
		for ii := range result {
			result[ii] = roundTo(s.dtype, s.unary(x[ii]))
		}
	}
}

// segmentStep is a step reading and writing registers of its segment.
type segmentStep struct {
	step
	operands []int
	output   int
}

// segment of a Program: either one reduction, or a run of elementwise ops over tensors of the same shape.
type segment struct {
	reduce *ops.ReduceOp

	// Elementwise segments: registers hold the relative description of each tensor used in the
	// segment. The externals are loaded from the handles container, the others are step outputs.
	size      int
	registers []ops.TensorDescription
	externals []int
	steps     []segmentStep
}

// Program is the fused optimization compiled by SimpleGo from a relative sequence of operations.
type Program struct {
	sequence   []ops.Op
	segments   []segment
	numScalars int
}

var _ backends.Optimization = (*Program)(nil)

// String implements backends.Optimization.
func (p *Program) String() string {
	var sb strings.Builder
	sb.WriteString("simplego[")
	for ii, seg := range p.segments {
		if ii > 0 {
			sb.WriteString(" | ")
		}
		if seg.reduce != nil {
			sb.WriteString(seg.reduce.OpType.String())
			continue
		}
		for jj, st := range seg.steps {
			if jj > 0 {
				sb.WriteString("+")
			}
			sb.WriteString(st.opType.String())
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// NumSegments returns the number of passes over the data the program makes.
func (p *Program) NumSegments() int { return len(p.segments) }

// Compile implements backends.Compiler. The sequence must be in relative form.
func (b *Backend) Compile(device backends.DeviceNum, sequence []ops.Op) (backends.Optimization, error) {
	if err := b.checkDevice(device); err != nil {
		return nil, err
	}
	if b.noFusion {
		return nil, unsupportedf("backend %q configured with fusion disabled (%q)", BackendName, b.config)
	}
	if len(sequence) == 0 {
		return nil, errors.Errorf("can't compile an empty sequence of operations")
	}
	p := &Program{sequence: sequence}
	var current *segment
	registerOf := make(map[ops.TensorID]int)
	for _, op := range sequence {
		if err := validate(op); err != nil {
			return nil, err
		}
		if reduceOp, ok := op.(ops.ReduceOp); ok {
			p.segments = append(p.segments, segment{reduce: &reduceOp})
			current = nil
			continue
		}
		out := op.Output()
		if current == nil || !current.registers[0].Shape.Equal(out.Shape) {
			p.segments = append(p.segments, segment{size: out.Shape.Size()})
			current = &p.segments[len(p.segments)-1]
			clear(registerOf)
		}
		st := segmentStep{step: newStep(op, p.numScalars)}
		if st.kind == ops.KindScalar {
			p.numScalars++
		}
		for _, input := range op.Inputs() {
			reg, found := registerOf[input.ID]
			if !found {
				reg = len(current.registers)
				current.registers = append(current.registers, input)
				current.externals = append(current.externals, reg)
				registerOf[input.ID] = reg
			}
			st.operands = append(st.operands, reg)
		}
		st.output = len(current.registers)
		current.registers = append(current.registers, out)
		registerOf[out.ID] = st.output
		current.steps = append(current.steps, st)
	}
	return p, nil
}

// bind returns the description of the concrete tensor bound to the relative one.
func bind(bindings relative.Bindings, desc ops.TensorDescription) ops.TensorDescription {
	desc.ID = bindings.Tensor(desc.ID)
	return desc
}

// ExecuteFused implements backends.Backend.
func (b *Backend) ExecuteFused(device backends.DeviceNum, optimization backends.Optimization,
	bindings relative.Bindings, container *handles.Container) error {
	if err := b.checkDevice(device); err != nil {
		return err
	}
	p, ok := optimization.(*Program)
	if !ok {
		return errors.Errorf("backend %q can't execute optimization %s of type %T", BackendName, optimization, optimization)
	}
	if len(bindings.Scalars) != p.numScalars || bindings.NumOps != len(p.sequence) {
		return errors.Errorf("optimization %s bound to %d ops and %d scalars, but it has %d ops and %d scalars",
			p, bindings.NumOps, len(bindings.Scalars), len(p.sequence), p.numScalars)
	}
	for ii := range p.segments {
		seg := &p.segments[ii]
		var err error
		if seg.reduce != nil {
			err = b.execReduceSegment(seg, bindings, container)
		} else {
			err = b.execElementwiseSegment(seg, bindings, container)
		}
		if err != nil {
			return errors.WithMessagef(err, "executing segment #%d of %s", ii, p)
		}
	}
	for _, op := range p.sequence {
		for _, input := range op.Inputs() {
			container.Release(bind(bindings, input))
		}
	}
	return nil
}

func (b *Backend) execReduceSegment(seg *segment, bindings relative.Bindings, container *handles.Container) error {
	input, err := inputBuffer(container, bind(bindings, seg.reduce.Input))
	if err != nil {
		return err
	}
	output, err := NewBuffer(seg.reduce.Out.Shape)
	if err != nil {
		return err
	}
	b.execReduce(*seg.reduce, input, output)
	container.Register(bindings.Tensor(seg.reduce.Out.ID), output)
	return nil
}

func (b *Backend) execElementwiseSegment(seg *segment, bindings relative.Bindings, container *handles.Container) error {
	buffers := make([]*Buffer, len(seg.registers))
	for _, reg := range seg.externals {
		var err error
		buffers[reg], err = inputBuffer(container, bind(bindings, seg.registers[reg]))
		if err != nil {
			return err
		}
	}
	for _, st := range seg.steps {
		var err error
		buffers[st.output], err = NewBuffer(seg.registers[st.output].Shape)
		if err != nil {
			return err
		}
	}

	b.parallelChunks(seg.size, func(start, end int) {
		values := make([][]float64, len(seg.registers))
		for reg := range values {
			values[reg] = make([]float64, end-start)
		}
		for _, reg := range seg.externals {
			buffers[reg].load(start, values[reg])
		}
		operands := make([][]float64, 0, 2)
		for _, st := range seg.steps {
			operands = operands[:0]
			for _, reg := range st.operands {
				operands = append(operands, values[reg])
			}
			var scalar float64
			if st.kind == ops.KindScalar {
				scalar = bindings.Scalars[st.scalarIdx]
			}
			st.eval(operands, scalar, values[st.output])
			buffers[st.output].store(start, values[st.output])
		}
	})

	for _, st := range seg.steps {
		container.Register(bindings.Tensor(seg.registers[st.output].ID), buffers[st.output])
	}
	return nil
}
