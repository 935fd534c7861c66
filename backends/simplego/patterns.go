// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"slices"

	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/core/shapes"
	"k8s.io/klog/v2"
)

// Pattern builds the relative sequence of a fused pattern for tensors of the given shape.
type Pattern func(shape shapes.Shape) []ops.Op

// Patterns that can be offered by DiscoverOptimizations, configured with "fused=<pattern>:<dims>".
//
// In all patterns the inputs are ReadOnly, and the intermediate results are read only once (ReadWrite).
var Patterns = map[string]Pattern{
	// add_mul: (x + y) * scalar.
	"add_mul": func(shape shapes.Shape) []ops.Op {
		return []ops.Op{
			ops.BinaryOp{OpType: ops.OpTypeAdd, Lhs: desc(0, shape, ops.ReadOnly), Rhs: desc(1, shape, ops.ReadOnly), Out: desc(2, shape, ops.NotInit)},
			ops.ScalarOp{OpType: ops.OpTypeMulScalar, Lhs: desc(2, shape, ops.ReadWrite), Out: desc(3, shape, ops.NotInit)},
		}
	},

	// mul_add: x * scalar + scalar.
	"mul_add": func(shape shapes.Shape) []ops.Op {
		return []ops.Op{
			ops.ScalarOp{OpType: ops.OpTypeMulScalar, Lhs: desc(0, shape, ops.ReadOnly), Out: desc(1, shape, ops.NotInit)},
			ops.ScalarOp{OpType: ops.OpTypeAddScalar, Lhs: desc(1, shape, ops.ReadWrite), Out: desc(2, shape, ops.NotInit)},
		}
	},

	// exp_sum: sum of exp(x) over the last axis.
	"exp_sum": func(shape shapes.Shape) []ops.Op {
		axis := shape.Rank() - 1
		return []ops.Op{
			ops.UnaryOp{OpType: ops.OpTypeExp, Input: desc(0, shape, ops.ReadOnly), Out: desc(1, shape, ops.NotInit)},
			ops.ReduceOp{OpType: ops.OpTypeReduceSum, Input: desc(1, shape, ops.ReadWrite), Axis: axis, Out: desc(2, shape.Reduced(axis), ops.NotInit)},
		}
	},
}

// PatternNames returns the sorted names of the known Patterns.
func PatternNames() []string {
	names := make([]string, 0, len(Patterns))
	for name := range Patterns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func desc(id ops.TensorID, shape shapes.Shape, status ops.TensorStatus) ops.TensorDescription {
	return ops.TensorDescription{ID: id, Shape: shape, Status: status}
}

// DiscoverOptimizations implements backends.Backend: it compiles the patterns configured with "fused=...".
func (b *Backend) DiscoverOptimizations(device backends.DeviceNum) ([]backends.Candidate, error) {
	if err := b.checkDevice(device); err != nil {
		return nil, err
	}
	if b.noFusion {
		return nil, nil
	}
	candidates := make([]backends.Candidate, 0, len(b.patterns))
	for _, pc := range b.patterns {
		sequence := Patterns[pc.pattern](shapes.Make(pc.dtype, pc.dimensions...))
		optimization, err := b.Compile(device, sequence)
		if err != nil {
			return nil, err
		}
		klog.V(1).Infof("simplego: offering %s for %s", optimization, sequence)
		candidates = append(candidates, backends.Candidate{Sequence: sequence, Optimization: optimization})
	}
	return candidates, nil
}
