// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Hash returns a structural hash of op, consistent with Op.Equal: equal ops have equal hashes.
//
// Scalar operands are not hashed: 0.0 and -0.0 are equal but have different bits, and a NaN
// never equals anything anyway. The encoding is fixed (little-endian, field by field), so the
// hash is stable across processes and can be persisted.
func Hash(op Op) uint64 {
	h := hasher{digest: xxhash.New()}
	h.int(int64(op.Type()))
	for _, input := range op.Inputs() {
		h.tensor(input)
	}
	h.tensor(op.Output())
	if reduce, ok := op.(ReduceOp); ok {
		h.int(int64(reduce.Axis))
	}
	return h.digest.Sum64()
}

type hasher struct {
	digest *xxhash.Digest
	buf    [8]byte
}

func (h *hasher) int(v int64) {
	binary.LittleEndian.PutUint64(h.buf[:], uint64(v))
	_, _ = h.digest.Write(h.buf[:])
}

func (h *hasher) tensor(d TensorDescription) {
	h.int(int64(d.ID))
	h.int(int64(d.Status))
	h.int(int64(d.Shape.DType))
	h.int(int64(d.Shape.Rank()))
	for _, dim := range d.Shape.Dimensions {
		h.int(int64(dim))
	}
}
