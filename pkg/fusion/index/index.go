// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package index implements the index used to search optimizations by their starting operation.
//
// Operation descriptors can't be used as Go map keys: their scalar operands are floating point
// values, for which equality is not reflexive. Instead, the index maps a structural hash of the
// starting operation (see ops.Hash) to a bucket of (operation, slot) entries, and resolves hash
// collisions by comparing with ops.Op.Equal. Each slot holds the ids of the optimizations that
// start with exactly that operation, in registration order.
//
// Indexes are built over relative streams (see package relative), where scalars are zero, so a
// starting operation always equals itself.
package index

import (
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/support/sets"
	"github.com/pkg/errors"
)

// OptimizationID is an opaque handle to an optimization in a store's catalog.
// Ids are assigned monotonically and never reused.
type OptimizationID int

// ErrInvariantViolation is wrapped by the panic raised when inserting an optimization with an
// empty defining sequence.
var ErrInvariantViolation = ops.ErrInvariantViolation

// entry of a bucket: a starting operation and the slot with the ids of the optimizations starting with it.
type entry struct {
	op   ops.Op
	slot int
}

// Index of optimizations by starting operation.
//
// The zero value is not ready to use, create it with New.
type Index struct {
	// buckets maps the hash of a starting operation to the entries with that hash.
	// More than one entry means a hash collision between different operations.
	buckets map[uint64][]entry

	// starters are the slots: ids of the optimizations sharing the same starting operation.
	starters [][]OptimizationID

	// hash function used for the buckets, ops.Hash by default.
	hash func(ops.Op) uint64
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		buckets: make(map[uint64][]entry),
		hash:    ops.Hash,
	}
}

// Find returns the ids of the optimizations whose defining sequence starts with an operation
// equal to start, in registration order. It returns an empty slice if there are none.
//
// The returned slice is a copy, owned by the caller.
func (idx *Index) Find(start ops.Op) []OptimizationID {
	slot := idx.findSlot(idx.hash(start), start)
	if slot < 0 {
		return []OptimizationID{}
	}
	found := make([]OptimizationID, len(idx.starters[slot]))
	copy(found, idx.starters[slot])
	return found
}

// findSlot returns the slot of the entry equal to op in its bucket, or -1.
// The hash alone is never trusted.
func (idx *Index) findSlot(key uint64, op ops.Op) int {
	for _, e := range idx.buckets[key] {
		if e.op.Equal(op) {
			return e.slot
		}
	}
	return -1
}

// Insert registers the optimization id, defined by sequence.
//
// Only the first operation of sequence is indexed. It panics with an error wrapping
// ErrInvariantViolation if sequence is empty.
func (idx *Index) Insert(sequence []ops.Op, id OptimizationID) {
	if len(sequence) == 0 {
		panic(errors.Wrapf(ErrInvariantViolation, "optimization %d has an empty defining sequence", id))
	}
	start := sequence[0]
	key := idx.hash(start)
	if slot := idx.findSlot(key, start); slot >= 0 {
		// New optimization for an existing starter.
		idx.starters[slot] = append(idx.starters[slot], id)
		return
	}

	// New starter: either a new bucket or a hash collision with a different operation.
	slot := len(idx.starters)
	idx.starters = append(idx.starters, []OptimizationID{id})
	idx.buckets[key] = append(idx.buckets[key], entry{op: start, slot: slot})
}

// Len returns the number of distinct starting operations indexed.
func (idx *Index) Len() int { return len(idx.starters) }

// NumBuckets returns the number of distinct hashes indexed. It is smaller than Len when there are hash collisions.
func (idx *Index) NumBuckets() int { return len(idx.buckets) }

// CheckIDs returns an error if a slot holds an id outside of [0, numIDs), or if an id is indexed
// more than once.
func (idx *Index) CheckIDs(numIDs int) error {
	seen := sets.Make[OptimizationID](numIDs)
	for slot, ids := range idx.starters {
		for _, id := range ids {
			if id < 0 || int(id) >= numIDs {
				return errors.Errorf("optimization index slot %d holds optimization #%d, but there are only %d optimizations",
					slot, id, numIDs)
			}
			if seen.Has(id) {
				return errors.Errorf("optimization index lists optimization #%d more than once", id)
			}
			seen.Insert(id)
		}
	}
	return nil
}
