// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package index

import (
	"encoding/gob"
	"slices"

	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/pkg/errors"
)

// GobSerialize the index in binary format: buckets (sorted by hash, entries in insertion order)
// and then the slots.
func (idx *Index) GobSerialize(encoder *gob.Encoder) (err error) {
	enc := func(e any) {
		if err != nil {
			return
		}
		err = encoder.Encode(e)
		if err != nil {
			err = errors.Wrapf(err, "failed to serialize optimization index")
		}
	}
	keys := make([]uint64, 0, len(idx.buckets))
	for key := range idx.buckets {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	enc(len(keys))
	for _, key := range keys {
		bucket := idx.buckets[key]
		enc(key)
		enc(len(bucket))
		for _, e := range bucket {
			if err != nil {
				return
			}
			err = ops.GobSerialize(encoder, e.op)
			enc(e.slot)
		}
	}
	enc(len(idx.starters))
	for _, ids := range idx.starters {
		enc(ids)
	}
	return
}

// GobDeserialize an Index written by Index.GobSerialize.
//
// It fails if a stored hash doesn't match the hash of its operation (e.g. the hash function
// changed since the index was written), or if the bucket and slot structure is inconsistent.
func GobDeserialize(decoder *gob.Decoder) (idx *Index, err error) {
	dec := func(data any) {
		if err != nil {
			return
		}
		err = decoder.Decode(data)
		if err != nil {
			err = errors.Wrapf(err, "failed to deserialize optimization index")
		}
	}
	idx = New()
	var numBuckets int
	dec(&numBuckets)
	var slotsSeen []int
	for range numBuckets {
		var key uint64
		var numEntries int
		dec(&key)
		dec(&numEntries)
		if err != nil {
			return nil, err
		}
		bucket := make([]entry, 0, numEntries)
		for range numEntries {
			var e entry
			e.op, err = ops.GobDeserialize(decoder)
			dec(&e.slot)
			if err != nil {
				return nil, err
			}
			if idx.hash(e.op) != key {
				return nil, errors.Errorf("optimization index entry %s stored with hash %x, but it hashes to %x",
					e.op, key, idx.hash(e.op))
			}
			bucket = append(bucket, e)
			slotsSeen = append(slotsSeen, e.slot)
		}
		idx.buckets[key] = bucket
	}
	var numStarters int
	dec(&numStarters)
	if err != nil {
		return nil, err
	}
	idx.starters = make([][]OptimizationID, numStarters)
	for ii := range idx.starters {
		dec(&idx.starters[ii])
	}
	if err != nil {
		return nil, err
	}

	// Every slot must be reachable from exactly one entry.
	slices.Sort(slotsSeen)
	if len(slotsSeen) != numStarters {
		return nil, errors.Errorf("optimization index has %d entries for %d slots", len(slotsSeen), numStarters)
	}
	for ii, slot := range slotsSeen {
		if slot != ii {
			return nil, errors.Errorf("optimization index slot %d is not referenced exactly once", ii)
		}
	}
	return idx, nil
}
