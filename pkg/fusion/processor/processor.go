// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package processor executes the operations pending in a stream, replacing the sequences that match
// a registered optimization by one fused execution.
//
// Each call to Processor.Process runs synchronously to completion. There is no state kept between
// calls other than statistics: everything pending lives in the stream.
package processor

import (
	"fmt"
	"slices"

	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/pkg/core/handles"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/fusion/store"
	"github.com/gomlx/fusion/pkg/fusion/stream"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ExecutionMode of one invocation of the processor.
type ExecutionMode int

const (
	// Lazy executes only what can't profit from waiting for more operations: it stops after one
	// unmatched operation is executed raw, or as soon as the pending operations are the beginning of
	// a longer optimization.
	Lazy ExecutionMode = iota

	// Sync executes until the stream is empty.
	Sync
)

// String implements fmt.Stringer.
func (m ExecutionMode) String() string {
	switch m {
	case Lazy:
		return "Lazy"
	case Sync:
		return "Sync"
	default:
		return fmt.Sprintf("ExecutionMode(%d)", int(m))
	}
}

// Stats of a processor, accumulated across invocations.
type Stats struct {
	// FusedExecutions is the number of optimizations executed, and FusedOps the number of operations they replaced.
	FusedExecutions, FusedOps int

	// RawExecutions is the number of operations executed one at a time.
	RawExecutions int

	// Deferrals counts the Lazy invocations that returned early waiting for a longer optimization to match.
	Deferrals int
}

// Add returns the sum of both stats.
func (s Stats) Add(s2 Stats) Stats {
	return Stats{
		FusedExecutions: s.FusedExecutions + s2.FusedExecutions,
		FusedOps:        s.FusedOps + s2.FusedOps,
		RawExecutions:   s.RawExecutions + s2.RawExecutions,
		Deferrals:       s.Deferrals + s2.Deferrals,
	}
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("%d fused executions (%d ops), %d raw executions, %d deferrals",
		s.FusedExecutions, s.FusedOps, s.RawExecutions, s.Deferrals)
}

// Processor of streams for one device of a backend.
//
// It is not safe for concurrent use, and it requires exclusive access to the handles container
// during Process.
type Processor struct {
	backend backends.Backend
	device  backends.DeviceNum
	catalog *store.Catalog
	stats   Stats
}

// New returns a processor that executes on the device, matching the optimizations of catalog.
func New(backend backends.Backend, device backends.DeviceNum, catalog *store.Catalog) *Processor {
	return &Processor{
		backend: backend,
		device:  device,
		catalog: catalog,
	}
}

// Stats returns the accumulated statistics.
func (p *Processor) Stats() Stats { return p.stats }

// match is the result of matching the head of the stream against the catalog.
type match struct {
	record *store.Record

	// extendable is set if an optimization longer than the pending operations starts with all of them.
	extendable bool
}

// Process executes operations of the stream according to mode, reading and writing the tensors in container.
//
// Matched optimizations are executed fused, and unmatched operations are executed raw, one at a time,
// always in stream order. Errors returned by the backend, typically wrapping
// backends.ErrUnsupportedOperation, are returned after the failed operations are consumed from the
// stream: retrying them wouldn't help.
func (p *Processor) Process(s *stream.Stream, container *handles.Container, mode ExecutionMode) error {
	before := p.stats
	defer func() {
		if klog.V(1).Enabled() && p.stats != before {
			delta := Stats{
				FusedExecutions: p.stats.FusedExecutions - before.FusedExecutions,
				FusedOps:        p.stats.FusedOps - before.FusedOps,
				RawExecutions:   p.stats.RawExecutions - before.RawExecutions,
				Deferrals:       p.stats.Deferrals - before.Deferrals,
			}
			klog.Infof("processor(device #%d, %s): %s, %d ops pending", p.device, mode, delta, s.Len())
		}
	}()

	for !s.IsEmpty() {
		pending := s.Peek(max(p.catalog.MaxSequenceLen(), 1))
		relativeOps, bindings := p.backend.Canonicalize(pending)
		m := p.match(relativeOps, s.Len())
		if mode == Lazy && m.extendable {
			p.stats.Deferrals++
			klog.V(2).Infof("processor(device #%d): %d pending ops may be extended into a longer optimization, waiting",
				p.device, s.Len())
			return nil
		}

		if m.record != nil {
			length := len(m.record.Sequence)
			// pending shares the stream's storage, which Consume overwrites.
			matched := slices.Clone(pending[:length])
			klog.V(2).Infof("processor(device #%d): matched optimization #%d (%s) with %v",
				p.device, m.record.ID, m.record.Optimization, matched)
			err := p.backend.ExecuteFused(p.device, m.record.Optimization, bindings.Prefix(length), container)
			s.Consume(length)
			if err != nil {
				return errors.WithMessagef(err, "executing optimization #%d (%s) on device #%d for %v",
					m.record.ID, m.record.Optimization, p.device, matched)
			}
			p.catalog.MarkMatched(m.record.ID)
			p.stats.FusedExecutions++
			p.stats.FusedOps += length
			continue
		}

		head := pending[0]
		err := p.backend.ExecuteRaw(p.device, head, container)
		s.Consume(1)
		if err != nil {
			return errors.WithMessagef(err, "executing %s on device #%d", head, p.device)
		}
		p.stats.RawExecutions++
		if mode == Lazy {
			// One raw execution per invocation: later operations may still be fused.
			return nil
		}
	}
	return nil
}

// match returns the longest optimization whose sequence is a prefix of relativeOps, the earliest
// registered among those of the same length.
//
// numPending is the total number of operations in the stream, of which relativeOps may be only the
// beginning.
func (p *Processor) match(relativeOps []ops.Op, numPending int) (m match) {
	if len(relativeOps) == 0 {
		return
	}
	for _, id := range p.catalog.Index().Find(relativeOps[0]) {
		record, found := p.catalog.Lookup(id)
		if !found {
			klog.Warningf("processor(device #%d): optimization #%d is indexed but not in the catalog", p.device, id)
			continue
		}
		sequence := record.Sequence
		if len(sequence) > numPending {
			if ops.HasPrefix(sequence, relativeOps) {
				m.extendable = true
			}
			continue
		}
		if !ops.HasPrefix(relativeOps, sequence) {
			continue
		}
		if m.record == nil || len(sequence) > len(m.record.Sequence) {
			m.record = record
		}
	}
	return
}

// Catalog returns the catalog of optimizations used by the processor.
func (p *Processor) Catalog() *store.Catalog { return p.catalog }

// Device the processor executes on.
func (p *Processor) Device() backends.DeviceNum { return p.device }
