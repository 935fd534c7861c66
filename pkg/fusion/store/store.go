// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package store implements the optimization store: per device, a catalog of the optimizations
// offered by the backend, and an index to find them by starting operation.
//
// A catalog is populated once, the first time it is needed, with the candidates returned by
// backends.Backend.DiscoverOptimizations. Optimizations can also be registered explicitly, and
// catalogs can be persisted and restored (see Store.Save and Store.Restore) so discovery doesn't
// need to run again in a new process.
//
// There is no eviction: a catalog is expected to be small, bounded by the backend capabilities.
package store

import (
	"slices"
	"sync"

	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/fusion/index"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Store of optimizations for one backend, with one catalog per device.
type Store struct {
	id      uuid.UUID
	backend backends.Backend

	// mu protects catalogs. The catalogs themselves are not safe for concurrent use.
	mu       sync.Mutex
	catalogs map[backends.DeviceNum]*Catalog
}

// New returns an empty store for the backend. Catalogs are populated lazily.
func New(backend backends.Backend) *Store {
	return &Store{
		id:       uuid.New(),
		backend:  backend,
		catalogs: make(map[backends.DeviceNum]*Catalog),
	}
}

// ID returns the unique id of the store, recorded in its snapshots.
func (s *Store) ID() uuid.UUID { return s.id }

// Backend returns the backend the optimizations were compiled for.
func (s *Store) Backend() backends.Backend { return s.backend }

// Catalog returns the catalog of the device, discovering the backend's optimizations the first time.
//
// If discovery fails the error is returned and the catalog stays unpopulated, so a later call retries it.
func (s *Store) Catalog(device backends.DeviceNum) (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.lockedCatalog(device)
	if c.discovered {
		return c, nil
	}
	candidates, err := s.backend.DiscoverOptimizations(device)
	if err != nil {
		return nil, errors.WithMessagef(err, "discovering optimizations of backend %q for device #%d",
			s.backend.Name(), device)
	}
	for ii, candidate := range candidates {
		if len(candidate.Sequence) == 0 {
			klog.Warningf("backend %q offered optimization #%d (%s) for device #%d with an empty sequence, skipping it",
				s.backend.Name(), ii, candidate.Optimization, device)
			continue
		}
		c.Register(candidate.Sequence, candidate.Optimization)
	}
	c.discovered = true
	klog.V(1).Infof("store %s: discovered %d optimizations for device #%d of backend %q",
		s.id, c.Len(), device, s.backend.Name())
	return c, nil
}

// lockedCatalog returns the catalog of the device, creating an empty one if needed.
// It must be called with Store.mu locked.
func (s *Store) lockedCatalog(device backends.DeviceNum) *Catalog {
	c, found := s.catalogs[device]
	if !found {
		c = newCatalog(s.backend, device)
		s.catalogs[device] = c
	}
	return c
}

// Compile the sequence with the backend and register it as an optimization of the device's catalog.
// The backend must implement backends.Compiler.
func (s *Store) Compile(device backends.DeviceNum, sequence []ops.Op) (index.OptimizationID, error) {
	compiler, ok := s.backend.(backends.Compiler)
	if !ok {
		return 0, errors.Wrapf(backends.ErrUnsupportedOperation, "backend %q can't compile optimizations", s.backend.Name())
	}
	c, err := s.Catalog(device)
	if err != nil {
		return 0, err
	}
	relativeSequence, _ := s.backend.Canonicalize(sequence)
	optimization, err := compiler.Compile(device, relativeSequence)
	if err != nil {
		return 0, errors.WithMessagef(err, "compiling optimization for device #%d", device)
	}
	return c.Register(relativeSequence, optimization), nil
}

// Record of a registered optimization. It is never modified after registration.
type Record struct {
	ID index.OptimizationID

	// Sequence is the relative sequence of operations the optimization replaces.
	Sequence []ops.Op

	// Optimization is the backend's compiled state.
	Optimization backends.Optimization
}

// Catalog of the optimizations of one device.
type Catalog struct {
	backend backends.Backend
	device  backends.DeviceNum

	// records is indexed by OptimizationID.
	records []*Record

	// matches counts the times each optimization was matched and executed.
	matches []int

	index          *index.Index
	maxSequenceLen int
	discovered     bool
}

func newCatalog(backend backends.Backend, device backends.DeviceNum) *Catalog {
	return &Catalog{
		backend: backend,
		device:  device,
		index:   index.New(),
	}
}

// Device of the catalog.
func (c *Catalog) Device() backends.DeviceNum { return c.device }

// Lookup returns the record of the optimization.
func (c *Catalog) Lookup(id index.OptimizationID) (*Record, bool) {
	if id < 0 || int(id) >= len(c.records) {
		return nil, false
	}
	return c.records[id], true
}

// Index returns the index of the catalog's optimizations by starting operation. It is meant for
// reading only: register optimizations with Catalog.Register.
func (c *Catalog) Index() *index.Index { return c.index }

// Register an optimization that replaces sequence, and returns its new id.
//
// The sequence is converted to its relative form (a no-op if it already is). It panics with an
// error wrapping ops.ErrInvariantViolation if sequence is empty.
func (c *Catalog) Register(sequence []ops.Op, optimization backends.Optimization) index.OptimizationID {
	if len(sequence) == 0 {
		panic(errors.Wrapf(ops.ErrInvariantViolation,
			"cannot register optimization %s for device #%d with an empty sequence", optimization, c.device))
	}
	relativeSequence, _ := c.backend.Canonicalize(sequence)
	id := index.OptimizationID(len(c.records))
	c.index.Insert(relativeSequence, id)
	c.records = append(c.records, &Record{
		ID:           id,
		Sequence:     slices.Clip(relativeSequence),
		Optimization: optimization,
	})
	c.matches = append(c.matches, 0)
	c.maxSequenceLen = max(c.maxSequenceLen, len(relativeSequence))
	klog.V(2).Infof("registered optimization #%d (%s) for device #%d: %v", id, optimization, c.device, relativeSequence)
	return id
}

// Len returns the number of registered optimizations.
func (c *Catalog) Len() int { return len(c.records) }

// MaxSequenceLen returns the length of the longest registered sequence, 0 if there are none.
func (c *Catalog) MaxSequenceLen() int { return c.maxSequenceLen }

// Records returns all registered optimizations, in id order.
func (c *Catalog) Records() []*Record { return slices.Clone(c.records) }

// MarkMatched counts one more match of the optimization.
func (c *Catalog) MarkMatched(id index.OptimizationID) {
	if id >= 0 && int(id) < len(c.matches) {
		c.matches[id]++
	}
}

// Matches returns the number of times the optimization was matched and executed.
func (c *Catalog) Matches(id index.OptimizationID) int {
	if id < 0 || int(id) >= len(c.matches) {
		return 0
	}
	return c.matches[id]
}
