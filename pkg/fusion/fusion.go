// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fusion implements the lazy execution of tensor operations, fusing the sequences of
// operations that match an optimization offered by the backend.
//
// Operations are registered with Manager.Register, which appends them to a stream and executes
// lazily whatever doesn't benefit from waiting. Before reading a tensor's value, or before tearing
// down the backend, call Manager.DrainAll to execute everything pending.
//
// Example:
//
//	backend := backends.MustNew()
//	manager := fusion.New(backend, handles.New())
//	for _, op := range program {
//		if err := manager.Register(op); err != nil {
//			return err
//		}
//	}
//	if err := manager.DrainAll(); err != nil {
//		return err
//	}
package fusion

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/pkg/core/handles"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/fusion/processor"
	"github.com/gomlx/fusion/pkg/fusion/store"
	"github.com/gomlx/fusion/pkg/fusion/stream"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

var (
	// ErrInvariantViolation is wrapped by the panics on programming errors, like registering an
	// operation whose output was already materialized.
	ErrInvariantViolation = ops.ErrInvariantViolation

	// ErrUnsupportedOperation is wrapped by the errors of operations the backend can't execute.
	ErrUnsupportedOperation = backends.ErrUnsupportedOperation
)

// EagerEnvVar is the environment variable that, if set to true, makes new managers execute every
// registered operation immediately. See Manager.WithEager.
const EagerEnvVar = "GOFUSION_EAGER"

// StreamKey selects one stream of a Manager: the device it executes on, and a logical lane of
// computation within the device.
type StreamKey struct {
	Device backends.DeviceNum
	Lane   int
}

// String implements fmt.Stringer.
func (k StreamKey) String() string { return fmt.Sprintf("device #%d/lane %d", k.Device, k.Lane) }

// StreamSelector returns the key of the stream an operation is registered in.
type StreamSelector func(op ops.Op) StreamKey

// FirstStream is the default StreamSelector: everything goes to the lane 0 of device 0.
func FirstStream(ops.Op) StreamKey { return StreamKey{} }

type managedStream struct {
	stream    *stream.Stream
	processor *processor.Processor
}

// Manager owns the streams of pending operations and their processors, all sharing one
// optimization store.
//
// The streams are independent: operations in different streams are not ordered with respect to
// each other, and each stream must read and write a disjoint set of tensors.
// Manager is not safe for concurrent use.
type Manager struct {
	backend  backends.Backend
	handles  *handles.Container
	store    *store.Store
	selector StreamSelector
	eager    bool
	streams  map[StreamKey]*managedStream
}

// New returns a Manager that executes operations on the backend, over the tensors of container.
//
// By default all operations go to a single stream on device 0 (see WithStreamSelector), and
// execution is lazy unless the environment variable EagerEnvVar is set to true.
func New(backend backends.Backend, container *handles.Container) *Manager {
	m := &Manager{
		backend:  backend,
		handles:  container,
		store:    store.New(backend),
		selector: FirstStream,
		streams:  make(map[StreamKey]*managedStream),
	}
	if value, found := os.LookupEnv(EagerEnvVar); found && value != "" {
		eager, err := strconv.ParseBool(value)
		if err != nil {
			klog.Warningf("ignoring invalid value %q for $%s: %v", value, EagerEnvVar, err)
		} else {
			m.eager = eager
		}
	}
	return m
}

// WithStreamSelector sets the function that selects the stream of each registered operation.
// It returns the Manager, so configuration calls can be cascaded.
func (m *Manager) WithStreamSelector(selector StreamSelector) *Manager {
	m.selector = selector
	return m
}

// WithEager sets whether operations are executed (fused or not) as soon as they are registered,
// instead of lazily. Eager execution gives up fusions that span more than one operation.
// It returns the Manager, so configuration calls can be cascaded.
func (m *Manager) WithEager(eager bool) *Manager {
	m.eager = eager
	return m
}

// WithStore makes the Manager use the given store, shared with other managers of the same backend.
// It must be called before any operation is registered.
func (m *Manager) WithStore(s *store.Store) *Manager {
	if len(m.streams) > 0 {
		panic(errors.Wrapf(ErrInvariantViolation, "Manager.WithStore called after operations were registered"))
	}
	m.store = s
	return m
}

// Store returns the optimization store shared by all streams.
func (m *Manager) Store() *store.Store { return m.store }

// Backend returns the backend executing the operations.
func (m *Manager) Backend() backends.Backend { return m.backend }

// Handles returns the container of the tensors read and written by the operations.
func (m *Manager) Handles() *handles.Container { return m.handles }

// NumStreams returns the number of streams created so far.
func (m *Manager) NumStreams() int { return len(m.streams) }

// Pending returns the number of operations registered but not yet executed, in all streams.
func (m *Manager) Pending() (count int) {
	for _, ms := range m.streams {
		count += ms.stream.Len()
	}
	return
}

// Stats returns the execution statistics summed over all streams.
func (m *Manager) Stats() (stats processor.Stats) {
	for _, ms := range m.streams {
		stats = stats.Add(ms.processor.Stats())
	}
	return
}

// Register appends op to the stream chosen by the stream selector, and executes lazily what is
// pending in that stream.
//
// It panics with an error wrapping ErrInvariantViolation if op's output is not NotInit, or if it was
// read by an operation still pending. Backend errors are returned.
func (m *Manager) Register(op ops.Op) error {
	return m.RegisterOn(m.selector(op), op)
}

// RegisterOn is like Register, but with an explicit stream key.
func (m *Manager) RegisterOn(key StreamKey, op ops.Op) error {
	ms, err := m.streamFor(key)
	if err != nil {
		return err
	}
	ms.stream.Append(op)
	mode := processor.Lazy
	if m.eager {
		mode = processor.Sync
	}
	if err := ms.processor.Process(ms.stream, m.handles, mode); err != nil {
		return errors.WithMessagef(err, "stream %s", key)
	}
	return nil
}

// streamFor returns the stream for key, creating it if needed.
func (m *Manager) streamFor(key StreamKey) (*managedStream, error) {
	if ms, found := m.streams[key]; found {
		return ms, nil
	}
	if key.Device < 0 || key.Device >= m.backend.NumDevices() {
		return nil, errors.Errorf("stream %s: backend %q has %d devices", key, m.backend.Name(), m.backend.NumDevices())
	}
	catalog, err := m.store.Catalog(key.Device)
	if err != nil {
		return nil, err
	}
	ms := &managedStream{
		stream:    stream.New(),
		processor: processor.New(m.backend, key.Device, catalog),
	}
	m.streams[key] = ms
	klog.V(1).Infof("fusion: created stream %s, %d optimizations available", key, catalog.Len())
	return ms, nil
}

// Drain executes everything pending in the stream of key. It is a no-op if the stream doesn't exist.
func (m *Manager) Drain(key StreamKey) error {
	ms, found := m.streams[key]
	if !found {
		return nil
	}
	if err := ms.processor.Process(ms.stream, m.handles, processor.Sync); err != nil {
		return errors.WithMessagef(err, "draining stream %s", key)
	}
	return nil
}

// DrainAll executes everything pending in every stream.
//
// Streams are drained in order of key. A failure in one stream doesn't prevent the others from being
// drained: the returned error combines the errors of all the streams that failed.
func (m *Manager) DrainAll() error {
	keys := make([]StreamKey, 0, len(m.streams))
	for key := range m.streams {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b StreamKey) int {
		return cmp.Or(cmp.Compare(a.Device, b.Device), cmp.Compare(a.Lane, b.Lane))
	})
	var err error
	for _, key := range keys {
		err = multierr.Append(err, m.Drain(key))
	}
	return err
}
