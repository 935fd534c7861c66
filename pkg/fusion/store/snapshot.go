// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"regexp"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/fusion/index"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// snapshotVersion is incremented whenever the snapshot format changes.
const snapshotVersion = 1

// Snapshot is the decoded contents of a persisted catalog, before its optimizations are recompiled.
type Snapshot struct {
	Version int
	StoreID string
	Backend string
	Device  backends.DeviceNum
	NextID  index.OptimizationID
	Records [][]ops.Op
	Index   *index.Index
}

// Save writes a snapshot of the device's catalog: the relative sequences of its optimizations and
// its index. The compiled optimizations are not saved, they are recompiled by Restore.
func (s *Store) Save(w io.Writer, device backends.DeviceNum) (err error) {
	c, err := s.Catalog(device)
	if err != nil {
		return err
	}
	encoder := gob.NewEncoder(w)
	enc := func(e any) {
		if err != nil {
			return
		}
		err = encoder.Encode(e)
		if err != nil {
			err = errors.Wrapf(err, "failed to serialize catalog of device #%d", device)
		}
	}
	enc(snapshotVersion)
	enc(s.id.String())
	enc(s.backend.Name())
	enc(int(device))
	enc(c.Len())
	for _, record := range c.records {
		enc(len(record.Sequence))
		for _, op := range record.Sequence {
			if err != nil {
				return
			}
			err = ops.GobSerialize(encoder, op)
		}
	}
	if err != nil {
		return
	}
	return c.index.GobSerialize(encoder)
}

// ReadSnapshot decodes a snapshot written by Store.Save, without recompiling it.
func ReadSnapshot(r io.Reader) (snapshot *Snapshot, err error) {
	decoder := gob.NewDecoder(r)
	dec := func(data any) {
		if err != nil {
			return
		}
		err = decoder.Decode(data)
		if err != nil {
			err = errors.Wrapf(err, "failed to deserialize catalog snapshot")
		}
	}
	snapshot = &Snapshot{}
	dec(&snapshot.Version)
	if err == nil && snapshot.Version != snapshotVersion {
		return nil, errors.Errorf("catalog snapshot version %d not supported, expected version %d",
			snapshot.Version, snapshotVersion)
	}
	dec(&snapshot.StoreID)
	dec(&snapshot.Backend)
	var device, numRecords int
	dec(&device)
	dec(&numRecords)
	if err != nil {
		return nil, err
	}
	snapshot.Device = backends.DeviceNum(device)
	snapshot.NextID = index.OptimizationID(numRecords)
	snapshot.Records = make([][]ops.Op, numRecords)
	for ii := range snapshot.Records {
		var length int
		dec(&length)
		if err != nil {
			return nil, err
		}
		if length <= 0 {
			return nil, errors.Errorf("catalog snapshot optimization #%d has an empty sequence", ii)
		}
		sequence := make([]ops.Op, length)
		for jj := range sequence {
			sequence[jj], err = ops.GobDeserialize(decoder)
			if err != nil {
				return nil, err
			}
		}
		snapshot.Records[ii] = sequence
	}
	snapshot.Index, err = index.GobDeserialize(decoder)
	if err != nil {
		return nil, err
	}
	if err = snapshot.Index.CheckIDs(numRecords); err != nil {
		return nil, errors.WithMessagef(err, "invalid catalog snapshot")
	}
	for ii, sequence := range snapshot.Records {
		id := index.OptimizationID(ii)
		if !slices.Contains(snapshot.Index.Find(sequence[0]), id) {
			return nil, errors.Errorf("catalog snapshot index doesn't list optimization #%d under its starting operation %s",
				id, sequence[0])
		}
	}
	return snapshot, nil
}

// Restore reads a snapshot written by Store.Save, recompiles its optimizations with the backend,
// and installs it as the catalog of the snapshot's device, replacing the current contents.
//
// The catalog is replaced in place: processors already holding the device's catalog see the
// restored optimizations. The restored catalog is considered discovered: DiscoverOptimizations is
// not called for it. It fails if the backend doesn't implement backends.Compiler, or if the
// snapshot was saved by a different backend. On failure the current catalog is left untouched.
func (s *Store) Restore(r io.Reader) (*Catalog, error) {
	snapshot, err := ReadSnapshot(r)
	if err != nil {
		return nil, err
	}
	return s.restore(snapshot)
}

func (s *Store) restore(snapshot *Snapshot) (*Catalog, error) {
	compiler, ok := s.backend.(backends.Compiler)
	if !ok {
		return nil, errors.Wrapf(backends.ErrUnsupportedOperation,
			"backend %q can't compile optimizations, so it can't restore a catalog", s.backend.Name())
	}
	if snapshot.Backend != s.backend.Name() {
		return nil, errors.Errorf("catalog snapshot was saved with backend %q, it can't be restored on backend %q",
			snapshot.Backend, s.backend.Name())
	}
	records := make([]*Record, 0, len(snapshot.Records))
	var maxSequenceLen int
	for ii, sequence := range snapshot.Records {
		optimization, err := compiler.Compile(snapshot.Device, sequence)
		if err != nil {
			return nil, errors.WithMessagef(err, "recompiling optimization #%d (%v) of catalog snapshot", ii, sequence)
		}
		records = append(records, &Record{
			ID:           index.OptimizationID(ii),
			Sequence:     sequence,
			Optimization: optimization,
		})
		maxSequenceLen = max(maxSequenceLen, len(sequence))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.lockedCatalog(snapshot.Device)
	c.records = records
	c.matches = make([]int, len(records))
	c.index = snapshot.Index
	c.maxSequenceLen = maxSequenceLen
	c.discovered = true
	klog.V(1).Infof("store %s: restored %d optimizations for device #%d from snapshot of store %s",
		s.id, c.Len(), snapshot.Device, snapshot.StoreID)
	return c, nil
}

var reInvalidKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// SnapshotKey returns the blob key used by SaveTo and RestoreFrom for the backend and device.
func SnapshotKey(backendName string, device backends.DeviceNum) string {
	return fmt.Sprintf("%s-device%d.catalog", reInvalidKeyChars.ReplaceAllString(backendName, "_"), device)
}

// SaveTo saves the snapshot of the device's catalog to blobs, under SnapshotKey.
func (s *Store) SaveTo(ctx context.Context, blobs Blobstore, device backends.DeviceNum) error {
	var buf bytes.Buffer
	if err := s.Save(&buf, device); err != nil {
		return err
	}
	key := SnapshotKey(s.backend.Name(), device)
	klog.FromContext(ctx).Info("saving catalog snapshot", "key", key, "size", humanize.Bytes(uint64(buf.Len())))
	return blobs.Upload(ctx, key, &buf)
}

// RestoreFrom restores the catalog of the device from the snapshot saved in blobs by SaveTo.
//
// If there is no snapshot, the returned error satisfies errors.Is(err, os.ErrNotExist).
func (s *Store) RestoreFrom(ctx context.Context, blobs Blobstore, device backends.DeviceNum) (*Catalog, error) {
	key := SnapshotKey(s.backend.Name(), device)
	r, err := blobs.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	snapshot, err := ReadSnapshot(r)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading catalog snapshot %q", key)
	}
	if snapshot.Device != device {
		return nil, errors.Errorf("catalog snapshot %q holds device #%d, not #%d", key, snapshot.Device, device)
	}
	c, err := s.restore(snapshot)
	if err != nil {
		return nil, errors.WithMessagef(err, "restoring catalog snapshot %q", key)
	}
	return c, nil
}
