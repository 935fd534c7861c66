// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/fusion/backends/simplego"
	"github.com/gomlx/fusion/pkg/fusion/store"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	backend := must.M1(simplego.NewBackend("fused=add_mul:4x4,fused=exp_sum:2x3"))
	s := store.New(backend)
	var buf bytes.Buffer
	require.NoError(t, s.Save(&buf, 0))
	path := filepath.Join(t.TempDir(), "catalog")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	contents := must.M1(readSource(context.Background(), path))
	snapshot := must.M1(store.ReadSnapshot(bytes.NewReader(contents)))
	require.Len(t, snapshot.Records, 2)
	require.Equal(t, "Add+MulScalar", pattern(snapshot.Records[0]))
	require.Equal(t, "Exp+ReduceSum", pattern(snapshot.Records[1]))

	*flagOps = true
	defer func() { *flagOps = false }()
	var out bytes.Buffer
	report(&out, path, len(contents), snapshot)
	require.Contains(t, out.String(), "SimpleGo (go)")
	require.Contains(t, out.String(), s.ID().String())
	require.Contains(t, out.String(), "Exp+ReduceSum")
	require.Contains(t, out.String(), "ReduceSum(#1, axis=1)")

	_, err := readSource(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = readSource(context.Background(), "gs://bucket-only")
	require.Error(t, err)
}
