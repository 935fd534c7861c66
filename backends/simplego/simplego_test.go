// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"fmt"
	"os"
	"testing"

	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

var backend *Backend

func init() {
	klog.InitFlags(nil)
}

func setup() {
	fmt.Printf("Available backends: %q\n", backends.List())
	if os.Getenv(backends.ConfigEnvVar) == "" {
		must.M(os.Setenv(backends.ConfigEnvVar, "go"))
	} else {
		fmt.Printf("\t$%s=%q\n", backends.ConfigEnvVar, os.Getenv(backends.ConfigEnvVar))
	}
	backend = backends.MustNew().(*Backend)
	fmt.Printf("Backend: %s, %s\n", backend.Name(), backend.Description())
}

func teardown() {
	backend.Finalize()
}

func TestMain(m *testing.M) {
	setup()
	code := m.Run() // Run all tests in the file
	teardown()
	os.Exit(code)
}

func TestConfig(t *testing.T) {
	b := must.M1(NewBackend(""))
	require.True(t, b.FusionEnabled())
	require.Greater(t, b.workers.MaxParallelism(), 0)
	require.Empty(t, b.patterns)

	b = must.M1(NewBackend("parallelism=0, nofusion"))
	require.False(t, b.FusionEnabled())
	require.False(t, b.workers.IsEnabled())
	require.Contains(t, b.Description(), "fusion disabled")

	b = must.M1(NewBackend("fused=add_mul:32x32,fused=exp_sum:4x8:Float16"))
	require.Len(t, b.patterns, 2)
	require.Equal(t, "add_mul", b.patterns[0].pattern)
	require.Equal(t, []int{32, 32}, b.patterns[0].dimensions)
	require.Equal(t, dtypes.Float32, b.patterns[0].dtype)
	require.Equal(t, []int{4, 8}, b.patterns[1].dimensions)
	require.Equal(t, dtypes.Float16, b.patterns[1].dtype)

	for _, config := range []string{
		"parallelism=many",
		"fast",
		"fused=add_mul",
		"fused=unknown:4",
		"fused=add_mul:4x0",
		"fused=add_mul:4:Int32",
	} {
		_, err := NewBackend(config)
		require.Error(t, err, "config %q should fail", config)
	}

	// Through the registry.
	generic := must.M1(backends.NewWithConfig("go:parallelism=2"))
	require.Equal(t, 2, generic.(*Backend).workers.MaxParallelism())
	require.Contains(t, backends.List(), BackendName)
}

func TestDevices(t *testing.T) {
	require.Equal(t, backends.DeviceNum(1), backend.NumDevices())
	_, err := backend.DiscoverOptimizations(1)
	require.Error(t, err)

	b := must.M1(NewBackend(""))
	b.Finalize()
	_, err = b.DiscoverOptimizations(0)
	require.ErrorContains(t, err, "finalized")
}
