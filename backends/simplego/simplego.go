// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a simple, and not very fast, but very portable backend for the fusion core.
//
// It supports Float16, Float32 and Float64 tensors, executes every operation type raw, and compiles
// sequences of operations into fused programs: consecutive elementwise operations over tensors of the
// same shape are evaluated in one pass over the data, without writing intermediate tensors back and
// forth from memory between operations.
//
// Configuration, given after the backend name in backends.ConfigEnvVar (e.g. "go:parallelism=4,nofusion"),
// is a comma separated list of:
//
//   - "parallelism=<n>": number of goroutines used by one kernel. 0 disables parallelism, -1 is unlimited.
//     Default is runtime.NumCPU().
//   - "nofusion": disables fusion: no optimization is discovered, and Compile fails.
//   - "fused=<pattern>:<dims>[:<dtype>]": offer the fused pattern for tensors of the given dimensions (e.g.
//     "32x32") and dtype (default float32). See Patterns for the list of patterns.
package simplego

import (
	"strconv"
	"strings"

	"github.com/gomlx/fusion/backends"
	"github.com/gomlx/fusion/internal/workerspool"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// BackendName to be used in GOFUSION_BACKEND to specify this backend.
const BackendName = "go"

// Registers New() as the default constructor for "go" backend.
func init() {
	backends.Register(BackendName, New)
}

var errUnsupported = backends.ErrUnsupportedOperation

// patternConfig is one "fused=..." configuration.
type patternConfig struct {
	pattern    string
	dimensions []int
	dtype      dtypes.DType
}

// Backend implements the backends.Backend and backends.Compiler interfaces.
type Backend struct {
	config    string
	workers   *workerspool.Pool
	noFusion  bool
	patterns  []patternConfig
	finalized bool
}

var (
	_ backends.Backend  = (*Backend)(nil)
	_ backends.Compiler = (*Backend)(nil)
)

// New constructs a new SimpleGo Backend. See package documentation for the configuration.
func New(config string) (backends.Backend, error) {
	return NewBackend(config)
}

// NewBackend is like New, but returns the concrete type.
func NewBackend(config string) (*Backend, error) {
	b := &Backend{
		config:  config,
		workers: workerspool.NewDefault(),
	}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		switch key {
		case "parallelism":
			parallelism, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "backend %q: invalid parallelism in configuration %q", BackendName, config)
			}
			b.workers = workerspool.New(parallelism)
		case "nofusion":
			b.noFusion = true
		case "fused":
			pc, err := parsePatternConfig(value)
			if err != nil {
				return nil, errors.WithMessagef(err, "backend %q: configuration %q", BackendName, config)
			}
			b.patterns = append(b.patterns, pc)
		default:
			return nil, errors.Errorf("backend %q: unknown configuration %q in %q", BackendName, part, config)
		}
	}
	return b, nil
}

// parsePatternConfig parses "<pattern>:<dims>[:<dtype>]", e.g. "add_mul:32x32:float16".
func parsePatternConfig(value string) (pc patternConfig, err error) {
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return pc, errors.Errorf("invalid fused pattern %q, expected <pattern>:<dims>[:<dtype>]", value)
	}
	pc.pattern = parts[0]
	if _, found := Patterns[pc.pattern]; !found {
		return pc, errors.Errorf("unknown fused pattern %q, known patterns: %q", pc.pattern, PatternNames())
	}
	for _, dimStr := range strings.Split(parts[1], "x") {
		dim, err := strconv.Atoi(dimStr)
		if err != nil || dim <= 0 {
			return pc, errors.Errorf("invalid dimensions %q in fused pattern %q", parts[1], value)
		}
		pc.dimensions = append(pc.dimensions, dim)
	}
	pc.dtype = dtypes.Float32
	if len(parts) == 3 {
		pc.dtype, err = dtypes.DTypeString(parts[2])
		if err != nil || !IsSupportedDType(pc.dtype) {
			return pc, errors.Errorf("invalid dtype %q in fused pattern %q", parts[2], value)
		}
	}
	return pc, nil
}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return "SimpleGo (go)"
}

// String implement fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	if b.noFusion {
		return "Simple Go Portable Backend (fusion disabled)"
	}
	return "Simple Go Portable Backend"
}

// NumDevices return the number of devices available for this Backend.
func (b *Backend) NumDevices() backends.DeviceNum {
	return 1
}

// FusionEnabled returns whether the backend was configured to fuse operations.
func (b *Backend) FusionEnabled() bool { return !b.noFusion }

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.finalized = true
}

func (b *Backend) checkDevice(device backends.DeviceNum) error {
	if b.finalized {
		return errors.Errorf("backend %q has already been finalized", BackendName)
	}
	if device != 0 {
		return errors.Errorf("backend %q only supports device #0, got device #%d", BackendName, device)
	}
	return nil
}
