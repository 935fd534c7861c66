// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a compute backend needs to implement to execute the
// operations buffered by the fusion streams, and a registry of the available backends.
//
// A backend is a capability set: it discovers the optimizations (fused operations) it can run for a
// device, canonicalizes streams of operations so they can be matched against those optimizations,
// and executes either one raw operation or one fused optimization against a handles.Container.
//
// A backend that doesn't support some operation simply returns an error wrapping
// ErrUnsupportedOperation when asked to execute it.
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/fusion/pkg/core/handles"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/core/relative"
	"github.com/pkg/errors"
)

// DeviceNum represents which device holds a buffer, or should execute an operation.
// It's up to the backend to interpret it, but it should be between 0 and Backend.NumDevices.
type DeviceNum int

// Backend is the API that needs to be implemented by a compute backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "go" for the SimpleGo backend.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// NumDevices return the number of devices available for this Backend.
	NumDevices() DeviceNum

	// DiscoverOptimizations returns the catalog of optimizations the backend offers for the device.
	// It is called once per device, the first time its catalog is needed.
	DiscoverOptimizations(device DeviceNum) ([]Candidate, error)

	// Canonicalize converts a stream of operations to its relative form, used to match optimizations,
	// and returns the bindings to map it back to the concrete tensors and scalars.
	Canonicalize(stream []ops.Op) ([]ops.Op, relative.Bindings)

	// ExecuteRaw executes one operation, reading its inputs from and registering its output in handles.
	ExecuteRaw(device DeviceNum, op ops.Op, handles *handles.Container) error

	// ExecuteFused executes a fused optimization bound to concrete tensors and scalars.
	// The result must be indistinguishable from executing the bound operations one at a time.
	ExecuteFused(device DeviceNum, optimization Optimization, bindings relative.Bindings, handles *handles.Container) error

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Compiler is implemented by backends that can compile an arbitrary relative sequence into an
// Optimization. It is used to register optimizations explicitly and to restore persisted catalogs.
type Compiler interface {
	// Compile the relative sequence for the device. Sequences the backend can't fuse return an
	// error wrapping ErrUnsupportedOperation.
	Compile(device DeviceNum, sequence []ops.Op) (Optimization, error)
}

// Optimization is the backend-specific compiled state of a fused operation. It is opaque to the
// fusion core.
type Optimization interface {
	// String returns a short description, used for logging.
	String() string
}

// Candidate is an optimization offered by a backend: the relative sequence of operations it
// replaces, and its compiled state.
type Candidate struct {
	Sequence     []ops.Op
	Optimization Optimization
}

// ErrUnsupportedOperation indicates the backend cannot execute the requested raw operation or fused
// optimization. Retrying won't help: callers should propagate it.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List the names of the registered backends, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_configuration>" is backend specific (e.g.: for "go", "parallelism=4,nofusion").
const ConfigEnvVar = "GOFUSION_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment ConfigEnvVar is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	config, found := os.LookupEnv(ConfigEnvVar)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// MustNew returns a new default Backend or panics if it fails.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		panic(err)
	}
	return backend
}

// NewWithConfig takes a configuration string formatted as "<backend_name>:<backend_configuration>".
// If "<backend_name>" is empty, the first registered backend is used.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Errorf(`no registered fusion backends -- maybe import the default one with import _ "github.com/gomlx/fusion/backends/simplego"?`)
	}
	backendName := config
	var backendConfig string
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	if backendName == "" {
		backendName = firstRegistered
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends: %q",
			backendName, config, List())
	}
	return constructor(backendConfig)
}
