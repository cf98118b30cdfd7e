// Package provider defines the pluggable backend contract HAL dispatches
// work through, plus a process-wide registry for concrete implementations.
// The shape follows the teacher's cloud batch provider abstraction
// (internal/batch in the teacher repo), generalized from "submit one job to
// one cloud" to "run device-addressed, possibly-batched tasks on a quantum
// or classical backend".
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexar/hal/internal/job"
)

// Device describes one executable target a provider exposes.
type Device struct {
	Name             string
	QubitCount       int
	BasisGates       []string
	CouplingAdjacency [][2]int
	Operational      bool
	PendingJobs      int
	Simulator        bool
}

// Provider is the pluggable backend contract from spec §4.2. A provider may
// additionally implement CodeExecutor if it accepts raw source submissions;
// callers type-assert for that capability rather than it being part of the
// base interface, since most providers will not support it.
type Provider interface {
	// Name returns the provider's registration name (e.g. "gcp-batch").
	Name() string

	// ListDevices returns every device the provider knows about.
	ListDevices(ctx context.Context) ([]Device, error)

	// CheckAvailability must be cheap; stale reads are acceptable.
	CheckAvailability(ctx context.Context, device string) (job.Availability, error)

	// ExecuteSingle submits one task and returns its provider job ID.
	ExecuteSingle(ctx context.Context, task any, device string, shots int) (string, error)

	// ExecuteBatch submits a non-empty, order-preserving list of tasks and
	// returns one provider job ID per task, in the same order. A provider
	// may return composite ids of the form "base:i" instead of one per
	// task; callers must treat those as opaque and pass them back unchanged.
	ExecuteBatch(ctx context.Context, tasks []any, device string, shots int) ([]string, error)

	// GetStatus returns the current provider-side status of a job.
	GetStatus(ctx context.Context, providerJobID string) (job.Status, error)

	// GetResult returns the result payload for a completed job. The shape
	// of the result is provider-specific and opaque to HAL.
	GetResult(ctx context.Context, providerJobID string) (map[string]any, error)

	// CancelJob requests cancellation of a submitted job.
	CancelJob(ctx context.Context, providerJobID string) error
}

// CodeExecutor is an optional capability: providers that can run raw source
// code implement this in addition to Provider. HAL passes the source to
// ExecuteCode unvetted; the local provider runs it through the sandbox
// (internal/provider/sandbox).
type CodeExecutor interface {
	ExecuteCode(ctx context.Context, source string, device string, shots int) (string, error)
}

// Config configures a provider constructor. ProviderOptions carries
// per-provider opaque credentials (spec §6): HAL never inspects them beyond
// passing them through to the constructor it registered.
type Config struct {
	Name            string
	ProjectID       string
	Region          string
	ProviderOptions map[string]string
}

// constructor is the function shape a provider package registers at init
// time, mirroring the teacher's deferred-registration pattern so that
// internal/provider never imports a concrete cloud SDK directly.
type constructor func(context.Context, Config) (Provider, error)

var registry = map[string]constructor{}

// Register associates a provider name with its constructor. Concrete
// provider packages call this from an init() function.
func Register(name string, fn constructor) {
	registry[name] = fn
}

// instances is the process-wide, initialised-at-startup mapping from
// provider name to live provider instance spec §4.2 calls for: providers
// are constructed once by Init and looked up by name afterward, rather than
// redialing a backend on every call.
var (
	instancesMu sync.RWMutex
	instances   = map[string]Provider{}
)

// Init constructs one instance per entry in cfgs and stores it under its
// Config.Name, replacing any previously-initialised instance of the same
// name (registration is idempotent per spec §4.2).
func Init(ctx context.Context, cfgs map[string]Config) error {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	for name, cfg := range cfgs {
		cfg.Name = name
		fn, ok := registry[name]
		if !ok {
			return fmt.Errorf("unregistered provider %q", name)
		}
		inst, err := fn(ctx, cfg)
		if err != nil {
			return fmt.Errorf("construct provider %q: %w", name, err)
		}
		instances[name] = inst
	}
	return nil
}

// New returns the initialised instance registered under cfg.Name, or an
// error if nothing has been initialised under that name.
func New(ctx context.Context, cfg Config) (Provider, error) {
	instancesMu.RLock()
	defer instancesMu.RUnlock()
	inst, ok := instances[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("unregistered provider %q", cfg.Name)
	}
	return inst, nil
}

// RegisteredNames lists every provider name currently initialised, for the
// GET providers operation (spec §6).
func RegisteredNames() []string {
	instancesMu.RLock()
	defer instancesMu.RUnlock()
	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}
	return names
}
