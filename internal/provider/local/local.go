// Package local implements a classical provider that interprets submitted
// source through the restricted sandbox instead of executing it directly.
// It is grounded on the original system's LocalClassicalProvider
// (app/providers/local.py), which ran arbitrary code via an unrestricted
// exec() call and carried an explicit warning that doing so is a security
// risk. This implementation replaces that exec() with
// internal/provider/sandbox's safelisted interpreter, per spec §7/§9's
// re-architecture guidance — it is the one provider in this tree that
// implements CodeExecutor.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
	"github.com/nexar/hal/internal/provider/sandbox"
)

func init() {
	provider.Register("local", New)
}

const deviceName = "local_python"

type jobRecord struct {
	status job.Status
	result map[string]any
	err    string
}

// Provider is an in-process classical backend: tasks are either a map
// already describing a circuit/payload, or raw source code interpreted by
// the sandbox. Intended for development and for provider-contract tests,
// mirroring the original system's prototype-only local provider.
type Provider struct {
	mu   sync.Mutex
	jobs map[string]*jobRecord
}

func New(ctx context.Context, cfg provider.Config) (provider.Provider, error) {
	return &Provider{jobs: map[string]*jobRecord{}}, nil
}

func (p *Provider) Name() string { return "local" }

func (p *Provider) ListDevices(ctx context.Context) ([]provider.Device, error) {
	return []provider.Device{{
		Name:        deviceName,
		Operational: true,
		PendingJobs: p.pendingCount(),
		Simulator:   true,
	}}, nil
}

func (p *Provider) pendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.jobs {
		if r.status != job.StatusCompleted && r.status != job.StatusFailed {
			n++
		}
	}
	return n
}

func (p *Provider) CheckAvailability(ctx context.Context, device string) (job.Availability, error) {
	return job.Availability{
		DeviceName:     device,
		IsOperational:  true,
		PendingJobs:    p.pendingCount(),
		QueueThreshold: 100,
	}, nil
}

func (p *Provider) ExecuteSingle(ctx context.Context, task any, device string, shots int) (string, error) {
	id := uuid.NewString()
	p.record(id, job.StatusCompleted, map[string]any{"echo": task, "shots": shots}, "")
	return id, nil
}

func (p *Provider) ExecuteBatch(ctx context.Context, tasks []any, device string, shots int) ([]string, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("local: execute_batch requires at least one task")
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		id := uuid.NewString()
		p.record(id, job.StatusCompleted, map[string]any{"echo": t, "shots": shots}, "")
		ids[i] = id
	}
	return ids, nil
}

// ExecuteCode runs source through the sandbox, which is where syntax and
// whitelist violations are caught; the dispatcher passes the source here
// unvetted. A rejection (a sandbox error or a missing circuit) fails the
// submission synchronously rather than hand the dispatcher a fabricated
// provider handle for a job that never ran (spec.md scenario S6): the
// sandbox error is returned, not swallowed, so the caller fails the job.
func (p *Provider) ExecuteCode(ctx context.Context, source string, device string, shots int) (string, error) {
	result, err := sandbox.Run(source)
	if err != nil {
		return "", provider.NewPermanentError("local", fmt.Errorf("sandbox run: %w", err))
	}
	circuit, err := result.CircuitSymbol()
	if err != nil {
		return "", &provider.ProviderError{Kind: provider.KindInvalidTask, Provider: "local", Err: fmt.Errorf("sandbox result: %w", err)}
	}
	id := uuid.NewString()
	p.record(id, job.StatusCompleted, map[string]any{
		"circuit":    circuit,
		"variables":  result.Vars,
		"device":     device,
		"shots":      shots,
		"finished_at": time.Now().UTC(),
	}, "")
	return id, nil
}

func (p *Provider) record(id string, status job.Status, result map[string]any, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs[id] = &jobRecord{status: status, result: result, err: errMsg}
}

func (p *Provider) GetStatus(ctx context.Context, providerJobID string) (job.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.jobs[providerJobID]
	if !ok {
		return job.StatusUnknown, nil
	}
	return r.status, nil
}

func (p *Provider) GetResult(ctx context.Context, providerJobID string) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.jobs[providerJobID]
	if !ok {
		return nil, fmt.Errorf("local: unknown job %q", providerJobID)
	}
	if r.err != "" {
		return map[string]any{"error": r.err}, nil
	}
	return r.result, nil
}

func (p *Provider) CancelJob(ctx context.Context, providerJobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.jobs[providerJobID]
	if !ok {
		return fmt.Errorf("local: unknown job %q", providerJobID)
	}
	r.status = job.StatusCancelled
	return nil
}
