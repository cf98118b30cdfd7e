// Package statustracker implements StatusTracker (spec §4.6): on pull,
// reconcile local job state with the provider, persist transitions, and
// emit events. Also runs a background reconciliation loop for SUBMITTED
// jobs so state advances even without a caller polling, grounded on the
// teacher's JobPoller/StartLeaseReconciler (cmd/worker/service/pollers.go) —
// lease claim per tick, poll the provider, advance on change, stop at a
// terminal state.
package statustracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexar/hal/internal/events"
	"github.com/nexar/hal/internal/hashing"
	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
	"github.com/nexar/hal/internal/store"
)

// Tracker implements get_status/get_result plus the reconciliation loop.
type Tracker struct {
	store          store.Store
	publisher      events.Publisher
	offloader      store.ResultOffloader
	inlineMaxBytes int
	workerID       string
	leaseTTL       time.Duration
	pollInterval   time.Duration
	reconcileEvery time.Duration
	shardRing      *hashing.Ring
	shardIndex     int
}

func New(st store.Store, pub events.Publisher, offloader store.ResultOffloader, inlineMaxBytes int, workerID string, leaseTTL, pollInterval, reconcileEvery time.Duration) *Tracker {
	return &Tracker{
		store:          st,
		publisher:      pub,
		offloader:      offloader,
		inlineMaxBytes: inlineMaxBytes,
		workerID:       workerID,
		leaseTTL:       leaseTTL,
		pollInterval:   pollInterval,
		reconcileEvery: reconcileEvery,
	}
}

// WithSharding restricts the background reconciler to job_ids that hash to
// shardIndex on ring, letting a horizontally-scaled HAL fleet divide
// reconciliation work instead of every instance racing to claim every
// SUBMITTED job's lease (spec §5: "implementations may shard by job_id
// hash"). A nil ring (the New default) reconciles every job, matching a
// single-instance deployment.
func (t *Tracker) WithSharding(ring *hashing.Ring, shardIndex int) *Tracker {
	t.shardRing = ring
	t.shardIndex = shardIndex
	return t
}

// GetStatus implements spec §4.6's get_status(job_id): returns the local
// status directly for terminal jobs, otherwise reconciles against the
// provider first when a provider_job_id has been assigned.
func (t *Tracker) GetStatus(ctx context.Context, jobID string) (job.Status, error) {
	sub, ok, err := t.store.Get(ctx, jobID)
	if err != nil {
		return job.StatusUnknown, fmt.Errorf("statustracker: get %s: %w", jobID, err)
	}
	if !ok {
		return job.StatusUnknown, nil
	}
	if isTerminal(sub.Status) || sub.ProviderJobID == "" {
		return sub.Status, nil
	}

	prov, err := provider.New(ctx, provider.Config{Name: sub.Request.ProviderName})
	if err != nil {
		return sub.Status, fmt.Errorf("statustracker: resolve provider %q: %w", sub.Request.ProviderName, err)
	}

	providerStatus, err := prov.GetStatus(ctx, sub.ProviderJobID)
	if err != nil {
		var perr *provider.ProviderError
		if errors.As(err, &perr) && perr.Permanent() {
			// Permanent provider errors transition the job to FAILED (spec §7);
			// transient errors (the default path below) surface to the caller
			// without changing local state (spec §4.6 failure semantics).
			t.reconcile(ctx, sub, job.StatusFailed, fmt.Sprintf("provider error: %v", perr))
			return job.StatusFailed, nil
		}
		return sub.Status, fmt.Errorf("statustracker: provider get_status for %s: %w", jobID, err)
	}

	if providerStatus != sub.Status {
		t.reconcile(ctx, sub, providerStatus, "status changed on provider")
	}
	return providerStatus, nil
}

// GetResult implements spec §4.6's get_result(job_id): fetches the provider
// result only once the job is SUBMITTED or later, transitions to COMPLETED
// on success, and offloads oversized payloads via the configured
// ResultOffloader.
func (t *Tracker) GetResult(ctx context.Context, jobID string) (any, error) {
	sub, ok, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("statustracker: get %s: %w", jobID, err)
	}
	if !ok {
		return nil, fmt.Errorf("statustracker: job %s not found", jobID)
	}

	if sub.Status == job.StatusCompleted {
		return t.offloader.Fetch(ctx, sub.ResultRef)
	}
	if sub.Status != job.StatusSubmitted {
		return nil, fmt.Errorf("statustracker: job %s has no result yet (status=%s)", jobID, sub.Status)
	}

	prov, err := provider.New(ctx, provider.Config{Name: sub.Request.ProviderName})
	if err != nil {
		return nil, fmt.Errorf("statustracker: resolve provider %q: %w", sub.Request.ProviderName, err)
	}

	providerStatus, err := prov.GetStatus(ctx, sub.ProviderJobID)
	if err != nil {
		var perr *provider.ProviderError
		if errors.As(err, &perr) && perr.Permanent() {
			t.reconcile(ctx, sub, job.StatusFailed, fmt.Sprintf("provider error: %v", perr))
			return nil, fmt.Errorf("statustracker: job %s failed: %w", jobID, perr)
		}
		return nil, fmt.Errorf("statustracker: provider get_status for %s: %w", jobID, err)
	}
	if providerStatus != job.StatusCompleted {
		t.reconcile(ctx, sub, providerStatus, "result requested before completion")
		return nil, fmt.Errorf("statustracker: job %s not yet completed (provider status=%s)", jobID, providerStatus)
	}

	result, err := prov.GetResult(ctx, sub.ProviderJobID)
	if err != nil {
		var perr *provider.ProviderError
		if errors.As(err, &perr) && perr.Permanent() {
			t.reconcile(ctx, sub, job.StatusFailed, fmt.Sprintf("provider error: %v", perr))
			return nil, fmt.Errorf("statustracker: job %s failed: %w", jobID, perr)
		}
		return nil, fmt.Errorf("statustracker: provider get_result for %s: %w", jobID, err)
	}

	ref, err := t.offload(ctx, jobID, result)
	if err != nil {
		return nil, fmt.Errorf("statustracker: offload result for %s: %w", jobID, err)
	}
	sub.ResultRef = ref
	t.reconcile(ctx, sub, job.StatusCompleted, "result fetched from provider")
	return result, nil
}

func (t *Tracker) offload(ctx context.Context, jobID string, result map[string]any) (string, error) {
	if t.inlineMaxBytes > 0 {
		if b, err := json.Marshal(result); err == nil && len(b) <= t.inlineMaxBytes {
			return string(b), nil
		}
	}
	return t.offloader.Offload(ctx, jobID, result)
}

// reconcile persists a status change and emits the corresponding event;
// permanent provider errors route here via StatusFailed from the caller.
func (t *Tracker) reconcile(ctx context.Context, sub job.Submission, to job.Status, reason string) {
	if !job.CanTransition(sub.Status, to) {
		log.Printf("statustracker: illegal transition %s -> %s for job %s, ignoring", sub.Status, to, sub.ID)
		return
	}
	from := sub.Status
	sub.Status = to
	sub.UpdatedAt = time.Now().UTC()

	if err := t.store.Put(ctx, sub); err != nil {
		log.Printf("statustracker: persist %s transition for %s: %v", to, sub.ID, err)
		return
	}
	if err := t.store.AppendTransition(ctx, job.StateTransition{
		JobID:        sub.ID,
		TransitionID: uuid.New().String(),
		FromStatus:   string(from),
		ToStatus:     string(to),
		At:           sub.UpdatedAt,
		Reason:       reason,
	}); err != nil {
		log.Printf("statustracker: append transition for %s: %v", sub.ID, err)
	}

	t.publisher.Publish(ctx, job.LifecycleEvent{
		JobID:         sub.ID,
		ProviderJobID: sub.ProviderJobID,
		Status:        to,
		Provider:      sub.Request.ProviderName,
		Device:        sub.Request.DeviceName,
		Timestamp:     sub.UpdatedAt,
		Reason:        reason,
	})
}

func isTerminal(s job.Status) bool {
	switch s {
	case job.StatusCompleted, job.StatusFailed, job.StatusCancelled:
		return true
	default:
		return false
	}
}
