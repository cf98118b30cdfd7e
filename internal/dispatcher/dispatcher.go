// Package dispatcher implements BatchDispatcher (spec §4.5): given a
// non-empty, homogeneous list of QUEUED submissions, invoke the right
// provider operation and bind the returned handles back onto each
// submission. Grounded on the teacher's SubmitJob handler's submit-then-bind
// shape (cmd/worker/service/handlers.go), generalized from "one job, one
// cloud call" to "N submissions, one batched provider call".
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexar/hal/internal/events"
	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
	"github.com/nexar/hal/internal/store"
)

// Dispatcher binds provider execute_batch/execute_code calls to submissions.
type Dispatcher struct {
	store     store.Store
	publisher events.Publisher
}

func New(st store.Store, pub events.Publisher) *Dispatcher {
	return &Dispatcher{store: st, publisher: pub}
}

// DispatchSingleton dispatches exactly one job outside of any batch,
// implementing admission's HIGH-priority bypass (spec §4.1.3).
func (d *Dispatcher) DispatchSingleton(ctx context.Context, jobID string) error {
	return d.Dispatch(ctx, job.BatchKey{}, []string{jobID})
}

// Dispatch implements the BatchDispatcher algorithm: partition by
// is_source_code, execute each source-code submission individually via
// execute_code, and execute_batch the rest together in one provider call.
func (d *Dispatcher) Dispatch(ctx context.Context, key job.BatchKey, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	subs := make([]job.Submission, 0, len(jobIDs))
	for _, id := range jobIDs {
		sub, ok, err := d.store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("dispatcher: load submission %s: %w", id, err)
		}
		if !ok {
			continue
		}
		subs = append(subs, sub)
	}
	if len(subs) == 0 {
		return nil
	}

	prov, err := provider.New(ctx, provider.Config{Name: subs[0].Request.ProviderName})
	if err != nil {
		return fmt.Errorf("dispatcher: resolve provider %q: %w", subs[0].Request.ProviderName, err)
	}

	var sourceJobs, taskJobs []job.Submission
	for _, sub := range subs {
		if sub.Request.IsSourceCode {
			sourceJobs = append(sourceJobs, sub)
		} else {
			taskJobs = append(taskJobs, sub)
		}
	}

	for _, sub := range sourceJobs {
		d.dispatchSourceCode(ctx, prov, sub)
	}
	if len(taskJobs) > 0 {
		d.dispatchBatch(ctx, prov, taskJobs)
	}
	return nil
}

func (d *Dispatcher) dispatchSourceCode(ctx context.Context, prov provider.Provider, sub job.Submission) {
	executor, ok := prov.(provider.CodeExecutor)
	if !ok {
		d.fail(ctx, sub, fmt.Sprintf("provider %q does not implement execute_code", prov.Name()))
		return
	}
	providerJobID, err := executor.ExecuteCode(ctx, sub.Request.SourceCode, sub.Request.DeviceName, sub.Request.Shots)
	if err != nil {
		d.fail(ctx, sub, err.Error())
		return
	}
	d.submit(ctx, sub, providerJobID)
}

// dispatchBatch calls execute_batch once for every submission sharing the
// same (provider, device, shots); a provider-level failure fails every
// submission in the call with the same error (spec §4.5 step 4).
func (d *Dispatcher) dispatchBatch(ctx context.Context, prov provider.Provider, subs []job.Submission) {
	tasks := make([]any, len(subs))
	for i, sub := range subs {
		tasks[i] = sub.Request.Task
	}
	device := subs[0].Request.DeviceName
	shots := subs[0].Request.Shots

	providerJobIDs, err := prov.ExecuteBatch(ctx, tasks, device, shots)
	if err != nil {
		for _, sub := range subs {
			d.fail(ctx, sub, err.Error())
		}
		return
	}
	if len(providerJobIDs) != len(subs) {
		for _, sub := range subs {
			d.fail(ctx, sub, fmt.Sprintf("provider returned %d handles for %d submissions", len(providerJobIDs), len(subs)))
		}
		return
	}

	for i, sub := range subs {
		d.submit(ctx, sub, providerJobIDs[i])
	}
}

func (d *Dispatcher) submit(ctx context.Context, sub job.Submission, providerJobID string) {
	d.transition(ctx, sub, job.StatusSubmitted, "dispatched to provider", func(s *job.Submission) {
		s.ProviderJobID = providerJobID
	})
}

func (d *Dispatcher) fail(ctx context.Context, sub job.Submission, reason string) {
	d.transition(ctx, sub, job.StatusFailed, reason, func(s *job.Submission) {
		s.FailureReason = reason
	})
}

func (d *Dispatcher) transition(ctx context.Context, sub job.Submission, to job.Status, reason string, mutate func(*job.Submission)) {
	if !job.CanTransition(sub.Status, to) {
		return
	}
	from := sub.Status
	sub.Status = to
	sub.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(&sub)
	}

	if err := d.store.Put(ctx, sub); err != nil {
		log.Printf("dispatcher: persist %s transition for %s: %v", to, sub.ID, err)
		return
	}
	if err := d.store.AppendTransition(ctx, job.StateTransition{
		JobID:        sub.ID,
		TransitionID: uuid.New().String(),
		FromStatus:   string(from),
		ToStatus:     string(to),
		At:           sub.UpdatedAt,
		Reason:       reason,
	}); err != nil {
		log.Printf("dispatcher: append transition for %s: %v", sub.ID, err)
	}

	d.publisher.Publish(ctx, job.LifecycleEvent{
		JobID:         sub.ID,
		ProviderJobID: sub.ProviderJobID,
		Status:        to,
		Provider:      sub.Request.ProviderName,
		Device:        sub.Request.DeviceName,
		Timestamp:     sub.UpdatedAt,
		Reason:        reason,
	})
}
