// Package admission implements §4.1: turning a caller-supplied JobRequest
// into a durable JobSubmission and routing it to the right next step.
// Grounded on the teacher's SubmitJob handler (cmd/worker/service/handlers.go):
// validate, persist PENDING before any provider call, then decide the path.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexar/hal/internal/events"
	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
	"github.com/nexar/hal/internal/store"
)

// Queues is the subset of the scheduler's pending-queue API admission needs:
// attach a freshly-admitted job to its (provider, device, shots) batch, with
// no opinion on ordering beyond FIFO.
type Queues interface {
	Enqueue(key job.BatchKey, jobID string)
	Members(key job.BatchKey) []string
}

// Dispatcher is the subset of BatchDispatcher admission needs to bypass
// batching entirely for HIGH priority submissions (spec §4.1.3: "invoke
// BatchDispatcher with a singleton batch synchronously").
type Dispatcher interface {
	DispatchSingleton(ctx context.Context, jobID string) error
}

// Error codes surfaced synchronously on validation failure, matching the
// ProviderUnavailable/InvalidDevice/InvalidTask/Transient family spec §4.2
// defines for provider calls plus admission's own InvalidRequest/Backpressure.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

const (
	ErrInvalidRequest    = "InvalidRequest"
	ErrBackpressure      = "Backpressure"
	ErrProviderUnavailable = "ProviderUnavailable"
)

// Admitter wires JobStore, the provider registry, the scheduler's queues,
// and EventPublisher together to implement the submit operation.
type Admitter struct {
	store      store.Store
	publisher  events.Publisher
	queues     Queues
	dispatcher Dispatcher
	highWater  int
}

func New(st store.Store, pub events.Publisher, queues Queues, dispatcher Dispatcher, backpressureHighWater int) *Admitter {
	return &Admitter{store: st, publisher: pub, queues: queues, dispatcher: dispatcher, highWater: backpressureHighWater}
}

// Submit implements the submit(request, ...) -> job_id operation.
func (a *Admitter) Submit(ctx context.Context, req job.Request) (string, error) {
	if err := a.validate(ctx, req); err != nil {
		return "", err
	}

	// Spec §5: a (provider, device) queue past its high-water mark rejects
	// new STANDARD submissions with a transient error; HIGH priority always
	// bypasses batching and is never subject to this check.
	if a.highWater > 0 && req.Priority != job.PriorityHigh {
		if depth := len(a.queues.Members(keyFor(req))); depth >= a.highWater {
			return "", &Error{Code: ErrBackpressure, Message: fmt.Sprintf("queue %s/%s has %d pending jobs, at or above the high-water mark", req.ProviderName, req.DeviceName, depth)}
		}
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	sub := job.Submission{
		ID:        id,
		Request:   req,
		Status:    job.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Crash-safety precondition: persist PENDING before any routing action.
	if err := a.store.Put(ctx, sub); err != nil {
		return "", fmt.Errorf("admission: persist pending submission %s: %w", id, err)
	}

	if err := a.route(ctx, sub); err != nil {
		return "", err
	}
	return id, nil
}

func (a *Admitter) validate(ctx context.Context, req job.Request) error {
	if req.ProviderName == "" {
		return &Error{Code: ErrInvalidRequest, Message: "provider_name is required"}
	}
	if req.DeviceName == "" {
		return &Error{Code: ErrInvalidRequest, Message: "device_name is required"}
	}
	if req.Shots <= 0 {
		return &Error{Code: ErrInvalidRequest, Message: "shots must be >= 1"}
	}
	if req.Priority == "" {
		req.Priority = job.PriorityStandard
	}
	if req.Priority != job.PriorityHigh && req.Priority != job.PriorityStandard {
		return &Error{Code: ErrInvalidRequest, Message: fmt.Sprintf("unknown priority %q", req.Priority)}
	}
	if req.Strategy != "" && req.Strategy != job.StrategyTime && req.Strategy != job.StrategyCost {
		return &Error{Code: ErrInvalidRequest, Message: fmt.Sprintf("unknown strategy %q", req.Strategy)}
	}
	if req.IsSourceCode && req.SourceCode == "" {
		return &Error{Code: ErrInvalidRequest, Message: "source_code is required when is_source_code is set"}
	}
	if !req.IsSourceCode && req.Task == nil {
		return &Error{Code: ErrInvalidRequest, Message: "task is required for non-source-code requests"}
	}

	prov, err := provider.New(ctx, provider.Config{Name: req.ProviderName})
	if err != nil {
		return &Error{Code: ErrInvalidRequest, Message: fmt.Sprintf("unregistered provider %q", req.ProviderName)}
	}

	if req.IsSourceCode {
		if _, ok := prov.(provider.CodeExecutor); !ok {
			return &Error{Code: ErrInvalidRequest, Message: fmt.Sprintf("provider %q does not support source-code execution", req.ProviderName)}
		}
	}

	devices, err := prov.ListDevices(ctx)
	if err != nil {
		return &Error{Code: ErrProviderUnavailable, Message: fmt.Sprintf("listing devices for %q: %v", req.ProviderName, err)}
	}
	found := false
	for _, d := range devices {
		if d.Name == req.DeviceName {
			found = true
			break
		}
	}
	if !found {
		return &Error{Code: ErrInvalidRequest, Message: fmt.Sprintf("device %q is not registered with provider %q", req.DeviceName, req.ProviderName)}
	}
	return nil
}

// route classifies a freshly-persisted PENDING submission per spec §4.1's
// four-way branch, driven by scheduled_time, queue_if_unavailable, and
// priority, in that order.
func (a *Admitter) route(ctx context.Context, sub job.Submission) error {
	if sub.Request.ScheduledTime != nil && sub.Request.ScheduledTime.After(time.Now().UTC()) {
		return a.transitionAndPersist(ctx, sub, job.StatusScheduled, "scheduled for future fire time", nil)
	}
	return a.routeQueued(ctx, sub)
}

// RouteDue routes a submission whose scheduled_time has just arrived,
// exactly as admission would route a fresh non-scheduled job (spec §4.4:
// "respecting HIGH vs STANDARD and the queue_if_unavailable flag captured
// at admission"). Called by the scheduler's time loop after it has pulled
// the submission out of the scheduled index.
func (a *Admitter) RouteDue(ctx context.Context, sub job.Submission) error {
	return a.routeQueued(ctx, sub)
}

func (a *Admitter) routeQueued(ctx context.Context, sub job.Submission) error {
	req := sub.Request

	if req.QueueIfUnavailable {
		prov, err := provider.New(ctx, provider.Config{Name: req.ProviderName})
		if err != nil {
			return fmt.Errorf("admission: resolve provider %q: %w", req.ProviderName, err)
		}
		avail, err := prov.CheckAvailability(ctx, req.DeviceName)
		if err != nil {
			return fmt.Errorf("admission: check availability for %s/%s: %w", req.ProviderName, req.DeviceName, err)
		}
		if !avail.IsAvailable() {
			return a.transitionAndPersist(ctx, sub, job.StatusQueuedUnavailable, "device unavailable at admission", func() error {
				a.queues.Enqueue(keyFor(req), sub.ID)
				return nil
			})
		}
	}

	// Either queue_if_unavailable was false, or the device turned out to be
	// available: proceed straight to QUEUED.
	if req.Priority == job.PriorityHigh {
		return a.transitionAndPersist(ctx, sub, job.StatusQueued, "admitted (high priority, bypassing batch)", func() error {
			return a.dispatcher.DispatchSingleton(ctx, sub.ID)
		})
	}
	return a.transitionAndPersist(ctx, sub, job.StatusQueued, "admitted", func() error {
		a.queues.Enqueue(keyFor(req), sub.ID)
		return nil
	})
}

func keyFor(req job.Request) job.BatchKey {
	return job.BatchKey{Provider: req.ProviderName, Device: req.DeviceName, Shots: req.Shots}
}

// transitionAndPersist is the single place that enforces "persist before
// emit, emit before returning" for every admission-side transition.
func (a *Admitter) transitionAndPersist(ctx context.Context, sub job.Submission, to job.Status, reason string, onPersisted func() error) error {
	if !job.CanTransition(sub.Status, to) {
		return fmt.Errorf("admission: illegal transition %s -> %s for job %s", sub.Status, to, sub.ID)
	}
	from := sub.Status
	sub.Status = to
	sub.UpdatedAt = time.Now().UTC()

	if err := a.store.Put(ctx, sub); err != nil {
		return fmt.Errorf("admission: persist %s transition for %s: %w", to, sub.ID, err)
	}
	if err := a.store.AppendTransition(ctx, job.StateTransition{
		JobID:        sub.ID,
		TransitionID: uuid.New().String(),
		FromStatus:   string(from),
		ToStatus:     string(to),
		At:           sub.UpdatedAt,
		Reason:       reason,
	}); err != nil {
		return fmt.Errorf("admission: append transition for %s: %w", sub.ID, err)
	}

	if onPersisted != nil {
		if err := onPersisted(); err != nil {
			return fmt.Errorf("admission: post-transition action for %s: %w", sub.ID, err)
		}
	}

	a.publisher.Publish(ctx, job.LifecycleEvent{
		JobID:         sub.ID,
		ProviderJobID: sub.ProviderJobID,
		Status:        to,
		Provider:      sub.Request.ProviderName,
		Device:        sub.Request.DeviceName,
		Timestamp:     sub.UpdatedAt,
		Reason:        reason,
		ScheduledTime: sub.Request.ScheduledTime,
	})
	return nil
}
