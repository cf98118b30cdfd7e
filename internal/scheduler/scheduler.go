// Package scheduler implements §4.4: the batch monitor loop and the time
// scheduler loop, two cooperative periodic tasks driving submissions from
// QUEUED_UNAVAILABLE/QUEUED toward dispatch and from SCHEDULED into QUEUED
// at their fire time. Grounded on the teacher's StartLeaseReconciler loop
// shape (cmd/worker/service/pollers.go): a ticker, a context-cancellation
// exit, and a best-effort per-tick body that logs and continues on error
// rather than crashing the loop.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexar/hal/internal/events"
	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
	"github.com/nexar/hal/internal/store"
)

// Dispatcher is the subset of BatchDispatcher the monitor loop needs to
// hand off a ready batch.
type Dispatcher interface {
	Dispatch(ctx context.Context, key job.BatchKey, jobIDs []string) error
}

// Router is the subset of Admitter the time scheduler loop needs to route
// a newly-due submission exactly as a fresh admission would.
type Router interface {
	RouteDue(ctx context.Context, sub job.Submission) error
}

// Config carries the tunables spec §4.4 and §6 name.
type Config struct {
	BatchTick        time.Duration
	SchedTick        time.Duration
	TimeStrategyWait time.Duration
	CostStrategyWait time.Duration
	MaxBatchSize     int
}

// Scheduler owns the two loops and the pending queues they drain.
type Scheduler struct {
	cfg       Config
	store     store.Store
	queues    *Queues
	disp      Dispatcher
	router    Router
	publisher events.Publisher
}

func New(cfg Config, st store.Store, queues *Queues, disp Dispatcher, router Router, pub events.Publisher) *Scheduler {
	return &Scheduler{cfg: cfg, store: st, queues: queues, disp: disp, router: router, publisher: pub}
}

// Run starts both loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.runBatchMonitor(ctx)
	go s.runTimeScheduler(ctx)
	<-ctx.Done()
	log.Println("scheduler: stopped")
}

func (s *Scheduler) runBatchMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.BatchTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.batchMonitorTick(ctx)
		}
	}
}

func (s *Scheduler) runTimeScheduler(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SchedTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.timeSchedulerTick(ctx)
		}
	}
}

// batchMonitorTick implements spec §4.4's batch monitor loop body, one
// BatchKey at a time.
func (s *Scheduler) batchMonitorTick(ctx context.Context) {
	for _, key := range s.queues.Keys() {
		s.processQueue(ctx, key)
	}
}

func (s *Scheduler) processQueue(ctx context.Context, key job.BatchKey) {
	members := s.queues.Members(key)
	if len(members) == 0 {
		return
	}

	// Step 1: promote any QUEUED_UNAVAILABLE members back to QUEUED once the
	// device reports availability again.
	s.promoteIfAvailable(ctx, key, members)

	// Step 2: partition into ready-to-dispatch QUEUED members. Re-fetch
	// membership since promotion does not change queue position, only status.
	queued := s.filterByStatus(ctx, s.queues.Members(key), job.StatusQueued)
	if len(queued) == 0 {
		return
	}

	oldest, ok, err := s.store.Get(ctx, queued[0])
	if err != nil || !ok || oldest.Status != job.StatusQueued {
		return
	}

	wait := s.cfg.TimeStrategyWait
	if oldest.Request.Strategy == job.StrategyCost {
		wait = s.cfg.CostStrategyWait
	}

	ready := len(queued) >= s.cfg.MaxBatchSize || time.Since(oldest.CreatedAt) >= wait
	if !ready {
		return
	}

	n := len(queued)
	if n > s.cfg.MaxBatchSize {
		n = s.cfg.MaxBatchSize
	}
	batch := make([]string, 0, n)
	for _, id := range queued[:n] {
		if s.queues.Remove(key, id) {
			batch = append(batch, id)
		}
	}
	if len(batch) == 0 {
		return
	}

	if err := s.disp.Dispatch(ctx, key, batch); err != nil {
		log.Printf("scheduler: dispatch failed for batch %s (%d jobs): %v", key, len(batch), err)
	}
}

// promoteIfAvailable checks device availability once per queue (not once
// per member) when QUEUED_UNAVAILABLE members are present.
func (s *Scheduler) promoteIfAvailable(ctx context.Context, key job.BatchKey, members []string) {
	unavailable := s.filterByStatus(ctx, members, job.StatusQueuedUnavailable)
	if len(unavailable) == 0 {
		return
	}

	prov, err := provider.New(ctx, provider.Config{Name: key.Provider})
	if err != nil {
		log.Printf("scheduler: resolve provider %q: %v", key.Provider, err)
		return
	}
	avail, err := prov.CheckAvailability(ctx, key.Device)
	if err != nil {
		log.Printf("scheduler: check availability for %s/%s: %v", key.Provider, key.Device, err)
		return
	}
	if !avail.IsAvailable() {
		return
	}

	for _, jobID := range unavailable {
		sub, ok, err := s.store.Get(ctx, jobID)
		if err != nil || !ok {
			continue
		}
		s.transition(ctx, sub, job.StatusQueued, "device now available")
	}
}

func (s *Scheduler) filterByStatus(ctx context.Context, jobIDs []string, status job.Status) []string {
	out := make([]string, 0, len(jobIDs))
	for _, id := range jobIDs {
		sub, ok, err := s.store.Get(ctx, id)
		if err != nil || !ok {
			continue
		}
		if sub.Status == status {
			out = append(out, id)
		}
	}
	return out
}

// timeSchedulerTick implements spec §4.4's time scheduler loop body: pull
// everything due, clear the scheduled index, and route each exactly as a
// fresh admission would.
func (s *Scheduler) timeSchedulerTick(ctx context.Context) {
	due, err := s.store.AllScheduledDue(ctx, time.Now().UTC().Unix())
	if err != nil {
		log.Printf("scheduler: list scheduled-due jobs: %v", err)
		return
	}
	for _, sub := range due {
		if err := s.store.RemoveScheduled(ctx, sub.ID); err != nil {
			log.Printf("scheduler: remove scheduled index for %s: %v", sub.ID, err)
			continue
		}
		if err := s.router.RouteDue(ctx, sub); err != nil {
			log.Printf("scheduler: route due job %s: %v", sub.ID, err)
		}
	}
}

// transition persists a status change outside the admission path (used by
// the batch monitor's device-recovery promotion, which has no validation to
// repeat since the job was already admitted once), appending an audit row
// and publishing a lifecycle event exactly as admission.transitionAndPersist
// and dispatcher.transition do. The HTTP cancel path is the one transition
// that appends an audit row without publishing an event.
func (s *Scheduler) transition(ctx context.Context, sub job.Submission, to job.Status, reason string) {
	if !job.CanTransition(sub.Status, to) {
		log.Printf("scheduler: illegal transition %s -> %s for job %s", sub.Status, to, sub.ID)
		return
	}
	from := sub.Status
	sub.Status = to
	sub.UpdatedAt = time.Now().UTC()
	if err := s.store.Put(ctx, sub); err != nil {
		log.Printf("scheduler: persist %s transition for %s: %v", to, sub.ID, err)
		return
	}
	if err := s.store.AppendTransition(ctx, job.StateTransition{
		JobID:        sub.ID,
		TransitionID: uuid.New().String(),
		FromStatus:   string(from),
		ToStatus:     string(to),
		At:           sub.UpdatedAt,
		Reason:       reason,
	}); err != nil {
		log.Printf("scheduler: append transition for %s: %v", sub.ID, err)
	}

	s.publisher.Publish(ctx, job.LifecycleEvent{
		JobID:         sub.ID,
		ProviderJobID: sub.ProviderJobID,
		Status:        to,
		Provider:      sub.Request.ProviderName,
		Device:        sub.Request.DeviceName,
		Timestamp:     sub.UpdatedAt,
		Reason:        reason,
	})
}
