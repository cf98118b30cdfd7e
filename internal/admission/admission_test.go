package admission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nexar/hal/internal/events"
	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
	"github.com/nexar/hal/internal/store"
)

// fakeProvider is a minimal provider.Provider stub registered per test under
// a unique name so tests never race on the package-level provider registry.
type fakeProvider struct {
	name      string
	devices   []provider.Device
	available job.Availability
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) ListDevices(ctx context.Context) ([]provider.Device, error) {
	return f.devices, nil
}
func (f *fakeProvider) CheckAvailability(ctx context.Context, device string) (job.Availability, error) {
	return f.available, nil
}
func (f *fakeProvider) ExecuteSingle(ctx context.Context, task any, device string, shots int) (string, error) {
	return "handle", nil
}
func (f *fakeProvider) ExecuteBatch(ctx context.Context, tasks []any, device string, shots int) ([]string, error) {
	out := make([]string, len(tasks))
	for i := range tasks {
		out[i] = fmt.Sprintf("handle-%d", i)
	}
	return out, nil
}
func (f *fakeProvider) GetStatus(ctx context.Context, providerJobID string) (job.Status, error) {
	return job.StatusSubmitted, nil
}
func (f *fakeProvider) GetResult(ctx context.Context, providerJobID string) (map[string]any, error) {
	return map[string]any{}, nil
}
func (f *fakeProvider) CancelJob(ctx context.Context, providerJobID string) error { return nil }

type fakeDispatcher struct {
	dispatched []string
}

func (f *fakeDispatcher) DispatchSingleton(ctx context.Context, jobID string) error {
	f.dispatched = append(f.dispatched, jobID)
	return nil
}

func registerFakeProvider(t *testing.T, name string, available job.Availability) {
	t.Helper()
	fp := &fakeProvider{
		name:      name,
		devices:   []provider.Device{{Name: "sim1", Operational: true}, {Name: "sim2", Operational: true}},
		available: available,
	}
	provider.Register(name, func(ctx context.Context, cfg provider.Config) (provider.Provider, error) {
		return fp, nil
	})
	if err := provider.Init(context.Background(), map[string]provider.Config{name: {}}); err != nil {
		t.Fatalf("provider.Init: %v", err)
	}
}

func baseRequest(providerName string) job.Request {
	return job.Request{
		Task:         map[string]any{"op": "noop"},
		ProviderName: providerName,
		DeviceName:   "sim1",
		Shots:        10,
		Priority:     job.PriorityStandard,
	}
}

func TestSubmit_RejectsMissingProvider(t *testing.T) {
	a := New(store.NewMemoryStore(), events.NoopPublisher{}, &recordingQueues{}, &fakeDispatcher{}, 0)
	req := baseRequest("")
	if _, err := a.Submit(context.Background(), req); err == nil {
		t.Fatal("expected error for missing provider_name")
	}
}

func TestSubmit_RejectsUnregisteredDevice(t *testing.T) {
	registerFakeProvider(t, "prov-bad-device", job.Availability{IsOperational: true, QueueThreshold: 5})
	a := New(store.NewMemoryStore(), events.NoopPublisher{}, &recordingQueues{}, &fakeDispatcher{}, 0)
	req := baseRequest("prov-bad-device")
	req.DeviceName = "not-registered"
	if _, err := a.Submit(context.Background(), req); err == nil {
		t.Fatal("expected error for unregistered device")
	}
}

func TestSubmit_StandardPriorityEnqueues(t *testing.T) {
	registerFakeProvider(t, "prov-standard", job.Availability{IsOperational: true, QueueThreshold: 5})
	st := store.NewMemoryStore()
	queues := &recordingQueues{}
	disp := &fakeDispatcher{}
	a := New(st, events.NoopPublisher{}, queues, disp, 0)

	jobID, err := a.Submit(context.Background(), baseRequest("prov-standard"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(queues.enqueued) != 1 || queues.enqueued[0] != jobID {
		t.Fatalf("expected job %s enqueued, got %v", jobID, queues.enqueued)
	}
	if len(disp.dispatched) != 0 {
		t.Fatalf("standard priority should not bypass batching, got dispatch calls %v", disp.dispatched)
	}

	sub, ok, err := st.Get(context.Background(), jobID)
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if sub.Status != job.StatusQueued {
		t.Fatalf("expected QUEUED, got %s", sub.Status)
	}
}

func TestSubmit_HighPriorityBypassesBatching(t *testing.T) {
	registerFakeProvider(t, "prov-high", job.Availability{IsOperational: true, QueueThreshold: 5})
	st := store.NewMemoryStore()
	queues := &recordingQueues{}
	disp := &fakeDispatcher{}
	a := New(st, events.NoopPublisher{}, queues, disp, 0)

	req := baseRequest("prov-high")
	req.Priority = job.PriorityHigh
	jobID, err := a.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(queues.enqueued) != 0 {
		t.Fatalf("high priority should bypass the queue, got %v", queues.enqueued)
	}
	if len(disp.dispatched) != 1 || disp.dispatched[0] != jobID {
		t.Fatalf("expected singleton dispatch for %s, got %v", jobID, disp.dispatched)
	}
}

func TestSubmit_QueueIfUnavailableWhenDeviceDown(t *testing.T) {
	registerFakeProvider(t, "prov-down", job.Availability{IsOperational: false, QueueThreshold: 5})
	st := store.NewMemoryStore()
	queues := &recordingQueues{}
	a := New(st, events.NoopPublisher{}, queues, &fakeDispatcher{}, 0)

	req := baseRequest("prov-down")
	req.QueueIfUnavailable = true
	jobID, err := a.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sub, ok, err := st.Get(context.Background(), jobID)
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if sub.Status != job.StatusQueuedUnavailable {
		t.Fatalf("expected QUEUED_UNAVAILABLE, got %s", sub.Status)
	}
}

func TestSubmit_FutureScheduledTimeParks(t *testing.T) {
	registerFakeProvider(t, "prov-sched", job.Availability{IsOperational: true, QueueThreshold: 5})
	st := store.NewMemoryStore()
	a := New(st, events.NoopPublisher{}, &recordingQueues{}, &fakeDispatcher{}, 0)

	future := time.Now().UTC().Add(time.Hour)
	req := baseRequest("prov-sched")
	req.ScheduledTime = &future
	jobID, err := a.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sub, ok, err := st.Get(context.Background(), jobID)
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if sub.Status != job.StatusScheduled {
		t.Fatalf("expected SCHEDULED, got %s", sub.Status)
	}
	due, err := st.AllScheduledDue(context.Background(), future.Unix())
	if err != nil {
		t.Fatalf("AllScheduledDue: %v", err)
	}
	if len(due) != 1 || due[0].ID != jobID {
		t.Fatalf("expected job in scheduled index, got %v", due)
	}
}

func TestSubmit_BackpressureRejectsWhenAtHighWater(t *testing.T) {
	registerFakeProvider(t, "prov-backpressure", job.Availability{IsOperational: true, QueueThreshold: 5})
	st := store.NewMemoryStore()
	a := New(st, events.NoopPublisher{}, &recordingQueues{}, &fakeDispatcher{}, 1)

	if _, err := a.Submit(context.Background(), baseRequest("prov-backpressure")); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := a.Submit(context.Background(), baseRequest("prov-backpressure")); err == nil {
		t.Fatal("expected backpressure error on second submission")
	}
}

func TestSubmit_BackpressureNeverRejectsHighPriority(t *testing.T) {
	registerFakeProvider(t, "prov-backpressure-high", job.Availability{IsOperational: true, QueueThreshold: 5})
	st := store.NewMemoryStore()
	a := New(st, events.NoopPublisher{}, &recordingQueues{}, &fakeDispatcher{}, 1)

	if _, err := a.Submit(context.Background(), baseRequest("prov-backpressure-high")); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	req := baseRequest("prov-backpressure-high")
	req.Priority = job.PriorityHigh
	if _, err := a.Submit(context.Background(), req); err != nil {
		t.Fatalf("HIGH priority must never be rejected by backpressure, got: %v", err)
	}
}

func TestSubmit_BackpressureScopedPerQueueNotGlobal(t *testing.T) {
	registerFakeProvider(t, "prov-backpressure-scoped", job.Availability{IsOperational: true, QueueThreshold: 5})
	st := store.NewMemoryStore()
	a := New(st, events.NoopPublisher{}, &recordingQueues{}, &fakeDispatcher{}, 1)

	reqA := baseRequest("prov-backpressure-scoped")
	reqA.DeviceName = "sim1"
	if _, err := a.Submit(context.Background(), reqA); err != nil {
		t.Fatalf("first Submit (device sim1): %v", err)
	}

	reqB := baseRequest("prov-backpressure-scoped")
	reqB.DeviceName = "sim2"
	if _, err := a.Submit(context.Background(), reqB); err != nil {
		t.Fatalf("submission to a different device's queue must not be rejected by another queue's depth: %v", err)
	}
}

type recordingQueues struct {
	enqueued []string
	byKey    map[job.BatchKey][]string
}

func (r *recordingQueues) Enqueue(key job.BatchKey, jobID string) {
	r.enqueued = append(r.enqueued, jobID)
	if r.byKey == nil {
		r.byKey = make(map[job.BatchKey][]string)
	}
	r.byKey[key] = append(r.byKey[key], jobID)
}

func (r *recordingQueues) Members(key job.BatchKey) []string {
	return r.byKey[key]
}
