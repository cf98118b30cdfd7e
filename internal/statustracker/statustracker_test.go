package statustracker

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

type fakeProvider struct {
	name       string
	status     job.Status
	result     map[string]any
	statusErr  error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) ListDevices(ctx context.Context) ([]provider.Device, error) { return nil, nil }
func (f *fakeProvider) CheckAvailability(ctx context.Context, device string) (job.Availability, error) {
	return job.Availability{IsOperational: true, QueueThreshold: 5}, nil
}
func (f *fakeProvider) ExecuteSingle(ctx context.Context, task any, device string, shots int) (string, error) {
	return "handle", nil
}
func (f *fakeProvider) ExecuteBatch(ctx context.Context, tasks []any, device string, shots int) ([]string, error) {
	return nil, nil
}
func (f *fakeProvider) GetStatus(ctx context.Context, providerJobID string) (job.Status, error) {
	if f.statusErr != nil {
		return job.StatusUnknown, f.statusErr
	}
	return f.status, nil
}
func (f *fakeProvider) GetResult(ctx context.Context, providerJobID string) (map[string]any, error) {
	return f.result, nil
}
func (f *fakeProvider) CancelJob(ctx context.Context, providerJobID string) error { return nil }

func registerFakeProvider(t *testing.T, name string, fp *fakeProvider) {
	t.Helper()
	fp.name = name
	provider.Register(name, func(ctx context.Context, cfg provider.Config) (provider.Provider, error) {
		return fp, nil
	})
	if err := provider.Init(context.Background(), map[string]provider.Config{name: {}}); err != nil {
		t.Fatalf("provider.Init: %v", err)
	}
}

func submittedSubmission(id, providerName string) job.Submission {
	now := time.Now().UTC()
	return job.Submission{
		ID:            id,
		Status:        job.StatusSubmitted,
		ProviderJobID: "provider-handle",
		Request: job.Request{
			ProviderName: providerName,
			DeviceName:   "sim1",
			Shots:        10,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestGetStatus_TerminalJobsSkipProviderCall(t *testing.T) {
	st := store.NewMemoryStore()
	sub := submittedSubmission("j1", "tracker-terminal")
	sub.Status = job.StatusCompleted
	if err := st.Put(context.Background(), sub); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tr := New(st, events.NoopPublisher{}, store.InlineOffloader{}, 1024, "worker-1", time.Minute, time.Second, time.Second)
	status, err := tr.GetStatus(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != job.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", status)
	}
}

func TestGetStatus_ReconcilesChangedProviderStatus(t *testing.T) {
	registerFakeProvider(t, "tracker-changed", &fakeProvider{status: job.StatusFailed})
	st := store.NewMemoryStore()
	if err := st.Put(context.Background(), submittedSubmission("j1", "tracker-changed")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tr := New(st, events.NoopPublisher{}, store.InlineOffloader{}, 1024, "worker-1", time.Minute, time.Second, time.Second)
	status, err := tr.GetStatus(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != job.StatusFailed {
		t.Fatalf("expected FAILED, got %s", status)
	}

	sub, ok, err := st.Get(context.Background(), "j1")
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if sub.Status != job.StatusFailed {
		t.Fatalf("expected persisted FAILED, got %s", sub.Status)
	}
}

func TestGetStatus_PermanentProviderErrorFailsJob(t *testing.T) {
	registerFakeProvider(t, "tracker-permanent", &fakeProvider{
		statusErr: provider.NewPermanentError("tracker-permanent", fmt.Errorf("device rejected task")),
	})
	st := store.NewMemoryStore()
	if err := st.Put(context.Background(), submittedSubmission("j1", "tracker-permanent")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tr := New(st, events.NoopPublisher{}, store.InlineOffloader{}, 1024, "worker-1", time.Minute, time.Second, time.Second)
	status, err := tr.GetStatus(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != job.StatusFailed {
		t.Fatalf("expected a permanent provider error to report FAILED, got %s", status)
	}

	sub, ok, err := st.Get(context.Background(), "j1")
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if sub.Status != job.StatusFailed {
		t.Fatalf("expected persisted FAILED after a permanent provider error, got %s", sub.Status)
	}
}

func TestGetStatus_TransientProviderErrorLeavesStateUntouched(t *testing.T) {
	registerFakeProvider(t, "tracker-transient", &fakeProvider{
		statusErr: provider.NewTransientError("tracker-transient", fmt.Errorf("network blip")),
	})
	st := store.NewMemoryStore()
	if err := st.Put(context.Background(), submittedSubmission("j1", "tracker-transient")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tr := New(st, events.NoopPublisher{}, store.InlineOffloader{}, 1024, "worker-1", time.Minute, time.Second, time.Second)
	if _, err := tr.GetStatus(context.Background(), "j1"); err == nil {
		t.Fatal("expected a transient provider error to surface to the caller")
	}

	sub, ok, err := st.Get(context.Background(), "j1")
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if sub.Status != job.StatusSubmitted {
		t.Fatalf("expected a transient error to leave local state untouched, got %s", sub.Status)
	}
}

func TestGetResult_CompletesAndOffloadsInline(t *testing.T) {
	registerFakeProvider(t, "tracker-result", &fakeProvider{
		status: job.StatusCompleted,
		result: map[string]any{"counts": map[string]any{"00": float64(512), "11": float64(512)}},
	})
	st := store.NewMemoryStore()
	if err := st.Put(context.Background(), submittedSubmission("j1", "tracker-result")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tr := New(st, events.NoopPublisher{}, store.InlineOffloader{}, 1024, "worker-1", time.Minute, time.Second, time.Second)
	result, err := tr.GetResult(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}

	sub, ok, err := st.Get(context.Background(), "j1")
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if sub.Status != job.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", sub.Status)
	}
	if sub.ResultRef == "" {
		t.Fatal("expected ResultRef to be set")
	}
}

func TestGetResult_NotYetCompleteReturnsError(t *testing.T) {
	registerFakeProvider(t, "tracker-pending", &fakeProvider{status: job.StatusSubmitted})
	st := store.NewMemoryStore()
	if err := st.Put(context.Background(), submittedSubmission("j1", "tracker-pending")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tr := New(st, events.NoopPublisher{}, store.InlineOffloader{}, 1024, "worker-1", time.Minute, time.Second, time.Second)
	if _, err := tr.GetResult(context.Background(), "j1"); err == nil {
		t.Fatal("expected error requesting result before completion")
	}
}

func TestReconcileTick_ClaimsAndAdvancesSubmittedJobs(t *testing.T) {
	registerFakeProvider(t, "tracker-reconcile", &fakeProvider{status: job.StatusCompleted, result: map[string]any{}})
	st := store.NewMemoryStore()
	if err := st.Put(context.Background(), submittedSubmission("j1", "tracker-reconcile")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tr := New(st, events.NoopPublisher{}, store.InlineOffloader{}, 1024, "worker-1", time.Minute, time.Second, time.Second)
	tr.reconcileTick(context.Background())

	sub, ok, err := st.Get(context.Background(), "j1")
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if sub.Status != job.StatusCompleted {
		t.Fatalf("expected reconcile tick to advance job to COMPLETED, got %s", sub.Status)
	}
}
