package dispatcher

import (
	"context"
	"errors"
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
	batchErr   error
	shortBatch bool
	codeErr    error
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
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	n := len(tasks)
	if f.shortBatch {
		n--
	}
	out := make([]string, n)
	for i := range out {
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

func (f *fakeProvider) ExecuteCode(ctx context.Context, source, device string, shots int) (string, error) {
	if f.codeErr != nil {
		return "", f.codeErr
	}
	return "code-handle", nil
}

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

func queuedSubmission(id, providerName string) job.Submission {
	now := time.Now().UTC()
	return job.Submission{
		ID:     id,
		Status: job.StatusQueued,
		Request: job.Request{
			Task:         map[string]any{"op": "noop"},
			ProviderName: providerName,
			DeviceName:   "sim1",
			Shots:        10,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDispatch_BatchSuccessBindsHandles(t *testing.T) {
	registerFakeProvider(t, "disp-ok", &fakeProvider{})
	st := store.NewMemoryStore()
	jobIDs := []string{"j1", "j2", "j3"}
	for _, id := range jobIDs {
		if err := st.Put(context.Background(), queuedSubmission(id, "disp-ok")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	d := New(st, events.NoopPublisher{})
	if err := d.Dispatch(context.Background(), job.BatchKey{Provider: "disp-ok", Device: "sim1", Shots: 10}, jobIDs); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	for i, id := range jobIDs {
		sub, ok, err := st.Get(context.Background(), id)
		if err != nil || !ok {
			t.Fatalf("Get %s: %v, %v", id, ok, err)
		}
		if sub.Status != job.StatusSubmitted {
			t.Fatalf("job %s: expected SUBMITTED, got %s", id, sub.Status)
		}
		want := fmt.Sprintf("handle-%d", i)
		if sub.ProviderJobID != want {
			t.Fatalf("job %s: expected provider id %s, got %s", id, want, sub.ProviderJobID)
		}
	}
}

func TestDispatch_BatchFailureFailsAllSubmissions(t *testing.T) {
	registerFakeProvider(t, "disp-err", &fakeProvider{batchErr: errors.New("provider unavailable")})
	st := store.NewMemoryStore()
	jobIDs := []string{"j1", "j2"}
	for _, id := range jobIDs {
		if err := st.Put(context.Background(), queuedSubmission(id, "disp-err")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	d := New(st, events.NoopPublisher{})
	if err := d.Dispatch(context.Background(), job.BatchKey{Provider: "disp-err", Device: "sim1", Shots: 10}, jobIDs); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	for _, id := range jobIDs {
		sub, ok, err := st.Get(context.Background(), id)
		if err != nil || !ok {
			t.Fatalf("Get %s: %v, %v", id, ok, err)
		}
		if sub.Status != job.StatusFailed {
			t.Fatalf("job %s: expected FAILED, got %s", id, sub.Status)
		}
	}
}

func TestDispatch_MismatchedHandleCountFailsAll(t *testing.T) {
	registerFakeProvider(t, "disp-short", &fakeProvider{shortBatch: true})
	st := store.NewMemoryStore()
	jobIDs := []string{"j1", "j2"}
	for _, id := range jobIDs {
		if err := st.Put(context.Background(), queuedSubmission(id, "disp-short")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	d := New(st, events.NoopPublisher{})
	if err := d.Dispatch(context.Background(), job.BatchKey{Provider: "disp-short", Device: "sim1", Shots: 10}, jobIDs); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	for _, id := range jobIDs {
		sub, _, _ := st.Get(context.Background(), id)
		if sub.Status != job.StatusFailed {
			t.Fatalf("job %s: expected FAILED on handle-count mismatch, got %s", id, sub.Status)
		}
	}
}

func TestDispatch_SourceCodeJobUsesExecuteCode(t *testing.T) {
	registerFakeProvider(t, "disp-code", &fakeProvider{})
	st := store.NewMemoryStore()
	sub := queuedSubmission("j1", "disp-code")
	sub.Request.IsSourceCode = true
	sub.Request.SourceCode = "circuit = None"
	if err := st.Put(context.Background(), sub); err != nil {
		t.Fatalf("Put: %v", err)
	}

	d := New(st, events.NoopPublisher{})
	if err := d.DispatchSingleton(context.Background(), "j1"); err != nil {
		t.Fatalf("DispatchSingleton: %v", err)
	}

	got, ok, err := st.Get(context.Background(), "j1")
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if got.Status != job.StatusSubmitted || got.ProviderJobID != "code-handle" {
		t.Fatalf("expected SUBMITTED with code-handle, got status=%s providerJobID=%s", got.Status, got.ProviderJobID)
	}
}
