package local

import (
	"context"
	"testing"

	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
)

func TestExecuteCode_ValidCircuit(t *testing.T) {
	p, _ := New(context.Background(), provider.Config{})
	id, err := p.(*Provider).ExecuteCode(context.Background(), `circuit = {"qubits": 1}`, deviceName, 1024)
	if err != nil {
		t.Fatalf("ExecuteCode: %v", err)
	}
	status, err := p.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != job.StatusCompleted {
		t.Errorf("status = %v, want COMPLETED", status)
	}
}

func TestExecuteCode_MissingCircuitFails(t *testing.T) {
	p, _ := New(context.Background(), provider.Config{})
	_, err := p.(*Provider).ExecuteCode(context.Background(), `x = 1`, deviceName, 1024)
	if err == nil {
		t.Fatal("expected an error for source with no circuit, so the caller fails the job synchronously")
	}
}

func TestCheckAvailability_AlwaysOperational(t *testing.T) {
	p, _ := New(context.Background(), provider.Config{})
	avail, err := p.CheckAvailability(context.Background(), deviceName)
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if !avail.IsAvailable() {
		t.Error("expected local provider to report available with no pending jobs")
	}
}
