package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestProviderError_ErrorsAsUnwraps(t *testing.T) {
	root := fmt.Errorf("device rejected task")
	wrapped := fmt.Errorf("gcpbatch: create job: %w", NewPermanentError("gcp-batch", root))

	var perr *ProviderError
	if !errors.As(wrapped, &perr) {
		t.Fatal("expected errors.As to find a *ProviderError through fmt.Errorf wrapping")
	}
	if perr.Kind != KindPermanent || !perr.Permanent() {
		t.Fatalf("expected Kind=PERMANENT, got %+v", perr)
	}
	if !errors.Is(wrapped, root) {
		t.Fatal("expected Unwrap to expose the original root cause")
	}
}

func TestProviderError_TransientIsNotPermanent(t *testing.T) {
	perr := NewTransientError("gcp-batch", fmt.Errorf("network blip"))
	if perr.Permanent() {
		t.Fatal("expected a transient error to report Permanent() == false")
	}
}
