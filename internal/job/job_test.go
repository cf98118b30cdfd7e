package job

import "testing"

func assertTransition(t *testing.T, from, to Status, want bool) {
	t.Helper()
	if got := CanTransition(from, to); got != want {
		t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
	}
}

func TestCanTransition_PendingFansOutToRouting(t *testing.T) {
	assertTransition(t, StatusPending, StatusScheduled, true)
	assertTransition(t, StatusPending, StatusQueuedUnavailable, true)
	assertTransition(t, StatusPending, StatusQueued, true)
	assertTransition(t, StatusPending, StatusCancelled, true)
	assertTransition(t, StatusPending, StatusSubmitted, false)
	assertTransition(t, StatusPending, StatusCompleted, false)
}

func TestCanTransition_ScheduledRouteDueReachesQueuedOrUnavailable(t *testing.T) {
	assertTransition(t, StatusScheduled, StatusQueued, true)
	assertTransition(t, StatusScheduled, StatusQueuedUnavailable, true)
	assertTransition(t, StatusScheduled, StatusCancelled, true)
	assertTransition(t, StatusScheduled, StatusSubmitted, false)
}

func TestCanTransition_QueuedUnavailablePromotesOnRecovery(t *testing.T) {
	assertTransition(t, StatusQueuedUnavailable, StatusQueued, true)
	assertTransition(t, StatusQueuedUnavailable, StatusCancelled, true)
	assertTransition(t, StatusQueuedUnavailable, StatusSubmitted, false)
}

func TestCanTransition_QueuedDispatches(t *testing.T) {
	assertTransition(t, StatusQueued, StatusSubmitted, true)
	assertTransition(t, StatusQueued, StatusCancelled, true)
	assertTransition(t, StatusQueued, StatusFailed, true)
	assertTransition(t, StatusQueued, StatusQueuedUnavailable, false)
}

func TestCanTransition_SubmittedReachesTerminal(t *testing.T) {
	assertTransition(t, StatusSubmitted, StatusCompleted, true)
	assertTransition(t, StatusSubmitted, StatusFailed, true)
	assertTransition(t, StatusSubmitted, StatusCancelled, true)
	assertTransition(t, StatusSubmitted, StatusQueued, false)
}

func TestCanTransition_TerminalStatesAreSinks(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		for _, to := range []Status{StatusPending, StatusScheduled, StatusQueued, StatusQueuedUnavailable, StatusSubmitted, StatusCompleted, StatusFailed, StatusCancelled} {
			assertTransition(t, terminal, to, false)
		}
	}
}

func TestIsAvailable(t *testing.T) {
	cases := []struct {
		name string
		a    Availability
		want bool
	}{
		{"operational and under threshold", Availability{IsOperational: true, PendingJobs: 2, QueueThreshold: 5}, true},
		{"operational but at threshold", Availability{IsOperational: true, PendingJobs: 5, QueueThreshold: 5}, false},
		{"not operational", Availability{IsOperational: false, PendingJobs: 0, QueueThreshold: 5}, false},
	}
	for _, c := range cases {
		if got := c.a.IsAvailable(); got != c.want {
			t.Errorf("%s: IsAvailable() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestBatchKeyString(t *testing.T) {
	k := BatchKey{Provider: "gcp-batch", Device: "sim1", Shots: 100}
	if got, want := k.String(), "gcp-batch|sim1"; got != want {
		t.Errorf("BatchKey.String() = %q, want %q", got, want)
	}
}
