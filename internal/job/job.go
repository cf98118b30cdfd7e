// Package job defines the data model HAL operates on: requests, submissions,
// device availability, batch keys, and lifecycle events. These types are the
// vocabulary every other package (admission, scheduler, dispatcher,
// statustracker, store, events) shares.
package job

import "time"

// Priority controls whether a request bypasses batching.
type Priority string

const (
	PriorityHigh     Priority = "HIGH"
	PriorityStandard Priority = "STANDARD"
)

// Strategy controls how long a batch waits before dispatching.
type Strategy string

const (
	StrategyTime Strategy = "TIME"
	StrategyCost Strategy = "COST"
)

// Status is a job's position in the lifecycle state machine.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusScheduled         Status = "SCHEDULED"
	StatusQueuedUnavailable Status = "QUEUED_UNAVAILABLE"
	StatusQueued            Status = "QUEUED"
	StatusSubmitted         Status = "SUBMITTED"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusCancelled         Status = "CANCELLED"
	StatusUnknown           Status = "UNKNOWN"
)

// terminal reports whether a status admits no further transitions.
func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the state machine's edges. CanTransition
// rejects a transition not listed here; the stores themselves do not check,
// so every component checks CanTransition before writing a new status.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusScheduled, StatusQueuedUnavailable, StatusQueued, StatusCancelled},
	// SCHEDULED also reaches QUEUED_UNAVAILABLE: when a scheduled job's fire
	// time arrives, the time scheduler routes it exactly as admission would
	// route a fresh job, including re-checking queue_if_unavailable.
	StatusScheduled:         {StatusQueued, StatusQueuedUnavailable, StatusCancelled},
	StatusQueuedUnavailable: {StatusQueued, StatusCancelled},
	StatusQueued:            {StatusSubmitted, StatusCancelled, StatusFailed},
	StatusSubmitted:         {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal edge in the lifecycle
// state machine. Terminal states never transition further.
func CanTransition(from, to Status) bool {
	if from.terminal() {
		return false
	}
	for _, candidate := range validTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Request is the caller-supplied description of work to run. Task carries an
// opaque, provider-specific payload (a circuit description, a batch of
// classical inputs); HAL never inspects it.
type Request struct {
	Task             any
	ProviderName     string
	DeviceName       string
	Shots            int
	Priority         Priority
	Strategy         Strategy
	UserID           string
	ScheduledTime    *time.Time
	QueueIfUnavailable bool
	IsSourceCode     bool
	SourceCode       string
}

// Submission is the durable record of an admitted job: the original request
// plus everything HAL has learned about it since.
type Submission struct {
	ID             string
	Request        Request
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ProviderJobID  string
	ResultRef      string // inline JSON, or a gs:// pointer when offloaded
	FailureReason  string
}

// BatchKey groups submissions that can be dispatched together: same
// provider, same device, same shot count. Source-code jobs are queued under
// a BatchKey like any other job, but the dispatcher runs each one through
// ExecuteCode on its own rather than in the batched call.
type BatchKey struct {
	Provider string
	Device   string
	Shots    int
}

func (k BatchKey) String() string {
	return k.Provider + "|" + k.Device
}

// Availability is a point-in-time read of a device's capacity to accept
// more work.
type Availability struct {
	DeviceName     string
	IsOperational  bool
	PendingJobs    int
	QueueThreshold int
}

// IsAvailable mirrors the original system's computed property: a device is
// available only when operational and under its pending-job threshold.
func (a Availability) IsAvailable() bool {
	return a.IsOperational && a.PendingJobs < a.QueueThreshold
}

// EventKind names the lifecycle events EventPublisher emits.
type EventKind string

const (
	EventStatusChanged EventKind = "STATUS_CHANGED"
)

// LifecycleEvent is the wire shape published to the event bus for every
// observable state change.
type LifecycleEvent struct {
	JobID         string         `json:"job_id"`
	ProviderJobID string         `json:"provider_job_id,omitempty"`
	Status        Status         `json:"status"`
	Provider      string         `json:"provider"`
	Device        string         `json:"device"`
	Timestamp     time.Time      `json:"timestamp"`
	Reason        string         `json:"reason,omitempty"`
	ScheduledTime *time.Time     `json:"scheduled_time,omitempty"`
	Extra         map[string]any `json:"extra_data,omitempty"`
}

// StateTransition is an immutable audit row appended on every status change.
type StateTransition struct {
	JobID        string
	TransitionID string
	FromStatus   string
	ToStatus     string
	At           time.Time
	Reason       string
}
