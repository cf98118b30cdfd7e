// Package store implements JobStore: the durable, crash-recoverable mapping
// from job_id to JobSubmission, plus the time-indexed secondary index
// scheduled jobs are looked up through. The durable backend is grounded on
// the teacher's Spanner job table (internal/database/jobs.go); the degraded
// fallback is grounded on the original system's RedisClient, which itself
// falls back to an in-memory dict when no Redis is configured.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nexar/hal/internal/job"
)

// Store is the JobStore contract from spec §4.3.
type Store interface {
	// Put upserts a submission. Must be atomic per job_id.
	Put(ctx context.Context, sub job.Submission) error

	// Get returns the submission, or (zero, false) if unknown.
	Get(ctx context.Context, jobID string) (job.Submission, bool, error)

	// AllScheduledDue returns scheduled submissions with scheduled_time <= now.
	AllScheduledDue(ctx context.Context, now int64) ([]job.Submission, error)

	// RemoveScheduled drops a job from the scheduled secondary index
	// without touching the primary record.
	RemoveScheduled(ctx context.Context, jobID string) error

	// LoadAll returns every submission. It is used at startup to rebuild the
	// pending queues, and on every reconcile tick and list_scheduled call.
	LoadAll(ctx context.Context) ([]job.Submission, error)

	// AppendTransition records an immutable audit row for a status change.
	AppendTransition(ctx context.Context, t job.StateTransition) error

	// TryClaimLease attempts to claim or renew ownership of jobID for
	// ownerID until leaseUntil. Returns true when the caller becomes or
	// remains the owner. Grounded on TryClaimOrRenewJobLease: a process
	// may claim a job that is unowned, already owns it, or whose lease
	// has expired — letting a crash-restarted or horizontally-scaled HAL
	// process resume reconciliation without double-submitting work.
	TryClaimLease(ctx context.Context, jobID, ownerID string, leaseUntil time.Time) (bool, error)

	// Persistence reports whether this store survives a process restart.
	// Exposed for observability per the "persistence=ephemeral" flag.
	Persistence() string
}

const (
	PersistenceDurable  = "durable"
	PersistenceEphemeral = "ephemeral"
)

// ErrNotFound is returned by backends that distinguish "absent" from a
// transport error, though most callers prefer Get's (sub, false, nil) form.
var ErrNotFound = fmt.Errorf("store: job not found")
