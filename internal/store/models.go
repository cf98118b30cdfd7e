package store

import "time"

// submissionRow is the Spanner row shape for the Submissions table, the
// JobStore's primary hash keyed by job_id. Mirrors the teacher's Job
// struct (internal/database/models.go) generalized to HAL's submission
// fields; RequestJSON carries the serialized job.Request since its Task
// field is opaque to HAL and cannot be modeled as Spanner columns.
type submissionRow struct {
	JobID         string    `spanner:"JobId"`
	RequestJSON   string    `spanner:"RequestJson"`
	Status        string    `spanner:"Status"`
	CreatedAt     time.Time `spanner:"CreatedAt"`
	UpdatedAt     time.Time `spanner:"UpdatedAt"`
	ProviderJobID string    `spanner:"ProviderJobId"`
	ResultRef     string    `spanner:"ResultRef"`
	FailureReason string    `spanner:"FailureReason"`
	ScheduledAt   time.Time `spanner:"ScheduledAt"`
	HasScheduled  bool      `spanner:"HasScheduled"`
	OwnerID       string    `spanner:"OwnerId"`
	LeaseExpires  time.Time `spanner:"LeaseExpires"`
}

// transitionRow is the audit-trail table row, grounded on the teacher's
// JobStateTransition.
type transitionRow struct {
	JobID          string    `spanner:"JobId"`
	TransitionID   string    `spanner:"TransitionId"`
	FromStatus     string    `spanner:"FromStatus"`
	ToStatus       string    `spanner:"ToStatus"`
	TransitionedAt time.Time `spanner:"TransitionedAt"`
	Reason         string    `spanner:"Reason"`
}
