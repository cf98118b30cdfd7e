package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	"github.com/nexar/hal/internal/job"
)

// Client wraps a Spanner database handle. The teacher repo references an
// equivalent database.Client throughout its worker service but the type
// itself was filtered out of the retrieved pack; this is authored fresh in
// the same idiom (a thin wrapper exposing the raw *spanner.Client, plus a
// Close that the composition root defers).
type Client struct {
	client *spanner.Client
}

// NewClient dials Spanner at projects/{projectID}/instances/{instance}/databases/{database}.
func NewClient(ctx context.Context, projectID, instance, database string) (*Client, error) {
	dsn := fmt.Sprintf("projects/%s/instances/%s/databases/%s", projectID, instance, database)
	c, err := spanner.NewClient(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: dial spanner %s: %w", dsn, err)
	}
	return &Client{client: c}, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

// SpannerStore is the durable JobStore backend, grounded on the teacher's
// internal/database/jobs.go: Apply-based upserts for the common path, and a
// ReadWriteTransaction for anything requiring a read-before-write, mirroring
// TryClaimOrRenewJobLease's shape.
type SpannerStore struct {
	db *Client
}

func NewSpannerStore(db *Client) *SpannerStore {
	return &SpannerStore{db: db}
}

func (s *SpannerStore) Persistence() string { return PersistenceDurable }

func (s *SpannerStore) Put(ctx context.Context, sub job.Submission) error {
	reqJSON, err := json.Marshal(sub.Request)
	if err != nil {
		return fmt.Errorf("store: encode request for %s: %w", sub.ID, err)
	}
	row := submissionRow{
		JobID:         sub.ID,
		RequestJSON:   string(reqJSON),
		Status:        string(sub.Status),
		CreatedAt:     sub.CreatedAt,
		UpdatedAt:     time.Now().UTC(),
		ProviderJobID: sub.ProviderJobID,
		ResultRef:     sub.ResultRef,
		FailureReason: sub.FailureReason,
	}
	if sub.Request.ScheduledTime != nil {
		row.ScheduledAt = *sub.Request.ScheduledTime
		row.HasScheduled = sub.Status == job.StatusScheduled
	}

	mutation, err := spanner.InsertOrUpdateStruct("Submissions", row)
	if err != nil {
		return fmt.Errorf("store: build mutation for %s: %w", sub.ID, err)
	}
	if _, err := s.db.client.Apply(ctx, []*spanner.Mutation{mutation}); err != nil {
		return fmt.Errorf("store: put %s: %w", sub.ID, err)
	}
	return nil
}

func (s *SpannerStore) Get(ctx context.Context, jobID string) (job.Submission, bool, error) {
	row, err := s.db.client.Single().ReadRow(ctx, "Submissions", spanner.Key{jobID}, submissionColumns)
	if spanner.ErrCode(err) == codes.NotFound {
		return job.Submission{}, false, nil
	}
	if err != nil {
		return job.Submission{}, false, fmt.Errorf("store: get %s: %w", jobID, err)
	}
	var r submissionRow
	if err := row.ToStruct(&r); err != nil {
		return job.Submission{}, false, fmt.Errorf("store: parse %s: %w", jobID, err)
	}
	sub, err := toSubmission(r)
	if err != nil {
		return job.Submission{}, false, err
	}
	return sub, true, nil
}

func (s *SpannerStore) AllScheduledDue(ctx context.Context, now int64) ([]job.Submission, error) {
	stmt := spanner.Statement{
		SQL: `SELECT ` + submissionColumnList + `
		      FROM Submissions
		      WHERE HasScheduled = true AND ScheduledAt <= @now
		      ORDER BY ScheduledAt ASC`,
		Params: map[string]interface{}{"now": time.Unix(now, 0).UTC()},
	}
	return s.query(ctx, stmt)
}

func (s *SpannerStore) RemoveScheduled(ctx context.Context, jobID string) error {
	mutation := spanner.Update("Submissions", []string{"JobId", "HasScheduled"}, []interface{}{jobID, false})
	if _, err := s.db.client.Apply(ctx, []*spanner.Mutation{mutation}); err != nil {
		return fmt.Errorf("store: remove scheduled %s: %w", jobID, err)
	}
	return nil
}

func (s *SpannerStore) LoadAll(ctx context.Context) ([]job.Submission, error) {
	stmt := spanner.Statement{SQL: `SELECT ` + submissionColumnList + ` FROM Submissions ORDER BY CreatedAt ASC`}
	return s.query(ctx, stmt)
}

func (s *SpannerStore) AppendTransition(ctx context.Context, t job.StateTransition) error {
	mutation, err := spanner.InsertStruct("StateTransitions", transitionRow{
		JobID:          t.JobID,
		TransitionID:   t.TransitionID,
		FromStatus:     t.FromStatus,
		ToStatus:       t.ToStatus,
		TransitionedAt: t.At,
		Reason:         t.Reason,
	})
	if err != nil {
		return fmt.Errorf("store: build transition mutation for %s: %w", t.JobID, err)
	}
	if _, err := s.db.client.Apply(ctx, []*spanner.Mutation{mutation}); err != nil {
		return fmt.Errorf("store: append transition for %s: %w", t.JobID, err)
	}
	return nil
}

// TryClaimLease claims or renews ownership of jobID, mirroring
// TryClaimOrRenewJobLease: a ReadWriteTransaction reads the current owner
// and lease expiry, allows the claim when the row is unowned, already owned
// by ownerID, or its lease has expired, and otherwise leaves the row
// untouched.
func (s *SpannerStore) TryClaimLease(ctx context.Context, jobID, ownerID string, leaseUntil time.Time) (bool, error) {
	claimed := false
	_, err := s.db.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		row, err := txn.ReadRow(ctx, "Submissions", spanner.Key{jobID}, []string{"OwnerId", "LeaseExpires"})
		if err != nil {
			return fmt.Errorf("store: read lease state for %s: %w", jobID, err)
		}

		var owner spanner.NullString
		var leaseExpires spanner.NullTime
		if err := row.Columns(&owner, &leaseExpires); err != nil {
			return fmt.Errorf("store: parse lease state for %s: %w", jobID, err)
		}

		now := time.Now().UTC()
		isOwner := owner.Valid && owner.StringVal == ownerID
		isUnowned := !owner.Valid || owner.StringVal == ""
		leaseExpired := !leaseExpires.Valid || leaseExpires.Time.Before(now)
		if !isOwner && !isUnowned && !leaseExpired {
			return nil
		}

		mutation := spanner.Update("Submissions",
			[]string{"JobId", "OwnerId", "LeaseExpires"},
			[]interface{}{jobID, ownerID, leaseUntil},
		)
		if err := txn.BufferWrite([]*spanner.Mutation{mutation}); err != nil {
			return fmt.Errorf("store: buffer lease mutation for %s: %w", jobID, err)
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: claim lease for %s: %w", jobID, err)
	}
	return claimed, nil
}

var submissionColumns = []string{
	"JobId", "RequestJson", "Status", "CreatedAt", "UpdatedAt",
	"ProviderJobId", "ResultRef", "FailureReason", "ScheduledAt", "HasScheduled",
	"OwnerId", "LeaseExpires",
}

var submissionColumnList = func() string {
	out := ""
	for i, c := range submissionColumns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}()

func (s *SpannerStore) query(ctx context.Context, stmt spanner.Statement) ([]job.Submission, error) {
	iter := s.db.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []job.Submission
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: iterate submissions: %w", err)
		}
		var r submissionRow
		if err := row.ToStruct(&r); err != nil {
			return nil, fmt.Errorf("store: parse submission row: %w", err)
		}
		sub, err := toSubmission(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func toSubmission(r submissionRow) (job.Submission, error) {
	var req job.Request
	if err := json.Unmarshal([]byte(r.RequestJSON), &req); err != nil {
		return job.Submission{}, fmt.Errorf("store: decode request for %s: %w", r.JobID, err)
	}
	return job.Submission{
		ID:            r.JobID,
		Request:       req,
		Status:        job.Status(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		ProviderJobID: r.ProviderJobID,
		ResultRef:     r.ResultRef,
		FailureReason: r.FailureReason,
	}, nil
}
