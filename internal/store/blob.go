package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ResultOffloader decides where a result payload above the inline-size
// threshold lives. StatusTracker calls this before writing a submission's
// ResultRef, keeping large results out of the JobStore's primary row — the
// role SPEC_FULL.md assigns the otherwise-unwired storage dependency.
type ResultOffloader interface {
	// Offload stores payload out of band and returns a reference to embed
	// in the submission's ResultRef field.
	Offload(ctx context.Context, jobID string, payload any) (ref string, err error)

	// Fetch resolves a reference previously returned by Offload (or an
	// inline JSON string, which it returns unmarshaled) back to its value.
	Fetch(ctx context.Context, ref string) (any, error)
}

// InlineOffloader never leaves the process: it JSON-encodes the payload
// and returns it as the reference itself. Used whenever no GCS bucket is
// configured, including the in-memory fallback JobStore.
type InlineOffloader struct{}

func (InlineOffloader) Offload(ctx context.Context, jobID string, payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("store: encode inline result: %w", err)
	}
	return string(b), nil
}

func (InlineOffloader) Fetch(ctx context.Context, ref string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(ref), &v); err != nil {
		return nil, fmt.Errorf("store: decode inline result: %w", err)
	}
	return v, nil
}

// GCSOffloader writes oversized results to a bucket and returns a gs://
// pointer, grounded on the teacher's otherwise-unused storage dependency.
type GCSOffloader struct {
	client *storage.Client
	bucket string
}

func NewGCSOffloader(ctx context.Context, bucket string) (*GCSOffloader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: create storage client: %w", err)
	}
	return &GCSOffloader{client: client, bucket: bucket}, nil
}

func (g *GCSOffloader) Offload(ctx context.Context, jobID string, payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("store: encode result for %s: %w", jobID, err)
	}
	object := fmt.Sprintf("results/%s.json", jobID)
	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if _, err := w.Write(b); err != nil {
		w.Close()
		return "", fmt.Errorf("store: write result blob for %s: %w", jobID, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("store: finalize result blob for %s: %w", jobID, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

func (g *GCSOffloader) Fetch(ctx context.Context, ref string) (any, error) {
	if len(ref) < len("gs://") || ref[:len("gs://")] != "gs://" {
		return InlineOffloader{}.Fetch(ctx, ref)
	}
	bucket, object, err := parseGSRef(ref)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: open result blob %s: %w", ref, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("store: read result blob %s: %w", ref, err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("store: decode result blob %s: %w", ref, err)
	}
	return v, nil
}

func (g *GCSOffloader) Close() error {
	return g.client.Close()
}

func parseGSRef(ref string) (bucket, object string, err error) {
	const prefix = "gs://"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return "", "", fmt.Errorf("store: %q is not a gs:// reference", ref)
	}
	rest := ref[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("store: %q is missing an object path", ref)
}
