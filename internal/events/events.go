// Package events implements EventPublisher (spec §4.7): at-least-once,
// best-effort delivery of lifecycle events to an external bus. Grounded on
// the original system's messaging package (app/messaging/google_pubsub.py,
// app/messaging/factory.py): a real Pub/Sub-backed publisher, and a no-op
// fallback returned when no project is configured, mirroring
// create_messaging_client's None return in that case.
package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/nexar/hal/internal/job"
)

// Publisher is the EventPublisher contract. Publish must not block job
// progression: implementations log and drop on failure rather than
// returning an error the caller would need to handle specially.
type Publisher interface {
	Publish(ctx context.Context, evt job.LifecycleEvent)
	Close() error
}

// marshalForLog renders an event for the no-op publisher's log line,
// matching the original's json.dumps(message, default=str) shape closely
// enough to be useful for local debugging.
func marshalForLog(evt job.LifecycleEvent) string {
	b, err := json.Marshal(evt)
	if err != nil {
		return "<unmarshalable event>"
	}
	return string(b)
}

// NoopPublisher logs every event and drops it. Used when EVENT_TOPIC /
// PubSub project is not configured, matching factory.py's
// create_messaging_client() returning None for the same condition.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, evt job.LifecycleEvent) {
	log.Printf("events: no publisher configured, dropping event: %s", marshalForLog(evt))
}

func (NoopPublisher) Close() error { return nil }
