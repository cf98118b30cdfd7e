package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"cloud.google.com/go/pubsub"

	"github.com/nexar/hal/internal/job"
)

// PubSubPublisher publishes lifecycle events to a Google Cloud Pub/Sub
// topic. Grounded on GooglePubSubClient.publish_message: JSON-encode the
// event, publish, and block on the publish result so a failed publish is
// logged — but never propagate that error up into job progression,
// per spec §4.7's "failure to publish logs and drops the event".
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher creates a publisher bound to projectID/topicName. The
// topic is assumed to already exist; this mirrors the original client,
// which never attempts to create its topic either.
func NewPubSubPublisher(ctx context.Context, projectID, topicName string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("events: create pubsub client: %w", err)
	}
	return &PubSubPublisher{client: client, topic: client.Topic(topicName)}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, evt job.LifecycleEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("events: failed to encode event for job %s: %v", evt.JobID, err)
		return
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		log.Printf("events: failed to publish event for job %s: %v", evt.JobID, err)
	}
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
