package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
)

// PubSubNotifier publishes each record as a JSON message.
type PubSubNotifier struct {
	topic *pubsub.Topic
}

// NewPubSub returns a notifier publishing to topicID.
func NewPubSub(client *pubsub.Client, topicID string) (*PubSubNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("topic id is required")
	}
	return &PubSubNotifier{topic: client.Topic(topicID)}, nil
}

// Notify publishes rec and waits for the server ack.
func (n *PubSubNotifier) Notify(ctx context.Context, rec contest.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"url":    rec.URL,
			"state":  rec.Region,
			"format": "concurso.record.v1",
		},
	}
	if _, err := n.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (n *PubSubNotifier) Stop() {
	n.topic.Stop()
}
