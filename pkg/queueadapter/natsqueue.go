package queueadapter

import (
	"context"
	"time"

	"github.com/aws-samples/alb-target-group-load-shedding/pkg/messaging"
)

// NATSQueue is a local-testing Enqueuer backed by NATS JetStream, for the
// admin API and integration tests — see pkg/messaging for the delay
// emulation caveat. queueID is used as the JetStream subject.
type NATSQueue struct {
	client *messaging.Client
}

// NewNATSQueue wraps an existing messaging.Client.
func NewNATSQueue(client *messaging.Client) *NATSQueue {
	return &NATSQueue{client: client}
}

// Enqueue schedules body for publish to the queueID subject after delay.
func (q *NATSQueue) Enqueue(ctx context.Context, queueID string, delay time.Duration, body string) error {
	return q.client.EnqueueDelayed(queueID, []byte(body), delay)
}
