// Package queueadapter is the thin seam over the delayed-delivery work queue:
// enqueue a message body with a delay, to be delivered to TickHandler once the
// delay elapses. Production uses SQS; pkg/messaging's NATS JetStream client
// backs a local double of the same interface for the admin API and
// integration tests, per spec.md §9's "the LB and queue adapters are the
// natural seams for dependency injection" note.
package queueadapter

import (
	"context"
	"time"
)

// Enqueuer is the one operation TickHandler's production/local paths share:
// schedule body for delivery to queueID after delay.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueID string, delay time.Duration, body string) error
}
