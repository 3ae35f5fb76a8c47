package queueadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client this system calls.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue is the production Enqueuer, backed by Amazon SQS.
type SQSQueue struct {
	api SQSAPI
}

// NewSQSQueue wraps an existing SQS SDK client.
func NewSQSQueue(api SQSAPI) *SQSQueue {
	return &SQSQueue{api: api}
}

// Enqueue sends body to queueID with the given delay. delay is clamped to
// SQS's maximum DelaySeconds (900s); this system only ever requests up to
// 300s (spec.md §6).
func (q *SQSQueue) Enqueue(ctx context.Context, queueID string, delay time.Duration, body string) error {
	delaySec := int32(delay / time.Second)
	if delaySec > 900 {
		delaySec = 900
	}
	if delaySec < 0 {
		delaySec = 0
	}

	_, err := q.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(queueID),
		MessageBody:  aws.String(body),
		DelaySeconds: delaySec,
	})
	if err != nil {
		return fmt.Errorf("enqueue to %s: %w", queueID, err)
	}
	return nil
}
