// Package queue defines the at-least-once message queue port used to
// carry QC jobs from the Submission Manager to the QC Pipeline worker,
// and scheduled-publish notices from the scheduler loops. Queue-triggered
// QC is the only inbound fan-out path the pipeline depends on.
package queue

import "context"

// Message is one delivered item. ReceiptHandle is opaque to callers and
// only meaningful to Delete on the same backend that produced it.
type Message struct {
	ID string
	Body []byte
	ReceiptHandle string
}

// Queue is the narrow send/receive/delete port. At-least-once delivery
// is assumed: a message may be redelivered before Delete is called, so
// every consumer must be idempotent (the QC Pipeline is, by
// construction).
type Queue interface {
	Enqueue(ctx context.Context, body []byte) error
	// Receive long-polls for up to maxMessages, blocking up to the
	// backend's wait configuration. An empty, nil-error result is a
	// normal empty poll, not a failure.
	Receive(ctx context.Context, maxMessages int) ([]Message, error)
	// Delete acknowledges a message so it is not redelivered. Backends
	// without a discrete ack (e.g. Kafka) implement this as an offset
	// commit.
	Delete(ctx context.Context, msg Message) error
}
