// Package memqueue is an in-process queue.Queue used by tests and the
// single-binary dev mode, backed by a plain buffered channel.
package memqueue

import (
	"context"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/queue"
)

// Queue is an in-memory FIFO queue.Queue bounded by its capacity;
// Enqueue blocks while the queue is full, until ctx is done.
type Queue struct {
	ch chan queue.Message
}

func New(capacity int) *Queue {
	return &Queue{ch: make(chan queue.Message, capacity)}
}

func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	msg := queue.Message{ID: common.NewID(), Body: append([]byte(nil), body...)}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Receive(ctx context.Context, maxMessages int) ([]queue.Message, error) {
	var out []queue.Message
	for len(out) < maxMessages {
		select {
		case msg := <-q.ch:
			msg.ReceiptHandle = msg.ID
			out = append(out, msg)
		case <-ctx.Done():
			return out, ctx.Err()
		default:
			return out, nil
		}
	}
	return out, nil
}

func (q *Queue) Delete(ctx context.Context, msg queue.Message) error {
	return nil
}

var _ queue.Queue = (*Queue)(nil)
