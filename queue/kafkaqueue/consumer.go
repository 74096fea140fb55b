package kafkaqueue

import (
	"context"
	"strconv"
	"sync"

	"github.com/Shopify/sarama"

	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/queue"
)

var logger = log.New("kafkaqueue.consumer")

// groupConsumer implements sarama.ConsumerGroupHandler, feeding claimed
// messages into a channel instead of a per-topic callback map, and
// tracking sessions so markDone can commit the right offset on delete.
type groupConsumer struct {
	out chan queue.Message

	mu       sync.Mutex
	sessions map[string]sarama.ConsumerGroupSession
}

func newGroupConsumer(out chan queue.Message) *groupConsumer {
	return &groupConsumer{out: out, sessions: map[string]sarama.ConsumerGroupSession{}}
}

func (c *groupConsumer) run(ctx context.Context, group sarama.ConsumerGroup, topic string) {
	defer group.Close()
	for {
		if err := group.Consume(ctx, []string{topic}, c); err != nil {
			logger.Error("kafka consume loop returned an error", "err", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *groupConsumer) Setup(sess sarama.ConsumerGroupSession) error {
	logger.Info("kafka consumer group session started", "memberId", sess.MemberID())
	return nil
}

func (c *groupConsumer) Cleanup(sess sarama.ConsumerGroupSession) error {
	logger.Info("kafka consumer group session ended", "memberId", sess.MemberID())
	return nil
}

func (c *groupConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		id := receiptHandle(msg)
		c.mu.Lock()
		c.sessions[id] = sess
		c.mu.Unlock()
		c.out <- queue.Message{
			ID:            strconv.FormatInt(msg.Offset, 10),
			Body:          msg.Value,
			ReceiptHandle: id,
		}
	}
	return nil
}

func receiptHandle(msg *sarama.ConsumerMessage) string {
	return msg.Topic + "/" + strconv.Itoa(int(msg.Partition)) + "/" + strconv.FormatInt(msg.Offset, 10)
}

// markDone commits the offset for a previously delivered message so the
// consumer group does not redeliver it. Best-effort: if the owning
// session has already ended (rebalance), the message will simply be
// redelivered, matching the at-least-once contract.
func (c *groupConsumer) markDone(msg queue.Message) {
	c.mu.Lock()
	sess, ok := c.sessions[msg.ReceiptHandle]
	delete(c.sessions, msg.ReceiptHandle)
	c.mu.Unlock()
	if !ok {
		return
	}
	parts := splitReceipt(msg.ReceiptHandle)
	if parts == nil {
		return
	}
	sess.MarkOffset(parts.topic, parts.partition, parts.offset+1, "")
}

type receiptParts struct {
	topic     string
	partition int32
	offset    int64
}

func splitReceipt(handle string) *receiptParts {
	// handle format: topic/partition/offset — see receiptHandle above.
	lastSlash := -1
	secondLastSlash := -1
	for i := len(handle) - 1; i >= 0; i-- {
		if handle[i] == '/' {
			if lastSlash == -1 {
				lastSlash = i
			} else {
				secondLastSlash = i
				break
			}
		}
	}
	if lastSlash == -1 || secondLastSlash == -1 {
		return nil
	}
	topic := handle[:secondLastSlash]
	partition, err1 := strconv.Atoi(handle[secondLastSlash+1 : lastSlash])
	offset, err2 := strconv.ParseInt(handle[lastSlash+1:], 10, 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &receiptParts{topic: topic, partition: int32(partition), offset: offset}
}
