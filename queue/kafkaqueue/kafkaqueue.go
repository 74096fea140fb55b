// Package kafkaqueue backs queue.Queue with Shopify/sarama
// (AsyncProducer for publish, ConsumerGroup for consumption) — an
// alternate transport for operators who run Kafka instead of SQS for
// the QC queue.
package kafkaqueue

import (
	"context"
	"sync"

	"github.com/Shopify/sarama"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/queue"
)

// Queue is a single-topic Kafka-backed queue.Queue.
type Queue struct {
	topic    string
	producer sarama.AsyncProducer
	consumer *groupConsumer

	mu      sync.Mutex
	pending chan queue.Message

	log *log.Logger
}

// New connects a producer immediately and starts a background consumer
// group so Receive can be polled without blocking on group rebalance.
func New(brokers []string, groupID, topic string) (*Queue, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = false
	cfg.Consumer.Return.Errors = true
	cfg.Version = sarama.MaxVersion

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, common.Wrap(common.TransientExternal, err, "kafka producer init failed")
	}

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		producer.Close()
		return nil, common.Wrap(common.TransientExternal, err, "kafka consumer group init failed")
	}

	q := &Queue{
		topic:    topic,
		producer: producer,
		pending:  make(chan queue.Message, 256),
		log:      log.New("kafkaqueue"),
	}
	q.consumer = newGroupConsumer(q.pending)
	go q.consumer.run(context.Background(), group, topic)

	go func() {
		for err := range producer.Errors() {
			q.log.Error("kafka publish failed", "err", err)
		}
	}()

	return q, nil
}

func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	msg := &sarama.ProducerMessage{Topic: q.topic, Value: sarama.ByteEncoder(body)}
	select {
	case q.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Receive(ctx context.Context, maxMessages int) ([]queue.Message, error) {
	var out []queue.Message
	for len(out) < maxMessages {
		select {
		case msg := <-q.pending:
			out = append(out, msg)
		case <-ctx.Done():
			return out, ctx.Err()
		default:
			return out, nil
		}
	}
	return out, nil
}

// Delete commits the consumer group offset for msg's partition/offset,
// Kafka's equivalent of an SQS delete-message ack.
func (q *Queue) Delete(ctx context.Context, msg queue.Message) error {
	q.consumer.markDone(msg)
	return nil
}

var _ queue.Queue = (*Queue)(nil)
