// Package sqsqueue backs queue.Queue with Amazon SQS, the original
// platform's actual QC-queue transport (backend/src/shared uses boto3's
// sqs client the same way: send_message / receive_message /
// delete_message with a receipt handle).
package sqsqueue

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/queue"
)

// Queue is an SQS-backed queue.Queue.
type Queue struct {
	client   sqsiface.SQSAPI
	queueURL string
}

func New(sess *session.Session, queueURL string) *Queue {
	return &Queue{client: sqs.New(sess), queueURL: queueURL}
}

func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	_, err := q.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return common.Wrap(common.TransientExternal, err, "sqs send message failed")
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context, maxMessages int) ([]queue.Message, error) {
	if maxMessages > 10 {
		maxMessages = 10 // SQS API ceiling per ReceiveMessage call.
	}
	out, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: aws.Int64(int64(maxMessages)),
		WaitTimeSeconds:     aws.Int64(10),
	})
	if err != nil {
		return nil, common.Wrap(common.TransientExternal, err, "sqs receive message failed")
	}
	msgs := make([]queue.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, queue.Message{
			ID:            aws.StringValue(m.MessageId),
			Body:          []byte(aws.StringValue(m.Body)),
			ReceiptHandle: aws.StringValue(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

func (q *Queue) Delete(ctx context.Context, msg queue.Message) error {
	_, err := q.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return common.Wrap(common.TransientExternal, err, "sqs delete message failed")
	}
	return nil
}

var _ queue.Queue = (*Queue)(nil)
