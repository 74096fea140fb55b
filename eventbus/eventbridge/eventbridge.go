// Package eventbridge backs eventbus.Bus with Amazon EventBridge,
// grounded in the original validate_submission.py's
// events.put_events(Source=..., DetailType=..., Detail=...) call.
package eventbridge

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/eventbridge"
	"github.com/aws/aws-sdk-go/service/eventbridge/eventbridgeiface"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/eventbus"
)

// Bus publishes to a single configured EventBridge event bus.
type Bus struct {
	api      eventbridgeiface.EventBridgeAPI
	busName  string
}

func New(sess *session.Session, busName string) *Bus {
	return &Bus{api: eventbridge.New(sess), busName: busName}
}

func (b *Bus) Publish(ctx context.Context, event eventbus.Event) error {
	detail := string(event.Detail)
	_, err := b.api.PutEventsWithContext(ctx, &eventbridge.PutEventsInput{
		Entries: []*eventbridge.PutEventsRequestEntry{{
			EventBusName: aws.String(b.busName),
			Source:       aws.String(event.Source),
			DetailType:   aws.String(event.DetailType),
			Detail:       aws.String(detail),
		}},
	})
	if err != nil {
		return common.Wrap(common.TransientExternal, err, "eventbridge put events failed")
	}
	return nil
}

var _ eventbus.Bus = (*Bus)(nil)
