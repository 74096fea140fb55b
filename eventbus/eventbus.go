// Package eventbus defines the outbound event-bus port as an external
// collaborator. The QC Pipeline publishes one completion event per
// adjudicated submission, grounded in the original's events.put_events
// call in validate_submission.py.
package eventbus

import "context"

// Event is a single domain event to publish. Detail is pre-serialized
// JSON, matching EventBridge's own Detail field shape.
type Event struct {
	Source string
	DetailType string
	Detail []byte
}

// Bus publishes events best-effort; failures are logged, never fatal to
// the caller.
type Bus interface {
	Publish(ctx context.Context, event Event) error
}
