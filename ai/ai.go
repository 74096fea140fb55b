// Package ai defines the three external adjudication ports: image label
// detection, asynchronous audio transcription, and an
// optional black-box ML endpoint. Each port is a thin client; the
// adjudication decision logic itself lives in package ai/adjudicate,
// which depends on none of these and is fully unit-testable.
package ai

import "context"

// Label is one detected image label, confidence on a 0-100 scale to
// match Rekognition's native range.
type Label struct {
	Name string
	Confidence float64
	Parents []string
}

// ImageLabeler detects labels in a blob referenced by key.
type ImageLabeler interface {
	DetectLabels(ctx context.Context, blobKey string, minConfidence float64, maxLabels int) ([]Label, error)
}

// Transcriber starts an asynchronous transcription job. Completion is
// observed out-of-band (an event writes aiTranscription onto the task);
// this port only covers job submission.
type Transcriber interface {
	StartJob(ctx context.Context, jobName, blobKey, languageCode string) error
}

// MLResult is the black-box ML endpoint's response shape
type MLResult struct {
	Approved bool
	Confidence float64
	Reason string
}

// MLEndpoint is the optional custom inference endpoint. Any failure is
// non-fatal and the caller should fall back to Inconclusive.
type MLEndpoint interface {
	Classify(ctx context.Context, taskType, blobKey, answer string) (*MLResult, error)
}
