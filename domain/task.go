// Package domain defines the platform's entities and their state
// machines as explicit Go structs (no dynamic attribute bag — the
// original's document-store duck typing is replaced with concrete
// record types).
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaskState is the Task lifecycle state
type TaskState string

const (
	TaskCreated TaskState = "Created"
	TaskScheduled TaskState = "Scheduled"
	TaskPublished TaskState = "Published"
	TaskAssigned TaskState = "Assigned"
	TaskSubmitted TaskState = "Submitted"
	TaskReview TaskState = "Review"
	TaskCompleted TaskState = "Completed"
	TaskExpired TaskState = "Expired"
)

// TranscriptionStatus tracks the asynchronous audio-transcription job
// attached to a task
type TranscriptionStatus string

const (
	TranscriptionPending TranscriptionStatus = "PENDING"
	TranscriptionCompleted TranscriptionStatus = "COMPLETED"
	TranscriptionFailed TranscriptionStatus = "FAILED"
)

const (
	TaskTypeImageClassification = "image-classification"
	TaskTypeAudioTranscription = "audio-transcription"
	TaskTypeBoundingBox = "bounding-box"
	TaskTypeSentimentLabeling = "sentiment-labeling"
	TaskTypeDataValidation = "data-validation"
)

// TaskPayload is the opaque, task-type-specific payload. Reward is the
// single canonical location for the task's price — Open
// Question on the duplicated reward field is resolved by never storing
// reward anywhere else (see DESIGN.md).
type TaskPayload struct {
	Reward decimal.Decimal `json:"reward"`
	BlobKey string `json:"blobKey,omitempty"`
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Task is the unit of work
type Task struct {
	TaskID string `json:"taskId"`
	Requester string `json:"requesterId"`
	BatchID string `json:"batchId"`
	Status TaskState `json:"status"`
	Type string `json:"type"`
	Payload TaskPayload `json:"payload"`

	IsGold bool `json:"isGold,omitempty"`
	GoldAnswer string `json:"goldAnswer,omitempty"`

	PublishAt *time.Time `json:"publishAt,omitempty"`

	AssignedTo *string `json:"assignedTo,omitempty"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`

	RequiredLevel string `json:"requiredLevel,omitempty"`

	TranscriptionJobName string `json:"transcriptionJobName,omitempty"`
	TranscriptionStatus TranscriptionStatus `json:"transcriptionStatus,omitempty"`
	AITranscription string `json:"aiTranscription,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// AssignmentState is the Assignment lifecycle state
type AssignmentState string

const (
	AssignmentAssigned AssignmentState = "Assigned"
	AssignmentSubmitted AssignmentState = "Submitted"
	AssignmentExpired AssignmentState = "Expired"
)

// Assignment locks a Task to a worker for a bounded window
type Assignment struct {
	AssignmentID string `json:"assignmentId"`
	TaskID string `json:"taskId"`
	WorkerID string `json:"workerId"`
	Status AssignmentState `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	ExpiredAt *time.Time `json:"expiredAt,omitempty"`
}
