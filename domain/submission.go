package domain

import "time"

// SubmissionState is the Submission lifecycle state
type SubmissionState string

const (
	SubmissionPending SubmissionState = "Pending"
	SubmissionPendingConsensus SubmissionState = "PendingConsensus"
	SubmissionApproved SubmissionState = "Approved"
	SubmissionRejected SubmissionState = "Rejected"
	SubmissionDisputed SubmissionState = "Disputed"
	SubmissionRejectedFinal SubmissionState = "RejectedFinal"
)

// PaymentStatus marks the outcome of the Payment Engine's attempt to
// settle an Approved submission
type PaymentStatus string

const (
	PaymentNone PaymentStatus = ""
	PaymentPaid PaymentStatus = "PAID"
	PaymentFailed PaymentStatus = "FAILED"
)

// DisputeResolution carries the outcome of a resolved dispute back onto
// the submission it was opened against
type DisputeResolution struct {
	Decision string `json:"decision"`
	PayoutPercent int `json:"payoutPercent"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// Submission is a worker's answer to an assigned Task
type Submission struct {
	SubmissionID string `json:"submissionId"`
	TaskID string `json:"taskId"`
	WorkerID string `json:"workerId"`
	AssignmentID string `json:"assignmentId"`
	Status SubmissionState `json:"status"`
	Answer string `json:"answer"`
	SubmittedAt time.Time `json:"submittedAt"`

	QCReason string `json:"qcReason,omitempty"`
	AIConfidence *float64 `json:"aiConfidence,omitempty"`

	DisputeResolution *DisputeResolution `json:"disputeResolution,omitempty"`
	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
}

// DisputeState is the Dispute lifecycle state
type DisputeState string

const (
	DisputeOpen DisputeState = "Open"
	DisputeResolved DisputeState = "Resolved"
	DisputeAutoApproved DisputeState = "AutoApproved"
)

const (
	DecisionApprove = "APPROVE"
	DecisionPartial = "PARTIAL"
	DecisionReject = "REJECT"
	DecisionAutoApprove = "AUTO_APPROVE"
)

// Dispute escalates a Rejected submission for manual or timeout-driven
// review
type Dispute struct {
	DisputeID string `json:"disputeId"`
	SubmissionID string `json:"submissionId"`
	WorkerID string `json:"workerId"`
	Reason string `json:"reason"`
	Status DisputeState `json:"status"`
	CreatedAt time.Time `json:"createdAt"`

	Decision string `json:"decision,omitempty"`
	PayoutPercent int `json:"payoutPercent,omitempty"`
	AdminNotes string `json:"adminNotes,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}
