package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/crowdtask-platform/engine/domain"
)

// Timestamps are stored as epoch seconds, matching the original
// platform's str(int(time.time())) convention, so range queries and
// comparisons stay cheap numeric comparisons instead of string-lexical
// ones.

func epoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromEpoch(v interface{}) time.Time {
	switch n := v.(type) {
	case int64:
		if n == 0 {
			return time.Time{}
		}
		return time.Unix(n, 0).UTC()
	case int:
		if n == 0 {
			return time.Time{}
		}
		return time.Unix(int64(n), 0).UTC()
	case float64:
		if n == 0 {
			return time.Time{}
		}
		return time.Unix(int64(n), 0).UTC()
	default:
		return time.Time{}
	}
}

func optEpoch(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return epoch(*t)
}

func optEpochPtr(v interface{}) *time.Time {
	if v == nil {
		return nil
	}
	t := fromEpoch(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func decStr(d decimal.Decimal) string { return d.String() }

func decFrom(v interface{}) decimal.Decimal {
	s, _ := v.(string)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// TaskItem / TaskFromItem -------------------------------------------------

func TaskItem(t *domain.Task) Item {
	it := Item{
		"taskId": t.TaskID,
		"requesterId": t.Requester,
		"batchId": t.BatchID,
		"status": string(t.Status),
		"type": t.Type,
		"payload": map[string]interface{}{
			"reward": decStr(t.Payload.Reward),
			"blobKey": t.Payload.BlobKey,
			"extra": t.Payload.Extra,
		},
		"isGold": t.IsGold,
		"goldAnswer": t.GoldAnswer,
		"createdAt": epoch(t.CreatedAt),
	}
	if t.PublishAt != nil {
		it["publishAt"] = epoch(*t.PublishAt)
	}
	if t.AssignedTo != nil {
		it["assignedTo"] = *t.AssignedTo
	}
	it["assignedAt"] = optEpoch(t.AssignedAt)
	it["requiredLevel"] = t.RequiredLevel
	it["transcriptionJobName"] = t.TranscriptionJobName
	it["transcriptionStatus"] = string(t.TranscriptionStatus)
	it["aiTranscription"] = t.AITranscription
	return it
}

func TaskFromItem(it Item) *domain.Task {
	if it == nil {
		return nil
	}
	t := &domain.Task{
		TaskID: str(it["taskId"]),
		Requester: str(it["requesterId"]),
		BatchID: str(it["batchId"]),
		Status: domain.TaskState(str(it["status"])),
		Type: str(it["type"]),
		IsGold: boolOf(it["isGold"]),
		GoldAnswer: str(it["goldAnswer"]),
		CreatedAt: fromEpoch(it["createdAt"]),
		RequiredLevel: str(it["requiredLevel"]),
		TranscriptionJobName: str(it["transcriptionJobName"]),
		TranscriptionStatus: domain.TranscriptionStatus(str(it["transcriptionStatus"])),
		AITranscription: str(it["aiTranscription"]),
	}
	if p, ok := it["payload"].(map[string]interface{}); ok {
		t.Payload = domain.TaskPayload{
			Reward: decFrom(p["reward"]),
			BlobKey: str(p["blobKey"]),
		}
		if extra, ok := p["extra"].(map[string]interface{}); ok {
			t.Payload.Extra = extra
		}
	}
	if v, ok := it["publishAt"]; ok {
		pa := fromEpoch(v)
		if !pa.IsZero() {
			t.PublishAt = &pa
		}
	}
	if v, ok := it["assignedTo"].(string); ok && v != "" {
		t.AssignedTo = &v
	}
	t.AssignedAt = optEpochPtr(it["assignedAt"])
	return t
}

// AssignmentItem / AssignmentFromItem -------------------------------------

func AssignmentItem(a *domain.Assignment) Item {
	it := Item{
		"assignmentId": a.AssignmentID,
		"taskId": a.TaskID,
		"workerId": a.WorkerID,
		"status": string(a.Status),
		"createdAt": epoch(a.CreatedAt),
		"expiresAt": epoch(a.ExpiresAt),
	}
	it["expiredAt"] = optEpoch(a.ExpiredAt)
	return it
}

func AssignmentFromItem(it Item) *domain.Assignment {
	if it == nil {
		return nil
	}
	return &domain.Assignment{
		AssignmentID: str(it["assignmentId"]),
		TaskID: str(it["taskId"]),
		WorkerID: str(it["workerId"]),
		Status: domain.AssignmentState(str(it["status"])),
		CreatedAt: fromEpoch(it["createdAt"]),
		ExpiresAt: fromEpoch(it["expiresAt"]),
		ExpiredAt: optEpochPtr(it["expiredAt"]),
	}
}

// SubmissionItem / SubmissionFromItem -------------------------------------

func SubmissionItem(s *domain.Submission) Item {
	it := Item{
		"submissionId": s.SubmissionID,
		"taskId": s.TaskID,
		"workerId": s.WorkerID,
		"assignmentId": s.AssignmentID,
		"status": string(s.Status),
		"answer": s.Answer,
		"submittedAt": epoch(s.SubmittedAt),
		"qcReason": s.QCReason,
		"paymentStatus": string(s.PaymentStatus),
	}
	if s.AIConfidence != nil {
		it["aiConfidence"] = *s.AIConfidence
	}
	if s.DisputeResolution != nil {
		it["disputeResolution"] = map[string]interface{}{
			"decision": s.DisputeResolution.Decision,
			"payoutPercent": s.DisputeResolution.PayoutPercent,
			"resolvedAt": epoch(s.DisputeResolution.ResolvedAt),
		}
	}
	return it
}

func SubmissionFromItem(it Item) *domain.Submission {
	if it == nil {
		return nil
	}
	s := &domain.Submission{
		SubmissionID: str(it["submissionId"]),
		TaskID: str(it["taskId"]),
		WorkerID: str(it["workerId"]),
		AssignmentID: str(it["assignmentId"]),
		Status: domain.SubmissionState(str(it["status"])),
		Answer: str(it["answer"]),
		SubmittedAt: fromEpoch(it["submittedAt"]),
		QCReason: str(it["qcReason"]),
		PaymentStatus: domain.PaymentStatus(str(it["paymentStatus"])),
	}
	if v, ok := it["aiConfidence"].(float64); ok {
		s.AIConfidence = &v
	}
	if dr, ok := it["disputeResolution"].(map[string]interface{}); ok {
		s.DisputeResolution = &domain.DisputeResolution{
			Decision: str(dr["decision"]),
			PayoutPercent: intOf(dr["payoutPercent"]),
			ResolvedAt: fromEpoch(dr["resolvedAt"]),
		}
	}
	return s
}

// DisputeItem / DisputeFromItem -------------------------------------------

func DisputeItem(d *domain.Dispute) Item {
	it := Item{
		"disputeId": d.DisputeID,
		"submissionId": d.SubmissionID,
		"workerId": d.WorkerID,
		"reason": d.Reason,
		"status": string(d.Status),
		"createdAt": epoch(d.CreatedAt),
		"decision": d.Decision,
		"payoutPercent": d.PayoutPercent,
		"adminNotes": d.AdminNotes,
	}
	it["resolvedAt"] = optEpoch(d.ResolvedAt)
	return it
}

func DisputeFromItem(it Item) *domain.Dispute {
	if it == nil {
		return nil
	}
	return &domain.Dispute{
		DisputeID: str(it["disputeId"]),
		SubmissionID: str(it["submissionId"]),
		WorkerID: str(it["workerId"]),
		Reason: str(it["reason"]),
		Status: domain.DisputeState(str(it["status"])),
		CreatedAt: fromEpoch(it["createdAt"]),
		Decision: str(it["decision"]),
		PayoutPercent: intOf(it["payoutPercent"]),
		AdminNotes: str(it["adminNotes"]),
		ResolvedAt: optEpochPtr(it["resolvedAt"]),
	}
}

// WorkerItem / WorkerFromItem ----------------------------------------------

func WorkerItem(w *domain.Worker) Item {
	return Item{
		"workerId": w.WorkerID,
		"tasksSubmitted": w.TasksSubmitted,
		"tasksApproved": w.TasksApproved,
		"accuracy": w.Accuracy,
		"level": string(w.Level),
		"earnings": decStr(w.Earnings),
	}
}

func WorkerFromItem(it Item) *domain.Worker {
	if it == nil {
		return nil
	}
	return &domain.Worker{
		WorkerID: str(it["workerId"]),
		TasksSubmitted: int64Of(it["tasksSubmitted"]),
		TasksApproved: int64Of(it["tasksApproved"]),
		Accuracy: floatOf(it["accuracy"]),
		Level: domain.WorkerLevel(str(it["level"])),
		Earnings: decFrom(it["earnings"]),
	}
}

// WalletItem / WalletFromItem -----------------------------------------------

func WalletItem(w *domain.Wallet) Item {
	return Item{"walletId": w.WalletID, "balance": decStr(w.Balance)}
}

func WalletFromItem(it Item) *domain.Wallet {
	if it == nil {
		return nil
	}
	return &domain.Wallet{WalletID: str(it["walletId"]), Balance: decFrom(it["balance"])}
}

// TransactionItem / TransactionFromItem -------------------------------------

func TransactionItem(t *domain.Transaction) Item {
	return Item{
		"transactionId": t.TransactionID,
		"type": string(t.Type),
		"amount": decStr(t.Amount),
		"grossAmount": decStr(t.GrossAmount),
		"platformFee": decStr(t.PlatformFee),
		"from": t.From,
		"to": t.To,
		"referenceId": t.ReferenceID,
		"taskId": t.TaskID,
		"createdAt": epoch(t.CreatedAt),
		"status": string(t.Status),
	}
}

func TransactionFromItem(it Item) *domain.Transaction {
	if it == nil {
		return nil
	}
	return &domain.Transaction{
		TransactionID: str(it["transactionId"]),
		Type: domain.TransactionType(str(it["type"])),
		Amount: decFrom(it["amount"]),
		GrossAmount: decFrom(it["grossAmount"]),
		PlatformFee: decFrom(it["platformFee"]),
		From: str(it["from"]),
		To: str(it["to"]),
		ReferenceID: str(it["referenceId"]),
		TaskID: str(it["taskId"]),
		CreatedAt: fromEpoch(it["createdAt"]),
		Status: domain.TransactionStatus(str(it["status"])),
	}
}

// scalar coercion helpers ---------------------------------------------------

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func boolOf(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func intOf(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func int64Of(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func floatOf(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
