// Package qc implements the QC Pipeline — the heart of
// the platform: fraud screen, gold-standard fast path, AI adjudication,
// and majority-vote consensus, triggered per submission off the QC
// queue. It is the direct, enriched successor of the original's
// backend/src/handlers/qc/validate_submission.py, which only ever did
// the gold-standard check or auto-approved everything else.
package qc

import (
	"context"
	"encoding/json"

	"github.com/crowdtask-platform/engine/ai"
	"github.com/crowdtask-platform/engine/ai/adjudicate"
	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/eventbus"
	"github.com/crowdtask-platform/engine/fraud"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/metrics"
	"github.com/crowdtask-platform/engine/storage"
	"github.com/crowdtask-platform/engine/trigger"
)

const (
	aiRejectConfidenceCutoff = 0.3
	aiApproveConfidenceCutoff = 0.9
)

// Job is the wire shape read off the QC queue, mirroring the one the
// Submission Manager enqueues.
type Job struct {
	SubmissionID string `json:"submissionId"`
	TaskID string `json:"taskId"`
	WorkerID string `json:"workerId"`
	Answer string `json:"answer"`
}

// Pipeline orchestrates one submission's adjudication.
type Pipeline struct {
	store storage.Store
	fraud *fraud.Detector
	labeler ai.ImageLabeler
	ml ai.MLEndpoint
	bus eventbus.Bus
	dispatcher *trigger.Dispatcher

	tasksTable string
	submissionsTable string

	consensusQuorum int
	aiMinLabelConfidence float64
	audioApproveSimilarity float64

	log *log.Logger
}

// Config bundles the tunables the Pipeline needs from config.Config,
// kept separate so qc doesn't import the config package directly.
type Config struct {
	TasksTable string
	SubmissionsTable string
	ConsensusQuorum int
	AIMinLabelConfidence float64
	AudioApproveSimilarity float64
}

func New(store storage.Store, fraudDetector *fraud.Detector, labeler ai.ImageLabeler, ml ai.MLEndpoint, bus eventbus.Bus, dispatcher *trigger.Dispatcher, cfg Config) *Pipeline {
	return &Pipeline{
		store: store,
		fraud: fraudDetector,
		labeler: labeler,
		ml: ml,
		bus: bus,
		dispatcher: dispatcher,
		tasksTable: cfg.TasksTable,
		submissionsTable: cfg.SubmissionsTable,
		consensusQuorum: cfg.ConsensusQuorum,
		aiMinLabelConfidence: cfg.AIMinLabelConfidence,
		audioApproveSimilarity: cfg.AudioApproveSimilarity,
		log: log.New("qc"),
	}
}

// Process runs the full algorithm for one job.
func (p *Pipeline) Process(ctx context.Context, job Job) error {
	taskIt, found, err := p.store.Get(ctx, p.tasksTable, storage.Item{"taskId": job.TaskID})
	if err != nil {
		return common.Wrap(common.Fatal, err, "load task failed")
	}
	if !found {
		// Step 1: nothing can be done for a deleted/missing task.
		p.log.Warn("dropping qc job for missing task", "taskId", job.TaskID, "submissionId", job.SubmissionID)
		return nil
	}
	task := storage.TaskFromItem(taskIt)

	// Step 2: fraud check.
	fraudResult := p.fraud.CheckSubmission(ctx, job.WorkerID, job.Answer, job.TaskID)
	if fraudResult.IsFraud {
		for _, reason := range fraudResult.Reasons {
			metrics.FraudFlags.WithLabelValues(reason).Inc()
		}
		return p.finalizeSingle(ctx, job.SubmissionID, domain.SubmissionRejected, 0.0, fraud.Reason(fraudResult), task.TaskID, "fraud")
	}

	// Step 3: gold-standard fast path, bypasses consensus entirely.
	if task.IsGold {
		correct := NormalizeAnswer(job.Answer) == NormalizeAnswer(task.GoldAnswer)
		status := domain.SubmissionRejected
		confidence := 0.0
		if correct {
			status = domain.SubmissionApproved
			confidence = 1.0
		}
		return p.finalizeSingle(ctx, job.SubmissionID, status, confidence, "Gold Standard Validation", task.TaskID, "gold_standard")
	}

	// Step 4: AI path, image-classification and audio-transcription only.
	if verdict, ran := p.runAI(ctx, task, job.Answer); ran {
		if verdict.Decision == adjudicate.DecisionReject && verdict.Confidence < aiRejectConfidenceCutoff {
			return p.finalizeSingle(ctx, job.SubmissionID, domain.SubmissionRejected, verdict.Confidence, verdict.Reason, task.TaskID, "ai_adjudication")
		}
		if verdict.Decision == adjudicate.DecisionApprove && verdict.Confidence >= aiApproveConfidenceCutoff {
			return p.finalizeSingle(ctx, job.SubmissionID, domain.SubmissionApproved, verdict.Confidence, verdict.Reason, task.TaskID, "ai_adjudication")
		}
		// Inconclusive, or not confident enough either way: fall through
		// to consensus.
	}

	return p.runConsensus(ctx, job, task)
}

// runAI dispatches to the image or audio adjudicator depending on task
// type. ran is false for task types the AI path does not cover at all.
func (p *Pipeline) runAI(ctx context.Context, task *domain.Task, answer string) (adjudicate.Verdict, bool) {
	switch task.Type {
	case domain.TaskTypeImageClassification:
		if p.labeler == nil || task.Payload.BlobKey == "" {
			return adjudicate.Verdict{Decision: adjudicate.DecisionInconclusive}, true
		}
		labels, err := p.labeler.DetectLabels(ctx, task.Payload.BlobKey, p.aiMinLabelConfidence, 20)
		if err != nil {
			p.log.Warn("image label detection failed, falling back to consensus", "taskId", task.TaskID, "err", err)
			return adjudicate.Verdict{Decision: adjudicate.DecisionInconclusive}, true
		}
		return adjudicate.Image(labels, answer), true

	case domain.TaskTypeAudioTranscription:
		if task.TranscriptionStatus != domain.TranscriptionCompleted {
			return adjudicate.Verdict{Decision: adjudicate.DecisionInconclusive, Reason: "transcription job still pending"}, true
		}
		return adjudicate.Audio(task.AITranscription, answer, p.audioApproveSimilarity), true

	default:
		return adjudicate.Verdict{}, false
	}
}

// finalizeSingle transitions one submission to a terminal status and
// publishes a completion event. The conditional update only applies
// from Pending or PendingConsensus, so a re-delivered message or a
// submission that was meanwhile Disputed/RejectedFinal is left alone.
func (p *Pipeline) finalizeSingle(ctx context.Context, submissionID string, status domain.SubmissionState, confidence float64, reason, taskID, path string) error {
	item, applied, err := p.transitionFrom(ctx, submissionID, []domain.SubmissionState{domain.SubmissionPending, domain.SubmissionPendingConsensus}, storage.Item{
		"status": string(status),
		"qcReason": reason,
		"aiConfidence": confidence,
	})
	if err != nil {
		return err
	}
	if applied {
		metrics.SubmissionsProcessed.WithLabelValues(string(status)).Inc()
		metrics.QCDecisions.WithLabelValues(path, string(status)).Inc()
		p.publishCompletion(ctx, submissionID, taskID, status, confidence)
		if p.dispatcher != nil {
			p.dispatcher.OnSubmissionResolved(ctx, storage.SubmissionFromItem(item))
		}
	}
	return nil
}

// runConsensus implements step 5: mark PendingConsensus,
// query siblings, repair index lag, tally, and resolve the whole batch
// once quorum is reached.
func (p *Pipeline) runConsensus(ctx context.Context, job Job, task *domain.Task) error {
	// 5a: set so the answer is queryable even under index lag. Conditional
	// on the submission still being Pending/PendingConsensus so a
	// re-delivered job for an already-terminal submission is a no-op
	// instead of resetting it back into the tally.
	_, applied, err := p.transitionFrom(ctx, job.SubmissionID, []domain.SubmissionState{domain.SubmissionPending, domain.SubmissionPendingConsensus}, storage.Item{
		"status": string(domain.SubmissionPendingConsensus),
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	items, err := p.store.Query(ctx, storage.QuerySpec{
		Table: p.submissionsTable,
		Index: "byTask",
		KeyAttr: "taskId",
		KeyValue: job.TaskID,
	})
	if err != nil {
		return common.Wrap(common.Fatal, err, "query submissions by task failed")
	}

	candidates := make([]candidate, 0, len(items)+1)
	candidateIDs := make(map[string]bool, len(items))
	for _, it := range items {
		sid, _ := it["submissionId"].(string)
		answer, _ := it["answer"].(string)
		candidates = append(candidates, candidate{submissionID: sid, answer: answer})
		candidateIDs[sid] = true
	}
	// 5c: index-lag repair.
	if !candidateIDs[job.SubmissionID] {
		candidates = append(candidates, candidate{submissionID: job.SubmissionID, answer: job.Answer})
	}

	// 5d: not enough data yet.
	if len(candidates) < p.consensusQuorum {
		return nil
	}

	// 5e/5f: tally and resolve the whole batch.
	consensusAnswer, hasConsensus := tally(candidates, p.consensusQuorum)
	for _, c := range candidates {
		status := domain.SubmissionRejected
		confidence := 0.0
		reason := "No consensus reached"
		if hasConsensus {
			if NormalizeAnswer(c.answer) == consensusAnswer {
				status = domain.SubmissionApproved
				confidence = 1.0
				reason = "Majority consensus"
			} else {
				reason = "Did not match majority consensus"
			}
		}
		if err := p.finalizeSingle(ctx, c.submissionID, status, confidence, reason, task.TaskID, "consensus"); err != nil {
			p.log.Error("failed to resolve consensus batch member", "submissionId", c.submissionID, "err", err)
		}
	}
	return nil
}

// transitionFrom tries each allowed source status in turn and applies
// the first conditional update that succeeds, so the write is race-safe
// without the storage port needing an OR-condition.
func (p *Pipeline) transitionFrom(ctx context.Context, submissionID string, allowed []domain.SubmissionState, set storage.Item) (storage.Item, bool, error) {
	for _, from := range allowed {
		item, err := p.store.Update(ctx, storage.UpdateSpec{
			Table: p.submissionsTable,
			Key: storage.Item{"submissionId": submissionID},
			Set: set,
			Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(from)},
		})
		if err == nil {
			return item, true, nil
		}
		if _, ok := storage.AsConditionFailed(err); ok {
			continue
		}
		return nil, false, common.Wrap(common.Fatal, err, "qc transition failed")
	}
	return nil, false, nil
}

// completionEvent mirrors the original's SubmissionQCCompleted detail
// shape.
type completionEvent struct {
	SubmissionID string `json:"submissionId"`
	TaskID string `json:"taskId"`
	Status string `json:"status"`
	AIConfidence float64 `json:"aiConfidence"`
}

func (p *Pipeline) publishCompletion(ctx context.Context, submissionID, taskID string, status domain.SubmissionState, confidence float64) {
	if p.bus == nil {
		return
	}
	detail, _ := json.Marshal(completionEvent{SubmissionID: submissionID, TaskID: taskID, Status: string(status), AIConfidence: confidence})
	err := p.bus.Publish(ctx, eventbus.Event{
		Source: "crowdsourcing.qc",
		DetailType: "SubmissionQCCompleted",
		Detail: detail,
	})
	if err != nil {
		// bus failures are log-only, never fatal.
		p.log.Warn("failed to publish qc completion event", "submissionId", submissionID, "err", err)
	}
}
