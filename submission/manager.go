// Package submission implements the Submission Manager:
// validates a worker's answer against its Assignment, commits a
// three-item transactional write, and enqueues the result for QC.
package submission

import (
	"context"
	"encoding/json"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/queue"
	"github.com/crowdtask-platform/engine/storage"
)

// Manager records submissions and advances the Assignment/Task state
// machines atomically with them.
type Manager struct {
	store storage.Store
	clock common.Clock
	qcQueue queue.Queue
	tasksTable string
	assignmentsTable string
	submissionsTable string
	log *log.Logger
}

func New(store storage.Store, clock common.Clock, qcQueue queue.Queue, tasksTable, assignmentsTable, submissionsTable string) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		qcQueue: qcQueue,
		tasksTable: tasksTable,
		assignmentsTable: assignmentsTable,
		submissionsTable: submissionsTable,
		log: log.New("submission"),
	}
}

// qcJob is the wire shape of the message enqueued for the QC Pipeline.
type qcJob struct {
	SubmissionID string `json:"submissionId"`
	TaskID string `json:"taskId"`
	WorkerID string `json:"workerId"`
	Answer string `json:"answer"`
}

// Submit pre-checks the caller's Assignment, then commits the
// Submission/Assignment/Task transaction and enqueues a QC job.
func (m *Manager) Submit(ctx context.Context, taskID, workerID, assignmentID, answer string) (*domain.Submission, error) {
	it, found, err := m.store.Get(ctx, m.assignmentsTable, storage.Item{"assignmentId": assignmentID})
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "load assignment failed")
	}
	if !found {
		return nil, common.Newf(common.NotFound, "assignment %s not found", assignmentID)
	}
	a := storage.AssignmentFromItem(it)

	if a.WorkerID != workerID {
		return nil, common.New(common.Unauthorized, "assignment does not belong to this worker")
	}
	if a.TaskID != taskID {
		return nil, common.New(common.InvalidInput, "assignment does not reference this task")
	}
	if a.Status != domain.AssignmentAssigned {
		return nil, common.Newf(common.PreconditionFailed, "assignment is %s, not Assigned", a.Status)
	}
	now := m.clock.Now()
	if now.After(a.ExpiresAt) {
		return nil, common.New(common.PreconditionFailed, "assignment has expired")
	}

	s := &domain.Submission{
		SubmissionID: common.NewID(),
		TaskID: taskID,
		WorkerID: workerID,
		AssignmentID: assignmentID,
		Status: domain.SubmissionPending,
		Answer: answer,
		SubmittedAt: now,
	}

	err = m.store.TransactWrite(ctx, []storage.TxItem{
		{Put: &storage.PutSpec{
			Table: m.submissionsTable,
			Key: storage.Item{"submissionId": s.SubmissionID},
			Item: storage.SubmissionItem(s),
			Condition: &storage.Condition{Attr: "submissionId", Op: storage.OpNotExists},
		}},
		{Update: &storage.UpdateSpec{
			Table: m.assignmentsTable,
			Key: storage.Item{"assignmentId": assignmentID},
			Set: storage.Item{"status": string(domain.AssignmentSubmitted)},
			Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(domain.AssignmentAssigned)},
		}},
		{Update: &storage.UpdateSpec{
			Table: m.tasksTable,
			Key: storage.Item{"taskId": taskID},
			Set: storage.Item{"status": string(domain.TaskReview)},
			Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(domain.TaskAssigned)},
		}},
	})
	if err != nil {
		if _, ok := storage.AsConditionFailed(err); ok {
			return nil, common.New(common.PreconditionFailed, "assignment or task changed concurrently")
		}
		return nil, common.Wrap(common.Fatal, err, "submit transaction failed")
	}

	body, _ := json.Marshal(qcJob{SubmissionID: s.SubmissionID, TaskID: taskID, WorkerID: workerID, Answer: answer})
	if err := m.qcQueue.Enqueue(ctx, body); err != nil {
		// At-least-once is tolerated; a dropped enqueue
		// here would strand the submission in Pending, so this is logged
		// loudly rather than swallowed, but is not fatal to the caller —
		// an operator can replay it from the Submissions table.
		m.log.Error("failed to enqueue QC job", "submissionId", s.SubmissionID, "err", err)
	}

	m.log.Info("submission recorded", "submissionId", s.SubmissionID, "taskId", taskID, "workerId", workerID)
	return s, nil
}
