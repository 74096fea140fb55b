// Package trigger fans a single Submission status change out to the
// two independent downstream effects — the Payment Engine and the
// Gamification Engine — mirroring the original platform's two
// independent DynamoDB-Stream-triggered Lambdas reacting to the same
// Submissions table write, collapsed here into one in-process call
// since this module has no stream-consumer boundary of its own to
// cross.
package trigger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/gamification"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/payment"
	"github.com/crowdtask-platform/engine/storage"
)

// Dispatcher invokes the Payment and Gamification engines whenever a
// submission reaches a terminal status.
type Dispatcher struct {
	payment *payment.Engine
	gamification *gamification.Engine
	store storage.Store
	tasksTable string
	log *log.Logger
}

func New(store storage.Store, tasksTable string, paymentEngine *payment.Engine, gamificationEngine *gamification.Engine) *Dispatcher {
	return &Dispatcher{
		payment: paymentEngine,
		gamification: gamificationEngine,
		store: store,
		tasksTable: tasksTable,
		log: log.New("trigger"),
	}
}

// OnSubmissionResolved is called by the QC Pipeline immediately after
// it writes a terminal status, carrying the edge-detection guarantee
// structurally: this is only ever invoked once per resolution, by the
// component that caused it. It settles the full task price and then
// updates gamification counters.
func (d *Dispatcher) OnSubmissionResolved(ctx context.Context, submission *domain.Submission) {
	if submission.Status == domain.SubmissionApproved {
		if err := d.payment.OnApproved(ctx, submission); err != nil {
			d.log.Error("payment settlement failed", "submissionId", submission.SubmissionID, "err", err)
		}
	}
	d.RewardOnly(ctx, submission)
}

// RewardOnly runs just the Gamification Engine half of
// OnSubmissionResolved, for callers (the Dispute Manager's PARTIAL
// path) that settle payment themselves through a different amount than
// the task's full price.
func (d *Dispatcher) RewardOnly(ctx context.Context, submission *domain.Submission) {
	if submission.Status != domain.SubmissionApproved && submission.Status != domain.SubmissionRejected {
		return
	}
	reward := d.loadReward(ctx, submission.TaskID)
	if err := d.gamification.OnResolved(ctx, submission.WorkerID, submission.Status, reward); err != nil {
		d.log.Error("gamification update failed", "workerId", submission.WorkerID, "err", err)
	}
}

func (d *Dispatcher) loadReward(ctx context.Context, taskID string) *decimal.Decimal {
	it, found, err := d.store.Get(ctx, d.tasksTable, storage.Item{"taskId": taskID})
	if err != nil || !found {
		if err != nil {
			d.log.Warn("load task for gamification reward failed", "taskId", taskID, "err", common.Wrap(common.Fatal, err, "load task"))
		}
		return nil
	}
	task := storage.TaskFromItem(it)
	return &task.Payload.Reward
}
