// Package gamification implements the Gamification Engine: atomic
// counter increments plus derived accuracy/level recompute, grounded
// in the original's backend/layer/python/shared/gamification.py
// (update_stats, calculate_level, can_access_task — the latter two
// already carried into domain/worker.go since they are pure functions
// with no storage dependency).
package gamification

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/storage"
)

// earningsRate is the worker's cut of a task's reward credited toward
// their running earnings total on approval step 1.
const earningsRate = 0.8

// Engine updates a worker's counters and derived accuracy/level fields.
type Engine struct {
	store storage.Store
	workersTable string
	log *log.Logger
}

func New(store storage.Store, workersTable string) *Engine {
	return &Engine{store: store, workersTable: workersTable, log: log.New("gamification")}
}

// OnResolved runs a two-write update for one worker: unconditional
// increment of tasksSubmitted (and, on Approved, tasksApproved and
// earnings), followed by a derived-field write of the resulting
// accuracy and level. reward may be nil when the task's price is not
// known to the caller, in which case earnings is left untouched.
func (e *Engine) OnResolved(ctx context.Context, workerID string, status domain.SubmissionState, reward *decimal.Decimal) error {
	if status != domain.SubmissionApproved && status != domain.SubmissionRejected {
		return nil
	}

	add := storage.Item{"tasksSubmitted": int64(1)}
	if status == domain.SubmissionApproved {
		add["tasksApproved"] = int64(1)
		if reward != nil {
			add["earnings"] = reward.Mul(decimal.NewFromFloat(earningsRate))
		}
	}

	after, err := e.store.Update(ctx, storage.UpdateSpec{
		Table: e.workersTable,
		Key: storage.Item{"workerId": workerID},
		Add: add,
	})
	if err != nil {
		return common.Wrap(common.Fatal, err, "increment worker counters failed")
	}

	worker := storage.WorkerFromItem(after)
	accuracy := domain.Accuracy(worker.TasksApproved, worker.TasksSubmitted)
	level := domain.CalculateLevel(accuracy, worker.TasksSubmitted)

	_, err = e.store.Update(ctx, storage.UpdateSpec{
		Table: e.workersTable,
		Key: storage.Item{"workerId": workerID},
		Set: storage.Item{
			"accuracy": accuracy,
			"level": string(level),
		},
	})
	if err != nil {
		return common.Wrap(common.Fatal, err, "persist derived worker fields failed")
	}
	return nil
}
