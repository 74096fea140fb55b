// Package assignment implements the Assignment Manager:
// atomic task locking via a two-item conditional transaction, and the
// scheduler-driven expiry of stale locks.
package assignment

import (
	"context"
	"time"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/metrics"
	"github.com/crowdtask-platform/engine/storage"
)

// Manager assigns and expires Assignments.
type Manager struct {
	store storage.Store
	clock common.Clock
	tasksTable string
	assignmentsTable string
	ttl time.Duration
	log *log.Logger
}

func New(store storage.Store, clock common.Clock, tasksTable, assignmentsTable string, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		tasksTable: tasksTable,
		assignmentsTable: assignmentsTable,
		ttl: ttl,
		log: log.New("assignment"),
	}
}

// Assign locks taskID to workerID with a fresh Assignment, racing
// workers resolving via the Task's conditional status transition.
// Returns a PreconditionFailed error (mapped to Conflict at the HTTP
// boundary) if the task is not Published when the write lands.
func (m *Manager) Assign(ctx context.Context, taskID, workerID string) (*domain.Assignment, error) {
	now := m.clock.Now()
	assignmentID := common.NewID()
	a := &domain.Assignment{
		AssignmentID: assignmentID,
		TaskID: taskID,
		WorkerID: workerID,
		Status: domain.AssignmentAssigned,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	err := m.store.TransactWrite(ctx, []storage.TxItem{
		{Update: &storage.UpdateSpec{
			Table: m.tasksTable,
			Key: storage.Item{"taskId": taskID},
			Set: storage.Item{
				"status": string(domain.TaskAssigned),
				"assignedTo": workerID,
				"assignedAt": now.Unix(),
			},
			Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(domain.TaskPublished)},
		}},
		{Put: &storage.PutSpec{
			Table: m.assignmentsTable,
			Key: storage.Item{"assignmentId": assignmentID},
			Item: storage.AssignmentItem(a),
			Condition: &storage.Condition{Attr: "assignmentId", Op: storage.OpNotExists},
		}},
	})
	if err != nil {
		if _, ok := storage.AsConditionFailed(err); ok {
			return nil, common.Newf(common.PreconditionFailed, "task %s is not available for assignment", taskID)
		}
		return nil, common.Wrap(common.Fatal, err, "assign transaction failed")
	}

	m.log.Info("task assigned", "taskId", taskID, "workerId", workerID, "assignmentId", assignmentID)
	return a, nil
}

// ExpireStale scans Assigned assignments older than the TTL and
// transitions each one (Assignment -> Expired, Task -> Published) in
// its own transaction, so one stuck row never blocks the rest of the
// tick. Returns the number of assignments checked and expired.
func (m *Manager) ExpireStale(ctx context.Context, limit int) (checked, expired int, err error) {
	now := m.clock.Now()
	cutoff := now.Add(-m.ttl).Unix()

	items, err := m.store.Query(ctx, storage.QuerySpec{
		Table: m.assignmentsTable,
		Index: "byStatus",
		KeyAttr: "status",
		KeyValue: string(domain.AssignmentAssigned),
		Filter: func(it storage.Item) bool {
			ca, _ := it["createdAt"].(int64)
			return ca < cutoff
		},
		Limit: limit,
		ScanForward: true,
	})
	if err != nil {
		return 0, 0, common.Wrap(common.Fatal, err, "query stale assignments failed")
	}

	for _, it := range items {
		checked++
		a := storage.AssignmentFromItem(it)
		txErr := m.store.TransactWrite(ctx, []storage.TxItem{
			{Update: &storage.UpdateSpec{
				Table: m.assignmentsTable,
				Key: storage.Item{"assignmentId": a.AssignmentID},
				Set: storage.Item{
					"status": string(domain.AssignmentExpired),
					"expiredAt": now.Unix(),
				},
				Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(domain.AssignmentAssigned)},
			}},
			{Update: &storage.UpdateSpec{
				Table: m.tasksTable,
				Key: storage.Item{"taskId": a.TaskID},
				Set: storage.Item{
					"status": string(domain.TaskPublished),
					"assignedTo": nil,
					"assignedAt": nil,
				},
				Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(domain.TaskAssigned)},
			}},
		})
		if txErr != nil {
			// Already handled by a concurrent tick or by a submission
			// that landed first; this row is no longer stale for us.
			if _, ok := storage.AsConditionFailed(txErr); ok {
				continue
			}
			m.log.Error("failed to expire assignment", "assignmentId", a.AssignmentID, "err", txErr)
			continue
		}
		metrics.AssignmentsExpired.Inc()
		expired++
	}
	return checked, expired, nil
}
