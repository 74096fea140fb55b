package submission_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/queue/memqueue"
	"github.com/crowdtask-platform/engine/storage"
	"github.com/crowdtask-platform/engine/storage/memory"
	"github.com/crowdtask-platform/engine/submission"
)

const (
	tasksTable       = "Tasks"
	assignmentsTable = "Assignments"
	submissionsTable = "Submissions"
)

func seedAssigned(t *testing.T, store storage.Store, clock *common.FixedClock, taskID, workerID, assignmentID string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": taskID},
		Item:  storage.TaskItem(&domain.Task{TaskID: taskID, Status: domain.TaskAssigned, CreatedAt: clock.Now()}),
	}))
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: assignmentsTable,
		Key:   storage.Item{"assignmentId": assignmentID},
		Item: storage.AssignmentItem(&domain.Assignment{
			AssignmentID: assignmentID,
			TaskID:       taskID,
			WorkerID:     workerID,
			Status:       domain.AssignmentAssigned,
			CreatedAt:    clock.Now(),
			ExpiresAt:    clock.Now().Add(10 * time.Minute),
		}),
	}))
}

func TestSubmit_Succeeds(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	q := memqueue.New(10)
	seedAssigned(t, store, clock, "task-1", "worker-1", "assign-1")

	mgr := submission.New(store, clock, q, tasksTable, assignmentsTable, submissionsTable)
	s, err := mgr.Submit(context.Background(), "task-1", "worker-1", "assign-1", "cat")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionPending, s.Status)

	aIt, _, err := store.Get(context.Background(), assignmentsTable, storage.Item{"assignmentId": "assign-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentSubmitted, storage.AssignmentFromItem(aIt).Status)

	tIt, _, err := store.Get(context.Background(), tasksTable, storage.Item{"taskId": "task-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskReview, storage.TaskFromItem(tIt).Status)

	msgs, err := q.Receive(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestSubmit_WrongWorkerIsUnauthorized(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	q := memqueue.New(10)
	seedAssigned(t, store, clock, "task-1", "worker-1", "assign-1")

	mgr := submission.New(store, clock, q, tasksTable, assignmentsTable, submissionsTable)
	_, err := mgr.Submit(context.Background(), "task-1", "worker-2", "assign-1", "cat")
	require.Error(t, err)
	assert.True(t, common.Is(err, common.Unauthorized))
}

func TestSubmit_ExpiredAssignment(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	q := memqueue.New(10)
	seedAssigned(t, store, clock, "task-1", "worker-1", "assign-1")

	clock.Advance(11 * time.Minute)

	mgr := submission.New(store, clock, q, tasksTable, assignmentsTable, submissionsTable)
	_, err := mgr.Submit(context.Background(), "task-1", "worker-1", "assign-1", "cat")
	require.Error(t, err)
	assert.True(t, common.Is(err, common.PreconditionFailed))
}

func TestSubmit_UnknownAssignment(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	q := memqueue.New(10)

	mgr := submission.New(store, clock, q, tasksTable, assignmentsTable, submissionsTable)
	_, err := mgr.Submit(context.Background(), "task-1", "worker-1", "assign-missing", "cat")
	require.Error(t, err)
	assert.True(t, common.Is(err, common.NotFound))
}
