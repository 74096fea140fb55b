package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdtask-platform/engine/assignment"
	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/dispute"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/gamification"
	"github.com/crowdtask-platform/engine/payment"
	"github.com/crowdtask-platform/engine/publish"
	"github.com/crowdtask-platform/engine/queue/memqueue"
	"github.com/crowdtask-platform/engine/scheduler"
	"github.com/crowdtask-platform/engine/storage"
	"github.com/crowdtask-platform/engine/storage/memory"
	"github.com/crowdtask-platform/engine/trigger"
	"github.com/shopspring/decimal"
)

const (
	tasksTable        = "Tasks"
	assignmentsTable  = "Assignments"
	submissionsTable  = "Submissions"
	disputesTable     = "Disputes"
	walletsTable      = "Wallets"
	transactionsTable = "Transactions"
	workersTable      = "Workers"
	platformWalletID  = "PLATFORM_WALLET"
)

func TestRun_PublishesScheduledTaskOnTick(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}

	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": "task-1"},
		Item: storage.TaskItem(&domain.Task{
			TaskID:    "task-1",
			Status:    domain.TaskScheduled,
			PublishAt: timePtr(clock.Now().Add(-time.Minute)),
			CreatedAt: clock.Now(),
		}),
	}))

	publisher := publish.New(store, clock, memqueue.New(10), tasksTable)
	assignmentMgr := assignment.New(store, clock, tasksTable, assignmentsTable, 10*time.Minute)
	paymentEngine := payment.New(store, nil, tasksTable, submissionsTable, walletsTable, transactionsTable, platformWalletID, decimal.NewFromFloat(0.20))
	gamificationEngine := gamification.New(store, workersTable)
	dispatcher := trigger.New(store, tasksTable, paymentEngine, gamificationEngine)
	disputeMgr := dispute.New(store, clock, paymentEngine, dispatcher, disputesTable, submissionsTable, 3*24*time.Hour)

	loops := scheduler.New(publisher, assignmentMgr, disputeMgr, scheduler.Config{
		PublishScanInterval: 10 * time.Millisecond,
		ExpiryScanInterval:  time.Hour,
		DisputeScanInterval: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	loops.Run(ctx)

	it, found, err := store.Get(context.Background(), tasksTable, storage.Item{"taskId": "task-1"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.TaskPublished, storage.TaskFromItem(it).Status)
}

func timePtr(t time.Time) *time.Time { return &t }
