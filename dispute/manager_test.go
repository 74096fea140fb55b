package dispute_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/dispute"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/gamification"
	"github.com/crowdtask-platform/engine/payment"
	"github.com/crowdtask-platform/engine/storage"
	"github.com/crowdtask-platform/engine/storage/memory"
	"github.com/crowdtask-platform/engine/trigger"
)

const (
	tasksTable        = "Tasks"
	submissionsTable  = "Submissions"
	disputesTable     = "Disputes"
	walletsTable      = "Wallets"
	transactionsTable = "Transactions"
	workersTable      = "Workers"
	platformWalletID  = "PLATFORM_WALLET"

	defaultTTL = 3 * 24 * time.Hour
)

func newManager(store storage.Store, clock common.Clock) *dispute.Manager {
	paymentEngine := payment.New(store, nil, tasksTable, submissionsTable, walletsTable, transactionsTable, platformWalletID, decimal.NewFromFloat(0.20))
	gamificationEngine := gamification.New(store, workersTable)
	dispatcher := trigger.New(store, tasksTable, paymentEngine, gamificationEngine)
	return dispute.New(store, clock, paymentEngine, dispatcher, disputesTable, submissionsTable, defaultTTL)
}

func putTask(t *testing.T, store storage.Store, taskID, requester string, reward decimal.Decimal) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": taskID},
		Item: storage.TaskItem(&domain.Task{
			TaskID:    taskID,
			Requester: requester,
			Payload:   domain.TaskPayload{Reward: reward},
		}),
	}))
}

func putWallet(t *testing.T, store storage.Store, id string, balance decimal.Decimal) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: walletsTable,
		Key:   storage.Item{"walletId": id},
		Item:  storage.WalletItem(&domain.Wallet{WalletID: id, Balance: balance}),
	}))
}

func getWallet(t *testing.T, store storage.Store, id string) decimal.Decimal {
	t.Helper()
	it, found, err := store.Get(context.Background(), walletsTable, storage.Item{"walletId": id})
	require.NoError(t, err)
	if !found {
		return decimal.Zero
	}
	return storage.WalletFromItem(it).Balance
}

func putSubmission(t *testing.T, store storage.Store, s *domain.Submission) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: submissionsTable,
		Key:   storage.Item{"submissionId": s.SubmissionID},
		Item:  storage.SubmissionItem(s),
	}))
}

func getSubmission(t *testing.T, store storage.Store, id string) *domain.Submission {
	t.Helper()
	it, found, err := store.Get(context.Background(), submissionsTable, storage.Item{"submissionId": id})
	require.NoError(t, err)
	require.True(t, found)
	return storage.SubmissionFromItem(it)
}

func getWorker(t *testing.T, store storage.Store, id string) *domain.Worker {
	t.Helper()
	it, found, err := store.Get(context.Background(), workersTable, storage.Item{"workerId": id})
	require.NoError(t, err)
	require.True(t, found)
	return storage.WorkerFromItem(it)
}

func getDispute(t *testing.T, store storage.Store, id string) *domain.Dispute {
	t.Helper()
	it, found, err := store.Get(context.Background(), disputesTable, storage.Item{"disputeId": id})
	require.NoError(t, err)
	require.True(t, found)
	return storage.DisputeFromItem(it)
}

func TestOpen_EscalatesRejectedSubmission(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionRejected})

	mgr := newManager(store, clock)
	d, err := mgr.Open(context.Background(), "w1", "s1", "I answered correctly")

	require.NoError(t, err)
	assert.Equal(t, "s1", d.SubmissionID)
	assert.Equal(t, domain.DisputeOpen, d.Status)

	assert.Equal(t, domain.SubmissionDisputed, getSubmission(t, store, "s1").Status)
}

func TestOpen_RejectsWrongWorker(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionRejected})

	mgr := newManager(store, clock)
	_, err := mgr.Open(context.Background(), "someone-else", "s1", "not mine")

	require.Error(t, err)
	assert.True(t, common.Is(err, common.Unauthorized))
}

func TestOpen_RejectsNonRejectedSubmission(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionApproved})

	mgr := newManager(store, clock)
	_, err := mgr.Open(context.Background(), "w1", "s1", "disagree anyway")

	require.Error(t, err)
	assert.True(t, common.Is(err, common.InvalidInput))
}

func TestOpen_MissingSubmissionNotFound(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}

	mgr := newManager(store, clock)
	_, err := mgr.Open(context.Background(), "w1", "missing", "reason")

	require.Error(t, err)
	assert.True(t, common.Is(err, common.NotFound))
}

func TestResolve_ApprovePaysFullPriceAndUpdatesGamification(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putTask(t, store, "t1", "req1", decimal.NewFromInt(10))
	putWallet(t, store, "req1", decimal.NewFromInt(100))
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionRejected})

	mgr := newManager(store, clock)
	d, err := mgr.Open(context.Background(), "w1", "s1", "I was right")
	require.NoError(t, err)

	resolved, err := mgr.Resolve(context.Background(), d.DisputeID, domain.DecisionApprove, "worker was correct")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeResolved, resolved.Status)
	assert.Equal(t, 100, resolved.PayoutPercent)

	assert.Equal(t, domain.SubmissionApproved, getSubmission(t, store, "s1").Status)
	assert.True(t, getWallet(t, store, "req1").Equal(decimal.NewFromInt(90)))
	assert.True(t, getWallet(t, store, "w1").Equal(decimal.NewFromInt(8)))
	assert.True(t, getWallet(t, store, platformWalletID).Equal(decimal.NewFromInt(2)))

	w := getWorker(t, store, "w1")
	assert.Equal(t, int64(1), w.TasksApproved)
}

func TestResolve_PartialPaysConfiguredPercentAndStillUpdatesGamification(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putTask(t, store, "t1", "req1", decimal.NewFromInt(10))
	putWallet(t, store, "req1", decimal.NewFromInt(100))
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionRejected})

	mgr := newManager(store, clock)
	d, err := mgr.Open(context.Background(), "w1", "s1", "partially right")
	require.NoError(t, err)

	resolved, err := mgr.Resolve(context.Background(), d.DisputeID, domain.DecisionPartial, "split the difference")
	require.NoError(t, err)
	assert.Equal(t, 50, resolved.PayoutPercent)

	assert.Equal(t, domain.SubmissionApproved, getSubmission(t, store, "s1").Status)
	assert.True(t, getWallet(t, store, "req1").Equal(decimal.NewFromInt(95)))
	assert.True(t, getWallet(t, store, "w1").Equal(decimal.NewFromInt(4)))
	assert.True(t, getWallet(t, store, platformWalletID).Equal(decimal.NewFromInt(1)))

	// A PARTIAL approval still counts toward the worker's gamification
	// record even though it only paid half price.
	w := getWorker(t, store, "w1")
	assert.Equal(t, int64(1), w.TasksApproved)
	assert.True(t, w.Earnings.Equal(decimal.NewFromInt(4)))
}

func TestResolve_RejectMovesToRejectedFinalWithoutPayment(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putTask(t, store, "t1", "req1", decimal.NewFromInt(10))
	putWallet(t, store, "req1", decimal.NewFromInt(100))
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionRejected})

	mgr := newManager(store, clock)
	d, err := mgr.Open(context.Background(), "w1", "s1", "disagree")
	require.NoError(t, err)

	resolved, err := mgr.Resolve(context.Background(), d.DisputeID, domain.DecisionReject, "worker was wrong")
	require.NoError(t, err)
	assert.Equal(t, 0, resolved.PayoutPercent)

	assert.Equal(t, domain.SubmissionRejectedFinal, getSubmission(t, store, "s1").Status)
	assert.True(t, getWallet(t, store, "req1").Equal(decimal.NewFromInt(100)))
	assert.True(t, getWallet(t, store, "w1").IsZero())
}

func TestResolve_RejectsAlreadyResolvedDispute(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putTask(t, store, "t1", "req1", decimal.NewFromInt(10))
	putWallet(t, store, "req1", decimal.NewFromInt(100))
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionRejected})

	mgr := newManager(store, clock)
	d, err := mgr.Open(context.Background(), "w1", "s1", "disagree")
	require.NoError(t, err)
	_, err = mgr.Resolve(context.Background(), d.DisputeID, domain.DecisionReject, "no")
	require.NoError(t, err)

	_, err = mgr.Resolve(context.Background(), d.DisputeID, domain.DecisionApprove, "changed my mind")
	require.Error(t, err)
	assert.True(t, common.Is(err, common.PreconditionFailed))
}

func TestResolve_UnknownDecisionIsInvalidInput(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionRejected})

	mgr := newManager(store, clock)
	d, err := mgr.Open(context.Background(), "w1", "s1", "reason")
	require.NoError(t, err)

	_, err = mgr.Resolve(context.Background(), d.DisputeID, "MAYBE", "")
	require.Error(t, err)
	assert.True(t, common.Is(err, common.InvalidInput))
}

func TestAutoResolve_ApprovesDisputesOlderThanTTL(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putTask(t, store, "t1", "req1", decimal.NewFromInt(10))
	putWallet(t, store, "req1", decimal.NewFromInt(100))
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionRejected})

	mgr := newManager(store, clock)
	d, err := mgr.Open(context.Background(), "w1", "s1", "reason")
	require.NoError(t, err)

	clock.Advance(defaultTTL + time.Hour)

	checked, resolved, err := mgr.AutoResolve(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, 1, resolved)

	assert.Equal(t, domain.DisputeAutoApproved, getDispute(t, store, d.DisputeID).Status)
	assert.Equal(t, domain.SubmissionApproved, getSubmission(t, store, "s1").Status)
	assert.True(t, getWallet(t, store, "w1").Equal(decimal.NewFromInt(8)))
}

func TestAutoResolve_IgnoresFreshDisputes(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	putSubmission(t, store, &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionRejected})

	mgr := newManager(store, clock)
	_, err := mgr.Open(context.Background(), "w1", "s1", "reason")
	require.NoError(t, err)

	checked, resolved, err := mgr.AutoResolve(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, checked)
	assert.Equal(t, 0, resolved)
}
