package payment_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/payment"
	"github.com/crowdtask-platform/engine/storage"
	"github.com/crowdtask-platform/engine/storage/memory"
)

const (
	tasksTable        = "Tasks"
	submissionsTable  = "Submissions"
	walletsTable      = "Wallets"
	transactionsTable = "Transactions"
	platformWalletID  = "PLATFORM_WALLET"
)

func newEngine(store storage.Store) *payment.Engine {
	return payment.New(store, nil, tasksTable, submissionsTable, walletsTable, transactionsTable, platformWalletID, decimal.NewFromFloat(0.20))
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

func TestOnApproved_SplitsPaymentAndDebitsRequester(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": "t1"},
		Item: storage.TaskItem(&domain.Task{
			TaskID:    "t1",
			Requester: "req1",
			Payload:   domain.TaskPayload{Reward: decimal.NewFromInt(10)},
		}),
	}))
	putWallet(t, store, "req1", decimal.NewFromInt(100))

	submission := &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionApproved}
	e := newEngine(store)
	require.NoError(t, e.OnApproved(context.Background(), submission))

	assert.True(t, getWallet(t, store, "req1").Equal(decimal.NewFromInt(90)))
	assert.True(t, getWallet(t, store, "w1").Equal(decimal.NewFromInt(8)))
	assert.True(t, getWallet(t, store, platformWalletID).Equal(decimal.NewFromInt(2)))
}

func TestOnApproved_InsufficientBalanceMarksPaymentFailed(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": "t1"},
		Item: storage.TaskItem(&domain.Task{
			TaskID:    "t1",
			Requester: "req1",
			Payload:   domain.TaskPayload{Reward: decimal.NewFromInt(10)},
		}),
	}))
	putWallet(t, store, "req1", decimal.NewFromFloat(9.99))
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: submissionsTable,
		Key:   storage.Item{"submissionId": "s1"},
		Item:  storage.SubmissionItem(&domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionApproved}),
	}))

	submission := &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionApproved}
	e := newEngine(store)
	require.NoError(t, e.OnApproved(context.Background(), submission))

	assert.True(t, getWallet(t, store, "req1").Equal(decimal.NewFromFloat(9.99)))
	assert.True(t, getWallet(t, store, "w1").IsZero())

	it, found, err := store.Get(context.Background(), submissionsTable, storage.Item{"submissionId": "s1"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.PaymentFailed, storage.SubmissionFromItem(it).PaymentStatus)
}

func TestOnApproved_MissingTaskIsDropped(t *testing.T) {
	store := memory.New()
	submission := &domain.Submission{SubmissionID: "s1", TaskID: "missing", WorkerID: "w1", Status: domain.SubmissionApproved}
	e := newEngine(store)
	assert.NoError(t, e.OnApproved(context.Background(), submission))
}

func TestSettlePartial_PaysConfiguredPercentOfReward(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": "t1"},
		Item: storage.TaskItem(&domain.Task{
			TaskID:    "t1",
			Requester: "req1",
			Payload:   domain.TaskPayload{Reward: decimal.NewFromInt(10)},
		}),
	}))
	putWallet(t, store, "req1", decimal.NewFromInt(100))

	submission := &domain.Submission{SubmissionID: "s1", TaskID: "t1", WorkerID: "w1", Status: domain.SubmissionApproved}
	e := newEngine(store)
	require.NoError(t, e.SettlePartial(context.Background(), submission, 50))

	assert.True(t, getWallet(t, store, "req1").Equal(decimal.NewFromInt(95)))
	assert.True(t, getWallet(t, store, "w1").Equal(decimal.NewFromInt(4)))
	assert.True(t, getWallet(t, store, platformWalletID).Equal(decimal.NewFromInt(1)))
}
