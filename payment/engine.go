// Package payment implements the Payment Engine: an
// edge-triggered settlement that fires only when a Submission's status
// transitions into Approved, grounded in the original's
// backend/src/handlers/payments/process_payment.py DynamoDB-stream
// handler — which this module turns into an explicit trigger call
// rather than an implicit stream subscription, since the QC Pipeline
// and Dispute Manager both already know exactly when they cause that
// edge.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/metrics"
	"github.com/crowdtask-platform/engine/notify"
	"github.com/crowdtask-platform/engine/reporting"
	"github.com/crowdtask-platform/engine/storage"
)

// Engine settles one task's price from the requester's wallet to the
// worker's wallet, net of the platform fee, the moment a submission's
// status edges into Approved.
type Engine struct {
	store storage.Store
	notifier notify.Notifier

	tasksTable string
	submissionsTable string
	walletsTable string
	transactionsTable string

	platformWalletID string
	feeRate decimal.Decimal

	reportMirror *reporting.Mirror

	log *log.Logger
}

func New(store storage.Store, notifier notify.Notifier, tasksTable, submissionsTable, walletsTable, transactionsTable, platformWalletID string, feeRate decimal.Decimal) *Engine {
	return &Engine{
		store: store,
		notifier: notifier,
		tasksTable: tasksTable,
		submissionsTable: submissionsTable,
		walletsTable: walletsTable,
		transactionsTable: transactionsTable,
		platformWalletID: platformWalletID,
		feeRate: feeRate,
		log: log.New("payment"),
	}
}

// UseReporting wires an optional MySQL reporting mirror; settlements
// work identically without one, the mirror just stops receiving rows.
func (e *Engine) UseReporting(m *reporting.Mirror) *Engine {
	e.reportMirror = m
	return e
}

// OnApproved is the edge trigger: callers (the QC Pipeline, the Dispute
// Manager) invoke it only when they themselves just caused
// old.status != Approved && new.status == Approved, so the
// double-payment guard is structural rather than re-derived here.
func (e *Engine) OnApproved(ctx context.Context, submission *domain.Submission) error {
	task, err := e.loadTask(ctx, submission.TaskID)
	if err != nil {
		return err
	}
	if task == nil {
		e.log.Warn("dropping payment for missing task", "taskId", submission.TaskID, "submissionId", submission.SubmissionID)
		return nil
	}
	return e.settle(ctx, submission, task, task.Payload.Reward, "full")
}

// SettlePartial pays payoutPercent% of the task's price, the dedicated
// path this module routes PARTIAL dispute decisions through instead of
// the original's unconditional full-price settlement — see DESIGN.md's
// resolution partial-payout open question.
func (e *Engine) SettlePartial(ctx context.Context, submission *domain.Submission, payoutPercent int) error {
	task, err := e.loadTask(ctx, submission.TaskID)
	if err != nil {
		return err
	}
	if task == nil {
		e.log.Warn("dropping partial payment for missing task", "taskId", submission.TaskID, "submissionId", submission.SubmissionID)
		return nil
	}
	total := common.FloorToCents(task.Payload.Reward.Mul(decimal.NewFromInt(int64(payoutPercent))).Div(decimal.NewFromInt(100)))
	return e.settle(ctx, submission, task, total, "partial")
}

func (e *Engine) loadTask(ctx context.Context, taskID string) (*domain.Task, error) {
	it, found, err := e.store.Get(ctx, e.tasksTable, storage.Item{"taskId": taskID})
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "load task for payment failed")
	}
	if !found {
		return nil, nil
	}
	return storage.TaskFromItem(it), nil
}

func (e *Engine) settle(ctx context.Context, submission *domain.Submission, task *domain.Task, total decimal.Decimal, kind string) error {
	worker, fee := common.SplitFee(total, e.feeRate)

	paymentTxn := &domain.Transaction{
		TransactionID: common.NewID(),
		Type: domain.TxTaskPayment,
		Amount: worker,
		GrossAmount: total,
		PlatformFee: fee,
		From: task.Requester,
		To: submission.WorkerID,
		ReferenceID: submission.SubmissionID,
		TaskID: task.TaskID,
		Status: domain.TxStatusCompleted,
	}
	feeTxn := &domain.Transaction{
		TransactionID: common.NewID(),
		Type: domain.TxPlatformFee,
		Amount: fee,
		From: task.Requester,
		To: e.platformWalletID,
		ReferenceID: submission.SubmissionID,
		TaskID: task.TaskID,
		Status: domain.TxStatusCompleted,
	}

	err := e.store.TransactWrite(ctx, []storage.TxItem{
		{Update: &storage.UpdateSpec{
			Table: e.walletsTable,
			Key: storage.Item{"walletId": task.Requester},
			Add: storage.Item{"balance": total.Neg()},
			Condition: &storage.Condition{Attr: "balance", Op: storage.OpGte, Value: total},
		}},
		{Update: &storage.UpdateSpec{
			Table: e.walletsTable,
			Key: storage.Item{"walletId": submission.WorkerID},
			Add: storage.Item{"balance": worker},
		}},
		{Update: &storage.UpdateSpec{
			Table: e.walletsTable,
			Key: storage.Item{"walletId": e.platformWalletID},
			Add: storage.Item{"balance": fee},
		}},
		{Put: &storage.PutSpec{
			Table: e.transactionsTable,
			Key: storage.Item{"transactionId": paymentTxn.TransactionID},
			Item: storage.TransactionItem(paymentTxn),
			Condition: &storage.Condition{Attr: "transactionId", Op: storage.OpNotExists},
		}},
		{Put: &storage.PutSpec{
			Table: e.transactionsTable,
			Key: storage.Item{"transactionId": feeTxn.TransactionID},
			Item: storage.TransactionItem(feeTxn),
			Condition: &storage.Condition{Attr: "transactionId", Op: storage.OpNotExists},
		}},
	})
	if err != nil {
		if cfe, ok := storage.AsConditionFailed(err); ok && cfe.Index == 0 {
			return e.markPaymentFailed(ctx, submission.SubmissionID)
		}
		return common.Wrap(common.Fatal, err, "payment settlement failed")
	}

	metrics.PaymentsSettled.WithLabelValues(kind).Inc()
	metrics.PaymentAmountSettled.WithLabelValues(kind).Add(worker.InexactFloat64())

	e.notifyWorker(ctx, submission.WorkerID, worker, task.TaskID)
	e.mirrorToReporting(paymentTxn, feeTxn)
	return nil
}

func (e *Engine) mirrorToReporting(txns ...*domain.Transaction) {
	if e.reportMirror == nil {
		return
	}
	now := time.Now()
	for _, txn := range txns {
		e.reportMirror.Record(txn, now)
	}
}

func (e *Engine) markPaymentFailed(ctx context.Context, submissionID string) error {
	_, err := e.store.Update(ctx, storage.UpdateSpec{
		Table: e.submissionsTable,
		Key: storage.Item{"submissionId": submissionID},
		Set: storage.Item{"paymentStatus": string(domain.PaymentFailed)},
	})
	if err != nil {
		return common.Wrap(common.Fatal, err, "mark payment failed status failed")
	}
	return nil
}

func (e *Engine) notifyWorker(ctx context.Context, workerID string, amount decimal.Decimal, taskID string) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.Send(ctx, notify.Email{
		To: workerID,
		Subject: "Payment Received",
		Body: "You have received $" + amount.StringFixed(2) + " for task " + taskID + ".",
	})
	if err != nil {
		e.log.Warn("payment notification failed", "workerId", workerID, "taskId", taskID, "err", err)
	}
}
