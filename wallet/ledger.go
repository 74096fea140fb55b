// Package wallet implements the Wallet/Ledger: deposit,
// withdraw, and balance reads, grounded in the original's
// backend/src/handlers/wallet/deposit_funds.py and withdraw_funds.py —
// both mock-PayPal handlers whose only real behavior is the atomic
// DynamoDB write and a best-effort SES confirmation email.
package wallet

import (
	"context"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/notify"
	"github.com/crowdtask-platform/engine/storage"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Ledger implements deposit, withdraw, and balance lookups.
type Ledger struct {
	store storage.Store
	clock common.Clock
	notifier notify.Notifier

	walletsTable string
	transactionsTable string

	depositMax decimal.Decimal
	withdrawMin decimal.Decimal
	withdrawMax decimal.Decimal

	log *log.Logger
}

func New(store storage.Store, clock common.Clock, notifier notify.Notifier, walletsTable, transactionsTable string, depositMax, withdrawMin, withdrawMax decimal.Decimal) *Ledger {
	return &Ledger{
		store: store,
		clock: clock,
		notifier: notifier,
		walletsTable: walletsTable,
		transactionsTable: transactionsTable,
		depositMax: depositMax,
		withdrawMin: withdrawMin,
		withdrawMax: withdrawMax,
		log: log.New("wallet"),
	}
}

// Get reads a wallet's balance directly; a missing wallet reads as a
// zero balance rather than NotFound.
func (l *Ledger) Get(ctx context.Context, walletID string) (*domain.Wallet, error) {
	it, found, err := l.store.Get(ctx, l.walletsTable, storage.Item{"walletId": walletID})
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "get wallet failed")
	}
	if !found {
		return &domain.Wallet{WalletID: walletID, Balance: decimal.Zero}, nil
	}
	return storage.WalletFromItem(it), nil
}

// Deposit credits walletID by amount and records a DEPOSIT transaction.
// amount must be in (0, 10000].
func (l *Ledger) Deposit(ctx context.Context, walletID string, amount decimal.Decimal) (*domain.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, common.New(common.InvalidInput, "deposit amount must be positive")
	}
	if amount.GreaterThan(l.depositMax) {
		return nil, common.Newf(common.InvalidInput, "deposit amount exceeds maximum of %s", l.depositMax.String())
	}

	now := l.clock.Now()
	txn := &domain.Transaction{
		TransactionID: common.NewID(),
		Type: domain.TxDeposit,
		Amount: amount,
		To: walletID,
		CreatedAt: now,
		Status: domain.TxStatusCompleted,
	}

	_, err := l.store.Update(ctx, storage.UpdateSpec{
		Table: l.walletsTable,
		Key: storage.Item{"walletId": walletID},
		Add: storage.Item{"balance": amount},
	})
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "credit wallet failed")
	}

	if err := l.store.Put(ctx, storage.PutSpec{
		Table: l.transactionsTable,
		Key: storage.Item{"transactionId": txn.TransactionID},
		Item: storage.TransactionItem(txn),
		Condition: &storage.Condition{Attr: "transactionId", Op: storage.OpNotExists},
	}); err != nil {
		return nil, common.Wrap(common.Fatal, err, "record deposit transaction failed")
	}

	return txn, nil
}

// Withdraw debits walletID by amount, subject to a balance condition,
// and records a PENDING WITHDRAWAL transaction (the mock PayPal payout
// never actually completes, matching the original). amount must be in
// [10, 5000] and payoutEmail must look like an email address.
func (l *Ledger) Withdraw(ctx context.Context, walletID, payoutEmail string, amount decimal.Decimal) (*domain.Transaction, error) {
	if payoutEmail == "" || !emailPattern.MatchString(payoutEmail) {
		return nil, common.New(common.InvalidInput, "invalid payout email")
	}
	if amount.LessThan(l.withdrawMin) {
		return nil, common.Newf(common.InvalidInput, "minimum withdrawal is %s", l.withdrawMin.String())
	}
	if amount.GreaterThan(l.withdrawMax) {
		return nil, common.Newf(common.InvalidInput, "maximum withdrawal is %s", l.withdrawMax.String())
	}

	now := l.clock.Now()
	txn := &domain.Transaction{
		TransactionID: common.NewID(),
		Type: domain.TxWithdrawal,
		Amount: amount,
		From: walletID,
		CreatedAt: now,
		Status: domain.TxStatusPending,
	}

	err := l.store.TransactWrite(ctx, []storage.TxItem{
		{Update: &storage.UpdateSpec{
			Table: l.walletsTable,
			Key: storage.Item{"walletId": walletID},
			Add: storage.Item{"balance": amount.Neg()},
			Condition: &storage.Condition{Attr: "balance", Op: storage.OpGte, Value: amount},
		}},
		{Put: &storage.PutSpec{
			Table: l.transactionsTable,
			Key: storage.Item{"transactionId": txn.TransactionID},
			Item: storage.TransactionItem(txn),
			Condition: &storage.Condition{Attr: "transactionId", Op: storage.OpNotExists},
		}},
	})
	if err != nil {
		if _, ok := storage.AsConditionFailed(err); ok {
			return nil, common.New(common.InsufficientFunds, "insufficient balance for withdrawal")
		}
		return nil, common.Wrap(common.Fatal, err, "withdraw transaction failed")
	}

	l.sendWithdrawalNotification(ctx, payoutEmail, amount, txn.TransactionID)
	return txn, nil
}

func (l *Ledger) sendWithdrawalNotification(ctx context.Context, payoutEmail string, amount decimal.Decimal, txnID string) {
	if l.notifier == nil {
		return
	}
	err := l.notifier.Send(ctx, notify.Email{
			To: payoutEmail,
			Subject: "Withdrawal Confirmed",
			Body: "Your withdrawal request has been processed.\n\nAmount: $" + amount.StringFixed(2) + "\nTransaction ID: " + txnID + "\n\nEstimated arrival: 1-3 business days.",
		})
	if err != nil {
		l.log.Warn("withdrawal notification failed", "transactionId", txnID, "err", err)
	}
}
