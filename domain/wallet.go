package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlatformWalletID is the reserved sink wallet collecting the platform
// fee
const PlatformWalletID = "PLATFORM_WALLET"

// Wallet holds a single party's ledger balance
type Wallet struct {
	WalletID string `json:"walletId"`
	Balance decimal.Decimal `json:"balance"`
}

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TxDeposit TransactionType = "DEPOSIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxTaskPayment TransactionType = "TASK_PAYMENT"
	TxPlatformFee TransactionType = "PLATFORM_FEE"
	TxRefund TransactionType = "REFUND"
)

// TransactionStatus tracks async settlement (withdrawals start PENDING).
type TransactionStatus string

const (
	TxStatusCompleted TransactionStatus = "COMPLETED"
	TxStatusPending TransactionStatus = "PENDING"
	TxStatusFailed TransactionStatus = "FAILED"
)

// Transaction is an immutable ledger entry
type Transaction struct {
	TransactionID string `json:"transactionId"`
	Type TransactionType `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	GrossAmount decimal.Decimal `json:"grossAmount,omitempty"`
	PlatformFee decimal.Decimal `json:"platformFee,omitempty"`
	From string `json:"from,omitempty"`
	To string `json:"to,omitempty"`
	ReferenceID string `json:"referenceId,omitempty"`
	TaskID string `json:"taskId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Status TransactionStatus `json:"status"`
}
