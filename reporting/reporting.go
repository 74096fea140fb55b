// Package reporting mirrors settled payment transactions into a
// relational MySQL table via gorm, for the admin financial reporting
// surface (aggregate payout totals by requester, by day, by task
// category): the storage.Store port is a key-value/GSI-query surface
// suited to point lookups and byWorker/byStatus scans, not the ad hoc
// SUM/GROUP BY a reporting dashboard needs, so every settled
// domain.Transaction gets an append-only mirror row, persisted through
// gorm separately from the store it originated from.
package reporting

import (
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/log"
)

// Entry is one row of the payments_ledger table, a flattened, queryable
// copy of a settled domain.Transaction. Decimal amounts are stored as
// strings, the same string-preserving convention storage.Item uses for
// DynamoDB, so no float rounding ever touches settled money.
type Entry struct {
	TransactionID string `gorm:"primary_key;column:transaction_id"`
	Type string `gorm:"column:type;index"`
	Amount string `gorm:"column:amount"`
	GrossAmount string `gorm:"column:gross_amount"`
	PlatformFee string `gorm:"column:platform_fee"`
	FromWallet string `gorm:"column:from_wallet;index"`
	ToWallet string `gorm:"column:to_wallet;index"`
	ReferenceID string `gorm:"column:reference_id"`
	TaskID string `gorm:"column:task_id;index"`
	Status string `gorm:"column:status"`
	RecordedAt time.Time `gorm:"column:recorded_at"`
}

// TableName pins the table name so AutoMigrate and queries agree
// regardless of gorm's pluralization rules.
func (Entry) TableName() string { return "payments_ledger" }

// Mirror appends settled transactions to MySQL for reporting. A write
// failure here never unwinds the settlement that already committed to
// the primary store; it is logged and dropped.
type Mirror struct {
	db *gorm.DB
	log *log.Logger
}

// Open connects to MySQL through the go-sql-driver/mysql dialect and
// auto-migrates the ledger table.
func Open(dsn string) (*Mirror, error) {
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Entry{}).Error; err != nil {
		db.Close()
		return nil, err
	}
	return &Mirror{db: db, log: log.New("reporting")}, nil
}

func (m *Mirror) Close() error { return m.db.Close() }

// Record mirrors a single settled transaction, called fire-and-forget by
// the Payment Engine right after that transaction has committed to the
// primary store.
func (m *Mirror) Record(txn *domain.Transaction, recordedAt time.Time) {
	entry := &Entry{
		TransactionID: txn.TransactionID,
		Type: string(txn.Type),
		Amount: txn.Amount.String(),
		GrossAmount: txn.GrossAmount.String(),
		PlatformFee: txn.PlatformFee.String(),
		FromWallet: txn.From,
		ToWallet: txn.To,
		ReferenceID: txn.ReferenceID,
		TaskID: txn.TaskID,
		Status: string(txn.Status),
		RecordedAt: recordedAt,
	}
	if err := m.db.Create(entry).Error; err != nil {
		m.log.Warn("reporting mirror write failed", "transactionId", txn.TransactionID, "err", err)
	}
}

// SumByRequester totals settled worker payouts for one requester, the
// query the storage.Store port has no efficient way to express.
func (m *Mirror) SumByRequester(requester string) (decimalSum string, err error) {
	row := m.db.Table("payments_ledger").
	Where("from_wallet = ? AND type = ?", requester, string(domain.TxTaskPayment)).
	Select("COALESCE(SUM(CAST(gross_amount AS DECIMAL(18,2))), 0)").Row()
	if scanErr := row.Scan(&decimalSum); scanErr != nil {
		return "0", scanErr
	}
	return decimalSum, nil
}
