// Package config centralizes environment-driven configuration, grounded
// in the original Python platform's backend/layer/python/shared/config.py
// — the same environment variable names are kept, shaped here as a Go
// struct built by FromEnv the way a database.DBConfig gets built from
// CLI flags.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds every environment-driven tunable the platform's binaries need.
type Config struct {
	AWSRegion string

	// DynamoDB table names.
	TasksTable string
	AssignmentsTable string
	SubmissionsTable string
	DisputesTable string
	WorkersTable string
	WalletsTable string
	TransactionsTable string

	// Queues.
	QCQueueURL string
	PublishQueueURL string

	// Blob store.
	MediaBucket string

	// AI services.
	MLEndpointURL string
	AIMinConfidence float64 // 0-100 scale, e.g. 90
	TextSimilarityThreshold float64
	TranscribeLanguage string

	// Consensus.
	ConsensusQuorum int

	// Payment.
	PlatformFeeRate decimal.Decimal
	PlatformWalletID string

	// Assignment / dispute TTLs.
	AssignmentTTL time.Duration
	DisputeTTL time.Duration

	// Wallet bounds.
	WithdrawMin decimal.Decimal
	WithdrawMax decimal.Decimal
	DepositMax decimal.Decimal

	// Scheduler cadences.
	PublishScanInterval time.Duration
	ExpiryScanInterval time.Duration
	DisputeScanInterval time.Duration

	NotifyFromAddress string

	// Optional fast-path / reporting sidecars. Empty disables them: the
	// Fraud Detector falls back to its storage query and the Payment
	// Engine simply stops mirroring to the reporting store.
	RedisAddr string
	ReportingDSN string

	// Process listen addresses, one per cmd/ binary.
	HTTPAddr string
	MetricsAddr string
	QCWorkerBatch int
}

// FromEnv builds a Config from the process environment, applying
// defaults for anything unset.
func FromEnv() *Config {
	c := &Config{
		AWSRegion: getenv("AWS_REGION", ""),
		TasksTable: getenv("TASKS_TABLE", "Tasks"),
		AssignmentsTable: getenv("ASSIGNMENTS_TABLE", "Assignments"),
		SubmissionsTable: getenv("SUBMISSIONS_TABLE", "Submissions"),
		DisputesTable: getenv("DISPUTES_TABLE", "Disputes"),
		WorkersTable: getenv("WORKERS_TABLE", "Workers"),
		WalletsTable: getenv("WALLETS_TABLE", "Wallets"),
		TransactionsTable: getenv("TRANSACTIONS_TABLE", "Transactions"),

		QCQueueURL: getenv("QC_QUEUE_URL", ""),
		PublishQueueURL: getenv("PUBLISH_QUEUE_URL", ""),

		MediaBucket: getenv("MEDIA_BUCKET", ""),

		MLEndpointURL: getenv("ML_ENDPOINT_URL", ""),
		AIMinConfidence: getenvFloat("AI_MIN_CONFIDENCE", 90),
		TextSimilarityThreshold: getenvFloat("TEXT_SIMILARITY_THRESHOLD", 0.85),
		TranscribeLanguage: getenv("TRANSCRIBE_LANGUAGE", "es-ES"),

		ConsensusQuorum: getenvInt("CONSENSUS_QUORUM", 3),

		PlatformFeeRate: decimal.NewFromFloat(getenvFloat("PLATFORM_FEE_RATE", 0.20)),
		PlatformWalletID: getenv("PLATFORM_WALLET_ID", "PLATFORM_WALLET"),

		AssignmentTTL: time.Duration(getenvInt("ASSIGNMENT_TTL_SECONDS", 600)) * time.Second,
		DisputeTTL: time.Duration(getenvInt("DISPUTE_TTL_DAYS", 3)) * 24 * time.Hour,

		WithdrawMin: decimal.NewFromFloat(getenvFloat("WITHDRAW_MIN", 10)),
		WithdrawMax: decimal.NewFromFloat(getenvFloat("WITHDRAW_MAX", 5000)),
		DepositMax: decimal.NewFromFloat(getenvFloat("DEPOSIT_MAX", 10000)),

		PublishScanInterval: time.Duration(getenvInt("PUBLISH_SCAN_SECONDS", 60)) * time.Second,
		ExpiryScanInterval: time.Duration(getenvInt("EXPIRY_SCAN_SECONDS", 120)) * time.Second,
		DisputeScanInterval: time.Duration(getenvInt("DISPUTE_SCAN_SECONDS", 86400)) * time.Second,

		NotifyFromAddress: getenv("NOTIFY_FROM_ADDRESS", "noreply@crowdtask.example"),

		RedisAddr: getenv("REDIS_ADDR", ""),
		ReportingDSN: getenv("REPORTING_DSN", ""),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		MetricsAddr: getenv("METRICS_ADDR", ":9090"),
		QCWorkerBatch: getenvInt("QC_WORKER_BATCH", 10),
	}
	return c
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
