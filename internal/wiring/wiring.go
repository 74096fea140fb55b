// Package wiring assembles the dependency graph shared by every cmd/
// binary from a single config.Config. Each binary picks which pieces of
// the returned Platform it actually needs (cmd/apiserver wires httpapi,
// cmd/qcworker wires the QC Pipeline worker loop, cmd/scheduler wires
// scheduler.Loops) rather than duplicating the storage/queue/AI adapter
// selection three times.
package wiring

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-redis/redis/v7"

	"github.com/crowdtask-platform/engine/ai"
	"github.com/crowdtask-platform/engine/ai/mlendpoint"
	"github.com/crowdtask-platform/engine/ai/rekognition"
	"github.com/crowdtask-platform/engine/ai/transcribe"
	"github.com/crowdtask-platform/engine/assignment"
	"github.com/crowdtask-platform/engine/blob"
	"github.com/crowdtask-platform/engine/blob/s3blob"
	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/config"
	"github.com/crowdtask-platform/engine/dispute"
	"github.com/crowdtask-platform/engine/eventbus"
	"github.com/crowdtask-platform/engine/eventbus/eventbridge"
	"github.com/crowdtask-platform/engine/fraud"
	"github.com/crowdtask-platform/engine/gamification"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/notify"
	"github.com/crowdtask-platform/engine/notify/ses"
	"github.com/crowdtask-platform/engine/payment"
	"github.com/crowdtask-platform/engine/publish"
	"github.com/crowdtask-platform/engine/qc"
	"github.com/crowdtask-platform/engine/queue"
	"github.com/crowdtask-platform/engine/queue/kafkaqueue"
	"github.com/crowdtask-platform/engine/queue/memqueue"
	"github.com/crowdtask-platform/engine/queue/sqsqueue"
	"github.com/crowdtask-platform/engine/ratelimit"
	"github.com/crowdtask-platform/engine/reporting"
	"github.com/crowdtask-platform/engine/scheduler"
	"github.com/crowdtask-platform/engine/storage"
	"github.com/crowdtask-platform/engine/storage/dynamodb"
	"github.com/crowdtask-platform/engine/storage/memory"
	"github.com/crowdtask-platform/engine/submission"
	"github.com/crowdtask-platform/engine/task"
	"github.com/crowdtask-platform/engine/trigger"
	"github.com/crowdtask-platform/engine/wallet"
)

var wiringLog = log.New("wiring")

// Platform is the full dependency graph built from one config.Config.
// Binaries read only the fields their routes/loops touch.
type Platform struct {
	Store storage.Store

	Tasks      *task.Manager
	Assignment *assignment.Manager
	Submission *submission.Manager
	QC         *qc.Pipeline
	Dispute    *dispute.Manager
	Payment    *payment.Engine
	Wallet     *wallet.Ledger
	Fraud      *fraud.Detector

	Publisher *publish.Publisher
	Scheduler *scheduler.Loops

	QCQueue queue.Queue

	Reporting *reporting.Mirror
}

// Build wires every component named in SPEC_FULL.md's component list
// off of one config.Config. Storage and queue adapters are selected by
// whether AWS identifiers are configured: an unset AWS_REGION runs the
// in-memory store, and an empty queue URL (or no AWS session) runs the
// in-memory queue, the same "local dev vs AWS"
// switch the original's serverless.yml stage variables express through
// separate deploy targets rather than code branches.
func Build(cfg *config.Config) *Platform {
	var sess *session.Session
	if cfg.AWSRegion != "" {
		sess = session.Must(session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)}))
	}

	store := newStore(cfg, sess)
	qcQueue := newQueue(cfg.QCQueueURL, "qc", sess)
	publishQueue := newQueue(cfg.PublishQueueURL, "publish", sess)

	var notifier notify.Notifier
	if sess != nil && cfg.NotifyFromAddress != "" {
		notifier = ses.New(sess, cfg.NotifyFromAddress)
	}

	var labeler ai.ImageLabeler
	var transcriber ai.Transcriber
	var mediaBlob blob.Store
	if sess != nil && cfg.MediaBucket != "" {
		labeler = rekognition.New(sess, cfg.MediaBucket)
		transcriber = transcribe.New(sess, cfg.MediaBucket)
		mediaBlob = s3blob.New(sess, cfg.MediaBucket)
	}

	var ml ai.MLEndpoint
	if cfg.MLEndpointURL != "" {
		ml = mlendpoint.New(cfg.MLEndpointURL)
	}

	var bus eventbus.Bus
	if sess != nil {
		bus = eventbridge.New(sess, "crowdtask-platform")
	}

	fraudDetector := fraud.New(store, common.SystemClock{}, cfg.SubmissionsTable)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		fraudDetector.UseVelocityCache(ratelimit.New(rdb, "crowdtask"))
	}

	paymentEngine := payment.New(store, notifier, cfg.TasksTable, cfg.SubmissionsTable, cfg.WalletsTable, cfg.TransactionsTable, cfg.PlatformWalletID, cfg.PlatformFeeRate)
	var reportingMirror *reporting.Mirror
	if cfg.ReportingDSN != "" {
		mirror, err := reporting.Open(cfg.ReportingDSN)
		if err != nil {
			wiringLog.Error("reporting mirror disabled: failed to open", "err", err)
		} else {
			reportingMirror = mirror
			paymentEngine.UseReporting(mirror)
		}
	}

	gamificationEngine := gamification.New(store, cfg.WorkersTable)
	dispatcher := trigger.New(store, cfg.TasksTable, paymentEngine, gamificationEngine)

	qcPipeline := qc.New(store, fraudDetector, labeler, ml, bus, dispatcher, qc.Config{
		TasksTable:             cfg.TasksTable,
		SubmissionsTable:       cfg.SubmissionsTable,
		ConsensusQuorum:        cfg.ConsensusQuorum,
		AIMinLabelConfidence:   cfg.AIMinConfidence,
		AudioApproveSimilarity: cfg.TextSimilarityThreshold,
	})

	clock := common.SystemClock{}
	disputeManager := dispute.New(store, clock, paymentEngine, dispatcher, cfg.DisputesTable, cfg.SubmissionsTable, cfg.DisputeTTL)

	publisher := publish.New(store, clock, publishQueue, cfg.TasksTable)
	assignmentManager := assignment.New(store, clock, cfg.TasksTable, cfg.AssignmentsTable, cfg.AssignmentTTL)
	loops := scheduler.New(publisher, assignmentManager, disputeManager, scheduler.Config{
		PublishScanInterval: cfg.PublishScanInterval,
		ExpiryScanInterval:  cfg.ExpiryScanInterval,
		DisputeScanInterval: cfg.DisputeScanInterval,
	})

	taskManager := task.New(store, clock, publishQueue, cfg.TasksTable, cfg.WorkersTable)
	taskManager.UseTranscriber(transcriber).UseMediaStore(mediaBlob)

	return &Platform{
		Store:      store,
		Tasks:      taskManager,
		Assignment: assignmentManager,
		Submission: submission.New(store, clock, qcQueue, cfg.TasksTable, cfg.AssignmentsTable, cfg.SubmissionsTable),
		QC:         qcPipeline,
		Dispute:    disputeManager,
		Payment:    paymentEngine,
		Wallet:     wallet.New(store, clock, notifier, cfg.WalletsTable, cfg.TransactionsTable, cfg.DepositMax, cfg.WithdrawMin, cfg.WithdrawMax),
		Fraud:      fraudDetector,
		Publisher:  publisher,
		Scheduler:  loops,
		QCQueue:    qcQueue,
		Reporting:  reportingMirror,
	}
}

func newStore(cfg *config.Config, sess *session.Session) storage.Store {
	if sess == nil {
		wiringLog.Info("storage: using in-memory adapter (AWS_REGION unset)")
		return memory.New()
	}
	return dynamodb.New(sess)
}

func newQueue(url, name string, sess *session.Session) queue.Queue {
	if url == "" {
		wiringLog.Info("queue: using in-memory adapter", "queue", name)
		return memqueue.New(1000)
	}
	if sess == nil {
		wiringLog.Info("queue: using in-memory adapter, AWS session unavailable", "queue", name)
		return memqueue.New(1000)
	}
	if isKafkaBrokerList(url) {
		q, err := kafkaqueue.New([]string{url}, "crowdtask-"+name, name)
		if err != nil {
			wiringLog.Crit("kafka queue init failed", "queue", name, "err", err)
		}
		return q
	}
	return sqsqueue.New(sess, url)
}

// isKafkaBrokerList distinguishes a Kafka host:port broker address from
// an SQS queue URL; SQS URLs always start with "https://".
func isKafkaBrokerList(url string) bool {
	return len(url) < 8 || url[:8] != "https://"
}
