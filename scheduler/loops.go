// Package scheduler drives the three periodic jobs —
// publish-scheduled, expire-assignments, auto-resolve-disputes — each a
// bounded, idempotent scan fired by its own ticker. The shape is the
// teacher's worker.update update loop (work/worker.go): one
// goroutine selecting over several channels and dispatching to a
// handler per case, generalized here from blockchain chain-head events
// to cron-like time.Ticker fires.
package scheduler

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crowdtask-platform/engine/assignment"
	"github.com/crowdtask-platform/engine/dispute"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/metrics"
	"github.com/crowdtask-platform/engine/publish"
)

const scanLimitPerTick = 100

// Config bundles the tick cadences, read from config.Config the way
// qc.Config keeps the qc package from importing config directly.
type Config struct {
	PublishScanInterval time.Duration
	ExpiryScanInterval time.Duration
	DisputeScanInterval time.Duration
}

// Loops owns the three scheduled jobs and their tickers.
type Loops struct {
	publisher *publish.Publisher
	assignment *assignment.Manager
	dispute *dispute.Manager

	publishInterval time.Duration
	expiryInterval time.Duration
	disputeInterval time.Duration

	log *log.Logger
}

func New(publisher *publish.Publisher, assignmentManager *assignment.Manager, disputeManager *dispute.Manager, cfg Config) *Loops {
	return &Loops{
		publisher: publisher,
		assignment: assignmentManager,
		dispute: disputeManager,
		publishInterval: cfg.PublishScanInterval,
		expiryInterval: cfg.ExpiryScanInterval,
		disputeInterval: cfg.DisputeScanInterval,
		log: log.New("scheduler"),
	}
}

// Run blocks, firing all three loops on their own tickers until ctx is
// canceled. Each tick runs synchronously to completion before the next
// one of the same kind can fire, so a slow scan self-throttles instead
// of piling up concurrent scans of the same table.
func (l *Loops) Run(ctx context.Context) {
	publishTicker := time.NewTicker(l.publishInterval)
	expiryTicker := time.NewTicker(l.expiryInterval)
	disputeTicker := time.NewTicker(l.disputeInterval)
	defer publishTicker.Stop()
	defer expiryTicker.Stop()
	defer disputeTicker.Stop()

	l.log.Info("scheduler loops started",
		"publishInterval", l.publishInterval,
		"expiryInterval", l.expiryInterval,
		"disputeInterval", l.disputeInterval)

	for {
		select {
		case <-ctx.Done():
			l.log.Info("scheduler loops stopping")
			return

		case <-publishTicker.C:
			l.runPublishTick(ctx)

		case <-expiryTicker.C:
			l.runExpiryTick(ctx)

		case <-disputeTicker.C:
			l.runDisputeTick(ctx)
		}
	}
}

func (l *Loops) runPublishTick(ctx context.Context) {
	timer := prometheus.NewTimer(metrics.SchedulerTickDuration.WithLabelValues("publish-scheduled"))
	defer timer.ObserveDuration()

	checked, published, err := l.publisher.Run(ctx, scanLimitPerTick)
	if err != nil {
		l.log.Error("publish-scheduled tick failed", "err", err)
		return
	}
	if checked > 0 {
		l.log.Info("publish-scheduled tick", "checked", checked, "published", published)
	}
}

func (l *Loops) runExpiryTick(ctx context.Context) {
	timer := prometheus.NewTimer(metrics.SchedulerTickDuration.WithLabelValues("expire-assignments"))
	defer timer.ObserveDuration()

	checked, expired, err := l.assignment.ExpireStale(ctx, scanLimitPerTick)
	if err != nil {
		l.log.Error("expire-assignments tick failed", "err", err)
		return
	}
	if checked > 0 {
		l.log.Info("expire-assignments tick", "checked", checked, "expired", expired)
	}
}

func (l *Loops) runDisputeTick(ctx context.Context) {
	timer := prometheus.NewTimer(metrics.SchedulerTickDuration.WithLabelValues("auto-resolve-disputes"))
	defer timer.ObserveDuration()

	checked, resolved, err := l.dispute.AutoResolve(ctx, scanLimitPerTick)
	if err != nil {
		l.log.Error("auto-resolve-disputes tick failed", "err", err)
		return
	}
	if checked > 0 {
		l.log.Info("auto-resolve-disputes tick", "checked", checked, "resolved", resolved)
	}
}
