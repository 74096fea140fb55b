// Package fraud implements the per-worker fraud checks,
// ported from the original backend/src/shared/fraud_detection.py's
// copy-paste / spam / bot-timing heuristics onto the storage.Store port's
// byWorker query.
package fraud

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/ratelimit"
	"github.com/crowdtask-platform/engine/storage"
)

const (
	copyPasteWindowSeconds = 60
	copyPasteThreshold = 0.95
	spamWindowSeconds = 60
	spamThreshold = 3
	botMinSamples = 5 // original's BOT_DETECTION_MIN_SUBMISSIONS
	botQueryLimit = botMinSamples + 5
	botStdDevThreshold = 0.5
	botMeanThreshold = 30
	maxIntervalSeconds = 3600

	scoreCopyPaste = 1.0
	scoreBot = 0.9
	scoreSpam = 0.8
	fraudCutoff = 0.8
)

// Result mirrors the original's check_submission return shape: an
// aggregate verdict plus the individual reasons that fed it, so the QC
// Pipeline can log a human-readable rejection reason.
type Result struct {
	IsFraud bool
	FraudScore float64
	Reasons []string
}

// Detector runs the three checks against a worker's submission history.
// Every check is best-effort: a query error degrades that check to "not
// detected" rather than failing the whole submission.
type Detector struct {
	store storage.Store
	clock common.Clock
	submissionsTbl string
	velocity *ratelimit.Counter
	log *log.Logger
}

func New(store storage.Store, clock common.Clock, submissionsTable string) *Detector {
	return &Detector{store: store, clock: clock, submissionsTbl: submissionsTable, log: log.New("fraud")}
}

// UseVelocityCache wires an optional Redis counter in front of
// checkSpam. Without one, checkSpam falls back to the byWorker storage
// query below.
func (d *Detector) UseVelocityCache(c *ratelimit.Counter) *Detector {
	d.velocity = c
	return d
}

// CheckSubmission runs all three checks and aggregates them the way the
// original's check_submission does: fraudScore = max(triggered scores),
// isFraud := fraudScore >= 0.8.
func (d *Detector) CheckSubmission(ctx context.Context, workerID, answer, taskID string) *Result {
	res := &Result{}
	var scores []float64

	if sim, otherTask, ok := d.checkCopyPaste(ctx, workerID, answer, taskID); ok {
		res.Reasons = append(res.Reasons, "copy-paste detected against task "+otherTask)
		scores = append(scores, scoreCopyPaste)
		_ = sim
	}
	if count, ok := d.checkSpam(ctx, workerID); ok {
		res.Reasons = append(res.Reasons, "spam: too many submissions in the last minute")
		scores = append(scores, scoreSpam)
		_ = count
	}
	if stddev, ok := d.checkBotTiming(ctx, workerID); ok {
		res.Reasons = append(res.Reasons, "bot-like submission timing")
		scores = append(scores, scoreBot)
		_ = stddev
	}

	for _, s := range scores {
		if s > res.FraudScore {
			res.FraudScore = s
		}
	}
	res.IsFraud = res.FraudScore >= fraudCutoff
	return res
}

// checkCopyPaste compares answer against every submission the same
// worker made in the last 60s under a different task, using the
// longest-common-subsequence-style ratio from common.SimilarityRatio.
// A query failure is swallowed and reported as "not detected".
func (d *Detector) checkCopyPaste(ctx context.Context, workerID, answer, taskID string) (float64, string, bool) {
	cutoff := d.clock.Now().Unix() - copyPasteWindowSeconds
	items, err := d.store.Query(ctx, storage.QuerySpec{
		Table: d.submissionsTbl,
		Index: "byWorker",
		KeyAttr: "workerId",
		KeyValue: workerID,
		Filter: func(it storage.Item) bool {
			ts, _ := it["submittedAt"].(int64)
			return ts > cutoff
		},
		ScanForward: false,
	})
	if err != nil {
		d.log.Warn("copy-paste check query failed, treating as not detected", "workerId", workerID, "err", err)
		return 0, "", false
	}
	for _, it := range items {
		otherTask, _ := it["taskId"].(string)
		if otherTask == taskID {
			continue
		}
		prev, _ := it["answer"].(string)
		if prev == "" {
			continue
		}
		sim := common.SimilarityRatio(answer, prev)
		if sim >= copyPasteThreshold {
			return sim, otherTask, true
		}
	}
	return 0, "", false
}

// checkSpam counts submissions by this worker in the last 60s. When a
// velocity cache is wired, the count comes from a Redis INCR instead of
// a byWorker table scan; the storage query below only ever runs as the
// fallback when no cache is configured or Redis is unreachable.
func (d *Detector) checkSpam(ctx context.Context, workerID string) (int, bool) {
	if d.velocity != nil {
		if n, ok := d.velocity.Bump(workerID, spamWindowSeconds*time.Second); ok {
			return int(n), n >= spamThreshold
		}
	}

	cutoff := d.clock.Now().Unix() - spamWindowSeconds
	items, err := d.store.Query(ctx, storage.QuerySpec{
		Table: d.submissionsTbl,
		Index: "byWorker",
		KeyAttr: "workerId",
		KeyValue: workerID,
		Filter: func(it storage.Item) bool {
			ts, _ := it["submittedAt"].(int64)
			return ts > cutoff
		},
	})
	if err != nil {
		d.log.Warn("spam check query failed, treating as not detected", "workerId", workerID, "err", err)
		return 0, false
	}
	return len(items), len(items) >= spamThreshold
}

// checkBotTiming looks at up to the last (N+5) submissions, computes the
// intervals between consecutive ones (dropping anything >= 1 hour
// apart), and flags very regular, very fast timing as bot-like.
func (d *Detector) checkBotTiming(ctx context.Context, workerID string) (float64, bool) {
	items, err := d.store.Query(ctx, storage.QuerySpec{
		Table: d.submissionsTbl,
		Index: "byWorker",
		KeyAttr: "workerId",
		KeyValue: workerID,
		Limit: botQueryLimit,
		ScanForward: false,
	})
	if err != nil {
		d.log.Warn("bot-timing check query failed, treating as not detected", "workerId", workerID, "err", err)
		return -1, false
	}
	if len(items) < botMinSamples {
		return -1, false
	}

	timestamps := make([]int64, 0, len(items))
	for _, it := range items {
		if ts, ok := it["submittedAt"].(int64); ok && ts != 0 {
			timestamps = append(timestamps, ts)
		}
	}
	if len(timestamps) < botMinSamples {
		return -1, false
	}

	// Results arrive most-recent-first already (ScanForward: false); a
	// stable sort guards against an adapter that doesn't honor it.
	for i := 0; i < len(timestamps)-1; i++ {
		for j := i + 1; j < len(timestamps); j++ {
			if timestamps[j] > timestamps[i] {
				timestamps[i], timestamps[j] = timestamps[j], timestamps[i]
			}
		}
	}

	var intervals []float64
	for i := 0; i < len(timestamps)-1; i++ {
		interval := float64(timestamps[i] - timestamps[i+1])
		if interval < maxIntervalSeconds {
			intervals = append(intervals, interval)
		}
	}
	if len(intervals) < 3 {
		return -1, false
	}

	var sum float64
	for _, v := range intervals {
		sum += v
	}
	mean := sum / float64(len(intervals))

	var variance float64
	for _, v := range intervals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(intervals))
	stddev := math.Sqrt(variance)

	return stddev, stddev < botStdDevThreshold && mean < botMeanThreshold
}

// Reason joins a result's reasons into a single human-readable string
// for qcReason, matching the original's get_rejection_reason.
func Reason(res *Result) string {
	if len(res.Reasons) == 0 {
		return "Submission flagged for suspicious activity"
	}
	return "Fraud detected: " + strings.Join(res.Reasons, "; ")
}
