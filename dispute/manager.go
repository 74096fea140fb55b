// Package dispute implements dispute escalation and resolution, grounded
// in the original's backend/src/handlers/disputes/{start_dispute,
// resolve_dispute,auto_resolve_disputes}.py.
package dispute

import (
	"context"
	"strings"
	"time"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/metrics"
	"github.com/crowdtask-platform/engine/payment"
	"github.com/crowdtask-platform/engine/storage"
	"github.com/crowdtask-platform/engine/trigger"
)

const (
	payoutApprove = 100
	payoutPartial = 50
	payoutReject = 0
)

// Manager opens, resolves, and auto-resolves Disputes.
type Manager struct {
	store storage.Store
	clock common.Clock
	payment *payment.Engine
	dispatcher *trigger.Dispatcher
	ttl time.Duration

	disputesTable string
	submissionsTable string

	log *log.Logger
}

func New(store storage.Store, clock common.Clock, paymentEngine *payment.Engine, dispatcher *trigger.Dispatcher, disputesTable, submissionsTable string, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		payment: paymentEngine,
		dispatcher: dispatcher,
		ttl: ttl,
		disputesTable: disputesTable,
		submissionsTable: submissionsTable,
		log: log.New("dispute"),
	}
}

// Open escalates a worker's Rejected submission for review, grounded
// in start_dispute.py.
func (m *Manager) Open(ctx context.Context, workerID, submissionID, reason string) (*domain.Dispute, error) {
	it, found, err := m.store.Get(ctx, m.submissionsTable, storage.Item{"submissionId": submissionID})
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "load submission failed")
	}
	if !found {
		return nil, common.Newf(common.NotFound, "submission %s not found", submissionID)
	}
	submission := storage.SubmissionFromItem(it)
	if submission.WorkerID != workerID {
		return nil, common.New(common.Unauthorized, "submission belongs to a different worker")
	}
	if submission.Status != domain.SubmissionRejected {
		return nil, common.New(common.InvalidInput, "can only dispute a rejected submission")
	}

	d := &domain.Dispute{
		DisputeID: common.NewID(),
		SubmissionID: submissionID,
		WorkerID: workerID,
		Reason: reason,
		Status: domain.DisputeOpen,
		CreatedAt: m.clock.Now(),
	}

	err = m.store.TransactWrite(ctx, []storage.TxItem{
		{Put: &storage.PutSpec{
			Table: m.disputesTable,
			Key: storage.Item{"disputeId": d.DisputeID},
			Item: storage.DisputeItem(d),
			Condition: &storage.Condition{Attr: "disputeId", Op: storage.OpNotExists},
		}},
		{Update: &storage.UpdateSpec{
			Table: m.submissionsTable,
			Key: storage.Item{"submissionId": submissionID},
			Set: storage.Item{"status": string(domain.SubmissionDisputed)},
			Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(domain.SubmissionRejected)},
		}},
	})
	if err != nil {
		if _, ok := storage.AsConditionFailed(err); ok {
			return nil, common.New(common.PreconditionFailed, "submission is no longer rejected")
		}
		return nil, common.Wrap(common.Fatal, err, "open dispute transaction failed")
	}

	metrics.DisputesOpened.Inc()
	m.log.Info("dispute opened", "disputeId", d.DisputeID, "submissionId", submissionID)
	return d, nil
}

// Resolve applies an admin decision to an Open dispute. APPROVE and
// PARTIAL both move the submission to Approved (PARTIAL settling only
// payoutPercent% of the task's price, see DESIGN.md's Open Questions);
// REJECT moves it to RejectedFinal.
func (m *Manager) Resolve(ctx context.Context, disputeID, decision, adminNotes string) (*domain.Dispute, error) {
	payoutPercent, newStatus, err := resolutionFor(decision)
	if err != nil {
		return nil, err
	}

	it, found, err := m.store.Get(ctx, m.disputesTable, storage.Item{"disputeId": disputeID})
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "load dispute failed")
	}
	if !found {
		return nil, common.Newf(common.NotFound, "dispute %s not found", disputeID)
	}
	d := storage.DisputeFromItem(it)
	if d.Status != domain.DisputeOpen {
		return nil, common.New(common.PreconditionFailed, "dispute is not open")
	}

	now := m.clock.Now()
	d.Status = domain.DisputeResolved
	d.Decision = decision
	d.PayoutPercent = payoutPercent
	d.AdminNotes = adminNotes
	d.ResolvedAt = &now

	submissionItem, err := m.transitionSubmission(ctx, d.SubmissionID, newStatus, decision, payoutPercent, now, domain.SubmissionDisputed)
	if err != nil {
		return nil, err
	}

	if err := m.store.Put(ctx, storage.PutSpec{
		Table: m.disputesTable,
		Key: storage.Item{"disputeId": disputeID},
		Item: storage.DisputeItem(d),
	}); err != nil {
		return nil, common.Wrap(common.Fatal, err, "persist dispute resolution failed")
	}

	m.settle(ctx, storage.SubmissionFromItem(submissionItem), payoutPercent)
	metrics.DisputesResolved.WithLabelValues(strings.ToLower(decision)).Inc()
	m.log.Info("dispute resolved", "disputeId", disputeID, "decision", decision)
	return d, nil
}

// AutoResolve is the daily loop that approves every Open dispute older
// than the configured TTL at 100% payout, idempotently (conditioned on
// status == Open), grounded in auto_resolve_disputes.py.
func (m *Manager) AutoResolve(ctx context.Context, limit int) (checked, resolved int, err error) {
	cutoff := m.clock.Now().Add(-m.ttl).Unix()

	items, err := m.store.Query(ctx, storage.QuerySpec{
		Table: m.disputesTable,
		Index: "byStatus",
		KeyAttr: "status",
		KeyValue: string(domain.DisputeOpen),
		Filter: func(it storage.Item) bool {
			ca, _ := it["createdAt"].(int64)
			return ca < cutoff
		},
		Limit: limit,
		ScanForward: true,
	})
	if err != nil {
		return 0, 0, common.Wrap(common.Fatal, err, "query stale disputes failed")
	}

	now := m.clock.Now()
	for _, it := range items {
		checked++
		d := storage.DisputeFromItem(it)

		_, err := m.store.Update(ctx, storage.UpdateSpec{
			Table: m.disputesTable,
			Key: storage.Item{"disputeId": d.DisputeID},
			Set: storage.Item{
				"status": string(domain.DisputeAutoApproved),
				"decision": domain.DecisionAutoApprove,
				"adminNotes": "Auto-approved after timeout without admin review",
				"resolvedAt": now.Unix(),
				"payoutPercent": payoutApprove,
			},
			Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(domain.DisputeOpen)},
		})
		if err != nil {
			if _, ok := storage.AsConditionFailed(err); ok {
				continue
			}
			m.log.Error("failed to auto-resolve dispute", "disputeId", d.DisputeID, "err", err)
			continue
		}

		submissionItem, err := m.transitionSubmission(ctx, d.SubmissionID, domain.SubmissionApproved, domain.DecisionAutoApprove, payoutApprove, now, domain.SubmissionDisputed)
		if err != nil {
			m.log.Error("failed to auto-approve disputed submission", "disputeId", d.DisputeID, "submissionId", d.SubmissionID, "err", err)
			continue
		}

		m.settle(ctx, storage.SubmissionFromItem(submissionItem), payoutApprove)
		metrics.DisputesResolved.WithLabelValues("auto_approved").Inc()
		resolved++
	}
	return checked, resolved, nil
}

func resolutionFor(decision string) (payoutPercent int, newStatus domain.SubmissionState, err error) {
	switch decision {
	case domain.DecisionApprove:
		return payoutApprove, domain.SubmissionApproved, nil
	case domain.DecisionPartial:
		return payoutPartial, domain.SubmissionApproved, nil
	case domain.DecisionReject:
		return payoutReject, domain.SubmissionRejectedFinal, nil
	default:
		return 0, "", common.Newf(common.InvalidInput, "unknown dispute decision %q", decision)
	}
}

func (m *Manager) transitionSubmission(ctx context.Context, submissionID string, newStatus domain.SubmissionState, decision string, payoutPercent int, resolvedAt time.Time, fromStatus domain.SubmissionState) (storage.Item, error) {
	item, err := m.store.Update(ctx, storage.UpdateSpec{
		Table: m.submissionsTable,
		Key: storage.Item{"submissionId": submissionID},
		Set: storage.Item{
			"status": string(newStatus),
			"disputeResolution": map[string]interface{}{
				"decision": decision,
				"payoutPercent": payoutPercent,
				"resolvedAt": resolvedAt.Unix(),
			},
		},
		Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(fromStatus)},
	})
	if err != nil {
		if _, ok := storage.AsConditionFailed(err); ok {
			return nil, common.New(common.PreconditionFailed, "submission is no longer disputed")
		}
		return nil, common.Wrap(common.Fatal, err, "transition disputed submission failed")
	}
	return item, nil
}

// settle re-enters the Approved edge into the Payment Engine and
// Gamification Engine — the PARTIAL decision routes through
// SettlePartial instead of the full-price path.
func (m *Manager) settle(ctx context.Context, submission *domain.Submission, payoutPercent int) {
	if submission.Status != domain.SubmissionApproved {
		if m.dispatcher != nil {
			m.dispatcher.OnSubmissionResolved(ctx, submission)
		}
		return
	}

	if payoutPercent < payoutApprove {
		if m.payment != nil {
			if err := m.payment.SettlePartial(ctx, submission, payoutPercent); err != nil {
				m.log.Error("partial settlement failed", "submissionId", submission.SubmissionID, "err", err)
			}
		}
		// Payment already settled at the partial amount above; only the
		// Gamification Engine half of the dispatch still needs to run so
		// tasksApproved/earnings reflect this approval.
		if m.dispatcher != nil {
			m.dispatcher.RewardOnly(ctx, submission)
		}
		return
	}

	if m.dispatcher != nil {
		m.dispatcher.OnSubmissionResolved(ctx, submission)
	}
}
