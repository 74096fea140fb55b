// Package publish implements the "publish-scheduled" scheduler loop:
// Task rows created with a future publishAt move from Scheduled to
// Published once that time arrives, the same conditional
// scan-and-transition shape assignment.Manager.ExpireStale uses for
// assignment expiry.
package publish

import (
	"context"
	"encoding/json"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/metrics"
	"github.com/crowdtask-platform/engine/queue"
	"github.com/crowdtask-platform/engine/storage"
)

// Publisher scans Scheduled tasks whose publishAt has arrived and
// flips them to Published.
type Publisher struct {
	store storage.Store
	clock common.Clock
	publishQueue queue.Queue
	tasksTable string
	log *log.Logger
}

func New(store storage.Store, clock common.Clock, publishQueue queue.Queue, tasksTable string) *Publisher {
	return &Publisher{
		store: store,
		clock: clock,
		publishQueue: publishQueue,
		tasksTable: tasksTable,
		log: log.New("publish"),
	}
}

// publishNotice is the advisory PUBLISH_QUEUE body, fanned out for
// downstream consumers (e.g. a worker-facing "new tasks" notification)
// that want to react to a publish without polling Tasks.
type publishNotice struct {
	TaskID string `json:"taskId"`
}

// Run scans up to limit Scheduled tasks with publishAt <= now and
// transitions each independently, so one stuck row never blocks the
// rest of the tick. Returns the number checked and actually published.
func (p *Publisher) Run(ctx context.Context, limit int) (checked, published int, err error) {
	now := p.clock.Now()
	cutoff := now.Unix()

	items, err := p.store.Query(ctx, storage.QuerySpec{
		Table: p.tasksTable,
		Index: "byStatus",
		KeyAttr: "status",
		KeyValue: string(domain.TaskScheduled),
		Filter: func(it storage.Item) bool {
			pa, ok := it["publishAt"].(int64)
			return ok && pa <= cutoff
		},
		Limit: limit,
		ScanForward: true,
	})
	if err != nil {
		return 0, 0, common.Wrap(common.Fatal, err, "query scheduled tasks failed")
	}

	for _, it := range items {
		checked++
		taskID := str(it["taskId"])

		_, err := p.store.Update(ctx, storage.UpdateSpec{
			Table: p.tasksTable,
			Key: storage.Item{"taskId": taskID},
			Set: storage.Item{"status": string(domain.TaskPublished)},
			Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(domain.TaskScheduled)},
		})
		if err != nil {
			if _, ok := storage.AsConditionFailed(err); ok {
				continue
			}
			p.log.Error("failed to publish scheduled task", "taskId", taskID, "err", err)
			continue
		}

		metrics.TasksPublished.Inc()
		published++
		p.notify(ctx, taskID)
	}
	return checked, published, nil
}

func (p *Publisher) notify(ctx context.Context, taskID string) {
	if p.publishQueue == nil {
		return
	}
	body, _ := json.Marshal(publishNotice{TaskID: taskID})
	if err := p.publishQueue.Enqueue(ctx, body); err != nil {
		// Advisory: a dropped fanout notice never blocks
		// the publish itself, which has already committed above.
		p.log.Warn("failed to enqueue publish notice", "taskId", taskID, "err", err)
	}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
