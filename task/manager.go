// Package task implements the requester-facing Task Batch operations —
// CreateBatch and PublishBatch — plus the worker-facing published-task
// catalog, grounded in the original's
// backend/src/handlers/tasks/{create_task_batch,publish_task_batch,
// list_available_tasks}.py. assignment.Manager and submission.Manager
// pick up the lifecycle from Published onward.
package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crowdtask-platform/engine/ai"
	"github.com/crowdtask-platform/engine/blob"
	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/queue"
	"github.com/crowdtask-platform/engine/storage"
)

// mediaURLExpirationSeconds bounds how long a worker's presigned media
// link stays valid, matching the original's get_presigned_url default.
const mediaURLExpirationSeconds = 3600

// Input is one caller-supplied task within a CreateBatch request,
// mirroring create_task_batch.py's per-task JSON shape.
type Input struct {
	Type string
	Payload domain.TaskPayload
	IsGold bool
	GoldAnswer string
	RequiredLevel string
	PublishAt *time.Time
}

// Manager creates and publishes Task batches for requesters, and lists
// the Published catalog for workers.
type Manager struct {
	store storage.Store
	clock common.Clock
	publishQueue queue.Queue
	tasksTable string
	workersTable string
	log *log.Logger

	// transcriber and media are optional: a nil transcriber skips the
	// async transcription kickoff on audio-transcription tasks, and a
	// nil media store leaves AvailableTask.MediaURL empty, the same
	// nil-is-disabled convention payment.Engine.UseReporting uses.
	transcriber ai.Transcriber
	media blob.Store
}

func New(store storage.Store, clock common.Clock, publishQueue queue.Queue, tasksTable, workersTable string) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		publishQueue: publishQueue,
		tasksTable: tasksTable,
		workersTable: workersTable,
		log: log.New("task"),
	}
}

// UseTranscriber wires asynchronous audio transcription kickoff into
// CreateBatch for audio-transcription tasks.
func (m *Manager) UseTranscriber(t ai.Transcriber) *Manager {
	m.transcriber = t
	return m
}

// UseMediaStore wires presigned media URL generation into ListAvailable.
func (m *Manager) UseMediaStore(store blob.Store) *Manager {
	m.media = store
	return m
}

// publishNotice matches publish.Publisher's advisory fanout shape, so a
// single downstream consumer can read either source's notices.
type publishNotice struct {
	TaskID string `json:"taskId"`
}

// CreateBatch writes one Task row per input under a freshly-minted
// batchId. Tasks are written individually (not as one all-or-nothing
// transaction) the way create_task_batch.py's batch_write_items
// overwrites each item independently — a partial failure midway leaves
// the earlier tasks committed rather than rolling the whole batch back.
// A task whose PublishAt is in the future is created directly into
// Scheduled, so publish.Publisher's scheduler loop picks it up later
// instead of requiring an explicit PublishBatch call.
func (m *Manager) CreateBatch(ctx context.Context, requesterID string, inputs []Input) (batchID string, count int, err error) {
	if len(inputs) == 0 {
		return "", 0, common.New(common.InvalidInput, "no tasks provided")
	}

	batchID = common.NewID()
	now := m.clock.Now()

	for _, in := range inputs {
		isGold := in.IsGold
		if in.GoldAnswer != "" {
			isGold = true
		}
		status := domain.TaskCreated
		if in.PublishAt != nil && in.PublishAt.After(now) {
			status = domain.TaskScheduled
		}

		t := &domain.Task{
			TaskID: common.NewID(),
			Requester: requesterID,
			BatchID: batchID,
			Status: status,
			Type: in.Type,
			Payload: in.Payload,
			IsGold: isGold,
			GoldAnswer: in.GoldAnswer,
			PublishAt: in.PublishAt,
			RequiredLevel: in.RequiredLevel,
			CreatedAt: now,
		}

		if in.Type == domain.TaskTypeAudioTranscription && in.Payload.BlobKey != "" && m.transcriber != nil {
			jobName := "transcribe-" + t.TaskID
			if err := m.transcriber.StartJob(ctx, jobName, in.Payload.BlobKey, "en-US"); err != nil {
				m.log.Warn("transcription job start failed", "taskId", t.TaskID, "err", err)
				t.TranscriptionStatus = domain.TranscriptionFailed
			} else {
				t.TranscriptionJobName = jobName
				t.TranscriptionStatus = domain.TranscriptionPending
			}
		}

		if err := m.store.Put(ctx, storage.PutSpec{
			Table: m.tasksTable,
			Key: storage.Item{"taskId": t.TaskID},
			Item: storage.TaskItem(t),
		}); err != nil {
			return batchID, count, common.Wrap(common.Fatal, err, "write task batch failed")
		}
		count++
	}

	m.log.Info("task batch created", "batchId", batchID, "requesterId", requesterID, "count", count)
	return batchID, count, nil
}

// PublishBatch flips every Created task in batchID to Published and
// fans out an advisory notice per task, grounded in
// publish_task_batch.py. Tasks in the batch that are not Created
// (already published, or created Scheduled) are left untouched rather
// than treated as an error.
func (m *Manager) PublishBatch(ctx context.Context, batchID string) (count int, err error) {
	items, err := m.store.Query(ctx, storage.QuerySpec{
		Table: m.tasksTable,
		Index: "byBatch",
		KeyAttr: "batchId",
		KeyValue: batchID,
	})
	if err != nil {
		return 0, common.Wrap(common.Fatal, err, "query task batch failed")
	}
	if len(items) == 0 {
		return 0, common.Newf(common.NotFound, "batch %s not found", batchID)
	}

	for _, it := range items {
		t := storage.TaskFromItem(it)
		if t.Status != domain.TaskCreated {
			continue
		}

		_, err := m.store.Update(ctx, storage.UpdateSpec{
			Table: m.tasksTable,
			Key: storage.Item{"taskId": t.TaskID},
			Set: storage.Item{"status": string(domain.TaskPublished)},
			Condition: &storage.Condition{Attr: "status", Op: storage.OpEq, Value: string(domain.TaskCreated)},
		})
		if err != nil {
			if _, ok := storage.AsConditionFailed(err); ok {
				continue
			}
			m.log.Error("failed to publish task", "taskId", t.TaskID, "err", err)
			continue
		}

		count++
		m.notify(ctx, t.TaskID)
	}

	m.log.Info("task batch published", "batchId", batchID, "count", count)
	return count, nil
}

func (m *Manager) notify(ctx context.Context, taskID string) {
	if m.publishQueue == nil {
		return
	}
	body, _ := json.Marshal(publishNotice{TaskID: taskID})
	if err := m.publishQueue.Enqueue(ctx, body); err != nil {
		m.log.Warn("failed to enqueue publish notice", "taskId", taskID, "err", err)
	}
}

// AvailableTask is one entry of ListAvailable's worker-facing catalog:
// the Task itself plus whether the caller's level locks them out of it.
type AvailableTask struct {
	Task *domain.Task
	Locked bool
	MediaURL string
}

// ListAvailable returns every Published task together with a per-task
// Locked flag computed against the worker's current level, grounded in
// list_available_tasks.py plus the original's can_access_task gate
// (domain.CanAccessTask). The worker's own level is returned alongside
// so the HTTP boundary can report it without a second lookup.
func (m *Manager) ListAvailable(ctx context.Context, workerID string) (tasks []AvailableTask, workerLevel domain.WorkerLevel, err error) {
	workerLevel = domain.LevelNovice
	if workerID != "" {
		it, found, err := m.store.Get(ctx, m.workersTable, storage.Item{"workerId": workerID})
		if err != nil {
			return nil, "", common.Wrap(common.Fatal, err, "load worker for task listing failed")
		}
		if found {
			workerLevel = storage.WorkerFromItem(it).Level
		}
	}

	items, err := m.store.Query(ctx, storage.QuerySpec{
		Table: m.tasksTable,
		Index: "byStatus",
		KeyAttr: "status",
		KeyValue: string(domain.TaskPublished),
		ScanForward: true,
	})
	if err != nil {
		return nil, "", common.Wrap(common.Fatal, err, "query published tasks failed")
	}

	tasks = make([]AvailableTask, 0, len(items))
	for _, it := range items {
		t := storage.TaskFromItem(it)
		at := AvailableTask{
			Task: t,
			Locked: !domain.CanAccessTask(workerLevel, domain.WorkerLevel(t.RequiredLevel)),
		}
		if m.media != nil && blob.IsMediaKey(t.Payload.BlobKey) {
			url, err := m.media.PresignedURL(ctx, t.Payload.BlobKey, mediaURLExpirationSeconds)
			if err != nil {
				m.log.Warn("presigned media url failed", "taskId", t.TaskID, "err", err)
			} else {
				at.MediaURL = url
			}
		}
		tasks = append(tasks, at)
	}
	return tasks, workerLevel, nil
}

// CompleteTranscription applies the terminal result of an asynchronous
// Amazon Transcribe job onto its owning Task, grounded in the
// original's process_transcription.py EventBridge handler. jobName is
// matched against the byTranscriptionJob index the way batchId/status
// are matched elsewhere in this package; a job with no matching task
// (already retried, or the event arrived twice) is a no-op, not an
// error, matching the original's "No task found" early return.
func (m *Manager) CompleteTranscription(ctx context.Context, jobName string, succeeded bool, transcript, failureReason string) (*domain.Task, error) {
	items, err := m.store.Query(ctx, storage.QuerySpec{
		Table: m.tasksTable,
		Index: "byTranscriptionJob",
		KeyAttr: "transcriptionJobName",
		KeyValue: jobName,
		Limit: 1,
	})
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "query task by transcription job failed")
	}
	if len(items) == 0 {
		m.log.Warn("no task found for transcription job", "jobName", jobName)
		return nil, nil
	}
	t := storage.TaskFromItem(items[0])

	set := storage.Item{}
	if succeeded {
		set["transcriptionStatus"] = string(domain.TranscriptionCompleted)
		set["aiTranscription"] = transcript
	} else {
		set["transcriptionStatus"] = string(domain.TranscriptionFailed)
		set["transcriptionError"] = failureReason
	}

	if _, err := m.store.Update(ctx, storage.UpdateSpec{
		Table: m.tasksTable,
		Key: storage.Item{"taskId": t.TaskID},
		Set: set,
	}); err != nil {
		return nil, common.Wrap(common.Fatal, err, "update task transcription result failed")
	}

	m.log.Info("transcription result applied", "taskId", t.TaskID, "jobName", jobName, "succeeded", succeeded)
	return t, nil
}
