package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/queue/memqueue"
	"github.com/crowdtask-platform/engine/storage"
	"github.com/crowdtask-platform/engine/storage/memory"
	"github.com/crowdtask-platform/engine/task"
)

type fakeTranscriber struct {
	jobName, blobKey, lang string
	err                    error
}

func (f *fakeTranscriber) StartJob(_ context.Context, jobName, blobKey, languageCode string) error {
	f.jobName, f.blobKey, f.lang = jobName, blobKey, languageCode
	return f.err
}

type fakeMediaStore struct {
	url string
	err error
}

func (f *fakeMediaStore) PresignedURL(_ context.Context, key string, expiration int) (string, error) {
	return f.url, f.err
}

const (
	tasksTable   = "Tasks"
	workersTable = "Workers"
)

func TestCreateBatch_WritesOneTaskPerInputUnderSharedBatchID(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable)

	batchID, count, err := mgr.CreateBatch(context.Background(), "requester-1", []task.Input{
		{Type: "image-classification", Payload: domain.TaskPayload{Reward: decimal.NewFromFloat(1.5)}},
		{Type: "image-classification", Payload: domain.TaskPayload{Reward: decimal.NewFromFloat(1.5)}, GoldAnswer: "cat"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NotEmpty(t, batchID)

	items, err := store.Query(context.Background(), storage.QuerySpec{
		Table: tasksTable, Index: "byBatch", KeyAttr: "batchId", KeyValue: batchID,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		tsk := storage.TaskFromItem(it)
		assert.Equal(t, "requester-1", tsk.Requester)
		assert.Equal(t, domain.TaskCreated, tsk.Status)
	}
}

func TestCreateBatch_FuturePublishAtCreatesScheduled(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable)
	future := clock.Now().Add(24 * time.Hour)

	batchID, count, err := mgr.CreateBatch(context.Background(), "requester-1", []task.Input{
		{Type: "data-validation", PublishAt: &future},
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	items, err := store.Query(context.Background(), storage.QuerySpec{
		Table: tasksTable, Index: "byBatch", KeyAttr: "batchId", KeyValue: batchID,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.TaskScheduled, storage.TaskFromItem(items[0]).Status)
}

func TestCreateBatch_RejectsEmptyInput(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable)

	_, _, err := mgr.CreateBatch(context.Background(), "requester-1", nil)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.InvalidInput))
}

func TestPublishBatch_FlipsOnlyCreatedTasksAndNotifies(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	q := memqueue.New(10)
	mgr := task.New(store, clock, q, tasksTable, workersTable)

	batchID, _, err := mgr.CreateBatch(context.Background(), "requester-1", []task.Input{
		{Type: "data-validation"},
		{Type: "data-validation"},
	})
	require.NoError(t, err)

	count, err := mgr.PublishBatch(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	msgs, err := q.Receive(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	items, err := store.Query(context.Background(), storage.QuerySpec{
		Table: tasksTable, Index: "byBatch", KeyAttr: "batchId", KeyValue: batchID,
	})
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, domain.TaskPublished, storage.TaskFromItem(it).Status)
	}

	// Republishing the same batch is a no-op: nothing is Created anymore.
	count, err = mgr.PublishBatch(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPublishBatch_UnknownBatchIsNotFound(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable)

	_, err := mgr.PublishBatch(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, common.Is(err, common.NotFound))
}

func TestListAvailable_LocksTasksAboveWorkerLevel(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable)

	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": "open-task"},
		Item:  storage.TaskItem(&domain.Task{TaskID: "open-task", Status: domain.TaskPublished, CreatedAt: clock.Now()}),
	}))
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": "expert-task"},
		Item: storage.TaskItem(&domain.Task{
			TaskID: "expert-task", Status: domain.TaskPublished, RequiredLevel: "Expert", CreatedAt: clock.Now(),
		}),
	}))
	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: workersTable,
		Key:   storage.Item{"workerId": "worker-1"},
		Item:  storage.WorkerItem(&domain.Worker{WorkerID: "worker-1", Level: domain.LevelNovice}),
	}))

	tasks, level, err := mgr.ListAvailable(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelNovice, level)
	require.Len(t, tasks, 2)

	locked := map[string]bool{}
	for _, at := range tasks {
		locked[at.Task.TaskID] = at.Locked
	}
	assert.False(t, locked["open-task"])
	assert.True(t, locked["expert-task"])
}

func TestListAvailable_UnknownWorkerDefaultsToNoviceLevel(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable)

	_, level, err := mgr.ListAvailable(context.Background(), "ghost-worker")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelNovice, level)
}

func TestCreateBatch_AudioTaskStartsTranscriptionJob(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	transcriber := &fakeTranscriber{}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable).UseTranscriber(transcriber)

	batchID, _, err := mgr.CreateBatch(context.Background(), "requester-1", []task.Input{
		{Type: domain.TaskTypeAudioTranscription, Payload: domain.TaskPayload{BlobKey: "media/clip.wav"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "media/clip.wav", transcriber.blobKey)
	assert.NotEmpty(t, transcriber.jobName)

	items, err := store.Query(context.Background(), storage.QuerySpec{
		Table: tasksTable, Index: "byBatch", KeyAttr: "batchId", KeyValue: batchID,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	tsk := storage.TaskFromItem(items[0])
	assert.Equal(t, domain.TranscriptionPending, tsk.TranscriptionStatus)
	assert.Equal(t, transcriber.jobName, tsk.TranscriptionJobName)
}

func TestListAvailable_ResolvesMediaURLForMediaKeys(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	media := &fakeMediaStore{url: "https://example.com/signed"}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable).UseMediaStore(media)

	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": "image-task"},
		Item: storage.TaskItem(&domain.Task{
			TaskID: "image-task", Status: domain.TaskPublished, CreatedAt: clock.Now(),
			Payload: domain.TaskPayload{BlobKey: "media/photo.png"},
		}),
	}))

	tasks, _, err := mgr.ListAvailable(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "https://example.com/signed", tasks[0].MediaURL)
}

func TestCompleteTranscription_AppliesResultByJobName(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable)

	require.NoError(t, store.Put(context.Background(), storage.PutSpec{
		Table: tasksTable,
		Key:   storage.Item{"taskId": "audio-task"},
		Item: storage.TaskItem(&domain.Task{
			TaskID: "audio-task", Status: domain.TaskCreated, CreatedAt: clock.Now(),
			TranscriptionJobName: "transcribe-audio-task",
			TranscriptionStatus:  domain.TranscriptionPending,
		}),
	}))

	updated, err := mgr.CompleteTranscription(context.Background(), "transcribe-audio-task", true, "hello world", "")
	require.NoError(t, err)
	require.NotNil(t, updated)

	it, found, err := store.Get(context.Background(), tasksTable, storage.Item{"taskId": "audio-task"})
	require.NoError(t, err)
	require.True(t, found)
	tsk := storage.TaskFromItem(it)
	assert.Equal(t, domain.TranscriptionCompleted, tsk.TranscriptionStatus)
	assert.Equal(t, "hello world", tsk.AITranscription)
}

func TestCompleteTranscription_UnknownJobIsNoop(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	mgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable)

	updated, err := mgr.CompleteTranscription(context.Background(), "nope", true, "text", "")
	require.NoError(t, err)
	assert.Nil(t, updated)
}
