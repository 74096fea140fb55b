package fraud_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/fraud"
	"github.com/crowdtask-platform/engine/storage"
	"github.com/crowdtask-platform/engine/storage/memory"
)

const submissionsTable = "Submissions"

func putSubmission(t *testing.T, store storage.Store, id, workerID, taskID, answer string, submittedAt int64) {
	t.Helper()
	err := store.Put(context.Background(), storage.PutSpec{
		Table: submissionsTable,
		Key:   storage.Item{"submissionId": id},
		Item: storage.Item{
			"submissionId": id,
			"workerId":     workerID,
			"taskId":       taskID,
			"answer":       answer,
			"submittedAt":  submittedAt,
		},
	})
	require.NoError(t, err)
}

func TestCheckSubmission_CopyPaste(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	now := clock.Now().Unix()

	putSubmission(t, store, "s1", "w1", "task-a", "the cat sat on the mat", now-10)

	d := fraud.New(store, clock, submissionsTable)
	res := d.CheckSubmission(context.Background(), "w1", "the cat sat on the mat", "task-b")

	assert.True(t, res.IsFraud)
	assert.Equal(t, 1.0, res.FraudScore)
}

func TestCheckSubmission_SelfTaskIsNotCopyPaste(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	now := clock.Now().Unix()

	putSubmission(t, store, "s1", "w1", "task-a", "identical answer", now-10)

	d := fraud.New(store, clock, submissionsTable)
	res := d.CheckSubmission(context.Background(), "w1", "identical answer", "task-a")

	assert.False(t, res.IsFraud)
}

func TestCheckSubmission_Spam(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}
	now := clock.Now().Unix()

	for i, id := range []string{"s1", "s2", "s3"} {
		putSubmission(t, store, id, "w1", "task-"+id, "answer", now-int64(i))
	}

	d := fraud.New(store, clock, submissionsTable)
	res := d.CheckSubmission(context.Background(), "w1", "totally different text here", "task-new")

	assert.True(t, res.IsFraud)
	assert.Equal(t, 0.8, res.FraudScore)
}

func TestCheckSubmission_BotTiming(t *testing.T) {
	store := memory.New()
	base := int64(1_700_000_000)
	clock := &common.FixedClock{At: time.Unix(base, 0)}

	// Six submissions 10s apart, highly regular -> bot pattern.
	for i := 0; i < 6; i++ {
		putSubmission(t, store, "s"+string(rune('0'+i)), "w1", "task-"+string(rune('0'+i)), "ans", base-int64(i*10))
	}

	d := fraud.New(store, clock, submissionsTable)
	res := d.CheckSubmission(context.Background(), "w1", "yet another unrelated answer text", "task-new")

	assert.True(t, res.IsFraud)
	assert.Equal(t, 0.9, res.FraudScore)
}

func TestCheckSubmission_Clean(t *testing.T) {
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}

	d := fraud.New(store, clock, submissionsTable)
	res := d.CheckSubmission(context.Background(), "w-new", "a brand new answer", "task-x")

	assert.False(t, res.IsFraud)
	assert.Equal(t, 0.0, res.FraudScore)
}
