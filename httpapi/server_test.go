package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdtask-platform/engine/assignment"
	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/dispute"
	"github.com/crowdtask-platform/engine/domain"
	"github.com/crowdtask-platform/engine/gamification"
	"github.com/crowdtask-platform/engine/httpapi"
	"github.com/crowdtask-platform/engine/payment"
	"github.com/crowdtask-platform/engine/queue/memqueue"
	"github.com/crowdtask-platform/engine/storage/memory"
	"github.com/crowdtask-platform/engine/submission"
	"github.com/crowdtask-platform/engine/task"
	"github.com/crowdtask-platform/engine/trigger"
	"github.com/crowdtask-platform/engine/wallet"
)

const (
	tasksTable       = "Tasks"
	workersTable     = "Workers"
	assignmentsTable = "Assignments"
	submissionsTable = "Submissions"
	disputesTable    = "Disputes"
	walletsTable     = "Wallets"
	transactionsTable = "Transactions"
)

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()
	store := memory.New()
	clock := &common.FixedClock{At: time.Unix(1_700_000_000, 0)}

	paymentEngine := payment.New(store, nil, tasksTable, submissionsTable, walletsTable, transactionsTable, domain.PlatformWalletID, decimal.NewFromFloat(0.1))
	gamificationEngine := gamification.New(store, workersTable)
	dispatcher := trigger.New(store, tasksTable, paymentEngine, gamificationEngine)

	taskMgr := task.New(store, clock, memqueue.New(10), tasksTable, workersTable)
	assignmentMgr := assignment.New(store, clock, tasksTable, assignmentsTable, time.Hour)
	submissionMgr := submission.New(store, clock, memqueue.New(10), tasksTable, assignmentsTable, submissionsTable)
	disputeMgr := dispute.New(store, clock, paymentEngine, dispatcher, disputesTable, submissionsTable, 72*time.Hour)
	ledger := wallet.New(store, clock, nil, walletsTable, transactionsTable, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(1000))

	return httpapi.New(taskMgr, assignmentMgr, submissionMgr, disputeMgr, ledger)
}

func doRequest(t *testing.T, handler http.Handler, method, path, subject, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if subject != "" {
		req.Header.Set("X-Subject-Id", subject)
		req.Header.Set("X-Role", role)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCreateBatch_RequiresRequesterRole(t *testing.T) {
	handler := newTestServer(t).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/requester/tasks", "worker-1", "worker", map[string]interface{}{
		"tasks": []map[string]interface{}{{"type": "data-validation", "reward": "1.00"}},
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCreateBatchAndPublish_EndToEnd(t *testing.T) {
	handler := newTestServer(t).Handler()

	createRR := doRequest(t, handler, http.MethodPost, "/requester/tasks", "requester-1", "requester", map[string]interface{}{
		"tasks": []map[string]interface{}{
			{"type": "data-validation", "reward": "1.00"},
			{"type": "data-validation", "reward": "1.00"},
		},
	})
	require.Equal(t, http.StatusCreated, createRR.Code)

	var created struct {
		BatchID string `json:"batchId"`
		Count   int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(createRR.Body.Bytes(), &created))
	assert.Equal(t, 2, created.Count)

	publishRR := doRequest(t, handler, http.MethodPost, "/requester/batches/"+created.BatchID+"/publish", "requester-1", "requester", nil)
	require.Equal(t, http.StatusOK, publishRR.Code)

	var published struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(publishRR.Body.Bytes(), &published))
	assert.Equal(t, 2, published.Count)

	listRR := doRequest(t, handler, http.MethodGet, "/worker/tasks", "worker-1", "worker", nil)
	require.Equal(t, http.StatusOK, listRR.Code)

	var listing struct {
		Tasks []struct {
			TaskID string `json:"taskId"`
			Locked bool   `json:"locked"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(listRR.Body.Bytes(), &listing))
	require.Len(t, listing.Tasks, 2)
	assert.False(t, listing.Tasks[0].Locked)
}

func TestAssignTask_SecondCallerGetsConflict(t *testing.T) {
	handler := newTestServer(t).Handler()

	createRR := doRequest(t, handler, http.MethodPost, "/requester/tasks", "requester-1", "requester", map[string]interface{}{
		"tasks": []map[string]interface{}{{"type": "data-validation", "reward": "1.00"}},
	})
	var created struct {
		BatchID string `json:"batchId"`
	}
	require.NoError(t, json.Unmarshal(createRR.Body.Bytes(), &created))
	doRequest(t, handler, http.MethodPost, "/requester/batches/"+created.BatchID+"/publish", "requester-1", "requester", nil)

	listRR := doRequest(t, handler, http.MethodGet, "/worker/tasks", "worker-1", "worker", nil)
	var listing struct {
		Tasks []struct {
			TaskID string `json:"taskId"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(listRR.Body.Bytes(), &listing))
	require.Len(t, listing.Tasks, 1)
	taskID := listing.Tasks[0].TaskID

	firstRR := doRequest(t, handler, http.MethodPost, "/worker/tasks/"+taskID+"/assign", "worker-1", "worker", nil)
	assert.Equal(t, http.StatusOK, firstRR.Code)

	secondRR := doRequest(t, handler, http.MethodPost, "/worker/tasks/"+taskID+"/assign", "worker-2", "worker", nil)
	assert.Equal(t, http.StatusConflict, secondRR.Code)
}

func TestWalletDeposit_ReturnsTransaction(t *testing.T) {
	handler := newTestServer(t).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/wallet/deposit", "requester-1", "requester", map[string]interface{}{
		"amount": "25.00",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var txn struct {
		Type   string `json:"type"`
		Amount string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &txn))
	assert.Equal(t, "DEPOSIT", txn.Type)
}

func TestOpenDispute_UnknownSubmissionIsNotFound(t *testing.T) {
	handler := newTestServer(t).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/worker/disputes", "worker-1", "worker", map[string]interface{}{
		"submissionId": "nope",
		"reason":       "unfair rejection",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
