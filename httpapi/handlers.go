package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/task"
)

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return common.New(common.InvalidInput, "empty request body")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.Wrap(common.InvalidInput, err, "malformed request body")
	}
	return nil
}

// --- requester routes ---

type createBatchTaskInput struct {
	Type          string          `json:"type"`
	Reward        decimal.Decimal `json:"reward"`
	BlobKey       string          `json:"blobKey"`
	IsGold        bool            `json:"isGold"`
	GoldAnswer    string          `json:"goldAnswer"`
	RequiredLevel string          `json:"requiredLevel"`
	PublishAt     *string         `json:"publishAt"`
}

type createBatchRequest struct {
	Tasks []createBatchTaskInput `json:"tasks"`
}

type createBatchResponse struct {
	BatchID string `json:"batchId"`
	Count   int    `json:"count"`
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, ok := s.requirePrincipal(w, r, RoleRequester)
	if !ok {
		return
	}

	var req createBatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	inputs := make([]task.Input, 0, len(req.Tasks))
	for _, in := range req.Tasks {
		input := task.Input{
			Type:          in.Type,
			IsGold:        in.IsGold,
			GoldAnswer:    in.GoldAnswer,
			RequiredLevel: in.RequiredLevel,
		}
		input.Payload.Reward = in.Reward
		input.Payload.BlobKey = in.BlobKey
		if in.PublishAt != nil {
			t, err := parseTime(*in.PublishAt)
			if err != nil {
				writeError(w, common.Wrap(common.InvalidInput, err, "invalid publishAt"))
				return
			}
			input.PublishAt = &t
		}
		inputs = append(inputs, input)
	}

	batchID, count, err := s.tasks.CreateBatch(r.Context(), p.Subject, inputs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createBatchResponse{BatchID: batchID, Count: count})
}

type publishBatchResponse struct {
	Count int `json:"count"`
}

func (s *Server) publishBatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, ok := s.requirePrincipal(w, r, RoleRequester); !ok {
		return
	}

	count, err := s.tasks.PublishBatch(r.Context(), ps.ByName("batchId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publishBatchResponse{Count: count})
}

// --- worker routes ---

type availableTaskResponse struct {
	TaskID        string          `json:"taskId"`
	Type          string          `json:"type"`
	Reward        decimal.Decimal `json:"reward"`
	RequiredLevel string          `json:"requiredLevel,omitempty"`
	Locked        bool            `json:"locked"`
}

type listWorkerTasksResponse struct {
	Level string                  `json:"level"`
	Tasks []availableTaskResponse `json:"tasks"`
}

func (s *Server) listWorkerTasks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, ok := s.requirePrincipal(w, r, RoleWorker)
	if !ok {
		return
	}

	tasks, level, err := s.tasks.ListAvailable(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]availableTaskResponse, 0, len(tasks))
	for _, at := range tasks {
		out = append(out, availableTaskResponse{
			TaskID:        at.Task.TaskID,
			Type:          at.Task.Type,
			Reward:        at.Task.Payload.Reward,
			RequiredLevel: at.Task.RequiredLevel,
			Locked:        at.Locked,
		})
	}
	writeJSON(w, http.StatusOK, listWorkerTasksResponse{Level: string(level), Tasks: out})
}

func (s *Server) assignTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, ok := s.requirePrincipal(w, r, RoleWorker)
	if !ok {
		return
	}

	assignment, err := s.assignment.Assign(r.Context(), ps.ByName("taskId"), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type submitAnswerRequest struct {
	AssignmentID string `json:"assignmentId"`
	Answer       string `json:"answer"`
}

func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, ok := s.requirePrincipal(w, r, RoleWorker)
	if !ok {
		return
	}

	var req submitAnswerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sub, err := s.submission.Submit(r.Context(), ps.ByName("taskId"), p.Subject, req.AssignmentID, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type openDisputeRequest struct {
	SubmissionID string `json:"submissionId"`
	Reason       string `json:"reason"`
}

func (s *Server) openDispute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, ok := s.requirePrincipal(w, r, RoleWorker)
	if !ok {
		return
	}

	var req openDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	d, err := s.dispute.Open(r.Context(), p.Subject, req.SubmissionID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// --- admin routes ---

type resolveDisputeRequest struct {
	Decision   string `json:"decision"`
	AdminNotes string `json:"adminNotes"`
}

func (s *Server) resolveDispute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, ok := s.requirePrincipal(w, r, RoleAdmin); !ok {
		return
	}

	var req resolveDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	d, err := s.dispute.Resolve(r.Context(), ps.ByName("disputeId"), req.Decision, req.AdminNotes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type requesterPayoutTotalResponse struct {
	RequesterID string `json:"requesterId"`
	Total       string `json:"total"`
}

func (s *Server) requesterPayoutTotal(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, ok := s.requirePrincipal(w, r, RoleAdmin); !ok {
		return
	}

	requesterID := ps.ByName("requesterId")
	total, err := s.reporting.SumByRequester(requesterID)
	if err != nil {
		writeError(w, common.Wrap(common.TransientExternal, err, "reporting query failed"))
		return
	}
	writeJSON(w, http.StatusOK, requesterPayoutTotalResponse{RequesterID: requesterID, Total: total})
}

// --- internal webhooks ---

// transcriptionEventRequest mirrors the detail payload of an EventBridge
// "Transcribe Job State Change" event, per process_transcription.py.
type transcriptionEventRequest struct {
	Detail struct {
		TranscriptionJobName   string `json:"TranscriptionJobName"`
		TranscriptionJobStatus string `json:"TranscriptionJobStatus"`
		FailureReason          string `json:"FailureReason"`
		Transcript             string `json:"Transcript"`
	} `json:"detail"`
}

func (s *Server) transcriptionEvent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req transcriptionEventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Detail.TranscriptionJobName == "" {
		writeError(w, common.New(common.InvalidInput, "missing TranscriptionJobName"))
		return
	}

	succeeded := req.Detail.TranscriptionJobStatus == "COMPLETED"
	if _, err := s.tasks.CompleteTranscription(r.Context(), req.Detail.TranscriptionJobName, succeeded, req.Detail.Transcript, req.Detail.FailureReason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// --- wallet routes ---

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, ok := s.requirePrincipal(w, r, "")
	if !ok {
		return
	}

	wallet, err := s.wallet.Get(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, ok := s.requirePrincipal(w, r, "")
	if !ok {
		return
	}

	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	txn, err := s.wallet.Deposit(r.Context(), p.Subject, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

type withdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PayoutEmail string          `json:"payoutEmail"`
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, ok := s.requirePrincipal(w, r, "")
	if !ok {
		return
	}

	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	txn, err := s.wallet.Withdraw(r.Context(), p.Subject, req.PayoutEmail, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}
