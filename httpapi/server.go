// Package httpapi implements the HTTP boundary: one `httprouter.Router`
// wrapped in `github.com/rs/cors` for browser callers, with every route
// a thin adapter onto the domain packages that already implement each
// operation's real logic. Caller identity is resolved by a pluggable
// IdentityExtractor rather than parsed here; auth itself is out of
// scope.
package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/crowdtask-platform/engine/assignment"
	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/dispute"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/metrics"
	"github.com/crowdtask-platform/engine/reporting"
	"github.com/crowdtask-platform/engine/submission"
	"github.com/crowdtask-platform/engine/task"
	"github.com/crowdtask-platform/engine/wallet"
)

// Server holds every domain dependency the routes below call through.
type Server struct {
	tasks *task.Manager
	assignment *assignment.Manager
	submission *submission.Manager
	dispute *dispute.Manager
	wallet *wallet.Ledger

	// reporting is optional; the admin payout-totals route 404s without
	// one instead of panicking, the same nil-is-disabled convention
	// payment.Engine.UseReporting already establishes.
	reporting *reporting.Mirror

	identity IdentityExtractor
	log *log.Logger
}

func New(tasks *task.Manager, assignmentManager *assignment.Manager, submissionManager *submission.Manager, disputeManager *dispute.Manager, walletLedger *wallet.Ledger) *Server {
	return &Server{
		tasks: tasks,
		assignment: assignmentManager,
		submission: submissionManager,
		dispute: disputeManager,
		wallet: walletLedger,
		identity: HeaderIdentityExtractor,
		log: log.New("httpapi"),
	}
}

// UseReporting wires the optional admin reporting endpoint.
func (s *Server) UseReporting(m *reporting.Mirror) *Server {
	s.reporting = m
	return s
}

// UseIdentityExtractor overrides the default header-trusting extractor
// with a real upstream auth integration.
func (s *Server) UseIdentityExtractor(extractor IdentityExtractor) *Server {
	s.identity = extractor
	return s
}

// Handler builds the full route table behind a CORS-wrapping handler,
// ready to pass to http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	router.POST("/requester/tasks", s.createBatch)
	router.POST("/requester/batches/:batchId/publish", s.publishBatch)

	router.GET("/worker/tasks", s.listWorkerTasks)
	router.POST("/worker/tasks/:taskId/assign", s.assignTask)
	router.POST("/worker/tasks/:taskId/submit", s.submitAnswer)
	router.POST("/worker/disputes", s.openDispute)

	router.POST("/admin/disputes/:disputeId/resolve", s.resolveDispute)
	if s.reporting != nil {
		router.GET("/admin/reporting/requesters/:requesterId/total", s.requesterPayoutTotal)
	}

	router.GET("/wallet", s.getWallet)
	router.POST("/wallet/deposit", s.deposit)
	router.POST("/wallet/withdraw", s.withdraw)

	// internal/transcription-events receives the EventBridge "Transcribe
	// Job State Change" notification the original wires as a direct
	// Lambda trigger; this daemon has no Lambda event source to attach
	// to, so the same payload is delivered as a webhook instead,
	// expected to be called from an EventBridge API destination rule.
	router.POST("/internal/transcription-events", s.transcriptionEvent)

	router.Handler(http.MethodGet, "/metrics", metrics.Handler())

	return cors.New(cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", "X-Subject-Id", "X-Role"},
		}).Handler(router)
}

// requirePrincipal extracts the caller's identity and, if role is
// non-empty, rejects a mismatched one as Unauthorized.
func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request, role Role) (*Principal, bool) {
	p, err := s.identity(r)
	if err != nil {
		writeError(w, common.New(common.Unauthorized, "missing or invalid caller identity"))
		return nil, false
	}
	if role != "" && p.Role != role {
		writeError(w, common.New(common.Unauthorized, "caller is not a "+string(role)))
		return nil, false
	}
	return p, true
}
