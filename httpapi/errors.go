package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crowdtask-platform/engine/common"
)

var errMissingIdentity = errors.New("missing caller identity")

// statusFor maps a common.Kind to the HTTP status a handler should
// return. PreconditionFailed is surfaced as 409 (Conflict) rather than
// 400, matching the Assignment race outcome: one 200, all others 409.
func statusFor(err error) int {
	switch common.KindOf(err) {
	case common.NotFound:
		return http.StatusNotFound
	case common.Unauthorized:
		return http.StatusForbidden
	case common.InvalidInput:
		return http.StatusBadRequest
	case common.PreconditionFailed:
		return http.StatusConflict
	case common.InsufficientFunds:
		return http.StatusBadRequest
	case common.TransientExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
