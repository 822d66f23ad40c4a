package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/gregorybednov/ledgerflow/failure"
)

const retryAfter = "1"

func newRequestID() string { return "req_" + uuid.NewString() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"request_id": newRequestID(),
		"error":      map[string]any{"code": code, "message": message},
	})
}

// writeFailure reports a protocol outcome with a status matching its code.
// Codes a fresh proposal may get past carry a Retry-After hint.
func writeFailure(w http.ResponseWriter, err error) {
	code := failure.CodeOf(err)
	if code.Retryable() {
		w.Header().Set("Retry-After", retryAfter)
	}
	status := http.StatusInternalServerError
	switch code {
	case failure.CodeContractViolation, failure.CodePolicyRejection, failure.CodeNotaryRejection:
		status = http.StatusUnprocessableEntity
	case failure.CodeInvalidProposal:
		status = http.StatusBadRequest
	case failure.CodeConflictingConsumption:
		status = http.StatusConflict
	case failure.CodeProtocolTimeout:
		status = http.StatusGatewayTimeout
	case failure.CodeTransportFailure:
		status = http.StatusBadGateway
	}
	writeError(w, status, string(code), err.Error())
}
