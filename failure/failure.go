// Package failure holds the error taxonomy shared by the verifier, the
// signing protocol and the notary. Every terminal outcome of a proposal is
// reported as an *Error carrying one of the codes below.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Code is a machine-readable failure code. It travels on the wire inside
// signature rejections, so values must stay stable.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Transaction is invalid under the contract rules. Fix and rebuild.
	CodeContractViolation Code = "CONTRACT_VIOLATION"
	// A responder's local business rule refused to sign.
	CodePolicyRejection Code = "POLICY_REJECTION"
	// A counterparty did not answer in time.
	CodeProtocolTimeout Code = "PROTOCOL_TIMEOUT"
	// The notary saw one of the inputs consumed by another transaction.
	CodeConflictingConsumption Code = "CONFLICTING_CONSUMPTION"
	// A session could not be opened or broke mid-exchange.
	CodeTransportFailure Code = "TRANSPORT_FAILURE"
	// The notary refused the transaction for a reason other than a conflict.
	CodeNotaryRejection Code = "NOTARY_REJECTION"
	// A malformed or inconsistent protocol message.
	CodeInvalidProposal Code = "INVALID_PROPOSAL"
)

// Retryable reports whether a fresh proposal built from the same ledger
// view may succeed. Conflicts need the caller to re-read the ledger first.
func (c Code) Retryable() bool {
	switch c {
	case CodeProtocolTimeout, CodeTransportFailure:
		return true
	default:
		return false
	}
}

// Error is the domain error type.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a failure with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a failure around an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// With returns a copy of e with key set in its metadata.
func (e *Error) With(key, value string) *Error {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	return &Error{Code: e.Code, Message: e.Message, Metadata: md, Cause: e.Cause}
}

// CodeOf extracts the failure code from err. Deadline errors that never got
// classified are reported as timeouts.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeProtocolTimeout
	}
	return CodeUnknown
}

// Has reports whether err carries code.
func Has(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
