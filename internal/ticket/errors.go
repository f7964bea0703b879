package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rickshauling/ticketdrop/internal/shared/requestid"
)

var (
	ErrNotFound          = errors.New("ticket not found")
	ErrDuplicate         = errors.New("ticket number already in use")
	ErrUnknownField      = errors.New("unknown or immutable field")
	ErrSequenceExhausted = errors.New("daily ticket sequence exhausted")
)

// ValidationError carries every issue a stage profile found.
type ValidationError struct {
	Result Result
}

func (e *ValidationError) Error() string {
	if len(e.Result.Errors) == 0 {
		return fmt.Sprintf("%s validation failed", e.Result.Stage)
	}
	first := e.Result.Errors[0]
	if len(e.Result.Errors) == 1 {
		return fmt.Sprintf("%s validation failed: %s: %s", e.Result.Stage, first.Field, first.Message)
	}
	return fmt.Sprintf("%s validation failed: %s: %s (and %d more)", e.Result.Stage, first.Field, first.Message, len(e.Result.Errors)-1)
}

// StateError is an illegal lifecycle move.
type StateError struct {
	Number string
	State  State
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("ticket %s: cannot %s from state %s", e.Number, e.Action, e.State)
}

// StoreError means the record store failed or refused a write. The core
// never retries these.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	RequestID string  `json:"request_id,omitempty"`
	Errors    []Issue `json:"errors,omitempty"`
	Warnings  []Issue `json:"warnings,omitempty"`
}

func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeAPIError(w, status, apiError{Code: code, Message: message, RequestID: requestid.Get(r.Context())})
}

func writeAPIError(w http.ResponseWriter, status int, e apiError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErrorResponse{Error: e})
}

// WriteDomainError maps the lifecycle error taxonomy onto HTTP.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) bool {
	rid := requestid.Get(r.Context())

	var ve *ValidationError
	var st *StateError
	var se *StoreError
	switch {
	case errors.As(err, &ve):
		writeAPIError(w, http.StatusUnprocessableEntity, apiError{
			Code: "validation_error", Message: ve.Error(), RequestID: rid,
			Errors: ve.Result.Errors, Warnings: ve.Result.Warnings,
		})
	case errors.As(err, &st):
		writeAPIError(w, http.StatusConflict, apiError{Code: "invalid_state", Message: st.Error(), RequestID: rid})
	case errors.Is(err, ErrNotFound):
		writeAPIError(w, http.StatusNotFound, apiError{Code: "not_found", Message: "ticket not found", RequestID: rid})
	case errors.Is(err, ErrUnknownField):
		writeAPIError(w, http.StatusBadRequest, apiError{Code: "unknown_field", Message: err.Error(), RequestID: rid})
	case errors.As(err, &se):
		writeAPIError(w, http.StatusServiceUnavailable, apiError{Code: "store_unavailable", Message: "record store unavailable", RequestID: rid})
	default:
		return false
	}
	return true
}
