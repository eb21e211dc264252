package pipeline

import (
	"errors"
	"net/http"
)

// Kind classifies a pipeline failure for callers and user messaging.
type Kind string

// Failure kinds.
const (
	KindInvalid     Kind = "invalid_request"
	KindConfig      Kind = "config"
	KindAuth        Kind = "auth"
	KindUpstream    Kind = "upstream"
	KindEnrichment  Kind = "enrichment"
	KindPersistence Kind = "persistence"
)

var userMessages = map[Kind]string{
	KindInvalid:     "The request is missing the OAB number or jurisdiction.",
	KindConfig:      "The publication service is not configured: credentials or office id are missing.",
	KindAuth:        "The publication provider rejected the configured credentials.",
	KindUpstream:    "The publication provider is unavailable. Try again later.",
	KindEnrichment:  "The process enrichment provider is unavailable. Try again later.",
	KindPersistence: "The results could not be saved. Re-running the sync is safe.",
}

// Error is a classified pipeline failure. Message is safe to show to users;
// Err and Status keep the detail operators need.
type Error struct {
	Kind    Kind
	Message string
	Status  int // upstream HTTP status, 0 when not applicable
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "pipeline: " + string(e.Kind) + ": " + e.Message
	}
	return "pipeline: " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus is the status an HTTP entry point should answer with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalid:
		return http.StatusBadRequest
	case KindAuth, KindUpstream, KindEnrichment:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Message: userMessages[kind], Status: status, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// UserMessage returns the human-readable message for err.
func UserMessage(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "Unexpected error while syncing publications."
}
