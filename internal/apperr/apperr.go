// Package apperr classifies scoring pipeline failures into the kinds the
// HTTP and MCP layers report to callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure.
type Kind string

const (
	KindBadRequest        Kind = "BAD_REQUEST"
	KindInvalidReference  Kind = "INVALID_REFERENCE"
	KindNoChanges         Kind = "NO_CHANGES"
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindUpstream          Kind = "UPSTREAM_ERROR"
	KindEvaluationService Kind = "EVALUATION_SERVICE_ERROR"
	KindEvaluationParse   Kind = "EVALUATION_PARSE_ERROR"
	KindPersistence       Kind = "PERSISTENCE_ERROR"
)

// Error is a classified failure: a kind, the message shown to the caller,
// the HTTP status it maps to and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error

	// Raw holds the unparsed model response for EVALUATION_PARSE_ERROR.
	// It is logged, never returned to callers.
	Raw string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest is a generic client input error (missing field, bad JSON).
func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Status: http.StatusBadRequest}
}

// InvalidReference reports a pull request URL that does not resolve.
func InvalidReference(msg string) *Error {
	return &Error{Kind: KindInvalidReference, Message: msg, Status: http.StatusBadRequest}
}

// NoChanges reports a pull request with no patch-bearing files.
func NoChanges() *Error {
	return &Error{Kind: KindNoChanges, Message: "No code changes found in this PR", Status: http.StatusBadRequest}
}

// NotFound reports a missing stored record.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Status: http.StatusNotFound}
}

// Conflict reports a record that already exists, such as a second
// submission for the same pull request.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg, Status: http.StatusConflict}
}

// Upstream wraps a hosting API failure.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Status: http.StatusBadGateway, Err: err}
}

// EvaluationService wraps a generative-text API failure.
func EvaluationService(err error) *Error {
	return &Error{Kind: KindEvaluationService, Message: "AI evaluation failed", Status: http.StatusInternalServerError, Err: err}
}

// EvaluationParse reports a model response that could not be reduced to
// the expected JSON shape.
func EvaluationParse(err error, raw string) *Error {
	return &Error{Kind: KindEvaluationParse, Message: "Failed to parse evaluation", Status: http.StatusInternalServerError, Err: err, Raw: raw}
}

// Persistence wraps a submission store failure other than "no matching row".
func Persistence(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Status: http.StatusInternalServerError, Err: err}
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// StatusOf returns the HTTP status for err, 500 for unclassified errors.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
