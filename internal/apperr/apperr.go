// Package apperr defines the error taxonomy shared by the store, the access
// gate and the retrieval pipeline. Every failure that crosses the external
// boundary is one of these kinds with a human-readable message; internal
// detail stays wrapped underneath and is only ever logged.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	Unauthorized            Kind = "unauthorized"             // bad or missing credential
	Forbidden               Kind = "forbidden"                // credential valid, tenant/user mismatch
	NotFound                Kind = "not_found"                // entry or user absent
	ClassificationDefaulted Kind = "classification_defaulted" // non-fatal, classifier fell back
	UpstreamFetchFailure    Kind = "upstream_fetch_failure"   // domain refresh failed, cache may still serve
	SummarizationFailure    Kind = "summarization_failure"    // fatal to the single retrieval
	Internal                Kind = "internal"                 // anything else
)

// Error carries a kind and a message safe to show to callers.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New builds an Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause. The cause is kept for logs and errors.Is/As but
// never rendered across the external boundary.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// KindOf extracts the kind from err, or Internal when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
