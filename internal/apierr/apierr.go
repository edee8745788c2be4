// Package apierr defines the error taxonomy shared by the relay client and
// the HTTP API: typed errors that carry a Kind (which the API maps to an
// HTTP status) and a client-safe message separate from the wrapped cause.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for logging and HTTP status mapping.
type Kind int

const (
	KindNetwork Kind = iota
	KindProtocol
	KindNotFound
	KindPersistence
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying its Kind and an optional wrapped cause.
// Client is the message safe to return over the API; it must never include
// relay URLs, raw pubkeys beyond the one requested, or internal details.
type Error struct {
	Kind   Kind
	Client string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("apierr: %s: %s: %v", e.Kind, e.Client, e.Cause)
	}
	return fmt.Sprintf("apierr: %s: %s", e.Kind, e.Client)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind.
func New(kind Kind, client string, cause error) *Error {
	return &Error{Kind: kind, Client: client, Cause: cause}
}

// NotFound builds a KindNotFound error for a missing key or resource.
func NotFound(client string) *Error {
	return New(KindNotFound, client, nil)
}

// Network builds a KindNetwork error wrapping a relay I/O failure.
func Network(client string, cause error) *Error {
	return New(KindNetwork, client, cause)
}

// Protocol builds a KindProtocol error for a malformed relay frame.
func Protocol(client string, cause error) *Error {
	return New(KindProtocol, client, cause)
}

// Persistence builds a KindPersistence error for a mirror write failure.
func Persistence(client string, cause error) *Error {
	return New(KindPersistence, client, cause)
}

// Internal builds a KindInternal error for an invariant violation. Callers
// should log these with a "[INTERNAL]" prefix; they are alert-worthy.
func Internal(client string, cause error) *Error {
	return New(KindInternal, client, cause)
}

// As is a thin wrapper over errors.As for callers that want the typed form
// without importing errors directly alongside this package.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
