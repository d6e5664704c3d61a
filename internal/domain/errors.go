package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest signals a malformed query request (programmer error).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrHitlistConflict signals an explicit field hitlist combined with archive resources.
	ErrHitlistConflict = errors.New("explicit hitlist not allowed with archive resources")
	// ErrResourceOrder signals a resource list failing the uniqueness or ordering checks.
	ErrResourceOrder = errors.New("invalid resource list")
	// ErrOutOfRange signals an index outside the declared index space.
	ErrOutOfRange = errors.New("index out of range")
	// ErrDisposed signals use of a disposed result set or one of its rows.
	ErrDisposed = errors.New("result set disposed")
	// ErrDetached signals use of a result set handle that was put aside.
	ErrDetached = errors.New("result set detached")
	// ErrInvalidLifetime signals a side buffer lifetime outside the allowed range.
	ErrInvalidLifetime = errors.New("invalid side buffer lifetime")
	// ErrInvalidID signals a malformed side buffer id.
	ErrInvalidID = errors.New("invalid side buffer id")
	// ErrSearchCancelled signals that a pre-search hook aborted the request.
	ErrSearchCancelled = errors.New("search cancelled")
	// ErrRecordNotFound signals a row identity that no longer resolves to a record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrUnknownResource signals a resource id missing from the catalog.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrNotFound signals a missing side buffer entry at the transport boundary.
	ErrNotFound = errors.New("not found")
)

// CancelError carries the user-facing message of a hook cancellation.
type CancelError struct {
	Message string
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSearchCancelled.Error(), e.Message)
}

func (e *CancelError) Unwrap() error { return ErrSearchCancelled }

// Cancel returns the error a hook uses to abort a search with a user-facing message.
func Cancel(message string) error {
	return &CancelError{Message: message}
}
