package fedsearch

import (
	"errors"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrUnknownResource        = domain.ErrUnknownResource
	ErrSearchCancelled        = domain.ErrSearchCancelled
	ErrNotFound               = domain.ErrNotFound
	ErrInvalidLifetime        = domain.ErrInvalidLifetime
	ErrInvalidID              = domain.ErrInvalidID
	ErrDisposed               = domain.ErrDisposed
	ErrDetached               = domain.ErrDetached
	ErrRecordNotFound         = domain.ErrRecordNotFound
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)

// ErrIDTaken is returned by PutAside when a mandatory id is already in use.
var ErrIDTaken = errors.New("fedsearch: result set id taken")

// CancelMessage returns the user-facing message of a hook cancellation, if err is one.
func CancelMessage(err error) (string, bool) {
	var ce *domain.CancelError
	if errors.As(err, &ce) {
		return ce.Message, true
	}
	return "", false
}
