package cache

import "errors"

var (
	// ErrStoreUnavailable marks failures of the key-value store itself. The adapter has
	// already logged them and callers treat them as a miss.
	ErrStoreUnavailable = errors.New("cache store unavailable")

	// ErrSerialization marks values or parameters that cannot be encoded, and stored
	// values that cannot be decoded. These must reach the caller.
	ErrSerialization = errors.New("cache serialization failed")

	// ErrInvalidKeyPart is returned when an operation name or tenant id could forge
	// the key delimiter.
	ErrInvalidKeyPart = errors.New("invalid cache key component")
)

// Result is the outcome of a store call. OK means "hit" for reads, "done" for writes and
// "at least one key removed" for deletes. Err is informational unless Fatal reports true.
type Result[T any] struct {
	Value T
	OK    bool
	Err   error
}

// Fatal reports whether the failure must be propagated instead of degrading to a miss.
func (r Result[T]) Fatal() bool {
	return errors.Is(r.Err, ErrSerialization)
}

func failed[T any](err error) Result[T] {
	return Result[T]{Err: err}
}
