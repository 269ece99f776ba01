package hybridcache

import (
	"errors"
	"fmt"

	"github.com/goforj/hybridcache/cachecore"
)

var (
	// ErrBackendUnavailable is returned when a write names a backend that is not configured or failed to initialise.
	ErrBackendUnavailable = errors.New("cache: backend unavailable")
	// ErrSerialization wraps serializer and security hook failures.
	ErrSerialization = errors.New("cache: serialization failed")
	// ErrBackendIO marks failures raised by a backend's physical store.
	ErrBackendIO = errors.New("cache: backend io failed")
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache: closed")

	// ErrValueTooLarge and ErrCapacityExceeded are re-exported from cachecore.
	ErrValueTooLarge    = cachecore.ErrValueTooLarge
	ErrCapacityExceeded = cachecore.ErrCapacityExceeded
)

// BackendError reports a failed operation on a single backend. It matches
// both ErrBackendIO and the underlying cause with errors.Is.
type BackendError struct {
	Kind cachecore.Kind
	Op   string
	Key  string
	Err  error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache: %s on %s backend: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("cache: %s %q on %s backend: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendIO, e.Err}
}

func backendErr(kind cachecore.Kind, op, key string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Kind: kind, Op: op, Key: key, Err: err}
}

func serializationErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSerialization, op, err)
}
