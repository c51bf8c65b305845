package rescache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a blank key, a blank or malformed connection
	// string, or a nil dependency. Never retried.
	ErrInvalidArgument = errors.New("rescache: invalid argument")

	// ErrSerializationNotSupported reports a value type (or value) the
	// configured codec cannot encode.
	ErrSerializationNotSupported = errors.New("rescache: serialization not supported")

	// ErrCodecMismatch reports a stored frame written with a different codec.
	ErrCodecMismatch = errors.New("rescache: codec mismatch")

	// ErrClosed is returned by reconnect attempts after Close.
	ErrClosed = errors.New("rescache: manager closed")
)

// SerializationError carries the offending type and the underlying cause.
// errors.Is(err, ErrSerializationNotSupported) holds for every SerializationError.
type SerializationError struct {
	Type string
	Err  error
}

func (e *SerializationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rescache: type %s is not serializable", e.Type)
	}
	return fmt.Sprintf("rescache: type %s is not serializable: %v", e.Type, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationNotSupported
}

func invalidKey(key string) error {
	return fmt.Errorf("%w: key %q is empty or whitespace", ErrInvalidArgument, key)
}

// ReconnectError describes a failed reconnect attempt. It is reported to
// Hooks and logs; Database never returns it.
type ReconnectError struct {
	Attempt uint64
	Err     error
}

func (e *ReconnectError) Error() string {
	return fmt.Sprintf("rescache: reconnect attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *ReconnectError) Unwrap() error { return e.Err }
