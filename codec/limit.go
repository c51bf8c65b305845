package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned for payloads above a Limit.
var ErrTooLarge = errors.New("codec: payload exceeds limit")

// Limit caps payload size in both directions. Encode refuses values that a
// reader with the same cap would reject; Decode refuses oversized input
// before Inner sees it. Max <= 0 disables the cap.
type Limit[V any] struct {
	Inner Codec[V]
	Max   int
}

func NewLimit[V any](inner Codec[V], maxBytes int) Limit[V] {
	return Limit[V]{Inner: inner, Max: maxBytes}
}

// ID reports the wrapped codec's ID; the cap does not change the encoding.
func (l Limit[V]) ID() byte { return IDOf(l.Inner) }

func (l Limit[V]) Encode(v V) ([]byte, error) {
	b, err := l.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if err := l.check(len(b)); err != nil {
		return nil, err
	}
	return b, nil
}

func (l Limit[V]) Decode(b []byte) (V, error) {
	if err := l.check(len(b)); err != nil {
		var zero V
		return zero, err
	}
	return l.Inner.Decode(b)
}

func (l Limit[V]) check(n int) error {
	if l.Max > 0 && n > l.Max {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, n, l.Max)
	}
	return nil
}
