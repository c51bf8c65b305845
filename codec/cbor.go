package codec

import (
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// CBOR is a Codec that serializes values using fxamacker/cbor.
// The zero value is ready to use with preferred (unsorted) encoding; use
// NewCBOR(true) for RFC 8949 core deterministic encoding.
//
// Time values are encoded as RFC3339Nano strings and untyped maps decode as
// map[string]any, which keeps entries readable from JSON-minded consumers.
type CBOR[V any] struct {
	m *cborModes
}

type cborModes struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

var defaultCBOR = sync.OnceValues(func() (*cborModes, error) { return newCBORModes(false) })

func newCBORModes(deterministic bool) (*cborModes, error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		return nil, err
	}
	return &cborModes{enc: em, dec: dm}, nil
}

func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	m, err := newCBORModes(deterministic)
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{m: m}, nil
}

// MustCBOR is like NewCBOR but panics on error.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) modes() (*cborModes, error) {
	if c.m != nil {
		return c.m, nil
	}
	return defaultCBOR()
}

func (c CBOR[V]) ID() byte { return IDCBOR }

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	m, err := c.modes()
	if err != nil {
		return nil, err
	}
	return m.enc.Marshal(v)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	m, err := c.modes()
	if err != nil {
		return v, err
	}
	err = m.dec.Unmarshal(b, &v)
	return v, err
}
