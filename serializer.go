package rescache

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	c "github.com/unkn0wn-root/rescache/codec"
	"github.com/unkn0wn-root/rescache/internal/wire"
)

// Serializer turns V into framed bytes and back. The frame records the codec
// ID so a reader configured with another codec reports ErrCodecMismatch
// instead of misdecoding.
type Serializer[V any] struct {
	codec c.Codec[V]
	id    byte
}

func NewSerializer[V any](codec c.Codec[V]) Serializer[V] {
	return Serializer[V]{codec: codec, id: c.IDOf(codec)}
}

// Serialize returns nil, nil for an absent value (see isAbsent).
func (s Serializer[V]) Serialize(v V) ([]byte, error) {
	if isAbsent(v) {
		return nil, nil
	}
	payload, err := s.codec.Encode(v)
	if err != nil {
		return nil, &SerializationError{Type: typeName[V](), Err: err}
	}
	return wire.Encode(s.id, payload)
}

// Deserialize returns the zero value for empty input.
func (s Serializer[V]) Deserialize(b []byte) (V, error) {
	var zero V
	if len(b) == 0 {
		return zero, nil
	}
	id, payload, err := wire.Decode(b)
	if err != nil {
		return zero, err
	}
	if id != s.id {
		return zero, fmt.Errorf("%w: stored codec %d, configured %d", ErrCodecMismatch, id, s.id)
	}
	return s.codec.Decode(payload)
}

// isAbsent reports values that are never written: nil pointers, maps, slices,
// interfaces, channels and funcs.
func isAbsent[V any](v V) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

func typeName[V any]() string {
	return reflect.TypeOf((*V)(nil)).Elem().String()
}

var (
	jsonMarshalerType   = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	binaryMarshalerType = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()
)

// checkSerializable rejects value types that no codec can encode: types that
// contain channels, funcs or unsafe pointers in an exported, non-skipped field.
// Types that marshal themselves are trusted.
func checkSerializable[V any]() error {
	t := reflect.TypeOf((*V)(nil)).Elem()
	if bad := unsupported(t, map[reflect.Type]bool{}); bad != nil {
		return &SerializationError{
			Type: t.String(),
			Err:  errors.New("contains " + bad.String()),
		}
	}
	return nil
}

func unsupported(t reflect.Type, seen map[reflect.Type]bool) reflect.Type {
	if seen[t] {
		return nil
	}
	seen[t] = true
	if t.Implements(jsonMarshalerType) || t.Implements(binaryMarshalerType) {
		return nil
	}
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return t
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return unsupported(t.Elem(), seen)
	case reflect.Map:
		if bad := unsupported(t.Key(), seen); bad != nil {
			return bad
		}
		return unsupported(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || skipped(f.Tag) {
				continue
			}
			if bad := unsupported(f.Type, seen); bad != nil {
				return bad
			}
		}
	}
	return nil
}

func skipped(tag reflect.StructTag) bool {
	for _, k := range [...]string{"json", "msgpack", "cbor"} {
		if name, _, _ := strings.Cut(tag.Get(k), ","); name == "-" {
			return true
		}
	}
	return false
}
