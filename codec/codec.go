package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Identifier is implemented by codecs that carry a stable wire ID.
// The ID is written into every stored frame so that a reader configured with
// a different codec rejects the entry instead of misdecoding it.
type Identifier interface {
	ID() byte
}

// Stable codec IDs. Never renumber: values written by one process must be
// readable by another running the same encoding version.
const (
	IDUnknown  byte = 0
	IDBytes    byte = 1
	IDString   byte = 2
	IDJSON     byte = 3
	IDMsgpack  byte = 4
	IDCBOR     byte = 5
	IDProtobuf byte = 6
)

// IDOf returns c's wire ID or IDUnknown.
func IDOf(c any) byte {
	if id, ok := c.(Identifier); ok {
		return id.ID()
	}
	return IDUnknown
}
