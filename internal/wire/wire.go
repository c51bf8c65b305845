package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const (
	version byte = 1
	hdrLen       = 4 + 1 + 1 + 4
)

var (
	ErrCorrupt  = errors.New("rescache: corrupt entry")
	ErrTooLarge = errors.New("rescache: payload exceeds frame limit")
	magic4      = [...]byte{'R', 'S', 'C', '1'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames a codec payload:
//
//	magic(4) | ver(1) | codec(1) | vlen(u32 be) | payload(vlen)
func Encode(codecID byte, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, ErrTooLarge
	}
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(codecID)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decode validates a frame and returns the codec ID and a payload slice that
// aliases b. Trailing bytes are treated as corruption.
func Decode(b []byte) (codecID byte, payload []byte, err error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return 0, nil, ErrCorrupt
	}
	codecID = b[5]
	off := 6

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact length, no trailing junk
		return 0, nil, ErrCorrupt
	}
	return codecID, b[off : off+vlen], nil
}
