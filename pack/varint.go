package pack

import (
	"fmt"

	"github.com/lukasojd/puregit/giterr"
)

// encodeSizeVarint encodes a delta-stream base/target size: LEB128,
// least-significant 7-bit group first, continuation bit set on every
// byte but the last (spec.md §4.F "varint(base_size)", grounded on
// go-git's diff_delta.go deltaEncodeSize — distinct from the OFS
// negative-offset scheme in common.go, which uses an MSB-first
// decrement trick instead).
func encodeSizeVarint(v uint64) []byte {
	c := byte(v & 0x7f)
	v >>= 7
	var out []byte
	for v != 0 {
		out = append(out, c|0x80)
		c = byte(v & 0x7f)
		v >>= 7
	}
	out = append(out, c)
	return out
}

// decodeSizeVarint inverts encodeSizeVarint, reading from r.
func decodeSizeVarint(r byteReader) (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: truncated varint: %v", giterr.ErrInvalidDelta, err)
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("%w: varint too long", giterr.ErrInvalidDelta)
		}
	}
}
