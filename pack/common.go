// Package pack implements the packfile codec of spec.md §4.E/§4.F/§4.G/
// §4.H/§6: the v2 .pack container, delta compression and its inverse,
// the sliding-window pack writer, and the streaming receive path that
// indexes an incoming pack. Grounded on go-git's
// plumbing/format/packfile package (encoder.go's header varint and OFS
// encoding, patch_delta.go's copy/insert instruction decoder).
package pack

import (
	"fmt"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/objectid"
)

// Magic is the pack file signature, "PACK".
var Magic = [4]byte{'P', 'A', 'C', 'K'}

// Version is the only pack format version this module speaks
// (packfile v3 is a Non-goal).
const Version = 2

const (
	firstEntryLengthBits = 4
	maskFirstLength      = 0x0f
	maskContinue         = 0x80
	maskLength           = 0x7f
	lengthBits           = 7
)

// EntryHeader is the parsed per-entry "{type, uncompressed_size}"
// header (spec.md §3 "Pack entry").
type EntryHeader struct {
	Type objectid.ObjectType
	Size int64
}

// encodeEntryHeader writes the variable-length {type, size} header
// (spec.md §6): first byte is "bit7=continuation, bits6..4=type,
// bits3..0=size_low", subsequent bytes each contribute 7 more bits,
// little-endian order.
func encodeEntryHeader(typeCode int, size int64) []byte {
	c := (byte(typeCode) << firstEntryLengthBits) | byte(size&maskFirstLength)
	size >>= firstEntryLengthBits

	var out []byte
	for size != 0 {
		out = append(out, c|maskContinue)
		c = byte(size & maskLength)
		size >>= lengthBits
	}
	out = append(out, c)
	return out
}

// decodeEntryHeader reads a variable-length {type, size} header from r.
func decodeEntryHeader(r byteReader) (EntryHeader, error) {
	b, err := r.ReadByte()
	if err != nil {
		return EntryHeader{}, fmt.Errorf("%w: %v", giterr.ErrCorruptPack, err)
	}

	typeCode := int((b >> firstEntryLengthBits) & 0x07)
	size := int64(b & maskFirstLength)
	shift := uint(firstEntryLengthBits)

	for b&maskContinue != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return EntryHeader{}, fmt.Errorf("%w: %v", giterr.ErrCorruptPack, err)
		}
		size |= int64(b&maskLength) << shift
		shift += lengthBits
	}

	t := objectid.ObjectTypeFromPackCode(typeCode)
	if t == objectid.InvalidObject {
		return EntryHeader{}, fmt.Errorf("%w: unknown entry type code %d", giterr.ErrCorruptPack, typeCode)
	}

	return EntryHeader{Type: t, Size: size}, nil
}

type byteReader interface {
	ReadByte() (byte, error)
}

// encodeOffset encodes the OFS delta negative offset using Git's
// continuation scheme: base 128 digits, most significant first, with an
// "(x-1)" decrement applied between bytes so the encoding is injective
// (spec.md §4.E/§4.G "OFS encoding").
func encodeOffset(v int64) []byte {
	if v < 0 {
		panic("pack: negative OFS offset encode called with negative value")
	}
	var stack []byte
	stack = append(stack, byte(v&0x7f))
	v >>= 7
	for v != 0 {
		v--
		stack = append(stack, byte(v&0x7f)|0x80)
		v >>= 7
	}
	// stack was built least-significant-digit first; emit most
	// significant first with the continuation bit on every byte but
	// the last.
	out := make([]byte, len(stack))
	for i, b := range stack {
		out[len(stack)-1-i] = b
	}
	for i := 0; i < len(out)-1; i++ {
		out[i] |= 0x80
	}
	out[len(out)-1] &^= 0x80
	return out
}

// decodeOffset inverts encodeOffset, reading from r.
func decodeOffset(r byteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", giterr.ErrCorruptPack, err)
	}
	v := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", giterr.ErrCorruptPack, err)
		}
		v++
		v = (v << 7) | int64(b&0x7f)
	}
	return v, nil
}
