// Package objectid implements the 20-byte SHA-1 object id (spec.md §3,
// §4.A) used to address every object in the store. It is grounded on
// go-git's plumbing/objectid.go and plumbing/hash.go, trimmed to the
// SHA-1-only object format this spec requires (SHA-256 is a Non-goal).
package objectid

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Size is the length in bytes of an object id (SHA-1 digest size).
const Size = 20

// HexSize is the length of the hexadecimal representation of an id.
const HexSize = Size * 2

// ID is a fixed 20-byte content hash. The zero value is the all-zero id.
type ID [Size]byte

// Zero is the all-zero id, used as a sentinel (e.g. the "old" side of a
// ref-creation push update).
var Zero ID

// ErrInvalidID is returned when a hex or binary form fails validation.
var ErrInvalidID = fmt.Errorf("invalid object id")

// FromHex parses a 40-character lowercase hex string.
func FromHex(s string) (ID, error) {
	var id ID
	if len(s) != HexSize {
		return id, fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidID, HexSize, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	copy(id[:], b)
	return id, nil
}

// FromBinary copies a 20-byte slice into an ID.
func FromBinary(b []byte) (ID, error) {
	var id ID
	if len(b) != Size {
		return id, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidID, Size, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the lowercase hex representation.
func (id ID) String() string { return hex.EncodeToString(id[:]) }

// Bytes returns the 20-byte binary form.
func (id ID) Bytes() []byte { return id[:] }

// IsZero reports whether id is the all-zero id.
func (id ID) IsZero() bool { return id == Zero }

// Compare orders two ids byte-wise, matching bytes.Compare's contract.
func (id ID) Compare(other ID) int { return bytes.Compare(id[:], other[:]) }

// Less reports id < other under byte-wise ordering, for use with sort.Slice.
func (id ID) Less(other ID) bool { return id.Compare(other) < 0 }

// Prefix returns the 2-hex-char fan-out directory component.
func (id ID) Prefix() string { return hex.EncodeToString(id[:1]) }

// Suffix returns the remaining 38-hex-char filename component.
func (id ID) Suffix() string { return hex.EncodeToString(id[1:]) }

// Short returns the first n hex characters (n clamped to [0, HexSize]).
func (id ID) Short(n int) string {
	if n > HexSize {
		n = HexSize
	}
	if n < 0 {
		n = 0
	}
	return id.String()[:n]
}

// HasHexPrefix reports whether id's hex form starts with prefix, a
// lowercase hex string of 4 to 40 characters as used by abbreviated-hash
// lookups (§4.C find_by_prefix). The length is not checked beyond the
// 40-character maximum.
func (id ID) HasHexPrefix(prefix string) bool {
	return len(prefix) <= HexSize && id.String()[:len(prefix)] == prefix
}

// Slice is a sortable slice of IDs, ascending.
type Slice []ID

func (s Slice) Len() int           { return len(s) }
func (s Slice) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
