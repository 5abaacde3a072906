package objectid

import (
	"hash"
	"strconv"

	"github.com/pjbgf/sha1cd"
)

// ObjectType names the four object variants from spec.md §3, and the
// pack type codes they map to (spec.md §6).
type ObjectType int8

const (
	InvalidObject ObjectType = iota
	CommitObject
	TreeObject
	BlobObject
	TagObject
	// OFSDeltaObject and REFDeltaObject are pack-only pseudo-types: they
	// never appear as a stored object's own type, only as an entry's
	// on-disk encoding (spec.md §3 "Pack entry").
	OFSDeltaObject
	REFDeltaObject
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	default:
		return "invalid"
	}
}

// PackTypeCode returns the type code used in a pack entry header
// (spec.md §6): 1=commit, 2=tree, 3=blob, 4=tag, 6=ofs_delta, 7=ref_delta.
func (t ObjectType) PackTypeCode() int {
	switch t {
	case CommitObject:
		return 1
	case TreeObject:
		return 2
	case BlobObject:
		return 3
	case TagObject:
		return 4
	case OFSDeltaObject:
		return 6
	case REFDeltaObject:
		return 7
	default:
		return 0
	}
}

// ObjectTypeFromPackCode inverts PackTypeCode.
func ObjectTypeFromPackCode(code int) ObjectType {
	switch code {
	case 1:
		return CommitObject
	case 2:
		return TreeObject
	case 3:
		return BlobObject
	case 4:
		return TagObject
	case 6:
		return OFSDeltaObject
	case 7:
		return REFDeltaObject
	default:
		return InvalidObject
	}
}

// ParseObjectType maps the loose-object header type name ("commit",
// "tree", "blob", "tag") to an ObjectType, or InvalidObject if unknown.
func ParseObjectType(name string) ObjectType {
	switch name {
	case "commit":
		return CommitObject
	case "tree":
		return TreeObject
	case "blob":
		return BlobObject
	case "tag":
		return TagObject
	default:
		return InvalidObject
	}
}

// Hasher computes an object id as SHA-1("<type> <size>\0<body>"), the
// invariant from spec.md §3. It is built on pjbgf/sha1cd, the
// collision-detecting SHA-1 implementation go-git's plumbing/hasher.go
// wires in, rather than bare crypto/sha1.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a Hasher primed with the object header for t and
// size; callers then Write the body and call Sum.
func NewHasher(t ObjectType, size int64) Hasher {
	h := Hasher{h: sha1cd.New()}
	h.h.Write([]byte(t.String()))
	h.h.Write([]byte{' '})
	h.h.Write([]byte(strconv.FormatInt(size, 10)))
	h.h.Write([]byte{0})
	return h
}

// Write feeds body bytes into the running hash.
func (h Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum finalizes the hash and returns the resulting ID.
func (h Hasher) Sum() ID {
	var id ID
	copy(id[:], h.h.Sum(nil))
	return id
}

// Hash computes id(type, body) in one call.
func Hash(t ObjectType, body []byte) ID {
	h := NewHasher(t, int64(len(body)))
	h.Write(body)
	return h.Sum()
}
