// Package commitgraph implements the commit-graph of spec.md §4.O: a
// compact, chunked file of fixed-size commit records — root tree id,
// packed parent indices (with an overflow table for octopus merges),
// a generation number, and a commit timestamp — keyed by a sorted
// fanout/lookup table analogous to the pack index (§4.D). Grounded on
// go-git's plumbing/format/commitgraph package (the v1, non-generation-v2
// file layout: CGPH signature, OIDF/OIDL/CDAT/EDGE chunks), trimmed of
// its GDAT/GDOV generation-v2 chunks since spec.md §4.O names a single
// packed generation number, not the v2 split/overflow scheme.
package commitgraph

import (
	"time"

	"github.com/lukasojd/puregit/objectid"
)

var (
	fileSignature       = [4]byte{'C', 'G', 'P', 'H'}
	oidFanoutSignature  = [4]byte{'O', 'I', 'D', 'F'}
	oidLookupSignature  = [4]byte{'O', 'I', 'D', 'L'}
	commitDataSignature = [4]byte{'C', 'D', 'A', 'T'}
	extraEdgeSignature  = [4]byte{'E', 'D', 'G', 'E'}
	terminatorSignature = [4]byte{0, 0, 0, 0}
)

const (
	// Version is the only file-format version this package speaks.
	Version = 1
	// HashVersion marks the object-id hash as SHA-1, per the format's
	// header byte (a value of 2 would mean SHA-256).
	HashVersion = 1

	lenFanout = 256

	// commitDataSize is a CDAT chunk entry's size net of the hash
	// itself (which lives in the OIDL chunk): parent1 + parent2 +
	// packed generation/timestamp.
	commitDataSize = 4 + 4 + 8

	// chunkHeaderSize is one chunk table entry: a 4-byte signature plus
	// an 8-byte offset.
	chunkHeaderSize = 4 + 8

	fileHeaderSize = 8 // signature + version/hash/chunk-count/reserved

	// parentNone marks an absent parent slot.
	parentNone = uint32(0x70000000)
	// parentOctopusUsed marks parent2 as an index into the extra-edge
	// table rather than a direct parent index (≥3 parents).
	parentOctopusUsed = uint32(0x80000000)
	parentOctopusMask = uint32(0x7fffffff)
	// parentLast marks the final entry of an extra-edge run.
	parentLast = uint32(0x80000000)

	// generationShift and timestampMask split the packed 64-bit
	// generation/timestamp field the way go-git's CDAT chunk does: the
	// low 34 bits hold a Unix timestamp, the rest the generation number.
	generationShift = 34
	timestampMask   = uint64(1)<<generationShift - 1
)

// CommitRecord is one commit's worth of commit-graph metadata.
type CommitRecord struct {
	Tree       objectid.ID
	Parents    []objectid.ID
	Generation uint32
	When       time.Time
}

func packGenerationAndTime(generation uint32, when time.Time) uint64 {
	return uint64(generation)<<generationShift | (uint64(when.Unix()) & timestampMask)
}

func unpackGenerationAndTime(v uint64) (generation uint32, when time.Time) {
	return uint32(v >> generationShift), time.Unix(int64(v&timestampMask), 0).UTC()
}
