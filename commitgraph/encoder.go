package commitgraph

import (
	"crypto/sha1"
	"encoding/binary"
	"hash"
	"io"

	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/lukasojd/puregit/objectid"
)

// hashingWriter mirrors idx.Encode's trailer-computing writer: every
// byte written also feeds a running SHA-1, which becomes the file's
// trailing checksum.
type hashingWriter struct {
	w io.Writer
	h hash.Hash
}

func newHashingWriter(w io.Writer) *hashingWriter {
	return &hashingWriter{w: w, h: sha1.New()}
}

func (hw *hashingWriter) Write(p []byte) (int, error) {
	hw.h.Write(p)
	return hw.w.Write(p)
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// sortIDs orders ids ascending via a redblacktree keyed by hex string
// (equal-width hex strings compare the same way as the underlying
// bytes), the same ordered-index structure pack/writer.go's delta
// window uses for its size buckets.
func sortIDs(records map[objectid.ID]CommitRecord) []objectid.ID {
	tree := redblacktree.NewWithStringComparator()
	for id := range records {
		tree.Put(id.String(), id)
	}
	ids := make([]objectid.ID, 0, len(records))
	for _, v := range tree.Values() {
		ids = append(ids, v.(objectid.ID))
	}
	return ids
}

// Encode writes records as a commit-graph file, returning its trailing
// checksum (spec.md §4.O).
func Encode(w io.Writer, records map[objectid.ID]CommitRecord) (objectid.ID, error) {
	ids := sortIDs(records)

	hashToIndex := make(map[objectid.ID]uint32, len(ids))
	var fanout [lenFanout]uint32
	for i, id := range ids {
		hashToIndex[id] = uint32(i)
		fanout[id.Bytes()[0]]++
	}
	for i := 1; i < lenFanout; i++ {
		fanout[i] += fanout[i-1]
	}

	var extraEdgesCount uint32
	for _, id := range ids {
		if n := len(records[id].Parents); n > 2 {
			extraEdgesCount += uint32(n - 1)
		}
	}

	signatures := [][4]byte{oidFanoutSignature, oidLookupSignature, commitDataSignature}
	sizes := []uint64{
		lenFanout * 4,
		uint64(len(ids)) * objectid.Size,
		uint64(len(ids)) * commitEntrySize,
	}
	if extraEdgesCount > 0 {
		signatures = append(signatures, extraEdgeSignature)
		sizes = append(sizes, uint64(extraEdgesCount)*4)
	}

	hw := newHashingWriter(w)

	if err := encodeFileHeader(hw, len(signatures)); err != nil {
		return objectid.ID{}, err
	}
	if err := encodeChunkHeaders(hw, signatures, sizes); err != nil {
		return objectid.ID{}, err
	}
	if err := encodeFanout(hw, fanout); err != nil {
		return objectid.ID{}, err
	}
	if err := encodeOIDLookup(hw, ids); err != nil {
		return objectid.ID{}, err
	}
	extraEdges, err := encodeCommitData(hw, ids, records, hashToIndex)
	if err != nil {
		return objectid.ID{}, err
	}
	if err := encodeExtraEdges(hw, extraEdges); err != nil {
		return objectid.ID{}, err
	}

	var trailer objectid.ID
	copy(trailer[:], hw.h.Sum(nil))
	if _, err := w.Write(trailer.Bytes()); err != nil {
		return objectid.ID{}, err
	}
	return trailer, nil
}

func encodeFileHeader(w io.Writer, chunkCount int) error {
	if _, err := w.Write(fileSignature[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte{Version, HashVersion, byte(chunkCount), 0})
	return err
}

func encodeChunkHeaders(w io.Writer, signatures [][4]byte, sizes []uint64) error {
	offset := uint64(fileHeaderSize + (len(signatures)+1)*chunkHeaderSize)
	for i, sig := range signatures {
		if _, err := w.Write(sig[:]); err != nil {
			return err
		}
		if err := writeUint64(w, offset); err != nil {
			return err
		}
		offset += sizes[i]
	}
	if _, err := w.Write(terminatorSignature[:]); err != nil {
		return err
	}
	return writeUint64(w, offset)
}

func encodeFanout(w io.Writer, fanout [lenFanout]uint32) error {
	for _, v := range fanout {
		if err := writeUint32(w, v); err != nil {
			return err
		}
	}
	return nil
}

func encodeOIDLookup(w io.Writer, ids []objectid.ID) error {
	for _, id := range ids {
		if _, err := w.Write(id.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func encodeCommitData(w io.Writer, ids []objectid.ID, records map[objectid.ID]CommitRecord, hashToIndex map[objectid.ID]uint32) ([]uint32, error) {
	var extraEdges []uint32
	for _, id := range ids {
		rec := records[id]
		if _, err := w.Write(rec.Tree.Bytes()); err != nil {
			return nil, err
		}

		var parent1, parent2 uint32
		switch len(rec.Parents) {
		case 0:
			parent1, parent2 = parentNone, parentNone
		case 1:
			parent1, parent2 = hashToIndex[rec.Parents[0]], parentNone
		case 2:
			parent1, parent2 = hashToIndex[rec.Parents[0]], hashToIndex[rec.Parents[1]]
		default:
			parent1 = hashToIndex[rec.Parents[0]]
			parent2 = uint32(len(extraEdges)) | parentOctopusUsed
			for _, p := range rec.Parents[1:] {
				extraEdges = append(extraEdges, hashToIndex[p])
			}
			extraEdges[len(extraEdges)-1] |= parentLast
		}

		if err := writeUint32(w, parent1); err != nil {
			return nil, err
		}
		if err := writeUint32(w, parent2); err != nil {
			return nil, err
		}
		if err := writeUint64(w, packGenerationAndTime(rec.Generation, rec.When)); err != nil {
			return nil, err
		}
	}
	return extraEdges, nil
}

func encodeExtraEdges(w io.Writer, extraEdges []uint32) error {
	for _, v := range extraEdges {
		if err := writeUint32(w, v); err != nil {
			return err
		}
	}
	return nil
}
