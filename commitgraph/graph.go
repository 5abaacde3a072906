package commitgraph

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/objectid"
)

// commitEntrySize is one CDAT chunk entry's total width: the commit's
// root tree hash followed by the packed parent/generation/timestamp
// fields (commitDataSize).
const commitEntrySize = objectid.Size + commitDataSize

// Graph is a fully parsed, in-memory commit-graph file, mirroring
// idx.Index's choice of whole-file decoding over idxfile's
// io.ReaderAt-chunked reads (spec.md §2's size budget for this
// component doesn't call for huge-repo streaming machinery).
type Graph struct {
	ids             []objectid.ID
	byID            map[objectid.ID]int
	fanout          [lenFanout]uint32
	oidLookupOffset int
	commitDataOffset int
	extraEdgeOffset  int
	raw              []byte
}

// Decode parses a commit-graph file in full, verifying its trailing
// checksum.
func Decode(r io.Reader) (*Graph, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", giterr.ErrCorruptPack, err)
	}
	if len(raw) < fileHeaderSize+objectid.Size {
		return nil, fmt.Errorf("%w: truncated commit-graph file", giterr.ErrCorruptPack)
	}

	body, trailer := raw[:len(raw)-objectid.Size], raw[len(raw)-objectid.Size:]
	sum := sha1Sum(body)
	wantTrailer, err := objectid.FromBinary(trailer)
	if err != nil {
		return nil, err
	}
	if sum != wantTrailer {
		return nil, fmt.Errorf("%w: checksum mismatch", giterr.ErrCorruptPack)
	}

	if !bytes.Equal(raw[:4], fileSignature[:]) {
		return nil, fmt.Errorf("%w: bad signature", giterr.ErrCorruptPack)
	}
	if raw[4] != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", giterr.ErrCorruptPack, raw[4])
	}
	if raw[5] != HashVersion {
		return nil, fmt.Errorf("%w: unsupported hash version %d", giterr.ErrCorruptPack, raw[5])
	}
	chunkCount := int(raw[6])

	g := &Graph{}
	var fanoutOffset = -1
	oidLookupOffset, commitDataOffset, extraEdgeOffset := -1, -1, -1

	pos := fileHeaderSize
	for i := 0; i < chunkCount+1; i++ {
		if pos+chunkHeaderSize > len(raw) {
			return nil, fmt.Errorf("%w: truncated chunk table", giterr.ErrCorruptPack)
		}
		var sig [4]byte
		copy(sig[:], raw[pos:pos+4])
		offset := int(binary.BigEndian.Uint64(raw[pos+4 : pos+12]))
		pos += chunkHeaderSize

		switch sig {
		case oidFanoutSignature:
			fanoutOffset = offset
		case oidLookupSignature:
			oidLookupOffset = offset
		case commitDataSignature:
			commitDataOffset = offset
		case extraEdgeSignature:
			extraEdgeOffset = offset
		case terminatorSignature:
		}
	}
	if fanoutOffset < 0 || oidLookupOffset < 0 || commitDataOffset < 0 {
		return nil, fmt.Errorf("%w: missing required chunk", giterr.ErrCorruptPack)
	}

	for i := 0; i < lenFanout; i++ {
		off := fanoutOffset + i*4
		if off+4 > len(raw) {
			return nil, fmt.Errorf("%w: truncated fanout", giterr.ErrCorruptPack)
		}
		v := binary.BigEndian.Uint32(raw[off : off+4])
		if i > 0 && v < g.fanout[i-1] {
			return nil, fmt.Errorf("%w: fanout not monotonic", giterr.ErrCorruptPack)
		}
		g.fanout[i] = v
	}

	count := int(g.fanout[lenFanout-1])
	g.ids = make([]objectid.ID, count)
	g.byID = make(map[objectid.ID]int, count)
	for i := 0; i < count; i++ {
		off := oidLookupOffset + i*objectid.Size
		if off+objectid.Size > len(raw) {
			return nil, fmt.Errorf("%w: truncated oid lookup", giterr.ErrCorruptPack)
		}
		id, err := objectid.FromBinary(raw[off : off+objectid.Size])
		if err != nil {
			return nil, err
		}
		g.ids[i] = id
		g.byID[id] = i
	}

	g.oidLookupOffset = oidLookupOffset
	g.commitDataOffset = commitDataOffset
	g.extraEdgeOffset = extraEdgeOffset
	g.raw = raw
	return g, nil
}

func sha1Sum(b []byte) objectid.ID {
	sum := sha1.Sum(b)
	id, _ := objectid.FromBinary(sum[:])
	return id
}

// Count returns the number of commits recorded in the graph.
func (g *Graph) Count() int { return len(g.ids) }

// Hashes returns every commit id recorded in the graph, ascending.
func (g *Graph) Hashes() []objectid.ID { return g.ids }

// IndexOf returns id's position in the sorted id table.
func (g *Graph) IndexOf(id objectid.ID) (int, bool) {
	i, ok := g.byID[id]
	return i, ok
}

// CommitAt decodes the commit record stored at sorted index i.
func (g *Graph) CommitAt(i int) (*CommitRecord, error) {
	if i < 0 || i >= len(g.ids) {
		return nil, fmt.Errorf("%w: commit-graph index out of range", giterr.ErrNotFound)
	}
	off := g.commitDataOffset + i*commitEntrySize
	if off+commitEntrySize > len(g.raw) {
		return nil, fmt.Errorf("%w: truncated commit data", giterr.ErrCorruptPack)
	}
	entry := g.raw[off : off+commitEntrySize]

	treeID, err := objectid.FromBinary(entry[:objectid.Size])
	if err != nil {
		return nil, err
	}
	parent1 := binary.BigEndian.Uint32(entry[objectid.Size : objectid.Size+4])
	parent2 := binary.BigEndian.Uint32(entry[objectid.Size+4 : objectid.Size+8])
	genAndTime := binary.BigEndian.Uint64(entry[objectid.Size+8 : objectid.Size+16])

	parentIndexes, err := g.resolveParents(parent1, parent2)
	if err != nil {
		return nil, err
	}
	parents := make([]objectid.ID, len(parentIndexes))
	for i, pidx := range parentIndexes {
		if pidx >= len(g.ids) {
			return nil, fmt.Errorf("%w: parent index out of range", giterr.ErrCorruptPack)
		}
		parents[i] = g.ids[pidx]
	}

	generation, when := unpackGenerationAndTime(genAndTime)
	return &CommitRecord{Tree: treeID, Parents: parents, Generation: generation, When: when}, nil
}

func (g *Graph) resolveParents(parent1, parent2 uint32) ([]int, error) {
	switch {
	case parent2&parentOctopusUsed == parentOctopusUsed:
		indexes := []int{int(parent1 & parentOctopusMask)}
		off := g.extraEdgeOffset + 4*int(parent2&parentOctopusMask)
		for {
			if off+4 > len(g.raw) {
				return nil, fmt.Errorf("%w: truncated extra-edge table", giterr.ErrCorruptPack)
			}
			v := binary.BigEndian.Uint32(g.raw[off : off+4])
			indexes = append(indexes, int(v&parentOctopusMask))
			off += 4
			if v&parentLast == parentLast {
				break
			}
		}
		return indexes, nil
	case parent2 != parentNone:
		return []int{int(parent1 & parentOctopusMask), int(parent2 & parentOctopusMask)}, nil
	case parent1 != parentNone:
		return []int{int(parent1 & parentOctopusMask)}, nil
	default:
		return nil, nil
	}
}

// Commit resolves a commit record directly by id.
func (g *Graph) Commit(id objectid.ID) (*CommitRecord, error) {
	i, ok := g.IndexOf(id)
	if !ok {
		return nil, giterr.ErrNotFound
	}
	return g.CommitAt(i)
}
