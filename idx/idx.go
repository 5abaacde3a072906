// Package idx implements the pack index v2 format of spec.md §4.D/§6:
// magic, version, 256-entry fanout, sorted hashes, CRC32s, 32-bit
// offsets (with a 64-bit extension table for offsets ≥ 2^31), then the
// pack and index trailers. Grounded on go-git's
// plumbing/format/idxfile/readerat.go, but kept as a fully in-memory
// structure (go-git's older MemoryIndex shape) since the spec's own
// size budget for this component (§2, 6%) does not call for the
// readerat/reverse-index machinery the teacher added for huge repos.
package idx

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"sort"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/objectid"
)

// Magic is the v2 idx file signature.
var Magic = [4]byte{0xff, 't', 'O', 'c'}

// Version is the only pack index version this module speaks.
const Version = 2

const (
	fanoutSize = 256 * 4
	is64Bit    = uint32(1) << 31
)

// Entry describes one object recorded in the index.
type Entry struct {
	ID     objectid.ID
	Offset uint64
	CRC32  uint32
}

// Index is a fully parsed v2 pack index, sorted by ID ascending.
type Index struct {
	entries    []Entry
	byID       map[objectid.ID]int
	byOffset   map[uint64]int
	fanout     [256]uint32
	PackSHA    objectid.ID
	IndexSHA   objectid.ID
}

// Count returns the number of indexed objects.
func (idx *Index) Count() int { return len(idx.entries) }

// FindOffset returns the pack offset for id.
func (idx *Index) FindOffset(id objectid.ID) (int64, error) {
	pos, ok := idx.byID[id]
	if !ok {
		return 0, giterr.ErrNotFound
	}
	return int64(idx.entries[pos].Offset), nil
}

// FindID returns the object id stored at the given pack offset
// (needed by the pack reader/writer to resolve OFS deltas, spec.md §4.D).
func (idx *Index) FindID(offset int64) (objectid.ID, error) {
	pos, ok := idx.byOffset[uint64(offset)]
	if !ok {
		return objectid.ID{}, giterr.ErrNotFound
	}
	return idx.entries[pos].ID, nil
}

// FindCRC32 returns the recorded CRC32 for id.
func (idx *Index) FindCRC32(id objectid.ID) (uint32, error) {
	pos, ok := idx.byID[id]
	if !ok {
		return 0, giterr.ErrNotFound
	}
	return idx.entries[pos].CRC32, nil
}

// Entries returns all entries, sorted by ID ascending.
func (idx *Index) Entries() []Entry { return idx.entries }

// Has reports whether id is recorded in this index, used by the
// combined object store (§4.K) to short-circuit existence checks
// without reading pack bytes.
func (idx *Index) Has(id objectid.ID) bool {
	_, ok := idx.byID[id]
	return ok
}

// IDsWithPrefix returns every indexed id whose hex form starts with
// prefix, walking the fanout-bounded slice of entries rather than the
// whole table (spec.md §12 ObjectByPrefix supplement).
func (idx *Index) IDsWithPrefix(prefix string) []objectid.ID {
	if len(prefix) < 2 {
		var out []objectid.ID
		for _, e := range idx.entries {
			if e.ID.HasHexPrefix(prefix) {
				out = append(out, e.ID)
			}
		}
		return out
	}
	var firstByte byte
	if _, err := fmt.Sscanf(prefix[:2], "%02x", &firstByte); err != nil {
		return nil
	}
	lo := uint32(0)
	if firstByte > 0 {
		lo = idx.fanout[firstByte-1]
	}
	hi := idx.fanout[firstByte]

	var out []objectid.ID
	for i := lo; i < hi; i++ {
		if idx.entries[i].ID.HasHexPrefix(prefix) {
			out = append(out, idx.entries[i].ID)
		}
	}
	return out
}

func (idx *Index) index() {
	idx.byID = make(map[objectid.ID]int, len(idx.entries))
	idx.byOffset = make(map[uint64]int, len(idx.entries))
	for i, e := range idx.entries {
		idx.byID[e.ID] = i
		idx.byOffset[e.Offset] = i
	}

	var fanout [256]uint32
	for _, e := range idx.entries {
		fanout[e.ID.Bytes()[0]]++
	}
	var running uint32
	for i := range fanout {
		running += fanout[i]
		fanout[i] = running
	}
	idx.fanout = fanout
}

// New builds an Index from a set of entries, sorting them by ID as
// spec.md §4.D requires. PackSHA/IndexSHA are left zero; Encode does
// not read them (it takes the pack checksum as an argument), and
// pack.Write sets PackSHA on the Index it returns.
func New(entries []Entry) *Index {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Less(sorted[j].ID) })
	idx := &Index{entries: sorted}
	idx.index()
	return idx
}

// Decode parses a v2 .idx file in full.
func Decode(r io.Reader) (*Index, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", giterr.ErrCorruptIndex, err)
	}
	if header[0] != Magic[0] || header[1] != Magic[1] || header[2] != Magic[2] || header[3] != Magic[3] {
		return nil, fmt.Errorf("%w: bad magic", giterr.ErrCorruptIndex)
	}
	if v := binary.BigEndian.Uint32(header[4:]); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", giterr.ErrCorruptIndex, v)
	}

	var fanout [256]uint32
	fanoutBuf := make([]byte, fanoutSize)
	if _, err := io.ReadFull(r, fanoutBuf); err != nil {
		return nil, fmt.Errorf("%w: short fanout table: %v", giterr.ErrCorruptIndex, err)
	}
	for i := range fanout {
		fanout[i] = binary.BigEndian.Uint32(fanoutBuf[i*4 : i*4+4])
	}
	count := int(fanout[255])

	ids := make([]objectid.ID, count)
	for i := 0; i < count; i++ {
		var b [objectid.Size]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("%w: short hash table: %v", giterr.ErrCorruptIndex, err)
		}
		id, err := objectid.FromBinary(b[:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", giterr.ErrCorruptIndex, err)
		}
		if i > 0 && !ids[i-1].Less(id) {
			return nil, fmt.Errorf("%w: hashes not ascending", giterr.ErrCorruptIndex)
		}
		ids[i] = id
	}

	crcs := make([]uint32, count)
	for i := 0; i < count; i++ {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("%w: short crc table: %v", giterr.ErrCorruptIndex, err)
		}
		crcs[i] = binary.BigEndian.Uint32(b[:])
	}

	off32 := make([]uint32, count)
	var numLarge int
	for i := 0; i < count; i++ {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("%w: short offset table: %v", giterr.ErrCorruptIndex, err)
		}
		off32[i] = binary.BigEndian.Uint32(b[:])
		if off32[i]&is64Bit != 0 {
			numLarge++
		}
	}

	off64 := make([]uint64, numLarge)
	for i := 0; i < numLarge; i++ {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("%w: short 64-bit offset table: %v", giterr.ErrCorruptIndex, err)
		}
		off64[i] = binary.BigEndian.Uint64(b[:])
	}

	var packSHABytes, idxSHABytes [objectid.Size]byte
	if _, err := io.ReadFull(r, packSHABytes[:]); err != nil {
		return nil, fmt.Errorf("%w: short pack trailer: %v", giterr.ErrCorruptIndex, err)
	}
	if _, err := io.ReadFull(r, idxSHABytes[:]); err != nil {
		return nil, fmt.Errorf("%w: short index trailer: %v", giterr.ErrCorruptIndex, err)
	}
	packSHA, _ := objectid.FromBinary(packSHABytes[:])
	idxSHA, _ := objectid.FromBinary(idxSHABytes[:])

	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		offset := uint64(off32[i])
		if off32[i]&is64Bit != 0 {
			loIdx := int(off32[i] &^ is64Bit)
			if loIdx >= len(off64) {
				return nil, fmt.Errorf("%w: 64-bit offset index out of range", giterr.ErrCorruptIndex)
			}
			offset = off64[loIdx]
		}
		entries[i] = Entry{ID: ids[i], Offset: offset, CRC32: crcs[i]}
	}

	idxv := &Index{entries: entries, fanout: fanout, PackSHA: packSHA, IndexSHA: idxSHA}
	idxv.index()
	return idxv, nil
}

// hashingWriter is used by Encode to compute the trailing index SHA-1
// over every byte written so far.
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

// Encode writes idx in v2 format, using packSHA as the pack trailer copy
// (spec.md §4.D/§4.G). The returned ID is the index's own trailer SHA-1.
func Encode(w io.Writer, entries []Entry, packSHA objectid.ID) (objectid.ID, error) {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Less(sorted[j].ID) })

	var large []Entry
	hw := newHashingWriter(w)

	if _, err := hw.Write(Magic[:]); err != nil {
		return objectid.ID{}, err
	}
	if err := binary.Write(hw, binary.BigEndian, uint32(Version)); err != nil {
		return objectid.ID{}, err
	}

	var fanout [256]uint32
	for _, e := range sorted {
		fanout[e.ID.Bytes()[0]]++
	}
	var running uint32
	for i := range fanout {
		running += fanout[i]
		fanout[i] = running
	}
	if err := binary.Write(hw, binary.BigEndian, fanout); err != nil {
		return objectid.ID{}, err
	}

	for _, e := range sorted {
		if _, err := hw.Write(e.ID.Bytes()); err != nil {
			return objectid.ID{}, err
		}
	}
	for _, e := range sorted {
		if err := binary.Write(hw, binary.BigEndian, e.CRC32); err != nil {
			return objectid.ID{}, err
		}
	}
	for _, e := range sorted {
		if e.Offset > 0x7fffffff {
			v := is64Bit | uint32(len(large))
			large = append(large, e)
			if err := binary.Write(hw, binary.BigEndian, v); err != nil {
				return objectid.ID{}, err
			}
			continue
		}
		if err := binary.Write(hw, binary.BigEndian, uint32(e.Offset)); err != nil {
			return objectid.ID{}, err
		}
	}
	for _, e := range large {
		if err := binary.Write(hw, binary.BigEndian, e.Offset); err != nil {
			return objectid.ID{}, err
		}
	}

	if _, err := hw.Write(packSHA.Bytes()); err != nil {
		return objectid.ID{}, err
	}

	var trailer objectid.ID
	copy(trailer[:], hw.h.Sum(nil))
	if _, err := w.Write(trailer.Bytes()); err != nil {
		return objectid.ID{}, err
	}

	return trailer, nil
}
