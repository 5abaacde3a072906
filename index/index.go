// Package index implements the binary staging-area file of spec.md
// §4.M: the DIRC v2 header, fixed 10-field stat info per entry, 8-byte
// alignment padding, and the trailing SHA-1. Grounded on the DIRC
// parser in rybkr-gitvista's internal/gitcore/index.go (entry layout,
// fixed-size/path/padding accounting), extended with a Stage enum and a
// writer since that example only reads.
package index

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"syscall"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/object"
	"github.com/lukasojd/puregit/objectid"
)

// Magic is the index file signature, "DIRC".
var Magic = [4]byte{'D', 'I', 'R', 'C'}

// Version is the only index format version this module speaks (v3's
// skip-worktree flag and v4's path-prefix compression are unsupported).
const Version = 2

const (
	fixedEntrySize = 62 // 10×uint32 stat fields + 20-byte id + uint16 flags
	entryAlignment = 8
)

// Stage formalizes the two-bit stage field (spec.md §12 supplement):
// 0 is the normal, merged entry; 1-3 stage the three sides of an
// unresolved conflict.
type Stage uint8

const (
	StageMerged Stage = 0
	StageBase   Stage = 1
	StageOurs   Stage = 2
	StageTheirs Stage = 3
)

const (
	flagNameMask  = 0x0fff
	flagStageMask = 0x3000
	flagStageBit  = 12
	flagValidBit  = 0x8000
)

// StatInfo is the 10-field stat record git caches per entry.
type StatInfo struct {
	CTimeSec  uint32
	CTimeNsec uint32
	MTimeSec  uint32
	MTimeNsec uint32
	Dev       uint32
	Ino       uint32
	Mode      uint32
	UID       uint32
	GID       uint32
	Size      uint32
}

// Entry is one staged path (spec.md §3 "Index entry").
type Entry struct {
	Path         string
	ID           objectid.ID
	Mode         object.FileMode
	Stat         StatInfo
	Stage        Stage
	AssumeValid  bool
}

// Index is the parsed staging area, kept sorted by Path byte order
// (spec.md §4.M "Entries are stored and written sorted by path bytes").
type Index struct {
	Entries []Entry
}

// pathStageKey identifies an entry for duplicate detection: an
// unresolved conflict legitimately carries up to three entries sharing
// a path, one per Stage, so the path alone is not unique.
type pathStageKey struct {
	path  string
	stage Stage
}

// New returns an empty index, the state of a freshly initialized
// repository with nothing staged.
func New() *Index { return &Index{} }

// Decode parses a DIRC v2 index file in full, rejecting two entries
// with the same path and stage and verifying the trailing SHA-1. The
// same path at different stages is accepted.
func Decode(r io.Reader) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", giterr.ErrInvalidObject, err)
	}

	const headerSize = 12
	const trailerSize = objectid.Size
	if len(data) < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: index too short", giterr.ErrInvalidObject)
	}

	body, trailer := data[:len(data)-trailerSize], data[len(data)-trailerSize:]
	got := sha1.Sum(body)
	var trailerID objectid.ID
	copy(trailerID[:], trailer)
	if !bytes.Equal(got[:], trailer) {
		return nil, fmt.Errorf("%w: index trailer mismatch", giterr.ErrInvalidObject)
	}

	if !bytes.Equal(body[:4], Magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", giterr.ErrInvalidObject)
	}
	version := binary.BigEndian.Uint32(body[4:8])
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported index version %d", giterr.ErrInvalidObject, version)
	}
	count := binary.BigEndian.Uint32(body[8:12])

	idx := &Index{Entries: make([]Entry, 0, count)}
	seen := map[pathStageKey]bool{}
	offset := headerSize
	for i := uint32(0); i < count; i++ {
		entry, consumed, err := decodeEntry(body, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", giterr.ErrInvalidObject, i, err)
		}
		key := pathStageKey{entry.Path, entry.Stage}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate path %q at stage %d", giterr.ErrInvalidObject, entry.Path, entry.Stage)
		}
		seen[key] = true
		idx.Entries = append(idx.Entries, entry)
		offset += consumed
	}

	if !sort.SliceIsSorted(idx.Entries, func(i, j int) bool { return idx.Entries[i].Path < idx.Entries[j].Path }) {
		return nil, fmt.Errorf("%w: entries not sorted by path", giterr.ErrInvalidObject)
	}

	return idx, nil
}

func decodeEntry(data []byte, start int) (Entry, int, error) {
	if start+fixedEntrySize > len(data) {
		return Entry{}, 0, fmt.Errorf("truncated fixed fields")
	}
	p := data[start:]

	var e Entry
	e.Stat = StatInfo{
		CTimeSec:  binary.BigEndian.Uint32(p[0:4]),
		CTimeNsec: binary.BigEndian.Uint32(p[4:8]),
		MTimeSec:  binary.BigEndian.Uint32(p[8:12]),
		MTimeNsec: binary.BigEndian.Uint32(p[12:16]),
		Dev:       binary.BigEndian.Uint32(p[16:20]),
		Ino:       binary.BigEndian.Uint32(p[20:24]),
		Mode:      binary.BigEndian.Uint32(p[24:28]),
		UID:       binary.BigEndian.Uint32(p[28:32]),
		GID:       binary.BigEndian.Uint32(p[32:36]),
		Size:      binary.BigEndian.Uint32(p[36:40]),
	}

	mode, err := coerceMode(object.FileMode(e.Stat.Mode))
	if err != nil {
		return Entry{}, 0, err
	}
	e.Mode = mode

	id, err := objectid.FromBinary(p[40:60])
	if err != nil {
		return Entry{}, 0, err
	}
	e.ID = id

	flags := binary.BigEndian.Uint16(p[60:62])
	nameLen := int(flags & flagNameMask)
	e.Stage = Stage((flags & flagStageMask) >> flagStageBit)
	e.AssumeValid = flags&flagValidBit != 0

	pathStart := start + fixedEntrySize
	nul := bytes.IndexByte(data[pathStart:], 0)
	if nul < 0 {
		return Entry{}, 0, fmt.Errorf("missing NUL terminator")
	}
	e.Path = string(data[pathStart : pathStart+nul])
	if nameLen < flagNameMask && nul != nameLen {
		return Entry{}, 0, fmt.Errorf("name length mismatch: flags say %d, path is %d bytes", nameLen, nul)
	}

	rawLen := fixedEntrySize + nul + 1
	paddedLen := (rawLen + entryAlignment - 1) &^ (entryAlignment - 1)
	if start+paddedLen > len(data) {
		return Entry{}, 0, fmt.Errorf("entry extends past end of data")
	}
	return e, paddedLen, nil
}

// coerceMode maps an unrecognized on-disk mode to regular-file for
// in-memory use, per spec.md §4.M "coerced to regular file on read
// (compatibility) but preserved on write" — callers needing the
// original bits should read StatInfo.Mode directly.
func coerceMode(m object.FileMode) (object.FileMode, error) {
	switch m {
	case object.ModeRegular, object.ModeExecutable, object.ModeSymlink, object.ModeGitlink, object.ModeSubtree:
		return m, nil
	default:
		return object.ModeRegular, nil
	}
}

// Encode writes the index in DIRC v2 form, sorting entries by path and
// rejecting duplicates first.
func Encode(w io.Writer, entries []Entry) error {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Stage < sorted[j].Stage
	})
	seen := map[pathStageKey]bool{}
	for _, e := range sorted {
		key := pathStageKey{e.Path, e.Stage}
		if seen[key] {
			return fmt.Errorf("%w: duplicate path %q at stage %d", giterr.ErrInvalidObject, e.Path, e.Stage)
		}
		seen[key] = true
	}

	var body bytes.Buffer
	body.Write(Magic[:])
	writeU32(&body, Version)
	writeU32(&body, uint32(len(sorted)))

	for _, e := range sorted {
		encodeEntry(&body, e)
	}

	h := sha1.Sum(body.Bytes())
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(h[:])
	return err
}

func encodeEntry(b *bytes.Buffer, e Entry) {
	s := e.Stat
	// On-disk mode always reflects the original stat bits (preserved on
	// write per spec.md §4.M), not the read-side coercion.
	mode := s.Mode
	if mode == 0 {
		mode = uint32(e.Mode)
	}
	writeU32(b, s.CTimeSec)
	writeU32(b, s.CTimeNsec)
	writeU32(b, s.MTimeSec)
	writeU32(b, s.MTimeNsec)
	writeU32(b, s.Dev)
	writeU32(b, s.Ino)
	writeU32(b, mode)
	writeU32(b, s.UID)
	writeU32(b, s.GID)
	writeU32(b, s.Size)
	b.Write(e.ID.Bytes())

	nameLen := len(e.Path)
	if nameLen > flagNameMask {
		nameLen = flagNameMask
	}
	flags := uint16(nameLen) | (uint16(e.Stage) << flagStageBit)
	if e.AssumeValid {
		flags |= flagValidBit
	}
	writeU16(b, flags)

	b.WriteString(e.Path)
	b.WriteByte(0)

	rawLen := fixedEntrySize + len(e.Path) + 1
	paddedLen := (rawLen + entryAlignment - 1) &^ (entryAlignment - 1)
	for i := 0; i < paddedLen-rawLen; i++ {
		b.WriteByte(0)
	}
}

func writeU32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}

func writeU16(b *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	b.Write(buf[:])
}

// StatInfoFromFileInfo builds a StatInfo from an os.FileInfo as
// returned by a working-tree scan, reading the device/inode numbers
// from the *syscall.Stat_t that os.Stat and os.Lstat place in
// FileInfo.Sys() on Linux (working-tree scanning itself is out of scope, spec.md §1;
// this is the thin boundary a scanner crosses to populate an entry).
func StatInfoFromFileInfo(info os.FileInfo) StatInfo {
	s := StatInfo{
		MTimeSec: uint32(info.ModTime().Unix()),
		Size:     uint32(info.Size()),
		Mode:     regularModeBits(info),
	}
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		s.CTimeSec = uint32(sys.Ctim.Sec)
		s.CTimeNsec = uint32(sys.Ctim.Nsec)
		s.MTimeNsec = uint32(sys.Mtim.Nsec)
		s.Dev = uint32(sys.Dev)
		s.Ino = uint32(sys.Ino)
		s.UID = sys.Uid
		s.GID = sys.Gid
	}
	return s
}

func regularModeBits(info os.FileInfo) uint32 {
	if info.Mode()&os.ModeSymlink != 0 {
		return uint32(object.ModeSymlink)
	}
	if info.Mode().Perm()&0o111 != 0 {
		return uint32(object.ModeExecutable)
	}
	return uint32(object.ModeRegular)
}
