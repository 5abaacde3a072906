package pack

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/idx"
	"github.com/lukasojd/puregit/objectid"
)

// defaultReuseCacheBytes is the default size of the reconstructed-bytes
// cache kept while indexing an incoming pack (spec.md §4.H).
const defaultReuseCacheBytes = 32 << 20

const maxReceiverChainDepth = 50

// Receiver implements the two-phase streaming pack receive of spec.md
// §4.H: Write appends raw incoming bytes with no parsing (phase 1);
// Finish reopens the file read-only, resolves every entry exactly once,
// and writes the matching .idx (phase 2). Grounded on go-git's
// plumbing/format/packfile/decoder.go for the per-entry resolution
// shape, reworked into a single forward pass over a file being received
// rather than an already-complete in-memory/seekable pack.
type Receiver struct {
	f        *os.File
	packPath string
	idxPath  string
}

// NewReceiver creates "<path>.pack" for writing.
func NewReceiver(path string) (*Receiver, error) {
	f, err := os.Create(path + ".pack")
	if err != nil {
		return nil, fmt.Errorf("%w: create %s.pack: %v", giterr.ErrNotFound, path, err)
	}
	return &Receiver{f: f, packPath: path + ".pack", idxPath: path + ".idx"}, nil
}

// Write appends raw pack bytes (phase 1). No parsing happens here.
func (r *Receiver) Write(p []byte) (int, error) {
	return r.f.Write(p)
}

// Result is what a successful Finish produced.
type Result struct {
	PackPath  string
	IndexPath string
	Index     *idx.Index
}

// Finish closes the incoming stream, reopens it read-only, resolves
// every entry (phase 2), and writes the .idx alongside it exactly as
// §4.G describes. After Finish returns successfully both files exist
// and parse cleanly (spec.md §4.H).
func (r *Receiver) Finish() (Result, error) {
	if err := r.f.Close(); err != nil {
		return Result{}, fmt.Errorf("%w: close %s: %v", giterr.ErrNotFound, r.packPath, err)
	}

	in, err := os.Open(r.packPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reopen %s: %v", giterr.ErrNotFound, r.packPath, err)
	}
	defer in.Close()

	reader, err := Open(in)
	if err != nil {
		return Result{}, err
	}

	cache := newReuseCache(defaultReuseCacheBytes)
	entries, err := indexEntries(in, reader.Count(), cache)
	if err != nil {
		return Result{}, err
	}

	info, err := in.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("%w: stat %s: %v", giterr.ErrNotFound, r.packPath, err)
	}
	var trailer [objectid.Size]byte
	if _, err := in.ReadAt(trailer[:], info.Size()-objectid.Size); err != nil {
		return Result{}, fmt.Errorf("%w: short pack trailer: %v", giterr.ErrCorruptPack, err)
	}
	packSHA, err := objectid.FromBinary(trailer[:])
	if err != nil {
		return Result{}, err
	}

	idxFile, err := os.Create(r.idxPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: create %s: %v", giterr.ErrNotFound, r.idxPath, err)
	}
	idxSHA, encErr := idx.Encode(idxFile, entries, packSHA)
	closeErr := idxFile.Close()
	if encErr != nil {
		return Result{}, encErr
	}
	if closeErr != nil {
		return Result{}, fmt.Errorf("%w: close %s: %v", giterr.ErrNotFound, r.idxPath, closeErr)
	}

	built := idx.New(entries)
	built.PackSHA = packSHA
	built.IndexSHA = idxSHA

	return Result{PackPath: r.packPath, IndexPath: r.idxPath, Index: built}, nil
}

// indexEntries walks every entry in the incoming pack exactly once, in
// ascending offset order, resolving deltas as it goes and recording
// each entry's hash/offset/CRC32 for the index (spec.md §4.H phase 2).
func indexEntries(ra io.ReaderAt, count uint32, cache *reuseCache) ([]idx.Entry, error) {
	entries := make([]idx.Entry, 0, count)
	idToOffset := make(map[objectid.ID]int64, count)

	offset := int64(12) // "PACK" + version + count
	for i := uint32(0); i < count; i++ {
		entryStart := offset

		raw, err := readEntryRaw(ra, entryStart)
		if err != nil {
			return nil, err
		}

		objType, data, err := materialize(ra, raw, idToOffset, cache, 0)
		if err != nil {
			return nil, err
		}
		cache.add(entryStart, cachedObject{Type: objType, Data: data})

		id := objectid.Hash(objType, data)
		idToOffset[id] = entryStart

		entryEnd := raw.BodyStart + raw.CompLen
		crc, err := crcRange(ra, entryStart, entryEnd-entryStart)
		if err != nil {
			return nil, err
		}

		entries = append(entries, idx.Entry{ID: id, Offset: uint64(entryStart), CRC32: crc})
		offset = entryEnd
	}
	return entries, nil
}

func crcRange(ra io.ReaderAt, start, length int64) (uint32, error) {
	buf := make([]byte, length)
	if _, err := ra.ReadAt(buf, start); err != nil {
		return 0, fmt.Errorf("%w: read entry bytes for crc: %v", giterr.ErrCorruptPack, err)
	}
	return crc32.ChecksumIEEE(buf), nil
}

// entryRaw is one pack entry decoded one level deep: its header, the
// raw (possibly still-deltified) bytes, and enough positional
// information for a caller to advance past it or locate its base.
type entryRaw struct {
	Header     EntryHeader
	BodyStart  int64
	CompLen    int64
	Bytes      []byte
	BaseOffset int64       // valid only when Header.Type is OFSDeltaObject
	BaseID     objectid.ID // valid only when Header.Type is REFDeltaObject
}

func readEntryRaw(ra io.ReaderAt, offset int64) (entryRaw, error) {
	obr := &offsetByteReader{ra: ra, pos: offset}
	hdr, err := decodeEntryHeader(obr)
	if err != nil {
		return entryRaw{}, err
	}

	var baseOffset int64
	var baseID objectid.ID
	switch hdr.Type {
	case objectid.OFSDeltaObject:
		negOffset, err := decodeOffset(obr)
		if err != nil {
			return entryRaw{}, err
		}
		baseOffset = offset - negOffset
		if baseOffset < 0 || baseOffset >= offset {
			return entryRaw{}, fmt.Errorf("%w: ofs_delta base offset out of range", giterr.ErrCorruptPack)
		}

	case objectid.REFDeltaObject:
		var idBytes [objectid.Size]byte
		for i := range idBytes {
			b, err := obr.ReadByte()
			if err != nil {
				return entryRaw{}, fmt.Errorf("%w: truncated ref_delta base id: %v", giterr.ErrCorruptPack, err)
			}
			idBytes[i] = b
		}
		baseID, err = objectid.FromBinary(idBytes[:])
		if err != nil {
			return entryRaw{}, err
		}
	}

	bodyStart := obr.pos
	data, compLen, err := inflateAt(ra, bodyStart, hdr.Size)
	if err != nil {
		return entryRaw{}, err
	}

	return entryRaw{
		Header:     hdr,
		BodyStart:  bodyStart,
		CompLen:    compLen,
		Bytes:      data,
		BaseOffset: baseOffset,
		BaseID:     baseID,
	}, nil
}

// materialize turns a decoded entry into its final bytes and root type,
// recursing through resolveBase for delta bases. raw.Bytes holds either
// the whole object body or the still-encoded delta instruction stream,
// depending on raw.Header.Type.
func materialize(ra io.ReaderAt, raw entryRaw, idToOffset map[objectid.ID]int64, cache *reuseCache, depth int) (objectid.ObjectType, []byte, error) {
	switch raw.Header.Type {
	case objectid.CommitObject, objectid.TreeObject, objectid.BlobObject, objectid.TagObject:
		return raw.Header.Type, raw.Bytes, nil

	case objectid.OFSDeltaObject:
		baseType, baseData, err := resolveBase(ra, raw.BaseOffset, idToOffset, cache, depth+1)
		if err != nil {
			return objectid.InvalidObject, nil, err
		}
		target, err := DecodeDelta(baseData, raw.Bytes)
		if err != nil {
			return objectid.InvalidObject, nil, err
		}
		return baseType, target, nil

	case objectid.REFDeltaObject:
		baseOffset, ok := idToOffset[raw.BaseID]
		if !ok {
			return objectid.InvalidObject, nil, fmt.Errorf("%w: ref_delta base %s not found in pack (thin packs unsupported)", giterr.ErrCorruptPack, raw.BaseID)
		}
		baseType, baseData, err := resolveBase(ra, baseOffset, idToOffset, cache, depth+1)
		if err != nil {
			return objectid.InvalidObject, nil, err
		}
		target, err := DecodeDelta(baseData, raw.Bytes)
		if err != nil {
			return objectid.InvalidObject, nil, err
		}
		return baseType, target, nil

	default:
		return objectid.InvalidObject, nil, fmt.Errorf("%w: unexpected entry type %v", giterr.ErrCorruptPack, raw.Header.Type)
	}
}

// resolveBase returns the fully materialized type and bytes for the
// entry at offset, serving them from cache when present and otherwise
// re-reading and re-decompressing it (recursing through its own chain
// if it is itself a delta), per spec.md §4.H "a miss re-reads and
// re-decompresses the entry at its offset (recursive for delta chains)".
func resolveBase(ra io.ReaderAt, offset int64, idToOffset map[objectid.ID]int64, cache *reuseCache, depth int) (objectid.ObjectType, []byte, error) {
	if obj, ok := cache.get(offset); ok {
		return obj.Type, obj.Data, nil
	}
	if depth > maxReceiverChainDepth {
		return objectid.InvalidObject, nil, fmt.Errorf("%w: delta chain too deep while reconstructing base", giterr.ErrCorruptPack)
	}

	raw, err := readEntryRaw(ra, offset)
	if err != nil {
		return objectid.InvalidObject, nil, err
	}
	objType, data, err := materialize(ra, raw, idToOffset, cache, depth)
	if err != nil {
		return objectid.InvalidObject, nil, err
	}
	cache.add(offset, cachedObject{Type: objType, Data: data})
	return objType, data, nil
}

// cachedObject is one reconstruction held by reuseCache.
type cachedObject struct {
	Type objectid.ObjectType
	Data []byte
}

// reuseCache is a byte-budgeted cache of reconstructed object bytes
// keyed by pack offset, evicted oldest-inserted-first (spec.md §4.H
// "eviction is FIFO"). This is hand-rolled rather than built on
// github.com/golang/groupcache/lru (the cache storage/store.go uses for
// the combined object store's cache, spec.md §4.K): that cache's
// eviction order follows access recency, which is the opposite of what
// this component calls for, so reusing it here would silently change
// the eviction policy the spec names.
type reuseCache struct {
	maxBytes int64
	bytes    int64
	order    []int64
	entries  map[int64]cachedObject
}

func newReuseCache(maxBytes int64) *reuseCache {
	return &reuseCache{maxBytes: maxBytes, entries: map[int64]cachedObject{}}
}

func (c *reuseCache) get(offset int64) (cachedObject, bool) {
	obj, ok := c.entries[offset]
	return obj, ok
}

func (c *reuseCache) add(offset int64, obj cachedObject) {
	if _, exists := c.entries[offset]; exists {
		return
	}
	c.entries[offset] = obj
	c.order = append(c.order, offset)
	c.bytes += int64(len(obj.Data))

	for c.bytes > c.maxBytes && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if old, ok := c.entries[oldest]; ok {
			c.bytes -= int64(len(old.Data))
			delete(c.entries, oldest)
		}
	}
}
