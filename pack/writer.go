package pack

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"hash"
	"hash/crc32"
	"io"
	"sort"

	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/lukasojd/puregit/idx"
	"github.com/lukasojd/puregit/objectid"
)

// PackObject is one object to be written into a pack, identified and
// addressed the way the combined store hands objects to the writer
// (spec.md §4.G).
type PackObject struct {
	ID   objectid.ID
	Type objectid.ObjectType
	Data []byte // uncompressed body
}

// WriterConfig tunes the delta search, grounded on spec.md §4.G's
// named knobs.
type WriterConfig struct {
	Window                 int
	MaxDepth               int
	EnableDelta            bool
	GenerateIndex          bool
	CompressionLevel       int
	DepthPenaltyFactor     int
	SizeBucketRatio        float64
	MaxCandidatesPerObject int
}

// DefaultWriterConfig matches the values spec.md §4.G names as
// defaults (window 10, depth 50, zlib level 6).
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Window:                 10,
		MaxDepth:               50,
		EnableDelta:            true,
		GenerateIndex:          true,
		CompressionLevel:       zlib.DefaultCompression,
		DepthPenaltyFactor:     10,
		SizeBucketRatio:        0.5,
		MaxCandidatesPerObject: 10,
	}
}

// ReuseSource lets the writer pull an already-encoded delta for an
// object straight out of a source pack instead of re-diffing it
// (spec.md §4.G "reuse an existing delta without rebuilding it").
type ReuseSource interface {
	Reuse(id objectid.ID) (DeltaReuse, bool)
}

// WriteResult is what a successful Write call produced.
type WriteResult struct {
	PackSHA objectid.ID
	Index   *idx.Index // nil unless cfg.GenerateIndex
}

// candidate is one object considered as a delta base for later objects
// in its size bucket.
type candidate struct {
	obj    PackObject
	offset int64
	depth  int
}

// Write streams objects into w as a v2 pack (spec.md §4.G): objects
// are sorted by (type, size desc), each is tried against up to
// MaxCandidatesPerObject same-type candidates within the trailing
// Window; the lowest-scoring candidate (size distance plus depth
// penalty) is delta-encoded against, and the delta is written only if
// it is smaller than the zlib-compressed whole object, else the object
// is written whole. The pack ends with a streaming SHA-1 trailer.
//
// Grounded on go-git's plumbing/format/packfile/encoder.go for the
// header/varint/zlib framing shape; the delta window itself is this
// module's own construction (go-git's encoder does not implement
// delta compression on write, only pass-through of already-deltified
// objects), using a size-keyed github.com/emirpasic/gods/trees/redblacktree
// to find nearby-sized candidates instead of a linear scan.
func Write(w io.Writer, objects []PackObject, cfg WriterConfig, reuse ReuseSource) (WriteResult, error) {
	sorted := sortObjects(objects)

	hw := newHashingCountWriter(w)

	if _, err := hw.Write(Magic[:]); err != nil {
		return WriteResult{}, err
	}
	if err := writeBE32(hw, Version); err != nil {
		return WriteResult{}, err
	}
	if err := writeBE32(hw, uint32(len(sorted))); err != nil {
		return WriteResult{}, err
	}

	entries := make([]idx.Entry, 0, len(sorted))
	windows := map[objectid.ObjectType]*deltaWindow{}

	for _, obj := range sorted {
		win := windows[obj.Type]
		if win == nil {
			win = newDeltaWindow(cfg.Window, cfg.MaxCandidatesPerObject, cfg.SizeBucketRatio)
			windows[obj.Type] = win
		}

		offset := hw.count
		crc, depth, err := writeEntry(hw, obj, win, cfg, reuse)
		if err != nil {
			return WriteResult{}, err
		}

		entries = append(entries, idx.Entry{ID: obj.ID, Offset: uint64(offset), CRC32: crc})
		win.push(candidate{obj: obj, offset: offset, depth: depth})
	}

	var packSHA objectid.ID
	copy(packSHA[:], hw.h.Sum(nil))
	if _, err := w.Write(packSHA.Bytes()); err != nil {
		return WriteResult{}, err
	}

	result := WriteResult{PackSHA: packSHA}
	if cfg.GenerateIndex {
		result.Index = idx.New(entries)
		result.Index.PackSHA = packSHA
	}
	return result, nil
}

func sortObjects(objects []PackObject) []PackObject {
	sorted := append([]PackObject(nil), objects...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return typePriority(sorted[i].Type) < typePriority(sorted[j].Type)
		}
		return len(sorted[i].Data) > len(sorted[j].Data)
	})
	return sorted
}

// typePriority orders commits first, then trees, then blobs, then tags
// (spec.md §4.G "sorted by type"), clustering objects that are likely
// to share structure (trees/blobs of a similar commit) next to each
// other in the delta window.
func typePriority(t objectid.ObjectType) int {
	switch t {
	case objectid.CommitObject:
		return 0
	case objectid.TreeObject:
		return 1
	case objectid.BlobObject:
		return 2
	case objectid.TagObject:
		return 3
	default:
		return 4
	}
}

func writeEntry(hw *hashingCountWriter, obj PackObject, win *deltaWindow, cfg WriterConfig, reuse ReuseSource) (sum uint32, depth int, err error) {
	crcW := newCRCWriter(hw)

	if cfg.EnableDelta && reuse != nil {
		if du, ok := reuse.Reuse(obj.ID); ok && du.IsOffset {
			// Only offset-delta reuse is safe without rewriting: a
			// ref-delta's base id is stable regardless of where the
			// base lands in this pack, but an offset-delta's encoding
			// is only valid if the base is still at the offset this
			// writer already placed it at.
			if basePos, ok := win.offsetOf(du.BaseID); ok {
				relOffset := hw.count - basePos
				if relOffset > 0 {
					if werr := writeOfsDeltaEntry(crcW, relOffset, du.RawDelta); werr != nil {
						return 0, 0, werr
					}
					return crcW.sum, du.BaseDepth + 1, nil
				}
			}
		}
	}

	if cfg.EnableDelta {
		if base, ok := win.bestCandidate(obj, cfg.MaxDepth, cfg.DepthPenaltyFactor); ok {
			compressedWhole := compressedSizeEstimate(obj.Data, cfg.CompressionLevel)
			if delta, ok := EncodeDelta(base.obj.Data, obj.Data, compressedWhole); ok {
				relOffset := hw.count - base.offset
				if werr := writeOfsDeltaEntry(crcW, relOffset, delta); werr != nil {
					return 0, 0, werr
				}
				return crcW.sum, base.depth + 1, nil
			}
		}
	}

	if werr := writeWholeEntry(crcW, obj); werr != nil {
		return 0, 0, werr
	}
	return crcW.sum, 0, nil
}

func writeWholeEntry(w io.Writer, obj PackObject) error {
	header := encodeEntryHeader(obj.Type.PackTypeCode(), int64(len(obj.Data)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	return deflate(w, obj.Data)
}

func writeOfsDeltaEntry(w io.Writer, relOffset int64, delta []byte) error {
	header := encodeEntryHeader(objectid.OFSDeltaObject.PackTypeCode(), int64(len(delta)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(encodeOffset(relOffset)); err != nil {
		return err
	}
	return deflate(w, delta)
}

func deflate(w io.Writer, body []byte) error {
	zw := zlib.NewWriter(w)
	if _, err := zw.Write(body); err != nil {
		return err
	}
	return zw.Close()
}

func compressedSizeEstimate(body []byte, level int) int {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		zw = zlib.NewWriter(&buf)
	}
	zw.Write(body)
	zw.Close()
	return buf.Len()
}

func writeBE32(w io.Writer, v uint32) error {
	var b [4]byte
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
	_, err := w.Write(b[:])
	return err
}

// hashingCountWriter tracks both the running SHA-1 trailer and the
// current byte offset, so each entry's starting offset is known as it
// is written.
type hashingCountWriter struct {
	w     io.Writer
	h     hash.Hash
	count int64
}

func newHashingCountWriter(w io.Writer) *hashingCountWriter {
	return &hashingCountWriter{w: w, h: sha1.New()}
}

func (hw *hashingCountWriter) Write(p []byte) (int, error) {
	hw.h.Write(p)
	n, err := hw.w.Write(p)
	hw.count += int64(n)
	return n, err
}

// deltaWindow is the trailing set of recently written same-type
// objects eligible as a delta base, ordered by size via a
// redblacktree so same-bucket candidates can be found without a
// linear scan over the whole window.
type deltaWindow struct {
	maxSize      int
	maxCandidate int
	bucketRatio  float64

	order  []objectid.ID // FIFO eviction order
	byID   map[objectid.ID]candidate
	bySize *redblacktree.Tree
}

func newDeltaWindow(maxSize, maxCandidate int, bucketRatio float64) *deltaWindow {
	return &deltaWindow{
		maxSize:      maxSize,
		maxCandidate: maxCandidate,
		bucketRatio:  bucketRatio,
		byID:         map[objectid.ID]candidate{},
		bySize:       redblacktree.NewWithIntComparator(),
	}
}

func (w *deltaWindow) push(c candidate) {
	if w.maxSize <= 0 {
		return
	}
	size := len(c.obj.Data)
	w.insertSize(size, c.obj.ID)
	w.byID[c.obj.ID] = c
	w.order = append(w.order, c.obj.ID)

	for len(w.order) > w.maxSize {
		old := w.order[0]
		w.order = w.order[1:]
		if oc, ok := w.byID[old]; ok {
			w.removeSize(len(oc.obj.Data), old)
			delete(w.byID, old)
		}
	}
}

func (w *deltaWindow) insertSize(size int, id objectid.ID) {
	if v, found := w.bySize.Get(size); found {
		ids := v.([]objectid.ID)
		w.bySize.Put(size, append(ids, id))
		return
	}
	w.bySize.Put(size, []objectid.ID{id})
}

func (w *deltaWindow) removeSize(size int, id objectid.ID) {
	v, found := w.bySize.Get(size)
	if !found {
		return
	}
	ids := v.([]objectid.ID)
	for i, existing := range ids {
		if existing == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		w.bySize.Remove(size)
	} else {
		w.bySize.Put(size, ids)
	}
}

func (w *deltaWindow) offsetOf(id objectid.ID) (int64, bool) {
	c, ok := w.byID[id]
	if !ok {
		return 0, false
	}
	return c.offset, true
}

// bestCandidate picks the candidate scoring lowest on size distance
// plus a per-depth penalty among the size-tree buckets at Floor and
// Ceiling of the target size (the exact-size bucket when one exists,
// otherwise the nearest smaller and larger ones), skipping any whose
// delta chain is
// already at maxDepth (spec.md §4.G "bounded search window...
// respecting max_depth"). The depth penalty discourages building ever
// longer chains off a base that is itself already deep, the way git's
// own delta heuristic weighs depth against size savings.
func (w *deltaWindow) bestCandidate(target PackObject, maxDepth, depthPenaltyFactor int) (candidate, bool) {
	targetSize := len(target.Data)
	if targetSize == 0 {
		return candidate{}, false
	}

	lowBound := int(float64(targetSize) * w.bucketRatio)
	highBound := targetSize
	if w.bucketRatio > 0 {
		highBound = int(float64(targetSize) / w.bucketRatio)
	}

	var probed []objectid.ID
	collect := func(size int) {
		if v, found := w.bySize.Get(size); found {
			probed = append(probed, v.([]objectid.ID)...)
		}
	}
	if floor, ok := w.bySize.Floor(targetSize); ok {
		collect(floor.Key.(int))
	}
	if ceil, ok := w.bySize.Ceiling(targetSize); ok {
		collect(ceil.Key.(int))
	}

	var best candidate
	found := false
	considered := 0
	for _, id := range probed {
		if considered >= w.maxCandidate {
			break
		}
		c, ok := w.byID[id]
		if !ok || c.obj.ID == target.ID {
			continue
		}
		if c.depth >= maxDepth {
			continue
		}
		if len(c.obj.Data) < lowBound || len(c.obj.Data) > highBound {
			continue
		}
		considered++
		if !found || score(c, targetSize, depthPenaltyFactor) < score(best, targetSize, depthPenaltyFactor) {
			best = c
			found = true
		}
	}
	return best, found
}

func score(c candidate, targetSize, depthPenaltyFactor int) int {
	return sizeDistance(c, targetSize) + c.depth*depthPenaltyFactor
}

func sizeDistance(c candidate, targetSize int) int {
	d := len(c.obj.Data) - targetSize
	if d < 0 {
		d = -d
	}
	return d
}

// crcWriter computes the CRC32 of everything written to it while
// forwarding to the underlying writer, so Write can report each
// entry's CRC32 for the index (spec.md §4.F).
type crcWriter struct {
	w   io.Writer
	sum uint32
}

func newCRCWriter(w io.Writer) *crcWriter {
	return &crcWriter{w: w}
}

func (c *crcWriter) Write(p []byte) (int, error) {
	c.sum = crc32.Update(c.sum, crc32.IEEETable, p)
	return c.w.Write(p)
}
