package pack

import (
	"bytes"
	"fmt"
	"io"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/objectid"
)

// ExternalResolver fetches an object by id from outside this pack, used
// to resolve a ref_delta's base (spec.md §4.E: "fetch base via the
// combined store K"). The combined object store implements this.
type ExternalResolver interface {
	GetRawObject(id objectid.ID) (objectid.ObjectType, []byte, error)
}

// RawObject is a fully resolved, whole (non-delta) object as read from
// a pack: its root type, its reconstructed size, and its bytes.
type RawObject struct {
	Type objectid.ObjectType
	Size int64
	Data []byte
}

// Reader provides random access into a v2 .pack file (spec.md §4.E).
// One Reader holds one underlying file handle; seeking (via ReadAt) is
// not safe for concurrent use from multiple goroutines, matching
// spec.md §4.E's concurrency note. Multiple Readers may open the same
// pack independently.
type Reader struct {
	ra    io.ReaderAt
	count uint32
}

// Open validates the "PACK"+version+count header and returns a Reader.
func Open(ra io.ReaderAt) (*Reader, error) {
	var header [12]byte
	if _, err := ra.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("%w: short pack header: %v", giterr.ErrCorruptPack, err)
	}
	if header[0] != Magic[0] || header[1] != Magic[1] || header[2] != Magic[2] || header[3] != Magic[3] {
		return nil, fmt.Errorf("%w: bad magic", giterr.ErrCorruptPack)
	}
	version := be32(header[4:8])
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", giterr.ErrCorruptPack, version)
	}
	count := be32(header[8:12])

	return &Reader{ra: ra, count: count}, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Count returns the number of entries declared in the pack header.
func (r *Reader) Count() uint32 { return r.count }

// offsetByteReader wraps an io.ReaderAt with an absolute position so
// the byteReader-based header decoders can read one byte at a time
// starting at an arbitrary offset within the pack.
type offsetByteReader struct {
	ra  io.ReaderAt
	pos int64
}

func (o *offsetByteReader) ReadByte() (byte, error) {
	var b [1]byte
	n, err := o.ra.ReadAt(b[:], o.pos)
	if n == 1 {
		o.pos++
		return b[0], nil
	}
	return 0, err
}

// ReadAt decodes and fully resolves the object stored at offset,
// recursing through OFS/REF delta chains via ext for ref_delta bases
// (spec.md §4.E).
func (r *Reader) ReadAt(offset int64, ext ExternalResolver) (*RawObject, error) {
	return r.readAt(offset, ext, 0)
}

const maxDeltaChainDepth = 50 // generous bound; a real chain rarely exceeds max_depth (§4.G)

func (r *Reader) readAt(offset int64, ext ExternalResolver, depth int) (*RawObject, error) {
	if depth > maxDeltaChainDepth {
		return nil, fmt.Errorf("%w: delta chain too deep", giterr.ErrCorruptPack)
	}

	obr := &offsetByteReader{ra: r.ra, pos: offset}
	hdr, err := decodeEntryHeader(obr)
	if err != nil {
		return nil, err
	}

	switch hdr.Type {
	case objectid.CommitObject, objectid.TreeObject, objectid.BlobObject, objectid.TagObject:
		data, _, err := inflateAt(r.ra, obr.pos, hdr.Size)
		if err != nil {
			return nil, err
		}
		return &RawObject{Type: hdr.Type, Size: hdr.Size, Data: data}, nil

	case objectid.OFSDeltaObject:
		negOffset, err := decodeOffset(obr)
		if err != nil {
			return nil, err
		}
		baseOffset := offset - negOffset
		if baseOffset < 0 || baseOffset >= offset {
			return nil, fmt.Errorf("%w: ofs_delta base offset out of range", giterr.ErrCorruptPack)
		}

		deltaBytes, _, err := inflateDeltaBody(r.ra, obr.pos, hdr.Size)
		if err != nil {
			return nil, err
		}

		base, err := r.readAt(baseOffset, ext, depth+1)
		if err != nil {
			return nil, err
		}
		target, err := DecodeDelta(base.Data, deltaBytes)
		if err != nil {
			return nil, err
		}
		return &RawObject{Type: base.Type, Size: int64(len(target)), Data: target}, nil

	case objectid.REFDeltaObject:
		var idBytes [objectid.Size]byte
		for i := range idBytes {
			b, err := obr.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("%w: truncated ref_delta base id: %v", giterr.ErrCorruptPack, err)
			}
			idBytes[i] = b
		}
		baseID, err := objectid.FromBinary(idBytes[:])
		if err != nil {
			return nil, err
		}

		deltaBytes, _, err := inflateDeltaBody(r.ra, obr.pos, hdr.Size)
		if err != nil {
			return nil, err
		}

		if ext == nil {
			return nil, fmt.Errorf("%w: ref_delta with no external resolver (thin packs unsupported)", giterr.ErrCorruptPack)
		}
		baseType, baseData, err := ext.GetRawObject(baseID)
		if err != nil {
			return nil, fmt.Errorf("%w: ref_delta base %s: %v", giterr.ErrCorruptPack, baseID, err)
		}

		target, err := DecodeDelta(baseData, deltaBytes)
		if err != nil {
			return nil, err
		}
		return &RawObject{Type: baseType, Size: int64(len(target)), Data: target}, nil

	default:
		return nil, fmt.Errorf("%w: unexpected entry type %v", giterr.ErrCorruptPack, hdr.Type)
	}
}

// inflateDeltaBody inflates a delta instruction stream, whose declared
// size in the entry header is the stream's *uncompressed* length, same
// as a whole object.
func inflateDeltaBody(ra io.ReaderAt, offset int64, size int64) ([]byte, int64, error) {
	return inflateAt(ra, offset, size)
}

// ReadHeaderAt parses only the entry header at offset, without
// inflating the body — used by callers that only need the type/size
// (e.g. to decide whether to bother resolving a delta chain).
func (r *Reader) ReadHeaderAt(offset int64) (EntryHeader, error) {
	obr := &offsetByteReader{ra: r.ra, pos: offset}
	return decodeEntryHeader(obr)
}

// ReadCommitOrTagHeaderAt returns a commit/tag's header lines: the
// bytes before the first blank line that separates them from the
// message. It inflates the whole entry body before cutting; it does
// not stop inflating at the blank line. It only applies to whole
// (non-delta) entries; deltified commits/tags must be fully resolved
// via ReadAt.
func (r *Reader) ReadCommitOrTagHeaderAt(offset int64) ([]byte, error) {
	obr := &offsetByteReader{ra: r.ra, pos: offset}
	hdr, err := decodeEntryHeader(obr)
	if err != nil {
		return nil, err
	}
	if hdr.Type != objectid.CommitObject && hdr.Type != objectid.TagObject {
		return nil, fmt.Errorf("%w: not a commit or tag entry", giterr.ErrInvalidObject)
	}

	data, _, err := inflateAt(r.ra, obr.pos, hdr.Size)
	if err != nil {
		return nil, err
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return data[:i], nil
	}
	return data, nil
}

// DeltaReuse describes a delta a pack writer (G) can copy verbatim
// instead of re-encoding (spec.md §4.E "delta-reuse accessor").
type DeltaReuse struct {
	BaseID    objectid.ID
	RawDelta  []byte
	IsOffset  bool
	BaseDepth int
}

// GetDeltaReuse returns the raw delta bytes of the delta entry at
// offset, together with the id of its base (read from the entry for
// ref_delta, resolved via resolveOffsetID for ofs_delta). Returns
// ok=false for a whole object. BaseDepth is left zero.
func (r *Reader) GetDeltaReuse(offset int64, resolveOffsetID func(int64) (objectid.ID, error)) (DeltaReuse, bool, error) {
	obr := &offsetByteReader{ra: r.ra, pos: offset}
	hdr, err := decodeEntryHeader(obr)
	if err != nil {
		return DeltaReuse{}, false, err
	}

	switch hdr.Type {
	case objectid.OFSDeltaObject:
		negOffset, err := decodeOffset(obr)
		if err != nil {
			return DeltaReuse{}, false, err
		}
		baseOffset := offset - negOffset
		baseID, err := resolveOffsetID(baseOffset)
		if err != nil {
			return DeltaReuse{}, false, err
		}
		deltaBytes, _, err := inflateDeltaBody(r.ra, obr.pos, hdr.Size)
		if err != nil {
			return DeltaReuse{}, false, err
		}
		return DeltaReuse{BaseID: baseID, RawDelta: deltaBytes, IsOffset: true}, true, nil

	case objectid.REFDeltaObject:
		var idBytes [objectid.Size]byte
		for i := range idBytes {
			b, err := obr.ReadByte()
			if err != nil {
				return DeltaReuse{}, false, err
			}
			idBytes[i] = b
		}
		baseID, err := objectid.FromBinary(idBytes[:])
		if err != nil {
			return DeltaReuse{}, false, err
		}
		deltaBytes, _, err := inflateDeltaBody(r.ra, obr.pos, hdr.Size)
		if err != nil {
			return DeltaReuse{}, false, err
		}
		return DeltaReuse{BaseID: baseID, RawDelta: deltaBytes}, true, nil

	default:
		return DeltaReuse{}, false, nil
	}
}
