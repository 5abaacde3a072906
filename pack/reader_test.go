package pack

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/objectid"
)

// packBuilder assembles a minimal in-memory pack for reader tests,
// tracking each appended entry's starting offset.
type packBuilder struct {
	buf     bytes.Buffer
	offsets []int64
}

func newPackBuilder(count uint32) *packBuilder {
	pb := &packBuilder{}
	pb.buf.Write(Magic[:])
	var hdr [8]byte
	hdr[0], hdr[1], hdr[2], hdr[3] = 0, 0, 0, Version
	hdr[4] = byte(count >> 24)
	hdr[5] = byte(count >> 16)
	hdr[6] = byte(count >> 8)
	hdr[7] = byte(count)
	pb.buf.Write(hdr[:])
	return pb
}

func (pb *packBuilder) writeEntry(typeCode int, body []byte) int64 {
	offset := int64(pb.buf.Len())
	pb.offsets = append(pb.offsets, offset)
	pb.buf.Write(encodeEntryHeader(typeCode, int64(len(body))))

	zw := zlib.NewWriter(&pb.buf)
	zw.Write(body)
	zw.Close()
	return offset
}

func (pb *packBuilder) writeOfsDeltaEntry(baseOffset int64, delta []byte) int64 {
	offset := int64(pb.buf.Len())
	pb.offsets = append(pb.offsets, offset)
	pb.buf.Write(encodeEntryHeader(objectid.OFSDeltaObject.PackTypeCode(), int64(len(delta))))
	pb.buf.Write(encodeOffset(offset - baseOffset))

	zw := zlib.NewWriter(&pb.buf)
	zw.Write(delta)
	zw.Close()
	return offset
}

func (pb *packBuilder) writeRefDeltaEntry(baseID objectid.ID, delta []byte) int64 {
	offset := int64(pb.buf.Len())
	pb.offsets = append(pb.offsets, offset)
	pb.buf.Write(encodeEntryHeader(objectid.REFDeltaObject.PackTypeCode(), int64(len(delta))))
	pb.buf.Write(baseID.Bytes())

	zw := zlib.NewWriter(&pb.buf)
	zw.Write(delta)
	zw.Close()
	return offset
}

func (pb *packBuilder) reader() *bytes.Reader { return bytes.NewReader(pb.buf.Bytes()) }

func TestReaderWholeObjectRoundTrip(t *testing.T) {
	pb := newPackBuilder(1)
	body := []byte("blob content here")
	off := pb.writeEntry(objectid.BlobObject.PackTypeCode(), body)

	r, err := Open(pb.reader())
	require.NoError(t, err)
	require.EqualValues(t, 1, r.Count())

	obj, err := r.ReadAt(off, nil)
	require.NoError(t, err)
	require.Equal(t, objectid.BlobObject, obj.Type)
	require.Equal(t, body, obj.Data)
}

func TestReaderResolvesOfsDeltaChain(t *testing.T) {
	base := []byte("AAAAAAAAAAAAAAAA")
	target := append(append([]byte{}, base...), []byte("BBBBBBBBBBBBBBBB")...)
	delta, ok := EncodeDelta(base, target, len(target))
	require.True(t, ok)

	pb := newPackBuilder(2)
	baseOff := pb.writeEntry(objectid.BlobObject.PackTypeCode(), base)
	deltaOff := pb.writeOfsDeltaEntry(baseOff, delta)

	r, err := Open(pb.reader())
	require.NoError(t, err)

	obj, err := r.ReadAt(deltaOff, nil)
	require.NoError(t, err)
	require.Equal(t, objectid.BlobObject, obj.Type)
	require.Equal(t, target, obj.Data)
}

type fakeExternalResolver struct {
	id   objectid.ID
	typ  objectid.ObjectType
	body []byte
}

func (f fakeExternalResolver) GetRawObject(id objectid.ID) (objectid.ObjectType, []byte, error) {
	if id == f.id {
		return f.typ, f.body, nil
	}
	return objectid.InvalidObject, nil, errNotFoundStub{}
}

type errNotFoundStub struct{}

func (errNotFoundStub) Error() string { return "not found" }

func TestReaderResolvesRefDeltaViaExternalResolver(t *testing.T) {
	base := []byte("0123456789abcdef0123456789abcdef")
	target := append(append([]byte{}, base...), []byte("tail bytes appended here")...)
	delta, ok := EncodeDelta(base, target, len(target))
	require.True(t, ok)

	baseID := objectid.Hash(objectid.BlobObject, base)

	pb := newPackBuilder(1)
	deltaOff := pb.writeRefDeltaEntry(baseID, delta)

	r, err := Open(pb.reader())
	require.NoError(t, err)

	ext := fakeExternalResolver{id: baseID, typ: objectid.BlobObject, body: base}
	obj, err := r.ReadAt(deltaOff, ext)
	require.NoError(t, err)
	require.Equal(t, objectid.BlobObject, obj.Type)
	require.Equal(t, target, obj.Data)
}

func TestReaderHeaderOnlyCommit(t *testing.T) {
	body := []byte("tree " + objectid.Zero.String() + "\nauthor a <a@a> 0 +0000\n\ncommit message body")
	pb := newPackBuilder(1)
	off := pb.writeEntry(objectid.CommitObject.PackTypeCode(), body)

	r, err := Open(pb.reader())
	require.NoError(t, err)

	header, err := r.ReadCommitOrTagHeaderAt(off)
	require.NoError(t, err)
	require.Contains(t, string(header), "tree ")
	require.NotContains(t, string(header), "commit message body")
}

func TestReaderRejectsBadMagic(t *testing.T) {
	_, err := Open(bytes.NewReader([]byte("NOPE0000000")))
	require.Error(t, err)
}
