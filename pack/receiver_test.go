package pack

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/objectid"
)

// buildRawPack assembles a complete pack byte stream by hand so tests
// can pin down exactly which entries are whole objects versus deltas,
// independent of whatever the Writer's own heuristics would choose.
type rawEntry struct {
	typeCode int
	size     int64
	extra    []byte // encodeOffset or base-id bytes, already positioned after the header
	body     []byte // to be deflated
}

func buildRawPack(t *testing.T, entries []rawEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(Magic[:])
	binary.Write(&buf, binary.BigEndian, uint32(Version))
	binary.Write(&buf, binary.BigEndian, uint32(len(entries)))

	for _, e := range entries {
		buf.Write(encodeEntryHeader(e.typeCode, e.size))
		buf.Write(e.extra)
		w := zlib.NewWriter(&buf)
		_, err := w.Write(e.body)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes()
}

func TestReceiverResolvesOfsDeltaAgainstEarlierObject(t *testing.T) {
	base := bytes.Repeat([]byte("base content line\n"), 20)
	unrelated := []byte("a completely different second object")
	wantTarget := append(append([]byte{}, base...), []byte("trailer appended to the delta target\n")...)

	delta, ok := EncodeDelta(base, wantTarget, len(wantTarget))
	require.True(t, ok)

	blobCode := objectid.BlobObject.PackTypeCode()

	entries := []rawEntry{
		{typeCode: blobCode, size: int64(len(base)), body: base},
		{typeCode: blobCode, size: int64(len(unrelated)), body: unrelated},
		{}, // placeholder, filled below once offsets are known
	}

	// Compute entry1's on-disk start (always 12: "PACK"+version+count)
	// and entry3's start by building the first two entries first.
	partial := buildRawPack(t, entries[:2])
	// buildRawPack appended a trailer hash; strip it, we only wanted offsets.
	partial = partial[:len(partial)-objectid.Size]

	entry1Start := int64(12)
	entry3Start := int64(len(partial))
	negOffset := entry3Start - entry1Start

	entries[2] = rawEntry{
		typeCode: objectid.OFSDeltaObject.PackTypeCode(),
		size:     int64(len(delta)),
		extra:    encodeOffset(negOffset),
		body:     delta,
	}

	raw := buildRawPack(t, entries)

	dir := t.TempDir()
	path := filepath.Join(dir, "incoming")

	recv, err := NewReceiver(path)
	require.NoError(t, err)
	_, err = recv.Write(raw)
	require.NoError(t, err)

	result, err := recv.Finish()
	require.NoError(t, err)
	require.FileExists(t, path+".pack")
	require.FileExists(t, path+".idx")
	require.Equal(t, 3, result.Index.Count())

	wantID := objectid.Hash(objectid.BlobObject, wantTarget)
	offset, err := result.Index.FindOffset(wantID)
	require.NoError(t, err)
	require.Equal(t, entry3Start, offset)

	reopened, err := os.Open(path + ".pack")
	require.NoError(t, err)
	defer reopened.Close()
	reader, err := Open(reopened)
	require.NoError(t, err)

	got, err := reader.ReadAt(offset, nil)
	require.NoError(t, err)
	require.Equal(t, objectid.BlobObject, got.Type)
	require.Equal(t, wantTarget, got.Data)
}

func TestReceiverFailsOnThinPackRefDelta(t *testing.T) {
	missingBase := objectid.Hash(objectid.BlobObject, []byte("never present in this pack"))
	delta := []byte{0x00, 0x01, 0x01, 'x'} // syntactically irrelevant; base lookup fails first

	entries := []rawEntry{
		{
			typeCode: objectid.REFDeltaObject.PackTypeCode(),
			size:     4,
			extra:    missingBase.Bytes(),
			body:     delta,
		},
	}
	raw := buildRawPack(t, entries)

	dir := t.TempDir()
	path := filepath.Join(dir, "thin")

	recv, err := NewReceiver(path)
	require.NoError(t, err)
	_, err = recv.Write(raw)
	require.NoError(t, err)

	_, err = recv.Finish()
	require.Error(t, err)
	require.Contains(t, err.Error(), "thin pack")
}

func TestReuseCacheEvictsOldestFirstUnderByteBudget(t *testing.T) {
	c := newReuseCache(10)
	c.add(0, cachedObject{Type: objectid.BlobObject, Data: make([]byte, 4)})
	c.add(4, cachedObject{Type: objectid.BlobObject, Data: make([]byte, 4)})

	_, ok := c.get(0)
	require.True(t, ok, "both entries fit under the budget so far")

	// Pushes total past the 10-byte budget; the oldest entry (offset 0)
	// must be evicted first, not the most recently used one.
	c.add(8, cachedObject{Type: objectid.BlobObject, Data: make([]byte, 4)})

	_, stillThere := c.get(0)
	require.False(t, stillThere)
	_, secondStillThere := c.get(4)
	require.True(t, secondStillThere)
	_, thirdStillThere := c.get(8)
	require.True(t, thirdStillThere)
}

func TestReceiverRoundTripsWholeObjectsOnly(t *testing.T) {
	blobCode := objectid.BlobObject.PackTypeCode()
	a := []byte("first object")
	b := []byte("second, unrelated object")

	entries := []rawEntry{
		{typeCode: blobCode, size: int64(len(a)), body: a},
		{typeCode: blobCode, size: int64(len(b)), body: b},
	}
	raw := buildRawPack(t, entries)

	dir := t.TempDir()
	path := filepath.Join(dir, "plain")

	recv, err := NewReceiver(path)
	require.NoError(t, err)
	_, err = recv.Write(raw)
	require.NoError(t, err)

	result, err := recv.Finish()
	require.NoError(t, err)
	require.Equal(t, 2, result.Index.Count())

	for _, body := range [][]byte{a, b} {
		id := objectid.Hash(objectid.BlobObject, body)
		_, err := result.Index.FindOffset(id)
		require.NoError(t, err)
	}
}
