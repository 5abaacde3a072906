package pack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/objectid"
)

func packObject(t objectid.ObjectType, body []byte) PackObject {
	return PackObject{ID: objectid.Hash(t, body), Type: t, Data: body}
}

func TestWriteProducesReadablePack(t *testing.T) {
	blob := packObject(objectid.BlobObject, []byte("hello world"))
	tree := packObject(objectid.TreeObject, []byte("100644 file\x00"+string(blob.ID.Bytes())))
	commit := packObject(objectid.CommitObject, []byte("tree "+tree.ID.String()+"\n\ninitial commit\n"))

	var buf bytes.Buffer
	result, err := Write(&buf, []PackObject{blob, tree, commit}, DefaultWriterConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, result.Index)
	require.Equal(t, 3, result.Index.Count())

	r, err := Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.EqualValues(t, 3, r.Count())

	for _, obj := range []PackObject{blob, tree, commit} {
		offset, err := result.Index.FindOffset(obj.ID)
		require.NoError(t, err)

		got, err := r.ReadAt(offset, nil)
		require.NoError(t, err)
		require.Equal(t, obj.Type, got.Type)
		require.Equal(t, obj.Data, got.Data)
	}
}

func TestWriteEncodesSimilarBlobsCorrectly(t *testing.T) {
	base := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 50)
	target := append(append([]byte{}, base...), []byte("one appended trailer line\n")...)

	baseObj := packObject(objectid.BlobObject, base)
	targetObj := packObject(objectid.BlobObject, target)

	var buf bytes.Buffer
	result, err := Write(&buf, []PackObject{baseObj, targetObj}, DefaultWriterConfig(), nil)
	require.NoError(t, err)

	r, err := Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	// Whichever encoding the writer picked for the second object
	// (whole or OFS delta against the first), it must decode back to
	// the exact original bytes.
	for _, obj := range []PackObject{baseObj, targetObj} {
		offset, err := result.Index.FindOffset(obj.ID)
		require.NoError(t, err)
		got, err := r.ReadAt(offset, nil)
		require.NoError(t, err)
		require.Equal(t, obj.Data, got.Data)
	}
}

func TestWriteDisablesDeltaWhenConfigured(t *testing.T) {
	base := bytes.Repeat([]byte("repeated payload for delta eligibility\n"), 50)
	target := append(append([]byte{}, base...), []byte("more\n")...)

	cfg := DefaultWriterConfig()
	cfg.EnableDelta = false

	var buf bytes.Buffer
	result, err := Write(&buf, []PackObject{
		packObject(objectid.BlobObject, base),
		packObject(objectid.BlobObject, target),
	}, cfg, nil)
	require.NoError(t, err)

	r, err := Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	for _, e := range result.Index.Entries() {
		hdr, err := r.ReadHeaderAt(int64(e.Offset))
		require.NoError(t, err)
		require.NotEqual(t, objectid.OFSDeltaObject, hdr.Type)
	}
}

func TestWriteSkipsIndexWhenDisabled(t *testing.T) {
	cfg := DefaultWriterConfig()
	cfg.GenerateIndex = false

	var buf bytes.Buffer
	result, err := Write(&buf, []PackObject{packObject(objectid.BlobObject, []byte("x"))}, cfg, nil)
	require.NoError(t, err)
	require.Nil(t, result.Index)
}

func TestWriteOrdersCommitsTreesThenBlobs(t *testing.T) {
	blob := packObject(objectid.BlobObject, []byte("blob body"))
	tree := packObject(objectid.TreeObject, []byte("tree body"))
	commit := packObject(objectid.CommitObject, []byte("commit body"))

	var buf bytes.Buffer
	result, err := Write(&buf, []PackObject{blob, tree, commit}, DefaultWriterConfig(), nil)
	require.NoError(t, err)

	r, err := Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	// The writer places commit, tree, blob in that order regardless of
	// input order: the first entry, right after the 12-byte pack header,
	// is the commit, and the index offsets ascend commit < tree < blob.
	hdr, err := r.ReadHeaderAt(12)
	require.NoError(t, err)
	require.Equal(t, objectid.CommitObject, hdr.Type)

	commitOff, err := result.Index.FindOffset(commit.ID)
	require.NoError(t, err)
	treeOff, err := result.Index.FindOffset(tree.ID)
	require.NoError(t, err)
	blobOff, err := result.Index.FindOffset(blob.ID)
	require.NoError(t, err)
	require.Equal(t, int64(12), commitOff)
	require.Less(t, commitOff, treeOff)
	require.Less(t, treeOff, blobOff)
}

// stubReuseSource always reports no reusable delta, exercising the
// ReuseSource plumbing without needing a real source pack.
type stubReuseSource struct{}

func (stubReuseSource) Reuse(objectid.ID) (DeltaReuse, bool) { return DeltaReuse{}, false }

func TestWriteAcceptsNilAndEmptyReuseSource(t *testing.T) {
	obj := packObject(objectid.BlobObject, []byte("payload"))

	var buf bytes.Buffer
	_, err := Write(&buf, []PackObject{obj}, DefaultWriterConfig(), stubReuseSource{})
	require.NoError(t, err)

	var buf2 bytes.Buffer
	_, err = Write(&buf2, []PackObject{obj}, DefaultWriterConfig(), nil)
	require.NoError(t, err)
}
