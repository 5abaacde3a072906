package loose_test

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/loose"
	"github.com/lukasojd/puregit/object"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := loose.New(memfs.New())

	blob := &object.Blob{Content: []byte("hello\n")}
	id, err := s.Write(blob)
	require.NoError(t, err)
	require.True(t, s.Exists(id))

	got, err := s.Read(id)
	require.NoError(t, err)
	require.Equal(t, blob, got)
}

func TestWriteDedupesByID(t *testing.T) {
	s := loose.New(memfs.New())

	blob := &object.Blob{Content: []byte("same\n")}
	id1, err := s.Write(blob)
	require.NoError(t, err)
	id2, err := s.Write(blob)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := loose.New(memfs.New())
	blob := &object.Blob{Content: []byte("x")}
	id, err := object.ID(blob)
	require.NoError(t, err)

	_, err = s.Read(id)
	require.ErrorIs(t, err, giterr.ErrNotFound)
}

func TestFindByPrefixUniqueAndNotFound(t *testing.T) {
	s := loose.New(memfs.New())

	// Two distinct blobs that happen to share a hash prefix are
	// extremely unlikely to occur naturally; exercise the ambiguous
	// path directly against the same object written twice is not
	// possible (it dedupes), so here we just check the not-found and
	// unique-match paths which are the reachable cases in practice.
	blob := &object.Blob{Content: []byte("unique content for prefix test")}
	id, err := s.Write(blob)
	require.NoError(t, err)

	found, err := s.FindByPrefix(id.String()[:8])
	require.NoError(t, err)
	require.Equal(t, id, found)

	_, err = s.FindByPrefix("ffffffff")
	require.ErrorIs(t, err, giterr.ErrNotFound)
}

func TestReadRawHeader(t *testing.T) {
	s := loose.New(memfs.New())
	blob := &object.Blob{Content: []byte("header test content")}
	id, err := s.Write(blob)
	require.NoError(t, err)

	h, err := s.ReadRawHeader(id)
	require.NoError(t, err)
	require.Equal(t, int64(len(blob.Content)), h.Size)
}
