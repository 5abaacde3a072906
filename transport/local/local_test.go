package local_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/object"
	"github.com/lukasojd/puregit/objectid"
	"github.com/lukasojd/puregit/pack"
	"github.com/lukasojd/puregit/refs"
	"github.com/lukasojd/puregit/storage"
	"github.com/lukasojd/puregit/transport"
	"github.com/lukasojd/puregit/transport/local"
)

func openRepo(t *testing.T) *local.Repository {
	t.Helper()
	fs := osfs.New(t.TempDir())
	objects, err := storage.New(fs)
	require.NoError(t, err)
	return &local.Repository{Objects: objects, Refs: refs.New(fs)}
}

// commitWithTree writes a single-file tree and a commit pointing at it,
// returning the commit id.
func commitWithTree(t *testing.T, repo *local.Repository, content string) objectid.ID {
	t.Helper()
	blob := &object.Blob{Content: []byte(content)}
	blobID, err := repo.Objects.Write(blob)
	require.NoError(t, err)

	tree := &object.Tree{Entries: []object.TreeEntry{
		{Mode: object.ModeRegular, Name: "file.txt", ID: blobID},
	}}
	treeID, err := repo.Objects.Write(tree)
	require.NoError(t, err)

	commit := &object.Commit{
		Tree:      treeID,
		Author:    object.Signature{Name: "a", Email: "a@example.com", When: time.Unix(0, 0).UTC()},
		Committer: object.Signature{Name: "a", Email: "a@example.com", When: time.Unix(0, 0).UTC()},
		Message:   "initial\n",
	}
	commitID, err := repo.Objects.Write(commit)
	require.NoError(t, err)
	return commitID
}

func TestListRefsEnumeratesLocalRefs(t *testing.T) {
	repo := openRepo(t)
	commitID := commitWithTree(t, repo, "hello\n")
	require.NoError(t, repo.Refs.UpdateRef("refs/heads/main", commitID))

	client := local.New(func(string) (*local.Repository, error) { return repo, nil })
	adv, err := client.ListRefs(&transport.Endpoint{Path: "/repo"}, nil)
	require.NoError(t, err)
	require.Equal(t, commitID, adv.Refs["refs/heads/main"])
}

func TestFetchPackContainsReachableClosure(t *testing.T) {
	repo := openRepo(t)
	commitID := commitWithTree(t, repo, "hello\n")

	client := local.New(func(string) (*local.Repository, error) { return repo, nil })

	var buf bytes.Buffer
	err := client.FetchPack(&transport.Endpoint{Path: "/repo"}, nil, []objectid.ID{commitID}, nil, &buf)
	require.NoError(t, err)

	reader, err := pack.Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, uint32(3), reader.Count()) // commit, tree, blob
}

func TestFetchPackExcludesHaves(t *testing.T) {
	repo := openRepo(t)
	base := commitWithTree(t, repo, "v1\n")

	blob := &object.Blob{Content: []byte("v2\n")}
	blobID, err := repo.Objects.Write(blob)
	require.NoError(t, err)
	tree := &object.Tree{Entries: []object.TreeEntry{{Mode: object.ModeRegular, Name: "file.txt", ID: blobID}}}
	treeID, err := repo.Objects.Write(tree)
	require.NoError(t, err)
	second := &object.Commit{
		Tree:      treeID,
		Parents:   []objectid.ID{base},
		Author:    object.Signature{Name: "a", Email: "a@example.com", When: time.Unix(0, 0).UTC()},
		Committer: object.Signature{Name: "a", Email: "a@example.com", When: time.Unix(0, 0).UTC()},
		Message:   "second\n",
	}
	secondID, err := repo.Objects.Write(second)
	require.NoError(t, err)

	client := local.New(func(string) (*local.Repository, error) { return repo, nil })

	var buf bytes.Buffer
	err = client.FetchPack(&transport.Endpoint{Path: "/repo"}, nil, []objectid.ID{secondID}, []objectid.ID{base}, &buf)
	require.NoError(t, err)

	reader, err := pack.Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, uint32(3), reader.Count()) // second commit, its tree, its new blob only
}

func TestSendPackInstallsObjectsAndUpdatesRefs(t *testing.T) {
	src := openRepo(t)
	commitID := commitWithTree(t, src, "world\n")

	srcClient := local.New(func(string) (*local.Repository, error) { return src, nil })
	var packBuf bytes.Buffer
	require.NoError(t, srcClient.FetchPack(&transport.Endpoint{Path: "/src"}, nil, []objectid.ID{commitID}, nil, &packBuf))

	dst := openRepo(t)
	dstClient := local.New(func(string) (*local.Repository, error) { return dst, nil })

	updates := []transport.RefUpdate{{Name: "refs/heads/main", New: commitID}}
	report, err := dstClient.SendPack(&transport.Endpoint{Path: "/dst"}, nil, updates, bytes.NewReader(packBuf.Bytes()))
	require.NoError(t, err)
	require.True(t, report.OK())

	got, err := dst.Refs.Resolve("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, commitID, got)
	require.True(t, dst.Objects.Exists(commitID))
}
