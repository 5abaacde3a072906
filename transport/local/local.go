// Package local implements the local filesystem transport of spec.md
// §4.J: fetch and push against a repository's object/ref stores
// directly, with no wire protocol at all. Grounded on go-git's
// plumbing/transport/file package, which shells out to the
// git-upload-pack/git-receive-pack binaries over a pipe; since this
// module owns its own storage and pack writer, the local client calls
// them in-process instead of spawning a subprocess.
package local

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/object"
	"github.com/lukasojd/puregit/objectid"
	"github.com/lukasojd/puregit/pack"
	"github.com/lukasojd/puregit/refs"
	"github.com/lukasojd/puregit/storage"
	"github.com/lukasojd/puregit/transport"
)

// Repository is the pair of stores a local endpoint resolves to: the
// combined object store and the reference store, both already rooted
// at the target repository's git directory.
type Repository struct {
	Objects *storage.Store
	Refs    *refs.Store
}

// Client serves fetch_pack/send_pack/list_refs against repositories
// opened in-process, keyed by the endpoint's filesystem path.
type Client struct {
	Open func(path string) (*Repository, error)
}

// New returns a Client that resolves endpoints via open.
func New(open func(path string) (*Repository, error)) *Client {
	return &Client{Open: open}
}

func (c *Client) repo(ep *transport.Endpoint) (*Repository, error) {
	if c.Open == nil {
		return nil, fmt.Errorf("transport: local client has no Open callback")
	}
	return c.Open(ep.Path)
}

// ListRefs enumerates the target repository's refs directly, with no
// negotiation round-trip.
func (c *Client) ListRefs(ep *transport.Endpoint, _ transport.AuthMethod) (*transport.RefAdvertisement, error) {
	repo, err := c.repo(ep)
	if err != nil {
		return nil, err
	}
	names, err := repo.Refs.ListRefs("")
	if err != nil {
		return nil, err
	}
	return &transport.RefAdvertisement{Refs: names}, nil
}

// getterAdapter bridges storage.Store's Get method to object.Getter's
// required GetObject name.
type getterAdapter struct {
	store *storage.Store
}

func (a getterAdapter) GetObject(id objectid.ID) (object.Object, error) {
	return a.store.Get(id)
}

// FetchPack assembles a pack containing every commit reachable from
// wants but not from haves, together with the full tree and blob
// closure of each such commit, and writes it to out (spec.md §4.J
// "fetch_pack(wants, haves, out_path)"). Trees and blobs are not
// filtered against what the haves already reach.
func (c *Client) FetchPack(ep *transport.Endpoint, _ transport.AuthMethod, wants, haves []objectid.ID, out io.Writer) error {
	repo, err := c.repo(ep)
	if err != nil {
		return err
	}
	getter := getterAdapter{repo.Objects}

	haveClosure := map[objectid.ID]struct{}{}
	if len(haves) > 0 {
		err := object.WalkCommits(getter, haves, func(id objectid.ID, _ *object.Commit) bool {
			haveClosure[id] = struct{}{}
			return true
		})
		if err != nil {
			return err
		}
	}

	newCommits := map[objectid.ID]*object.Commit{}
	err = object.WalkCommits(getter, wants, func(id objectid.ID, commit *object.Commit) bool {
		if _, known := haveClosure[id]; known {
			return false
		}
		newCommits[id] = commit
		return true
	})
	if err != nil {
		return err
	}

	included := map[objectid.ID]struct{}{}
	var objects []pack.PackObject
	add := func(id objectid.ID, obj object.Object) error {
		if _, ok := included[id]; ok {
			return nil
		}
		included[id] = struct{}{}
		body, err := object.Encode(obj)
		if err != nil {
			return err
		}
		objects = append(objects, pack.PackObject{ID: id, Type: obj.Type(), Data: body})
		return nil
	}

	var walkTree func(id objectid.ID) error
	walkTree = func(id objectid.ID) error {
		if _, ok := included[id]; ok {
			return nil
		}
		obj, err := repo.Objects.Get(id)
		if err != nil {
			return err
		}
		tree, ok := obj.(*object.Tree)
		if !ok {
			return fmt.Errorf("%w: %s is not a tree", giterr.ErrInvalidObject, id)
		}
		if err := add(id, tree); err != nil {
			return err
		}
		for _, entry := range tree.Entries {
			if entry.Mode.IsSubtree() {
				if err := walkTree(entry.ID); err != nil {
					return err
				}
				continue
			}
			if _, ok := included[entry.ID]; ok {
				continue
			}
			blobObj, err := repo.Objects.Get(entry.ID)
			if err != nil {
				return err
			}
			if err := add(entry.ID, blobObj); err != nil {
				return err
			}
		}
		return nil
	}

	for id, commit := range newCommits {
		if err := add(id, commit); err != nil {
			return err
		}
		if err := walkTree(commit.Tree); err != nil {
			return err
		}
	}

	_, err = pack.Write(out, objects, pack.DefaultWriterConfig(), nil)
	return err
}

// SendPack lands the incoming pack into the target repository's pack
// directory and applies every ref update (spec.md §4.J
// "send_pack(ref_update_lines, pack_path)").
func (c *Client) SendPack(ep *transport.Endpoint, _ transport.AuthMethod, updates []transport.RefUpdate, packStream io.Reader) (*transport.ReportStatus, error) {
	repo, err := c.repo(ep)
	if err != nil {
		return nil, err
	}

	report := &transport.ReportStatus{RefStatus: map[string]string{}}

	packDir, err := repo.Objects.PackDir()
	if err != nil {
		return nil, err
	}
	tmpPath := filepath.Join(packDir, "incoming")

	recv, err := pack.NewReceiver(tmpPath)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(recv, packStream); err != nil {
		os.Remove(tmpPath + ".pack")
		report.UnpackOK = false
		report.UnpackError = err.Error()
		return report, nil
	}
	result, err := recv.Finish()
	if err != nil {
		os.Remove(tmpPath + ".pack")
		report.UnpackOK = false
		report.UnpackError = err.Error()
		return report, nil
	}

	finalBase := "pack-" + result.Index.PackSHA.String()
	finalPack := filepath.Join(packDir, finalBase+".pack")
	finalIdx := filepath.Join(packDir, finalBase+".idx")
	if err := os.Rename(result.PackPath, finalPack); err != nil {
		return nil, err
	}
	if err := os.Rename(result.IndexPath, finalIdx); err != nil {
		return nil, err
	}
	if err := repo.Objects.Reload(); err != nil {
		return nil, err
	}

	report.UnpackOK = true
	for _, u := range updates {
		if err := applyRefUpdate(repo.Refs, u); err != nil {
			report.RefStatus[u.Name] = err.Error()
			continue
		}
		report.RefStatus[u.Name] = "ok"
	}
	return report, nil
}

func applyRefUpdate(store *refs.Store, u transport.RefUpdate) error {
	if u.New.IsZero() {
		return store.DeleteRef(u.Name)
	}
	return store.UpdateRef(u.Name, u.New)
}

var _ transport.Client = (*Client)(nil)
