package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/lukasojd/puregit/object"
	"github.com/lukasojd/puregit/objectid"
	"github.com/lukasojd/puregit/refs"
	"github.com/lukasojd/puregit/storage"
)

// gitDir is the on-disk directory name this module's commands operate
// on, matching git's own ".git".
const gitDir = ".git"

// repository bundles the combined object store and ref store rooted at
// one .git directory, the pair every plumbing command needs.
type repository struct {
	Objects *storage.Store
	Refs    *refs.Store
}

// openRepository opens the repository rooted at dir/.git.
func openRepository(dir string) (*repository, error) {
	fs := osfs.New(filepath.Join(dir, gitDir))
	objects, err := storage.New(fs)
	if err != nil {
		return nil, err
	}
	return &repository{Objects: objects, Refs: refs.New(fs)}, nil
}

// initRepository creates a new .git directory under dir with the
// standard object/ref layout and a HEAD pointing at refs/heads/main.
func initRepository(dir string) error {
	root := filepath.Join(dir, gitDir)
	for _, sub := range []string{"objects/pack", "refs/heads", "refs/tags"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}

	fs := osfs.New(root)
	r := refs.New(fs)
	return r.UpdateSymbolicRef("HEAD", "refs/heads/main")
}

// getterAdapter bridges storage.Store's Get method to object.Getter's
// GetObject, the same shim transport/local.go uses.
type getterAdapter struct{ store *storage.Store }

func (a getterAdapter) GetObject(id objectid.ID) (object.Object, error) { return a.store.Get(id) }
