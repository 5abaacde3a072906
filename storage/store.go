// Package storage implements the combined object store of spec.md §4.K:
// a bounded in-memory cache in front of the loose store and a set of
// open pack readers, with lookup order cache -> loose -> packs.
// Grounded on go-git's storage/filesystem/object.go (which layers a
// cache in front of loose+pack storage the same way) but using
// groupcache's lru, the cache go-git's own plumbing/cache package
// predates but which the rest of this pack reaches for elsewhere.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	billy "github.com/go-git/go-billy/v5"
	"github.com/golang/groupcache/lru"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/idx"
	"github.com/lukasojd/puregit/loose"
	"github.com/lukasojd/puregit/object"
	"github.com/lukasojd/puregit/objectid"
	"github.com/lukasojd/puregit/pack"
)

// defaultCacheEntries bounds the in-memory object cache by entry count,
// a simple stand-in for the spec's byte-budget cache since groupcache's
// lru.Cache evicts by entry count rather than size.
const defaultCacheEntries = 4096

// openPack pairs a pack.Reader with the id.Index describing its
// contents, so the store can answer "is id in this pack" without
// re-scanning.
type openPack struct {
	name  string
	file  *os.File
	pk    *pack.Reader
	index packIndex
}

// packIndex is the subset of *idx.Index the store needs, expressed as
// an interface so tests can substitute a fake.
type packIndex interface {
	FindOffset(id objectid.ID) (int64, error)
	Has(id objectid.ID) bool
}

// Store is the combined object store (spec.md §4.K).
type Store struct {
	mu      sync.RWMutex
	fs      billy.Filesystem
	loose   *loose.Store
	packs   []*openPack
	cacheMu sync.Mutex // groupcache's lru.Cache reorders on Get, so it needs its own lock distinct from mu
	cache   *lru.Cache
	packDir string
}

// New returns a Store rooted at the repository's .git directory (fs),
// with fs/objects holding loose objects and fs/objects/pack holding
// packs, discovering any packs already present.
func New(fs billy.Filesystem) (*Store, error) {
	objectsFS, err := fs.Chroot("objects")
	if err != nil {
		return nil, fmt.Errorf("%w: chroot objects: %v", giterr.ErrNotFound, err)
	}

	s := &Store{
		fs:      fs,
		loose:   loose.New(objectsFS),
		cache:   lru.New(defaultCacheEntries),
		packDir: "objects/pack",
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-scans the pack directory for *.pack files and (re)opens
// readers for any not already tracked, per spec.md §4.K "pack-reader
// invalidation/rediscovery after installing a new pack".
func (s *Store) Reload() error {
	root, err := resolveRoot(s.fs)
	if err != nil {
		return nil // no concrete root (e.g. an in-memory fs in tests with nothing written yet)
	}
	dir := filepath.Join(root, s.packDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read pack dir: %v", giterr.ErrNotFound, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(s.packs))
	for _, p := range s.packs {
		known[p.name] = true
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pack") {
			continue
		}
		if known[e.Name()] {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", giterr.ErrNotFound, e.Name(), err)
		}
		pk, err := pack.Open(f)
		if err != nil {
			f.Close()
			return err
		}
		idxName := strings.TrimSuffix(e.Name(), ".pack") + ".idx"
		idxIndex, err := loadIdx(filepath.Join(dir, idxName))
		if err != nil {
			f.Close()
			return err
		}
		s.packs = append(s.packs, &openPack{name: e.Name(), file: f, pk: pk, index: idxIndex})
	}
	return nil
}

func loadIdx(path string) (*idx.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", giterr.ErrNotFound, path, err)
	}
	defer f.Close()
	return idx.Decode(f)
}

func resolveRoot(fs billy.Filesystem) (string, error) {
	root := fs.Root()
	if root == "" {
		return "", fmt.Errorf("filesystem has no concrete root")
	}
	return root, nil
}

// Exists reports whether id is present anywhere in the store
// (spec.md §4.K "exists short-circuit").
func (s *Store) Exists(id objectid.ID) bool {
	s.cacheMu.Lock()
	_, cached := s.cache.Get(id)
	s.cacheMu.Unlock()
	if cached {
		return true
	}
	if s.loose.Exists(id) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.packs {
		if p.index.Has(id) {
			return true
		}
	}
	return false
}

// Get retrieves the full object for id, checking the cache, then the
// loose store, then each open pack in turn (spec.md §4.K).
func (s *Store) Get(id objectid.ID) (object.Object, error) {
	s.cacheMu.Lock()
	v, cached := s.cache.Get(id)
	s.cacheMu.Unlock()
	if cached {
		return v.(object.Object), nil
	}

	if s.loose.Exists(id) {
		obj, err := s.loose.Read(id)
		if err != nil {
			return nil, err
		}
		s.addToCache(id, obj)
		return obj, nil
	}

	t, body, err := s.GetRawObject(id)
	if err != nil {
		return nil, err
	}
	obj, err := object.Decode(t, body)
	if err != nil {
		return nil, err
	}
	s.addToCache(id, obj)
	return obj, nil
}

func (s *Store) addToCache(id objectid.ID, obj object.Object) {
	s.cacheMu.Lock()
	s.cache.Add(id, obj)
	s.cacheMu.Unlock()
}

// GetRawObject implements pack.ExternalResolver: it resolves a
// ref_delta base by searching the loose store then every open pack,
// without requiring the base to be wrapped in an object.Object first.
func (s *Store) GetRawObject(id objectid.ID) (objectid.ObjectType, []byte, error) {
	if s.loose.Exists(id) {
		hdr, err := s.loose.ReadRawHeader(id)
		if err != nil {
			return objectid.InvalidObject, nil, err
		}
		obj, err := s.loose.Read(id)
		if err != nil {
			return objectid.InvalidObject, nil, err
		}
		body, err := object.Encode(obj)
		if err != nil {
			return objectid.InvalidObject, nil, err
		}
		return hdr.Type, body, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.packs {
		offset, err := p.index.FindOffset(id)
		if err != nil {
			continue
		}
		raw, err := p.pk.ReadAt(offset, s)
		if err != nil {
			return objectid.InvalidObject, nil, err
		}
		return raw.Type, raw.Data, nil
	}
	return objectid.InvalidObject, nil, giterr.ErrNotFound
}

// Write always stores obj loosely (spec.md §4.K "write always to
// loose"); packing is a separate, later operation performed by the
// pack writer (G), not the store.
func (s *Store) Write(obj object.Object) (objectid.ID, error) {
	id, err := s.loose.Write(obj)
	if err != nil {
		return objectid.ID{}, err
	}
	s.addToCache(id, obj)
	return id, nil
}

// ObjectByPrefix resolves an abbreviated hex id across both loose and
// packed storage (spec.md §12 supplement), returning giterr.ErrAmbiguous
// if more than one object anywhere matches.
func (s *Store) ObjectByPrefix(prefix string) (objectid.ID, error) {
	candidates := map[objectid.ID]bool{}

	if looseID, err := s.loose.FindByPrefix(prefix); err == nil {
		candidates[looseID] = true
	} else if err != giterr.ErrNotFound {
		return objectid.ID{}, err
	}

	s.mu.RLock()
	for _, p := range s.packs {
		if ids, ok := p.index.(interface{ IDsWithPrefix(string) []objectid.ID }); ok {
			for _, id := range ids.IDsWithPrefix(prefix) {
				candidates[id] = true
			}
		}
	}
	s.mu.RUnlock()

	switch len(candidates) {
	case 0:
		return objectid.ID{}, giterr.ErrNotFound
	case 1:
		for id := range candidates {
			return id, nil
		}
	}
	return objectid.ID{}, giterr.ErrAmbiguous
}

// PackDir returns the absolute path of the directory holding this
// store's pack files, for callers (the local transport's SendPack) that
// need to land a newly received pack on disk before calling Reload.
func (s *Store) PackDir() (string, error) {
	root, err := resolveRoot(s.fs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}
	dir := filepath.Join(root, s.packDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %v", giterr.ErrNotFound, dir, err)
	}
	return dir, nil
}

// Close releases all open pack file handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, p := range s.packs {
		if err := p.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sortedPackNames returns the store's currently tracked pack file names,
// sorted, for deterministic diagnostics/tests.
func (s *Store) sortedPackNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.packs))
	for i, p := range s.packs {
		names[i] = p.name
	}
	sort.Strings(names)
	return names
}
