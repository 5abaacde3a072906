// Package refs implements the reference store of spec.md §4.L: loose
// refs under refs/…, HEAD (detached or symbolic), an optional
// packed-refs file with loose-wins semantics, and lockfile-guarded
// atomic updates. Grounded on go-git's storage/filesystem/dotgit
// package for the ref layout and go-git's SetRef (exclusive-create then
// rename) for the write protocol, adapted here to a literal sibling
// "<ref>.lock" file per spec.md §4.L/§5 rather than go-git's billy file
// locking, and on utkarsh5026-SourceControl's pkg/workdir/internal/lock.go
// for the O_EXCL lockfile primitive itself.
package refs

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/objectid"
)

// HeadName is the top-level reference indicating the current commit.
const HeadName = "HEAD"

const packedRefsName = "packed-refs"

// Store is the reference store, rooted at a repository's git directory
// (i.e. the directory holding HEAD, refs/, and packed-refs).
type Store struct {
	fs billy.Filesystem
}

// New returns a Store rooted at fs.
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

func refPath(name string) string {
	return name
}

// Resolve follows at most one symbolic indirection and returns the
// object id the name ultimately points to (spec.md §4.L "following one
// symbolic indirection").
func (s *Store) Resolve(name string) (objectid.ID, error) {
	target, symbolic, err := s.readRaw(name)
	if err != nil {
		return objectid.ID{}, err
	}
	if symbolic {
		target2, symbolic2, err := s.readRaw(target)
		if err != nil {
			return objectid.ID{}, err
		}
		if symbolic2 {
			return objectid.ID{}, fmt.Errorf("%w: %s resolves through more than one symbolic indirection", giterr.ErrRefConflict, name)
		}
		return objectid.FromHex(target2)
	}
	return objectid.FromHex(target)
}

// GetSymbolicRef returns the target name if name is a symbolic
// reference, or ("", false) if it is a direct (id) reference.
func (s *Store) GetSymbolicRef(name string) (string, bool, error) {
	target, symbolic, err := s.readRaw(name)
	if err != nil {
		return "", false, err
	}
	return target, symbolic, nil
}

// readRaw reads name's loose file if present, else falls back to
// packed-refs (loose-wins-over-packed per spec.md §4.L).
func (s *Store) readRaw(name string) (value string, symbolic bool, err error) {
	f, err := s.fs.Open(refPath(name))
	if err == nil {
		defer f.Close()
		line, err := readTrimmedLine(f)
		if err != nil {
			return "", false, err
		}
		return parseRefLine(line)
	}
	if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}

	packed, perr := s.readPackedRefs()
	if perr != nil {
		return "", false, perr
	}
	if id, ok := packed[name]; ok {
		return id.String(), false, nil
	}
	return "", false, fmt.Errorf("%w: %s", giterr.ErrNotFound, name)
}

func parseRefLine(line string) (value string, symbolic bool, err error) {
	const symPrefix = "ref: "
	if strings.HasPrefix(line, symPrefix) {
		return strings.TrimSpace(line[len(symPrefix):]), true, nil
	}
	if len(line) != objectid.HexSize {
		return "", false, fmt.Errorf("%w: malformed ref content %q", giterr.ErrInvalidObject, line)
	}
	return line, false, nil
}

func readTrimmedLine(f billy.File) (string, error) {
	r := bufio.NewReader(f)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("%w: empty ref file: %v", giterr.ErrInvalidObject, err)
	}
	return strings.TrimRight(line, "\n"), nil
}

// Exists reports whether name resolves to something, loose or packed.
func (s *Store) Exists(name string) bool {
	_, _, err := s.readRaw(name)
	return err == nil
}

// UpdateRef atomically points name at id via the lockfile protocol
// (spec.md §4.L/§5): acquire "<name>.lock" by exclusive create, write
// "<hex>\n", fsync, rename over the target.
func (s *Store) UpdateRef(name string, id objectid.ID) error {
	return s.writeLocked(name, id.String()+"\n")
}

// UpdateSymbolicRef points name at another ref name (only HEAD does
// this in practice, per spec.md §3).
func (s *Store) UpdateSymbolicRef(name, target string) error {
	return s.writeLocked(name, "ref: "+target+"\n")
}

func (s *Store) writeLocked(name, content string) error {
	lockPath := name + ".lock"

	lock, err := s.fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: lock %s held: %v", giterr.ErrRefConflict, name, err)
	}

	if dir := parentDir(name); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			lock.Close()
			s.fs.Remove(lockPath)
			return fmt.Errorf("%w: mkdir %s: %v", giterr.ErrNotFound, dir, err)
		}
	}

	if _, err := lock.Write([]byte(content)); err != nil {
		lock.Close()
		s.fs.Remove(lockPath)
		return err
	}
	if syncer, ok := lock.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			lock.Close()
			s.fs.Remove(lockPath)
			return err
		}
	}
	if err := lock.Close(); err != nil {
		s.fs.Remove(lockPath)
		return err
	}

	if err := s.fs.Rename(lockPath, name); err != nil {
		s.fs.Remove(lockPath)
		return fmt.Errorf("%w: rename %s -> %s: %v", giterr.ErrNotFound, lockPath, name, err)
	}
	return nil
}

func parentDir(name string) string {
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return ""
	}
	return name[:i]
}

// DeleteRef removes the loose file for name and, if name is also
// present in packed-refs, rewrites packed-refs without that entry
// (spec.md §4.L).
func (s *Store) DeleteRef(name string) error {
	err := s.fs.Remove(refPath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}

	packed, perr := s.readPackedRefs()
	if perr != nil {
		return perr
	}
	if _, ok := packed[name]; !ok {
		return nil
	}
	delete(packed, name)
	return s.writePackedRefs(packed)
}

// ListRefs returns every ref whose name starts with prefix, as the
// union of loose and packed refs with loose winning on conflicts
// (spec.md §4.L).
func (s *Store) ListRefs(prefix string) (map[string]objectid.ID, error) {
	result, err := s.readPackedRefs()
	if err != nil {
		return nil, err
	}

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := s.fs.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			full := dir + "/" + e.Name()
			if e.IsDir() {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			id, err := s.Resolve(full)
			if err != nil {
				continue // skip unresolvable/symbolic entries under refs/
			}
			result[full] = id
		}
		return nil
	}
	if err := walk("refs"); err != nil {
		return nil, fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}

	for name := range result {
		if !strings.HasPrefix(name, prefix) {
			delete(result, name)
		}
	}
	return result, nil
}

func (s *Store) readPackedRefs() (map[string]objectid.ID, error) {
	result := map[string]objectid.ID{}

	f, err := s.fs.Open(packedRefsName)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		hexID, name, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: malformed packed-refs line %q", giterr.ErrInvalidObject, line)
		}
		id, err := objectid.FromHex(hexID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", giterr.ErrInvalidObject, err)
		}
		result[name] = id
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) writePackedRefs(entries map[string]objectid.ID) error {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# pack-refs with: peeled fully-peeled sorted\n")
	for _, name := range names {
		fmt.Fprintf(&b, "%s %s\n", entries[name].String(), name)
	}

	lockPath := packedRefsName + ".lock"
	lock, err := s.fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: packed-refs lock held: %v", giterr.ErrRefConflict, err)
	}
	if _, err := lock.Write([]byte(b.String())); err != nil {
		lock.Close()
		s.fs.Remove(lockPath)
		return err
	}
	if err := lock.Close(); err != nil {
		s.fs.Remove(lockPath)
		return err
	}
	if err := s.fs.Rename(lockPath, packedRefsName); err != nil {
		s.fs.Remove(lockPath)
		return fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}
	return nil
}

// TrackingRefName formats the refs/remotes/<remote>/<branch> name used
// to land a fetched remote branch locally (spec.md §12 supplement).
func TrackingRefName(remote, branch string) string {
	return "refs/remotes/" + remote + "/" + branch
}
