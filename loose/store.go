// Package loose implements the one-deflated-file-per-object store of
// spec.md §4.C, addressed through a github.com/go-git/go-billy/v5
// filesystem the way go-git's storage/filesystem package never touches
// os directly. Layout: <root>/<id.prefix>/<id.suffix>, each file holding
// zlib-deflated "<type> <size>\0<body>".
package loose

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"strconv"

	billy "github.com/go-git/go-billy/v5"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/object"
	"github.com/lukasojd/puregit/objectid"
)

// Store is the loose object store.
type Store struct {
	fs billy.Filesystem
}

// New returns a Store rooted at fs (typically fs.Chroot("objects") of
// the repository's billy.Filesystem).
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

func path(fs billy.Filesystem, id objectid.ID) string {
	return fs.Join(id.Prefix(), id.Suffix())
}

// RawHeader is the parsed "<type> <size>" loose-object header.
type RawHeader struct {
	Type objectid.ObjectType
	Size int64
}

// Exists reports whether id has a loose object file.
func (s *Store) Exists(id objectid.ID) bool {
	_, err := s.fs.Stat(path(s.fs, id))
	return err == nil
}

// ReadRawHeader inflates only up to the first NUL byte, returning the
// object's type and declared size without reading the body
// (spec.md §4.C).
func (s *Store) ReadRawHeader(id objectid.ID) (RawHeader, error) {
	f, err := s.fs.Open(path(s.fs, id))
	if err != nil {
		return RawHeader{}, fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(bufio.NewReader(f))
	if err != nil {
		return RawHeader{}, fmt.Errorf("%w: inflate header: %v", giterr.ErrInvalidObject, err)
	}
	defer zr.Close()

	header, err := readHeaderLine(zr)
	if err != nil {
		return RawHeader{}, err
	}
	return header, nil
}

func readHeaderLine(r io.Reader) (RawHeader, error) {
	var buf bytes.Buffer
	one := make([]byte, 1)
	for {
		n, err := r.Read(one)
		if n == 1 {
			if one[0] == 0 {
				break
			}
			buf.WriteByte(one[0])
		}
		if err != nil {
			return RawHeader{}, fmt.Errorf("%w: header has no NUL terminator: %v", giterr.ErrInvalidObject, err)
		}
	}

	typeName, sizeStr, ok := bytes.Cut(buf.Bytes(), []byte(" "))
	if !ok {
		return RawHeader{}, fmt.Errorf("%w: malformed loose header %q", giterr.ErrInvalidObject, buf.String())
	}
	t := objectid.ParseObjectType(string(typeName))
	if t == objectid.InvalidObject {
		return RawHeader{}, fmt.Errorf("%w: unknown object type %q", giterr.ErrInvalidObject, typeName)
	}
	size, err := strconv.ParseInt(string(sizeStr), 10, 64)
	if err != nil {
		return RawHeader{}, fmt.Errorf("%w: non-decimal size %q: %v", giterr.ErrInvalidObject, sizeStr, err)
	}
	return RawHeader{Type: t, Size: size}, nil
}

// Read inflates and parses the full object.
func (s *Store) Read(id objectid.ID) (object.Object, error) {
	f, err := s.fs.Open(path(s.fs, id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %v", giterr.ErrInvalidObject, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", giterr.ErrInvalidObject, err)
	}

	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return nil, fmt.Errorf("%w: missing NUL separator", giterr.ErrInvalidObject)
	}
	header := raw[:nul]
	body := raw[nul+1:]

	typeName, sizeStr, ok := bytes.Cut(header, []byte(" "))
	if !ok {
		return nil, fmt.Errorf("%w: malformed header %q", giterr.ErrInvalidObject, header)
	}
	t := objectid.ParseObjectType(string(typeName))
	if t == objectid.InvalidObject {
		return nil, fmt.Errorf("%w: unknown object type %q", giterr.ErrInvalidObject, typeName)
	}
	size, err := strconv.ParseInt(string(sizeStr), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: non-decimal size %q: %v", giterr.ErrInvalidObject, sizeStr, err)
	}
	if size != int64(len(body)) {
		return nil, fmt.Errorf("%w: declared size %d, got %d bytes", giterr.ErrInvalidObject, size, len(body))
	}

	got := objectid.Hash(t, body)
	if got != id {
		return nil, fmt.Errorf("%w: content hashes to %s, not %s", giterr.ErrInvalidObject, got, id)
	}

	return object.Decode(t, body)
}

// Write computes obj's id, writing the loose file if it does not
// already exist. Protocol (spec.md §4.C): write to a same-directory
// temp name, then rename over the final path — readers observe either
// the complete object or none.
func (s *Store) Write(obj object.Object) (objectid.ID, error) {
	body, err := object.Encode(obj)
	if err != nil {
		return objectid.ID{}, err
	}
	id := objectid.Hash(obj.Type(), body)

	final := path(s.fs, id)
	if _, err := s.fs.Stat(final); err == nil {
		return id, nil
	}

	dir := s.fs.Join(id.Prefix())
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return objectid.ID{}, fmt.Errorf("%w: mkdir %s: %v", giterr.ErrNotFound, dir, err)
	}

	tmp, err := s.fs.TempFile(dir, "incoming-")
	if err != nil {
		return objectid.ID{}, fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}
	tmpName := tmp.Name()

	zw := zlib.NewWriter(tmp)
	if _, err := fmt.Fprintf(zw, "%s %d\x00", obj.Type().String(), len(body)); err != nil {
		zw.Close()
		tmp.Close()
		s.fs.Remove(tmpName)
		return objectid.ID{}, err
	}
	if _, err := zw.Write(body); err != nil {
		zw.Close()
		tmp.Close()
		s.fs.Remove(tmpName)
		return objectid.ID{}, err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return objectid.ID{}, err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return objectid.ID{}, err
	}

	if err := s.fs.Rename(tmpName, final); err != nil {
		// A concurrent writer may have just created it: treat as success
		// if the target now exists (store dedupes by id, spec.md §3).
		if _, statErr := s.fs.Stat(final); statErr == nil {
			s.fs.Remove(tmpName)
			return id, nil
		}
		return objectid.ID{}, fmt.Errorf("%w: rename %s -> %s: %v", giterr.ErrNotFound, tmpName, final, err)
	}

	return id, nil
}

// FindByPrefix searches the fan-out directories for a single loose
// object whose hex id starts with prefix (4-40 hex chars). Returns
// giterr.ErrAmbiguous if more than one object matches, giterr.ErrNotFound
// if none do.
func (s *Store) FindByPrefix(prefix string) (objectid.ID, error) {
	if len(prefix) < 4 {
		return objectid.ID{}, fmt.Errorf("%w: prefix must be at least 4 hex chars", giterr.ErrNotFound)
	}

	dirPrefix := prefix[:2]
	namePrefix := ""
	if len(prefix) > 2 {
		namePrefix = prefix[2:]
	}

	entries, err := s.fs.ReadDir(dirPrefix)
	if err != nil {
		if os.IsNotExist(err) {
			return objectid.ID{}, giterr.ErrNotFound
		}
		return objectid.ID{}, fmt.Errorf("%w: %v", giterr.ErrNotFound, err)
	}

	var match objectid.ID
	found := false
	for _, e := range entries {
		if len(namePrefix) > len(e.Name()) || e.Name()[:len(namePrefix)] != namePrefix {
			continue
		}
		id, err := objectid.FromHex(dirPrefix + e.Name())
		if err != nil {
			continue
		}
		if found {
			return objectid.ID{}, giterr.ErrAmbiguous
		}
		match = id
		found = true
	}

	if !found {
		return objectid.ID{}, giterr.ErrNotFound
	}
	return match, nil
}
