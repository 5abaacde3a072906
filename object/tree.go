package object

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lukasojd/puregit/objectid"
)

// TreeEntry is one {mode, name, id} tuple in a Tree (spec.md §3).
type TreeEntry struct {
	Mode FileMode
	Name string
	ID   objectid.ID
}

// Tree is an ordered sequence of entries, describing one directory
// level of a file tree.
type Tree struct {
	Entries []TreeEntry
}

func (t *Tree) Type() objectid.ObjectType { return objectid.TreeObject }

// sortKey implements the spec.md §3 sort rule: entry name, with a
// trailing '/' appended when the entry is a subtree, then lexicographic
// byte compare.
func sortKey(e TreeEntry) string {
	if e.Mode.IsSubtree() {
		return e.Name + "/"
	}
	return e.Name
}

// Sorted reports whether t's entries already satisfy the §3 ordering
// with no duplicate names, without mutating t.
func (t *Tree) Sorted() bool {
	for i := 1; i < len(t.Entries); i++ {
		if strings.Compare(sortKey(t.Entries[i-1]), sortKey(t.Entries[i])) >= 0 {
			return false
		}
	}
	return true
}

// Sort orders entries per the §3 rule in place.
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return sortKey(t.Entries[i]) < sortKey(t.Entries[j])
	})
}

func (t *Tree) Encode(w io.Writer) error {
	if !t.Sorted() {
		return fmt.Errorf("%w: tree entries not sorted per spec.md §3", ErrMalformed)
	}
	for _, e := range t.Entries {
		if _, err := fmt.Fprintf(w, "%s %s\x00", e.Mode.String(), e.Name); err != nil {
			return err
		}
		if _, err := w.Write(e.ID.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func decodeTree(body []byte) (*Tree, error) {
	t := &Tree{}
	seen := make(map[string]struct{})

	r := body
	for len(r) > 0 {
		sp := bytes.IndexByte(r, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: tree entry missing mode separator", ErrMalformed)
		}
		mode, err := ParseFileMode(string(r[:sp]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		r = r[sp+1:]

		nul := bytes.IndexByte(r, 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: tree entry missing name terminator", ErrMalformed)
		}
		name := string(r[:nul])
		r = r[nul+1:]

		if len(r) < objectid.Size {
			return nil, fmt.Errorf("%w: tree entry truncated id", ErrMalformed)
		}
		id, err := objectid.FromBinary(r[:objectid.Size])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		r = r[objectid.Size:]

		key := sortKey(TreeEntry{Mode: mode, Name: name})
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate tree entry name %q", ErrMalformed, name)
		}
		seen[key] = struct{}{}

		t.Entries = append(t.Entries, TreeEntry{Mode: mode, Name: name, ID: id})
	}

	if !t.Sorted() {
		return nil, fmt.Errorf("%w: tree entries not sorted per spec.md §3", ErrMalformed)
	}
	return t, nil
}

// ByName looks up a direct entry by name.
func (t *Tree) ByName(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}
