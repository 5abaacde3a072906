package object

import (
	"fmt"
	"strconv"
)

// FileMode is a tree entry's mode, stored on disk as ASCII octal
// (spec.md §3). Unlike go-git's plumbing/filemode package (which models
// modes as an enum with an fs.FileMode conversion aimed at a working
// tree), puregit keeps the raw octal value: the core never touches a
// working tree, so there is nothing to convert to.
type FileMode uint32

const (
	ModeRegular    FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeGitlink    FileMode = 0o160000
	ModeSubtree    FileMode = 0o040000
)

// IsSubtree reports whether the mode marks a tree entry as a subtree,
// the case in which the §3 sort rule appends a trailing '/' to the name.
func (m FileMode) IsSubtree() bool { return m == ModeSubtree }

// String renders the mode as ASCII octal, e.g. "100644".
func (m FileMode) String() string { return strconv.FormatUint(uint64(m), 8) }

// ParseFileMode parses an ASCII octal mode string. Any value outside the
// five recognized modes is returned as-is: the tree parser is
// responsible for deciding whether to accept it (spec.md §4.M says index
// entries coerce unknown modes to regular-file on read, but tree entries
// round-trip whatever was stored).
func ParseFileMode(s string) (FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file mode %q: %w", s, err)
	}
	return FileMode(v), nil
}
