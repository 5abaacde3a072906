// Package giterr defines the error taxonomy shared by every puregit
// component, following the sentinel-error style of go-git's
// plumbing/error.go and packfile/error.go: each kind is a comparable
// value, components wrap it with context via fmt.Errorf("...: %w", ...),
// and callers classify with errors.Is / Kind.
package giterr

import "errors"

// Kind is one of the error categories from the core's error taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidObject
	KindInvalidDelta
	KindCorruptPack
	KindCorruptIndex
	KindAmbiguous
	KindRefConflict
	KindMergeConflict
	KindProtocol
	KindIO
)

var (
	// ErrNotFound is returned when an object id or reference cannot be
	// located in any backing store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidObject covers malformed object headers, unknown type
	// names, failed decompression, and size mismatches.
	ErrInvalidObject = errors.New("invalid object")

	// ErrInvalidDelta covers a zero command byte, a truncated varint, or
	// a reconstructed size that disagrees with the delta header.
	ErrInvalidDelta = errors.New("invalid delta")

	// ErrCorruptPack covers a bad magic, bad version, trailer mismatch,
	// or an offset outside the pack.
	ErrCorruptPack = errors.New("corrupt pack")

	// ErrCorruptIndex covers a bad magic, wrong version, or count
	// mismatch in a .idx file.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrAmbiguous is returned when a hash prefix matches more than one
	// object.
	ErrAmbiguous = errors.New("ambiguous object id")

	// ErrRefConflict covers a reference that already exists, does not
	// exist, or is currently checked out.
	ErrRefConflict = errors.New("reference conflict")

	// ErrProtocol covers pkt-line framing errors, unexpected NAK, ng
	// responses, and unknown side-band tags.
	ErrProtocol = errors.New("protocol error")
)

var kindBySentinel = map[error]Kind{
	ErrNotFound:      KindNotFound,
	ErrInvalidObject: KindInvalidObject,
	ErrInvalidDelta:  KindInvalidDelta,
	ErrCorruptPack:   KindCorruptPack,
	ErrCorruptIndex:  KindCorruptIndex,
	ErrAmbiguous:     KindAmbiguous,
	ErrRefConflict:   KindRefConflict,
	ErrProtocol:      KindProtocol,
}

// Of classifies err against the taxonomy above. It returns KindUnknown
// for a nil err and KindIO for a non-nil err that wraps none of the
// known sentinels. MergeConflict is represented by
// *MergeConflictError rather than a sentinel since it carries data.
func Of(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if _, ok := err.(*MergeConflictError); ok {
		return KindMergeConflict
	}
	for sentinel, kind := range kindBySentinel {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindIO
}

// ExitCode maps an error to the porcelain exit codes from spec.md §6:
// 0 success, 1 user-recoverable (e.g. conflicts), 128 fatal.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Of(err) {
	case KindMergeConflict, KindRefConflict:
		return 1
	default:
		return 128
	}
}

// MergeConflictError carries the set of conflicted paths from a failed
// three-way merge.
type MergeConflictError struct {
	Paths []string
}

func (e *MergeConflictError) Error() string {
	if len(e.Paths) == 1 {
		return "merge conflict in " + e.Paths[0]
	}
	return "merge conflict in multiple paths"
}
