// Package object implements the tagged object model of spec.md §3/§4.B:
// Blob, Tree, Commit, Tag, each with a canonical serialization whose
// round-trip reproduces the original bytes, and whose id is
// SHA-1("<type> <size>\0<body>"). Grounded on go-git's object.go /
// objects.go snapshots (Decode/Encode split per variant) generalized
// into a single Object interface per spec.md §9's "no runtime dispatch
// through unknown types" note — the variant is always known up front
// from the loose/pack header, so Object is a closed sum of four kinds.
package object

import (
	"bytes"
	"fmt"
	"io"

	"github.com/lukasojd/puregit/objectid"
)

// Object is implemented by *Blob, *Tree, *Commit, *Tag.
type Object interface {
	// Type returns the object's kind.
	Type() objectid.ObjectType
	// Encode writes the canonical serialized body (without the
	// "<type> <size>\0" header) to w.
	Encode(w io.Writer) error
}

// Decode parses body (the object's serialized form, header already
// stripped) according to t, returning the matching Object.
func Decode(t objectid.ObjectType, body []byte) (Object, error) {
	switch t {
	case objectid.BlobObject:
		return &Blob{Content: body}, nil
	case objectid.TreeObject:
		return decodeTree(body)
	case objectid.CommitObject:
		return decodeCommit(body)
	case objectid.TagObject:
		return decodeTag(body)
	default:
		return nil, fmt.Errorf("%w: unknown object type %v", ErrMalformed, t)
	}
}

// ErrMalformed is returned when an object's serialized body cannot be
// parsed: a missing null separator, non-decimal size, unknown type name,
// malformed tree entry, or a commit missing its "tree" header
// (spec.md §4.B).
var ErrMalformed = fmt.Errorf("malformed object")

// Encode serializes obj to its canonical body bytes.
func Encode(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := obj.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ID computes the content-addressed id of obj: SHA-1 over
// "<type> <size>\0" followed by its encoded body.
func ID(obj Object) (objectid.ID, error) {
	body, err := Encode(obj)
	if err != nil {
		return objectid.ID{}, err
	}
	return objectid.Hash(obj.Type(), body), nil
}
