package object

import (
	"bytes"
	"io"

	"github.com/lukasojd/puregit/objectid"
)

// Blob is an opaque byte sequence; its serialized form is the content
// verbatim (spec.md §3).
type Blob struct {
	Content []byte
}

func (b *Blob) Type() objectid.ObjectType { return objectid.BlobObject }

func (b *Blob) Encode(w io.Writer) error {
	_, err := w.Write(b.Content)
	return err
}

// Reader returns a reader over the blob's content.
func (b *Blob) Reader() io.Reader { return bytes.NewReader(b.Content) }
