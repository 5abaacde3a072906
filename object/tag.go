package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/lukasojd/puregit/objectid"
)

// Tag references a target object, its type, a tag name, a tagger
// identity, and a message (spec.md §3).
type Tag struct {
	Object     objectid.ID
	ObjectType objectid.ObjectType
	Name       string
	Tagger     Signature
	Message    string
}

func (t *Tag) Type() objectid.ObjectType { return objectid.TagObject }

func (t *Tag) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "object %s\n", t.Object.String())
	fmt.Fprintf(bw, "type %s\n", t.ObjectType.String())
	fmt.Fprintf(bw, "tag %s\n", t.Name)
	fmt.Fprintf(bw, "tagger %s\n", t.Tagger.String())
	bw.WriteByte('\n')
	bw.WriteString(t.Message)
	return bw.Flush()
}

func decodeTag(body []byte) (*Tag, error) {
	t := &Tag{}
	haveObject, haveType := false, false

	r := bufio.NewReader(bytes.NewReader(body))
	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		trimmed := strings.TrimSuffix(line, "\n")
		if trimmed == "" {
			break
		}

		key, value, ok := strings.Cut(trimmed, " ")
		if !ok {
			return nil, fmt.Errorf("%w: malformed tag header %q", ErrMalformed, trimmed)
		}

		switch key {
		case "object":
			id, err := objectid.FromHex(value)
			if err != nil {
				return nil, fmt.Errorf("%w: bad object id: %v", ErrMalformed, err)
			}
			t.Object = id
			haveObject = true
		case "type":
			ot := objectid.ParseObjectType(value)
			if ot == objectid.InvalidObject {
				return nil, fmt.Errorf("%w: unknown tag target type %q", ErrMalformed, value)
			}
			t.ObjectType = ot
			haveType = true
		case "tag":
			t.Name = value
		case "tagger":
			sig, err := ParseSignature([]byte(value))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			t.Tagger = sig
		}

		if err == io.EOF {
			break
		}
	}

	if !haveObject || !haveType {
		return nil, fmt.Errorf("%w: tag missing object/type header", ErrMalformed)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	t.Message = string(rest)

	return t, nil
}
