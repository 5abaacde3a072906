package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/lukasojd/puregit/objectid"
)

// Commit references a root tree, zero or more parents, author and
// committer identities, and a message (spec.md §3). Serialized as
// header lines "tree …\n", "parent …\n" (0..n), "author …\n",
// "committer …\n", a blank line, then the message bytes.
type Commit struct {
	Tree      objectid.ID
	Parents   []objectid.ID
	Author    Signature
	Committer Signature
	Message   string
}

func (c *Commit) Type() objectid.ObjectType { return objectid.CommitObject }

func (c *Commit) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "tree %s\n", c.Tree.String())
	for _, p := range c.Parents {
		fmt.Fprintf(bw, "parent %s\n", p.String())
	}
	fmt.Fprintf(bw, "author %s\n", c.Author.String())
	fmt.Fprintf(bw, "committer %s\n", c.Committer.String())
	bw.WriteByte('\n')
	bw.WriteString(c.Message)
	return bw.Flush()
}

func decodeCommit(body []byte) (*Commit, error) {
	c := &Commit{}
	haveTree := false

	r := bufio.NewReader(bytes.NewReader(body))
	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		trimmed := strings.TrimSuffix(line, "\n")
		if trimmed == "" {
			break // blank line separates headers from the message
		}

		key, value, ok := strings.Cut(trimmed, " ")
		if !ok {
			return nil, fmt.Errorf("%w: malformed commit header %q", ErrMalformed, trimmed)
		}

		switch key {
		case "tree":
			id, err := objectid.FromHex(value)
			if err != nil {
				return nil, fmt.Errorf("%w: bad tree id: %v", ErrMalformed, err)
			}
			c.Tree = id
			haveTree = true
		case "parent":
			id, err := objectid.FromHex(value)
			if err != nil {
				return nil, fmt.Errorf("%w: bad parent id: %v", ErrMalformed, err)
			}
			c.Parents = append(c.Parents, id)
		case "author":
			sig, err := ParseSignature([]byte(value))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			c.Author = sig
		case "committer":
			sig, err := ParseSignature([]byte(value))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			c.Committer = sig
		}

		if err == io.EOF {
			break
		}
	}

	if !haveTree {
		return nil, fmt.Errorf("%w: commit missing tree header", ErrMalformed)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c.Message = string(rest)

	return c, nil
}
