package commitgraph

import (
	"fmt"
	"io"

	"github.com/lukasojd/puregit/giterr"
	"github.com/lukasojd/puregit/object"
	"github.com/lukasojd/puregit/objectid"
)

// Verify decodes a commit-graph file and, structurally, is already
// satisfied by a successful Decode (signature, version, chunk table,
// fanout monotonicity, and trailing checksum are all validated there).
// When full is true it additionally re-runs the ref BFS (spec.md §4.O
// "verify(full) optionally re-runs BFS and compares cardinality") and
// fails if the reachable commit count disagrees with the graph's.
func Verify(full bool, r io.Reader, getter object.Getter, refs map[string]objectid.ID) (*Graph, error) {
	g, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if !full {
		return g, nil
	}

	roots := make([]objectid.ID, 0, len(refs))
	for _, id := range refs {
		roots = append(roots, id)
	}

	var reachable int
	if err := object.WalkCommits(getter, roots, func(id objectid.ID, c *object.Commit) bool {
		reachable++
		return true
	}); err != nil {
		return nil, err
	}

	if reachable != g.Count() {
		return nil, fmt.Errorf("%w: commit-graph has %d commits, refs reach %d", giterr.ErrCorruptPack, g.Count(), reachable)
	}

	for _, id := range roots {
		if _, ok := g.IndexOf(id); !ok {
			return nil, fmt.Errorf("%w: ref target %s missing from commit-graph", giterr.ErrCorruptPack, id)
		}
	}

	return g, nil
}
