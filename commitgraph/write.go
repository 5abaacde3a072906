package commitgraph

import (
	"io"

	"github.com/lukasojd/puregit/object"
	"github.com/lukasojd/puregit/objectid"
)

// Write performs a BFS over every ref's target collecting all reachable
// commit ids (spec.md §4.O "write does a BFS over all refs collecting
// commit ids"), computes each commit's generation number, and encodes
// the result.
func Write(w io.Writer, getter object.Getter, refs map[string]objectid.ID) (objectid.ID, error) {
	roots := make([]objectid.ID, 0, len(refs))
	for _, id := range refs {
		roots = append(roots, id)
	}

	commits := map[objectid.ID]*object.Commit{}
	if err := object.WalkCommits(getter, roots, func(id objectid.ID, c *object.Commit) bool {
		commits[id] = c
		return true
	}); err != nil {
		return objectid.ID{}, err
	}

	generations := computeGenerations(commits)

	records := make(map[objectid.ID]CommitRecord, len(commits))
	for id, c := range commits {
		records[id] = CommitRecord{
			Tree:       c.Tree,
			Parents:    c.Parents,
			Generation: generations[id],
			When:       c.Committer.When,
		}
	}

	return Encode(w, records)
}

// computeGenerations assigns every commit a generation number one
// greater than the largest of its parents' (1 for a root commit with no
// parents), via memoized post-order recursion over the already-resolved
// commit set.
func computeGenerations(commits map[objectid.ID]*object.Commit) map[objectid.ID]uint32 {
	result := make(map[objectid.ID]uint32, len(commits))

	var visit func(id objectid.ID) uint32
	visit = func(id objectid.ID) uint32 {
		if g, ok := result[id]; ok {
			return g
		}
		c, ok := commits[id]
		if !ok {
			// A parent outside the walked set (shallow boundary): treat
			// as generation 0 so its children still get a finite number.
			return 0
		}
		var maxParent uint32
		for _, p := range c.Parents {
			if g := visit(p); g > maxParent {
				maxParent = g
			}
		}
		g := maxParent + 1
		result[id] = g
		return g
	}

	for id := range commits {
		visit(id)
	}
	return result
}
