package object

import (
	"fmt"

	"github.com/lukasojd/puregit/objectid"
)

// Getter resolves an object id to its decoded Object. Callers that only
// need commits go through GetCommit, which asserts the result type.
type Getter interface {
	GetObject(id objectid.ID) (Object, error)
}

// GetCommit resolves id via g and asserts it is a Commit.
func GetCommit(g Getter, id objectid.ID) (*Commit, error) {
	obj, err := g.GetObject(id)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*Commit)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a commit", ErrMalformed, id)
	}
	return c, nil
}

// WalkCommits performs a breadth-first walk over the commit DAG from
// roots toward their parents, calling visit once per reachable commit
// with an externally owned visited set (spec.md §9 "Cyclic-looking
// graphs": no self-referential in-memory structures, everything is
// identified by id and owned by the store). When visit returns false
// the parents of that commit are not enqueued; the rest of the walk
// continues.
func WalkCommits(g Getter, roots []objectid.ID, visit func(id objectid.ID, c *Commit) bool) error {
	visited := make(map[objectid.ID]struct{})
	queue := append([]objectid.ID(nil), roots...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		c, err := GetCommit(g, id)
		if err != nil {
			return err
		}
		if !visit(id, c) {
			continue
		}
		queue = append(queue, c.Parents...)
	}
	return nil
}

// MergeBases returns every lowest common ancestor of a and b: commits
// reachable from both that have no descendant which is itself reachable
// from both. Needed by the three-way merge (N) to pick the "base" input,
// which spec.md never names a home for (§12 supplement).
func MergeBases(g Getter, a, b objectid.ID) ([]objectid.ID, error) {
	reachableFrom := func(root objectid.ID) (map[objectid.ID]struct{}, error) {
		set := make(map[objectid.ID]struct{})
		err := WalkCommits(g, []objectid.ID{root}, func(id objectid.ID, c *Commit) bool {
			set[id] = struct{}{}
			return true
		})
		return set, err
	}

	ra, err := reachableFrom(a)
	if err != nil {
		return nil, err
	}
	rb, err := reachableFrom(b)
	if err != nil {
		return nil, err
	}

	var common []objectid.ID
	for id := range ra {
		if _, ok := rb[id]; ok {
			common = append(common, id)
		}
	}

	// Keep only the commits in `common` that are not an ancestor of
	// another commit in `common` — i.e. the "lowest" ancestors.
	isAncestorOfAnother := make(map[objectid.ID]bool)
	for _, id := range common {
		c, err := GetCommit(g, id)
		if err != nil {
			return nil, err
		}
		for _, p := range c.Parents {
			if err := markAncestors(g, p, common, isAncestorOfAnother); err != nil {
				return nil, err
			}
		}
	}

	var bases []objectid.ID
	for _, id := range common {
		if !isAncestorOfAnother[id] {
			bases = append(bases, id)
		}
	}
	return bases, nil
}

func markAncestors(g Getter, start objectid.ID, common []objectid.ID, marked map[objectid.ID]bool) error {
	inCommon := make(map[objectid.ID]struct{}, len(common))
	for _, id := range common {
		inCommon[id] = struct{}{}
	}
	return WalkCommits(g, []objectid.ID{start}, func(id objectid.ID, c *Commit) bool {
		if _, ok := inCommon[id]; ok {
			marked[id] = true
		}
		return true
	})
}
