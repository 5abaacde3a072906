// Package merge implements the line-level three-way merge of spec.md
// §4.N: base/ours/theirs short-circuits, an LCS-ish diff of base-vs-ours
// and base-vs-theirs, a diff3-style walk over the shared base backbone,
// and conflict marker emission. Grounded on the merge-region walk in
// rybkr-gitvista's internal/gitcore/threeway.go (editBlock/mergeWalk
// shape), but the per-side diff itself is computed with
// github.com/sergi/go-diff/diffmatchpatch's line-mode diff instead of a
// hand-rolled Myers implementation, the way go-git's own
// revlist/references.go reach for diffmatchpatch rather than writing LCS
// by hand.
package merge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// RegionType classifies one span of a merge result.
type RegionType int

const (
	RegionContext RegionType = iota
	RegionOurs
	RegionTheirs
	RegionConflict
)

// Region is one classified span of the diff3 walk over the base
// backbone (spec.md §4.N "classify as ... ours/theirs/both
// identical/both different").
type Region struct {
	Type        RegionType
	BaseLines   []string
	OursLines   []string
	TheirsLines []string
}

// Result is the outcome of a three-way merge.
type Result struct {
	MergedContent string
	IsConflicted  bool
	ConflictPaths []string // populated by callers staging a path-level result
}

// Merge runs the three-way merge over base/ours/theirs text (spec.md
// §4.N). Line splitting is newline-delimited; no whitespace- or
// rename-aware heuristics are applied.
func Merge(base, ours, theirs string) Result {
	if ours == theirs {
		return Result{MergedContent: ours, IsConflicted: false}
	}
	if base == ours {
		return Result{MergedContent: theirs, IsConflicted: false}
	}
	if base == theirs {
		return Result{MergedContent: ours, IsConflicted: false}
	}

	baseLines := splitLines(base)
	oursLines := splitLines(ours)
	theirsLines := splitLines(theirs)

	blocksOurs := blocksFromDiff(base, ours)
	blocksTheirs := blocksFromDiff(base, theirs)

	regions := mergeWalk(baseLines, blocksOurs, blocksTheirs)

	var b strings.Builder
	conflicted := false
	for _, r := range regions {
		switch r.Type {
		case RegionContext:
			writeLines(&b, r.BaseLines)
		case RegionOurs:
			writeLines(&b, r.OursLines)
		case RegionTheirs:
			writeLines(&b, r.TheirsLines)
		case RegionConflict:
			conflicted = true
			b.WriteString("<<<<<<< ours\n")
			writeLines(&b, r.OursLines)
			b.WriteString("=======\n")
			writeLines(&b, r.TheirsLines)
			b.WriteString(">>>>>>> theirs\n")
		}
	}

	return Result{MergedContent: b.String(), IsConflicted: conflicted}
}

func writeLines(b *strings.Builder, lines []string) {
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
}

// splitLines splits s on "\n", dropping the trailing empty element left
// by a final newline (so a file ending in "\n" yields exactly one
// string per line, matching git's own line-oriented diff behavior).
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// editBlock is a contiguous span of base lines replaced by newLines,
// the unit mergeWalk interleaves from both sides.
type editBlock struct {
	baseStart int
	baseEnd   int
	newLines  []string
}

// blocksFromDiff runs diffmatchpatch's line-mode diff between base and
// side, then folds the resulting Equal/Delete/Insert runs into edit
// blocks: a run of consecutive Delete/Insert ops between two Equal runs
// becomes one block spanning the deleted base lines and carrying the
// inserted lines as its replacement.
func blocksFromDiff(base, side string) []editBlock {
	dmp := diffmatchpatch.New()
	baseChars, sideChars, lineArray := dmp.DiffLinesToChars(base, side)
	diffs := dmp.DiffMain(baseChars, sideChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var blocks []editBlock
	basePos := 0
	i := 0
	for i < len(diffs) {
		d := diffs[i]
		if d.Type == diffmatchpatch.DiffEqual {
			basePos += lineCount(d.Text)
			i++
			continue
		}

		start := basePos
		end := basePos
		var newLines []string
		for i < len(diffs) && diffs[i].Type != diffmatchpatch.DiffEqual {
			switch diffs[i].Type {
			case diffmatchpatch.DiffDelete:
				end += lineCount(diffs[i].Text)
			case diffmatchpatch.DiffInsert:
				newLines = append(newLines, splitLines(diffs[i].Text)...)
			}
			i++
		}
		blocks = append(blocks, editBlock{baseStart: start, baseEnd: end, newLines: newLines})
		basePos = end
	}
	return blocks
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// mergeWalk interleaves blocksOurs and blocksTheirs over baseLines,
// classifying each span as context, ours-only, theirs-only, or a
// conflict (spec.md §4.N). Ported from rybkr-gitvista's threeway.go
// mergeWalk, generalized to this package's Region/editBlock shapes.
func mergeWalk(baseLines []string, blocksOurs, blocksTheirs []editBlock) []Region {
	var regions []Region
	idxOurs, idxTheirs, basePos := 0, 0, 0

	for idxOurs < len(blocksOurs) || idxTheirs < len(blocksTheirs) {
		var nextOurs, nextTheirs *editBlock
		if idxOurs < len(blocksOurs) {
			nextOurs = &blocksOurs[idxOurs]
		}
		if idxTheirs < len(blocksTheirs) {
			nextTheirs = &blocksTheirs[idxTheirs]
		}

		switch {
		case nextOurs != nil && nextTheirs != nil && blocksOverlap(*nextOurs, *nextTheirs):
			overlapStart := min(nextOurs.baseStart, nextTheirs.baseStart)
			if basePos < overlapStart {
				regions = appendContext(regions, baseLines, basePos, overlapStart)
				basePos = overlapStart
			}

			overlapEnd := max(nextOurs.baseEnd, nextTheirs.baseEnd)

			combinedOurs := append([]string{}, blocksOurs[idxOurs].newLines...)
			idxOurs++
			for idxOurs < len(blocksOurs) && blocksOurs[idxOurs].baseStart < overlapEnd {
				combinedOurs = append(combinedOurs, blocksOurs[idxOurs].newLines...)
				overlapEnd = max(overlapEnd, blocksOurs[idxOurs].baseEnd)
				idxOurs++
			}

			combinedTheirs := append([]string{}, blocksTheirs[idxTheirs].newLines...)
			idxTheirs++
			for idxTheirs < len(blocksTheirs) && blocksTheirs[idxTheirs].baseStart < overlapEnd {
				combinedTheirs = append(combinedTheirs, blocksTheirs[idxTheirs].newLines...)
				overlapEnd = max(overlapEnd, blocksTheirs[idxTheirs].baseEnd)
				idxTheirs++
			}

			baseSpan := copySlice(baseLines, basePos, overlapEnd)
			if stringsEqual(combinedOurs, combinedTheirs) {
				regions = append(regions, Region{Type: RegionOurs, BaseLines: baseSpan, OursLines: combinedOurs})
			} else {
				regions = append(regions, Region{Type: RegionConflict, BaseLines: baseSpan, OursLines: combinedOurs, TheirsLines: combinedTheirs})
			}
			basePos = overlapEnd

		case nextOurs != nil && (nextTheirs == nil || nextOurs.baseStart <= nextTheirs.baseStart):
			if basePos < nextOurs.baseStart {
				regions = appendContext(regions, baseLines, basePos, nextOurs.baseStart)
				basePos = nextOurs.baseStart
			}
			regions = append(regions, Region{Type: RegionOurs, BaseLines: copySlice(baseLines, basePos, nextOurs.baseEnd), OursLines: nextOurs.newLines})
			basePos = nextOurs.baseEnd
			idxOurs++

		default:
			if basePos < nextTheirs.baseStart {
				regions = appendContext(regions, baseLines, basePos, nextTheirs.baseStart)
				basePos = nextTheirs.baseStart
			}
			regions = append(regions, Region{Type: RegionTheirs, BaseLines: copySlice(baseLines, basePos, nextTheirs.baseEnd), TheirsLines: nextTheirs.newLines})
			basePos = nextTheirs.baseEnd
			idxTheirs++
		}
	}

	if basePos < len(baseLines) {
		regions = appendContext(regions, baseLines, basePos, len(baseLines))
	}
	return regions
}

func blocksOverlap(a, b editBlock) bool {
	if a.baseStart < b.baseEnd && b.baseStart < a.baseEnd {
		return true
	}
	if a.baseStart == a.baseEnd && a.baseStart >= b.baseStart && a.baseStart <= b.baseEnd {
		return true
	}
	if b.baseStart == b.baseEnd && b.baseStart >= a.baseStart && b.baseStart <= a.baseEnd {
		return true
	}
	return false
}

func appendContext(regions []Region, baseLines []string, from, to int) []Region {
	if from >= to {
		return regions
	}
	return append(regions, Region{Type: RegionContext, BaseLines: copySlice(baseLines, from, to)})
}

func copySlice(lines []string, from, to int) []string {
	if from >= to || from >= len(lines) {
		return nil
	}
	if to > len(lines) {
		to = len(lines)
	}
	out := make([]string, to-from)
	copy(out, lines[from:to])
	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
