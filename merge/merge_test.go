package merge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/merge"
)

// Scenario 5 (spec.md §8): non-conflicting three-way merge.
func TestMergeNonConflicting(t *testing.T) {
	base := "1\n2\n3\n"
	ours := "1\n2\n3\n4\n"
	theirs := "0\n1\n2\n3\n"

	result := merge.Merge(base, ours, theirs)
	require.False(t, result.IsConflicted)
	require.Equal(t, "0\n1\n2\n3\n4\n", result.MergedContent)
}

// Scenario 6 (spec.md §8): conflicting three-way merge.
func TestMergeConflicting(t *testing.T) {
	base := "a\n"
	ours := "b\n"
	theirs := "c\n"

	result := merge.Merge(base, ours, theirs)
	require.True(t, result.IsConflicted)
	require.Contains(t, result.MergedContent, "<<<<<<< ours\n")
	require.Contains(t, result.MergedContent, "=======\n")
	require.Contains(t, result.MergedContent, ">>>>>>> theirs\n")

	oursIdx := indexOf(result.MergedContent, "b\n")
	sepIdx := indexOf(result.MergedContent, "=======\n")
	theirsIdx := indexOf(result.MergedContent, "c\n")
	require.True(t, oursIdx < sepIdx && sepIdx < theirsIdx)
}

func TestMergeShortCircuits(t *testing.T) {
	base := "1\n2\n"

	same := merge.Merge(base, "x\n", "x\n")
	require.False(t, same.IsConflicted)
	require.Equal(t, "x\n", same.MergedContent)

	oursOnly := merge.Merge(base, base, "y\n")
	require.False(t, oursOnly.IsConflicted)
	require.Equal(t, "y\n", oursOnly.MergedContent)

	theirsOnly := merge.Merge(base, "z\n", base)
	require.False(t, theirsOnly.IsConflicted)
	require.Equal(t, "z\n", theirsOnly.MergedContent)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
