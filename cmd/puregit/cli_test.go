package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitCreatesExpectedLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, initRepository(dir))

	for _, sub := range []string{"objects/pack", "refs/heads", "refs/tags", "HEAD"} {
		_, err := os.Stat(filepath.Join(dir, gitDir, sub))
		require.NoError(t, err, sub)
	}
}

func TestHashObjectWriteThenCatFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, initRepository(dir))
	flags := &rootFlags{dir: dir}

	srcPath := filepath.Join(dir, "greeting.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello world\n"), 0o644))

	var hashOut bytes.Buffer
	require.NoError(t, hashObjectCmd(&hashOut, flags, srcPath, true))
	id := bytes.TrimSpace(hashOut.Bytes())
	require.Len(t, id, 40)

	var catOut bytes.Buffer
	require.NoError(t, catFileCmd(&catOut, flags, catFileParams{prettyPrint: true, objectName: string(id)}))
	require.Equal(t, "hello world\n", catOut.String())

	var typeOut bytes.Buffer
	require.NoError(t, catFileCmd(&typeOut, flags, catFileParams{typeOnly: true, objectName: string(id)}))
	require.Equal(t, "blob\n", typeOut.String())
}

func TestCatFileRejectsConflictingOptions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, initRepository(dir))
	flags := &rootFlags{dir: dir}

	var out bytes.Buffer
	err := catFileCmd(&out, flags, catFileParams{typeOnly: true, sizeOnly: true, objectName: "deadbeef"})
	require.ErrorIs(t, err, errBadOptionCombination)
}

func TestCommitGraphWriteThenVerify(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, initRepository(dir))
	flags := &rootFlags{dir: dir}

	// An empty repository still has a valid (empty) commit-graph.
	require.NoError(t, commitGraphWriteCmd(flags))
	require.NoError(t, commitGraphVerifyCmd(flags, true))
}
