package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lukasojd/puregit/commitgraph"
)

func newCommitGraphCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit-graph",
		Short: "write or verify the commit-graph file",
	}
	cmd.AddCommand(newCommitGraphWriteCmd(flags))
	cmd.AddCommand(newCommitGraphVerifyCmd(flags))
	return cmd
}

func newCommitGraphWriteCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write",
		Short: "compute and write the commit-graph file for every ref",
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return commitGraphWriteCmd(flags)
	}
	return cmd
}

func newCommitGraphVerifyCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "check the commit-graph file's structure and, with --full, its cardinality against all refs",
	}
	full := cmd.Flags().Bool("full", false, "re-run the ref BFS and compare against the graph's commit count")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return commitGraphVerifyCmd(flags, *full)
	}
	return cmd
}

func commitGraphPath(dir string) string {
	return filepath.Join(dir, gitDir, "objects", "info", "commit-graph")
}

func commitGraphWriteCmd(flags *rootFlags) error {
	repo, err := openRepository(flags.dir)
	if err != nil {
		return err
	}
	defer repo.Objects.Close()

	refNames, err := repo.Refs.ListRefs("")
	if err != nil {
		return err
	}

	path := commitGraphPath(flags.dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	checksum, err := commitgraph.Write(f, getterAdapter{repo.Objects}, refNames)
	if err != nil {
		return err
	}
	fmt.Println(checksum.String())
	return nil
}

func commitGraphVerifyCmd(flags *rootFlags, full bool) error {
	repo, err := openRepository(flags.dir)
	if err != nil {
		return err
	}
	defer repo.Objects.Close()

	f, err := os.Open(commitGraphPath(flags.dir))
	if err != nil {
		return err
	}
	defer f.Close()

	refNames, err := repo.Refs.ListRefs("")
	if err != nil {
		return err
	}

	g, err := commitgraph.Verify(full, f, getterAdapter{repo.Objects}, refNames)
	if err != nil {
		return err
	}
	fmt.Printf("ok, %d commits\n", g.Count())
	return nil
}
