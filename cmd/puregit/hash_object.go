package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukasojd/puregit/object"
)

func newHashObjectCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-object FILE",
		Short: "compute an object's id and optionally write it to the store",
		Args:  cobra.ExactArgs(1),
	}

	write := cmd.Flags().BoolP("w", "w", false, "write the object into the object store")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return hashObjectCmd(cmd.OutOrStdout(), flags, args[0], *write)
	}
	return cmd
}

func hashObjectCmd(out io.Writer, flags *rootFlags, filePath string, write bool) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	blob := &object.Blob{Content: content}

	if !write {
		id, err := object.ID(blob)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, id.String())
		return nil
	}

	repo, err := openRepository(flags.dir)
	if err != nil {
		return err
	}
	defer repo.Objects.Close()

	id, err := repo.Objects.Write(blob)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id.String())
	return nil
}
