package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootFlags holds the persistent flags every subcommand reads.
type rootFlags struct {
	dir string
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "puregit",
		Short:         "a from-scratch Git object/pack storage engine",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := &rootFlags{}
	cmd.PersistentFlags().StringVarP(&flags.dir, "C", "C", "", "run as if started in the given directory instead of the current one")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if flags.dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			flags.dir = wd
		}
		return nil
	}

	cmd.AddCommand(newInitCmd(flags))
	cmd.AddCommand(newCatFileCmd(flags))
	cmd.AddCommand(newHashObjectCmd(flags))
	cmd.AddCommand(newCommitGraphCmd(flags))

	return cmd
}
