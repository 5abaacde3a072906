package main

import "github.com/spf13/cobra"

func newInitCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create an empty repository",
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return initRepository(flags.dir)
	}
	return cmd
}
