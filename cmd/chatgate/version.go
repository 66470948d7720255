package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memohai/chatgate/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "chatgate "+version.GetInfo())
			return err
		},
	}
}
