package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var envFlag string

	ctx := newCommandContext(&envFlag)

	rootCmd := &cobra.Command{
		Use:           "contentctl",
		Short:         "Operate the content publishing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFlag, "env", ".env", "Environment file to load before reading configuration")

	rootCmd.AddCommand(newPublishCommand(ctx))
	rootCmd.AddCommand(newScheduleCommand(ctx))
	rootCmd.AddCommand(newMatchCommand())
	rootCmd.AddCommand(newTokenCommand(ctx))
	rootCmd.AddCommand(newSecretCommand())

	return rootCmd
}
