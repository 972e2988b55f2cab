package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/connorpauley-png/content-command-sub001/pkg/utils"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API token signed with SECRET_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.SecretKey == "" {
				return errors.New("SECRET_KEY is not set")
			}
			token, err := utils.GenerateToken(cfg.SecretKey, args[0], role, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "operator", "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	return cmd
}

func newSecretCommand() *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate a random value for SECRET_KEY or CRON_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := utils.GenerateSecret(length)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}

	cmd.Flags().IntVar(&length, "bytes", 32, "Random bytes before encoding")
	return cmd
}
