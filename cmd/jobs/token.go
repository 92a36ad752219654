package main

import (
	"fmt"
	"time"

	"coin_ledger/internal/config"
	"coin_ledger/internal/utils"

	"github.com/spf13/cobra"
)

func tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a scheduler token for the job trigger endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			token, err := utils.GenerateSchedulerJWT(cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Duration("ttl", 24*time.Hour, "How long the token stays valid")

	return cmd
}
