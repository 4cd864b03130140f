package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"treasury/internal/app"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the store applies the embedded migrations.
			return withServices(cmd, func(ctx context.Context, s *app.Services) error {
				if err := s.Store.Ping(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", s.Config.StoreDriver)
				return nil
			})
		},
	}
}
