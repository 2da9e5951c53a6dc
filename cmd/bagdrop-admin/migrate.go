package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bagdrop/internal/infra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply migrations/*.sql in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				found, err := infra.FindMigrations()
				if err != nil {
					return err
				}
				dir = found
			}

			db, _, err := openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := infra.ApplyMigrations(cmd.Context(), db, dir)
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no migration files found in", dir)
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "migrations directory (default: migrations/ next to go.mod)")
	return cmd
}
