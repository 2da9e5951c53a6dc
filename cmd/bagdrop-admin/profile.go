package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bagdrop/internal/modules/profile"
	"bagdrop/internal/types"
)

func ProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Administer user profiles",
	}
	cmd.AddCommand(
		profileSetCmd("set-status <uid> <status>", "Set account status (active, pending, deactivated, offline)",
			func(v string) profile.AdminUpdate {
				s := profile.AccountStatus(v)
				return profile.AdminUpdate{Status: &s}
			}),
		profileSetCmd("set-verification <uid> <state>", "Set verification (unverified, pending, verified, rejected)",
			func(v string) profile.AdminUpdate {
				s := profile.Verification(v)
				return profile.AdminUpdate{Verification: &s}
			}),
		profileSetCmd("set-role <uid> <role>", "Set role (admin, airline, delivery)",
			func(v string) profile.AdminUpdate {
				r := types.Role(v)
				return profile.AdminUpdate{Role: &r}
			}),
	)
	return cmd
}

// profileSetCmd runs one admin update as an administrator; the service
// validates the value.
func profileSetCmd(use, short string, build func(string) profile.AdminUpdate) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := profile.NewService(profile.NewStore(db), nil, nil, cliLogger(cfg))
			p, err := svc.AdminUpdate(cmd.Context(), types.RoleAdmin, types.ID(args[0]), build(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s role=%s status=%s verification=%s\n", p.ID, p.Role, p.Status, p.Verification)
			return nil
		},
	}
}
