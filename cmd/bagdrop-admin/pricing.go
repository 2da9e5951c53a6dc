package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bagdrop/internal/modules/pricing"
)

func PricingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Inspect the city price table",
	}
	cmd.AddCommand(pricingListCmd(), pricingQuoteCmd())
	return cmd
}

func pricingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List price entries in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := pricing.NewService(pricing.NewStore(db), cliLogger(cfg)).List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tCITY\tNORMALIZED\tPRICE")
			for i, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, e.City, pricing.Normalize(e.City), e.Price)
			}
			return w.Flush()
		},
	}
}

func pricingQuoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote <address>",
		Short: "Show which entry an address matches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			address := strings.Join(args, " ")
			q := pricing.NewService(pricing.NewStore(db), cliLogger(cfg)).Quote(cmd.Context(), address)
			fmt.Fprintf(cmd.OutOrStdout(), "address:    %s\nnormalized: %s\nstatus:     %s\n", address, pricing.Normalize(address), q.Status)
			if q.Status == pricing.StatusOK {
				fmt.Fprintf(cmd.OutOrStdout(), "city:       %s\nfee:        %s\n", q.City, q.Fee)
			}
			return nil
		},
	}
}
