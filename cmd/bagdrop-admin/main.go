// README: Operations CLI: migrations, environment checks, pricing and profile administration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"bagdrop/internal/config"
	"bagdrop/internal/infra"
	"bagdrop/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "bagdrop-admin",
		Short:         "bagdrop operations tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("dsn", "", "Postgres DSN (default from BAGDROP_DB_DSN)")

	root.AddCommand(
		MigrateCmd(),
		CheckCmd(),
		PricingCmd(),
		ProfileCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the --dsn override on top of the environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
		cfg.DB.DSN = dsn
	}
	return cfg, nil
}

func openDB(ctx context.Context, cmd *cobra.Command) (*pgxpool.Pool, config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	db, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, cfg, err
	}
	return db, cfg, nil
}

func cliLogger(cfg config.Config) logger.Logger {
	return logger.New(cfg.Log.Level)
}
