package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/migrations"
)

var dsn string

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Schema migrations and bootstrap data for the POS database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
			return db.NewMigrator(pool, migrations.FS, migrations.Dir).Up(ctx)
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
			return db.NewMigrator(pool, migrations.FS, migrations.Dir).Down(ctx)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
			return db.NewMigrator(pool, migrations.FS, migrations.Dir).Status(ctx)
		})
	},
}

func init() {
	_ = godotenv.Load()
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("PG_DSN"), "PostgreSQL connection string (defaults to PG_DSN)")
	rootCmd.AddCommand(upCmd, downCmd, statusCmd, seedAdminCmd, seedDemoCmd)
}

func withPool(ctx context.Context, fn func(context.Context, *pgxpool.Pool) error) error {
	if dsn == "" {
		return errors.New("--dsn or PG_DSN is required")
	}
	pool, err := db.New(ctx, dsn, db.PoolConfig{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping migrate")
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
