package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/telecare/telecare/internal/config"
	"github.com/telecare/telecare/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "telecare-server",
		Short: "Telehealth practice-management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// connect loads configuration and opens the pool shared by every command.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.Drifted {
						status = "drifted"
					}
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("migrate down is not supported by the built-in runner; restore from backup or write a forward migration")
		},
	})

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair profiles with missing role records or provider schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}
			logger := newLogger(cfg.Env)

			tctx, release, err := db.AcquireTenant(ctx, pool, tenant)
			if err != nil {
				return err
			}
			defer release()

			svcs := newServices(cfg, pool, nil, nil, logger)
			report, err := svcs.reconciler.Reconcile(tctx, dryRun)
			if err != nil {
				return fmt.Errorf("reconcile tenant %s: %w", tenant, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d repair(s) failed", len(report.Failures))
			}
			return nil
		},
	}
	cmd.Flags().String("tenant", "", "Tenant to reconcile (defaults to DEFAULT_TENANT)")
	cmd.Flags().Bool("dry-run", false, "Report what would be repaired without writing")
	return cmd
}
