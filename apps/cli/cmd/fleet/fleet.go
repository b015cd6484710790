package fleet

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/directory"
	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/gateway"
	tdbrepo "github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/repo"
	tdbservice "github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/service"
	tenantsrepo "github.com/orbiterhq/orbiter-saas/domains/tenants/be/repo"
	tenantsservice "github.com/orbiterhq/orbiter-saas/domains/tenants/be/service"
	"github.com/orbiterhq/orbiter-saas/platform/go/persistence"
)

// Command groups fleet-wide tenant database operations.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Tenant database fleet operations (status/migrate)",
	}

	cmd.AddCommand(statusCommand())
	cmd.AddCommand(migrateCommand())
	cmd.AddCommand(bootstrapSQLCommand())
	return cmd
}

func statusCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "status",
		Short: "Show schema versions across the active fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, cleanup, err := buildService(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := svc.ListOutdated(ctx)
			if err != nil {
				return fmt.Errorf("fleet sweep: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TENANT\tSLUG\tVERSION\tTARGET\tNEEDS UPDATE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\tv%d\tv%d\t%t\n",
					e.TenantID, e.TenantSlug, e.CurrentVersion, e.TargetVersion, e.NeedsUpdate)
			}
			return w.Flush()
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	_ = c.MarkFlagRequired("database-url")

	return c
}

func migrateCommand() *cobra.Command {
	var (
		databaseURL string
		tenantID    string
		all         bool
	)

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Run migrations for one tenant or every outdated tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if all == (tenantID != "") {
				return fmt.Errorf("pass exactly one of --tenant-id or --all")
			}

			svc, cleanup, err := buildService(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer cleanup()

			var targets []uuid.UUID
			if all {
				entries, err := svc.Outdated(ctx)
				if err != nil {
					return fmt.Errorf("fleet sweep: %w", err)
				}
				for _, e := range entries {
					targets = append(targets, e.TenantID)
				}
				if len(targets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Fleet is up to date.")
					return nil
				}
			} else {
				id, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("invalid tenant id: %w", err)
				}
				targets = append(targets, id)
			}

			for _, id := range targets {
				res, err := svc.RunMigrations(ctx, id)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED: %v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: success=%t v%d: %s\n", id, res.Success, res.NewVersion, res.Message)
				if res.ManualSQL != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "--- apply manually ---\n%s\n", res.ManualSQL)
				}
			}
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID to migrate")
	c.Flags().BoolVar(&all, "all", false, "Migrate every outdated tenant")
	_ = c.MarkFlagRequired("database-url")

	return c
}

func bootstrapSQLCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "bootstrap-sql",
		Short: "Print the SQL that installs the remote exec_ddl function on a tenant database",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), tdbservice.BootstrapSQL())
			return nil
		},
	}
	return c
}

func buildService(ctx context.Context, databaseURL string) (*tdbservice.Service, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	tenants := tenantsservice.New(tenantsrepo.NewPostgresRepository(pool))
	svc := tdbservice.New(tdbservice.Deps{
		Repo:      tdbrepo.NewPostgresRepository(pool),
		Directory: directory.New(tenants),
		Registry:  tdbservice.DefaultRegistry(),
		Factory: func(rawURL, apiKey string) (tdbservice.Gateway, error) {
			return gateway.New(rawURL, apiKey)
		},
	})
	return svc, func() { persistence.ClosePool(pool) }, nil
}
