package tenantcmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/orbiterhq/orbiter-saas/domains/tenants/be/repo"
	"github.com/orbiterhq/orbiter-saas/domains/tenants/be/service"
	"github.com/orbiterhq/orbiter-saas/platform/go/persistence"
)

// Command groups tenant registry helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant registry utilities (create/list)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

func createCommand() *cobra.Command {
	var (
		databaseURL string
		slug        string
		name        string
		email       string
		plan        string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant registry entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, cleanup, err := buildService(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := svc.Create(ctx, service.CreateInput{
				Slug:  slug,
				Name:  name,
				Email: email,
				Plan:  plan,
			})
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tenant created: %s (%s)\n", t.Slug, t.ID)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&slug, "slug", "", "Unique tenant slug")
	c.Flags().StringVar(&name, "name", "", "Tenant display name")
	c.Flags().StringVar(&email, "email", "", "Tenant contact email")
	c.Flags().StringVar(&plan, "plan", "starter", "Plan (starter, growth, enterprise)")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("slug")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("email")

	return c
}

func listCommand() *cobra.Command {
	var (
		databaseURL string
		status      string
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenant registry entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, cleanup, err := buildService(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := service.ListOptions{Page: 1, PageSize: 200}
			if status != "" {
				st := service.TenantStatusFromString(status)
				opts.Status = &st
			}

			result, err := svc.List(ctx, opts)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSLUG\tNAME\tPLAN\tSTATUS")
			for _, t := range result.Tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Slug, t.Name, t.Plan, t.Status)
			}
			return w.Flush()
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&status, "status", "", "Filter by status (active, suspended)")
	_ = c.MarkFlagRequired("database-url")

	return c
}

func buildService(ctx context.Context, databaseURL string) (*service.Service, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}
	svc := service.New(repo.NewPostgresRepository(pool))
	return svc, func() { persistence.ClosePool(pool) }, nil
}
