package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbiterhq/orbiter-saas/platform/go/persistence"
)

// Notes/constraints:
// - `platform` creates the control-plane schema (tenants registry + database
//   config table) and is safe to re-run.
// - Tenant databases are never touched here; their bootstrap SQL is printed by
//   `orbiter fleet bootstrap-sql` and applied by an operator.

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (control-plane schema)",
		Long:  "Bootstrap control-plane resources such as the tenant registry and tenant database configuration tables.",
	}

	cmd.AddCommand(platformCommand())
	return cmd
}

func platformCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "platform",
		Short: "Apply the control-plane DDL (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapPlatformSchema(ctx, pool); err != nil {
				return fmt.Errorf("apply platform schema: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Platform schema ready.")
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	_ = c.MarkFlagRequired("database-url")

	return c
}
