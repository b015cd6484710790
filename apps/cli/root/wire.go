package root

import (
	"github.com/orbiterhq/orbiter-saas/apps/cli/cmd/auth"
	"github.com/orbiterhq/orbiter-saas/apps/cli/cmd/bootstrap"
	"github.com/orbiterhq/orbiter-saas/apps/cli/cmd/fleet"
	"github.com/orbiterhq/orbiter-saas/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(fleet.Command())
}
