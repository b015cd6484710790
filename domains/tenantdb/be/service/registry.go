package service

import (
	"fmt"
	"strings"

	sqlassets "github.com/orbiterhq/orbiter-saas/database"
)

// Script upgrades a tenant schema by exactly one version step. FromVersion is
// the version a tenant must be at for the script to apply; applying it brings
// the tenant to FromVersion+1.
type Script struct {
	FromVersion int
	Name        string
	SQL         string
}

// Registry is the ordered, process-wide list of migration scripts. It is
// immutable after construction and safe for unsynchronized concurrent reads.
// The target version is derived from the script count and injected wherever
// it is needed, so tests can build registries at other versions.
type Registry struct {
	scripts []Script
}

// NewRegistry validates that scripts form a contiguous ladder starting at
// version 0 and returns the registry.
func NewRegistry(scripts []Script) (*Registry, error) {
	if len(scripts) == 0 {
		return nil, fmt.Errorf("migration registry: no scripts")
	}
	for i, s := range scripts {
		if s.FromVersion != i {
			return nil, fmt.Errorf("migration registry: script %q has from-version %d, want %d", s.Name, s.FromVersion, i)
		}
		if strings.TrimSpace(s.SQL) == "" {
			return nil, fmt.Errorf("migration registry: script %q is empty", s.Name)
		}
	}
	return &Registry{scripts: scripts}, nil
}

// DefaultRegistry returns the registry shipped with this release.
func DefaultRegistry() *Registry {
	r, err := NewRegistry([]Script{
		{FromVersion: 0, Name: "0001_crm_core", SQL: sqlassets.TenantMigration0001},
		{FromVersion: 1, Name: "0002_automations", SQL: sqlassets.TenantMigration0002},
		{FromVersion: 2, Name: "0003_contacts_conversations", SQL: sqlassets.TenantMigration0003},
		{FromVersion: 3, Name: "0004_services_knowledge", SQL: sqlassets.TenantMigration0004},
	})
	if err != nil {
		panic(err) // embedded scripts are fixed at build time
	}
	return r
}

// TargetVersion is the version every tenant should be at for this release.
func (r *Registry) TargetVersion() int {
	return len(r.scripts)
}

// Pending returns the scripts needed to move a tenant from current to the
// target version, in ascending order. Empty when current >= target.
func (r *Registry) Pending(current int) []Script {
	if current < 0 {
		current = 0
	}
	if current >= len(r.scripts) {
		return nil
	}
	out := make([]Script, len(r.scripts)-current)
	copy(out, r.scripts[current:])
	return out
}

// CumulativeSQL concatenates the pending scripts into one batch. Scripts are
// idempotent, so re-running the batch after a partial remote failure is safe.
func (r *Registry) CumulativeSQL(current int) string {
	pending := r.Pending(current)
	parts := make([]string, 0, len(pending))
	for _, s := range pending {
		parts = append(parts, strings.TrimSpace(s.SQL))
	}
	return strings.Join(parts, "\n\n")
}

// BootstrapSQL returns the exec_ddl installer operators run once per tenant
// database before remote migration execution works.
func BootstrapSQL() string {
	return sqlassets.TenantBootstrapSQL
}
