package sqlassets

import _ "embed"

// Control-plane schema, applied by `orbiter bootstrap platform` and tests.

//go:embed schema/platform/tenants.sql
var TenantsSQL string

//go:embed schema/platform/tenant_database_config.sql
var TenantDatabaseConfigSQL string

// Tenant database migration steps, embedded in ascending version order.
// Each script upgrades a tenant schema by exactly one version and must stay
// idempotent (CREATE TABLE IF NOT EXISTS, DROP POLICY IF EXISTS, ...) so a
// cumulative batch can be re-run after a partial remote failure.

//go:embed tenantdb/0001_crm_core.sql
var TenantMigration0001 string

//go:embed tenantdb/0002_automations.sql
var TenantMigration0002 string

//go:embed tenantdb/0003_contacts_conversations.sql
var TenantMigration0003 string

//go:embed tenantdb/0004_services_knowledge.sql
var TenantMigration0004 string

//go:embed tenantdb/bootstrap.sql
var TenantBootstrapSQL string
