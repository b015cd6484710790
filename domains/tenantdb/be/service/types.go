package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the service layer.
var (
	// ErrUnknownTenant means the tenant has no control-plane record at all.
	ErrUnknownTenant = errors.New("unknown tenant")
	// ErrNotConfigured means no database credentials are stored for the
	// tenant. It is a first-class outcome, not a failure: consumers prompt
	// the operator through the setup wizard.
	ErrNotConfigured = errors.New("tenant database not configured")
	// ErrInvalidConfiguration means stored or submitted credentials are
	// malformed. Raised locally, never after a network call.
	ErrInvalidConfiguration = errors.New("invalid database configuration")
	// ErrSuspended means the configuration is on operator hold.
	ErrSuspended = errors.New("tenant database suspended")
	// ErrConflict means a conditional status move lost against a concurrent writer.
	ErrConflict = errors.New("concurrent status change")
)

// Status is the persisted lifecycle state of a tenant database configuration.
type Status string

const (
	// StatusNotConfigured is virtual: inferred when no row or no URL exists,
	// never written to the store.
	StatusNotConfigured Status = "not_configured"
	StatusPending       Status = "pending"
	StatusConfigured    Status = "configured"
	StatusTesting       Status = "testing"
	StatusActive        Status = "active"
	StatusError         Status = "error"
	StatusSuspended     Status = "suspended"
)

// StatusFromString converts a stored string to Status; defaults to pending on unknown.
func StatusFromString(s string) Status {
	switch Status(s) {
	case StatusPending, StatusConfigured, StatusTesting, StatusActive, StatusError, StatusSuspended:
		return Status(s)
	default:
		return StatusPending
	}
}

// Config is the domain model for one tenant's database configuration row.
type Config struct {
	TenantID        uuid.UUID
	ConnectionURL   string
	PublicKey       string
	PrivateKey      *string
	Status          Status
	StatusMessage   *string
	LastTestedAt    *time.Time
	SchemaVersion   int
	LastMigrationAt *time.Time
	EnableRealtime  bool
	EnableStorage   bool
	MaxConnections  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Configured reports whether the row holds enough credentials to build a client.
func (c Config) Configured() bool {
	return c.ConnectionURL != "" && c.PublicKey != ""
}

// SaveConfigInput carries operator-submitted credentials and capability flags.
type SaveConfigInput struct {
	ConnectionURL  string  `validate:"required,max=2048"`
	PublicKey      string  `validate:"required,max=4096"`
	PrivateKey     *string `validate:"omitempty,max=4096"`
	EnableRealtime bool
	EnableStorage  bool
	MaxConnections int `validate:"omitempty,gte=1,lte=500"`
}

// ProbeResult reports a connectivity check outcome.
type ProbeResult struct {
	Success  bool
	Message  string
	TestedAt time.Time
}

// MigrationResult reports a migration run outcome.
type MigrationResult struct {
	Success    bool
	NewVersion int
	Message    string
	// ManualSQL is populated when remote execution was unavailable and the
	// operator must apply the batch by hand.
	ManualSQL string
}

// FleetEntry is one row of the fleet migration status sweep.
type FleetEntry struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	TenantName     string    `json:"tenant_name"`
	TenantSlug     string    `json:"tenant_slug"`
	CurrentVersion int       `json:"current_version"`
	TargetVersion  int       `json:"target_version"`
	NeedsUpdate    bool      `json:"needs_update"`
}

// TenantRef is the slice of the tenant registry the fleet sweep needs.
type TenantRef struct {
	ID   uuid.UUID
	Slug string
	Name string
}

// Directory exposes the tenant registry to this domain.
type Directory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ListActive(ctx context.Context) ([]TenantRef, error)
}

// Gateway is the per-tenant database client surface the service drives.
// *gateway.Client is the production implementation.
type Gateway interface {
	Probe(ctx context.Context, table string) error
	ExecDDL(ctx context.Context, ddl string) error
}

// Repository abstracts persistence of configuration rows. Status moves are
// conditional single-row updates so concurrent operators cannot resurrect a
// stale state, and the version bump is a compare-and-swap.
type Repository interface {
	// Get returns the row or ErrNotConfigured when absent.
	Get(ctx context.Context, tenantID uuid.UUID) (Config, error)
	// Upsert creates or replaces credentials for the tenant, preserving
	// schema_version and migration timestamps on update.
	Upsert(ctx context.Context, cfg Config) (Config, error)
	// SetStatus moves status to `to` only when the current status is in
	// `from`, updating message and optionally last_tested_at. Returns false
	// when no transition happened.
	SetStatus(ctx context.Context, tenantID uuid.UUID, from []Status, to Status, message *string, testedAt *time.Time) (bool, error)
	// AdvanceVersion sets schema_version to target and stamps
	// last_migration_at, but only when the stored version still equals
	// observed. Returns false when the compare-and-swap lost.
	AdvanceVersion(ctx context.Context, tenantID uuid.UUID, observed, target int, migratedAt time.Time) (bool, error)
	// ListAll returns every configuration row.
	ListAll(ctx context.Context) ([]Config, error)
}

// FleetCache holds the fleet sweep result for a short staleness window.
// Implementations must treat errors as misses; the sweep is cheap enough to
// recompute.
type FleetCache interface {
	Get(ctx context.Context) ([]FleetEntry, bool)
	Set(ctx context.Context, entries []FleetEntry)
}
