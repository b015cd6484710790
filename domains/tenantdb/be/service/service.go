package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/gateway"
)

// probeTable is the well-known table expected to exist after the first
// migration; probing it distinguishes "unreachable" from "reachable but
// unmigrated".
const probeTable = "crm_pipelines"

// defaultTestingGrace bounds how long a row may sit in `testing` before reads
// treat the probe as dead (crashed prober, lost response).
const defaultTestingGrace = 2 * time.Minute

// Deps wires the service. Repo, Directory, Registry and Factory are required;
// Cache is optional (fleet reads fall through to the store when nil).
type Deps struct {
	Repo      Repository
	Directory Directory
	Registry  *Registry
	Factory   GatewayFactory
	Cache     FleetCache
	Logger    *zap.Logger

	PoolSize     int
	PoolTTL      time.Duration
	TestingGrace time.Duration
}

// Service implements tenant database routing and migration versioning.
type Service struct {
	repo         Repository
	directory    Directory
	registry     *Registry
	pool         *ClientPool
	cache        FleetCache
	logger       *zap.Logger
	validate     *validator.Validate
	testingGrace time.Duration
	now          func() time.Time
}

// New constructs the Service.
func New(deps Deps) *Service {
	if deps.Repo == nil {
		panic("tenantdb service requires repo")
	}
	if deps.Directory == nil {
		panic("tenantdb service requires tenant directory")
	}
	if deps.Registry == nil {
		panic("tenantdb service requires migration registry")
	}
	if deps.Factory == nil {
		panic("tenantdb service requires gateway factory")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	grace := deps.TestingGrace
	if grace <= 0 {
		grace = defaultTestingGrace
	}

	return &Service{
		repo:         deps.Repo,
		directory:    deps.Directory,
		registry:     deps.Registry,
		pool:         NewClientPool(deps.Factory, deps.PoolSize, deps.PoolTTL),
		cache:        deps.Cache,
		logger:       deps.Logger,
		validate:     validator.New(),
		testingGrace: grace,
		now:          time.Now,
	}
}

// TargetVersion exposes the release's expected schema version.
func (s *Service) TargetVersion() int {
	return s.registry.TargetVersion()
}

// SaveConfig upserts credentials for a tenant. A save always resets
// verification: status becomes `configured` and a fresh probe is required
// before the tenant counts as reachable. The cached client is evicted so the
// next operation binds the new credentials.
func (s *Service) SaveConfig(ctx context.Context, tenantID uuid.UUID, input SaveConfigInput) (Config, error) {
	if err := s.ensureTenant(ctx, tenantID); err != nil {
		return Config{}, err
	}

	if input.MaxConnections == 0 {
		input.MaxConnections = 20
	}
	if err := s.validate.Struct(input); err != nil {
		return Config{}, errors.Join(ErrInvalidConfiguration, err)
	}
	// Reject malformed URLs before they are persisted; gateway.New performs
	// the same syntactic checks it would apply at resolve time.
	if _, err := gateway.New(input.ConnectionURL, input.PublicKey); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	existing, err := s.repo.Get(ctx, tenantID)
	switch {
	case errors.Is(err, ErrNotConfigured):
		existing = Config{TenantID: tenantID}
	case err != nil:
		return Config{}, err
	case existing.Status == StatusSuspended:
		return Config{}, ErrSuspended
	}

	msg := "credentials saved, connectivity unverified"
	next := existing
	next.TenantID = tenantID
	next.ConnectionURL = input.ConnectionURL
	next.PublicKey = input.PublicKey
	next.PrivateKey = input.PrivateKey
	next.EnableRealtime = input.EnableRealtime
	next.EnableStorage = input.EnableStorage
	next.MaxConnections = input.MaxConnections
	next.Status = StatusConfigured
	next.StatusMessage = &msg

	saved, err := s.repo.Upsert(ctx, next)
	if err != nil {
		return Config{}, err
	}

	s.pool.Invalidate(tenantID)
	s.logger.Info("tenant database credentials saved",
		zap.String("tenant_id", tenantID.String()),
		zap.Bool("privileged_key", input.PrivateKey != nil))
	return saved, nil
}

// GetConfig returns the tenant's configuration, repairing a probe that died
// mid-flight: a row stuck in `testing` past the grace period is moved to
// `error` so operators can retry.
func (s *Service) GetConfig(ctx context.Context, tenantID uuid.UUID) (Config, error) {
	if err := s.ensureTenant(ctx, tenantID); err != nil {
		return Config{}, err
	}

	cfg, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return Config{}, err
	}
	return s.repairStaleTesting(ctx, cfg), nil
}

// Resolve produces a gateway client bound to the tenant's external database
// using the public key. ErrNotConfigured is a first-class outcome;
// ErrInvalidConfiguration is raised before any network call.
func (s *Service) Resolve(ctx context.Context, tenantID uuid.UUID) (Gateway, error) {
	return s.resolve(ctx, tenantID, false)
}

func (s *Service) resolve(ctx context.Context, tenantID uuid.UUID, privileged bool) (Gateway, error) {
	if err := s.ensureTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	cfg, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	key := cfg.PublicKey
	if privileged {
		if cfg.PrivateKey == nil || *cfg.PrivateKey == "" {
			return nil, fmt.Errorf("%w: no privileged key stored", ErrNotConfigured)
		}
		key = *cfg.PrivateKey
	}

	gw, err := s.pool.Get(tenantID, cfg.ConnectionURL, key, privileged)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidURL) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		return nil, err
	}
	return gw, nil
}

// TestConnection probes the tenant's database and persists the outcome.
// The row is moved to `testing` first so concurrent observers see the
// in-flight state; schema_version is never touched.
func (s *Service) TestConnection(ctx context.Context, tenantID uuid.UUID) (ProbeResult, error) {
	cfg, err := s.GetConfig(ctx, tenantID)
	if err != nil {
		return ProbeResult{}, err
	}
	if !cfg.Configured() {
		return ProbeResult{}, ErrNotConfigured
	}
	if cfg.Status == StatusSuspended {
		return ProbeResult{}, ErrSuspended
	}

	moved, err := s.repo.SetStatus(ctx, tenantID,
		[]Status{StatusPending, StatusConfigured, StatusError, StatusActive},
		StatusTesting, nil, nil)
	if err != nil {
		return ProbeResult{}, err
	}
	if !moved {
		return ProbeResult{}, ErrConflict
	}

	gw, err := s.resolve(ctx, tenantID, false)
	if err != nil {
		// Resolution failed after we flagged testing; restore an error state.
		msg := err.Error()
		testedAt := s.now().UTC()
		s.mustSetStatus(ctx, tenantID, []Status{StatusTesting}, StatusError, &msg, &testedAt)
		return ProbeResult{}, err
	}

	testedAt := s.now().UTC()
	probeErr := gw.Probe(ctx, probeTable)

	switch {
	case probeErr == nil:
		msg := "connection verified"
		s.mustSetStatus(ctx, tenantID, []Status{StatusTesting}, StatusActive, &msg, &testedAt)
		return ProbeResult{Success: true, Message: msg, TestedAt: testedAt}, nil

	case errors.Is(probeErr, gateway.ErrSchemaAbsent):
		// Reachable but unmigrated: connectivity itself is good.
		msg := "connected, but the expected schema is absent; run migrations"
		s.mustSetStatus(ctx, tenantID, []Status{StatusTesting}, StatusActive, &msg, &testedAt)
		return ProbeResult{Success: true, Message: msg, TestedAt: testedAt}, nil

	default:
		msg := probeErr.Error()
		s.mustSetStatus(ctx, tenantID, []Status{StatusTesting}, StatusError, &msg, &testedAt)
		return ProbeResult{Success: false, Message: msg, TestedAt: testedAt}, nil
	}
}

// RunMigrations brings the tenant's schema to the registry's target version
// as one cumulative idempotent batch. Remote privileged execution is
// preferred; infrastructure failures fall back to manual mode, where the SQL
// is returned for the operator to apply by hand and the recorded version
// advances optimistically. A statement rejected by the tenant database leaves
// the version untouched and flips status to `error`.
func (s *Service) RunMigrations(ctx context.Context, tenantID uuid.UUID) (MigrationResult, error) {
	cfg, err := s.GetConfig(ctx, tenantID)
	if err != nil {
		return MigrationResult{}, err
	}
	if !cfg.Configured() {
		return MigrationResult{}, ErrNotConfigured
	}
	if cfg.Status == StatusSuspended {
		return MigrationResult{}, ErrSuspended
	}

	current := cfg.SchemaVersion
	target := s.registry.TargetVersion()
	if current >= target {
		return MigrationResult{
			Success:    true,
			NewVersion: current,
			Message:    "database already up to date",
		}, nil
	}

	batch := s.registry.CumulativeSQL(current)

	hasPrivileged := cfg.PrivateKey != nil && *cfg.PrivateKey != ""
	if hasPrivileged {
		gw, err := s.resolve(ctx, tenantID, true)
		if err != nil {
			return MigrationResult{}, err
		}

		execErr := gw.ExecDDL(ctx, batch)
		var ddlErr *gateway.DDLError
		switch {
		case execErr == nil:
			return s.finishMigration(ctx, tenantID, current, target, fmt.Sprintf("migrated from v%d to v%d", current, target), "")

		case errors.As(execErr, &ddlErr):
			msg := ddlErr.Error()
			s.mustSetStatus(ctx, tenantID,
				[]Status{StatusPending, StatusConfigured, StatusTesting, StatusActive, StatusError},
				StatusError, &msg, nil)
			s.logger.Warn("tenant migration rejected by database",
				zap.String("tenant_id", tenantID.String()),
				zap.String("code", ddlErr.Code),
				zap.String("error", ddlErr.Message))
			return MigrationResult{Success: false, NewVersion: current, Message: msg}, nil

		default:
			// Infrastructure failure reaching the privileged path; fall through
			// to manual mode below.
			s.logger.Warn("remote migration execution unavailable, falling back to manual",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(execErr))
		}
	}

	// Manual fallback: the control plane cannot (or could not) run DDL
	// remotely. The operator applies the batch out of band; the recorded
	// version advances on the strength of that promise.
	msg := fmt.Sprintf("remote execution unavailable: apply the provided SQL manually, then test the connection (v%d -> v%d)", current, target)
	return s.finishMigration(ctx, tenantID, current, target, msg, batch)
}

func (s *Service) finishMigration(ctx context.Context, tenantID uuid.UUID, observed, target int, msg, manualSQL string) (MigrationResult, error) {
	advanced, err := s.repo.AdvanceVersion(ctx, tenantID, observed, target, s.now().UTC())
	if err != nil {
		return MigrationResult{}, err
	}
	if !advanced {
		// A concurrent run won the compare-and-swap; its result stands.
		return MigrationResult{
			Success:    true,
			NewVersion: target,
			Message:    "a concurrent migration already advanced this tenant",
		}, nil
	}

	if manualSQL == "" {
		s.mustSetStatus(ctx, tenantID,
			[]Status{StatusPending, StatusConfigured, StatusTesting, StatusActive, StatusError},
			StatusActive, &msg, nil)
	}

	s.logger.Info("tenant schema version advanced",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("from_version", observed),
		zap.Int("to_version", target),
		zap.Bool("manual", manualSQL != ""))

	return MigrationResult{Success: true, NewVersion: target, Message: msg, ManualSQL: manualSQL}, nil
}

// Suspend puts the configuration on operator hold; suspended tenants are
// excluded from probes, migrations and the fleet sweep.
func (s *Service) Suspend(ctx context.Context, tenantID uuid.UUID, reason string) error {
	if err := s.ensureTenant(ctx, tenantID); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, tenantID); err != nil {
		return err
	}

	msg := "suspended by operator"
	if reason != "" {
		msg = "suspended: " + reason
	}
	_, err := s.repo.SetStatus(ctx, tenantID,
		[]Status{StatusPending, StatusConfigured, StatusTesting, StatusActive, StatusError, StatusSuspended},
		StatusSuspended, &msg, nil)
	return err
}

// Resume lifts a suspension. The tenant returns to `configured`, not
// `active`: connectivity must be re-verified before it is trusted again.
func (s *Service) Resume(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.ensureTenant(ctx, tenantID); err != nil {
		return err
	}

	msg := "resumed, connectivity unverified"
	moved, err := s.repo.SetStatus(ctx, tenantID, []Status{StatusSuspended}, StatusConfigured, &msg, nil)
	if err != nil {
		return err
	}
	if !moved {
		return ErrConflict
	}
	return nil
}

// ListOutdated reports every active tenant whose schema version trails the
// registry target. Suspended and errored tenants are excluded from the sweep.
// Results may be served from the short-staleness cache.
func (s *Service) ListOutdated(ctx context.Context) ([]FleetEntry, error) {
	if s.cache != nil {
		if entries, ok := s.cache.Get(ctx); ok {
			return entries, nil
		}
	}

	tenants, err := s.directory.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	refs := make(map[uuid.UUID]TenantRef, len(tenants))
	for _, t := range tenants {
		refs[t.ID] = t
	}

	configs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	target := s.registry.TargetVersion()
	entries := make([]FleetEntry, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Status != StatusActive {
			continue
		}
		ref, ok := refs[cfg.TenantID]
		if !ok {
			continue // tenant registry row suspended or gone
		}
		entries = append(entries, FleetEntry{
			TenantID:       cfg.TenantID,
			TenantName:     ref.Name,
			TenantSlug:     ref.Slug,
			CurrentVersion: cfg.SchemaVersion,
			TargetVersion:  target,
			NeedsUpdate:    cfg.SchemaVersion < target,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TenantSlug < entries[j].TenantSlug })

	if s.cache != nil {
		s.cache.Set(ctx, entries)
	}
	return entries, nil
}

// Outdated filters the sweep down to tenants that need an update.
func (s *Service) Outdated(ctx context.Context) ([]FleetEntry, error) {
	entries, err := s.ListOutdated(ctx)
	if err != nil {
		return nil, err
	}
	out := entries[:0:0]
	for _, e := range entries {
		if e.NeedsUpdate {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Service) ensureTenant(ctx context.Context, tenantID uuid.UUID) error {
	ok, err := s.directory.Exists(ctx, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownTenant
	}
	return nil
}

// repairStaleTesting degrades a `testing` row whose probe evidently died.
// The conditional update keeps this safe against a probe completing at the
// same moment.
func (s *Service) repairStaleTesting(ctx context.Context, cfg Config) Config {
	if cfg.Status != StatusTesting {
		return cfg
	}
	if s.now().Sub(cfg.UpdatedAt) <= s.testingGrace {
		return cfg
	}

	msg := "connectivity probe timed out"
	moved, err := s.repo.SetStatus(ctx, cfg.TenantID, []Status{StatusTesting}, StatusError, &msg, nil)
	if err != nil || !moved {
		return cfg
	}
	cfg.Status = StatusError
	cfg.StatusMessage = &msg
	return cfg
}

// mustSetStatus performs a conditional status move and logs instead of
// failing when it loses: the operation that interleaved owns the row now.
func (s *Service) mustSetStatus(ctx context.Context, tenantID uuid.UUID, from []Status, to Status, message *string, testedAt *time.Time) {
	moved, err := s.repo.SetStatus(ctx, tenantID, from, to, message, testedAt)
	if err != nil {
		s.logger.Error("status update failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("to", string(to)),
			zap.Error(err))
		return
	}
	if !moved {
		s.logger.Warn("status update lost to concurrent writer",
			zap.String("tenant_id", tenantID.String()),
			zap.String("to", string(to)))
	}
}
