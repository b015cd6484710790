package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/service"
)

// MemoryRepository is an in-memory Repository for tests and local tooling.
// It applies the same conditional-update semantics as the Postgres
// implementation.
type MemoryRepository struct {
	mu      sync.RWMutex
	configs map[uuid.UUID]service.Config
	now     func() time.Time
}

var _ service.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		configs: make(map[uuid.UUID]service.Config),
		now:     time.Now,
	}
}

// SetClock overrides the repository clock; tests use it to age rows.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRepository) Get(_ context.Context, tenantID uuid.UUID) (service.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[tenantID]
	if !ok {
		return service.Config{}, service.ErrNotConfigured
	}
	return cfg, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, cfg service.Config) (service.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if existing, ok := r.configs[cfg.TenantID]; ok {
		cfg.SchemaVersion = existing.SchemaVersion
		cfg.LastMigrationAt = existing.LastMigrationAt
		cfg.LastTestedAt = existing.LastTestedAt
		cfg.CreatedAt = existing.CreatedAt
	} else {
		cfg.SchemaVersion = 0
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	r.configs[cfg.TenantID] = cfg
	return cfg, nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, tenantID uuid.UUID, from []service.Status, to service.Status, message *string, testedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[tenantID]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, st := range from {
		if cfg.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	cfg.Status = to
	cfg.StatusMessage = message
	if testedAt != nil {
		cfg.LastTestedAt = testedAt
	}
	cfg.UpdatedAt = r.now().UTC()
	r.configs[tenantID] = cfg
	return true, nil
}

func (r *MemoryRepository) AdvanceVersion(_ context.Context, tenantID uuid.UUID, observed, target int, migratedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[tenantID]
	if !ok || cfg.SchemaVersion != observed {
		return false, nil
	}

	cfg.SchemaVersion = target
	cfg.LastMigrationAt = &migratedAt
	cfg.UpdatedAt = r.now().UTC()
	r.configs[tenantID] = cfg
	return true, nil
}

func (r *MemoryRepository) ListAll(_ context.Context) ([]service.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := make([]service.Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		configs = append(configs, cfg)
	}
	return configs, nil
}
