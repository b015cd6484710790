package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/service"
	"github.com/orbiterhq/orbiter-saas/platform/go/persistence"
)

func TestPostgresRepositoryIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping tenantdb repository integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orbiter"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() {
		persistence.ClosePool(pool)
	})

	require.NoError(t, persistence.BootstrapPlatformSchema(ctx, pool))

	// The config table references tenants, so a registry row comes first.
	tenantID := uuid.New()
	_, err = pool.Exec(ctx, `
		INSERT INTO tenants (id, slug, name, email, plan, status)
		VALUES ($1, 'acme', 'Acme Corp', 'ops@acme.example.com', 'starter', 'active')`,
		tenantID)
	require.NoError(t, err)

	repo := NewPostgresRepository(pool)

	_, err = repo.Get(ctx, tenantID)
	require.ErrorIs(t, err, service.ErrNotConfigured)

	private := "service-role-key"
	msg := "credentials saved"
	saved, err := repo.Upsert(ctx, service.Config{
		TenantID:       tenantID,
		ConnectionURL:  "https://acme-db.example.com",
		PublicKey:      "anon-key",
		PrivateKey:     &private,
		Status:         service.StatusConfigured,
		StatusMessage:  &msg,
		MaxConnections: 20,
	})
	require.NoError(t, err)
	require.Equal(t, service.StatusConfigured, saved.Status)
	require.Equal(t, 0, saved.SchemaVersion)

	// Conditional move: only fires from the listed statuses.
	moved, err := repo.SetStatus(ctx, tenantID,
		[]service.Status{service.StatusPending}, service.StatusTesting, nil, nil)
	require.NoError(t, err)
	require.False(t, moved, "configured is not in the from-list")

	testedAt := time.Now().UTC().Truncate(time.Millisecond)
	verified := "connection verified"
	moved, err = repo.SetStatus(ctx, tenantID,
		[]service.Status{service.StatusConfigured, service.StatusError}, service.StatusActive, &verified, &testedAt)
	require.NoError(t, err)
	require.True(t, moved)

	cfg, err := repo.Get(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, service.StatusActive, cfg.Status)
	require.NotNil(t, cfg.LastTestedAt)
	require.WithinDuration(t, testedAt, *cfg.LastTestedAt, time.Second)

	// Compare-and-swap on schema_version.
	migratedAt := time.Now().UTC()
	advanced, err := repo.AdvanceVersion(ctx, tenantID, 3, 4, migratedAt)
	require.NoError(t, err)
	require.False(t, advanced, "stale observed version must lose")

	advanced, err = repo.AdvanceVersion(ctx, tenantID, 0, 4, migratedAt)
	require.NoError(t, err)
	require.True(t, advanced)

	// Re-saving credentials keeps the migration bookkeeping.
	rotated := "rotated-service-role-key"
	saved, err = repo.Upsert(ctx, service.Config{
		TenantID:       tenantID,
		ConnectionURL:  "https://acme-db.example.com",
		PublicKey:      "rotated-anon-key",
		PrivateKey:     &rotated,
		Status:         service.StatusConfigured,
		StatusMessage:  &msg,
		MaxConnections: 50,
	})
	require.NoError(t, err)
	require.Equal(t, 4, saved.SchemaVersion)
	require.NotNil(t, saved.LastMigrationAt)
	require.Equal(t, 50, saved.MaxConnections)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, tenantID, all[0].TenantID)
}
