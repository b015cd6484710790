package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/service"
)

// PostgresRepository stores tenant database configurations in the platform
// database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ service.Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("pgx pool is required")
	}
	return &PostgresRepository{pool: pool}
}

const configColumns = `tenant_id, connection_url, public_key, private_key,
	status, status_message, last_tested_at,
	schema_version, last_migration_at,
	enable_realtime, enable_storage, max_connections,
	created_at, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, tenantID uuid.UUID) (service.Config, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM tenant_database_config WHERE tenant_id = $1`,
		tenantID)

	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.Config{}, service.ErrNotConfigured
		}
		return service.Config{}, fmt.Errorf("loading tenant database config: %w", err)
	}
	return cfg, nil
}

// Upsert inserts or replaces the credential fields. The migration bookkeeping
// columns (schema_version, last_migration_at) are never touched on conflict:
// re-saving credentials must not reset migration history.
func (r *PostgresRepository) Upsert(ctx context.Context, cfg service.Config) (service.Config, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tenant_database_config (
			tenant_id, connection_url, public_key, private_key,
			status, status_message,
			enable_realtime, enable_storage, max_connections
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id) DO UPDATE SET
			connection_url  = EXCLUDED.connection_url,
			public_key      = EXCLUDED.public_key,
			private_key     = EXCLUDED.private_key,
			status          = EXCLUDED.status,
			status_message  = EXCLUDED.status_message,
			enable_realtime = EXCLUDED.enable_realtime,
			enable_storage  = EXCLUDED.enable_storage,
			max_connections = EXCLUDED.max_connections,
			updated_at      = now()
		RETURNING `+configColumns,
		cfg.TenantID, cfg.ConnectionURL, cfg.PublicKey, cfg.PrivateKey,
		cfg.Status, cfg.StatusMessage,
		cfg.EnableRealtime, cfg.EnableStorage, cfg.MaxConnections)

	saved, err := scanConfig(row)
	if err != nil {
		return service.Config{}, fmt.Errorf("saving tenant database config: %w", err)
	}
	return saved, nil
}

// SetStatus moves the row to `to` only when the current status is one of
// `from`. The guard runs inside the UPDATE itself, so two racing writers
// cannot both observe the same precondition.
func (r *PostgresRepository) SetStatus(ctx context.Context, tenantID uuid.UUID, from []service.Status, to service.Status, message *string, testedAt *time.Time) (bool, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE tenant_database_config
		SET status = $1,
			status_message = $2,
			last_tested_at = COALESCE($3, last_tested_at),
			updated_at = now()
		WHERE tenant_id = $4 AND status = ANY($5)`,
		to, message, testedAt, tenantID, allowed)
	if err != nil {
		return false, fmt.Errorf("updating tenant database status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AdvanceVersion bumps schema_version from `observed` to `target` as a
// compare-and-swap; a concurrent migration that already advanced the row
// makes this a no-op.
func (r *PostgresRepository) AdvanceVersion(ctx context.Context, tenantID uuid.UUID, observed, target int, migratedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenant_database_config
		SET schema_version = $1,
			last_migration_at = $2,
			updated_at = now()
		WHERE tenant_id = $3 AND schema_version = $4`,
		target, migratedAt, tenantID, observed)
	if err != nil {
		return false, fmt.Errorf("advancing tenant schema version: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]service.Config, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+configColumns+` FROM tenant_database_config ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("listing tenant database configs: %w", err)
	}
	defer rows.Close()

	var configs []service.Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("listing tenant database configs: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tenant database configs: %w", err)
	}
	return configs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (service.Config, error) {
	var cfg service.Config
	err := row.Scan(
		&cfg.TenantID, &cfg.ConnectionURL, &cfg.PublicKey, &cfg.PrivateKey,
		&cfg.Status, &cfg.StatusMessage, &cfg.LastTestedAt,
		&cfg.SchemaVersion, &cfg.LastMigrationAt,
		&cfg.EnableRealtime, &cfg.EnableStorage, &cfg.MaxConnections,
		&cfg.CreatedAt, &cfg.UpdatedAt)
	return cfg, err
}
