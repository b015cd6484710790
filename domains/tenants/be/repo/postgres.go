package repo

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbiterhq/orbiter-saas/domains/tenants/be/service"
)

const tenantColumns = "id, slug, name, email, phone, plan, status, created_at, updated_at"

// PostgresRepository implements the tenant repository on the control-plane database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository backed by the shared pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("tenants repo requires pool")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	where := ""
	args := []any{}
	if opts.Status != nil {
		where = "WHERE status = $1"
		args = append(args, string(*opts.Status))
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tenants "+where, args...).Scan(&total); err != nil {
		return service.ListResult{}, err
	}

	query := "SELECT " + tenantColumns + " FROM tenants " + where +
		" ORDER BY created_at DESC LIMIT " + placeholder(len(args)+1) + " OFFSET " + placeholder(len(args)+2)
	args = append(args, size, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return service.ListResult{}, err
	}
	defer rows.Close()

	tenants := make([]service.Tenant, 0, size)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return service.ListResult{}, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return service.ListResult{}, err
	}

	totalPages := (total + size - 1) / size
	return service.ListResult{Tenants: tenants, Page: page, PageSize: size, TotalItems: total, TotalPages: totalPages}, nil
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO tenants (id, slug, name, email, phone, plan, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING `+tenantColumns,
		t.ID, t.Slug, t.Name, t.Email, t.Phone, t.Plan, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	out, err := scanTenant(row)
	if err != nil {
		return service.Tenant{}, mapConflict(err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id)
	out, err := scanTenant(row)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE tenants
        SET name = $2, email = $3, phone = $4, plan = $5, status = $6, updated_at = $7
        WHERE id = $1
        RETURNING `+tenantColumns,
		t.ID, t.Name, t.Email, t.Phone, t.Plan, string(t.Status), t.UpdatedAt,
	)
	out, err := scanTenant(row)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return out, nil
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE slug = $1", slug)
	out, err := scanTenant(row)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (service.Tenant, error) {
	var (
		t      service.Tenant
		status string
	)
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Email, &t.Phone, &t.Plan, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return service.Tenant{}, err
	}
	t.Status = service.TenantStatusFromString(status)
	return t, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return service.ErrNotFound
	}
	return err
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "slug") {
			return service.ErrConflictSlug
		}
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
