package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("tenant not found")
	ErrConflictSlug = errors.New("tenant slug already exists")
	ErrValidation   = errors.New("invalid tenant input")
)

// TenantStatus enumerates registry states for a tenant.
type TenantStatus string

const (
	StatusActive    TenantStatus = "active"
	StatusSuspended TenantStatus = "suspended"
)

// TenantStatusFromString converts a stored string to TenantStatus; defaults to active on unknown.
func TenantStatusFromString(s string) TenantStatus {
	switch TenantStatus(s) {
	case StatusActive, StatusSuspended:
		return TenantStatus(s)
	default:
		return StatusActive
	}
}

// Tenant represents the domain model for a tenant registry entry.
type Tenant struct {
	ID        uuid.UUID
	Slug      string
	Name      string
	Email     string
	Phone     *string
	Plan      string
	Status    TenantStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput represents the request to create a tenant.
type CreateInput struct {
	Slug  string  `validate:"required,min=2,max=100,lowercase"`
	Name  string  `validate:"required,min=2,max=255"`
	Email string  `validate:"required,email"`
	Phone *string `validate:"omitempty,max=50"`
	Plan  string  `validate:"omitempty,oneof=starter growth enterprise"`
}

// UpdateInput represents mutable fields for a tenant.
type UpdateInput struct {
	Name   *string       `validate:"omitempty,min=2,max=255"`
	Email  *string       `validate:"omitempty,email"`
	Phone  *string       `validate:"omitempty,max=50"`
	Plan   *string       `validate:"omitempty,oneof=starter growth enterprise"`
	Status *TenantStatus `validate:"omitempty,oneof=active suspended"`
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *TenantStatus
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts persistence.
type Repository interface {
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	Update(ctx context.Context, t Tenant) (Tenant, error)
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
}

// Service provides tenant registry operations.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	return &Service{repo: repo, validate: validator.New()}
}

// List tenants with optional status filter.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Create a new tenant.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	input.Slug = NormalizeSlug(input.Slug)
	if input.Plan == "" {
		input.Plan = "starter"
	}
	if err := s.validate.Struct(input); err != nil {
		return Tenant{}, errors.Join(ErrValidation, err)
	}

	now := time.Now().UTC()
	t := Tenant{
		ID:        uuid.New(),
		Slug:      input.Slug,
		Name:      input.Name,
		Email:     input.Email,
		Phone:     input.Phone,
		Plan:      input.Plan,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return s.repo.Create(ctx, t)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// Exists reports whether the tenant record is present.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Update modifies mutable fields of a tenant.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Tenant, error) {
	if err := s.validate.Struct(input); err != nil {
		return Tenant{}, errors.Join(ErrValidation, err)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}

	next := current
	if input.Name != nil {
		next.Name = *input.Name
	}
	if input.Email != nil {
		next.Email = *input.Email
	}
	if input.Phone != nil {
		next.Phone = input.Phone
	}
	if input.Plan != nil {
		next.Plan = *input.Plan
	}
	if input.Status != nil {
		next.Status = *input.Status
	}
	next.UpdatedAt = time.Now().UTC()

	return s.repo.Update(ctx, next)
}

// NormalizeSlug lowercases and collapses whitespace into dashes.
func NormalizeSlug(slug string) string {
	slug = strings.ToLower(strings.TrimSpace(slug))
	return strings.Join(strings.Fields(slug), "-")
}
