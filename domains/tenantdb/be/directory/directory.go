// Package directory adapts the tenant registry to the lookups the database
// routing service needs.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	tdbservice "github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/service"
	"github.com/orbiterhq/orbiter-saas/domains/tenants/be/service"
)

type Directory struct {
	tenants *service.Service
}

var _ tdbservice.Directory = (*Directory)(nil)

func New(tenants *service.Service) *Directory {
	if tenants == nil {
		panic("tenants service is required")
	}
	return &Directory{tenants: tenants}
}

func (d *Directory) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := d.tenants.Get(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListActive returns every tenant the fleet sweep should consider. Suspended
// tenants are excluded at the registry level.
func (d *Directory) ListActive(ctx context.Context) ([]tdbservice.TenantRef, error) {
	const pageSize = 200
	active := service.StatusActive

	var refs []tdbservice.TenantRef
	for page := 1; ; page++ {
		result, err := d.tenants.List(ctx, service.ListOptions{
			Page:     page,
			PageSize: pageSize,
			Status:   &active,
		})
		if err != nil {
			return nil, err
		}
		for _, t := range result.Tenants {
			refs = append(refs, tdbservice.TenantRef{ID: t.ID, Slug: t.Slug, Name: t.Name})
		}
		if len(result.Tenants) < pageSize {
			return refs, nil
		}
	}
}
