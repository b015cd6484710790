// Package handler exposes the tenant registry over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbiterhq/orbiter-saas/domains/tenants/be/service"
	"github.com/orbiterhq/orbiter-saas/platform/go/httpx"
	"github.com/orbiterhq/orbiter-saas/platform/go/logging"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	return &Handler{svc: svc}
}

// MountRoutes attaches the registry routes to r. Extra mount functions are
// applied inside the {tenantID} subtree so other domains can hang their
// per-tenant routes off the same prefix.
func (h *Handler) MountRoutes(r chi.Router, item ...func(chi.Router)) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{tenantID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		for _, mount := range item {
			mount(r)
		}
	})
}

type tenantResponse struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type createRequest struct {
	Slug  string  `json:"slug"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
	Plan  string  `json:"plan,omitempty"`
}

type updateRequest struct {
	Name   *string `json:"name,omitempty"`
	Email  *string `json:"email,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Plan   *string `json:"plan,omitempty"`
	Status *string `json:"status,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{Page: 1, PageSize: 50}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			opts.PageSize = n
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := service.TenantStatusFromString(v)
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, toTenantResponse(t))
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{
		"tenants":     items,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total_items": result.TotalItems,
		"total_pages": result.TotalPages,
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	t, err := h.svc.Create(r.Context(), service.CreateInput{
		Slug:  req.Slug,
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Plan:  req.Plan,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.FromRequest(r).Info("tenant created",
		zap.String("tenant_id", t.ID.String()),
		zap.String("slug", t.Slug))
	httpx.JSON(w, r, http.StatusCreated, toTenantResponse(t))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid tenant id", "tenant id must be a UUID")
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, toTenantResponse(t))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid tenant id", "tenant id must be a UUID")
		return
	}

	var req updateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input := service.UpdateInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Plan:  req.Plan,
	}
	if req.Status != nil {
		status := service.TenantStatusFromString(*req.Status)
		input.Status = &status
	}

	t, err := h.svc.Update(r.Context(), id, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, toTenantResponse(t))
}

func toTenantResponse(t service.Tenant) tenantResponse {
	return tenantResponse{
		ID:        t.ID,
		Slug:      t.Slug,
		Name:      t.Name,
		Email:     t.Email,
		Phone:     t.Phone,
		Plan:      t.Plan,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpx.Error(w, r, http.StatusNotFound, "tenant not found", "")
	case errors.Is(err, service.ErrConflictSlug):
		httpx.Error(w, r, http.StatusConflict, "slug already in use", "")
	case errors.Is(err, service.ErrValidation):
		httpx.Error(w, r, http.StatusBadRequest, "invalid tenant payload", err.Error())
	default:
		logging.FromRequest(r).Error("tenant request failed", zap.Error(err))
		httpx.Error(w, r, http.StatusInternalServerError, "internal error", "")
	}
}
