// Package handler exposes tenant database routing and migration operations
// over HTTP.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/service"
	"github.com/orbiterhq/orbiter-saas/platform/go/httpx"
	"github.com/orbiterhq/orbiter-saas/platform/go/logging"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	if svc == nil {
		panic("tenantdb service is required")
	}
	return &Handler{svc: svc}
}

// MountTenantRoutes attaches the per-tenant database routes under a router
// that already carries the {tenantID} URL parameter.
func (h *Handler) MountTenantRoutes(r chi.Router) {
	r.Route("/database", func(r chi.Router) {
		r.Get("/", h.getConfig)
		r.Put("/", h.saveConfig)
		r.Post("/test", h.testConnection)
		r.Post("/migrate", h.runMigrations)
		r.Post("/suspend", h.suspend)
		r.Post("/resume", h.resume)
	})
}

// MountAdminRoutes attaches the fleet-wide routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/database/fleet", h.fleetStatus)
	r.Get("/database/fleet/outdated", h.fleetOutdated)
}

type configResponse struct {
	TenantID        uuid.UUID  `json:"tenant_id"`
	ConnectionURL   string     `json:"connection_url"`
	PublicKey       string     `json:"public_key"`
	PrivateKeySet   bool       `json:"private_key_set"`
	Status          string     `json:"status"`
	StatusMessage   *string    `json:"status_message,omitempty"`
	LastTestedAt    *time.Time `json:"last_tested_at,omitempty"`
	SchemaVersion   int        `json:"schema_version"`
	TargetVersion   int        `json:"target_version"`
	LastMigrationAt *time.Time `json:"last_migration_at,omitempty"`
	EnableRealtime  bool       `json:"enable_realtime"`
	EnableStorage   bool       `json:"enable_storage"`
	MaxConnections  int        `json:"max_connections"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

type saveConfigRequest struct {
	ConnectionURL  string  `json:"connection_url"`
	PublicKey      string  `json:"public_key"`
	PrivateKey     *string `json:"private_key,omitempty"`
	EnableRealtime bool    `json:"enable_realtime"`
	EnableStorage  bool    `json:"enable_storage"`
	MaxConnections int     `json:"max_connections"`
}

type probeResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	TestedAt time.Time `json:"tested_at"`
}

type migrationResponse struct {
	Success    bool   `json:"success"`
	NewVersion int    `json:"new_version"`
	Message    string `json:"message"`
	ManualSQL  string `json:"manual_sql,omitempty"`
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	cfg, err := h.svc.GetConfig(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, service.ErrNotConfigured) {
			// Absence is an answer, not an error: the setup wizard keys off it.
			httpx.JSON(w, r, http.StatusOK, configResponse{
				TenantID:      tenantID,
				Status:        string(service.StatusNotConfigured),
				TargetVersion: h.svc.TargetVersion(),
			})
			return
		}
		h.writeError(w, r, err)
		return
	}

	httpx.JSON(w, r, http.StatusOK, h.toConfigResponse(cfg))
}

func (h *Handler) saveConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	var req saveConfigRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	cfg, err := h.svc.SaveConfig(r.Context(), tenantID, service.SaveConfigInput{
		ConnectionURL:  req.ConnectionURL,
		PublicKey:      req.PublicKey,
		PrivateKey:     req.PrivateKey,
		EnableRealtime: req.EnableRealtime,
		EnableStorage:  req.EnableStorage,
		MaxConnections: req.MaxConnections,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.FromRequest(r).Info("tenant database configuration saved",
		zap.String("tenant_id", tenantID.String()))
	httpx.JSON(w, r, http.StatusOK, h.toConfigResponse(cfg))
}

func (h *Handler) testConnection(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	res, err := h.svc.TestConnection(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, probeResponse(res))
}

func (h *Handler) runMigrations(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	res, err := h.svc.RunMigrations(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, migrationResponse(res))
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, r, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	if err := h.svc.Suspend(r.Context(), tenantID, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusNoContent, nil)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Resume(r.Context(), tenantID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusNoContent, nil)
}

func (h *Handler) fleetStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListOutdated(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{
		"target_version": h.svc.TargetVersion(),
		"tenants":        entries,
	})
}

func (h *Handler) fleetOutdated(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Outdated(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{
		"target_version": h.svc.TargetVersion(),
		"tenants":        entries,
	})
}

func (h *Handler) toConfigResponse(cfg service.Config) configResponse {
	updatedAt := cfg.UpdatedAt
	return configResponse{
		TenantID:        cfg.TenantID,
		ConnectionURL:   cfg.ConnectionURL,
		PublicKey:       cfg.PublicKey,
		PrivateKeySet:   cfg.PrivateKey != nil && *cfg.PrivateKey != "",
		Status:          string(cfg.Status),
		StatusMessage:   cfg.StatusMessage,
		LastTestedAt:    cfg.LastTestedAt,
		SchemaVersion:   cfg.SchemaVersion,
		TargetVersion:   h.svc.TargetVersion(),
		LastMigrationAt: cfg.LastMigrationAt,
		EnableRealtime:  cfg.EnableRealtime,
		EnableStorage:   cfg.EnableStorage,
		MaxConnections:  cfg.MaxConnections,
		UpdatedAt:       &updatedAt,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, service.ErrUnknownTenant):
		httpx.Error(w, r, http.StatusNotFound, "tenant not found", "")
	case errors.Is(err, service.ErrNotConfigured):
		httpx.Error(w, r, http.StatusConflict, "tenant database not configured", "save credentials before running this operation")
	case errors.Is(err, service.ErrInvalidConfiguration), errors.As(err, &validationErrs):
		httpx.Error(w, r, http.StatusBadRequest, "invalid database configuration", err.Error())
	case errors.Is(err, service.ErrSuspended):
		httpx.Error(w, r, http.StatusConflict, "tenant database suspended", "resume the configuration first")
	case errors.Is(err, service.ErrConflict):
		httpx.Error(w, r, http.StatusConflict, "operation already in progress", "another operator action is running for this tenant")
	default:
		logging.FromRequest(r).Error("tenantdb request failed", zap.Error(err))
		httpx.Error(w, r, http.StatusInternalServerError, "internal error", "")
	}
}

func tenantIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "tenantID")
	id, err := uuid.Parse(raw)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid tenant id", "tenant id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
