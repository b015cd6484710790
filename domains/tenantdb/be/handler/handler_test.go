package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/gateway"
	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/handler"
	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/repo"
	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/service"
)

type stubDirectory struct {
	tenants map[uuid.UUID]service.TenantRef
}

func (d *stubDirectory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := d.tenants[id]
	return ok, nil
}

func (d *stubDirectory) ListActive(_ context.Context) ([]service.TenantRef, error) {
	refs := make([]service.TenantRef, 0, len(d.tenants))
	for _, ref := range d.tenants {
		refs = append(refs, ref)
	}
	return refs, nil
}

type okGateway struct{}

func (okGateway) Probe(context.Context, string) error   { return nil }
func (okGateway) ExecDDL(context.Context, string) error { return nil }

func newServer(t *testing.T) (*httptest.Server, uuid.UUID) {
	t.Helper()

	tenantID := uuid.New()
	dir := &stubDirectory{tenants: map[uuid.UUID]service.TenantRef{
		tenantID: {ID: tenantID, Slug: "acme", Name: "Acme Corp"},
	}}

	svc := service.New(service.Deps{
		Repo:      repo.NewMemoryRepository(),
		Directory: dir,
		Registry:  service.DefaultRegistry(),
		Factory: func(rawURL, apiKey string) (service.Gateway, error) {
			if _, err := gateway.New(rawURL, apiKey); err != nil {
				return nil, err
			}
			return okGateway{}, nil
		},
	})

	h := handler.New(svc)
	r := chi.NewRouter()
	r.Route("/tenants/{tenantID}", h.MountTenantRoutes)
	r.Route("/admin", h.MountAdminRoutes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, tenantID
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck

	if resp.StatusCode == http.StatusNoContent {
		return resp, nil
	}
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func saveBody() map[string]any {
	return map[string]any{
		"connection_url": "https://acme-db.example.com",
		"public_key":     "anon-key",
		"private_key":    "service-role-key",
	}
}

func TestGetConfigNotConfiguredIsVirtual(t *testing.T) {
	srv, tenantID := newServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/tenants/"+tenantID.String()+"/database", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "not_configured", body["status"])
	require.Equal(t, float64(4), body["target_version"])
}

func TestGetConfigUnknownTenant(t *testing.T) {
	srv, _ := newServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/tenants/"+uuid.NewString()+"/database", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "tenant not found", body["title"])
}

func TestSaveConfigRedactsPrivateKey(t *testing.T) {
	srv, tenantID := newServer(t)
	base := srv.URL + "/tenants/" + tenantID.String() + "/database"

	resp, body := doJSON(t, http.MethodPut, base, saveBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "configured", body["status"])
	require.Equal(t, true, body["private_key_set"])
	_, leaked := body["private_key"]
	require.False(t, leaked, "the privileged key must never appear in responses")

	resp, body = doJSON(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://acme-db.example.com", body["connection_url"])
	_, leaked = body["private_key"]
	require.False(t, leaked)
}

func TestSaveConfigRejectsMalformedURL(t *testing.T) {
	srv, tenantID := newServer(t)
	base := srv.URL + "/tenants/" + tenantID.String() + "/database"

	body := saveBody()
	body["connection_url"] = "not a url"
	resp, problem := doJSON(t, http.MethodPut, base, body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid database configuration", problem["title"])
}

func TestTestConnectionEndpoint(t *testing.T) {
	srv, tenantID := newServer(t)
	base := srv.URL + "/tenants/" + tenantID.String() + "/database"

	// No configuration yet: the probe has nothing to work with.
	resp, _ := doJSON(t, http.MethodPost, base+"/test", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, base, saveBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, base+"/test", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
}

func TestMigrateEndpoint(t *testing.T) {
	srv, tenantID := newServer(t)
	base := srv.URL + "/tenants/" + tenantID.String() + "/database"

	resp, _ := doJSON(t, http.MethodPut, base, saveBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, base+"/migrate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
	require.Equal(t, float64(4), body["new_version"])
	_, manual := body["manual_sql"]
	require.False(t, manual, "remote execution succeeded, no manual batch expected")
}

func TestMigrateManualFallbackEndpoint(t *testing.T) {
	srv, tenantID := newServer(t)
	base := srv.URL + "/tenants/" + tenantID.String() + "/database"

	body := saveBody()
	delete(body, "private_key")
	resp, _ := doJSON(t, http.MethodPut, base, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, result := doJSON(t, http.MethodPost, base+"/migrate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, result["success"])
	require.NotEmpty(t, result["manual_sql"])
}

func TestSuspendResumeEndpoints(t *testing.T) {
	srv, tenantID := newServer(t)
	base := srv.URL + "/tenants/" + tenantID.String() + "/database"

	resp, _ := doJSON(t, http.MethodPut, base, saveBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, base+"/suspend", map[string]any{"reason": "billing hold"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, problem := doJSON(t, http.MethodPost, base+"/migrate", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "tenant database suspended", problem["title"])

	resp, _ = doJSON(t, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "configured", body["status"])
}

func TestFleetEndpoints(t *testing.T) {
	srv, tenantID := newServer(t)
	base := srv.URL + "/tenants/" + tenantID.String() + "/database"

	resp, _ := doJSON(t, http.MethodPut, base, saveBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, base+"/test", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/admin/database/fleet", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(4), body["target_version"])
	tenants := body["tenants"].([]any)
	require.Len(t, tenants, 1)
	entry := tenants[0].(map[string]any)
	require.Equal(t, "acme", entry["tenant_slug"])
	require.Equal(t, true, entry["needs_update"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/admin/database/fleet/outdated", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["tenants"].([]any), 1)
}
