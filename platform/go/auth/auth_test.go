package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	raw, err := MintToken(testSecret, "orbiter", Operator{ID: "op-1", Email: "ops@example.com", Role: RoleAdmin}, time.Minute)
	require.NoError(t, err)

	v, err := NewVerifier(testSecret, "orbiter")
	require.NoError(t, err)

	op, err := v.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "op-1", op.ID)
	require.Equal(t, "ops@example.com", op.Email)
	require.Equal(t, RoleAdmin, op.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	raw, err := MintToken("other-secret", "orbiter", Operator{ID: "op-1"}, time.Minute)
	require.NoError(t, err)

	v, err := NewVerifier(testSecret, "orbiter")
	require.NoError(t, err)

	_, err = v.Verify(raw)
	require.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	raw, err := MintToken(testSecret, "orbiter", Operator{ID: "op-1"}, -time.Minute)
	require.NoError(t, err)

	v, err := NewVerifier(testSecret, "orbiter")
	require.NoError(t, err)

	_, err = v.Verify(raw)
	require.Error(t, err)
}

func TestMiddlewareAndRequireRole(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier(testSecret, "")
	require.NoError(t, err)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := OperatorFromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(op.ID)) //nolint:errcheck
	})
	handler := v.Middleware()(RequireRole(RoleAdmin)(final))

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Operator role hitting an admin route.
	raw, err := MintToken(testSecret, "", Operator{ID: "op-2", Role: RoleOperator}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Admin passes.
	raw, err = MintToken(testSecret, "", Operator{ID: "op-3", Role: RoleAdmin}, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "op-3", rec.Body.String())
}
