package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesURL(t *testing.T) {
	t.Parallel()

	_, err := New("https://tenant.example.com", "anon-key")
	require.NoError(t, err)

	for _, raw := range []string{"", "not a url", "ftp://tenant.example.com", "https://"} {
		_, err := New(raw, "anon-key")
		require.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}

	_, err = New("https://tenant.example.com", " ")
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestProbeOutcomes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"reachable", http.StatusOK, `[]`, nil},
		{"schema absent 404", http.StatusNotFound, `{"message":"relation not found"}`, ErrSchemaAbsent},
		{"schema absent code", http.StatusBadRequest, `{"code":"42P01","message":"relation \"crm_pipelines\" does not exist"}`, ErrSchemaAbsent},
		{"auth rejected", http.StatusUnauthorized, `{"message":"invalid api key"}`, ErrConnectivity},
		{"server error", http.StatusInternalServerError, `boom`, ErrConnectivity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/rest/v1/crm_pipelines", r.URL.Path)
				require.Equal(t, "anon-key", r.Header.Get("apikey"))
				require.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body)) //nolint:errcheck
			}))
			defer srv.Close()

			client, err := New(srv.URL, "anon-key")
			require.NoError(t, err)

			err = client.Probe(context.Background(), "crm_pipelines")
			if tc.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestProbeUnreachableHost(t *testing.T) {
	t.Parallel()

	// Closed server: the transport error should map to ErrConnectivity.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client, err := New(srv.URL, "anon-key")
	require.NoError(t, err)

	err = client.Probe(context.Background(), "crm_pipelines")
	require.ErrorIs(t, err, ErrConnectivity)
}

func TestExecDDLSuccess(t *testing.T) {
	t.Parallel()

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/rpc/exec_ddl", r.URL.Path)
		require.Equal(t, "service-key", r.Header.Get("apikey"))
		buf, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(buf)
		w.Write([]byte(`{"success":true,"message":"DDL executed"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client, err := New(srv.URL, "service-key")
	require.NoError(t, err)

	require.NoError(t, client.ExecDDL(context.Background(), "CREATE TABLE IF NOT EXISTS t (id INT)"))
	require.Contains(t, gotBody, "CREATE TABLE IF NOT EXISTS t")
}

func TestExecDDLFunctionMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := New(srv.URL, "service-key")
	require.NoError(t, err)

	require.ErrorIs(t, client.ExecDDL(context.Background(), "SELECT 1"), ErrExecFunctionMissing)
}

func TestExecDDLRejectedStatement(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"permission denied for schema public","code":"42501"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client, err := New(srv.URL, "service-key")
	require.NoError(t, err)

	err = client.ExecDDL(context.Background(), "CREATE TABLE t (id INT)")
	var ddlErr *DDLError
	require.True(t, errors.As(err, &ddlErr))
	require.Equal(t, "42501", ddlErr.Code)
	require.Contains(t, ddlErr.Message, "permission denied")
}
