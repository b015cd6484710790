// Package gateway talks to a tenant's external database instance through its
// hosted REST surface. The control plane never opens a direct SQL connection
// to tenant databases; reads go through the data API and DDL goes through the
// exec_ddl function installed by the bootstrap SQL.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// Sentinel results callers branch on.
var (
	// ErrInvalidURL means the connection URL cannot produce a client.
	ErrInvalidURL = errors.New("invalid connection url")
	// ErrConnectivity covers transport and auth failures reaching the instance.
	ErrConnectivity = errors.New("tenant database unreachable")
	// ErrSchemaAbsent means the instance answered but the probed table does not exist.
	ErrSchemaAbsent = errors.New("schema absent")
	// ErrExecFunctionMissing means the exec_ddl function is not installed on the instance.
	ErrExecFunctionMissing = errors.New("exec_ddl function not installed")
)

// DDLError carries the database's own error text for a rejected statement.
// These are operator-actionable (permissions, conflicting objects) and are
// never retried.
type DDLError struct {
	Message string
	Code    string
}

func (e *DDLError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ddl rejected (%s): %s", e.Code, e.Message)
	}
	return "ddl rejected: " + e.Message
}

const (
	defaultTimeout = 30 * time.Second
	execTimeout    = 60 * time.Second
	retryAttempts  = 3
	retryDelay     = 200 * time.Millisecond

	// undefinedTable is the Postgres error code surfaced when the probed
	// table has not been created yet.
	undefinedTable = "42P01"
)

// Client is bound to one tenant instance and one API key. Resolving a
// privileged client simply constructs a Client with the private key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New validates the connection URL and returns a bound client. No network
// traffic happens here.
func New(rawURL, apiKey string) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: api key is empty", ErrInvalidURL)
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}, nil
}

// BaseURL returns the normalized instance URL the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Probe performs a minimal read against the given table. A nil return means
// the instance is reachable and the table exists; ErrSchemaAbsent means the
// instance is reachable but unmigrated.
func (c *Client) Probe(ctx context.Context, table string) error {
	probeURL := fmt.Sprintf("%s/rest/v1/%s?select=id&limit=1", c.baseURL, url.PathEscape(table))

	var status int
	var body []byte
	err := retry.Do(
		func() error {
			var err error
			status, body, err = c.roundTrip(ctx, http.MethodGet, probeURL, nil)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound, bytes.Contains(body, []byte(undefinedTable)):
		return fmt.Errorf("%w: table %q missing", ErrSchemaAbsent, table)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: credentials rejected (HTTP %d)", ErrConnectivity, status)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", ErrConnectivity, status, truncate(body))
	}
}

type execResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// ExecDDL runs the cumulative migration batch through the instance's exec_ddl
// function. Infrastructure failures (transport, auth, missing function) come
// back as ErrConnectivity or ErrExecFunctionMissing so the caller can fall
// back to manual application; a *DDLError means the database rejected the SQL.
func (c *Client) ExecDDL(ctx context.Context, ddl string) error {
	payload, err := json.Marshal(map[string]string{"ddl": ddl})
	if err != nil {
		return fmt.Errorf("encode ddl payload: %w", err)
	}
	rpcURL := c.baseURL + "/rest/v1/rpc/exec_ddl"

	var status int
	var body []byte
	err = retry.Do(
		func() error {
			var err error
			status, body, err = c.roundTrip(ctx, http.MethodPost, rpcURL, payload)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	switch {
	case status == http.StatusNotFound:
		return ErrExecFunctionMissing
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: credentials rejected (HTTP %d)", ErrConnectivity, status)
	case status < 200 || status >= 300:
		return fmt.Errorf("%w: HTTP %d: %s", ErrConnectivity, status, truncate(body))
	}

	var resp execResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// exec_ddl always answers JSON; anything else is an infra problem.
		return fmt.Errorf("%w: unexpected exec_ddl response: %s", ErrConnectivity, truncate(body))
	}
	if resp.Error != "" || !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "execution reported failure"
		}
		return &DDLError{Message: msg, Code: resp.Code}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, rawURL string, payload []byte) (int, []byte, error) {
	timeout := defaultTimeout
	if method == http.MethodPost {
		timeout = execTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func truncate(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
