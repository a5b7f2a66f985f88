// Package securonix wraps the Securonix SNYPR REST API: token-based
// authentication plus one method per vendor endpoint.
//
// The client is deliberately thin. Every method is a single HTTP request
// with fixed query parameters; there is no retry, backoff, or circuit
// breaking — a failed call fails the invocation, mirroring the host
// platform's one-command-one-result contract.
package securonix

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"secint/internal/metrics"
)

// tokenValidityDays is sent on the credential exchange; the vendor issues
// tokens valid for this window.
const tokenValidityDays = 1

// APIError reports a non-success HTTP status from the vendor API, carrying
// the status code and (truncated) body for diagnostics.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("securonix: API call failed with status %d: %s", e.StatusCode, e.Body)
}

// DomainError reports a vendor-level business failure delivered inside a
// successful HTTP response (e.g. duplicate action, empty watchlist).
type DomainError struct {
	Op      string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("securonix: %s: %s", e.Op, e.Message)
}

// Options configures a Client.
type Options struct {
	// Tenant is the tenant hostname or full base URL. Bare tenant names are
	// normalized: https:// is prepended and the SNYPR web-service base path
	// appended when absent.
	Tenant   string
	Username string
	Password string

	// Insecure skips TLS certificate verification.
	Insecure bool

	// Proxy is an optional proxy URL. Empty falls back to the environment.
	Proxy string

	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration
}

// Client is a stateless, token-authenticated Securonix API client.
type Client struct {
	baseURL string
	tenant  string
	token   string
	http    *http.Client
}

// NormalizeBaseURL expands a bare tenant name into the full web-service base
// URL. A value that is already a URL passes through with only a trailing
// slash ensured, so self-hosted and test endpoints work unchanged.
func NormalizeBaseURL(tenant string) string {
	if strings.HasPrefix(tenant, "http://") || strings.HasPrefix(tenant, "https://") {
		if !strings.HasSuffix(tenant, "/") {
			tenant += "/"
		}
		return tenant
	}
	return "https://" + tenant + ".securonix.net/Snypr/ws/"
}

// New builds a client and performs the credential exchange. The returned
// client holds a bearer token valid for one day; callers are expected to be
// short-lived invocations, so the token is never refreshed.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Tenant == "" {
		return nil, fmt.Errorf("securonix: tenant is required")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("securonix: username and password are required")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	tr := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if opts.Proxy != "" {
		pu, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("securonix: invalid proxy url: %w", err)
		}
		tr.Proxy = http.ProxyURL(pu)
	}
	if opts.Insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &Client{
		baseURL: NormalizeBaseURL(opts.Tenant),
		tenant:  opts.Tenant,
		http:    &http.Client{Transport: tr, Timeout: timeout},
	}

	token, err := c.generateToken(ctx, opts.Username, opts.Password)
	if err != nil {
		return nil, err
	}
	c.token = token

	return c, nil
}

// generateToken performs the credential exchange. Credentials travel as
// headers on this one call; every later call carries only the token.
func (c *Client) generateToken(ctx context.Context, username, password string) (string, error) {
	hdr := http.Header{}
	hdr.Set("username", username)
	hdr.Set("password", password)
	hdr.Set("validity", fmt.Sprintf("%d", tokenValidityDays))
	hdr.Set("tenant", c.tenant)

	body, err := c.do(ctx, http.MethodGet, "token/generate", nil, hdr)
	if err != nil {
		return "", fmt.Errorf("securonix: token generation failed: %w", err)
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("securonix: token generation returned an empty token")
	}
	return token, nil
}

// do performs one HTTP request and returns the raw response body.
//
// Errors:
//   - *APIError for any non-2xx status.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, hdr http.Header) ([]byte, error) {
	full := c.baseURL + strings.TrimPrefix(path, "/")
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, full, nil)
	if err != nil {
		return nil, fmt.Errorf("securonix: build request: %w", err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.IncCounter(metrics.SIEMRequests, 1, "status:error")
		return nil, fmt.Errorf("securonix: request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.IncCounter(metrics.SIEMRequests, 1, "status:"+strconv.Itoa(resp.StatusCode))
	metrics.ObserveDuration(metrics.SIEMReqTime, time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("securonix: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b := string(body)
		if len(b) > 4<<10 {
			b = b[:4<<10]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: b}
	}
	return body, nil
}

// authHeader returns the token header attached to every post-auth call.
func (c *Client) authHeader() http.Header {
	hdr := http.Header{}
	hdr.Set("token", c.token)
	return hdr
}
