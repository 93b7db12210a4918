// Package relay forwards BLE data payloads to the remote preference API.
// It provides the HTTP client (retrying GET, single-shot POST) and a
// bounded dispatcher that runs relay jobs off the BLE callback path.
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TrustMode selects how the relay treats the server's TLS certificate.
type TrustMode string

const (
	// TrustVerified uses the system roots to verify the server.
	TrustVerified TrustMode = "verified"
	// TrustInsecure accepts any certificate the server presents.
	TrustInsecure TrustMode = "insecure"
)

// ErrRetriesExhausted is returned by Get when no attempt produced HTTP 200.
var ErrRetriesExhausted = errors.New("relay: GET failed after retries")

// Options configures the relay client.
type Options struct {
	BaseURL        string        // e.g. https://iotjukebox.onrender.com
	Path           string        // e.g. /preference
	Attempts       int           // GET attempts before giving up
	RetryDelay     time.Duration // pause between failed GET attempts
	AttemptTimeout time.Duration // per-request timeout, not cumulative
	Trust          TrustMode

	// HTTPClient overrides the client built from Trust (tests).
	HTTPClient *http.Client
}

// DefaultOptions returns the lab firmware's relay settings.
func DefaultOptions() Options {
	return Options{
		BaseURL:        "https://iotjukebox.onrender.com",
		Path:           "/preference",
		Attempts:       5,
		RetryDelay:     time.Second,
		AttemptTimeout: 15 * time.Second,
		Trust:          TrustInsecure,
	}
}

// Client talks to the preference API.
type Client struct {
	opts Options
	http *http.Client
}

// NewClient creates a relay client. Zero-valued options fall back to
// DefaultOptions.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.Path == "" {
		opts.Path = def.Path
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = def.AttemptTimeout
	}
	if opts.Trust == "" {
		opts.Trust = def.Trust
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(opts.Trust)
	}
	return &Client{opts: opts, http: hc}
}

func newHTTPClient(trust TrustMode) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if trust == TrustInsecure {
		slog.Warn("[RELAY] TLS certificate verification disabled", "trust", string(trust))
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit trust: insecure
	}
	return &http.Client{Transport: transport}
}

// EscapeID percent-encodes the colons of a device address and nothing else,
// so "AA:BB" becomes "AA%3ABB".
func EscapeID(id string) string {
	return strings.ReplaceAll(id, ":", "%3A")
}

// URL builds the preference URL shared by GET and POST.
func (c *Client) URL(id, key, value string) string {
	return c.opts.BaseURL + c.opts.Path +
		"?id=" + EscapeID(id) +
		"&key=" + url.QueryEscape(key) +
		"&value=" + url.QueryEscape(value)
}

// Get issues the preference GET, retrying until the server answers 200 or
// the attempts run out. On success the response body is returned.
func (c *Client) Get(ctx context.Context, id, key, value string) (string, error) {
	u := c.URL(id, key, value)
	slog.Info("[RELAY] GET", "url", u)

	var lastErr error
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		status, body, err := c.do(ctx, http.MethodGet, u)
		if err != nil {
			slog.Warn("[RELAY] GET attempt failed", "try", attempt, "error", err)
			lastErr = err
		} else {
			slog.Info("[RELAY] GET", "try", attempt, "status", status)
			if status == http.StatusOK {
				slog.Info("[RELAY] GET response", "body", body)
				return body, nil
			}
			lastErr = fmt.Errorf("HTTP %d", status)
		}

		if attempt == c.opts.Attempts {
			break
		}
		if err := sleepContext(ctx, c.opts.RetryDelay); err != nil {
			return "", fmt.Errorf("relay: GET cancelled after %d attempts: %w", attempt, err)
		}
	}

	slog.Error("[RELAY] GET failed after retries", "attempts", c.opts.Attempts, "error", lastErr)
	return "", fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// Post issues a single preference POST with an empty body. Any HTTP
// response counts as delivered, whatever its status; only transport
// failures return an error.
func (c *Client) Post(ctx context.Context, id, key, value string) (int, string, error) {
	u := c.URL(id, key, value)
	slog.Debug("[RELAY] POST equivalent", "cmd", fmt.Sprintf("Invoke-WebRequest -Uri %q -Method POST", u))

	status, body, err := c.do(ctx, http.MethodPost, u)
	if err != nil {
		slog.Error("[RELAY] POST failed", "error", err)
		return 0, "", fmt.Errorf("relay: POST: %w", err)
	}
	slog.Info("[RELAY] POST", "status", status, "body", body)
	return status, body, nil
}

// do performs one request bounded by the per-attempt timeout.
func (c *Client) do(ctx context.Context, method, u string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	var body io.Reader
	if method == http.MethodPost {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	// A status was received, so the exchange counts even if the body is cut
	// short; the caller gets whatever arrived.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("[RELAY] reading response body", "method", method, "status", resp.StatusCode, "read", len(data), "error", err)
	}
	return resp.StatusCode, string(data), nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
