package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// retryStatuses are the response codes that trigger an automatic retry.
var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Config holds the request settings for a Client.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// Origin and Referer are sent with POST requests.
	Origin  string
	Referer string

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a retryable status.
	MaxRetries int

	// RetryCooldown and RetryExponent give the wait before retry n:
	// RetryCooldown * RetryExponent^n seconds.
	RetryCooldown float64
	RetryExponent float64
}

// Client wraps HTTP operations with Bandcamp-specific configuration.
//
// Client provides:
//   - Browser-like headers accepted by the verify endpoint
//   - A cookie jar holding the session cookies
//   - Automatic POST retries on 429 and 5xx gateway statuses
//   - Timeout handling
//
// Example usage:
//
//	client := NewClient(Config{UserAgent: ua, Timeout: 25 * time.Second, MaxRetries: 3})
//	client.SetCookies("https://bandcamp.com", cookies)
//
//	status, body, err := client.PostJSON(ctx, verifyURL, payload)
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// NewClient creates a new HTTP client configured for Bandcamp.
func NewClient(cfg Config) *Client {
	jar, _ := cookiejar.New(nil)
	if cfg.RetryExponent < 1 {
		cfg.RetryExponent = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		cfg: cfg,
	}
}

// SetCookies stores cookies for rawURL in the client's jar.
func (c *Client) SetCookies(rawURL string, cookies []*http.Cookie) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse cookie url: %w", err)
	}
	c.httpClient.Jar.SetCookies(u, cookies)
	return nil
}

// SessionCookies builds cookies for the named values, scoped to domain when
// rawURL's host falls under it and host-only otherwise. Empty values are skipped.
//
// Example:
//
//	cookies := SessionCookies(verifyURL, ".bandcamp.com", map[string]string{
//	    "client_id": creds.ClientID,
//	    "session":   creds.Session,
//	})
func SessionCookies(rawURL, domain string, values map[string]string) []*http.Cookie {
	scope := ""
	if u, err := url.Parse(rawURL); err == nil {
		host := u.Hostname()
		bare := strings.TrimPrefix(domain, ".")
		if bare != "" && (host == bare || strings.HasSuffix(host, "."+bare)) {
			scope = domain
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		if values[name] == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:   name,
			Value:  values[name],
			Domain: scope,
			Path:   "/",
		})
	}
	return cookies
}

// Cookies returns the cookies the jar would send to rawURL.
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.httpClient.Jar.Cookies(u)
}

// PostJSON sends payload as a JSON body and returns the final status and body.
//
// Responses with status 429, 500, 502, 503 or 504 are retried up to
// MaxRetries times. An integer Retry-After header overrides the computed
// backoff. When retries run out the last response is returned as is, so
// err is only set for transport failures.
//
// Example:
//
//	status, body, err := client.PostJSON(ctx, "https://bandcamp.com/api/codes/1/verify", req)
//	if IsTimeout(err) {
//	    // attempt exceeded Config.Timeout
//	}
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}

	for tries := 0; ; tries++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
		if err != nil {
			return 0, nil, err
		}
		c.setHeaders(req)
		req.Header.Set("Accept", "*/*")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		if c.cfg.Origin != "" {
			req.Header.Set("Origin", c.cfg.Origin)
		}
		if c.cfg.Referer != "" {
			req.Header.Set("Referer", c.cfg.Referer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return resp.StatusCode, nil, err
		}

		if !retryStatuses[resp.StatusCode] || tries >= c.cfg.MaxRetries {
			return resp.StatusCode, body, nil
		}

		c.waitForRetry(ctx, tries, resp.Header.Get("Retry-After"))
	}
}

// Get performs a GET request and returns the response body as bytes.
//
// Additional cookies are sent on this request only.
//
// Returns an error if:
//   - The request fails
//   - The response status is not 200 OK
//   - Reading the body fails
func (c *Client) Get(ctx context.Context, rawURL string, extra ...*http.Cookie) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*")
	for _, ck := range extra {
		req.AddCookie(ck)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// GetString performs a GET request and returns the response body as a string.
//
// This is a convenience wrapper around Get for fetching HTML pages.
func (c *Client) GetString(ctx context.Context, rawURL string, extra ...*http.Cookie) (string, error) {
	body, err := c.Get(ctx, rawURL, extra...)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) setHeaders(req *http.Request) {
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

func (c *Client) waitForRetry(ctx context.Context, tries int, retryAfter string) {
	cooldown := c.cfg.RetryCooldown * math.Pow(c.cfg.RetryExponent, float64(tries))
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
		cooldown = float64(secs)
	}
	if cooldown <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(cooldown * float64(time.Second))):
	}
}
