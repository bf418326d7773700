// Package http provides an HTTP client configured for Bandcamp API requests.
//
// The Client in this package handles:
//   - Browser-like headers (User-Agent, Origin, Referer, X-Requested-With)
//   - The client_id, session and identity cookies in a per-client jar
//   - POST retries on statuses 429, 500, 502, 503 and 504
//   - Timeout handling
//
// # Basic Usage
//
//	client := http.NewClient(http.Config{
//	    UserAgent:     ua,
//	    Origin:        "https://bandcamp.com",
//	    Referer:       "https://bandcamp.com/yum",
//	    Timeout:       25 * time.Second,
//	    MaxRetries:    3,
//	    RetryCooldown: 1,
//	    RetryExponent: 2,
//	})
//	client.SetCookies(verifyURL, http.SessionCookies(verifyURL, ".bandcamp.com", values))
//
//	status, body, err := client.PostJSON(ctx, verifyURL, payload)
//
// # Retries
//
// The wait before retry n is RetryCooldown * RetryExponent^n seconds
// (1s, 2s, 4s with the defaults). A Retry-After header given in seconds
// replaces the computed wait. Retries never show up to the caller: PostJSON
// returns the last status it saw.
package http
