package verify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/handiism/bandcamp-verificator/internal/bandcamp/dto"
	"github.com/handiism/bandcamp-verificator/internal/browser"
	"github.com/handiism/bandcamp-verificator/internal/config"
	"github.com/handiism/bandcamp-verificator/internal/http"
	ioutils "github.com/handiism/bandcamp-verificator/internal/io"
	"github.com/handiism/bandcamp-verificator/internal/model"
)

// Response is what a transport got back for one code.
type Response struct {
	Status int
	Body   []byte

	// DOMValid and UIError are only set by the browser transport.
	DOMValid *bool
	UIError  string
}

// Transport performs the single remote call behind one verification.
type Transport interface {
	Verify(ctx context.Context, code, crumb string) (Response, error)
	Close() error
}

// Transport names accepted in config.Settings.Transport.
const (
	TransportHTTP    = "http"
	TransportBrowser = "browser"
)

// NewTransport builds the transport selected by settings.Transport.
func NewTransport(ctx context.Context, settings *config.Settings, creds model.Credentials) (Transport, error) {
	switch settings.Transport {
	case TransportBrowser:
		return NewBrowserTransport(ctx, settings, creds)
	case TransportHTTP, "":
		return NewHTTPTransport(settings, creds)
	default:
		return nil, fmt.Errorf("unknown transport %q", settings.Transport)
	}
}

func sessionCookies(settings *config.Settings, creds model.Credentials) map[string]string {
	return map[string]string{
		"client_id": ioutils.SanitizeCookieValue(creds.ClientID, settings.MaxClientIDLength),
		"session":   ioutils.SanitizeCookieValue(creds.Session, settings.MaxSessionLength),
		"identity":  ioutils.SanitizeCookieValue(creds.Identity, settings.MaxSessionLength),
	}
}

// HTTPTransport posts the verify payload directly.
type HTTPTransport struct {
	client *http.Client
	url    string
}

// NewHTTPTransport creates an HTTPTransport carrying creds as cookies.
func NewHTTPTransport(settings *config.Settings, creds model.Credentials) (*HTTPTransport, error) {
	client := http.NewClient(http.Config{
		UserAgent:     settings.UserAgent,
		Origin:        settings.Origin,
		Referer:       settings.YumURL,
		Timeout:       settings.Timeout(),
		MaxRetries:    settings.MaxRetries,
		RetryCooldown: settings.RetryCooldown,
		RetryExponent: settings.RetryExponent,
	})

	cookies := http.SessionCookies(settings.VerifyURL, settings.Domain, sessionCookies(settings, creds))
	if err := client.SetCookies(settings.VerifyURL, cookies); err != nil {
		return nil, err
	}

	return &HTTPTransport{client: client, url: settings.VerifyURL}, nil
}

// Verify implements Transport.
func (t *HTTPTransport) Verify(ctx context.Context, code, crumb string) (Response, error) {
	status, body, err := t.client.PostJSON(ctx, t.url, dto.NewVerifyRequest(code, crumb))
	return Response{Status: status, Body: body}, err
}

// Close implements Transport.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// formSubmitter is the part of browser.Session used by BrowserTransport.
type formSubmitter interface {
	SubmitCode(ctx context.Context, pageURL, match, code string, responseTimeout, domTimeout time.Duration) (browser.FormResult, error)
	Close() error
}

// BrowserTransport types each code into the redeem form of a real page
// and reads the API response the page triggers.
type BrowserTransport struct {
	session         formSubmitter
	pageURL         string
	match           string
	responseTimeout time.Duration
	domTimeout      time.Duration
}

// NewBrowserTransport launches a browser with creds injected as cookies.
func NewBrowserTransport(ctx context.Context, settings *config.Settings, creds model.Credentials) (*BrowserTransport, error) {
	b := settings.Browser
	s, err := browser.Launch(ctx, browser.Config{
		Headless:          b.Headless,
		NoSandbox:         b.NoSandbox,
		UserAgent:         settings.UserAgent,
		NavigationTimeout: time.Duration(b.NavigationTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	cookies := sessionCookies(settings, creds)
	cookies["js_logged_in"] = "1"
	if err := s.InjectCookies(ctx, settings.Domain, cookies); err != nil {
		s.Close()
		return nil, fmt.Errorf("inject cookies: %w", err)
	}

	return newBrowserTransport(s, settings), nil
}

func newBrowserTransport(s formSubmitter, settings *config.Settings) *BrowserTransport {
	return &BrowserTransport{
		session:         s,
		pageURL:         settings.YumURL,
		match:           verifyPath(settings.VerifyURL),
		responseTimeout: time.Duration(settings.Browser.ResponseTimeoutSec) * time.Second,
		domTimeout:      time.Duration(settings.Browser.DOMCheckTimeoutSec) * time.Second,
	}
}

// Verify implements Transport. The page sends its own crumb, so crumb is unused.
func (t *BrowserTransport) Verify(ctx context.Context, code, _ string) (Response, error) {
	res, err := t.session.SubmitCode(ctx, t.pageURL, t.match, code, t.responseTimeout, t.domTimeout)
	return Response{
		Status:   res.Status,
		Body:     res.Body,
		DOMValid: res.DOMValid,
		UIError:  res.UIError,
	}, err
}

// Close implements Transport.
func (t *BrowserTransport) Close() error {
	return t.session.Close()
}

// verifyPath turns "https://bandcamp.com/api/codes/1/verify" into
// "api/codes/1/verify" for response matching.
func verifyPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Path, "/")
}
