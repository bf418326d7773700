package extract

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/handiism/bandcamp-verificator/internal/browser"
	"github.com/handiism/bandcamp-verificator/internal/config"
	"github.com/handiism/bandcamp-verificator/internal/http"
)

// PageFetcher loads the logged-in status page for a set of cookies.
type PageFetcher interface {
	FetchPage(ctx context.Context, state State) (string, error)
}

// HTTPFetcher requests the status page directly.
type HTTPFetcher struct {
	settings *config.Settings
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(settings *config.Settings) *HTTPFetcher {
	return &HTTPFetcher{settings: settings}
}

// FetchPage implements PageFetcher.
func (f *HTTPFetcher) FetchPage(ctx context.Context, state State) (string, error) {
	s := f.settings
	client := http.NewClient(http.Config{
		UserAgent: s.UserAgent,
		Timeout:   s.Timeout(),
	})
	defer client.CloseIdleConnections()

	if err := client.SetCookies(s.YumURL, http.SessionCookies(s.YumURL, s.Domain, state.cookieValues())); err != nil {
		return "", err
	}

	page, err := client.GetString(ctx, s.YumURL, &nethttp.Cookie{Name: "js_logged_in", Value: "1"})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", s.YumURL, err)
	}
	return page, nil
}

// BrowserFetcher renders the status page in a headless browser, which also
// picks up a crumb that is only written by scripts.
type BrowserFetcher struct {
	settings *config.Settings
	launch   Launcher
}

// NewBrowserFetcher creates a BrowserFetcher.
func NewBrowserFetcher(settings *config.Settings) *BrowserFetcher {
	return &BrowserFetcher{settings: settings, launch: LaunchChrome}
}

// FetchPage implements PageFetcher.
func (f *BrowserFetcher) FetchPage(ctx context.Context, state State) (string, error) {
	s := f.settings
	page, err := f.launch(ctx, browser.Config{
		Headless:          true,
		NoSandbox:         s.Browser.NoSandbox,
		UserAgent:         s.UserAgent,
		NavigationTimeout: time.Duration(s.Browser.NavigationTimeoutSec) * time.Second,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer page.Close()

	cookies := state.cookieValues()
	cookies["js_logged_in"] = "1"
	if err := page.InjectCookies(ctx, s.Domain, cookies); err != nil {
		return "", err
	}
	if err := page.Navigate(ctx, s.YumURL); err != nil {
		return "", fmt.Errorf("open %s: %w", s.YumURL, err)
	}
	return page.HTML(ctx)
}
