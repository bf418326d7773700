package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/handiism/bandcamp-verificator/internal/browser"
	"github.com/handiism/bandcamp-verificator/internal/config"
)

// Page is the part of a browser session the extractor needs.
type Page interface {
	InjectCookies(ctx context.Context, domain string, cookies map[string]string) error
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Cookies(ctx context.Context, urls ...string) (map[string]string, error)
	Close() error
}

// Launcher starts a browser page.
type Launcher func(ctx context.Context, cfg browser.Config) (Page, error)

// LaunchChrome starts a chromedp browser.
func LaunchChrome(ctx context.Context, cfg browser.Config) (Page, error) {
	s, err := browser.Launch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Clock abstracts time for the login poll.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LoginSource opens a browser window on the status page and waits for the
// user to log in. No cookies are injected.
type LoginSource struct {
	settings *config.Settings
	logger   *zap.Logger
	launch   Launcher
	clock    Clock

	// Headless hides the window. Only useful when the browser profile is
	// already logged in.
	Headless bool
}

// NewLoginSource creates a LoginSource that launches Chrome with a visible window.
func NewLoginSource(settings *config.Settings, logger *zap.Logger) *LoginSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginSource{
		settings: settings,
		logger:   logger,
		launch:   LaunchChrome,
		clock:    realClock{},
	}
}

// Name implements CookieSource.
func (l *LoginSource) Name() string { return "browser login" }

// Cookies implements CookieSource. The browser hint is ignored.
func (l *LoginSource) Cookies(ctx context.Context, _ string) (State, error) {
	b := l.settings.Browser
	page, err := l.launch(ctx, browser.Config{
		Headless:          l.Headless,
		NoSandbox:         b.NoSandbox,
		UserAgent:         l.settings.UserAgent,
		NavigationTimeout: time.Duration(b.NavigationTimeoutSec) * time.Second,
	})
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, l.settings.YumURL); err != nil {
		return State{}, fmt.Errorf("%w: open %s: %v", ErrSourceUnavailable, l.settings.YumURL, err)
	}

	l.logger.Info("waiting for bandcamp login",
		zap.Duration("timeout", time.Duration(b.LoginTimeoutSec)*time.Second))

	read := func(ctx context.Context) (map[string]string, error) {
		return page.Cookies(ctx, l.settings.YumURL, l.settings.Origin)
	}
	values, err := waitForCookies(ctx, read,
		time.Duration(b.LoginPollIntervalSec)*time.Second,
		time.Duration(b.LoginTimeoutSec)*time.Second,
		l.clock)
	if err != nil {
		return State{}, err
	}

	state := stateFromCookies(values)

	// Reload so the page renders with the session that just appeared.
	if err := page.Navigate(ctx, l.settings.YumURL); err == nil {
		if html, err := page.HTML(ctx); err == nil {
			state.PageHTML = html
		}
	}
	return state, nil
}

// waitForCookies polls read every interval until the required cookies show
// up or timeout elapses. Polling errors are retried until the deadline.
func waitForCookies(ctx context.Context, read func(context.Context) (map[string]string, error), interval, timeout time.Duration, clock Clock) (map[string]string, error) {
	deadline := clock.Now().Add(timeout)
	var lastErr error

	for {
		values, err := read(ctx)
		if err == nil && hasRequired(values) {
			return values, nil
		}
		if err != nil {
			lastErr = err
		}

		if !clock.Now().Before(deadline) {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrLoginTimeout, lastErr)
			}
			return nil, ErrLoginTimeout
		}

		wait := interval
		if remaining := deadline.Sub(clock.Now()); remaining < wait {
			wait = remaining
		}
		if err := clock.Sleep(ctx, wait); err != nil {
			return nil, errors.Join(ErrLoginTimeout, err)
		}
	}
}
