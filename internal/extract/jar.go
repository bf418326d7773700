package extract

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all"
	"go.uber.org/zap"
)

// SupportedBrowsers lists the browser hints accepted by JarSource, in the
// order they are tried when no hint is given.
var SupportedBrowsers = []string{"chrome", "firefox", "edge", "chromium"}

// profileCookies are the values read from one browser profile.
type profileCookies struct {
	browser string
	values  map[string]string
}

// JarSource reads cookies straight from installed browsers' cookie stores.
type JarSource struct {
	domain string
	logger *zap.Logger
	read   func(ctx context.Context, domain string) ([]profileCookies, error)
}

// NewJarSource creates a JarSource for cookies whose domain ends in domain.
func NewJarSource(domain string, logger *zap.Logger) *JarSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JarSource{
		domain: strings.TrimPrefix(domain, "."),
		logger: logger,
		read:   readKooky,
	}
}

// Name implements CookieSource.
func (j *JarSource) Name() string { return "browser cookie jar" }

// Cookies returns the first profile holding client_id, session and identity,
// preferring browsers in SupportedBrowsers order. A hint restricts the
// search to that browser.
func (j *JarSource) Cookies(ctx context.Context, hint string) (State, error) {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint != "" && !slices.Contains(SupportedBrowsers, hint) {
		return State{}, fmt.Errorf("%w: unsupported browser %q", ErrSourceUnavailable, hint)
	}

	profiles, err := j.read(ctx, j.domain)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if len(profiles) == 0 {
		return State{}, fmt.Errorf("%w: no browser cookie stores found", ErrSourceUnavailable)
	}

	for _, browser := range SupportedBrowsers {
		if hint != "" && browser != hint {
			continue
		}
		for _, p := range profiles {
			if p.browser != browser {
				continue
			}
			if hasRequired(p.values) {
				j.logger.Info("cookies found in browser store", zap.String("browser", browser))
				return stateFromCookies(p.values), nil
			}
			j.logger.Debug("browser store lacks bandcamp cookies", zap.String("browser", browser))
		}
	}

	if hint != "" {
		return State{}, fmt.Errorf("%w in %s", ErrCookiesNotFound, hint)
	}
	return State{}, ErrCookiesNotFound
}

func readKooky(ctx context.Context, domain string) ([]profileCookies, error) {
	var out []profileCookies
	for _, store := range kooky.FindAllCookieStores() {
		if ctx.Err() != nil {
			store.Close()
			return out, ctx.Err()
		}

		cookies, err := store.ReadCookies(kooky.Valid, kooky.DomainHasSuffix(domain))
		store.Close()
		if err != nil && len(cookies) == 0 {
			continue
		}

		values := map[string]string{}
		for _, c := range cookies {
			if slices.Contains(requiredCookies, c.Name) {
				values[c.Name] = c.Value
			}
		}
		out = append(out, profileCookies{browser: strings.ToLower(store.Browser()), values: values})
	}
	return out, nil
}
