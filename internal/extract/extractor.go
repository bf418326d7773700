package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/handiism/bandcamp-verificator/internal/bandcamp"
	"github.com/handiism/bandcamp-verificator/internal/config"
	"github.com/handiism/bandcamp-verificator/internal/model"
)

// CookieSource yields the session cookies of a logged-in Bandcamp user.
type CookieSource interface {
	Name() string
	Cookies(ctx context.Context, hint string) (State, error)
}

// Steps reported in Failure.Step.
const (
	StepCookies = "cookies"
	StepCrumb   = "crumb"
)

// Failure records why one extraction step failed.
type Failure struct {
	Step string
	Err  error
}

func (f Failure) Error() string { return f.Step + ": " + f.Err.Error() }

func (f Failure) Unwrap() error { return f.Err }

// Result is the outcome of AutoExtract.
type Result struct {
	Credentials model.Credentials
	Success     bool
	Failures    []Failure
}

// Message summarises the result for display.
func (r Result) Message() string {
	if len(r.Failures) == 0 {
		return "credentials extracted"
	}
	parts := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		parts = append(parts, f.Error())
	}
	if r.Success {
		return "cookies extracted, " + strings.Join(parts, "; ")
	}
	return strings.Join(parts, "; ")
}

// Err joins the failures, or returns nil.
func (r Result) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Extractor turns a logged-in browser into verification credentials.
type Extractor struct {
	source  CookieSource
	fetcher PageFetcher
	logger  *zap.Logger
}

// New creates an Extractor from a cookie source and a page fetcher.
func New(source CookieSource, fetcher PageFetcher, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{source: source, fetcher: fetcher, logger: logger}
}

// FromSettings wires the default extractor: the cookie jar and a plain HTTP
// page fetch, or a visible login window and a rendered page when login is set.
func FromSettings(settings *config.Settings, login bool, logger *zap.Logger) *Extractor {
	if login {
		return New(NewLoginSource(settings, logger), NewBrowserFetcher(settings), logger)
	}
	return New(NewJarSource(settings.Domain, logger), NewHTTPFetcher(settings), logger)
}

// ExtractCookies reads client_id, session and identity from the source.
func (e *Extractor) ExtractCookies(ctx context.Context, hint string) (State, error) {
	state, err := e.source.Cookies(ctx, hint)
	if err != nil {
		return State{}, err
	}
	e.logger.Info("cookies extracted",
		zap.String("source", e.source.Name()),
		zap.String("client_id", model.Redacted(state.ClientID, 20)),
		zap.String("session", model.Redacted(state.Session, 20)))
	return state, nil
}

// ExtractCrumb finds the crumb for state's cookies, using state.PageHTML
// when present and fetching the status page otherwise.
func (e *Extractor) ExtractCrumb(ctx context.Context, state State) (string, error) {
	if state.ClientID == "" || state.Session == "" {
		return "", ErrMissingCookies
	}

	page := state.PageHTML
	if page == "" {
		if e.fetcher == nil {
			return "", fmt.Errorf("%w: no page to search", ErrCrumbNotFound)
		}
		var err error
		if page, err = e.fetcher.FetchPage(ctx, state); err != nil {
			return "", fmt.Errorf("%w: %v", ErrCrumbNotFound, err)
		}
	}

	crumb, pattern, err := bandcamp.ExtractCrumb(page)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrumbNotFound, err)
	}
	e.logger.Info("crumb extracted",
		zap.String("pattern", pattern),
		zap.String("crumb", model.Redacted(crumb, 20)))
	return crumb, nil
}

// AutoExtract runs the cookie and crumb steps. It never returns an error:
// failures are listed in the result, and cookies are kept even when the
// crumb step fails. Success is false only without client_id or session.
func (e *Extractor) AutoExtract(ctx context.Context, hint string) Result {
	var res Result

	state, err := e.ExtractCookies(ctx, hint)
	if err != nil {
		e.logger.Warn("cookie extraction failed", zap.String("source", e.source.Name()), zap.Error(err))
		res.Failures = append(res.Failures, Failure{Step: StepCookies, Err: err})
		return res
	}

	crumb, err := e.ExtractCrumb(ctx, state)
	if err != nil {
		e.logger.Warn("crumb extraction failed", zap.Error(err))
		res.Failures = append(res.Failures, Failure{Step: StepCrumb, Err: err})
	}
	state.Crumb = crumb

	res.Credentials = state.Credentials()
	res.Success = state.ClientID != "" && state.Session != ""
	return res
}
