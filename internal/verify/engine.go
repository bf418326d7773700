package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/handiism/bandcamp-verificator/internal/bandcamp/dto"
	"github.com/handiism/bandcamp-verificator/internal/browser"
	"github.com/handiism/bandcamp-verificator/internal/config"
	"github.com/handiism/bandcamp-verificator/internal/extract"
	"github.com/handiism/bandcamp-verificator/internal/http"
	"github.com/handiism/bandcamp-verificator/internal/model"
)

// Engine verifies codes one at a time over a single transport.
type Engine struct {
	settings  *config.Settings
	creds     model.Credentials
	transport Transport
	logger    *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	intn  func(n int) int
	now   func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces the pre-request delay.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithIntn replaces the random source used to draw delays. fn(n) must
// return a value in [0, n).
func WithIntn(fn func(n int) int) Option {
	return func(e *Engine) { e.intn = fn }
}

// WithClock replaces time.Now for elapsed time measurement.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// NewEngine validates creds and returns an Engine that owns transport.
// Invalid credentials are reported as model.ValidationErrors. An
// HTTPTransport additionally requires a crumb.
func NewEngine(settings *config.Settings, creds model.Credentials, transport Transport, logger *zap.Logger, opts ...Option) (*Engine, error) {
	_, direct := transport.(*HTTPTransport)
	if err := creds.Validate(settings.ToLimits(), direct); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		settings:  settings,
		creds:     creds,
		transport: transport,
		logger:    logger,
		sleep:     sleepContext,
		intn:      rand.IntN,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Open builds the configured transport and an Engine over it. For the
// http transport a missing crumb is fetched from the status page first.
func Open(ctx context.Context, settings *config.Settings, creds model.Credentials, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := creds.Validate(settings.ToLimits(), false); err != nil {
		return nil, err
	}
	if settings.Transport != TransportBrowser && strings.TrimSpace(creds.Crumb) == "" {
		crumb, err := resolveCrumb(ctx, settings, creds, logger)
		if err != nil {
			return nil, model.ValidationErrors{"crumb": fmt.Sprintf("Crumb cannot be empty and could not be fetched: %v", err)}
		}
		creds.Crumb = crumb
	}
	transport, err := NewTransport(ctx, settings, creds)
	if err != nil {
		return nil, err
	}
	e, err := NewEngine(settings, creds, transport, logger, opts...)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return e, nil
}

// VerifyCode checks one code. index and total are 1-based batch position
// and size, used for logging only.
//
// The result is always complete: failures are reported through Success
// and Error, never as a missing result. The random delay runs first and
// honours ctx; once the request starts it runs to completion or timeout.
func (e *Engine) VerifyCode(ctx context.Context, code string, index, total int) model.VerificationResult {
	if msg := model.ValidateCode(code); msg != "" {
		res := model.VerificationResult{Code: code, Error: "Invalid code: " + msg}
		e.logResult(res, index, total)
		return res
	}
	code = strings.TrimSpace(code)

	start := e.now()
	res := model.VerificationResult{Code: code, DelaySec: e.drawDelay()}

	if err := e.sleep(ctx, time.Duration(res.DelaySec)*time.Second); err != nil {
		res.Error = "Cancelled: " + err.Error()
		res.ElapsedMS = e.elapsed(start)
		e.logResult(res, index, total)
		return res
	}

	resp, err := e.transport.Verify(context.WithoutCancel(ctx), code, e.creds.Crumb)
	res.ElapsedMS = e.elapsed(start)

	switch {
	case err != nil && isTimeout(err):
		res.Error = fmt.Sprintf("Request timeout after %ds", e.timeoutSec(err))
	case err != nil:
		res.Error = fmt.Sprintf("Request error: %v", err)
	default:
		classify(&res, resp)
	}

	e.logResult(res, index, total)
	return res
}

func resolveCrumb(ctx context.Context, settings *config.Settings, creds model.Credentials, logger *zap.Logger) (string, error) {
	ex := extract.New(nil, extract.NewHTTPFetcher(settings), logger)
	return ex.ExtractCrumb(ctx, extract.State{
		ClientID: creds.ClientID,
		Session:  creds.Session,
		Identity: creds.Identity,
	})
}

// Close releases the transport. Calling it again returns the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.transport != nil {
			e.closeErr = e.transport.Close()
		}
	})
	return e.closeErr
}

func classify(res *model.VerificationResult, resp Response) {
	res.HTTPStatus = resp.Status
	res.Body = decodeBody(resp.Body)
	res.DOMValid = resp.DOMValid
	res.UIError = resp.UIError
	res.Success = resp.Status >= 200 && resp.Status < 300

	if reason, rejected := dto.Rejection(res.Body); rejected {
		res.Success = false
		if reason == "" {
			reason = "verification rejected"
		}
		res.Error = reason
		return
	}
	if !res.Success {
		res.Error = fmt.Sprintf("HTTP %d", resp.Status)
	}
}

// decodeBody returns the JSON value of body, or body as text if it is not JSON.
func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

func isTimeout(err error) bool {
	return http.IsTimeout(err) || errors.Is(err, browser.ErrNoResponse)
}

// timeoutSec reports the limit that err ran into.
func (e *Engine) timeoutSec(err error) int {
	switch {
	case errors.Is(err, browser.ErrNoResponse):
		return e.settings.Browser.ResponseTimeoutSec
	case e.settings.Transport == TransportBrowser:
		return e.settings.Browser.NavigationTimeoutSec
	default:
		return e.settings.TimeoutSec
	}
}

func (e *Engine) drawDelay() int {
	lo, hi := e.settings.MinDelaySec, e.settings.MaxDelaySec
	if hi <= lo {
		return lo
	}
	return lo + e.intn(hi-lo+1)
}

func (e *Engine) elapsed(start time.Time) float64 {
	ms := float64(e.now().Sub(start)) / float64(time.Millisecond)
	if ms < 0 {
		return 0
	}
	return ms
}

func (e *Engine) logResult(res model.VerificationResult, index, total int) {
	fields := []zap.Field{
		zap.String("event", "verify"),
		zap.String("code", res.Code),
		zap.Int("status", res.HTTPStatus),
		zap.Bool("success", res.Success),
		zap.Int("index", index),
		zap.Int("total", total),
		zap.Float64("elapsed_ms", res.ElapsedMS),
		zap.Int("delay_sec", res.DelaySec),
	}
	if res.Error != "" {
		fields = append(fields, zap.String("error", res.Error))
	}
	if res.DOMValid != nil {
		fields = append(fields, zap.Bool("dom_valid", *res.DOMValid))
	}

	if res.Success {
		e.logger.Info("code verification", fields...)
	} else {
		e.logger.Warn("code verification", fields...)
	}
}

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
