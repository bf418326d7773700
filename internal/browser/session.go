package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ErrNoResponse is returned by SubmitCode when the page never issued the
// expected background request.
var ErrNoResponse = errors.New("verify response not observed")

const domCheckScript = `(() => {
	const shown = el => !!el && !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
	const check = document.querySelector('.bc-ui.form-icon.check');
	const error = document.querySelector('.form-field-error');
	return {check: shown(check), error: shown(error) ? error.textContent.trim() : ""};
})()`

// Config controls how the browser is launched.
type Config struct {
	Headless          bool
	NoSandbox         bool
	UserAgent         string
	NavigationTimeout time.Duration

	// ExecPath overrides chromedp's browser discovery.
	ExecPath string
}

// FormResult is what the page produced after a code was submitted.
type FormResult struct {
	Status int
	Body   []byte

	// DOMValid is nil when neither the check mark nor an inline error
	// appeared in time.
	DOMValid *bool
	UIError  string
}

// Session is one running browser with a single tab.
//
// A Session is not safe for concurrent use; callers drive it from one
// goroutine and release it with Close.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	cfg         Config

	mu     sync.Mutex
	waiter *responseWaiter
	closed bool
}

// Launch starts a browser process and enables the network domain.
//
// Example:
//
//	s, err := browser.Launch(ctx, browser.Config{Headless: true, NavigationTimeout: 15 * time.Second})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
func Launch(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 15 * time.Second
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		cfg:         cfg,
	}

	// The first Run starts the browser and ties its lifetime to tabCtx,
	// so it must not get a deadline of its own.
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	if err := s.run(ctx, cfg.NavigationTimeout, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("enable network: %w", err)
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	return s, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// InjectCookies sets name/value cookies on domain with path "/".
func (s *Session) InjectCookies(ctx context.Context, domain string, cookies map[string]string) error {
	return s.run(ctx, s.cfg.NavigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		for name, value := range cookies {
			if value == "" {
				continue
			}
			if err := network.SetCookie(name, value).
				WithDomain(domain).
				WithPath("/").
				Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", name, err)
			}
		}
		return nil
	}))
}

// Navigate loads url and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// HTML returns the rendered markup of the current page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Cookies returns the live cookies visible to urls, keyed by name.
func (s *Session) Cookies(ctx context.Context, urls ...string) (map[string]string, error) {
	out := map[string]string{}
	err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().WithURLs(urls).Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out[c.Name] = c.Value
		}
		return nil
	}))
	return out, err
}

// SubmitCode loads pageURL, types code into input[name="code"] and presses
// Tab. It then waits up to responseTimeout for a response whose URL contains
// match, reads its body, and watches the form for up to domTimeout.
func (s *Session) SubmitCode(ctx context.Context, pageURL, match, code string, responseTimeout, domTimeout time.Duration) (FormResult, error) {
	const input = `input[name="code"]`

	if err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(input, chromedp.ByQuery),
	); err != nil {
		return FormResult{}, fmt.Errorf("load form: %w", err)
	}

	w := newResponseWaiter(match)
	s.mu.Lock()
	s.waiter = w
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.waiter = nil
		s.mu.Unlock()
	}()

	if err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Focus(input, chromedp.ByQuery),
		chromedp.SendKeys(input, code+kb.Tab, chromedp.ByQuery),
	); err != nil {
		return FormResult{}, fmt.Errorf("fill form: %w", err)
	}

	timer := time.NewTimer(responseTimeout)
	defer timer.Stop()
	select {
	case <-w.done:
	case <-timer.C:
		return FormResult{}, fmt.Errorf("%w within %s", ErrNoResponse, responseTimeout)
	case <-ctx.Done():
		return FormResult{}, ctx.Err()
	}

	requestID, status, failure := w.result()
	if failure != "" {
		return FormResult{}, fmt.Errorf("verify request failed: %s", failure)
	}

	res := FormResult{Status: status}
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		body, err := network.GetResponseBody(requestID).Do(ctx)
		res.Body = body
		return err
	})); err != nil {
		return res, fmt.Errorf("read verify response: %w", err)
	}

	res.DOMValid, res.UIError = s.checkForm(ctx, domTimeout)
	return res, nil
}

type domState struct {
	Check bool   `json:"check"`
	Error string `json:"error"`
}

func (s *Session) checkForm(ctx context.Context, timeout time.Duration) (*bool, string) {
	deadline := time.Now().Add(timeout)
	for {
		var st domState
		if err := s.run(ctx, time.Second, chromedp.Evaluate(domCheckScript, &st)); err == nil {
			if st.Check {
				valid := true
				return &valid, ""
			}
			if st.Error != "" {
				valid := false
				return &valid, st.Error
			}
		}

		if !time.Now().Before(deadline) {
			return nil, ""
		}
		select {
		case <-ctx.Done():
			return nil, ""
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// run executes actions on the tab, bounded by timeout and ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *Session) onEvent(ev any) {
	s.mu.Lock()
	w := s.waiter
	s.mu.Unlock()
	if w == nil {
		return
	}

	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response != nil && strings.Contains(e.Response.URL, w.match) {
			w.capture(e.RequestID, int(e.Response.Status))
		}
	case *network.EventLoadingFinished:
		w.finish(e.RequestID, "")
	case *network.EventLoadingFailed:
		w.finish(e.RequestID, e.ErrorText)
	}
}

// responseWaiter follows one matching request from headers to completion.
type responseWaiter struct {
	match string
	done  chan struct{}

	mu        sync.Mutex
	requestID network.RequestID
	status    int
	failure   string
	finished  bool
}

func newResponseWaiter(match string) *responseWaiter {
	return &responseWaiter{match: match, done: make(chan struct{})}
}

func (w *responseWaiter) capture(id network.RequestID, status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.requestID == "" {
		w.requestID = id
		w.status = status
	}
}

func (w *responseWaiter) finish(id network.RequestID, failure string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished || w.requestID == "" || id != w.requestID {
		return
	}
	w.finished = true
	w.failure = failure
	close(w.done)
}

func (w *responseWaiter) result() (network.RequestID, int, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requestID, w.status, w.failure
}
