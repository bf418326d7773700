package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/handiism/bandcamp-verificator/internal/browser"
	"github.com/handiism/bandcamp-verificator/internal/config"
	"github.com/handiism/bandcamp-verificator/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testCreds = model.Credentials{ClientID: "cid", Session: "sess", Crumb: "crumb|1"}

// remote answers like the verify endpoint for a few well-known codes.
func remote(code string) (int, string) {
	switch {
	case code == "GOODCODE":
		return http.StatusOK, `{}`
	case code == "USEDCODE":
		return http.StatusOK, `{"errors":[{"reason":"already redeemed"}]}`
	case code == "NOREASON":
		return http.StatusOK, `{"errors":[{}]}`
	case code == "FORBIDDEN":
		return http.StatusForbidden, `<html>forbidden</html>`
	case code == "BADREQ":
		return http.StatusBadRequest, `{"errors":[{"reason":"bad crumb"}]}`
	case strings.HasPrefix(code, "OK"):
		return http.StatusOK, `{"ok":true}`
	default:
		return http.StatusNotFound, ``
	}
}

func testSettings() *config.Settings {
	s := config.DefaultSettings()
	s.MinDelaySec = 0
	s.MaxDelaySec = 0
	s.RetryCooldown = 0
	return s
}

func newHTTPStub(t *testing.T) (*config.Settings, Transport) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code  string `json:"code"`
			Crumb string `json:"crumb"`
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &req)
		if c, err := r.Cookie("session"); err != nil || c.Value != "sess" || req.Crumb != "crumb|1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		status, body := remote(req.Code)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	s := testSettings()
	s.VerifyURL = srv.URL + "/api/codes/1/verify"
	tr, err := NewHTTPTransport(s, testCreds)
	require.NoError(t, err)
	return s, tr
}

type stubForm struct {
	calls  atomic.Int32
	closed atomic.Int32
}

func (f *stubForm) SubmitCode(_ context.Context, pageURL, match, code string, _, _ time.Duration) (browser.FormResult, error) {
	f.calls.Add(1)
	if match != "api/codes/1/verify" {
		return browser.FormResult{}, fmt.Errorf("unexpected match %q", match)
	}
	status, body := remote(code)
	res := browser.FormResult{Status: status, Body: []byte(body)}
	if status == http.StatusOK {
		valid := !strings.Contains(body, "errors")
		res.DOMValid = &valid
	}
	return res, nil
}

func (f *stubForm) Close() error {
	f.closed.Add(1)
	return nil
}

func newBrowserStub(t *testing.T) (*config.Settings, Transport) {
	s := testSettings()
	s.Transport = TransportBrowser
	return s, newBrowserTransport(&stubForm{}, s)
}

var transports = []struct {
	name string
	make func(t *testing.T) (*config.Settings, Transport)
}{
	{"http", newHTTPStub},
	{"browser", newBrowserStub},
}

func newTestEngine(t *testing.T, s *config.Settings, tr Transport, logger *zap.Logger, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(s, testCreds, tr, logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestVerifyCode_Scenarios(t *testing.T) {
	tests := []struct {
		code        string
		wantStatus  int
		wantSuccess bool
		wantError   string
	}{
		{"GOODCODE", 200, true, ""},
		{"USEDCODE", 200, false, "already redeemed"},
		{"NOREASON", 200, false, "verification rejected"},
		{"FORBIDDEN", 403, false, "HTTP 403"},
		{"BADREQ", 400, false, "bad crumb"},
		{"  GOODCODE  ", 200, true, ""},
	}

	for _, tr := range transports {
		t.Run(tr.name, func(t *testing.T) {
			s, transport := tr.make(t)
			e := newTestEngine(t, s, transport, nil)

			for _, tt := range tests {
				t.Run(tt.code, func(t *testing.T) {
					res := e.VerifyCode(context.Background(), tt.code, 1, 1)
					assert.Equal(t, tt.wantStatus, res.HTTPStatus)
					assert.Equal(t, tt.wantSuccess, res.Success)
					assert.Equal(t, tt.wantError, res.Error)
					assert.Equal(t, strings.TrimSpace(tt.code), res.Code)
				})
			}
		})
	}
}

func TestVerifyCode_NonJSONBodyKeptAsText(t *testing.T) {
	s, tr := newHTTPStub(t)
	res := newTestEngine(t, s, tr, nil).VerifyCode(context.Background(), "FORBIDDEN", 1, 1)
	assert.Equal(t, "<html>forbidden</html>", res.Body)
}

func TestVerifyCode_BrowserDOMDoesNotOverrideAPI(t *testing.T) {
	s := testSettings()
	valid := true
	tr := &fixedTransport{resp: Response{Status: 200, Body: []byte(`{"errors":[{"reason":"already redeemed"}]}`), DOMValid: &valid}}

	res := newTestEngine(t, s, tr, nil).VerifyCode(context.Background(), "X", 1, 1)
	assert.False(t, res.Success)
	require.NotNil(t, res.DOMValid)
	assert.True(t, *res.DOMValid)
}

func TestVerifyCode_EmptyCode(t *testing.T) {
	tr := &fixedTransport{}
	slept := false
	e := newTestEngine(t, testSettings(), tr, nil, WithSleep(func(context.Context, time.Duration) error {
		slept = true
		return nil
	}))

	res := e.VerifyCode(context.Background(), "   ", 1, 1)
	assert.Equal(t, "Invalid code: Code cannot be empty", res.Error)
	assert.False(t, res.Success)
	assert.Zero(t, res.HTTPStatus)
	assert.Zero(t, res.DelaySec)
	assert.Zero(t, res.ElapsedMS)
	assert.False(t, slept)
	assert.Zero(t, tr.calls)
}

func TestVerifyCode_TransportErrors(t *testing.T) {
	s := testSettings()
	s.TimeoutSec = 25

	s.Browser.NavigationTimeoutSec = 15
	s.Browser.ResponseTimeoutSec = 10

	tests := []struct {
		name      string
		transport string
		err       error
		want      string
	}{
		{"timeout", TransportHTTP, context.DeadlineExceeded, "Request timeout after 25s"},
		{"no response", TransportBrowser, fmt.Errorf("%w within 10s", browser.ErrNoResponse), "Request timeout after 10s"},
		{"navigation timeout", TransportBrowser, context.DeadlineExceeded, "Request timeout after 15s"},
		{"other", TransportHTTP, errors.New("connection refused"), "Request error: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := *s
			st.Transport = tt.transport
			res := newTestEngine(t, &st, &fixedTransport{err: tt.err}, nil).VerifyCode(context.Background(), "X", 1, 1)
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Error)
			assert.Nil(t, res.Body)
		})
	}
}

func TestVerifyCode_HTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	s := testSettings()
	s.VerifyURL = srv.URL
	s.TimeoutSec = 1
	tr, err := NewHTTPTransport(s, testCreds)
	require.NoError(t, err)

	res := newTestEngine(t, s, tr, nil).VerifyCode(context.Background(), "SLOW", 1, 1)
	assert.Equal(t, "Request timeout after 1s", res.Error)
	assert.Zero(t, res.HTTPStatus)
}

func TestVerifyCode_RetryIsTransparent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	s := testSettings()
	s.VerifyURL = srv.URL
	tr, err := NewHTTPTransport(s, testCreds)
	require.NoError(t, err)

	res := newTestEngine(t, s, tr, nil).VerifyCode(context.Background(), "RETRY", 1, 1)
	assert.True(t, res.Success)
	assert.Equal(t, 200, res.HTTPStatus)
	assert.Equal(t, int32(2), calls.Load())
}

func TestVerifyCode_DelayAndElapsed(t *testing.T) {
	s := testSettings()
	s.MinDelaySec, s.MaxDelaySec = 2, 4

	var slept []time.Duration
	now := time.Unix(1000, 0)
	e := newTestEngine(t, s, &fixedTransport{resp: Response{Status: 200, Body: []byte(`{}`)}}, nil,
		WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			now = now.Add(d)
			return nil
		}),
		WithClock(func() time.Time { return now }),
	)

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		res := e.VerifyCode(context.Background(), "OK", i+1, 200)
		require.GreaterOrEqual(t, res.DelaySec, 2)
		require.LessOrEqual(t, res.DelaySec, 4)
		assert.Equal(t, float64(res.DelaySec*1000), res.ElapsedMS)
		seen[res.DelaySec] = true
	}
	assert.Len(t, seen, 3)
	assert.Len(t, slept, 200)
}

func TestVerifyCode_CancelledDuringDelay(t *testing.T) {
	s := testSettings()
	s.MinDelaySec, s.MaxDelaySec = 5, 5
	tr := &fixedTransport{}
	e := newTestEngine(t, s, tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.VerifyCode(ctx, "OK", 1, 1)
	assert.True(t, strings.HasPrefix(res.Error, "Cancelled: "))
	assert.Equal(t, 5, res.DelaySec)
	assert.Zero(t, tr.calls)
}

func TestVerifyCode_InFlightRequestIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &fixedTransport{
		resp: Response{Status: 200, Body: []byte(`{}`)},
		hook: func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		},
	}

	res := newTestEngine(t, testSettings(), tr, nil).VerifyCode(ctx, "OK", 1, 1)
	assert.True(t, res.Success)
}

func TestVerifyCode_SuccessImpliesCleanResponse(t *testing.T) {
	bodies := []string{``, `{}`, `[]`, `"text"`, `{"errors":[]}`, `{"errors":[{"reason":"x"}]}`, `{"errors":"nope"}`, `not json`}
	statuses := []int{199, 200, 204, 299, 300, 404, 500}

	for _, status := range statuses {
		for _, body := range bodies {
			tr := &fixedTransport{resp: Response{Status: status, Body: []byte(body)}}
			res := newTestEngine(t, testSettings(), tr, nil).VerifyCode(context.Background(), "P", 1, 1)
			if !res.Success {
				assert.NotEmpty(t, res.Error, "status %d body %q", status, body)
				continue
			}
			assert.True(t, status >= 200 && status < 300, "status %d body %q", status, body)
			assert.NotContains(t, body, `"reason"`)
			assert.Empty(t, res.Error)
		}
	}
}

func TestVerifyCode_LogsOneEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s, tr := newHTTPStub(t)
	e := newTestEngine(t, s, tr, zap.New(core))

	e.VerifyCode(context.Background(), "GOODCODE", 3, 7)
	e.VerifyCode(context.Background(), "USEDCODE", 4, 7)

	entries := logs.FilterMessage("code verification").All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "verify", fields["event"])
	assert.Equal(t, "GOODCODE", fields["code"])
	assert.Equal(t, int64(200), fields["status"])
	assert.Equal(t, true, fields["success"])
	assert.Equal(t, int64(3), fields["index"])
	assert.Equal(t, int64(7), fields["total"])
	assert.Contains(t, fields, "elapsed_ms")
	assert.Contains(t, fields, "delay_sec")
	assert.NotContains(t, fields, "error")

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "already redeemed", entries[1].ContextMap()["error"])
}

func TestNewEngine_RejectsInvalidCredentials(t *testing.T) {
	_, err := NewEngine(testSettings(), model.Credentials{ClientID: "cid"}, &fixedTransport{}, nil)
	var verrs model.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Session cannot be empty", verrs["session"])
}

func TestNewEngine_HTTPTransportRequiresCrumb(t *testing.T) {
	s, tr := newHTTPStub(t)
	defer tr.Close()

	_, err := NewEngine(s, model.Credentials{ClientID: "cid", Session: "sess"}, tr, nil)
	var verrs model.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Crumb cannot be empty", verrs["crumb"])
}

// newCrumbServer serves a status page carrying page's markup and a verify
// endpoint that only accepts the crumb "crumb|1".
func newCrumbServer(t *testing.T, page string) *config.Settings {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/yum", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "sess" {
			fmt.Fprint(w, `<html><body>logged out</body></html>`)
			return
		}
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/api/codes/1/verify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code  string `json:"code"`
			Crumb string `json:"crumb"`
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &req)
		if req.Crumb != "crumb|1" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"errors":[{"reason":"bad crumb"}]}`)
			return
		}
		status, body := remote(req.Code)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := testSettings()
	s.Transport = TransportHTTP
	s.YumURL = srv.URL + "/yum"
	s.VerifyURL = srv.URL + "/api/codes/1/verify"
	return s
}

func TestOpen_FetchesMissingCrumb(t *testing.T) {
	s := newCrumbServer(t, `<html><body><div id="pagedata" data-crumb="crumb|1"></div></body></html>`)

	e, err := Open(context.Background(), s, model.Credentials{ClientID: "cid", Session: "sess"}, nil,
		WithSleep(func(context.Context, time.Duration) error { return nil }))
	require.NoError(t, err)
	defer e.Close()

	res := e.VerifyCode(context.Background(), "GOODCODE", 1, 1)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
}

func TestOpen_UnresolvableCrumb(t *testing.T) {
	s := newCrumbServer(t, `<html><body>no crumb here</body></html>`)

	_, err := Open(context.Background(), s, model.Credentials{ClientID: "cid", Session: "sess"}, nil)
	var verrs model.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs["crumb"], "Crumb cannot be empty")
}

func TestEngine_CloseIdempotent(t *testing.T) {
	form := &stubForm{}
	s := testSettings()
	e, err := NewEngine(s, testCreds, newBrowserTransport(form, s), nil)
	require.NoError(t, err)

	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())
	assert.Equal(t, int32(1), form.closed.Load())
}

// fixedTransport returns the same response for every code.
type fixedTransport struct {
	resp  Response
	err   error
	calls int
	hook  func(ctx context.Context) error
}

func (f *fixedTransport) Verify(ctx context.Context, _, _ string) (Response, error) {
	f.calls++
	if f.hook != nil {
		if err := f.hook(ctx); err != nil {
			return Response{}, err
		}
	}
	return f.resp, f.err
}

func (f *fixedTransport) Close() error { return nil }
