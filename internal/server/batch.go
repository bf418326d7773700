package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	ioutils "github.com/handiism/bandcamp-verificator/internal/io"
	"github.com/handiism/bandcamp-verificator/internal/model"
	"github.com/handiism/bandcamp-verificator/internal/verify"
)

const batchRequestWait = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type batchRequest struct {
	Codes []string `json:"codes"`
	credentialFields
}

type progressMessage struct {
	Type   string                   `json:"type"`
	Done   int                      `json:"done"`
	Total  int                      `json:"total"`
	Result model.VerificationResult `json:"result"`
}

type doneMessage struct {
	Type      string `json:"type"`
	Processed int    `json:"processed"`
	Requested int    `json:"requested"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleBatch streams a batch over a websocket. The CSRF token comes from
// the query string since browsers cannot set headers on the handshake.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorize(w, r, r.URL.Query().Get("csrf_token"))
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var req batchRequest
	conn.SetReadDeadline(time.Now().Add(batchRequestWait))
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Debug("batch request not received", zap.Error(err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	codes := ioutils.SanitizeCodes(strings.Join(req.Codes, "\n"), s.settings.MaxCodeLength)
	creds := s.resolveCredentials(req.credentialFields, sess)
	if msg := s.checkBatch(codes, creds); msg != "" {
		conn.WriteJSON(errorMessage{Type: "error", Error: msg})
		return
	}

	// The reader only notices a disconnect; the batch checks the flag
	// before each code.
	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				stop.Store(true)
				return
			}
		}
	}()
	defer wg.Wait()
	defer conn.Close()

	shouldStop := func() bool {
		select {
		case <-s.stopping:
			return true
		default:
			return stop.Load()
		}
	}

	onProgress := func(done, total int, res model.VerificationResult) {
		if err := conn.WriteJSON(progressMessage{Type: "progress", Done: done, Total: total, Result: res}); err != nil {
			stop.Store(true)
		}
	}

	var results []model.VerificationResult
	err = s.engines.with(r.Context(), engineKey(sess.id, creds.Crumb, creds.ClientID), s.openEngine(creds), func(e *verify.Engine) {
		results = e.VerifyBatch(r.Context(), codes, onProgress, shouldStop)
	})
	if err != nil {
		s.logger.Error("engine unavailable", zap.Error(err))
		conn.WriteJSON(errorMessage{Type: "error", Error: err.Error()})
		return
	}

	if !stop.Load() {
		conn.WriteJSON(doneMessage{Type: "done", Processed: len(results), Requested: len(codes)})
	}
}

func (s *Server) checkBatch(codes []string, creds model.Credentials) string {
	switch {
	case len(codes) == 0:
		return "no codes provided"
	case len(codes) > s.settings.MaxCodes:
		return fmt.Sprintf("too many codes: %d (max %d)", len(codes), s.settings.MaxCodes)
	}
	if err := creds.Validate(s.settings.ToLimits(), s.requireCrumb()); err != nil {
		return err.Error()
	}
	return ""
}

// requireCrumb reports whether requests must carry a crumb. The browser
// transport reads it from the rendered form instead.
func (s *Server) requireCrumb() bool {
	return s.settings.Transport != verify.TransportBrowser
}
