package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	ioutils "github.com/handiism/bandcamp-verificator/internal/io"
	"github.com/handiism/bandcamp-verificator/internal/model"
	"github.com/handiism/bandcamp-verificator/internal/verify"
)

// statusCSRFMismatch is the non-standard "Page Expired" code used for a
// missing or wrong CSRF token.
const statusCSRFMismatch = 419

type credentialFields struct {
	Crumb    string `json:"crumb,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Session  string `json:"session,omitempty"`
	Identity string `json:"identity,omitempty"`
}

type verifyRequest struct {
	CSRFToken string `json:"csrf_token"`
	Code      string `json:"code"`
	Index     int    `json:"index" validate:"gte=0"`
	Total     int    `json:"total" validate:"gte=0"`
	credentialFields
}

type extractRequest struct {
	CSRFToken string `json:"csrf_token"`
	Browser   string `json:"browser" validate:"omitempty,oneof=chrome firefox edge chromium"`
}

type extractResponse struct {
	OK          bool              `json:"ok"`
	Credentials model.Credentials `json:"credentials"`
	Message     string            `json:"message"`
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}

	sess := s.sessions.ensure(id)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.settings.Server.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": sess.csrf})
}

// authorize checks the CSRF token against the caller's session cookie and
// writes a 419 response on mismatch. With CSRF disabled any caller passes,
// with or without a session.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, token string) (session, bool) {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}

	if !s.settings.Server.CSRFEnabled {
		sess, _ := s.sessions.lookup(id)
		return sess, true
	}

	sess, ok := s.sessions.check(id, token)
	if !ok {
		s.logger.Warn("csrf token mismatch", zap.String("remote", clientIP(r)))
		writeError(w, statusCSRFMismatch, "CSRF token missing or invalid")
		return session{}, false
	}
	return sess, true
}

// resolveCredentials fills blank request fields from the session's
// extracted credentials, then from the configured ones.
func (s *Server) resolveCredentials(req credentialFields, sess session) model.Credentials {
	cfg := s.settings.ToCredentials()
	pick := func(vals ...string) string {
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}
	return model.Credentials{
		ClientID: pick(req.ClientID, sess.creds.ClientID, cfg.ClientID),
		Session:  pick(req.Session, sess.creds.Session, cfg.Session),
		Identity: pick(req.Identity, sess.creds.Identity, cfg.Identity),
		Crumb:    pick(req.Crumb, sess.creds.Crumb, cfg.Crumb),
	}
}

func (s *Server) openEngine(creds model.Credentials) func(context.Context) (*verify.Engine, error) {
	return func(ctx context.Context) (*verify.Engine, error) {
		transport, err := s.newTransport(context.WithoutCancel(ctx), s.settings, creds)
		if err != nil {
			return nil, err
		}
		e, err := verify.NewEngine(s.settings, creds, transport, s.logger, s.engineOpts...)
		if err != nil {
			transport.Close()
			return nil, err
		}
		return e, nil
	}
}

func (s *Server) writeValidation(w http.ResponseWriter, err error) {
	var verrs model.ValidationErrors
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
	case errors.As(err, &fieldErrs):
		verrs = model.ValidationErrors{}
		for _, fe := range fieldErrs {
			verrs[strings.ToLower(fe.Field())] = fmt.Sprintf("failed %q check", fe.Tag())
		}
	default:
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusBadRequest, validationResponse{Error: "validation failed", Fields: verrs})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if !s.verifyLimit.allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, ok := s.authorize(w, r, req.CSRFToken)
	if !ok {
		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.writeValidation(w, err)
		return
	}

	codes := ioutils.SanitizeCodes(req.Code, s.settings.MaxCodeLength)
	if len(codes) == 0 {
		s.writeValidation(w, model.ValidationErrors{"code": model.ValidateCode("")})
		return
	}

	creds := s.resolveCredentials(req.credentialFields, sess)
	if err := creds.Validate(s.settings.ToLimits(), s.requireCrumb()); err != nil {
		s.writeValidation(w, err)
		return
	}

	index, total := req.Index, req.Total
	if index == 0 {
		index = 1
	}
	if total == 0 {
		total = 1
	}

	var res model.VerificationResult
	err := s.engines.with(r.Context(), engineKey(sess.id, creds.Crumb, creds.ClientID), s.openEngine(creds), func(e *verify.Engine) {
		res = e.VerifyCode(r.Context(), codes[0], index, total)
	})
	if err != nil {
		s.logger.Error("engine unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAutoExtract(w http.ResponseWriter, r *http.Request) {
	if !s.extractLimit.allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req extractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, ok := s.authorize(w, r, req.CSRFToken)
	if !ok {
		return
	}

	req.Browser = strings.ToLower(strings.TrimSpace(req.Browser))
	if err := s.validate.Struct(req); err != nil {
		s.writeValidation(w, err)
		return
	}

	res := s.extractor.AutoExtract(r.Context(), req.Browser)
	resp := extractResponse{OK: res.Success, Credentials: res.Credentials, Message: res.Message()}
	if !res.Success {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	if sess.id != "" {
		s.sessions.setCredentials(sess.id, res.Credentials)
	}
	writeJSON(w, http.StatusOK, resp)
}
