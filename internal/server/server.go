package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/handiism/bandcamp-verificator/internal/config"
	"github.com/handiism/bandcamp-verificator/internal/extract"
	"github.com/handiism/bandcamp-verificator/internal/model"
	"github.com/handiism/bandcamp-verificator/internal/verify"
)

// Version is reported by /api/health.
var Version = "dev"

// TransportFactory builds the transport for a new engine.
type TransportFactory func(ctx context.Context, settings *config.Settings, creds model.Credentials) (verify.Transport, error)

// Extractor is the credential extraction used by /api/auto-extract.
type Extractor interface {
	AutoExtract(ctx context.Context, hint string) extract.Result
}

// Option configures a Server.
type Option func(*Server)

// WithTransportFactory replaces verify.NewTransport.
func WithTransportFactory(f TransportFactory) Option {
	return func(s *Server) { s.newTransport = f }
}

// WithExtractor replaces the cookie jar extractor.
func WithExtractor(e Extractor) Option {
	return func(s *Server) { s.extractor = e }
}

// WithEngineOptions passes options to every engine the server creates.
func WithEngineOptions(opts ...verify.Option) Option {
	return func(s *Server) { s.engineOpts = opts }
}

// WithClock replaces time.Now for session and engine expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server manages the HTTP server and routes.
type Server struct {
	settings  *config.Settings
	logger    *zap.Logger
	validate  *validator.Validate
	extractor Extractor

	newTransport TransportFactory
	engineOpts   []verify.Option
	now          func() time.Time

	sessions     *sessionStore
	engines      *engineCache
	verifyLimit  *ipLimiter
	extractLimit *ipLimiter
	router       *http.ServeMux
	server       *http.Server

	// stopping is closed by Shutdown so websocket batches, which the
	// http.Server no longer tracks, stop before their next code.
	stopping     chan struct{}
	stoppingOnce sync.Once
}

// New creates a Server for settings.
func New(settings *config.Settings, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		settings:     settings,
		logger:       logger,
		validate:     validator.New(),
		newTransport: defaultTransport,
		now:          time.Now,
		stopping:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = extract.FromSettings(settings, false, logger)
	}

	s.sessions = newSessionStore(sessionTTL, s.now)
	s.engines = newEngineCache(engineTTL, s.now, logger)
	s.verifyLimit = newIPLimiter(settings.Server.VerifyPerMinute)
	s.extractLimit = newIPLimiter(settings.Server.ExtractPerMinute)
	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.withMiddleware(s.router),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func defaultTransport(ctx context.Context, settings *config.Settings, creds model.Credentials) (verify.Transport, error) {
	return verify.NewTransport(ctx, settings, creds)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for running ones and closes
// every cached engine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.stoppingOnce.Do(func() { close(s.stopping) })

	err := s.server.Shutdown(ctx)
	s.engines.closeAll()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
