// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package server assembles the passkey login subsystem into an HTTP
// server: stores, ceremony engine, session issuer, routes, and
// middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/passkey/sqlite"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey/pkg/session"
)

// Server hosts the passkey ceremony endpoints.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	http     *http.Server
	limiter  *ratelimit.Limiter
	store    *sqlite.Store // nil for the memory backend
	sweepTTL time.Duration
}

// New builds a Server from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger := newLogger(cfg.Logging)

	identities := passkey.NewMemoryIdentityStore()
	for _, seed := range cfg.Identities {
		identities.Add(passkey.NewDefaultIdentityFromEmail(seed.Email, seed.DisplayName, seed.Role))
	}

	var (
		challenges passkey.ChallengeStore
		creds      passkey.CredentialStore
		store      *sqlite.Store
	)
	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		var err error
		store, err = sqlite.Open(cfg.Storage.DSN, sqlite.WithChallengeTTL(cfg.Storage.ChallengeTTL))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		challenges = store
		creds = store
	default:
		challenges = passkey.NewMemoryChallengeStoreWithTTL(cfg.Storage.ChallengeTTL)
		creds = passkey.NewMemoryCredentialStore()
	}

	var issuer passkey.SessionIssuer
	secret, err := cfg.SessionSecret()
	if err != nil {
		return nil, err
	}
	if secret != nil {
		jwtIssuer, err := session.NewIssuer(&session.IssuerConfig{
			Key:              secret,
			Issuer:           cfg.Session.Issuer,
			Audience:         cfg.Session.Audience,
			LoginTTL:         cfg.Session.LoginTTL,
			ImpersonationTTL: cfg.Session.ImpersonationTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("session issuer: %w", err)
		}
		issuer = jwtIssuer
	}

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config:          &cfg.RelyingParty,
		IdentityStore:   identities,
		ChallengeStore:  challenges,
		CredentialStore: creds,
		SessionIssuer:   issuer,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("ceremony engine: %w", err)
	}

	limiter := ratelimit.New(&cfg.RateLimit)
	handler := passkeyhttp.NewHandler(svc).WithLogger(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/passkey", func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter))
		passkeyhttp.MountChi(r, handler)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		limiter:  limiter,
		store:    store,
		sweepTTL: cfg.Storage.ChallengeTTL,
	}, nil
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.store != nil {
		go s.sweepChallenges(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.limiter.Stop()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
	}
	return nil
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// sweepChallenges periodically removes expired challenge rows from the
// shared store.
func (s *Server) sweepChallenges(ctx context.Context) {
	ticker := time.NewTicker(s.sweepTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.SweepExpiredChallenges(ctx, time.Now()); err != nil && ctx.Err() == nil {
				s.logger.Warn("challenge sweep failed", "error", err)
			}
		}
	}
}

// newLogger builds an slog.Logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// requestLogger logs each request with its outcome.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
