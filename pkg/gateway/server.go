package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/acme/autocert"

	"github.com/lkarlslund/claude-gateway/pkg/configcell"
	"github.com/lkarlslund/claude-gateway/pkg/debugstream"
	"github.com/lkarlslund/claude-gateway/pkg/stats"
)

// Server owns the chi router, the gateway HTTP handler, and the debug
// websocket hub, and drives their shared lifecycle (listen, drain, shut
// down) the way the teacher's proxy.Server does, minus everything that
// Server carried for admin auth and provider health polling.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger
}

// Options configures the listener the server binds.
type Options struct {
	ListenAddr string
	// AutocertDomain, when non-empty, switches ListenAndServe to a TLS
	// listener backed by golang.org/x/crypto/acme/autocert instead of plain
	// HTTP — optional, per §4.L.
	AutocertDomain string
	AutocertCache  string
}

func NewServer(cell *configcell.Cell, registry *stats.Registry, logger *log.Logger, opts Options) *Server {
	handler := NewHandler(cell, registry, logger)
	hub := debugstream.NewHub(registry, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/claude/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/claude/debug/stream", hub.ServeWS)
	// Everything else under /claude/ reaches the gateway handler, which
	// derives the upstream path suffix from the matched wildcard, per §6.
	r.Post("/claude/*", handler.ServeMessages)

	httpServer := &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	if opts.AutocertDomain != "" {
		mgr := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(opts.AutocertDomain),
			Cache:      autocert.DirCache(opts.AutocertCache),
		}
		httpServer.TLSConfig = mgr.TLSConfig()
	}

	return &Server{httpServer: httpServer, logger: logger}
}

// Run blocks serving HTTP (or HTTPS, if autocert is configured) until ctx
// is cancelled, then drains connections with a bounded grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.httpServer.Addr)
		var err error
		if s.httpServer.TLSConfig != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func requestLogMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
