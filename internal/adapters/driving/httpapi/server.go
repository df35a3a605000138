// Package httpapi serves quill over HTTP with a chi router.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/custodia-labs/quill/internal/core/ports/driving"
	"github.com/custodia-labs/quill/internal/metrics"
)

// ErrMissingRetrievalService is returned when Ports has no retrieval service.
var ErrMissingRetrievalService = errors.New("retrieval service is required")

const shutdownTimeout = 10 * time.Second

// Ports are the services the API exposes. Articles and Index are optional;
// their routes answer 501 when unset.
type Ports struct {
	Retrieval driving.RetrievalService
	Articles  driving.ArticleService
	Index     driving.IndexService

	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// Options tune the server.
type Options struct {
	APIKeys []string
	Logger  *zap.Logger
}

// Server is the quill HTTP API.
type Server struct {
	ports  Ports
	logger *zap.Logger
	router chi.Router
}

// NewServer builds the router.
func NewServer(ports Ports, opts Options) (*Server, error) {
	if ports.Retrieval == nil {
		return nil, ErrMissingRetrievalService
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{ports: ports, logger: log}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(log))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(bearerAuth(opts.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/retrieve", s.handleRetrieve)
		r.Get("/status", s.handleStatus)
		r.Post("/rebuild", s.handleRebuild)

		r.Get("/articles", s.handleListArticles)
		// Article ids may contain slashes, so the id is the wildcard tail.
		r.Get("/articles/*", s.handleGetArticle)
		r.Put("/articles/*", s.handlePutArticle)
		r.Delete("/articles/*", s.handleDeleteArticle)
		r.Post("/articles/*", s.handleIndexArticle)
	})

	if ports.MCP != nil {
		r.Mount("/mcp", ports.MCP)
	}

	s.router = r
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error during shutdown", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
