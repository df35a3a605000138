package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/custodia-labs/quill/internal/logger"
)

const (
	// Name is the implementation name reported during initialisation.
	Name = "quill"

	// Version is the MCP server version.
	Version = "0.1.0"

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server exposes retrieval and the article store over MCP.
type Server struct {
	ports  *Ports
	server *mcp.Server
	logger *zap.Logger
}

// NewServer creates an MCP server over the given ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports:  ports,
		logger: logger.L().Named("mcp"),
	}
	s.server = mcp.NewServer(
		&mcp.Implementation{Name: Name, Version: Version},
		&mcp.ServerOptions{Instructions: instructions(ports)},
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// instructions tells the client what the server offers. Only tools that
// are actually registered are mentioned.
func instructions(ports *Ports) string {
	var b strings.Builder
	b.WriteString("Quill retrieves story context for a query. ")
	b.WriteString("Call retrieve with the scene text; it returns character cards, setting cards and passages ")
	b.WriteString("that fit in max_chars. When next_cursor is set, call again with that cursor for more passages.")
	if ports.Index != nil {
		b.WriteString(" index_status reports whether recent edits are still being indexed.")
	}
	if ports.Articles != nil {
		b.WriteString(" Article markdown is readable at " + articlePrefix + "{id} and its indexed chunks at " + chunksPrefix + "{id}.")
	}
	return b.String()
}

// Run serves over stdio until the context is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Debug("serving over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until the context
// is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("MCP HTTP server starting", zap.String("addr", addr))
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
	s.logger.Info("MCP HTTP server stopped")
	return nil
}

// Handler returns the streamable HTTP handler so the API server can mount it.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}
