package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	// Runs are long, so responses may take a while.
	defaultWriteTimeout    = 30 * time.Minute
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// HTTPServer serves an MCP server over streamable HTTP, optionally behind OAuth.
type HTTPServer struct {
	endpoint   string
	mux        *http.ServeMux
	oauth      *oauthLayer
	httpServer *http.Server
}

// NewHTTPServer builds the routes for mcpSrv. oauthCfg is nil for an
// unauthenticated server.
func NewHTTPServer(mcpSrv *mcpserver.MCPServer, endpoint string, oauthCfg *OAuthConfig) (*HTTPServer, error) {
	s := &HTTPServer{endpoint: endpoint, mux: http.NewServeMux()}

	mcpHandler := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(endpoint),
	)

	if oauthCfg != nil {
		layer, err := newOAuthLayer(*oauthCfg)
		if err != nil {
			return nil, err
		}
		s.oauth = layer
		layer.register(s.mux, endpoint, mcpHandler)
	} else {
		s.mux.Handle(endpoint, mcpHandler)
	}

	// Unauthenticated.
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return s, nil
}

// Handler returns the routes of the server.
func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Serve(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	slog.Info("starting MCP HTTP server", "addr", addr, "endpoint", s.endpoint, "oauth", s.oauth != nil)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
		defer cancel()
		if s.oauth != nil {
			s.oauth.shutdown(shutdownCtx)
		}
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	slog.Info("HTTP server stopped")
	return nil
}
