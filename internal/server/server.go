package server

import (
	"context"
	"net/http"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"go.uber.org/zap"
)

type Server struct {
	httpServer *http.Server
}

// New builds the HTTP server for long-lived streams, so there is no write
// timeout. Slow header reads are still bounded.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	observability.Log.Info("starting server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	observability.Log.Info("shutting down server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.Shutdown(ctx)
}
