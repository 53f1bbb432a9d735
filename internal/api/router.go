package api

import (
	"net/http"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	ServiceName       string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter mounts the client-facing push transports and the internal API
// used by server actions.
func NewRouter(h *Handler, stream, ws http.Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.MetricsMiddleware(cfg.ServiceName))
	r.Use(Recovery())

	r.Get("/notifications/stream", stream.ServeHTTP)
	r.Get("/notifications/ws", ws.ServeHTTP)

	r.Route("/internal", func(p chi.Router) {
		if cfg.RateLimitRequests > 0 {
			p.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		p.Post("/notifications", h.SendNotification)
		p.Post("/unread-count", h.UpdateUnreadCount)
		p.Get("/connections", h.Connections)
		p.Get("/connections/{user}", h.ConnectionCount)
	})

	return otelhttp.NewHandler(r, cfg.ServiceName)
}
