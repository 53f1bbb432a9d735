package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/notify"
	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const transportLabel = "websocket"

type Handler struct {
	registry  *notify.Registry
	queueSize int
}

func NewHandler(registry *notify.Registry, queueSize int) *Handler {
	return &Handler{
		registry:  registry,
		queueSize: queueSize,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}

	log := observability.GetLogger(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("upgrade error", zap.Error(err))
		return
	}

	session := NewSession(notify.NormalizeKey(user), conn, h.queueSize)
	session.SetConnID(h.registry.Register(user, session))
	session.Start()

	log.Info("websocket connected", zap.String("user", session.UserKey), zap.String("connection_id", session.ConnID()))
	observability.StreamConnectionsActive.WithLabelValues(transportLabel).Inc()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.readLoop(session)
}

// readLoop discards client frames; its only job is noticing the close.
func (h *Handler) readLoop(s *Session) {
	defer func() {
		h.registry.Unregister(s.UserKey, s.ConnID())
		s.Close()
		observability.Log.Info("websocket disconnected", zap.String("user", s.UserKey), zap.String("connection_id", s.ConnID()))
		observability.StreamConnectionsActive.WithLabelValues(transportLabel).Dec()
	}()

	for {
		if _, _, err := s.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				observability.Log.Error("read loop error", zap.String("user", s.UserKey), zap.Error(err))
			}
			return
		}
	}
}
