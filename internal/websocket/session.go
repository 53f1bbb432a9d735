package websocket

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	ErrSessionClosed = errors.New("websocket: session closed")
	ErrBackpressure  = errors.New("websocket: send queue overflow")
)

// Session is one browser tab or device connected over WebSocket.
type Session struct {
	UserKey string

	Conn      *websocket.Conn
	SendQueue chan []byte
	done      chan struct{}
	closed    atomic.Int32

	// set after Register, while deliveries may already be writing
	connID atomic.Pointer[string]
}

func NewSession(userKey string, conn *websocket.Conn, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Session{
		UserKey:   userKey,
		Conn:      conn,
		SendQueue: make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
}

func (s *Session) SetConnID(id string) {
	s.connID.Store(&id)
}

func (s *Session) ConnID() string {
	if id := s.connID.Load(); id != nil {
		return *id
	}
	return ""
}

func (s *Session) Start() {
	go s.writeLoop()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Write queues frame without blocking; a full queue drops the connection.
func (s *Session) Write(_ context.Context, frame []byte) error {
	if s.closed.Load() == 1 {
		return ErrSessionClosed
	}
	select {
	case s.SendQueue <- frame:
		return nil
	default:
		s.CloseWithReason(websocket.CloseInternalServerErr, "backpressure overflow")
		return ErrBackpressure
	}
}

func (s *Session) Close() {
	s.CloseWithReason(websocket.CloseNormalClosure, "server closing")
}

func (s *Session) CloseWithReason(code int, reason string) {
	if !s.closed.CompareAndSwap(0, 1) {
		return
	}

	observability.Log.Debug("websocket session closing",
		zap.String("user", s.UserKey),
		zap.String("connection_id", s.ConnID()),
		zap.Int("code", code),
		zap.String("reason", reason),
	)
	close(s.done)

	if s.Conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = s.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		s.Conn.Close()
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case msg := <-s.SendQueue:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				observability.Log.Warn("websocket write error",
					zap.String("user", s.UserKey),
					zap.String("connection_id", s.ConnID()),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
