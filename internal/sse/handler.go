package sse

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/notify"
	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"go.uber.org/zap"
)

const transportLabel = "sse"

type Handler struct {
	registry  *notify.Registry
	queueSize int
	heartbeat time.Duration
}

func NewHandler(registry *notify.Registry, queueSize int, heartbeat time.Duration) *Handler {
	return &Handler{
		registry:  registry,
		queueSize: queueSize,
		heartbeat: heartbeat,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	log := observability.GetLogger(r.Context()).With(zap.String("user", notify.NormalizeKey(user)))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := NewStream(h.queueSize)
	connID := h.registry.Register(user, stream)
	observability.StreamConnectionsActive.WithLabelValues(transportLabel).Inc()
	log.Info("sse stream opened", zap.String("connection_id", connID))

	defer func() {
		h.registry.Unregister(user, connID)
		stream.Close()
		observability.StreamConnectionsActive.WithLabelValues(transportLabel).Dec()
		log.Info("sse stream closed", zap.String("connection_id", connID))
	}()

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-stream.Frames():
			if err := writeEvent(w, frame); err != nil {
				log.Warn("sse write failed", zap.String("connection_id", connID), zap.Error(err))
				return
			}
			flusher.Flush()
		case <-tick:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				log.Debug("sse heartbeat failed", zap.String("connection_id", connID), zap.Error(err))
				return
			}
			flusher.Flush()
		case <-stream.Done():
			log.Warn("sse stream dropped by registry", zap.String("connection_id", connID))
			return
		case <-r.Context().Done():
			return
		}
	}
}

var typePrefix = []byte(`{"type":"`)

// writeEvent frames one envelope, naming the SSE event after its type.
func writeEvent(w io.Writer, frame []byte) error {
	if name := eventType(frame); name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", frame)
	return err
}

// eventType reads the type field that notify.Envelope always encodes first.
func eventType(frame []byte) string {
	if !bytes.HasPrefix(frame, typePrefix) {
		return ""
	}
	rest := frame[len(typePrefix):]
	end := bytes.IndexByte(rest, '"')
	if end <= 0 {
		return ""
	}
	return string(rest[:end])
}
