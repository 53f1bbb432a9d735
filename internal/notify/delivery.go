package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"go.uber.org/zap"
)

// Envelope kinds.
const (
	KindNotification = "notification"
	KindUnreadCount  = "unreadCount"
)

var ErrEncodePayload = errors.New("notify: payload is not JSON-serializable")

// Envelope is the tagged frame written to every connection.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func encodeEnvelope(kind string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Type: kind, Data: data})
}

// SendNotification pushes payload to every open connection of userKey. It
// reports whether at least one connection accepted the frame. The error is
// non-nil only when payload cannot be encoded, in which case nothing is sent.
func (r *Registry) SendNotification(ctx context.Context, userKey string, payload any) (bool, error) {
	frame, err := encodeEnvelope(KindNotification, payload)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrEncodePayload, err)
	}
	return r.deliver(ctx, NormalizeKey(userKey), KindNotification, frame), nil
}

// UpdateUnreadCount pushes the user's current unread tally.
func (r *Registry) UpdateUnreadCount(ctx context.Context, userKey string, count int) bool {
	// an int always encodes
	frame, _ := encodeEnvelope(KindUnreadCount, count)
	return r.deliver(ctx, NormalizeKey(userKey), KindUnreadCount, frame)
}

func (r *Registry) deliver(ctx context.Context, key, kind string, frame []byte) bool {
	log := r.log.With(zap.String("user", key), zap.String("kind", kind))

	targets := r.targets(key)
	if len(targets) == 0 {
		log.Info("no open connections, skipping push")
		observability.DeliveriesTotal.WithLabelValues(kind, observability.ResultOffline).Inc()
		return false
	}

	var failed []*Connection
	delivered := 0
	for _, c := range targets {
		if err := c.Sink.Write(ctx, frame); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				// caller gave up; the connection itself is fine
				log.Debug("write aborted by caller", zap.String("connection_id", c.ID), zap.Error(err))
				continue
			}
			log.Warn("write failed, evicting connection", zap.String("connection_id", c.ID), zap.Error(err))
			failed = append(failed, c)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		r.evict(key, kind, failed)
	}

	if delivered == 0 {
		observability.DeliveriesTotal.WithLabelValues(kind, observability.ResultFailed).Inc()
		return false
	}

	log.Debug("push delivered", zap.Int("delivered", delivered), zap.Int("attempted", len(targets)))
	observability.DeliveriesTotal.WithLabelValues(kind, observability.ResultDelivered).Inc()
	return true
}

// evict removes connections whose write failed during a sweep. Records
// replaced or unregistered in the meantime are left alone.
func (r *Registry) evict(key, kind string, failed []*Connection) {
	evicted := 0
	remaining := 0

	r.mu.Lock()
	for _, c := range failed {
		var removed bool
		removed, remaining = r.removeLocked(key, c.ID, c)
		if removed {
			evicted++
		}
	}
	r.mu.Unlock()

	if evicted == 0 {
		return
	}

	observability.RegistryConnections.Sub(float64(evicted))
	observability.EvictionsTotal.WithLabelValues(kind).Add(float64(evicted))
	r.log.Info("evicted broken connections",
		zap.String("user", key),
		zap.Int("evicted", evicted),
		zap.Int("active_connections", remaining),
	)
	r.dump()
}
