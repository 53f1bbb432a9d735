package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SARVESHVARADKAR123/notifier/internal/notify"
	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"go.uber.org/zap"
)

var ErrInvalidEvent = errors.New("dispatcher: invalid event")

// Notifier is the delivery side of the registry.
type Notifier interface {
	SendNotification(ctx context.Context, userKey string, payload any) (bool, error)
	UpdateUnreadCount(ctx context.Context, userKey string, count int) bool
}

// Event is published upstream once a notification record is persisted or an
// unread tally is recomputed.
type Event struct {
	Type  string          `json:"type"`
	User  string          `json:"user"`
	Data  json.RawMessage `json:"data,omitempty"`
	Count *int            `json:"count,omitempty"`
}

type Dispatcher struct {
	notifier Notifier
}

func New(notifier Notifier) *Dispatcher {
	return &Dispatcher{notifier: notifier}
}

// Handle consumes one raw record. Bad records are logged and dropped so a
// single poison message never stalls the partition.
func (d *Dispatcher) Handle(ctx context.Context, record []byte) {
	log := observability.GetLogger(ctx)

	var ev Event
	if err := json.Unmarshal(record, &ev); err != nil {
		log.Error("dispatcher: error unmarshaling event", zap.Error(err))
		observability.EventsConsumedTotal.WithLabelValues("invalid").Inc()
		return
	}

	delivered, err := d.Dispatch(ctx, ev)
	switch {
	case errors.Is(err, ErrInvalidEvent):
		log.Warn("dispatcher: dropping event", zap.String("type", ev.Type), zap.Error(err))
		observability.EventsConsumedTotal.WithLabelValues("invalid").Inc()
	case err != nil:
		log.Error("dispatcher: delivery error", zap.String("type", ev.Type), zap.Error(err))
		observability.EventsConsumedTotal.WithLabelValues("error").Inc()
	case delivered:
		observability.EventsConsumedTotal.WithLabelValues(observability.ResultDelivered).Inc()
	default:
		log.Debug("dispatcher: user offline", zap.String("user", notify.NormalizeKey(ev.User)))
		observability.EventsConsumedTotal.WithLabelValues(observability.ResultOffline).Inc()
	}
}

// Dispatch routes ev to the matching delivery operation.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (bool, error) {
	if strings.TrimSpace(ev.User) == "" {
		return false, fmt.Errorf("%w: missing user", ErrInvalidEvent)
	}

	switch ev.Type {
	case notify.KindNotification:
		if len(ev.Data) == 0 {
			return false, fmt.Errorf("%w: notification without data", ErrInvalidEvent)
		}
		return d.notifier.SendNotification(ctx, ev.User, ev.Data)
	case notify.KindUnreadCount:
		if ev.Count == nil || *ev.Count < 0 {
			return false, fmt.Errorf("%w: unread count missing or negative", ErrInvalidEvent)
		}
		return d.notifier.UpdateUnreadCount(ctx, ev.User, *ev.Count), nil
	default:
		return false, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	}
}
