// Package presence mirrors registry online/offline transitions into Redis.
// It is advisory: delivery never consults it.
package presence

import (
	"context"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"go.uber.org/zap"
)

// ConnectionCounter is satisfied by *notify.Registry.
type ConnectionCounter interface {
	ConnectionCount(userKey string) int
	UserKeys() []string
}

type transition struct {
	user   string
	status Status
}

// Tracker implements notify.Observer. Transitions are queued without
// blocking and applied to the store by Run.
type Tracker struct {
	store   Store
	queue   chan transition
	refresh time.Duration

	// owned by the Run goroutine
	online map[string]struct{}
}

func NewTracker(store Store, queueSize int, refresh time.Duration) *Tracker {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Tracker{
		store:   store,
		queue:   make(chan transition, queueSize),
		refresh: refresh,
		online:  make(map[string]struct{}),
	}
}

func (t *Tracker) UserOnline(userKey string) {
	t.enqueue(transition{user: userKey, status: StatusOnline})
}

func (t *Tracker) UserOffline(userKey string) {
	t.enqueue(transition{user: userKey, status: StatusOffline})
}

func (t *Tracker) enqueue(tr transition) {
	select {
	case t.queue <- tr:
	default:
		observability.PresenceTransitionsDropped.Inc()
		observability.Log.Warn("presence: queue full, dropping transition",
			zap.String("user", tr.user),
			zap.String("status", string(tr.status)),
		)
	}
}

// Run applies queued transitions until ctx ends. Every refresh interval it
// extends the TTL of online users and reconciles against counts, which
// repairs transitions of either kind lost to a full queue.
func (t *Tracker) Run(ctx context.Context, counts ConnectionCounter) {
	log := observability.GetLogger(ctx)

	var tick <-chan time.Time
	if t.refresh > 0 {
		ticker := time.NewTicker(t.refresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case tr := <-t.queue:
			t.apply(ctx, tr)
		case <-tick:
			t.reconcile(ctx, counts)
			if err := t.store.Refresh(ctx, t.onlineUsers()); err != nil {
				log.Error("presence: refresh failed", zap.Error(err))
			}
		}
	}
}

func (t *Tracker) apply(ctx context.Context, tr transition) {
	if tr.status == StatusOnline {
		t.online[tr.user] = struct{}{}
	} else {
		delete(t.online, tr.user)
	}
	if err := t.store.SetStatus(ctx, tr.user, tr.status); err != nil {
		observability.GetLogger(ctx).Error("presence: fail to set status",
			zap.String("user", tr.user),
			zap.String("status", string(tr.status)),
			zap.Error(err),
		)
	}
}

func (t *Tracker) reconcile(ctx context.Context, counts ConnectionCounter) {
	if counts == nil {
		return
	}
	for _, user := range t.onlineUsers() {
		if counts.ConnectionCount(user) == 0 {
			t.apply(ctx, transition{user: user, status: StatusOffline})
		}
	}
	for _, user := range counts.UserKeys() {
		if _, ok := t.online[user]; !ok {
			t.apply(ctx, transition{user: user, status: StatusOnline})
		}
	}
}

func (t *Tracker) onlineUsers() []string {
	out := make([]string, 0, len(t.online))
	for u := range t.online {
		out = append(out, u)
	}
	return out
}
