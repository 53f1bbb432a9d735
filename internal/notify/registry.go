// Package notify tracks the live push connections of every user and
// delivers notification envelopes to them.
package notify

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink accepts outbound frames for exactly one connection. The transport
// that opened the connection owns the sink. The registry only closes it in
// CloseAll, and only when the sink has a Close method.
type Sink interface {
	Write(ctx context.Context, frame []byte) error
}

// Observer is told when a user gains a first connection or loses the last
// one. Calls are made with the registry lock held, so implementations must
// not block or call back into the registry.
type Observer interface {
	UserOnline(userKey string)
	UserOffline(userKey string)
}

type Connection struct {
	ID        string
	Sink      Sink
	CreatedAt time.Time
}

// ConnectionInfo is the diagnostic view of a Connection.
type ConnectionInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type UserConnections struct {
	UserKey     string           `json:"user"`
	Connections []ConnectionInfo `json:"connections"`
}

type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]*Connection

	log      *zap.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

type Option func(*Registry)

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

// New creates an empty registry. One instance is shared by every handler in
// the process.
func New(opts ...Option) *Registry {
	r := &Registry{
		users: make(map[string]map[string]*Connection),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = observability.GetLogger(context.Background())
	}
	r.log = r.log.Named("registry")
	return r
}

// NormalizeKey folds a user identity (usually an email) to its registry key.
func NormalizeKey(userKey string) string {
	return strings.ToLower(strings.TrimSpace(userKey))
}

// Register stores sink as a new connection of userKey and returns its id.
func (r *Registry) Register(userKey string, sink Sink) string {
	key := NormalizeKey(userKey)
	conn := &Connection{
		ID:        r.newID(),
		Sink:      sink,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	conns, ok := r.users[key]
	if !ok {
		conns = make(map[string]*Connection)
		r.users[key] = conns
		if r.observer != nil {
			r.observer.UserOnline(key)
		}
	}
	conns[conn.ID] = conn
	count := len(conns)
	r.mu.Unlock()

	observability.RegistryConnections.Inc()
	r.log.Info("connection registered",
		zap.String("user", key),
		zap.String("connection_id", conn.ID),
		zap.Int("active_connections", count),
	)
	r.dump()

	return conn.ID
}

// Unregister drops one connection. Unknown users and ids are ignored since
// close events can race with eviction.
func (r *Registry) Unregister(userKey, connID string) {
	key := NormalizeKey(userKey)

	r.mu.Lock()
	removed, remaining := r.removeLocked(key, connID, nil)
	r.mu.Unlock()

	if !removed {
		r.log.Debug("unregister ignored, connection not tracked",
			zap.String("user", key),
			zap.String("connection_id", connID),
		)
		return
	}

	observability.RegistryConnections.Dec()
	r.log.Info("connection unregistered",
		zap.String("user", key),
		zap.String("connection_id", connID),
		zap.Int("active_connections", remaining),
	)
	r.dump()
}

// removeLocked deletes connID from key's set, and the set itself once empty.
// When expect is non-nil the stored record must be that exact connection.
func (r *Registry) removeLocked(key, connID string, expect *Connection) (removed bool, remaining int) {
	conns, ok := r.users[key]
	if !ok {
		return false, 0
	}
	cur, ok := conns[connID]
	if !ok || (expect != nil && cur != expect) {
		return false, len(conns)
	}

	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, key)
		if r.observer != nil {
			r.observer.UserOffline(key)
		}
	}
	return true, len(conns)
}

// CloseAll empties the registry and closes every sink that can be closed.
// Used on shutdown so streaming handlers return.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var all []*Connection
	for key, conns := range r.users {
		for _, c := range conns {
			all = append(all, c)
		}
		delete(r.users, key)
		if r.observer != nil {
			r.observer.UserOffline(key)
		}
	}
	r.mu.Unlock()

	for _, c := range all {
		observability.RegistryConnections.Dec()
		if cl, ok := c.Sink.(interface{ Close() }); ok {
			cl.Close()
		}
	}
	r.log.Info("registry closed", zap.Int("connections", len(all)))
}

func (r *Registry) ConnectionCount(userKey string) int {
	key := NormalizeKey(userKey)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[key])
}

// Users returns how many users currently hold at least one connection.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// UserKeys lists the users holding at least one connection, unordered.
func (r *Registry) UserKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.users))
	for key := range r.users {
		out = append(out, key)
	}
	return out
}

// Snapshot lists every tracked connection, ordered by user key and then by
// registration time.
func (r *Registry) Snapshot() []UserConnections {
	r.mu.RLock()
	out := make([]UserConnections, 0, len(r.users))
	for key, conns := range r.users {
		uc := UserConnections{
			UserKey:     key,
			Connections: make([]ConnectionInfo, 0, len(conns)),
		}
		for _, c := range conns {
			uc.Connections = append(uc.Connections, ConnectionInfo{ID: c.ID, CreatedAt: c.CreatedAt})
		}
		out = append(out, uc)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserKey < out[j].UserKey })
	for _, uc := range out {
		sort.Slice(uc.Connections, func(i, j int) bool {
			ci, cj := uc.Connections[i], uc.Connections[j]
			if ci.CreatedAt.Equal(cj.CreatedAt) {
				return ci.ID < cj.ID
			}
			return ci.CreatedAt.Before(cj.CreatedAt)
		})
	}
	return out
}

// dump logs the whole registry. Debug only.
func (r *Registry) dump() {
	if !r.log.Core().Enabled(zapcore.DebugLevel) {
		return
	}

	snap := r.Snapshot()
	r.log.Debug("registry dump", zap.Int("users", len(snap)))
	for _, uc := range snap {
		r.log.Debug("registry dump entry",
			zap.String("user", uc.UserKey),
			zap.Int("connections", len(uc.Connections)),
			zap.Any("entries", uc.Connections),
		)
	}
}

// targets copies the user's current connections so writes can happen
// without holding the lock.
func (r *Registry) targets(key string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[key]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}
