package notify

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu      sync.Mutex
	frames  [][]byte
	err     error
	onWrite func()
}

func (s *recordingSink) Write(ctx context.Context, frame []byte) error {
	if s.onWrite != nil {
		s.onWrite()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = string(f)
	}
	return out
}

type transitions struct {
	mu     sync.Mutex
	events []string
}

func (o *transitions) UserOnline(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "online:"+key)
}

func (o *transitions) UserOffline(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "offline:"+key)
}

func (o *transitions) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}
