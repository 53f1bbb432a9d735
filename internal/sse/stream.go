package sse

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrStreamClosed   = errors.New("sse: stream closed")
	ErrStreamOverflow = errors.New("sse: stream queue overflow")
)

// Stream queues frames for one SSE response. It is the registry-facing
// side of a connection; the handler goroutine drains it.
type Stream struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewStream(queueSize int) *Stream {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Stream{
		frames: make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

// Write never blocks. A full queue means the client stopped reading, so the
// stream is closed and reported broken.
func (s *Stream) Write(_ context.Context, frame []byte) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	select {
	case s.frames <- frame:
		return nil
	default:
		s.Close()
		return ErrStreamOverflow
	}
}

func (s *Stream) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Stream) Frames() <-chan []byte {
	return s.frames
}

func (s *Stream) Done() <-chan struct{} {
	return s.done
}
