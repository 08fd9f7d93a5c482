// Package bus carries realtime events between contexts.
//
// The bus is best effort: events may be dropped, arrive in any order
// relative to each other, and are never replayed to late subscribers. An
// Update event only means "re-read the store", so losing or reordering one is
// recovered by the next one.
package bus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"whatschat/protocol"
)

type (
	Event  = protocol.Event
	Update = protocol.Update
	Typing = protocol.Typing
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("bus: closed")

// Handler receives events published by other contexts.
type Handler func(Event)

// Bus is one context's view of the shared realtime channel.
type Bus interface {
	// Publish sends ev to every other context. Delivery is not guaranteed.
	Publish(ctx context.Context, ev Event) error

	// Subscribe installs h as the context's only handler, replacing any
	// previous one. The returned function detaches h; it is safe to call more
	// than once and does nothing if h was already replaced.
	Subscribe(h Handler) (unsubscribe func())

	Close() error
}

type options struct {
	logger    *zap.Logger
	queueSize int
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithQueueSize sets how many undelivered events a subscriber may have
// pending before new ones are dropped.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), queueSize: 64}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// subscription holds the single active handler of a context.
type subscription struct {
	mu      sync.Mutex
	handler Handler
	gen     uint64
}

func (s *subscription) set(h Handler) func() {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.handler = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == gen {
			s.handler = nil
		}
	}
}

func (s *subscription) current() Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}
