package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Hub is an in-process broadcast channel. Each context joins it and gets an
// Endpoint; an event published on one endpoint reaches every other endpoint
// that has a handler at that moment.
type Hub struct {
	opts options

	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
}

func NewHub(opts ...Option) *Hub {
	return &Hub{
		opts:      buildOptions(opts),
		endpoints: make(map[*Endpoint]struct{}),
	}
}

// Join attaches a new context to the hub.
func (h *Hub) Join() *Endpoint {
	e := &Endpoint{
		hub:   h,
		queue: make(chan Event, h.opts.queueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	h.endpoints[e] = struct{}{}
	h.mu.Unlock()

	go e.run()
	return e
}

// Len returns the number of joined endpoints.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.endpoints)
}

func (h *Hub) broadcast(from *Endpoint, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for e := range h.endpoints {
		if e == from || e.sub.current() == nil {
			continue
		}
		select {
		case e.queue <- ev:
		default:
			h.opts.logger.Debug("bus: subscriber queue full, dropping event",
				zap.String("kind", string(ev.Kind())))
		}
	}
}

func (h *Hub) leave(e *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, e)
}

// Endpoint is one context's connection to a Hub. It implements Bus.
type Endpoint struct {
	hub   *Hub
	sub   subscription
	queue chan Event

	done      chan struct{}
	closeOnce sync.Once
}

func (e *Endpoint) Publish(ctx context.Context, ev Event) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.hub.broadcast(e, ev)
	return nil
}

func (e *Endpoint) Subscribe(h Handler) func() {
	return e.sub.set(h)
}

func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.hub.leave(e)
		close(e.done)
	})
	return nil
}

func (e *Endpoint) run() {
	for {
		select {
		case ev := <-e.queue:
			if h := e.sub.current(); h != nil {
				h(ev)
			}
		case <-e.done:
			return
		}
	}
}
