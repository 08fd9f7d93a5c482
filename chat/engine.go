// Package chat is the chat engine of one context: the contact graph, the
// message repository, accounts and groups, all read from and written to the
// shared store, plus the Session glue that reacts to realtime events.
//
// Every write goes through mutateAndNotify, which commits to the store and
// only then publishes an Update so other contexts re-read it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"whatschat/bus"
	"whatschat/db"
	"whatschat/models"
)

// DefaultMaxAttempts bounds how often a mutation is retried after a stale
// write.
const DefaultMaxAttempts = 5

type Engine struct {
	store db.Store
	bus   bus.Bus

	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
	bcryptCost  int
	maxAttempts int
	presence    PresenceFunc

	mu sync.Mutex
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the source of message and group timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator sets the source of the random part of new ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithBcryptCost(cost int) Option {
	return func(e *Engine) { e.bcryptCost = cost }
}

func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// PresenceFunc returns the ids of users with at least one connected context.
type PresenceFunc func(ctx context.Context) ([]string, error)

// WithPresence fills Contact.Status for direct contacts from p.
func WithPresence(p PresenceFunc) Option {
	return func(e *Engine) { e.presence = p }
}

// New creates an engine over store. b may be nil for a context that does
// not take part in realtime sync.
func New(store db.Store, b bus.Bus, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		bus:         b,
		logger:      zap.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
		bcryptCost:  bcrypt.DefaultCost,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bus returns the bus the engine publishes on, or nil.
func (e *Engine) Bus() bus.Bus {
	return e.bus
}

// Snapshot loads the current store contents.
func (e *Engine) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Load(ctx)
}

// mutation edits snap in place and reports whether it changed anything.
// It may run more than once, each time on a freshly loaded snapshot.
type mutation func(snap *models.Snapshot) (changed bool, err error)

// mutateAndNotify loads the snapshot, applies fn, saves it and publishes an
// Update. A stale write restarts the cycle from a fresh load. Nothing is
// saved or published when fn reports no change.
func (e *Engine) mutateAndNotify(ctx context.Context, op string, fn mutation) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for attempt := 1; ; attempt++ {
		snap, err := e.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		changed, err := fn(snap)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		err = e.store.Save(ctx, snap)
		if err == nil {
			break
		}
		if errors.Is(err, db.ErrStaleWrite) && attempt < e.maxAttempts {
			e.logger.Debug("stale write, retrying",
				zap.String("op", op), zap.Int("attempt", attempt))
			continue
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	e.publish(ctx, bus.Update{})
	return nil
}

// PublishTyping tells the receiver's context about a typing transition.
func (e *Engine) PublishTyping(ctx context.Context, ev bus.Typing) {
	e.publish(ctx, ev)
}

func (e *Engine) publish(ctx context.Context, ev bus.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Debug("publish failed", zap.String("kind", string(ev.Kind())), zap.Error(err))
	}
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

func (e *Engine) id(prefix string) string {
	return prefix + e.newID()
}
