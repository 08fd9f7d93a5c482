package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"whatschat/bus"
	"whatschat/models"
	"whatschat/typing"
)

// Session is one logged-in user's view of the engine inside a context. It
// reacts to realtime events: an Update marks incoming messages delivered and
// asks the owner to refresh; a Typing event addressed to the user updates
// the peer's typing state. It also owns the outgoing typing indicators.
type Session struct {
	engine *Engine
	userID string

	clock       typing.Clock
	quiet       time.Duration
	onUpdate    func()
	onTyping    func(peerID string, isTyping bool)
	unsubscribe func()

	mu         sync.Mutex
	ctx        context.Context
	peerTyping map[string]bool
	indicators map[string]*typing.Indicator
}

type SessionOption func(*Session)

// WithTypingClock sets the clock driving the typing quiet period.
func WithTypingClock(clock typing.Clock) SessionOption {
	return func(s *Session) { s.clock = clock }
}

func WithQuietPeriod(d time.Duration) SessionOption {
	return func(s *Session) { s.quiet = d }
}

// OnUpdate is called after every Update from another context, once
// incoming messages have been marked delivered.
func OnUpdate(fn func()) SessionOption {
	return func(s *Session) { s.onUpdate = fn }
}

// OnTyping is called when a peer starts or stops typing to the user.
func OnTyping(fn func(peerID string, isTyping bool)) SessionOption {
	return func(s *Session) { s.onTyping = fn }
}

func NewSession(engine *Engine, userID string, opts ...SessionOption) *Session {
	s := &Session{
		engine:     engine,
		userID:     userID,
		clock:      typing.RealClock{},
		quiet:      typing.DefaultQuietPeriod,
		onUpdate:   func() {},
		onTyping:   func(string, bool) {},
		ctx:        context.Background(),
		peerTyping: make(map[string]bool),
		indicators: make(map[string]*typing.Indicator),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) UserID() string {
	return s.userID
}

// Start subscribes to the engine's bus and marks pending messages delivered.
// ctx is used for the store work triggered by incoming events.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if b := s.engine.Bus(); b != nil {
		s.unsubscribe = b.Subscribe(s.handle)
	}
	return s.engine.MarkDelivered(ctx, s.userID)
}

// Stop detaches from the bus and closes every typing indicator.
func (s *Session) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	s.mu.Lock()
	indicators := s.indicators
	s.indicators = make(map[string]*typing.Indicator)
	s.mu.Unlock()

	for _, ind := range indicators {
		ind.Close()
	}
}

func (s *Session) handle(ev bus.Event) {
	switch ev := ev.(type) {
	case bus.Update:
		s.handleUpdate()
	case bus.Typing:
		s.handleTyping(ev)
	}
}

func (s *Session) handleUpdate() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.engine.MarkDelivered(ctx, s.userID); err != nil {
		s.engine.logger.Warn("mark delivered failed", zap.String("user", s.userID), zap.Error(err))
	}
	s.onUpdate()
}

func (s *Session) handleTyping(ev bus.Typing) {
	if ev.ReceiverID != s.userID {
		return
	}

	s.mu.Lock()
	if ev.IsTyping {
		s.peerTyping[ev.SenderID] = true
	} else {
		delete(s.peerTyping, ev.SenderID)
	}
	s.mu.Unlock()

	s.onTyping(ev.SenderID, ev.IsTyping)
}

// IsTyping reports whether peerID is currently typing to the user.
func (s *Session) IsTyping(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerTyping[peerID]
}

// Keystroke feeds the content of the input box for the conversation with
// peerID into its typing indicator.
func (s *Session) Keystroke(peerID, text string) {
	s.indicator(peerID).Keystroke(text)
}

// TypingState returns the local typing state towards peerID.
func (s *Session) TypingState(peerID string) typing.State {
	s.mu.Lock()
	ind, ok := s.indicators[peerID]
	s.mu.Unlock()
	if !ok {
		return typing.Idle
	}
	return ind.State()
}

func (s *Session) indicator(peerID string) *typing.Indicator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ind, ok := s.indicators[peerID]; ok {
		return ind
	}
	ind := typing.NewIndicator(s.clock, s.quiet, func(isTyping bool) {
		s.engine.PublishTyping(s.context(), bus.Typing{
			SenderID:   s.userID,
			ReceiverID: peerID,
			IsTyping:   isTyping,
		})
	})
	s.indicators[peerID] = ind
	return ind
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Send stops the typing indicator for peerID and sends text. Peers see
// typing end before the update for the new message. Blank text leaves the
// indicator running.
func (s *Session) Send(ctx context.Context, peerID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) != "" {
		s.mu.Lock()
		ind, ok := s.indicators[peerID]
		s.mu.Unlock()
		if ok {
			ind.Sent()
		}
	}
	return s.engine.SendMessage(ctx, s.userID, peerID, text)
}

// Open returns the conversation with peerID and marks it read.
func (s *Session) Open(ctx context.Context, peerID string) ([]models.Message, error) {
	if err := s.engine.MarkAsRead(ctx, s.userID, peerID); err != nil {
		return nil, err
	}
	return s.engine.GetMessages(ctx, s.userID, peerID)
}

// Contacts returns the user's contact list.
func (s *Session) Contacts(ctx context.Context) ([]models.Contact, error) {
	return s.engine.GetContacts(ctx, s.userID)
}
