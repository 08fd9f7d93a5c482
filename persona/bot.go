package persona

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"whatschat/chat"
)

// Bot is a context that answers, as the persona user, every direct
// conversation with unread messages.
type Bot struct {
	engine      *chat.Engine
	personaID   string
	instruction string
	responder   *Responder
	logger      *zap.Logger

	// mu keeps reply passes from overlapping.
	mu sync.Mutex
}

func NewBot(engine *chat.Engine, personaID, instruction string, responder *Responder, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		engine:      engine,
		personaID:   personaID,
		instruction: instruction,
		responder:   responder,
		logger:      logger.With(zap.String("persona", personaID)),
	}
}

// Run answers pending conversations, then keeps answering after every
// update until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	session := chat.NewSession(b.engine, b.personaID, chat.OnUpdate(func() {
		b.ReplyPending(ctx)
	}))
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop()

	b.ReplyPending(ctx)
	<-ctx.Done()
	return nil
}

// ReplyPending answers each direct conversation with unread messages once
// and returns how many replies were sent.
func (b *Bot) ReplyPending(ctx context.Context) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	contacts, err := b.engine.GetContacts(ctx, b.personaID)
	if err != nil {
		b.logger.Warn("load contacts", zap.Error(err))
		return 0
	}

	sent := 0
	for _, c := range contacts {
		if c.IsGroup || c.UnreadCount == 0 {
			continue
		}
		ok, err := b.replyTo(ctx, c.ID)
		if err != nil {
			b.logger.Warn("reply failed", zap.String("peer", c.ID), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent
}

func (b *Bot) replyTo(ctx context.Context, peerID string) (bool, error) {
	msgs, err := b.engine.GetMessages(ctx, b.personaID, peerID)
	if err != nil {
		return false, err
	}

	last := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderID == peerID {
			last = i
			break
		}
	}
	if last < 0 {
		return false, nil
	}

	if err := b.engine.MarkAsRead(ctx, b.personaID, peerID); err != nil {
		return false, err
	}

	reply := b.responder.Reply(ctx, msgs[:last], b.instruction, msgs[last].Text)
	if _, err := b.engine.SendMessage(ctx, b.personaID, peerID, reply); err != nil {
		return false, err
	}
	b.logger.Debug("replied", zap.String("peer", peerID))
	return true, nil
}
