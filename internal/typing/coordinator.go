package typing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Emitter broadcasts local typing transitions on the live connection.
type Emitter interface {
	TypingStart(ctx context.Context, conversationID string) error
	TypingStop(ctx context.Context, conversationID string) error
}

// Typist identifies who is typing in a conversation.
type Typist struct {
	UserID   string
	UserName string
}

type remoteEntry struct {
	typist    Typist
	expiresAt time.Time
}

// Coordinator debounces local typing broadcasts and expires remote typing
// state. Locally, a burst of keystrokes emits exactly one typing_start, and a
// trailing timer emits the matching typing_stop after the idle interval.
// Remotely, entries expire on their own even when the peer's stop event never
// arrives.
type Coordinator struct {
	emitter Emitter
	idle    time.Duration
	expiry  time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	now    func() time.Time
	timers map[string]*time.Timer
	remote map[string]remoteEntry
	cancel context.CancelFunc
}

// NewCoordinator creates a typing coordinator. idle is the trailing-edge
// delay before a local burst auto-stops; expiry is how long a remote typing
// entry is trusted without a refresh.
func NewCoordinator(emitter Emitter, idle, expiry time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		emitter: emitter,
		idle:    idle,
		expiry:  expiry,
		logger:  logger,
		now:     time.Now,
		timers:  make(map[string]*time.Timer),
		remote:  make(map[string]remoteEntry),
	}
}

// Keystroke records local typing activity in a conversation. The first
// keystroke of a burst broadcasts typing_start; followups only push the
// trailing stop timer out.
func (c *Coordinator) Keystroke(conversationID string) {
	if conversationID == "" {
		return
	}
	c.mu.Lock()
	if t, ok := c.timers[conversationID]; ok {
		t.Reset(c.idle)
		c.mu.Unlock()
		return
	}
	c.timers[conversationID] = time.AfterFunc(c.idle, func() {
		c.StopNow(conversationID)
	})
	c.mu.Unlock()

	if err := c.emitter.TypingStart(context.Background(), conversationID); err != nil {
		c.logger.Warn("typing_start broadcast failed", zap.String("conversation", conversationID), zap.Error(err))
	}
}

// StopNow force-closes an active burst, broadcasting typing_stop. Used by the
// trailing timer and on send or conversation switch. A conversation with no
// active burst is a no-op, preserving the one-stop-per-start guarantee.
func (c *Coordinator) StopNow(conversationID string) {
	c.mu.Lock()
	t, ok := c.timers[conversationID]
	if !ok {
		c.mu.Unlock()
		return
	}
	t.Stop()
	delete(c.timers, conversationID)
	c.mu.Unlock()

	if err := c.emitter.TypingStop(context.Background(), conversationID); err != nil {
		c.logger.Warn("typing_stop broadcast failed", zap.String("conversation", conversationID), zap.Error(err))
	}
}

// RemoteTyping stores or refreshes the remote typing state for a
// conversation. typing=false removes it immediately.
func (c *Coordinator) RemoteTyping(conversationID, userID, userName string, typing bool) {
	if conversationID == "" || userID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !typing {
		delete(c.remote, conversationID)
		return
	}
	c.remote[conversationID] = remoteEntry{
		typist:    Typist{UserID: userID, UserName: userName},
		expiresAt: c.now().Add(c.expiry),
	}
}

// Typist returns who is typing in a conversation, ignoring expired entries.
func (c *Coordinator) Typist(conversationID string) (Typist, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.remote[conversationID]
	if !ok || !e.expiresAt.After(c.now()) {
		delete(c.remote, conversationID)
		return Typist{}, false
	}
	return e.typist, true
}

// ClearRemote drops all remote typing state, used on transport loss.
func (c *Coordinator) ClearRemote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = make(map[string]remoteEntry)
}

// Start runs the periodic sweep that evicts expired remote entries even when
// nobody queries them.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	interval := c.expiry / 2
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweep and closes any active local burst without
// broadcasting.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Coordinator) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, e := range c.remote {
		if !e.expiresAt.After(now) {
			delete(c.remote, id)
		}
	}
}
