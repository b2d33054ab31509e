package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/coachly/chatsync/internal/bus"
	"github.com/coachly/chatsync/internal/outbox"
	"github.com/coachly/chatsync/internal/presence"
	"github.com/coachly/chatsync/internal/rest"
	"github.com/coachly/chatsync/internal/store"
	"github.com/coachly/chatsync/internal/transport"
	"github.com/coachly/chatsync/internal/typing"
	"go.uber.org/zap"
)

// Snapshots is the REST surface the engine fetches point-in-time state from.
type Snapshots interface {
	Conversations(ctx context.Context) ([]rest.ConversationSummary, error)
	Messages(ctx context.Context, conversationID string, page, limit int) (*rest.MessagePage, error)
	CreateDirect(ctx context.Context, userID string) (*rest.ConversationSummary, error)
}

// Live is the outbound side of the socket: room membership and read receipts.
type Live interface {
	JoinConversation(ctx context.Context, conversationID string) error
	MarkAsRead(ctx context.Context, conversationID string) error
}

// Engine is the single source of truth for conversation state. It merges
// REST snapshots with live socket events, routes send confirmations into the
// outbound queue, and keeps presence and typing in line with the connection.
// Inbound events reach it over the bus under the "socket." prefix; the UI
// reads state through the view methods and follows "chat." events for
// change notifications.
type Engine struct {
	snap     Snapshots
	live     Live
	queue    *outbox.Queue
	msgs     *store.MessageStore
	convs    *store.ConversationStore
	presence *presence.Tracker
	typing   *typing.Coordinator
	bus      *bus.Bus
	logger   *zap.Logger
	userID   string
	pageSize int

	mu          sync.Mutex
	openID      string
	gen         uint64
	fetchCancel context.CancelFunc
	buffering   bool
	buffer      []*transport.WireMessage

	runCtx context.Context
	cancel context.CancelFunc
}

// NewEngine creates a sync engine for the given user.
func NewEngine(snap Snapshots, live Live, queue *outbox.Queue, msgs *store.MessageStore,
	convs *store.ConversationStore, pres *presence.Tracker, typ *typing.Coordinator,
	b *bus.Bus, userID string, pageSize int, logger *zap.Logger) *Engine {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Engine{
		snap:     snap,
		live:     live,
		queue:    queue,
		msgs:     msgs,
		convs:    convs,
		presence: pres,
		typing:   typ,
		bus:      b,
		logger:   logger,
		userID:   userID,
		pageSize: pageSize,
	}
}

// Start subscribes to inbound socket events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.runCtx = ctx
	ch, unsub := e.bus.Subscribe("socket.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindSocketMessage:
		wm, ok := evt.Payload.(*transport.WireMessage)
		if !ok {
			return
		}
		e.handleMessage(wm)

	case bus.KindSocketTyping:
		te, ok := evt.Payload.(*transport.TypingEvent)
		if !ok || te.UserID == e.userID {
			return // own echo
		}
		e.typing.RemoteTyping(te.ConversationID, te.UserID, te.UserName, te.Typing)

	case bus.KindSocketPresence:
		pe, ok := evt.Payload.(*transport.PresenceEvent)
		if !ok {
			return
		}
		e.presence.SetOnline(pe.UserID, pe.Online)

	case bus.KindSocketRead:
		re, ok := evt.Payload.(*transport.ReadEvent)
		if !ok {
			return
		}
		e.convs.SetPeerRead(re.ConversationID, true)

	case bus.KindSocketDisconnected:
		// Presence and remote typing are stale until the connection resyncs.
		e.presence.Clear()
		e.typing.ClearRemote()

	case bus.KindSocketConnected:
		e.resubscribe()
	}
}

// OpenConversation makes id the active conversation. Any in-flight snapshot
// fetch for the previous one is cancelled, live events for id are buffered
// until the fresh page-1 snapshot lands, and the unread counter is cleared.
func (e *Engine) OpenConversation(ctx context.Context, id string) {
	e.mu.Lock()
	prev := e.openID
	e.openID = id
	e.gen++
	g := e.gen
	if e.fetchCancel != nil {
		e.fetchCancel()
	}
	e.buffering = true
	e.buffer = nil
	fctx, cancel := context.WithCancel(ctx)
	e.fetchCancel = cancel
	e.mu.Unlock()

	if prev != "" && prev != id {
		e.typing.StopNow(prev)
	}
	e.convs.ResetUnread(id)

	if err := e.live.JoinConversation(ctx, id); err != nil {
		e.logger.Warn("join emit failed", zap.String("conversation", id), zap.Error(err))
	}
	if err := e.live.MarkAsRead(ctx, id); err != nil {
		e.logger.Warn("mark_as_read emit failed", zap.String("conversation", id), zap.Error(err))
	}

	go e.fetchSnapshot(fctx, g, id, 1)
}

// CloseConversation clears the active conversation without opening another,
// ending any local typing burst.
func (e *Engine) CloseConversation() {
	e.mu.Lock()
	prev := e.openID
	e.openID = ""
	e.gen++
	if e.fetchCancel != nil {
		e.fetchCancel()
	}
	e.buffering = false
	e.buffer = nil
	e.mu.Unlock()

	if prev != "" {
		e.typing.StopNow(prev)
	}
}

// Reset tears down all in-memory chat state, used when the user leaves the
// chat feature entirely. Presence survives; it belongs to the session, not
// the page.
func (e *Engine) Reset() {
	e.CloseConversation()
	e.msgs.Reset()
	e.convs.Reset()
	e.typing.ClearRemote()
}

// resubscribe re-joins the active conversation after a reconnect and
// refetches its snapshot, buffering live events in between. Only the open
// conversation pays this cost; the rest catch up on the next list refresh.
// Pending sends are left alone.
func (e *Engine) resubscribe() {
	e.mu.Lock()
	id := e.openID
	if id == "" {
		e.mu.Unlock()
		return
	}
	e.gen++
	g := e.gen
	if e.fetchCancel != nil {
		e.fetchCancel()
	}
	e.buffering = true
	e.buffer = nil
	fctx, cancel := context.WithCancel(e.runContext())
	e.fetchCancel = cancel
	e.mu.Unlock()

	if err := e.live.JoinConversation(e.runContext(), id); err != nil {
		e.logger.Warn("rejoin emit failed", zap.String("conversation", id), zap.Error(err))
	}
	e.logger.Info("resyncing after reconnect", zap.String("conversation", id))
	go e.fetchSnapshot(fctx, g, id, 1)
}

func (e *Engine) runContext() context.Context {
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

// LoadOlder merges an additional snapshot page into the open conversation.
func (e *Engine) LoadOlder(ctx context.Context, page int) error {
	e.mu.Lock()
	id := e.openID
	g := e.gen
	e.mu.Unlock()
	if id == "" {
		return fmt.Errorf("no open conversation")
	}

	pageData, err := e.snap.Messages(ctx, id, page, e.pageSize)
	if err != nil {
		return fmt.Errorf("load page %d: %w", page, err)
	}

	e.mu.Lock()
	stale := g != e.gen
	e.mu.Unlock()
	if stale {
		return nil // user moved on; drop silently
	}

	e.msgs.MergeSnapshot(id, snapshotMessages(id, pageData))
	e.bus.Publish(bus.KindSnapshotApplied, id)
	return nil
}

// RefreshConversations reloads the conversation list snapshot.
func (e *Engine) RefreshConversations(ctx context.Context) error {
	sums, err := e.snap.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("refresh conversations: %w", err)
	}

	e.mu.Lock()
	openID := e.openID
	e.mu.Unlock()

	for _, s := range sums {
		unread := s.UnreadCount
		if s.ID == openID {
			unread = 0 // the user is looking at it
		}
		pinned := s.IsPinned
		group := s.IsGroup
		last := s.LastMessage
		lastAt := s.LastMessageAt
		e.convs.UpsertSummary(s.ID, store.SummaryPatch{
			Participants:  s.Participants,
			IsGroup:       &group,
			IsPinned:      &pinned,
			UnreadCount:   &unread,
			LastMessage:   &last,
			LastMessageAt: &lastAt,
		})
	}
	e.bus.Publish(bus.KindConversationsUpdated, len(sums))
	return nil
}

// StartDirect creates (or finds) the direct conversation with userID and
// returns its id.
func (e *Engine) StartDirect(ctx context.Context, userID string) (string, error) {
	sum, err := e.snap.CreateDirect(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("create direct conversation: %w", err)
	}
	group := sum.IsGroup
	e.convs.UpsertSummary(sum.ID, store.SummaryPatch{
		Participants: sum.Participants,
		IsGroup:      &group,
	})
	return sum.ID, nil
}

// Send queues an optimistic message and closes any local typing burst.
func (e *Engine) Send(ctx context.Context, conversationID, content string, files []outbox.File) string {
	tempID := e.queue.Send(ctx, conversationID, content, files)
	e.typing.StopNow(conversationID)
	if m, ok := e.msgs.Get(conversationID, tempID); ok {
		e.convs.UpsertSummary(conversationID, store.SummaryPatch{
			LastMessage:   &m.Content,
			LastMessageAt: &m.CreatedAt,
		})
	}
	return tempID
}

// RetrySend re-attempts a failed send at the user's request.
func (e *Engine) RetrySend(ctx context.Context, conversationID, tempID string) (string, error) {
	return e.queue.Retry(ctx, conversationID, tempID)
}

// DiscardSend drops a failed send.
func (e *Engine) DiscardSend(conversationID, tempID string) bool {
	return e.queue.Discard(conversationID, tempID)
}

// Keystroke forwards local typing activity for the open conversation.
func (e *Engine) Keystroke() {
	e.mu.Lock()
	id := e.openID
	e.mu.Unlock()
	if id != "" {
		e.typing.Keystroke(id)
	}
}

// Conversations returns the ordered conversation list.
func (e *Engine) Conversations() []store.Conversation { return e.convs.List() }

// Messages returns the ordered message log for a conversation.
func (e *Engine) Messages(conversationID string) []store.Message {
	return e.msgs.Messages(conversationID)
}

// Typist reports who is typing in a conversation, if anyone.
func (e *Engine) Typist(conversationID string) (typing.Typist, bool) {
	return e.typing.Typist(conversationID)
}

// Online reports whether a user is currently online.
func (e *Engine) Online(userID string) bool { return e.presence.IsOnline(userID) }

// Open returns the id of the active conversation, empty if none.
func (e *Engine) Open() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openID
}
