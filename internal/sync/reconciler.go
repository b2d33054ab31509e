package sync

import (
	"context"

	"github.com/coachly/chatsync/internal/bus"
	"github.com/coachly/chatsync/internal/rest"
	"github.com/coachly/chatsync/internal/store"
	"github.com/coachly/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Reconciliation of the two inbound paths: point-in-time REST snapshots and
// live socket frames. While a snapshot fetch is in flight, live messages for
// the open conversation are buffered; once the page lands the buffer is
// replayed over it, with the message id as the union key. A generation
// counter fences stale responses: any fetch started before the latest
// open/reconnect is discarded wholesale.

// fetchSnapshot loads page one (or a later page on resubscribe) for id and
// merges it under generation g.
func (e *Engine) fetchSnapshot(ctx context.Context, g uint64, id string, page int) {
	pageData, err := e.snap.Messages(ctx, id, page, e.pageSize)

	e.mu.Lock()
	if g != e.gen {
		e.mu.Unlock()
		e.logger.Debug("discarding stale snapshot", zap.String("conversation", id), zap.Uint64("gen", g))
		return
	}
	buffered := e.buffer
	e.buffer = nil
	e.buffering = false
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("snapshot fetch failed", zap.String("conversation", id), zap.Error(err))
		e.bus.Publish(bus.KindSnapshotFailed, id)
		// Live events still count; the log is incomplete, not wrong.
		for _, wm := range buffered {
			e.apply(wm)
		}
		return
	}

	snap := snapshotMessages(id, pageData)
	e.msgs.MergeSnapshot(id, snap)
	if n := len(snap); n > 0 {
		last := snap[n-1]
		e.convs.UpsertSummary(id, store.SummaryPatch{
			LastMessage:   &last.Content,
			LastMessageAt: &last.CreatedAt,
		})
	}

	for _, wm := range buffered {
		e.apply(wm)
	}

	e.logger.Info("snapshot applied",
		zap.String("conversation", id),
		zap.Int("messages", len(snap)),
		zap.Int("replayed", len(buffered)))
	e.bus.Publish(bus.KindSnapshotApplied, id)
}

// snapshotMessages converts a REST page into store messages, defaulting the
// conversation id for servers that omit it on scoped endpoints.
func snapshotMessages(conversationID string, page *rest.MessagePage) []store.Message {
	out := make([]store.Message, 0, len(page.Messages))
	for _, d := range page.Messages {
		if d.ID == "" {
			continue
		}
		m := d.ToStoreMessage()
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		out = append(out, m)
	}
	return out
}

// handleMessage routes one live frame: buffered while the open conversation
// is between join and snapshot, applied immediately otherwise.
func (e *Engine) handleMessage(wm *transport.WireMessage) {
	e.mu.Lock()
	if e.buffering && wm.ConversationID == e.openID {
		e.buffer = append(e.buffer, wm)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.apply(wm)
}

// apply ingests a live message. A frame echoing one of our own pending sends
// confirms it in place; anything else inserts chronologically, with the id
// index dropping duplicates.
func (e *Engine) apply(wm *transport.WireMessage) {
	e.mu.Lock()
	openID := e.openID
	e.mu.Unlock()

	msg := wm.ToStoreMessage()

	if wm.TempID != "" && e.queue.Confirm(wm.TempID, msg) {
		e.convs.UpsertSummary(msg.ConversationID, store.SummaryPatch{
			LastMessage:   &msg.Content,
			LastMessageAt: &msg.CreatedAt,
		})
		return
	}

	if !e.msgs.Insert(msg) {
		return // already have it
	}

	patch := store.SummaryPatch{
		LastMessage:   &msg.Content,
		LastMessageAt: &msg.CreatedAt,
	}
	if msg.ConversationID != openID && msg.SenderID != e.userID {
		patch.UnreadDelta = 1
	}
	e.convs.UpsertSummary(msg.ConversationID, patch)

	if msg.ConversationID == openID && msg.SenderID != e.userID {
		// Visible on screen, so it is read the moment it arrives.
		if err := e.live.MarkAsRead(e.runContext(), openID); err != nil {
			e.logger.Debug("mark_as_read emit failed", zap.Error(err))
		}
	}

	e.bus.Publish(bus.KindMessageNew, msg)
}
