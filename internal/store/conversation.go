package store

import (
	"sort"
	"sync"
)

// ConversationStore holds conversation summaries for listing. The listing
// order (pinned first, then most recent activity) is cached and only rebuilt
// when a mutation touches a sort key, so unread or read-flag churn does not
// reorder the list.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
	order []string
	dirty bool
}

// NewConversationStore creates an empty conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{convs: make(map[string]*Conversation)}
}

// UpsertSummary merges a patch into the summary for id, creating it if
// needed. LastMessage/LastMessageAt only advance: a patch carrying an older
// timestamp than the current one is ignored, so out-of-order arrivals cannot
// regress the preview.
func (s *ConversationStore) UpsertSummary(id string, patch SummaryPatch) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		c = &Conversation{ID: id}
		s.convs[id] = c
		s.order = append(s.order, id)
		s.dirty = true
	}

	if patch.Participants != nil {
		c.Participants = patch.Participants
	}
	if patch.IsGroup != nil {
		c.IsGroup = *patch.IsGroup
	}
	if patch.IsPinned != nil && *patch.IsPinned != c.IsPinned {
		c.IsPinned = *patch.IsPinned
		s.dirty = true
	}
	if patch.UnreadCount != nil {
		c.UnreadCount = *patch.UnreadCount
	}
	if patch.UnreadDelta != 0 {
		c.UnreadCount += patch.UnreadDelta
	}
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	if patch.LastMessageAt != nil && *patch.LastMessageAt > c.LastMessageAt {
		c.LastMessageAt = *patch.LastMessageAt
		if patch.LastMessage != nil {
			c.LastMessage = *patch.LastMessage
		}
		s.dirty = true
	}
	if patch.PeerRead != nil {
		c.PeerRead = *patch.PeerRead
	}
}

// Get returns a copy of one summary.
func (s *ConversationStore) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return Conversation{}, false
	}
	return *c, true
}

// ResetUnread zeroes the unread counter for id.
func (s *ConversationStore) ResetUnread(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		c.UnreadCount = 0
	}
}

// SetPeerRead flips the boolean read receipt for id.
func (s *ConversationStore) SetPeerRead(id string, read bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		c.PeerRead = read
	}
}

// List returns summaries sorted pinned-first, then by LastMessageAt
// descending, with the conversation id as a stable tie-break. The order is
// recomputed only when a prior mutation changed a sort key.
func (s *ConversationStore) List() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		sort.SliceStable(s.order, func(i, j int) bool {
			a, b := s.convs[s.order[i]], s.convs[s.order[j]]
			if a.IsPinned != b.IsPinned {
				return a.IsPinned
			}
			if a.LastMessageAt != b.LastMessageAt {
				return a.LastMessageAt > b.LastMessageAt
			}
			return a.ID < b.ID
		})
		s.dirty = false
	}

	out := make([]Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.convs[id])
	}
	return out
}

// Reset discards all summaries, used when the user leaves the chat feature.
func (s *ConversationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = make(map[string]*Conversation)
	s.order = nil
	s.dirty = false
}
