package store

import (
	"sort"
	"sync"
)

// MessageStore holds per-conversation message logs for the lifetime of the
// chat session. Each log is an ordered arena plus an id→position index, so
// duplicate detection and in-place replacement are single lookups instead of
// list scans.
type MessageStore struct {
	mu   sync.RWMutex
	logs map[string]*messageLog
}

type messageLog struct {
	msgs  []Message
	index map[string]int
}

// NewMessageStore creates an empty message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{logs: make(map[string]*messageLog)}
}

func (s *MessageStore) log(conversationID string) *messageLog {
	l, ok := s.logs[conversationID]
	if !ok {
		l = &messageLog{index: make(map[string]int)}
		s.logs[conversationID] = l
	}
	return l
}

// Insert adds a message in chronological order by CreatedAt. Messages with
// equal timestamps keep arrival order, which also keeps optimistic sends in
// client insertion order. Returns false if the key is already present.
func (s *MessageStore) Insert(msg Message) bool {
	key := msg.Key()
	if key == "" || msg.ConversationID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.log(msg.ConversationID)
	if _, exists := l.index[key]; exists {
		return false
	}

	pos := sort.Search(len(l.msgs), func(i int) bool {
		return l.msgs[i].CreatedAt > msg.CreatedAt
	})
	l.msgs = append(l.msgs, Message{})
	copy(l.msgs[pos+1:], l.msgs[pos:])
	l.msgs[pos] = msg
	for i := pos; i < len(l.msgs); i++ {
		l.index[l.msgs[i].Key()] = i
	}
	return true
}

// Replace swaps the entry indexed under key with msg, keeping its list
// position. The index is remapped if the replacement carries a new key.
// Returns false if no entry is indexed under key.
func (s *MessageStore) Replace(conversationID, key string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[conversationID]
	if !ok {
		return false
	}
	pos, ok := l.index[key]
	if !ok {
		return false
	}
	delete(l.index, key)
	l.msgs[pos] = msg
	l.index[msg.Key()] = pos
	return true
}

// Remove deletes the entry indexed under key. Returns false if absent.
func (s *MessageStore) Remove(conversationID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[conversationID]
	if !ok {
		return false
	}
	pos, ok := l.index[key]
	if !ok {
		return false
	}
	delete(l.index, key)
	l.msgs = append(l.msgs[:pos], l.msgs[pos+1:]...)
	for i := pos; i < len(l.msgs); i++ {
		l.index[l.msgs[i].Key()] = i
	}
	return true
}

// Contains reports whether a message with the given key exists.
func (s *MessageStore) Contains(conversationID, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[conversationID]
	if !ok {
		return false
	}
	_, ok = l.index[key]
	return ok
}

// Get returns the message indexed under key.
func (s *MessageStore) Get(conversationID, key string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[conversationID]
	if !ok {
		return Message{}, false
	}
	pos, ok := l.index[key]
	if !ok {
		return Message{}, false
	}
	return l.msgs[pos], true
}

// Messages returns a copy of the ordered log for a conversation.
func (s *MessageStore) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[conversationID]
	if !ok {
		return nil
	}
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// MergeSnapshot unions a REST page into the log: known keys are replaced in
// place with the server state, unknown ones inserted chronologically. Pending
// and failed local entries are untouched unless the snapshot knows them.
func (s *MessageStore) MergeSnapshot(conversationID string, msgs []Message) {
	for _, m := range msgs {
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		if !s.Insert(m) {
			s.Replace(conversationID, m.Key(), m)
		}
	}
}

// Drop discards the log for one conversation.
func (s *MessageStore) Drop(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, conversationID)
}

// Reset discards all logs, used when the user leaves the chat feature.
func (s *MessageStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = make(map[string]*messageLog)
}
