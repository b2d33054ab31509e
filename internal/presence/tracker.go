package presence

import (
	"sort"
	"sync"
)

// Tracker holds the set of user ids currently reported online. Unknown users
// are offline. The set is only as fresh as the live connection; the engine
// clears it whenever the transport drops.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

// NewTracker creates an empty presence tracker.
func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]struct{})}
}

// SetOnline records a presence event for userID.
func (t *Tracker) SetOnline(userID string, online bool) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
}

// IsOnline reports whether userID is currently online.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// Snapshot returns the online user ids in sorted order.
func (t *Tracker) Snapshot() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear empties the set. Called on transport loss, when presence can no
// longer be trusted.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = make(map[string]struct{})
}
