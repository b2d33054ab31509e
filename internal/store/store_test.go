package store

import (
	"fmt"
	"testing"
)

func confirmed(id, conv string, ts int64) Message {
	return Message{ID: id, ConversationID: conv, Content: "msg " + id, CreatedAt: ts, Delivery: Confirmed}
}

func TestInsertChronological(t *testing.T) {
	s := NewMessageStore()

	// Deliberately out of arrival order.
	for _, m := range []Message{
		confirmed("m3", "c1", 3000),
		confirmed("m1", "c1", 1000),
		confirmed("m2", "c1", 2000),
	} {
		if !s.Insert(m) {
			t.Fatalf("Insert(%s) = false, want true", m.ID)
		}
	}

	msgs := s.Messages("c1")
	want := []string{"m1", "m2", "m3"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Errorf("msgs[%d].ID = %q, want %q", i, msgs[i].ID, id)
		}
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].CreatedAt > msgs[i].CreatedAt {
			t.Errorf("order violated at %d: %d > %d", i, msgs[i-1].CreatedAt, msgs[i].CreatedAt)
		}
	}
}

func TestInsertEqualTimestampsKeepArrivalOrder(t *testing.T) {
	s := NewMessageStore()
	for i := 0; i < 5; i++ {
		s.Insert(confirmed(fmt.Sprintf("m%d", i), "c1", 1000))
	}
	msgs := s.Messages("c1")
	for i, m := range msgs {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Errorf("msgs[%d].ID = %q, want m%d", i, m.ID, i)
		}
	}
}

func TestInsertDuplicate(t *testing.T) {
	s := NewMessageStore()
	if !s.Insert(confirmed("m1", "c1", 1000)) {
		t.Fatal("first insert failed")
	}
	if s.Insert(confirmed("m1", "c1", 9000)) {
		t.Error("duplicate insert should return false")
	}
	if len(s.Messages("c1")) != 1 {
		t.Errorf("got %d messages, want 1", len(s.Messages("c1")))
	}
}

func TestReplaceInPlace(t *testing.T) {
	s := NewMessageStore()
	s.Insert(confirmed("m1", "c1", 1000))
	s.Insert(Message{TempID: "tmp-1", ConversationID: "c1", Content: "hello", CreatedAt: 2000, Delivery: Pending})
	s.Insert(confirmed("m3", "c1", 3000))

	ok := s.Replace("c1", "tmp-1", Message{ID: "m-42", ConversationID: "c1", Content: "hello", CreatedAt: 2500, Delivery: Confirmed})
	if !ok {
		t.Fatal("Replace() = false, want true")
	}

	msgs := s.Messages("c1")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[1].ID != "m-42" || msgs[1].Delivery != Confirmed {
		t.Errorf("msgs[1] = %+v, want confirmed m-42 in the middle slot", msgs[1])
	}
	if s.Contains("c1", "tmp-1") {
		t.Error("old key still indexed after replace")
	}
	if !s.Contains("c1", "m-42") {
		t.Error("new key not indexed after replace")
	}
}

func TestReplaceUnknownKey(t *testing.T) {
	s := NewMessageStore()
	if s.Replace("c1", "nope", confirmed("m1", "c1", 1000)) {
		t.Error("Replace() on unknown key should return false")
	}
}

func TestRemove(t *testing.T) {
	s := NewMessageStore()
	s.Insert(confirmed("m1", "c1", 1000))
	s.Insert(confirmed("m2", "c1", 2000))
	s.Insert(confirmed("m3", "c1", 3000))

	if !s.Remove("c1", "m2") {
		t.Fatal("Remove() = false, want true")
	}
	msgs := s.Messages("c1")
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m3" {
		t.Errorf("after remove got %v", msgs)
	}
	// Index must have been rebuilt for shifted entries.
	if got, _ := s.Get("c1", "m3"); got.ID != "m3" {
		t.Error("index stale after remove")
	}
}

func TestMergeSnapshotUnion(t *testing.T) {
	s := NewMessageStore()
	s.Insert(confirmed("m2", "c1", 2000))
	s.Insert(Message{TempID: "tmp-9", ConversationID: "c1", Content: "unacked", CreatedAt: 4000, Delivery: Pending})

	s.MergeSnapshot("c1", []Message{
		confirmed("m1", "c1", 1000),
		confirmed("m2", "c1", 2000), // duplicate of existing
		confirmed("m3", "c1", 3000),
	})

	msgs := s.Messages("c1")
	want := []string{"m1", "m2", "m3", "tmp-9"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d: %v", len(msgs), len(want), msgs)
	}
	for i, key := range want {
		if msgs[i].Key() != key {
			t.Errorf("msgs[%d].Key() = %q, want %q", i, msgs[i].Key(), key)
		}
	}
	if msgs[3].Delivery != Pending {
		t.Error("pending entry lost its state during merge")
	}
}

func TestDropAndReset(t *testing.T) {
	s := NewMessageStore()
	s.Insert(confirmed("m1", "c1", 1000))
	s.Insert(confirmed("m2", "c2", 1000))

	s.Drop("c1")
	if s.Messages("c1") != nil {
		t.Error("Drop() left messages behind")
	}
	if len(s.Messages("c2")) != 1 {
		t.Error("Drop() removed the wrong conversation")
	}

	s.Reset()
	if s.Messages("c2") != nil {
		t.Error("Reset() left messages behind")
	}
}

func boolPtr(b bool) *bool    { return &b }
func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }

func TestListOrderPinnedFirst(t *testing.T) {
	s := NewConversationStore()
	s.UpsertSummary("recent", SummaryPatch{LastMessageAt: i64Ptr(5000)})
	s.UpsertSummary("pinned-old", SummaryPatch{LastMessageAt: i64Ptr(1000), IsPinned: boolPtr(true)})
	s.UpsertSummary("pinned-new", SummaryPatch{LastMessageAt: i64Ptr(2000), IsPinned: boolPtr(true)})
	s.UpsertSummary("older", SummaryPatch{LastMessageAt: i64Ptr(3000)})

	got := s.List()
	want := []string{"pinned-new", "pinned-old", "recent", "older"}
	if len(got) != len(want) {
		t.Fatalf("got %d conversations, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("List()[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestUnreadOnlyPatchDoesNotReorder(t *testing.T) {
	s := NewConversationStore()
	s.UpsertSummary("a", SummaryPatch{LastMessageAt: i64Ptr(2000)})
	s.UpsertSummary("b", SummaryPatch{LastMessageAt: i64Ptr(1000)})
	before := s.List()

	s.UpsertSummary("b", SummaryPatch{UnreadDelta: 3})
	s.UpsertSummary("a", SummaryPatch{PeerRead: boolPtr(true)})
	after := s.List()

	for i := range before {
		if after[i].ID != before[i].ID {
			t.Fatalf("order changed after unread-only patch: %v -> %v", before, after)
		}
	}
	if after[1].UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", after[1].UnreadCount)
	}
}

func TestLastMessageNeverRegresses(t *testing.T) {
	s := NewConversationStore()
	s.UpsertSummary("c1", SummaryPatch{LastMessage: strPtr("newest"), LastMessageAt: i64Ptr(5000)})
	s.UpsertSummary("c1", SummaryPatch{LastMessage: strPtr("stale"), LastMessageAt: i64Ptr(2000)})

	c, _ := s.Get("c1")
	if c.LastMessage != "newest" || c.LastMessageAt != 5000 {
		t.Errorf("summary regressed to %q@%d", c.LastMessage, c.LastMessageAt)
	}
}

func TestUnreadClampAndReset(t *testing.T) {
	s := NewConversationStore()
	s.UpsertSummary("c1", SummaryPatch{UnreadCount: intPtr(1)})
	s.UpsertSummary("c1", SummaryPatch{UnreadDelta: -5})
	if c, _ := s.Get("c1"); c.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d, want clamped 0", c.UnreadCount)
	}

	s.UpsertSummary("c1", SummaryPatch{UnreadDelta: 2})
	s.ResetUnread("c1")
	if c, _ := s.Get("c1"); c.UnreadCount != 0 {
		t.Errorf("UnreadCount after reset = %d, want 0", c.UnreadCount)
	}
}
