package presence

import "testing"

func TestSetAndQuery(t *testing.T) {
	tr := NewTracker()

	if tr.IsOnline("u1") {
		t.Error("unknown user should be offline")
	}

	tr.SetOnline("u1", true)
	tr.SetOnline("u2", true)
	if !tr.IsOnline("u1") || !tr.IsOnline("u2") {
		t.Error("users not reported online after SetOnline(true)")
	}

	tr.SetOnline("u1", false)
	if tr.IsOnline("u1") {
		t.Error("u1 still online after SetOnline(false)")
	}
	if !tr.IsOnline("u2") {
		t.Error("u2 lost presence when u1 went offline")
	}
}

func TestOfflineForUnknownIsNoop(t *testing.T) {
	tr := NewTracker()
	tr.SetOnline("ghost", false)
	if tr.IsOnline("ghost") {
		t.Error("ghost should stay offline")
	}
}

func TestSnapshotSorted(t *testing.T) {
	tr := NewTracker()
	tr.SetOnline("c", true)
	tr.SetOnline("a", true)
	tr.SetOnline("b", true)

	got := tr.Snapshot()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %d ids, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClear(t *testing.T) {
	tr := NewTracker()
	tr.SetOnline("u1", true)
	tr.Clear()
	if tr.IsOnline("u1") {
		t.Error("u1 online after Clear()")
	}
	if len(tr.Snapshot()) != 0 {
		t.Error("Snapshot() not empty after Clear()")
	}
}
