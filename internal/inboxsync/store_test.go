package inboxsync

import (
	"fmt"
	"testing"
)

func TestReplaceInstallsListAndRecomputesUnread(t *testing.T) {
	inbox := NewInbox()
	inbox.Prepend(Notification{ID: "stale", RecipientID: "u1", Type: TypeGeneric, Message: "old"})

	list := []Notification{
		{ID: "n2", RecipientID: "u1", Type: TypeGeneric, Message: "two", IsRead: false},
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "one", IsRead: true},
	}
	inbox.Replace(list)

	got := inbox.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "n2" || got[1].ID != "n1" {
		t.Fatalf("expected caller order preserved, got %q then %q", got[0].ID, got[1].ID)
	}
	if inbox.UnreadCount() != 1 {
		t.Fatalf("expected unread 1, got %d", inbox.UnreadCount())
	}
}

func TestReplaceDropsDuplicateAndEmptyIDs(t *testing.T) {
	inbox := NewInbox()
	inbox.Replace([]Notification{
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric},
		{ID: "", RecipientID: "u1", Type: TypeGeneric},
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, IsRead: true},
		{ID: "n2", RecipientID: "u1", Type: TypeGeneric},
	})

	got := inbox.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected duplicates dropped, got %d entries", len(got))
	}
	if got[0].ID != "n1" || got[0].IsRead {
		t.Fatalf("expected first occurrence of n1 kept, got %+v", got[0])
	}
	if inbox.UnreadCount() != 2 {
		t.Fatalf("expected unread 2, got %d", inbox.UnreadCount())
	}
}

func TestPrependDeduplicatesByID(t *testing.T) {
	inbox := NewInbox()
	if !inbox.Prepend(Notification{ID: "n1", RecipientID: "u1", Type: TypeGeneric}) {
		t.Fatalf("expected first prepend to insert")
	}
	if inbox.Prepend(Notification{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "changed"}) {
		t.Fatalf("expected duplicate prepend to be a no-op")
	}
	if inbox.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", inbox.Len())
	}
	if inbox.UnreadCount() != 1 {
		t.Fatalf("expected unread unchanged at 1, got %d", inbox.UnreadCount())
	}
	if got := inbox.Snapshot()[0].Message; got != "" {
		t.Fatalf("expected original entry untouched, got message %q", got)
	}
}

func TestPrependEvictsOldestBeyondCap(t *testing.T) {
	inbox := NewInbox()
	for i := 0; i < MaxInboxEntries; i++ {
		inbox.Prepend(Notification{ID: fmt.Sprintf("n%d", i), RecipientID: "u1", Type: TypeGeneric})
	}
	if inbox.Len() != MaxInboxEntries {
		t.Fatalf("expected inbox at cap, got %d", inbox.Len())
	}

	if !inbox.Prepend(Notification{ID: "newest", RecipientID: "u1", Type: TypeGeneric}) {
		t.Fatalf("expected 51st prepend to insert")
	}
	got := inbox.Snapshot()
	if len(got) != MaxInboxEntries {
		t.Fatalf("expected size to stay %d, got %d", MaxInboxEntries, len(got))
	}
	if got[0].ID != "newest" {
		t.Fatalf("expected newest at head, got %q", got[0].ID)
	}
	for _, n := range got {
		if n.ID == "n0" {
			t.Fatalf("expected oldest entry n0 to be evicted")
		}
	}
	if inbox.UnreadCount() != MaxInboxEntries {
		t.Fatalf("expected unread to track evictions, got %d", inbox.UnreadCount())
	}
}

func TestUnreadCountHoldsAfterEveryMutation(t *testing.T) {
	inbox := NewInbox()
	check := func(step string) {
		t.Helper()
		unread := 0
		for _, n := range inbox.Snapshot() {
			if !n.IsRead {
				unread++
			}
		}
		if inbox.UnreadCount() != unread {
			t.Fatalf("%s: unread counter %d does not match derived %d", step, inbox.UnreadCount(), unread)
		}
	}

	inbox.Replace([]Notification{
		{ID: "a", RecipientID: "u1", Type: TypeGeneric, IsRead: true},
		{ID: "b", RecipientID: "u1", Type: TypeGeneric},
	})
	check("replace")
	inbox.Prepend(Notification{ID: "c", RecipientID: "u1", Type: TypeGeneric})
	check("prepend")
	if !inbox.MarkRead("b") {
		t.Fatalf("expected b to be marked read")
	}
	check("mark one")
	if inbox.MarkRead("missing") {
		t.Fatalf("expected missing id to be a no-op")
	}
	check("mark missing")
	inbox.MarkAllRead()
	check("mark all")
}

func TestMarkAllReadIsIdempotent(t *testing.T) {
	inbox := NewInbox()
	inbox.Replace([]Notification{
		{ID: "a", RecipientID: "u1", Type: TypeGeneric},
		{ID: "b", RecipientID: "u1", Type: TypeGeneric},
	})

	inbox.MarkAllRead()
	inbox.MarkAllRead()
	if inbox.UnreadCount() != 0 {
		t.Fatalf("expected unread 0, got %d", inbox.UnreadCount())
	}
	for _, n := range inbox.Snapshot() {
		if !n.IsRead {
			t.Fatalf("expected every entry read, %q is not", n.ID)
		}
	}
}
