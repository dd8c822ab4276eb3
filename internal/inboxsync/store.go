package inboxsync

import "sync"

// MaxInboxEntries bounds the per-session inbox; older entries are evicted first.
const MaxInboxEntries = 50

const (
	TypeGeneric    = "generic"
	TypeTeamInvite = "team_invite"
)

type Notification struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipientId"`
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
	InviterID   string `json:"inviterId,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	IsRead      bool   `json:"isRead"`
}

// Inbox is the session-local view of recent notifications. All mutations are
// serialized under one mutex so no reader observes a partially applied update,
// and the unread counter always equals the number of entries with IsRead false.
type Inbox struct {
	mu      sync.Mutex
	entries []Notification
	unread  int
}

func NewInbox() *Inbox {
	return &Inbox{}
}

// Replace installs the authoritative inbox from a pull cycle. Entries keep the
// caller's order; duplicates by ID beyond the first are dropped and the result
// is truncated to MaxInboxEntries.
func (b *Inbox) Replace(list []Notification) {
	entries := make([]Notification, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, n := range list {
		if n.ID == "" {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		entries = append(entries, n)
		if len(entries) == MaxInboxEntries {
			break
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = entries
	b.unread = countUnread(entries)
}

// Prepend inserts a push-delivered notification at the head. It is a no-op if
// an entry with the same ID is already present or the ID is empty. Returns
// whether the notification was inserted.
func (b *Inbox) Prepend(n Notification) bool {
	if n.ID == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.entries {
		if existing.ID == n.ID {
			return false
		}
	}
	entries := make([]Notification, 0, len(b.entries)+1)
	entries = append(entries, n)
	entries = append(entries, b.entries...)
	if len(entries) > MaxInboxEntries {
		entries = entries[:MaxInboxEntries]
	}
	b.entries = entries
	b.unread = countUnread(entries)
	return true
}

// MarkAllRead marks every entry read. Idempotent.
func (b *Inbox) MarkAllRead() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		b.entries[i].IsRead = true
	}
	b.unread = 0
}

// MarkRead marks a single entry read if present.
func (b *Inbox) MarkRead(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		if b.entries[i].ID != id {
			continue
		}
		b.entries[i].IsRead = true
		b.unread = countUnread(b.entries)
		return true
	}
	return false
}

// Snapshot returns a copy of the inbox, newest first.
func (b *Inbox) Snapshot() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Inbox) UnreadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unread
}

func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func countUnread(entries []Notification) int {
	count := 0
	for _, n := range entries {
		if !n.IsRead {
			count++
		}
	}
	return count
}
