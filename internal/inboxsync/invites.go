package inboxsync

import (
	"context"
	"fmt"
)

// markAllRead advises the server first; the local inbox only mutates once the
// server acknowledges, so a failed call stays retryable with nothing changed.
func (s *session) markAllRead(ctx context.Context) error {
	if err := s.client.MarkAllRead(ctx); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	s.inbox.MarkAllRead()
	return nil
}

// resolveInvite drives one Pending -> Accepted/Rejected transition. On success
// the invite notification is marked read locally, a pull refresh is requested
// so the server's view lands, and an accepted invite fires the membership
// callback exactly once. On failure nothing local changes and the invite
// remains actionable.
func (s *session) resolveInvite(ctx context.Context, n Notification, decision Decision) error {
	if n.Type != TypeTeamInvite || n.ProjectID == "" {
		return ErrNotInvite
	}
	if err := s.client.ResolveInvite(ctx, n.ProjectID, decision); err != nil {
		return fmt.Errorf("%s invite for project %s: %w", decision, n.ProjectID, err)
	}
	if markErr := s.client.MarkRead(ctx, n.ID); markErr != nil {
		// The pull refresh below is authoritative; a failed advisory
		// mark is not worth surfacing after the invite resolved.
		s.logf("mark invite notification read failed: %v", markErr)
	}
	s.inbox.MarkRead(n.ID)
	s.requestRefresh()
	if decision == DecisionAccept && s.onMembershipChanged != nil {
		s.onMembershipChanged()
	}
	return nil
}
