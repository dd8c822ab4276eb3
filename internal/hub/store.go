package hub

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidState   = errors.New("invalid state")
	ErrNotImplemented = errors.New("not implemented")
)

const (
	TypeGeneric    = "generic"
	TypeTeamInvite = "team_invite"

	// InboxLimit is the most entries a single inbox read returns.
	InboxLimit = 50
)

// Notification is the wire shape shared with clients. The hub assigns
// ID and Timestamp on publish; callers never supply them.
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

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRejected InviteStatus = "rejected"
)

// Invite tracks one team invitation from publish to resolution. The
// status moves pending -> accepted or pending -> rejected and never
// leaves a terminal state.
type Invite struct {
	ProjectID      string       `json:"projectId"`
	ProjectName    string       `json:"projectName"`
	InviterID      string       `json:"inviterId"`
	InviteeID      string       `json:"inviteeId"`
	Status         InviteStatus `json:"status"`
	NotificationID string       `json:"notificationId"`
	CreatedAt      string       `json:"createdAt"`
	ResolvedAt     string       `json:"resolvedAt,omitempty"`
}

type persistedState struct {
	SeqCounter uint64                    `json:"seqCounter"`
	Logs       map[string][]Notification `json:"logs"`
	Invites    map[string]*Invite        `json:"invites"`
	Members    map[string][]string       `json:"members"`
}

type StateBackend interface {
	Load() (*persistedState, error)
	Save(state *persistedState) error
}

type stateBackendCloser interface {
	Close() error
}

type StoreOptions struct {
	StateFile        string
	StateBackend     StateBackend
	Retention        int
	SubscriberBuffer int
}

// Store keeps per-user notification logs newest-first, the invite
// ledger, and project membership, and fans published notifications out
// to stream subscribers.
type Store struct {
	mu           sync.RWMutex
	seqCounter   uint64
	logs         map[string][]Notification
	invites      map[string]*Invite
	members      map[string][]string
	stateBackend StateBackend
	retention    int

	subMu      sync.Mutex
	subCounter uint64
	subBuffer  int
	subs       map[string]map[uint64]chan Notification

	closed    chan struct{}
	closeOnce sync.Once
}

func NewStore() *Store {
	return NewStoreWithOptions(StoreOptions{})
}

func NewStoreWithOptions(opts StoreOptions) *Store {
	retention := opts.Retention
	if retention <= 0 {
		retention = 200
	}
	if retention < InboxLimit {
		retention = InboxLimit
	}
	subBuffer := opts.SubscriberBuffer
	if subBuffer <= 0 {
		subBuffer = 16
	}
	stateBackend := opts.StateBackend
	if stateBackend == nil && strings.TrimSpace(opts.StateFile) != "" {
		stateBackend = NewJSONFileStateBackend(opts.StateFile)
	}

	s := &Store{
		logs:         map[string][]Notification{},
		invites:      map[string]*Invite{},
		members:      map[string][]string{},
		stateBackend: stateBackend,
		retention:    retention,
		subBuffer:    subBuffer,
		subs:         map[string]map[uint64]chan Notification{},
		closed:       make(chan struct{}),
	}
	_ = s.loadFromBackend()
	return s
}

func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.subMu.Lock()
		for _, byID := range s.subs {
			for _, ch := range byID {
				close(ch)
			}
		}
		s.subs = map[string]map[uint64]chan Notification{}
		s.subMu.Unlock()
		if closer, ok := s.stateBackend.(stateBackendCloser); ok && closer != nil {
			_ = closer.Close()
		}
	})
}

// PublishRequest is the caller-supplied part of a notification. The
// hub fills in identity and ordering.
type PublishRequest struct {
	RecipientID string `json:"recipientId"`
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
	InviterID   string `json:"inviterId,omitempty"`
}

// Publish validates the request, assigns an id and timestamp, records
// the notification in the recipient's log, and fans it out to any live
// stream subscribers. Team invites additionally open a pending invite;
// publishing a second invite for the same project and invitee while one
// is pending fails with ErrInvalidState.
func (s *Store) Publish(req PublishRequest) (Notification, error) {
	if err := validatePublish(req); err != nil {
		return Notification{}, err
	}

	s.mu.Lock()
	n := Notification{
		ID:          s.nextNotificationIDLocked(),
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Message:     req.Message,
		ProjectID:   req.ProjectID,
		ProjectName: req.ProjectName,
		InviterID:   req.InviterID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if req.Type == TypeTeamInvite {
		key := inviteKey(req.ProjectID, req.RecipientID)
		if existing, ok := s.invites[key]; ok && existing.Status == InvitePending {
			s.mu.Unlock()
			return Notification{}, fmt.Errorf("%w: invite for %s already pending", ErrInvalidState, req.ProjectID)
		}
		s.invites[key] = &Invite{
			ProjectID:      req.ProjectID,
			ProjectName:    req.ProjectName,
			InviterID:      req.InviterID,
			InviteeID:      req.RecipientID,
			Status:         InvitePending,
			NotificationID: n.ID,
			CreatedAt:      n.Timestamp,
		}
	}
	s.appendLocked(n)
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return Notification{}, err
	}

	s.fanOut(n)
	return n, nil
}

// Inbox returns the recipient's newest notifications, capped at
// InboxLimit, newest first.
func (s *Store) Inbox(userID string) ([]Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.logs[userID]
	limit := len(log)
	if limit > InboxLimit {
		limit = InboxLimit
	}
	out := make([]Notification, limit)
	copy(out, log[:limit])
	return out, nil
}

func (s *Store) MarkRead(userID, notificationID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(notificationID) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[userID]
	for i := range log {
		if log[i].ID == notificationID {
			if !log[i].IsRead {
				log[i].IsRead = true
				return s.persistLocked()
			}
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) MarkAllRead(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[userID]
	changed := false
	for i := range log {
		if !log[i].IsRead {
			log[i].IsRead = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.persistLocked()
}

// ResolveInvite transitions the invitee's pending invite for the
// project. Accepting adds the invitee to the project roster and sends
// the inviter a generic follow-up notification. A missing invite is
// ErrNotFound; a second resolution of the same invite is
// ErrInvalidState regardless of the decision.
func (s *Store) ResolveInvite(userID, projectID string, accept bool) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(projectID) == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	invite, ok := s.invites[inviteKey(projectID, userID)]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if invite.Status != InvitePending {
		s.mu.Unlock()
		return fmt.Errorf("%w: invite already %s", ErrInvalidState, invite.Status)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	invite.ResolvedAt = now
	var followUp *Notification
	if accept {
		invite.Status = InviteAccepted
		s.addMemberLocked(projectID, userID)
		if invite.InviterID != "" {
			n := Notification{
				ID:          s.nextNotificationIDLocked(),
				RecipientID: invite.InviterID,
				Type:        TypeGeneric,
				Message:     fmt.Sprintf("%s joined %s", userID, projectLabel(invite)),
				ProjectID:   projectID,
				ProjectName: invite.ProjectName,
				Timestamp:   now,
			}
			s.appendLocked(n)
			followUp = &n
		}
	} else {
		invite.Status = InviteRejected
	}
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if followUp != nil {
		s.fanOut(*followUp)
	}
	return nil
}

// InviteStatusFor reports the recorded status of an invite.
func (s *Store) InviteStatusFor(userID, projectID string) (InviteStatus, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(projectID) == "" {
		return "", ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	invite, ok := s.invites[inviteKey(projectID, userID)]
	if !ok {
		return "", ErrNotFound
	}
	return invite.Status, nil
}

// Members returns the project's roster in join order.
func (s *Store) Members(projectID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roster := s.members[projectID]
	out := make([]string, len(roster))
	copy(out, roster)
	return out
}

// Subscribe registers a live feed of notifications published for the
// user. The returned cancel removes the subscription and closes the
// channel. Slow subscribers lose notifications rather than block
// publishers; the authoritative inbox covers the gap.
func (s *Store) Subscribe(userID string) (<-chan Notification, func()) {
	ch := make(chan Notification, s.subBuffer)
	s.subMu.Lock()
	select {
	case <-s.closed:
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	s.subCounter++
	id := s.subCounter
	byID, ok := s.subs[userID]
	if !ok {
		byID = map[uint64]chan Notification{}
		s.subs[userID] = byID
	}
	byID[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		byID, ok := s.subs[userID]
		if !ok {
			return
		}
		if sub, ok := byID[id]; ok {
			delete(byID, id)
			if len(byID) == 0 {
				delete(s.subs, userID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

func (s *Store) SubscriberCount(userID string) int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs[userID])
}

func (s *Store) fanOut(n Notification) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs[n.RecipientID] {
		select {
		case ch <- n:
		default:
		}
	}
}

func (s *Store) appendLocked(n Notification) {
	log := append([]Notification{n}, s.logs[n.RecipientID]...)
	if len(log) > s.retention {
		log = log[:s.retention]
	}
	s.logs[n.RecipientID] = log
}

func (s *Store) addMemberLocked(projectID, userID string) {
	for _, member := range s.members[projectID] {
		if member == userID {
			return
		}
	}
	s.members[projectID] = append(s.members[projectID], userID)
}

func (s *Store) nextNotificationIDLocked() string {
	s.seqCounter++
	return fmt.Sprintf("ntf_%d", s.seqCounter)
}

func (s *Store) persistLocked() error {
	if s.stateBackend == nil {
		return nil
	}
	return s.stateBackend.Save(&persistedState{
		SeqCounter: s.seqCounter,
		Logs:       s.logs,
		Invites:    s.invites,
		Members:    s.members,
	})
}

func (s *Store) loadFromBackend() error {
	if s.stateBackend == nil {
		return nil
	}
	snapshot, err := s.stateBackend.Load()
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}
	s.seqCounter = snapshot.SeqCounter
	if snapshot.Logs != nil {
		s.logs = snapshot.Logs
	}
	if snapshot.Invites != nil {
		s.invites = snapshot.Invites
	}
	if snapshot.Members != nil {
		s.members = snapshot.Members
	}
	return nil
}

func validatePublish(req PublishRequest) error {
	if strings.TrimSpace(req.RecipientID) == "" {
		return fmt.Errorf("%w: recipientId is required", ErrInvalidInput)
	}
	switch req.Type {
	case TypeGeneric:
		if strings.TrimSpace(req.Message) == "" {
			return fmt.Errorf("%w: generic notification needs a message", ErrInvalidInput)
		}
	case TypeTeamInvite:
		if strings.TrimSpace(req.ProjectID) == "" || strings.TrimSpace(req.ProjectName) == "" || strings.TrimSpace(req.InviterID) == "" {
			return fmt.Errorf("%w: team invite needs projectId, projectName and inviterId", ErrInvalidInput)
		}
		if req.InviterID == req.RecipientID {
			return fmt.Errorf("%w: cannot invite yourself", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown notification type %q", ErrInvalidInput, req.Type)
	}
	return nil
}

func inviteKey(projectID, inviteeID string) string {
	return projectID + "\x00" + inviteeID
}

func projectLabel(invite *Invite) string {
	if invite.ProjectName != "" {
		return invite.ProjectName
	}
	return invite.ProjectID
}
