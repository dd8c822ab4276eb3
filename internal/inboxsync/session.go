package inboxsync

import (
	"context"
	"strings"
	"sync"
	"time"
)

const DefaultPullInterval = 3 * time.Second

type Logger interface {
	Printf(format string, args ...any)
}

// ClientFactory builds a RemoteClient bound to one credential/user pair. The
// controller calls it once per identity transition.
type ClientFactory func(token, userID string) RemoteClient

type Options struct {
	PullInterval        time.Duration
	Logger              Logger
	OnMembershipChanged func()
}

// session owns every resource of one identity: the inbox, the pull ticker,
// the push connection, and any in-flight fetch. stop is the single teardown
// operation; after it returns nothing started by this session is running.
type session struct {
	client              RemoteClient
	userID              string
	inbox               *Inbox
	pullInterval        time.Duration
	logger              Logger
	onMembershipChanged func()
	refreshCh           chan struct{}
	cancel              context.CancelFunc
	wg                  sync.WaitGroup
}

func newSession(client RemoteClient, userID string, opts Options) *session {
	interval := opts.PullInterval
	if interval <= 0 {
		interval = DefaultPullInterval
	}
	return &session{
		client:              client,
		userID:              userID,
		inbox:               NewInbox(),
		pullInterval:        interval,
		logger:              opts.Logger,
		onMembershipChanged: opts.OnMembershipChanged,
		refreshCh:           make(chan struct{}, 1),
	}
}

func (s *session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go s.runPull(ctx)
	go s.runPush(ctx)
}

func (s *session) stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *session) runPull(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pullInterval)
	defer ticker.Stop()

	s.pullOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pullOnce(ctx)
		case <-s.refreshCh:
			s.pullOnce(ctx)
		}
	}
}

// pullOnce runs one authoritative refresh. The fetch is bounded by the pull
// interval, so a hung request is abandoned before the next cycle begins and
// a stale response can never overwrite newer state. A failed cycle leaves the
// inbox untouched; the next cycle proceeds on schedule.
func (s *session) pullOnce(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.pullInterval)
	defer cancel()

	list, err := s.client.FetchInbox(fetchCtx)
	if err != nil {
		if ctx.Err() == nil {
			s.logf("inbox fetch failed: %v", err)
		}
		return
	}
	kept := make([]Notification, 0, len(list))
	for _, n := range list {
		if n.RecipientID != s.userID {
			continue
		}
		kept = append(kept, n)
	}
	s.inbox.Replace(kept)
}

// runPush maintains the single live event connection. Any failure, on open or
// mid-stream, degrades the session to pull-only until the next identity
// transition; there is deliberately no reconnect here.
func (s *session) runPush(ctx context.Context) {
	defer s.wg.Done()

	stream, err := s.client.OpenStream(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logf("event stream unavailable, relying on polling: %v", err)
		}
		return
	}
	defer stream.Close()
	s.logf("event stream connected for %s", s.userID)

	for {
		raw, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logf("event stream closed, relying on polling: %v", err)
			}
			return
		}
		s.handleEvent(raw)
	}
}

func (s *session) handleEvent(raw []byte) {
	n, class := classifyEvent(raw)
	switch class {
	case eventHeartbeat:
	case eventMalformed:
		s.logf("dropping malformed stream event")
	case eventNotification:
		if n.RecipientID != s.userID {
			return
		}
		n.IsRead = false
		s.inbox.Prepend(n)
	}
}

func (s *session) requestRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

func (s *session) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

// Controller owns the session for the currently active identity. Identity
// transitions are atomic: the old session is fully stopped before the new one
// is created, so no pull timer or push connection outlives its identity.
type Controller struct {
	mu        sync.Mutex
	newClient ClientFactory
	opts      Options
	current   *session
}

func NewController(newClient ClientFactory, opts Options) *Controller {
	return &Controller{
		newClient: newClient,
		opts:      opts,
	}
}

// SetIdentity switches the active identity. An empty token or user ID behaves
// like Clear.
func (c *Controller) SetIdentity(token, userID string) {
	token = strings.TrimSpace(token)
	userID = strings.TrimSpace(userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	if token == "" || userID == "" {
		return
	}
	sess := newSession(c.newClient(token, userID), userID, c.opts)
	sess.start()
	c.current = sess
}

// Clear tears down the active session, if any.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

func (c *Controller) teardownLocked() {
	if c.current == nil {
		return
	}
	c.current.stop()
	c.current = nil
}

// Inbox returns the current inbox, newest first, or nil without a session.
func (c *Controller) Inbox() []Notification {
	sess := c.active()
	if sess == nil {
		return nil
	}
	return sess.inbox.Snapshot()
}

func (c *Controller) UnreadCount() int {
	sess := c.active()
	if sess == nil {
		return 0
	}
	return sess.inbox.UnreadCount()
}

// Refresh requests an immediate pull cycle. Non-blocking; coalesces with any
// already-pending request.
func (c *Controller) Refresh() {
	if sess := c.active(); sess != nil {
		sess.requestRefresh()
	}
}

func (c *Controller) MarkAllRead(ctx context.Context) error {
	sess := c.active()
	if sess == nil {
		return ErrNoSession
	}
	return sess.markAllRead(ctx)
}

func (c *Controller) Accept(ctx context.Context, n Notification) error {
	sess := c.active()
	if sess == nil {
		return ErrNoSession
	}
	return sess.resolveInvite(ctx, n, DecisionAccept)
}

func (c *Controller) Reject(ctx context.Context, n Notification) error {
	sess := c.active()
	if sess == nil {
		return ErrNoSession
	}
	return sess.resolveInvite(ctx, n, DecisionReject)
}

func (c *Controller) active() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
