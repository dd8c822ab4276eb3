package inboxsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	label  string
	events chan []byte
	closed chan struct{}
	once   sync.Once
	log    *eventLog
}

func newFakeStream(label string, log *eventLog) *fakeStream {
	return &fakeStream{
		label:  label,
		events: make(chan []byte, 16),
		closed: make(chan struct{}),
		log:    log,
	}
}

func (f *fakeStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.closed:
		return nil, errors.New("stream closed")
	case raw := <-f.events:
		return raw, nil
	}
}

func (f *fakeStream) Close() error {
	f.once.Do(func() {
		close(f.closed)
		if f.log != nil {
			f.log.append("close:" + f.label)
		}
	})
	return nil
}

func (f *fakeStream) send(t *testing.T, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal stream payload: %v", err)
	}
	f.events <- raw
}

type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) append(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

type fakeClient struct {
	mu           sync.Mutex
	inbox        []Notification
	fetchErr     error
	fetches      int
	stream       *fakeStream
	openErr      error
	opens        int
	markAllErr   error
	markAllCalls int
	markedRead   []string
	resolveErr   error
	resolved     []string
}

func (c *fakeClient) FetchInbox(ctx context.Context) ([]Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	out := make([]Notification, len(c.inbox))
	copy(out, c.inbox)
	return out, nil
}

func (c *fakeClient) OpenStream(ctx context.Context) (EventStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.openErr != nil {
		return nil, c.openErr
	}
	if c.stream == nil {
		c.stream = newFakeStream("stream", nil)
	}
	return c.stream, nil
}

func (c *fakeClient) MarkAllRead(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markAllCalls++
	return c.markAllErr
}

func (c *fakeClient) MarkRead(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markedRead = append(c.markedRead, id)
	return nil
}

func (c *fakeClient) ResolveInvite(ctx context.Context, projectID string, decision Decision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolveErr != nil {
		return c.resolveErr
	}
	c.resolved = append(c.resolved, fmt.Sprintf("%s:%s", projectID, decision))
	return nil
}

func (c *fakeClient) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func (c *fakeClient) setInbox(list []Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = list
}

func (c *fakeClient) setFetchErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchErr = err
}

func waitFor(t *testing.T, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never satisfied: %s", message)
}

func startTestController(t *testing.T, client *fakeClient, opts Options) *Controller {
	t.Helper()
	if opts.PullInterval == 0 {
		opts.PullInterval = time.Hour
	}
	controller := NewController(func(token, userID string) RemoteClient {
		return client
	}, opts)
	t.Cleanup(controller.Clear)
	return controller
}

func TestSessionInitialPullPopulatesInbox(t *testing.T) {
	client := &fakeClient{inbox: []Notification{
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "graded", IsRead: true},
		{ID: "n2", RecipientID: "u1", Type: TypeGeneric, Message: "reminder"},
	}}
	controller := startTestController(t, client, Options{})
	controller.SetIdentity("token-a", "u1")

	waitFor(t, func() bool { return len(controller.Inbox()) == 2 }, "initial pull to land")
	if controller.UnreadCount() != 1 {
		t.Fatalf("expected unread 1 from authoritative pull, got %d", controller.UnreadCount())
	}
}

func TestPullDiscardsForeignRecipients(t *testing.T) {
	client := &fakeClient{inbox: []Notification{
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "mine"},
		{ID: "n2", RecipientID: "intruder", Type: TypeGeneric, Message: "not mine"},
	}}
	controller := startTestController(t, client, Options{})
	controller.SetIdentity("token-a", "u1")

	waitFor(t, func() bool { return len(controller.Inbox()) == 1 }, "filtered pull to land")
	if got := controller.Inbox()[0].ID; got != "n1" {
		t.Fatalf("expected only n1 kept, got %q", got)
	}
}

func TestPullFailureLeavesInboxAndKeepsCycling(t *testing.T) {
	client := &fakeClient{inbox: []Notification{
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "first"},
	}}
	controller := startTestController(t, client, Options{})
	controller.SetIdentity("token-a", "u1")
	waitFor(t, func() bool { return len(controller.Inbox()) == 1 }, "initial pull to land")

	client.setFetchErr(errors.New("backend flaked"))
	controller.Refresh()
	waitFor(t, func() bool { return client.fetchCount() >= 2 }, "failed refresh to run")
	if len(controller.Inbox()) != 1 {
		t.Fatalf("expected inbox unchanged after failed cycle, got %d entries", len(controller.Inbox()))
	}

	client.setFetchErr(nil)
	client.setInbox([]Notification{
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "first"},
		{ID: "n2", RecipientID: "u1", Type: TypeGeneric, Message: "second"},
	})
	controller.Refresh()
	waitFor(t, func() bool { return len(controller.Inbox()) == 2 }, "cycle after failure to recover")
}

func TestPushPrependsFiltersHeartbeatsAndForeignEvents(t *testing.T) {
	stream := newFakeStream("a", nil)
	client := &fakeClient{stream: stream}
	controller := startTestController(t, client, Options{})
	controller.SetIdentity("token-a", "u1")
	waitFor(t, func() bool { return client.fetchCount() >= 1 }, "session to start")

	stream.send(t, map[string]string{"type": "heartbeat"})
	stream.send(t, Notification{ID: "foreign", RecipientID: "u2", Type: TypeGeneric, Message: "stale"})
	stream.send(t, Notification{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "fresh", IsRead: true})

	waitFor(t, func() bool { return len(controller.Inbox()) == 1 }, "push event to land")
	got := controller.Inbox()[0]
	if got.ID != "n1" {
		t.Fatalf("expected n1 delivered, got %q", got.ID)
	}
	if got.IsRead {
		t.Fatalf("expected push delivery to insert as unread")
	}
	if controller.UnreadCount() != 1 {
		t.Fatalf("expected unread 1, got %d", controller.UnreadCount())
	}
}

func TestPushMalformedEventKeepsConnection(t *testing.T) {
	stream := newFakeStream("a", nil)
	client := &fakeClient{stream: stream}
	controller := startTestController(t, client, Options{})
	controller.SetIdentity("token-a", "u1")
	waitFor(t, func() bool { return client.fetchCount() >= 1 }, "session to start")

	stream.events <- []byte(`{"not json`)
	stream.send(t, Notification{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "after junk"})

	waitFor(t, func() bool { return len(controller.Inbox()) == 1 }, "event after malformed payload to land")
}

func TestStreamFailureDegradesToPollingWithoutReconnect(t *testing.T) {
	stream := newFakeStream("a", nil)
	client := &fakeClient{stream: stream, inbox: []Notification{
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "polled"},
	}}
	controller := startTestController(t, client, Options{})
	controller.SetIdentity("token-a", "u1")
	waitFor(t, func() bool { return len(controller.Inbox()) == 1 }, "initial pull to land")

	stream.Close()

	client.setInbox([]Notification{
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "polled"},
		{ID: "n2", RecipientID: "u1", Type: TypeGeneric, Message: "still polled"},
	})
	controller.Refresh()
	waitFor(t, func() bool { return len(controller.Inbox()) == 2 }, "pull to keep working after stream death")

	client.mu.Lock()
	opens := client.opens
	client.mu.Unlock()
	if opens != 1 {
		t.Fatalf("expected no reconnect attempts, stream opened %d times", opens)
	}
}

func TestStreamOpenFailureStillPolls(t *testing.T) {
	client := &fakeClient{
		openErr: errors.New("handshake refused"),
		inbox: []Notification{
			{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "polled"},
		},
	}
	controller := startTestController(t, client, Options{})
	controller.SetIdentity("token-a", "u1")
	waitFor(t, func() bool { return len(controller.Inbox()) == 1 }, "pull to land without a stream")
}

func TestIdentitySwitchTearsDownBeforeSetup(t *testing.T) {
	log := &eventLog{}
	streams := map[string]*fakeStream{
		"userA": newFakeStream("userA", log),
		"userB": newFakeStream("userB", log),
	}
	clients := map[string]*fakeClient{
		"userA": {stream: streams["userA"]},
		"userB": {stream: streams["userB"]},
	}
	controller := NewController(func(token, userID string) RemoteClient {
		log.append("client:" + userID)
		return clients[userID]
	}, Options{PullInterval: time.Hour})
	defer controller.Clear()

	controller.SetIdentity("token-a", "userA")
	waitFor(t, func() bool { return clients["userA"].fetchCount() >= 1 }, "session A to start")

	controller.SetIdentity("token-b", "userB")
	waitFor(t, func() bool { return clients["userB"].fetchCount() >= 1 }, "session B to start")

	entries := log.snapshot()
	closeA, clientB := -1, -1
	for i, entry := range entries {
		switch entry {
		case "close:userA":
			closeA = i
		case "client:userB":
			clientB = i
		}
	}
	if closeA == -1 || clientB == -1 {
		t.Fatalf("expected both teardown and setup in log, got %v", entries)
	}
	if closeA > clientB {
		t.Fatalf("expected A torn down before B created, got %v", entries)
	}
}

func TestEventsForPreviousIdentityNeverApply(t *testing.T) {
	streamA := newFakeStream("userA", nil)
	clientA := &fakeClient{stream: streamA}
	clientB := &fakeClient{stream: newFakeStream("userB", nil)}
	clients := map[string]*fakeClient{"userA": clientA, "userB": clientB}
	controller := NewController(func(token, userID string) RemoteClient {
		return clients[userID]
	}, Options{PullInterval: time.Hour})
	defer controller.Clear()

	controller.SetIdentity("token-a", "userA")
	waitFor(t, func() bool { return clientA.fetchCount() >= 1 }, "session A to start")

	controller.SetIdentity("token-b", "userB")
	waitFor(t, func() bool { return clientB.fetchCount() >= 1 }, "session B to start")

	// Deliver a late event addressed to A on A's dead stream; it must not
	// surface in B's inbox.
	select {
	case streamA.events <- []byte(`{"id": "late", "recipientId": "userA", "type": "generic", "message": "late"}`):
	default:
	}
	time.Sleep(50 * time.Millisecond)
	if len(controller.Inbox()) != 0 {
		t.Fatalf("expected B's inbox empty, got %d entries", len(controller.Inbox()))
	}
}

func TestMarkAllReadMutatesOnlyAfterServerAck(t *testing.T) {
	client := &fakeClient{inbox: []Notification{
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "one"},
		{ID: "n2", RecipientID: "u1", Type: TypeGeneric, Message: "two"},
	}}
	controller := startTestController(t, client, Options{})
	controller.SetIdentity("token-a", "u1")
	waitFor(t, func() bool { return controller.UnreadCount() == 2 }, "initial pull to land")

	client.markAllErr = errors.New("backend refused")
	if err := controller.MarkAllRead(context.Background()); err == nil {
		t.Fatalf("expected mark-all-read failure to surface")
	}
	if controller.UnreadCount() != 2 {
		t.Fatalf("expected unread untouched after failure, got %d", controller.UnreadCount())
	}

	client.markAllErr = nil
	if err := controller.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if controller.UnreadCount() != 0 {
		t.Fatalf("expected unread 0 after ack, got %d", controller.UnreadCount())
	}
}

func TestControllerWithoutSession(t *testing.T) {
	controller := NewController(func(token, userID string) RemoteClient {
		t.Fatalf("factory must not run without an identity")
		return nil
	}, Options{PullInterval: time.Hour})

	if controller.Inbox() != nil {
		t.Fatalf("expected nil inbox without a session")
	}
	if controller.UnreadCount() != 0 {
		t.Fatalf("expected unread 0 without a session")
	}
	controller.Refresh()
	if err := controller.MarkAllRead(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestSetIdentityWithBlankCredentialClears(t *testing.T) {
	client := &fakeClient{inbox: []Notification{
		{ID: "n1", RecipientID: "u1", Type: TypeGeneric, Message: "one"},
	}}
	controller := startTestController(t, client, Options{})
	controller.SetIdentity("token-a", "u1")
	waitFor(t, func() bool { return len(controller.Inbox()) == 1 }, "session to start")

	controller.SetIdentity("", "u1")
	if controller.Inbox() != nil {
		t.Fatalf("expected blank credential to clear the session")
	}
}
