package session

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yk2estrella/leitobot3.0/messaging"
)

type nopMessenger struct{}

func (nopMessenger) SendText(context.Context, string, string, []string) error { return nil }
func (nopMessenger) SendImage(context.Context, string, string, string, []string) error {
	return nil
}
func (nopMessenger) ProfileImageURL(context.Context, string) (string, error)    { return "", nil }
func (nopMessenger) GroupMembers(context.Context, string) ([]string, error)     { return nil, nil }
func (nopMessenger) SetGroupAnnounceOnly(context.Context, string, bool) error   { return nil }
func (nopMessenger) RemoveParticipant(context.Context, string, string) error    { return nil }

type scriptedConn struct {
	nopMessenger
	events chan messaging.Event
}

func (c *scriptedConn) Events() <-chan messaging.Event { return c.events }
func (c *scriptedConn) Close() error                   { return nil }

func newScriptedConn(events ...messaging.Event) *scriptedConn {
	ch := make(chan messaging.Event, len(events)+1)
	for _, ev := range events {
		ch <- ev
	}
	return &scriptedConn{events: ch}
}

type dialStep struct {
	conn *scriptedConn
	err  error
}

type scriptedConnector struct {
	mu    sync.Mutex
	steps []dialStep
	dials int
}

func (c *scriptedConnector) Dial(_ context.Context, _ []byte) (messaging.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dials >= len(c.steps) {
		// Out of script: block the run by handing out an idle connection.
		c.dials++
		return newScriptedConn(), nil
	}
	step := c.steps[c.dials]
	c.dials++
	if step.err != nil {
		return nil, step.err
	}
	return step.conn, nil
}

func (c *scriptedConnector) dialCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

type recordingDispatcher struct {
	mu          sync.Mutex
	messages    []messaging.Message
	memberships []messaging.MembershipChange
}

func (d *recordingDispatcher) HandleMessage(_ context.Context, _ messaging.Messenger, msg messaging.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
}

func (d *recordingDispatcher) HandleMembership(_ context.Context, _ messaging.Messenger, change messaging.MembershipChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberships = append(d.memberships, change)
}

func loggedOutEvent() messaging.Event {
	return messaging.Event{
		Kind:  messaging.EventClosed,
		Cause: &messaging.CloseError{Code: messaging.CloseCodeLoggedOut, Reason: "logged out"},
	}
}

func newTestController(t *testing.T, connector messaging.Connector, dispatcher Dispatcher, onToken func(string)) (*Controller, *CredentialFile) {
	t.Helper()
	creds, err := NewCredentialFile(filepath.Join(t.TempDir(), "session.creds"))
	if err != nil {
		t.Fatalf("NewCredentialFile() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	ctl, err := New(Options{
		Logger:           logger,
		Connector:        connector,
		Credentials:      creds,
		Dispatcher:       dispatcher,
		ReconnectInitial: time.Millisecond,
		ReconnectMax:     2 * time.Millisecond,
		OnPairingToken:   onToken,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return ctl, creds
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func TestTerminalCloseStopsWithoutReconnect(t *testing.T) {
	t.Parallel()

	connector := &scriptedConnector{steps: []dialStep{
		{conn: newScriptedConn(
			messaging.Event{Kind: messaging.EventConnected},
			loggedOutEvent(),
		)},
	}}
	ctl, _ := newTestController(t, connector, &recordingDispatcher{}, nil)

	err := ctl.Run(context.Background())
	if !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run() error = %v, want ErrLoggedOut", err)
	}
	if got := connector.dialCount(); got != 1 {
		t.Fatalf("dial count = %d, want 1 (no reconnect after terminal close)", got)
	}
	if ctl.State() != StateTerminated {
		t.Fatalf("State() = %q, want %q", ctl.State(), StateTerminated)
	}
}

func TestRetryableCloseReconnectsExactlyOnce(t *testing.T) {
	t.Parallel()

	connector := &scriptedConnector{steps: []dialStep{
		{conn: newScriptedConn(
			messaging.Event{Kind: messaging.EventConnected},
			messaging.Event{Kind: messaging.EventClosed, Cause: &messaging.CloseError{Code: 408, Reason: "timed out"}},
		)},
		{conn: newScriptedConn(
			messaging.Event{Kind: messaging.EventConnected},
			loggedOutEvent(),
		)},
	}}
	ctl, _ := newTestController(t, connector, &recordingDispatcher{}, nil)

	err := ctl.Run(context.Background())
	if !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run() error = %v, want ErrLoggedOut", err)
	}
	if got := connector.dialCount(); got != 2 {
		t.Fatalf("dial count = %d, want 2 (one reconnect after retryable close)", got)
	}
}

func TestEndedStreamIsRetryable(t *testing.T) {
	t.Parallel()

	ended := newScriptedConn(messaging.Event{Kind: messaging.EventConnected})
	close(ended.events)
	connector := &scriptedConnector{steps: []dialStep{
		{conn: ended},
		{conn: newScriptedConn(loggedOutEvent())},
	}}
	ctl, _ := newTestController(t, connector, &recordingDispatcher{}, nil)

	if err := ctl.Run(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run() error = %v, want ErrLoggedOut", err)
	}
	if got := connector.dialCount(); got != 2 {
		t.Fatalf("dial count = %d, want 2", got)
	}
}

func TestDialErrorIsRetried(t *testing.T) {
	t.Parallel()

	connector := &scriptedConnector{steps: []dialStep{
		{err: errors.New("gateway unreachable")},
		{conn: newScriptedConn(loggedOutEvent())},
	}}
	ctl, _ := newTestController(t, connector, &recordingDispatcher{}, nil)

	if err := ctl.Run(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run() error = %v, want ErrLoggedOut", err)
	}
	if got := connector.dialCount(); got != 2 {
		t.Fatalf("dial count = %d, want 2", got)
	}
}

func TestConcurrentRunIsNoOp(t *testing.T) {
	t.Parallel()

	connector := &scriptedConnector{steps: []dialStep{
		{conn: newScriptedConn(messaging.Event{Kind: messaging.EventConnected})},
	}}
	ctl, _ := newTestController(t, connector, &recordingDispatcher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctx) }()

	waitForState(t, ctl, StateConnected)
	if err := ctl.Run(ctx); err != nil {
		t.Fatalf("second Run() error = %v, want nil no-op", err)
	}
	if got := connector.dialCount(); got != 1 {
		t.Fatalf("dial count = %d, want 1 (second Run must not dial)", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v, want nil on cancel", err)
	}
}

func TestPairingTokenPublishedAndClearedOnConnect(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var tokens []string
	connector := &scriptedConnector{steps: []dialStep{
		{conn: newScriptedConn(
			messaging.Event{Kind: messaging.EventPairingToken, PairingToken: "qr-1"},
			messaging.Event{Kind: messaging.EventPairingToken, PairingToken: "qr-2"},
			messaging.Event{Kind: messaging.EventConnected},
			loggedOutEvent(),
		)},
	}}
	ctl, _ := newTestController(t, connector, &recordingDispatcher{}, func(token string) {
		mu.Lock()
		defer mu.Unlock()
		tokens = append(tokens, token)
	})

	_ = ctl.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(tokens) != 2 || tokens[0] != "qr-1" || tokens[1] != "qr-2" {
		t.Fatalf("published tokens = %v, want [qr-1 qr-2]", tokens)
	}
	if _, ok := ctl.PairingToken(); ok {
		t.Fatalf("PairingToken() should be cleared after connect")
	}
}

func TestCredentialsPersistedOnUpdate(t *testing.T) {
	t.Parallel()

	connector := &scriptedConnector{steps: []dialStep{
		{conn: newScriptedConn(
			messaging.Event{Kind: messaging.EventConnected},
			messaging.Event{Kind: messaging.EventCredentials, Credentials: []byte("new-material")},
			loggedOutEvent(),
		)},
	}}
	ctl, creds := newTestController(t, connector, &recordingDispatcher{}, nil)

	_ = ctl.Run(context.Background())

	material, found, err := creds.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !found || string(material) != "new-material" {
		t.Fatalf("Load() = (%q, %v), want updated material", material, found)
	}
}

func TestEventsForwardedInArrivalOrder(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{}
	connector := &scriptedConnector{steps: []dialStep{
		{conn: newScriptedConn(
			messaging.Event{Kind: messaging.EventConnected},
			messaging.Event{Kind: messaging.EventMessage, Message: &messaging.Message{Conversation: "c1", Text: "first"}},
			messaging.Event{Kind: messaging.EventMembership, Membership: &messaging.MembershipChange{Conversation: "c1", Participants: []string{"p"}, Action: messaging.MembershipAdd}},
			messaging.Event{Kind: messaging.EventMessage, Message: &messaging.Message{Conversation: "c1", Text: "second"}},
			loggedOutEvent(),
		)},
	}}
	ctl, _ := newTestController(t, connector, dispatcher, nil)

	_ = ctl.Run(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.messages) != 2 || dispatcher.messages[0].Text != "first" || dispatcher.messages[1].Text != "second" {
		t.Fatalf("messages = %+v, want first then second", dispatcher.messages)
	}
	if len(dispatcher.memberships) != 1 {
		t.Fatalf("memberships = %+v, want one", dispatcher.memberships)
	}
}

func waitForState(t *testing.T, ctl *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctl.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %q (now %q)", want, ctl.State())
}
