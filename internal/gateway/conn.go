package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yk2estrella/leitobot3.0/messaging"
)

// errConnClosed is returned by in-flight calls when the socket goes away.
var errConnClosed = errors.New("gateway: connection closed")

// Application close codes start at 4000 on the wire; the gateway's own codes
// (like 401 for logged-out) ride on top of that base.
const appCloseCodeBase = 4000

type rpcOutcome struct {
	result json.RawMessage
	err    error
}

// Conn is one live websocket connection to the gateway. A single read loop
// takes frames off the socket; Messenger actions are request/response calls
// correlated by uuid. Inbound events go through an unbounded queue drained
// by a separate forwarding goroutine, so the read loop can always reach the
// response frames even while the event consumer is busy inside an RPC.
type Conn struct {
	logger *slog.Logger
	ws     *websocket.Conn
	events chan messaging.Event
	done   chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan rpcOutcome

	queueMu   sync.Mutex
	queue     []messaging.Event
	queueDone bool
	queued    chan struct{}

	closeOnce sync.Once
}

func newConn(logger *slog.Logger, ws *websocket.Conn) *Conn {
	return &Conn{
		logger:  logger,
		ws:      ws,
		events:  make(chan messaging.Event),
		done:    make(chan struct{}),
		pending: make(map[string]chan rpcOutcome),
		queued:  make(chan struct{}, 1),
	}
}

func (c *Conn) Events() <-chan messaging.Event { return c.events }

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
	return nil
}

// readLoop consumes frames until the socket ends, then fails all in-flight
// calls and seals the event queue. It must never block on event delivery:
// a response frame behind a burst of events has to stay reachable while the
// consumer is inside an RPC waiting for exactly that response.
func (c *Conn) readLoop() {
	defer func() {
		c.failPending(errConnClosed)
		c.sealQueue()
	}()
	for {
		var env envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				c.enqueue(messaging.Event{Kind: messaging.EventClosed, Cause: closeCauseFromError(err)})
			}
			return
		}
		switch env.Type {
		case frameEvent:
			if env.Event == nil {
				c.logger.Warn("gateway_event_missing_body")
				continue
			}
			c.enqueue(eventFromFrame(*env.Event))
		case frameResponse:
			c.deliverResponse(env)
		default:
			c.logger.Debug("gateway_frame_ignored", "type", env.Type)
		}
	}
}

func (c *Conn) enqueue(ev messaging.Event) {
	c.queueMu.Lock()
	c.queue = append(c.queue, ev)
	c.queueMu.Unlock()
	select {
	case c.queued <- struct{}{}:
	default:
	}
}

func (c *Conn) sealQueue() {
	c.queueMu.Lock()
	c.queueDone = true
	c.queueMu.Unlock()
	select {
	case c.queued <- struct{}{}:
	default:
	}
}

// forwardLoop drains the queue into the events channel and closes it once
// the read loop has sealed the queue and every event is handed over.
func (c *Conn) forwardLoop() {
	defer close(c.events)
	for {
		c.queueMu.Lock()
		batch := c.queue
		c.queue = nil
		sealed := c.queueDone
		c.queueMu.Unlock()

		for _, ev := range batch {
			select {
			case c.events <- ev:
			case <-c.done:
				return
			}
		}
		if sealed {
			return
		}
		select {
		case <-c.queued:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) deliverResponse(env envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("gateway_response_unmatched", "id", env.ID)
		return
	}
	outcome := rpcOutcome{result: env.Result}
	if env.Error != "" {
		outcome.err = fmt.Errorf("gateway: %s failed: %s", env.Method, env.Error)
	}
	ch <- outcome
}

func (c *Conn) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan rpcOutcome)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- rpcOutcome{err: err}
	}
}

// call performs one request/response round trip. out may be nil when the
// method has no result payload.
func (c *Conn) call(ctx context.Context, method string, params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("gateway: encode %s params: %w", method, err)
	}
	id := uuid.NewString()
	ch := make(chan rpcOutcome, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.ws.WriteJSON(envelope{Type: frameRequest, ID: id, Method: method, Params: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("gateway: send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case <-c.done:
		return errConnClosed
	case outcome := <-ch:
		if outcome.err != nil {
			return outcome.err
		}
		if out != nil {
			if err := json.Unmarshal(outcome.result, out); err != nil {
				return fmt.Errorf("gateway: decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Conn) SendText(ctx context.Context, conversation string, text string, mentions []string) error {
	return c.call(ctx, methodSendText, sendTextParams{
		Conversation: conversation,
		Text:         text,
		Mentions:     mentions,
	}, nil)
}

func (c *Conn) SendImage(ctx context.Context, conversation string, imageURL string, caption string, mentions []string) error {
	return c.call(ctx, methodSendImage, sendImageParams{
		Conversation: conversation,
		ImageURL:     imageURL,
		Caption:      caption,
		Mentions:     mentions,
	}, nil)
}

func (c *Conn) ProfileImageURL(ctx context.Context, participant string) (string, error) {
	var out profileImageResult
	if err := c.call(ctx, methodProfileImageURL, profileImageParams{Participant: participant}, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Conn) GroupMembers(ctx context.Context, conversation string) ([]string, error) {
	var out groupMembersResult
	if err := c.call(ctx, methodGroupMembers, groupMembersParams{Conversation: conversation}, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

func (c *Conn) SetGroupAnnounceOnly(ctx context.Context, conversation string, announceOnly bool) error {
	return c.call(ctx, methodGroupSetting, groupSettingParams{
		Conversation: conversation,
		AnnounceOnly: announceOnly,
	}, nil)
}

func (c *Conn) RemoveParticipant(ctx context.Context, conversation string, participant string) error {
	return c.call(ctx, methodRemoveParticipant, removeParticipantParams{
		Conversation: conversation,
		Participant:  participant,
	}, nil)
}

func eventFromFrame(frame eventFrame) messaging.Event {
	ev := messaging.Event{Kind: messaging.EventKind(frame.Kind)}
	switch ev.Kind {
	case messaging.EventPairingToken:
		ev.PairingToken = frame.PairingToken
	case messaging.EventClosed:
		if frame.CloseCode != 0 || frame.CloseReason != "" {
			ev.Cause = &messaging.CloseError{Code: frame.CloseCode, Reason: frame.CloseReason}
		}
	case messaging.EventCredentials:
		ev.Credentials = frame.Credentials
	case messaging.EventMessage:
		if frame.Message != nil {
			ev.Message = &messaging.Message{
				Conversation: frame.Message.Conversation,
				Sender:       frame.Message.Sender,
				Text:         frame.Message.Text,
				QuotedSender: frame.Message.QuotedSender,
				FromSelf:     frame.Message.FromSelf,
				IsGroup:      frame.Message.IsGroup,
			}
		}
	case messaging.EventMembership:
		if frame.Membership != nil {
			ev.Membership = &messaging.MembershipChange{
				Conversation: frame.Membership.Conversation,
				Participants: frame.Membership.Participants,
				Action:       messaging.MembershipAction(frame.Membership.Action),
			}
		}
	}
	return ev
}

// closeCauseFromError maps a socket-level failure to a close cause. Websocket
// application close codes above the 4000 base carry gateway codes, so 4401
// means the session was logged out.
func closeCauseFromError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code >= appCloseCodeBase {
		return &messaging.CloseError{Code: closeErr.Code - appCloseCodeBase, Reason: closeErr.Text}
	}
	return err
}
