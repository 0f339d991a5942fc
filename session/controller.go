// Package session owns the connection lifecycle: it dials the messaging
// backend, pumps inbound events to the command handlers, and decides
// reconnect versus terminate when the connection drops.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yk2estrella/leitobot3.0/internal/backoff"
	"github.com/yk2estrella/leitobot3.0/messaging"
)

// ErrLoggedOut is returned by Run when the backend reports the session was
// explicitly invalidated. The credentials are dead; a human must pair again.
var ErrLoggedOut = errors.New("session: logged out by backend")

type State string

const (
	StateDisconnected State = "disconnected"
	StatePairing      State = "pairing"
	StateConnected    State = "connected"
	StateTerminated   State = "terminated"
)

// Dispatcher consumes the events the controller does not interpret itself.
// Calls happen one at a time, in arrival order, with the live connection's
// action capability.
type Dispatcher interface {
	HandleMessage(ctx context.Context, m messaging.Messenger, msg messaging.Message)
	HandleMembership(ctx context.Context, m messaging.Messenger, change messaging.MembershipChange)
}

type Options struct {
	Logger      *slog.Logger
	Connector   messaging.Connector
	Credentials *CredentialFile
	Dispatcher  Dispatcher

	// ReconnectInitial and ReconnectMax bound the backoff between
	// reconnect attempts after a retryable disconnect.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// OnPairingToken is called with each fresh credential-presentation
	// token, for surfaces like the /qr status page. Optional.
	OnPairingToken func(token string)
}

// Controller runs at most one logical connection at a time.
type Controller struct {
	logger    *slog.Logger
	connector messaging.Connector
	creds     *CredentialFile
	dispatch  Dispatcher
	onToken   func(string)
	retry     backoff.Backoff

	running atomic.Bool

	mu           sync.Mutex
	state        State
	pairingToken string
	lastCause    error
}

func New(opts Options) (*Controller, error) {
	if opts.Connector == nil {
		return nil, fmt.Errorf("session: connector is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("session: dispatcher is required")
	}
	if opts.Credentials == nil {
		return nil, fmt.Errorf("session: credential file is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		logger:    logger,
		connector: opts.Connector,
		creds:     opts.Credentials,
		dispatch:  opts.Dispatcher,
		onToken:   opts.OnPairingToken,
		retry:     backoff.Backoff{Initial: opts.ReconnectInitial, Max: opts.ReconnectMax},
		state:     StateDisconnected,
	}, nil
}

// Run connects and keeps the session alive until ctx is canceled or the
// backend logs the session out. A Run while another Run is active is a
// no-op, so concurrent starts can never open a second connection.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Info("session_start_ignored", "reason", "already_running")
		return nil
	}
	defer c.running.Store(false)

	for {
		creds, hasCreds, err := c.creds.Load()
		if err != nil {
			return err
		}
		c.logger.Info("session_dial", "has_credentials", hasCreds, "state", string(c.State()))

		conn, err := c.connector.Dial(ctx, creds)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.setState(StateDisconnected, err)
			c.logger.Warn("session_dial_error", "error", err.Error())
			if waitErr := c.waitRetry(ctx); waitErr != nil {
				return nil
			}
			continue
		}

		cause := c.pump(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			c.setState(StateDisconnected, cause)
			c.logger.Info("session_stop", "reason", "context_canceled")
			return nil
		}
		if messaging.IsLoggedOut(cause) {
			c.setState(StateTerminated, cause)
			c.logger.Error("session_terminated", "cause", cause.Error())
			return ErrLoggedOut
		}
		c.setState(StateDisconnected, cause)
		causeText := "stream ended"
		if cause != nil {
			causeText = cause.Error()
		}
		c.logger.Warn("session_closed", "cause", causeText, "reconnect", true)
		if waitErr := c.waitRetry(ctx); waitErr != nil {
			return nil
		}
	}
}

// pump consumes the connection's event stream until it ends, returning the
// close cause (nil when the stream just ended).
func (c *Controller) pump(ctx context.Context, conn messaging.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-conn.Events():
			if !ok {
				return nil
			}
			if cause, closed := c.handleEvent(ctx, conn, ev); closed {
				return cause
			}
		}
	}
}

func (c *Controller) handleEvent(ctx context.Context, conn messaging.Conn, ev messaging.Event) (cause error, closed bool) {
	switch ev.Kind {
	case messaging.EventPairingToken:
		c.recordPairingToken(ev.PairingToken)
		c.logger.Info("session_pairing_token", "token_len", len(ev.PairingToken))
	case messaging.EventConnected:
		c.setState(StateConnected, nil)
		c.clearPairingToken()
		c.retry.Reset()
		c.logger.Info("session_connected")
	case messaging.EventClosed:
		return ev.Cause, true
	case messaging.EventCredentials:
		if err := c.creds.Save(ev.Credentials); err != nil {
			c.logger.Error("session_credentials_save_error", "error", err.Error())
		} else {
			c.logger.Info("session_credentials_saved", "bytes", len(ev.Credentials))
		}
	case messaging.EventMembership:
		if ev.Membership != nil {
			c.dispatch.HandleMembership(ctx, conn, *ev.Membership)
		}
	case messaging.EventMessage:
		if ev.Message != nil {
			c.dispatch.HandleMessage(ctx, conn, *ev.Message)
		}
	default:
		c.logger.Debug("session_event_ignored", "kind", string(ev.Kind))
	}
	return nil, false
}

func (c *Controller) waitRetry(ctx context.Context) error {
	delay := c.retry.Next()
	c.logger.Info("session_reconnect_wait", "delay", delay.String())
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State reports the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PairingToken returns the latest unconsumed credential-presentation token.
func (c *Controller) PairingToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairingToken, c.pairingToken != ""
}

// LastCause reports the most recent disconnect cause, if any.
func (c *Controller) LastCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCause
}

func (c *Controller) setState(state State, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	if cause != nil {
		c.lastCause = cause
	}
}

func (c *Controller) recordPairingToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairingToken = token
	if c.state != StateConnected {
		c.state = StatePairing
	}
	if c.onToken != nil {
		// Called under the lock so tokens are published in order.
		c.onToken(token)
	}
}

func (c *Controller) clearPairingToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairingToken = ""
}
