// Package gateway implements the messaging contract over a websocket to a
// session gateway. The gateway owns the actual WhatsApp-style session; this
// adapter speaks a small JSON envelope protocol with it: inbound "event"
// frames and id-correlated "request"/"response" frames for actions.
package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yk2estrella/leitobot3.0/messaging"
)

const (
	headerAuthorization = "Authorization"
	headerCredentials   = "X-Session-Credentials"
)

type Options struct {
	// URL is the gateway websocket endpoint (ws:// or wss://).
	URL string
	// Token authenticates this client to the gateway itself. Optional.
	Token  string
	Logger *slog.Logger
	Dialer *websocket.Dialer
}

// Connector dials the gateway. It implements messaging.Connector.
type Connector struct {
	url    string
	token  string
	logger *slog.Logger
	dialer *websocket.Dialer
}

func NewConnector(opts Options) (*Connector, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, fmt.Errorf("gateway: url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = 15 * time.Second
		dialer = &d
	}
	return &Connector{
		url:    url,
		token:  strings.TrimSpace(opts.Token),
		logger: logger,
		dialer: dialer,
	}, nil
}

// Dial opens a websocket to the gateway, presenting saved credential
// material (if any) in a header so the gateway can resume the session
// instead of starting a fresh pairing.
func (c *Connector) Dial(ctx context.Context, credentials []byte) (messaging.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set(headerAuthorization, "Bearer "+c.token)
	}
	if len(credentials) > 0 {
		header.Set(headerCredentials, base64.StdEncoding.EncodeToString(credentials))
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gateway: dial %s: http %d: %w", c.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("gateway: dial %s: %w", c.url, err)
	}

	conn := newConn(c.logger, ws)
	go conn.readLoop()
	go conn.forwardLoop()
	return conn, nil
}
