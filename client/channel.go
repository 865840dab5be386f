package client

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/pallavi191/codecraft-sub001/internal/protocol"
)

// Channel is one attached session event stream: ordered, reliable delivery
// of envelopes in both directions until closed.
type Channel interface {
	// Read blocks for the next server event. It returns an error once the
	// transport drops or the channel is closed.
	Read() (protocol.Envelope, error)
	Write(env protocol.Envelope) error
	Close() error
}

// Dialer opens a Channel. Production uses the websocket dialer; tests
// inject in-memory pipes and failing dialers.
type Dialer interface {
	Dial(ctx context.Context, url string) (Channel, error)
}

// WebsocketDialer dials the server's channel endpoint over gorilla
// websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{dialer: websocket.DefaultDialer}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Channel, error) {
	ws, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsChannel{ws: ws}, nil
}

type wsChannel struct {
	ws *websocket.Conn
}

func (c *wsChannel) Read() (protocol.Envelope, error) {
	var env protocol.Envelope
	err := c.ws.ReadJSON(&env)
	return env, err
}

func (c *wsChannel) Write(env protocol.Envelope) error {
	return c.ws.WriteJSON(env)
}

func (c *wsChannel) Close() error {
	return c.ws.Close()
}
