package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
	"github.com/pallavi191/codecraft-sub001/internal/protocol"
)

// attach tears down any existing channel, dials a fresh one and joins the
// session on it. Exactly one joinSession goes out per successful dial, and
// exactly one reader goroutine serves each channel, so a reconnect can never
// leave a second listener behind.
func (c *Client) attach(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	c.closing = false
	c.teardownLocked()
	c.connStatus = ConnConnecting
	c.attempt = 0
	c.notifyLocked()
	c.mu.Unlock()

	if err := c.dialAndJoin(ctx, sessionID); err != nil {
		c.mu.Lock()
		c.connStatus = ConnDisconnected
		c.notifyLocked()
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) dialAndJoin(ctx context.Context, sessionID string) error {
	ch, err := c.dialer.Dial(ctx, c.channelURL())
	if err != nil {
		return fmt.Errorf("client: dial channel: %w", err)
	}

	join := protocol.MustEnvelope(protocol.ControlJoinSession, protocol.JoinSession{SessionID: sessionID})
	if err := ch.Write(join); err != nil {
		ch.Close()
		return fmt.Errorf("client: join session: %w", err)
	}

	c.mu.Lock()
	c.teardownLocked()
	c.channel = ch
	c.connStatus = ConnConnected
	c.attempt = 0
	// Submissions in flight on the old channel either reached the server,
	// in which case the rejoin snapshot acknowledges them, or they are
	// gone and safe to submit again.
	c.pending = make(map[int]bool)
	c.notifyLocked()
	c.mu.Unlock()

	go c.readLoop(ch, sessionID)
	return nil
}

// channelURL derives the websocket endpoint from the base URL.
func (c *Client) channelURL() string {
	u := c.cfg.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/v1/ws?token=" + c.cfg.Token
}

// teardownLocked detaches the current channel, if any. Clearing c.channel
// first makes the old reader's identity check fail, so its exit never
// triggers a reconnect for a channel we discarded on purpose.
func (c *Client) teardownLocked() {
	if c.channel == nil {
		return
	}
	old := c.channel
	c.channel = nil
	go old.Close()
}

func (c *Client) readLoop(ch Channel, sessionID string) {
	for {
		env, err := ch.Read()
		if err != nil {
			c.channelDown(ch, sessionID)
			return
		}
		c.dispatch(env)
	}
}

// channelDown runs when a reader exits with an error. A reader whose channel
// is no longer current was torn down deliberately and stays silent.
func (c *Client) channelDown(ch Channel, sessionID string) {
	c.mu.Lock()
	if c.channel != ch || c.closing {
		c.mu.Unlock()
		return
	}
	c.channel = nil

	if c.session == nil || c.session.Status.Terminal() {
		c.connStatus = ConnDisconnected
		c.notifyLocked()
		c.mu.Unlock()
		return
	}

	c.connStatus = ConnReconnecting
	c.notifyLocked()
	c.mu.Unlock()

	go c.reconnect(sessionID)
}

// reconnect retries with doubling, capped delays. After the last failed
// attempt the client settles in ConnFailed with its session state intact, so
// the user still sees the match and can retry or leave explicitly.
func (c *Client) reconnect(sessionID string) {
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			return
		}
		c.attempt = attempt
		c.connStatus = ConnReconnecting
		c.notifyLocked()
		c.mu.Unlock()

		c.clock.Sleep(c.backoff(attempt))

		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		err := c.dialAndJoin(context.Background(), sessionID)
		if err == nil {
			return
		}
		c.log.Warn("reconnect attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	c.mu.Lock()
	c.connStatus = ConnFailed
	c.notifyLocked()
	c.mu.Unlock()
}

func (c *Client) backoff(attempt int) (d time.Duration) {
	d = c.cfg.ReconnectBaseDelay << (attempt - 1)
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	return d
}

// sendControl writes one control message on the current channel.
func (c *Client) sendControl(event string, payload any) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("client: not connected")
	}
	return ch.Write(env)
}

func (c *Client) onTick(int) {
	c.mu.Lock()
	c.notifyLocked()
	c.mu.Unlock()
}

// onLocalTimeout asks the server to check its deadline. The session keeps
// its current status until the server answers with sessionFinished; the
// local clock expiring is a hint, never a verdict.
func (c *Client) onLocalTimeout() {
	c.mu.Lock()
	if c.session == nil || c.session.Status != domain.StatusOngoing {
		c.mu.Unlock()
		return
	}
	sessionID := c.session.SessionID
	c.notifyLocked()
	c.mu.Unlock()

	if err := c.sendControl(protocol.ControlSessionTimeout, protocol.SessionTimeout{SessionID: sessionID}); err != nil {
		c.log.Warn("timeout notify failed", slog.String("error", err.Error()))
	}
}
