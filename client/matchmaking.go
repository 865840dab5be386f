package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pallavi191/codecraft-sub001/internal/errors"
	"github.com/pallavi191/codecraft-sub001/internal/protocol"
)

// FindRandomMatch queues for the next available opponent and attaches to the
// resulting session. Concurrent calls collapse to one: a second request
// while the first is still in flight would otherwise double-enqueue the
// player.
func (c *Client) FindRandomMatch(ctx context.Context) (protocol.SessionSnapshot, error) {
	c.mu.Lock()
	if c.findInFlight {
		c.mu.Unlock()
		return protocol.SessionSnapshot{}, fmt.Errorf("client: match request already in flight")
	}
	c.findInFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.findInFlight = false
		c.mu.Unlock()
	}()

	return c.acquireSession(ctx, http.MethodPost, "/v1/matches/random")
}

// CreateRoom opens a private room and attaches to its session. The room code
// is in the returned snapshot.
func (c *Client) CreateRoom(ctx context.Context) (protocol.SessionSnapshot, error) {
	return c.acquireSession(ctx, http.MethodPost, "/v1/rooms")
}

// JoinRoom joins a private room by code. On RoomNotFound or RoomFull the
// error carries the server's reason and no channel is dialed.
func (c *Client) JoinRoom(ctx context.Context, code string) (protocol.SessionSnapshot, error) {
	return c.acquireSession(ctx, http.MethodPost, "/v1/rooms/"+code+"/join")
}

// GetSession fetches the authoritative snapshot without attaching.
func (c *Client) GetSession(ctx context.Context, sessionID string) (protocol.SessionSnapshot, error) {
	return c.request(ctx, http.MethodGet, "/v1/sessions/"+sessionID)
}

// acquireSession runs one matchmaking request and, on success, adopts the
// session: persist the id for resume, install the snapshot, open the
// channel.
func (c *Client) acquireSession(ctx context.Context, method, path string) (protocol.SessionSnapshot, error) {
	snap, err := c.request(ctx, method, path)
	if err != nil {
		return protocol.SessionSnapshot{}, err
	}

	if err := c.store.Save(snap.SessionID); err != nil {
		c.log.Warn("persist session id", "error", err.Error())
	}

	c.mu.Lock()
	c.notice = ""
	c.applySnapshotLocked(snap, false)
	c.notifyLocked()
	c.mu.Unlock()

	if err := c.attach(ctx, snap.SessionID); err != nil {
		return snap, err
	}
	return snap, nil
}

func (c *Client) request(ctx context.Context, method, path string) (protocol.SessionSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(nil))
	if err != nil {
		return protocol.SessionSnapshot{}, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.SessionSnapshot{}, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.SessionSnapshot{}, fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return protocol.SessionSnapshot{}, decodeError(resp.StatusCode, body)
	}

	var snap protocol.SessionSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return protocol.SessionSnapshot{}, fmt.Errorf("client: decode snapshot: %w", err)
	}
	return snap, nil
}

// decodeError rebuilds the server's coded error so callers can branch on
// reasons with errors.HasReason.
func decodeError(status int, body []byte) error {
	var e errors.Error
	if err := json.Unmarshal(body, &e); err != nil || e.Message == "" {
		return fmt.Errorf("client: server returned status %d", status)
	}
	return errors.New(e.Code,
		errors.WithReason(e.Reason),
		errors.WithMessagef("%s", e.Message))
}

// Leave ends participation explicitly: tell the server, tear the channel
// down, stop the clock, forget the session id. Leaving while ongoing is a
// forfeit on the server side.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.session.SessionID
	c.mu.Unlock()

	err := c.sendControl(protocol.ControlLeaveSession, protocol.LeaveSession{SessionID: sessionID})

	c.mu.Lock()
	c.closing = true
	c.teardownLocked()
	c.connStatus = ConnDisconnected
	c.attempt = 0
	c.timer.Stop()
	c.clearResumeLocked()
	c.notifyLocked()
	c.mu.Unlock()

	return err
}

// Close releases the channel without leaving the session, keeping the
// stored id so a later Resume can pick the match back up.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closing = true
	c.teardownLocked()
	c.connStatus = ConnDisconnected
	c.timer.Stop()
	return nil
}
