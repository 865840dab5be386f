package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pallavi191/codecraft-sub001/internal/errors"
	"github.com/pallavi191/codecraft-sub001/internal/protocol"
	"github.com/pallavi191/codecraft-sub001/internal/telemetry"
)

// SessionEngine is the channel-facing half of the engine.
type SessionEngine interface {
	Attach(ctx context.Context, sessionID, userID string) error
	Detach(sessionID, userID string)
	SubmitAnswer(ctx context.Context, userID string, sub protocol.SubmitAnswer) (*protocol.AnswerResult, error)
	CheckDeadline(ctx context.Context, sessionID string)
	Leave(ctx context.Context, sessionID, userID string) error
}

type HubConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     32,
	}
}

// Hub owns the websocket side of the channel: one connection per
// (session, player), pumps with ping/pong deadlines, and event delivery.
// It implements match.Notifier.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	engine   SessionEngine

	mu    sync.RWMutex
	conns map[string]map[string]*conn // session id -> user id -> connection
}

func NewHub(config HubConfig) *Hub {
	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]map[string]*conn),
	}
}

// SetEngine wires the engine after construction; hub and engine reference
// each other.
func (h *Hub) SetEngine(e SessionEngine) {
	h.engine = e
}

// Serve upgrades an authenticated request to a channel connection.
func (h *Hub) Serve(g *gin.Context) {
	id := identity(g)

	ws, err := h.upgrader.Upgrade(g.Writer, g.Request, nil)
	if err != nil {
		slog.ErrorContext(g.Request.Context(), "channel: upgrade failed", "error", err)
		return
	}

	c := &conn{
		hub:      h,
		ws:       ws,
		id:       uuid.New().String(),
		identity: id,
		send:     make(chan protocol.Envelope, h.config.SendBuffer),
	}

	telemetry.ChannelConnections.Inc()
	slog.InfoContext(g.Request.Context(), "channel: connected",
		"connection_id", c.id,
		"user_id", id.UserID,
	)

	go c.writePump()
	c.readPump()
}

// NotifyUser sends env to one player's connection, dropping it silently if
// the player is not attached.
func (h *Hub) NotifyUser(sessionID, userID string, env protocol.Envelope) {
	h.mu.RLock()
	c := h.conns[sessionID][userID]
	h.mu.RUnlock()

	if c != nil {
		c.deliver(env)
	}
}

// Broadcast sends env to every connection attached to the session.
func (h *Hub) Broadcast(sessionID string, env protocol.Envelope) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[sessionID]))
	for _, c := range h.conns[sessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.deliver(env)
	}
}

// register binds c to a session. A prior connection for the same player is
// torn down first so events are never delivered twice.
func (h *Hub) register(c *conn, sessionID string) {
	h.mu.Lock()
	if h.conns[sessionID] == nil {
		h.conns[sessionID] = make(map[string]*conn)
	}
	prev := h.conns[sessionID][c.identity.UserID]
	h.conns[sessionID][c.identity.UserID] = c
	h.mu.Unlock()

	if prev != nil && prev != c {
		prev.close()
	}
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if c.sessionID != "" && h.conns[c.sessionID][c.identity.UserID] == c {
		delete(h.conns[c.sessionID], c.identity.UserID)
		if len(h.conns[c.sessionID]) == 0 {
			delete(h.conns, c.sessionID)
		}
	}
	h.mu.Unlock()
}

type conn struct {
	hub      *Hub
	ws       *websocket.Conn
	id       string
	identity Identity

	// sessionID is set once the joinSession control message arrives.
	sessionID string

	mu     sync.Mutex
	closed bool
	send   chan protocol.Envelope
}

func (c *conn) deliver(env protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- env:
	default:
		slog.Warn("channel: send buffer full, dropping connection",
			"connection_id", c.id,
			"user_id", c.identity.UserID,
		)
		c.ws.Close()
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.ws.Close()
	close(c.send)
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		if c.sessionID != "" {
			c.hub.engine.Detach(c.sessionID, c.identity.UserID)
		}
		c.close()
		telemetry.ChannelConnections.Dec()
	}()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("channel: unexpected close",
					"connection_id", c.id,
					"error", err,
				)
			}
			return
		}

		c.handleControl(env)
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

func (c *conn) handleControl(env protocol.Envelope) {
	ctx := context.Background()

	switch env.Event {
	case protocol.ControlJoinSession:
		var msg protocol.JoinSession
		if err := env.Decode(&msg); err != nil {
			c.sendError(err)
			return
		}
		c.sessionID = msg.SessionID
		c.hub.register(c, msg.SessionID)
		if err := c.hub.engine.Attach(ctx, msg.SessionID, c.identity.UserID); err != nil {
			c.sendError(err)
		}

	case protocol.ControlSubmitAnswer:
		var msg protocol.SubmitAnswer
		if err := env.Decode(&msg); err != nil {
			c.sendError(err)
			return
		}
		if _, err := c.hub.engine.SubmitAnswer(ctx, c.identity.UserID, msg); err != nil {
			// answerResult goes out through the notifier on success;
			// failures come back as error events the client absorbs.
			c.sendError(err)
		}

	case protocol.ControlSessionTimeout:
		var msg protocol.SessionTimeout
		if err := env.Decode(&msg); err != nil {
			c.sendError(err)
			return
		}
		c.hub.engine.CheckDeadline(ctx, msg.SessionID)

	case protocol.ControlLeaveSession:
		var msg protocol.LeaveSession
		if err := env.Decode(&msg); err != nil {
			c.sendError(err)
			return
		}
		if err := c.hub.engine.Leave(ctx, msg.SessionID, c.identity.UserID); err != nil {
			c.sendError(err)
		}

	default:
		slog.Warn("channel: unknown control message",
			"connection_id", c.id,
			"event", env.Event,
		)
	}
}

func (c *conn) sendError(err error) {
	e := errors.Convert(err)
	c.deliver(protocol.MustEnvelope(protocol.EventError, protocol.ErrorPayload{
		Reason:  string(e.Reason),
		Message: e.Message,
	}))
}
