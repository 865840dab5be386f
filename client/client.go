// Package client is the Rapid Fire session engine on the player's side: a
// framework-independent state machine that owns the single authoritative
// GameSession snapshot, the channel lifecycle, the local countdown, and the
// answer pipeline. A display layer subscribes to read-only snapshots and
// never touches protocol state itself.
package client

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pallavi191/codecraft-sub001/internal/protocol"
)

// ConnStatus is the transport state, deliberately separate from the
// session's logical status: a dead connection does not end a match.
type ConnStatus string

const (
	ConnDisconnected ConnStatus = "disconnected"
	ConnConnecting   ConnStatus = "connecting"
	ConnConnected    ConnStatus = "connected"
	ConnReconnecting ConnStatus = "reconnecting"
	// ConnFailed: reconnect attempts are exhausted. The last known
	// session snapshot stays visible; the user must leave or retry.
	ConnFailed ConnStatus = "failed"
)

const (
	defaultMaxReconnects  = 5
	defaultReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay     = 8 * time.Second
)

type Config struct {
	// BaseURL of the matchmaking service, e.g. "http://localhost:8080".
	BaseURL string
	// Token authenticates every request and the channel.
	Token string
	// UserID and Username identify the local player inside snapshots.
	UserID   string
	Username string

	HTTPClient *http.Client
	Dialer     Dialer
	Store      ResumeStore
	Clock      clockwork.Clock
	Logger     *slog.Logger

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
}

// Snapshot is the read-only view handed to subscribers.
type Snapshot struct {
	Session *protocol.SessionSnapshot
	// Cursor is the local player's current question index. It only moves
	// forward, and only when an answerResult arrives.
	Cursor int
	// Remaining is the locally ticking countdown in seconds.
	Remaining int
	Conn      ConnStatus
	// Attempt is the current reconnect attempt, 0 when connected.
	Attempt int
	// LastResult holds the verdict of the most recent answer for the
	// transient reveal.
	LastResult *protocol.AnswerResult
	// Notice is the latest advisory message (opponent left, server
	// error), for display only.
	Notice string
}

// Client is the session engine. All mutable state is serialized behind one
// mutex: the Go analogue of the original's single-threaded event loop. Only
// the event dispatcher and the answer-result handler write to the session.
type Client struct {
	cfg    Config
	http   *http.Client
	dialer Dialer
	store  ResumeStore
	clock  clockwork.Clock
	log    *slog.Logger

	mu         sync.Mutex
	session    *protocol.SessionSnapshot
	cursor     int
	lastResult *protocol.AnswerResult
	notice     string

	connStatus ConnStatus
	attempt    int
	channel    Channel
	closing    bool

	pending map[int]bool
	acked   map[int]bool
	// questionShownAt feeds clientElapsedMs on submissions.
	questionShownAt time.Time

	timer *countdown

	findInFlight bool

	subMu sync.Mutex
	subs  []func(Snapshot)
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebsocketDialer()
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnects
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = defaultReconnectDelay
	}

	c := &Client{
		cfg:        cfg,
		http:       cfg.HTTPClient,
		dialer:     cfg.Dialer,
		store:      cfg.Store,
		clock:      cfg.Clock,
		log:        cfg.Logger,
		connStatus: ConnDisconnected,
		pending:    make(map[int]bool),
		acked:      make(map[int]bool),
	}
	c.timer = newCountdown(cfg.Clock, c.onTick, c.onLocalTimeout)
	return c
}

// Subscribe registers fn to receive a snapshot after every state change.
func (c *Client) Subscribe(fn func(Snapshot)) {
	c.subMu.Lock()
	c.subs = append(c.subs, fn)
	c.subMu.Unlock()
}

// Snapshot returns the current state. The session is deep-copied through
// its wire form, so callers can never mutate engine state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() Snapshot {
	snap := Snapshot{
		Cursor:    c.cursor,
		Remaining: c.timer.Remaining(),
		Conn:      c.connStatus,
		Attempt:   c.attempt,
		Notice:    c.notice,
	}
	if c.session != nil {
		ss := *c.session
		ss.Players = append([]protocol.PlayerSnapshot(nil), c.session.Players...)
		ss.Questions = append([]protocol.QuestionView(nil), c.session.Questions...)
		snap.Session = &ss
	}
	if c.lastResult != nil {
		r := *c.lastResult
		snap.LastResult = &r
	}
	return snap
}

// notifyLocked publishes the current snapshot to subscribers. The caller
// holds c.mu; callbacks run after it is released so a subscriber may call
// back into the client.
func (c *Client) notifyLocked() {
	snap := c.snapshotLocked()

	c.subMu.Lock()
	subs := make([]func(Snapshot), len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	if len(subs) == 0 {
		return
	}
	go func() {
		for _, fn := range subs {
			fn(snap)
		}
	}()
}

// localPlayer returns the local player's entry in the session, or nil.
func (c *Client) localPlayerLocked() *protocol.PlayerSnapshot {
	if c.session == nil {
		return nil
	}
	for i := range c.session.Players {
		if c.session.Players[i].UserID == c.cfg.UserID {
			return &c.session.Players[i]
		}
	}
	return nil
}

// Winner returns the user id to display as winner for a finished session.
// It follows the server's verdict even if locally tracked scores disagree:
// both clients must agree on the outcome, and only the server can
// guarantee that.
func (c *Client) Winner() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ""
	}
	return c.session.WinnerUserID
}
