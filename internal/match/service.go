// Package match owns live Rapid Fire sessions: matchmaking (random queue
// and rooms), the authoritative in-session engine, and settlement at game
// end. Sessions live in process memory for their 60-second life; only
// ratings and the finished-match archive touch external stores.
package match

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
	"github.com/pallavi191/codecraft-sub001/internal/errors"
	"github.com/pallavi191/codecraft-sub001/internal/event"
	"github.com/pallavi191/codecraft-sub001/internal/protocol"
	"github.com/pallavi191/codecraft-sub001/internal/question"
	"github.com/pallavi191/codecraft-sub001/internal/rating"
)

const roomCodeLen = 6

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Notifier delivers channel events to connected players. The websocket hub
// implements it; tests use a recording fake.
type Notifier interface {
	// NotifyUser sends env to one player's connection, if attached.
	NotifyUser(sessionID, userID string, env protocol.Envelope)
	// Broadcast sends env to every connection attached to the session.
	Broadcast(sessionID string, env protocol.Envelope)
}

// RatingService is the pluggable settlement collaborator.
type RatingService interface {
	Rating(ctx context.Context, userID string) (int, error)
	Settle(ctx context.Context, req rating.SettleRequest) (*rating.Settlement, error)
}

type Config struct {
	Bank     question.Bank
	Rating   RatingService
	EventBus *event.Bus
	Notifier Notifier
	Clock    clockwork.Clock
}

// Service is the matchmaking gateway and session engine. All state behind
// one mutex; sessions are few and short-lived.
type Service struct {
	bank     question.Bank
	rating   RatingService
	eb       *event.Bus
	notifier Notifier
	clock    clockwork.Clock

	mu       sync.Mutex
	rng      *rand.Rand
	sessions map[string]*state
	rooms    map[string]string // open room code -> session id
	byUser   map[string]string // user id -> live session id
	queue    []string          // waiting random-match session ids, FIFO
}

// state is one live session plus engine bookkeeping that never leaves the
// server.
type state struct {
	session *domain.GameSession
	// answered tracks which question indexes each player has already had
	// scored; the at-most-once guard.
	answered map[string]map[int]bool
	attached map[string]bool
	deadline time.Time
	timer    clockwork.Timer
	random   bool
}

func NewService(c Config) *Service {
	clock := c.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Service{
		bank:     c.Bank,
		rating:   c.Rating,
		eb:       c.EventBus,
		notifier: c.Notifier,
		clock:    clock,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions: make(map[string]*state),
		rooms:    make(map[string]string),
		byUser:   make(map[string]string),
	}
}

// FindRandomMatch pairs the caller with the oldest waiting stranger, or
// opens a new waiting session when the queue is empty.
func (s *Service) FindRandomMatch(ctx context.Context, userID, username string) (protocol.SessionSnapshot, error) {
	player, err := s.newPlayer(ctx, userID, username)
	if err != nil {
		return protocol.SessionSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotInSession(userID); err != nil {
		return protocol.SessionSnapshot{}, err
	}

	// Oldest waiting stranger wins. Entries can be stale (cancelled or
	// already paired), skip those.
	for len(s.queue) > 0 {
		id := s.queue[0]
		st, ok := s.sessions[id]
		if !ok || st.session.Status != domain.StatusWaiting || st.session.Full() {
			s.queue = s.queue[1:]
			continue
		}

		s.queue = s.queue[1:]
		s.addPlayer(st, player)
		return s.snapshotLocked(st), nil
	}

	st, err := s.newSession(ctx, player, "", true)
	if err != nil {
		return protocol.SessionSnapshot{}, err
	}
	s.queue = append(s.queue, st.session.SessionID)
	return s.snapshotLocked(st), nil
}

// CreateRoom opens a waiting session with a fresh shareable room code.
func (s *Service) CreateRoom(ctx context.Context, userID, username string) (protocol.SessionSnapshot, error) {
	player, err := s.newPlayer(ctx, userID, username)
	if err != nil {
		return protocol.SessionSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotInSession(userID); err != nil {
		return protocol.SessionSnapshot{}, err
	}

	st, err := s.newSession(ctx, player, s.generateRoomCode(), false)
	if err != nil {
		return protocol.SessionSnapshot{}, err
	}
	s.rooms[st.session.RoomCode] = st.session.SessionID
	return s.snapshotLocked(st), nil
}

// JoinRoom fills the second slot of an open room.
func (s *Service) JoinRoom(ctx context.Context, userID, username, code string) (protocol.SessionSnapshot, error) {
	player, err := s.newPlayer(ctx, userID, username)
	if err != nil {
		return protocol.SessionSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotInSession(userID); err != nil {
		return protocol.SessionSnapshot{}, err
	}

	id, ok := s.rooms[code]
	if !ok {
		return protocol.SessionSnapshot{}, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonRoomNotFound),
			errors.WithMessagef("no open room with code %q", code))
	}

	st := s.sessions[id]
	if st.session.Full() {
		return protocol.SessionSnapshot{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonRoomFull),
			errors.WithMessagef("room %q already has %d players", code, domain.MaxPlayers))
	}

	// The code stays mapped for the session's lifetime so a late joiner
	// gets RoomFull, not RoomNotFound; eviction removes it.
	s.addPlayer(st, player)
	return s.snapshotLocked(st), nil
}

// GetSession returns the current snapshot of a live session. Terminal
// sessions are evicted after settlement, so resuming clients treat
// not-found as "match over".
func (s *Service) GetSession(_ context.Context, sessionID string) (protocol.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return protocol.SessionSnapshot{}, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonSessionNotFound),
			errors.WithMessagef("session %s not found", sessionID))
	}

	return s.snapshotLocked(st), nil
}

func (s *Service) newPlayer(ctx context.Context, userID, username string) (domain.Player, error) {
	r, err := s.rating.Rating(ctx, userID)
	if err != nil {
		return domain.Player{}, fmt.Errorf("match: fetch rating for %s: %w", userID, err)
	}

	return domain.Player{UserID: userID, Username: username, RatingBefore: r}, nil
}

func (s *Service) guardNotInSession(userID string) error {
	if id, ok := s.byUser[userID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonAlreadyInSession),
			errors.WithMessagef("user %s is already in session %s", userID, id))
	}
	return nil
}

func (s *Service) newSession(ctx context.Context, p domain.Player, roomCode string, random bool) (*state, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("match: generate session id: %w", err)
	}

	st := &state{
		session: &domain.GameSession{
			SessionID:        id.String(),
			RoomCode:         roomCode,
			Players:          []domain.PlayerState{{User: p, Score: decimal.Zero}},
			TimeLimitSeconds: domain.TimeLimitSeconds,
			Status:           domain.StatusWaiting,
		},
		answered: map[string]map[int]bool{p.UserID: {}},
		attached: map[string]bool{},
		random:   random,
	}

	s.sessions[st.session.SessionID] = st
	s.byUser[p.UserID] = st.session.SessionID

	s.eb.Publish(ctx, domain.EventSessionCreated{Session: *st.session.Clone()})
	return st, nil
}

func (s *Service) addPlayer(st *state, p domain.Player) {
	st.session.Players = append(st.session.Players, domain.PlayerState{User: p, Score: decimal.Zero})
	st.answered[p.UserID] = map[int]bool{}
	s.byUser[p.UserID] = st.session.SessionID

	s.notifier.Broadcast(st.session.SessionID,
		protocol.MustEnvelope(protocol.EventPlayerJoined, s.snapshotLocked(st)))
}

func (s *Service) generateRoomCode() string {
	for {
		code := make([]byte, roomCodeLen)
		for i := range code {
			code[i] = roomCodeAlphabet[s.rng.Intn(len(roomCodeAlphabet))]
		}
		if _, taken := s.rooms[string(code)]; !taken {
			return string(code)
		}
	}
}

// snapshotLocked builds the wire snapshot with authoritative remaining
// time. Callers hold s.mu.
func (s *Service) snapshotLocked(st *state) protocol.SessionSnapshot {
	return protocol.Snapshot(st.session, s.remainingLocked(st))
}

func (s *Service) remainingLocked(st *state) int {
	switch st.session.Status {
	case domain.StatusWaiting:
		return st.session.TimeLimitSeconds
	case domain.StatusOngoing:
		left := int(st.deadline.Sub(s.clock.Now()).Seconds())
		if left < 0 {
			return 0
		}
		return left
	default:
		return 0
	}
}
