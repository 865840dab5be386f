package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fixed Rapid Fire match parameters.
const (
	TotalQuestions   = 10
	TimeLimitSeconds = 60
	MaxPlayers       = 2
)

// Scoring policy: correct +1.0, wrong -0.5, unanswered 0.
var (
	ScoreCorrect = decimal.NewFromFloat(1.0)
	ScoreWrong   = decimal.NewFromFloat(-0.5)
)

// Status is the lifecycle state of a session. Transitions are monotonic:
// waiting -> ongoing -> finished, or waiting/ongoing -> cancelled.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusOngoing   Status = "ongoing"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// CanTransition reports whether moving from s to next respects the
// monotonic lifecycle.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusOngoing || next == StatusCancelled
	case StatusOngoing:
		return next == StatusFinished || next == StatusCancelled
	default:
		return false
	}
}

// Result describes how a finished session was decided.
type Result string

const (
	// ResultWin: the player with the higher score won, whether the match
	// ran to completion or was cut by the deadline.
	ResultWin Result = "win"
	// ResultDraw: equal scores; WinnerUserID is empty.
	ResultDraw Result = "draw"
	// ResultForfeit: a player left an ongoing match, the opponent wins.
	ResultForfeit Result = "forfeit"
)

// Player is the immutable identity of a participant for the duration of a
// session. RatingBefore is a snapshot taken at session start, not live.
type Player struct {
	UserID       string
	Username     string
	RatingBefore int
}

// PlayerState is the per-player mutable state inside a session.
type PlayerState struct {
	User              Player
	Score             decimal.Decimal
	CorrectAnswers    int
	WrongAnswers      int
	QuestionsAnswered int

	// Settlement fields, populated only when the session finishes.
	RatingAfter  *int
	RatingChange *int
}

type Option struct {
	Text      string
	IsCorrect bool
}

// Question is one quiz question. Exactly one option is correct.
type Question struct {
	QuestionID  string
	Text        string
	Options     []Option
	Category    string
	Difficulty  string
	Explanation string
}

// CorrectIndex returns the index of the correct option, or -1 if the
// question is malformed.
func (q Question) CorrectIndex() int {
	for i, o := range q.Options {
		if o.IsCorrect {
			return i
		}
	}
	return -1
}

// GameSession is the aggregate root for one Rapid Fire match.
type GameSession struct {
	SessionID string
	// RoomCode is set only for room-based matchmaking, empty for random
	// matches.
	RoomCode string

	Players   []PlayerState
	Questions []Question

	TimeLimitSeconds int
	Status           Status

	StartedAt *time.Time
	EndedAt   *time.Time

	WinnerUserID string
	Result       Result
}

// PlayerIndex returns the position of userID in Players, or -1.
func (s *GameSession) PlayerIndex(userID string) int {
	for i := range s.Players {
		if s.Players[i].User.UserID == userID {
			return i
		}
	}
	return -1
}

// PlayerState returns the state of userID, or nil when the user is not in
// the session.
func (s *GameSession) PlayerState(userID string) *PlayerState {
	if i := s.PlayerIndex(userID); i >= 0 {
		return &s.Players[i]
	}
	return nil
}

// Opponent returns the other player's state, or nil for a waiting session.
func (s *GameSession) Opponent(userID string) *PlayerState {
	for i := range s.Players {
		if s.Players[i].User.UserID != userID {
			return &s.Players[i]
		}
	}
	return nil
}

// Progress is the total number of answers recorded across both players,
// used to order snapshots: a snapshot with lower progress is stale.
func (s *GameSession) Progress() int {
	n := 0
	for i := range s.Players {
		n += s.Players[i].QuestionsAnswered
	}
	return n
}

// Full reports whether the session has reached player capacity.
func (s *GameSession) Full() bool {
	return len(s.Players) >= MaxPlayers
}

// Clone deep-copies the session so callers can hand out snapshots without
// sharing the mutable aggregate.
func (s *GameSession) Clone() *GameSession {
	c := *s
	c.Players = make([]PlayerState, len(s.Players))
	copy(c.Players, s.Players)
	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]Option(nil), q.Options...)
		c.Questions[i] = q
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	for i := range c.Players {
		if p := s.Players[i].RatingAfter; p != nil {
			v := *p
			c.Players[i].RatingAfter = &v
		}
		if p := s.Players[i].RatingChange; p != nil {
			v := *p
			c.Players[i].RatingChange = &v
		}
	}
	return &c
}
