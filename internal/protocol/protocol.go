// Package protocol defines the JSON wire format of the Rapid Fire session
// channel: one envelope per message, an event name, and an event-specific
// payload. The same types are used by the server and the client so the two
// cannot drift.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
)

// Server -> client events.
const (
	EventSessionState     = "sessionState"
	EventSessionStarted   = "sessionStarted"
	EventPlayerJoined     = "playerJoined"
	EventAnswerResult     = "answerResult"
	EventOpponentProgress = "opponentProgress"
	EventSessionFinished  = "sessionFinished"
	EventOpponentLeft     = "opponentLeft"
	EventError            = "error"
)

// Client -> server control messages.
const (
	ControlJoinSession    = "joinSession"
	ControlSubmitAnswer   = "submitAnswer"
	ControlSessionTimeout = "sessionTimeout"
	ControlLeaveSession   = "leaveSession"
)

// Envelope is the frame every channel message travels in.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope for event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: marshal %s: %w", event, err)
	}
	return Envelope{Event: event, Data: b}, nil
}

// MustEnvelope is NewEnvelope for payloads that cannot fail to marshal.
func MustEnvelope(event string, payload any) Envelope {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("protocol: decode %s: %w", e.Event, err)
	}
	return nil
}

// PlayerSnapshot is the wire form of a player's state.
type PlayerSnapshot struct {
	UserID            string          `json:"userId"`
	Username          string          `json:"username"`
	RatingBefore      int             `json:"ratingBefore"`
	Score             decimal.Decimal `json:"score"`
	CorrectAnswers    int             `json:"correctAnswers"`
	WrongAnswers      int             `json:"wrongAnswers"`
	QuestionsAnswered int             `json:"questionsAnswered"`
	RatingAfter       *int            `json:"ratingAfter,omitempty"`
	RatingChange      *int            `json:"ratingChange,omitempty"`
}

// QuestionView is a question as clients see it: option texts only, no
// correctness flags. The correct index travels exclusively in AnswerResult.
type QuestionView struct {
	QuestionID string   `json:"questionId"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
}

// SessionSnapshot is a full authoritative copy of session state, safe to
// apply idempotently.
type SessionSnapshot struct {
	SessionID        string           `json:"sessionId"`
	RoomCode         string           `json:"roomCode,omitempty"`
	Status           domain.Status    `json:"status"`
	Players          []PlayerSnapshot `json:"players"`
	Questions        []QuestionView   `json:"questions"`
	TotalQuestions   int              `json:"totalQuestions"`
	TimeLimitSeconds int              `json:"timeLimitSeconds"`
	TimeRemainingSec int              `json:"timeRemainingSec"`
	StartedAt        *time.Time       `json:"startedAt,omitempty"`
	EndedAt          *time.Time       `json:"endedAt,omitempty"`
	WinnerUserID     string           `json:"winnerUserId,omitempty"`
	Result           domain.Result    `json:"result,omitempty"`
}

// Progress sums answered questions across players, mirroring
// domain.GameSession.Progress for staleness ordering.
func (s SessionSnapshot) Progress() int {
	n := 0
	for _, p := range s.Players {
		n += p.QuestionsAnswered
	}
	return n
}

// AnswerResult is the server's authoritative verdict on one submission.
type AnswerResult struct {
	QuestionIndex      int             `json:"questionIndex"`
	IsCorrect          bool            `json:"isCorrect"`
	ScoreDelta         decimal.Decimal `json:"scoreDelta"`
	CorrectOptionIndex int             `json:"correctOptionIndex"`
	Explanation        string          `json:"explanation,omitempty"`
	UpdatedScore       decimal.Decimal `json:"updatedScore"`
	QuestionsAnswered  int             `json:"questionsAnswered"`
}

// OpponentProgress is an advisory delta about the other player. It never
// carries data about the receiving player.
type OpponentProgress struct {
	UserID            string          `json:"userId"`
	QuestionsAnswered int             `json:"questionsAnswered"`
	Score             decimal.Decimal `json:"score"`
	CorrectAnswers    int             `json:"correctAnswers"`
	WrongAnswers      int             `json:"wrongAnswers"`
}

// SessionFinished carries the settlement: the authoritative outcome plus
// the final snapshot with ratings applied.
type SessionFinished struct {
	WinnerUserID  string          `json:"winnerUserId,omitempty"`
	Result        domain.Result   `json:"result"`
	FinalSnapshot SessionSnapshot `json:"finalSnapshot"`
}

type OpponentLeft struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

type JoinSession struct {
	SessionID string `json:"sessionId"`
}

// SubmitAnswer addresses the question by its position in the session's
// question set, not by question id, so a reused id can never be ambiguous.
type SubmitAnswer struct {
	SessionID           string `json:"sessionId"`
	QuestionIndex       int    `json:"questionIndex"`
	SelectedOptionIndex int    `json:"selectedOptionIndex"`
	ClientElapsedMs     int64  `json:"clientElapsedMs"`
}

// SessionTimeout is advisory: it asks the server to check its own deadline,
// it never ends the session by itself.
type SessionTimeout struct {
	SessionID string `json:"sessionId"`
}

type LeaveSession struct {
	SessionID string `json:"sessionId"`
}

// Snapshot converts the domain aggregate to its wire form, stripping option
// correctness. remainingSec is the server's authoritative remaining time.
func Snapshot(s *domain.GameSession, remainingSec int) SessionSnapshot {
	snap := SessionSnapshot{
		SessionID:        s.SessionID,
		RoomCode:         s.RoomCode,
		Status:           s.Status,
		Players:          make([]PlayerSnapshot, 0, len(s.Players)),
		Questions:        make([]QuestionView, 0, len(s.Questions)),
		TotalQuestions:   domain.TotalQuestions,
		TimeLimitSeconds: s.TimeLimitSeconds,
		TimeRemainingSec: remainingSec,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
		WinnerUserID:     s.WinnerUserID,
		Result:           s.Result,
	}

	for _, p := range s.Players {
		snap.Players = append(snap.Players, PlayerSnapshot{
			UserID:            p.User.UserID,
			Username:          p.User.Username,
			RatingBefore:      p.User.RatingBefore,
			Score:             p.Score,
			CorrectAnswers:    p.CorrectAnswers,
			WrongAnswers:      p.WrongAnswers,
			QuestionsAnswered: p.QuestionsAnswered,
			RatingAfter:       p.RatingAfter,
			RatingChange:      p.RatingChange,
		})
	}

	for _, q := range s.Questions {
		opts := make([]string, 0, len(q.Options))
		for _, o := range q.Options {
			opts = append(opts, o.Text)
		}
		snap.Questions = append(snap.Questions, QuestionView{
			QuestionID: q.QuestionID,
			Text:       q.Text,
			Options:    opts,
			Category:   q.Category,
			Difficulty: q.Difficulty,
		})
	}

	return snap
}
