package domain

const (
	EventNameSessionCreated   = "session.created"
	EventNameSessionFinished  = "session.finished"
	EventNameSessionCancelled = "session.cancelled"
	EventNameAnswerScored     = "answer.scored"
)

// EventSessionCreated is published when matchmaking opens a new session.
type EventSessionCreated struct {
	Session GameSession
}

func (EventSessionCreated) Name() string { return EventNameSessionCreated }

// EventSessionFinished is published once when a session reaches finished,
// after rating settlement. Archive and telemetry consume it.
type EventSessionFinished struct {
	Session GameSession
}

func (EventSessionFinished) Name() string { return EventNameSessionFinished }

type EventSessionCancelled struct {
	Session GameSession
}

func (EventSessionCancelled) Name() string { return EventNameSessionCancelled }

// EventAnswerScored is published for every accepted answer.
type EventAnswerScored struct {
	SessionID     string
	UserID        string
	QuestionIndex int
	Correct       bool
}

func (EventAnswerScored) Name() string { return EventNameAnswerScored }
