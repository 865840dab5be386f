package client

import (
	"context"
	"log/slog"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
	"github.com/pallavi191/codecraft-sub001/internal/errors"
	"github.com/pallavi191/codecraft-sub001/internal/protocol"
)

// dispatch routes one channel event into the state machine. It is the only
// entry point for server events, so every mutation of session state is
// serialized through c.mu regardless of which reader goroutine delivered it.
func (c *Client) dispatch(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventSessionState:
		c.handleSnapshot(env, false)
	case protocol.EventSessionStarted:
		c.handleSnapshot(env, true)
	case protocol.EventPlayerJoined:
		c.handleSnapshot(env, false)
	case protocol.EventAnswerResult:
		c.handleAnswerResult(env)
	case protocol.EventOpponentProgress:
		c.handleOpponentProgress(env)
	case protocol.EventSessionFinished:
		c.handleSessionFinished(env)
	case protocol.EventOpponentLeft:
		c.handleOpponentLeft(env)
	case protocol.EventError:
		c.handleError(env)
	default:
		c.log.Debug("unknown event", slog.String("event", env.Event))
	}
}

// handleSnapshot applies an authoritative full snapshot. Applying the same
// snapshot twice is a no-op, and a snapshot that would move the session
// backwards (less total progress at the same status) is dropped: events can
// arrive reordered across a reconnect.
func (c *Client) handleSnapshot(env protocol.Envelope, started bool) {
	var snap protocol.SessionSnapshot
	if err := env.Decode(&snap); err != nil {
		c.log.Warn("bad snapshot payload", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.session.SessionID != snap.SessionID {
		return
	}
	if c.session != nil && snap.Status != c.session.Status && !c.session.Status.CanTransition(snap.Status) {
		return // status only moves forward
	}
	if c.session != nil && c.session.Status == snap.Status && snap.Progress() < c.session.Progress() {
		return
	}

	c.applySnapshotLocked(snap, started)
	c.notifyLocked()
}

// applySnapshotLocked replaces local session state wholesale and realigns
// everything derived from it: the cursor, the submission ledger and the
// countdown.
func (c *Client) applySnapshotLocked(snap protocol.SessionSnapshot, started bool) {
	c.session = &snap

	if started {
		// Fresh question set: restart the answer pipeline from zero.
		c.cursor = 0
		c.pending = make(map[int]bool)
		c.acked = make(map[int]bool)
		c.lastResult = nil
		c.questionShownAt = c.clock.Now()
	}

	if p := c.localPlayerLocked(); p != nil {
		// The cursor tracks confirmed answers and never moves backwards,
		// even if a snapshot undercounts momentarily.
		if p.QuestionsAnswered > c.cursor {
			c.cursor = p.QuestionsAnswered
			c.questionShownAt = c.clock.Now()
		}
		// Mark everything the server already counted as acknowledged so a
		// reconnect cannot resubmit it. Entries still pending stay pending;
		// a fresh connect clears them instead, once the dead channel's
		// in-flight writes are provably lost or reflected here.
		for i := 0; i < p.QuestionsAnswered; i++ {
			c.acked[i] = true
			delete(c.pending, i)
		}
	}

	switch {
	case snap.Status == domain.StatusOngoing:
		c.timer.Arm(snap.TimeRemainingSec)
	case snap.Status.Terminal():
		c.timer.Stop()
		c.clearResumeLocked()
	}
}

func (c *Client) handleOpponentProgress(env protocol.Envelope) {
	var prog protocol.OpponentProgress
	if err := env.Decode(&prog); err != nil {
		c.log.Warn("bad progress payload", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Advisory, about the opponent only. The local player is never
	// touched from here.
	if c.session == nil || prog.UserID == c.cfg.UserID {
		return
	}
	for i := range c.session.Players {
		p := &c.session.Players[i]
		if p.UserID != prog.UserID {
			continue
		}
		if prog.QuestionsAnswered < p.QuestionsAnswered {
			return // stale delta
		}
		p.QuestionsAnswered = prog.QuestionsAnswered
		p.Score = prog.Score
		p.CorrectAnswers = prog.CorrectAnswers
		p.WrongAnswers = prog.WrongAnswers
		c.notifyLocked()
		return
	}
}

// handleSessionFinished installs the settlement. The final snapshot replaces
// local state even when locally tracked scores disagree: both players must
// render the same outcome, and only the server can guarantee that.
func (c *Client) handleSessionFinished(env protocol.Envelope) {
	var fin protocol.SessionFinished
	if err := env.Decode(&fin); err != nil {
		c.log.Warn("bad finish payload", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.session.SessionID != fin.FinalSnapshot.SessionID {
		return
	}

	snap := fin.FinalSnapshot
	snap.WinnerUserID = fin.WinnerUserID
	snap.Result = fin.Result
	c.session = &snap

	c.timer.Stop()
	c.clearResumeLocked()
	c.notifyLocked()
}

func (c *Client) handleOpponentLeft(env protocol.Envelope) {
	var left protocol.OpponentLeft
	if err := env.Decode(&left); err != nil {
		return
	}

	c.mu.Lock()
	c.notice = left.Message
	c.notifyLocked()
	c.mu.Unlock()
}

func (c *Client) handleError(env protocol.Envelope) {
	var p protocol.ErrorPayload
	if err := env.Decode(&p); err != nil {
		return
	}

	c.log.Warn("server error event",
		slog.String("reason", p.Reason),
		slog.String("message", p.Message),
	)

	c.mu.Lock()
	c.notice = p.Message
	c.notifyLocked()

	// A rejoin can land after the server settled and evicted the session.
	// The error event alone is not authoritative, so re-check over REST
	// before declaring the match over.
	var gone string
	if p.Reason == string(errors.ReasonSessionNotFound) &&
		c.session != nil && !c.session.Status.Terminal() {
		gone = c.session.SessionID
	}
	c.mu.Unlock()

	if gone != "" {
		go c.confirmSessionGone(gone)
	}
}

// confirmSessionGone resolves a session the server no longer recognizes. A
// live snapshot means the error was transient and is re-applied as truth;
// not-found or terminal means the match ended while we were away, so the
// countdown stops and the resume id is dropped.
func (c *Client) confirmSessionGone(sessionID string) {
	snap, err := c.GetSession(context.Background(), sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.SessionID != sessionID || c.session.Status.Terminal() {
		return
	}

	if err == nil {
		c.applySnapshotLocked(snap, false)
		if snap.Status.Terminal() {
			c.notice = "match ended while you were disconnected"
		}
	} else {
		// Evicted: the settlement broadcast was missed for good.
		c.session.Status = domain.StatusFinished
		c.timer.Stop()
		c.clearResumeLocked()
		c.notice = "match ended while you were disconnected"
	}
	c.notifyLocked()
}

func (c *Client) clearResumeLocked() {
	if err := c.store.Clear(); err != nil {
		c.log.Warn("clear resume state", slog.String("error", err.Error()))
	}
}
