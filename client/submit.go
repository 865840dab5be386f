package client

import (
	"errors"
	"log/slog"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
	"github.com/pallavi191/codecraft-sub001/internal/protocol"
)

var (
	// ErrNotOngoing rejects submissions outside an ongoing session.
	ErrNotOngoing = errors.New("client: session is not ongoing")
	// ErrNoQuestion rejects submissions past the last question.
	ErrNoQuestion = errors.New("client: no question at cursor")
	// ErrAlreadyAnswered rejects a second submission for the current
	// question, pending or acknowledged.
	ErrAlreadyAnswered = errors.New("client: question already answered")
)

// Submit answers the current question with the selected option. At most one
// wire message ever leaves per question: the index is marked pending before
// writing, so rapid double-taps collapse to a single submission, and the
// cursor does not move until the server's answerResult comes back.
func (c *Client) Submit(selectedOption int) error {
	c.mu.Lock()

	if c.session == nil || c.session.Status != domain.StatusOngoing {
		c.mu.Unlock()
		return ErrNotOngoing
	}
	idx := c.cursor
	if idx >= len(c.session.Questions) {
		c.mu.Unlock()
		return ErrNoQuestion
	}
	if c.pending[idx] || c.acked[idx] {
		c.mu.Unlock()
		return ErrAlreadyAnswered
	}

	c.pending[idx] = true
	sub := protocol.SubmitAnswer{
		SessionID:           c.session.SessionID,
		QuestionIndex:       idx,
		SelectedOptionIndex: selectedOption,
		ClientElapsedMs:     c.clock.Since(c.questionShownAt).Milliseconds(),
	}
	c.mu.Unlock()

	if err := c.sendControl(protocol.ControlSubmitAnswer, sub); err != nil {
		// The write never reached the server; allow a retry.
		c.mu.Lock()
		delete(c.pending, idx)
		c.mu.Unlock()
		return err
	}
	return nil
}

// handleAnswerResult is the only place the cursor advances. The verdict
// applies to the local player exclusively; the opponent's row changes only
// through snapshots and opponentProgress.
func (c *Client) handleAnswerResult(env protocol.Envelope) {
	var res protocol.AnswerResult
	if err := env.Decode(&res); err != nil {
		c.log.Warn("bad answer result payload", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.acked[res.QuestionIndex] {
		return
	}
	c.acked[res.QuestionIndex] = true
	delete(c.pending, res.QuestionIndex)

	if p := c.localPlayerLocked(); p != nil {
		p.Score = res.UpdatedScore
		p.QuestionsAnswered = res.QuestionsAnswered
		if res.IsCorrect {
			p.CorrectAnswers++
		} else {
			p.WrongAnswers++
		}
	}

	if res.QuestionIndex == c.cursor {
		c.cursor++
		c.questionShownAt = c.clock.Now()
	}
	c.lastResult = &res
	c.notifyLocked()
}
