package match

import (
	"context"
	"log/slog"
	"time"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
	"github.com/pallavi191/codecraft-sub001/internal/errors"
	"github.com/pallavi191/codecraft-sub001/internal/protocol"
	"github.com/pallavi191/codecraft-sub001/internal/rating"
)

// Attach binds a player's channel to their session and replies with the
// current snapshot. The match starts once both players are attached.
func (s *Service) Attach(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonSessionNotFound),
			errors.WithMessagef("session %s not found", sessionID))
	}
	if st.session.PlayerIndex(userID) < 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("user %s is not a participant of session %s", userID, sessionID))
	}

	st.attached[userID] = true
	s.notifier.NotifyUser(sessionID, userID,
		protocol.MustEnvelope(protocol.EventSessionState, s.snapshotLocked(st)))

	if st.session.Status == domain.StatusWaiting && st.session.Full() && s.allAttachedLocked(st) {
		if err := s.startLocked(ctx, st); err != nil {
			return err
		}
	}

	return nil
}

// Detach records a dropped channel. The session survives a transport drop;
// the player can reattach until the match ends on its own terms.
func (s *Service) Detach(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.sessions[sessionID]; ok {
		st.attached[userID] = false
	}
}

func (s *Service) allAttachedLocked(st *state) bool {
	for _, p := range st.session.Players {
		if !st.attached[p.User.UserID] {
			return false
		}
	}
	return true
}

// startLocked transitions waiting -> ongoing: deal the question set, stamp
// startedAt, arm the match deadline.
func (s *Service) startLocked(ctx context.Context, st *state) error {
	qs, err := s.bank.Deal(ctx, domain.TotalQuestions)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	st.session.Questions = qs
	st.session.Status = domain.StatusOngoing
	st.session.StartedAt = &now
	st.deadline = now.Add(time.Duration(st.session.TimeLimitSeconds) * time.Second)

	id := st.session.SessionID
	st.timer = s.clock.AfterFunc(time.Duration(st.session.TimeLimitSeconds)*time.Second, func() {
		s.CheckDeadline(context.Background(), id)
	})

	slog.InfoContext(ctx, "match: session started",
		"session_id", id,
		"players", len(st.session.Players),
	)

	s.notifier.Broadcast(id, protocol.MustEnvelope(protocol.EventSessionStarted, s.snapshotLocked(st)))
	return nil
}

// SubmitAnswer scores one answer. At most one submission per
// (player, questionIndex) is ever accepted; a duplicate is rejected, not
// re-scored.
func (s *Service) SubmitAnswer(ctx context.Context, userID string, sub protocol.SubmitAnswer) (*protocol.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sub.SessionID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonSessionNotFound),
			errors.WithMessagef("session %s not found", sub.SessionID))
	}
	if st.session.Status != domain.StatusOngoing {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonSessionNotOngoing),
			errors.WithMessagef("session %s is %s", sub.SessionID, st.session.Status))
	}
	if sub.QuestionIndex < 0 || sub.QuestionIndex >= len(st.session.Questions) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonQuestionOutOfRange),
			errors.WithMessagef("question index %d out of range", sub.QuestionIndex))
	}

	ps := st.session.PlayerState(userID)
	if ps == nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("user %s is not a participant of session %s", userID, sub.SessionID))
	}
	if st.answered[userID][sub.QuestionIndex] {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonDuplicateAnswer),
			errors.WithMessagef("answer already submitted: session=%s user=%s question=%d",
				sub.SessionID, userID, sub.QuestionIndex))
	}

	q := st.session.Questions[sub.QuestionIndex]
	correct := sub.SelectedOptionIndex == q.CorrectIndex()

	delta := domain.ScoreWrong
	if correct {
		delta = domain.ScoreCorrect
	}

	st.answered[userID][sub.QuestionIndex] = true
	ps.Score = ps.Score.Add(delta)
	ps.QuestionsAnswered++
	if correct {
		ps.CorrectAnswers++
	} else {
		ps.WrongAnswers++
	}

	s.eb.Publish(ctx, domain.EventAnswerScored{
		SessionID:     sub.SessionID,
		UserID:        userID,
		QuestionIndex: sub.QuestionIndex,
		Correct:       correct,
	})

	result := &protocol.AnswerResult{
		QuestionIndex:      sub.QuestionIndex,
		IsCorrect:          correct,
		ScoreDelta:         delta,
		CorrectOptionIndex: q.CorrectIndex(),
		Explanation:        q.Explanation,
		UpdatedScore:       ps.Score,
		QuestionsAnswered:  ps.QuestionsAnswered,
	}

	s.notifier.NotifyUser(sub.SessionID, userID,
		protocol.MustEnvelope(protocol.EventAnswerResult, result))

	if opp := st.session.Opponent(userID); opp != nil {
		s.notifier.NotifyUser(sub.SessionID, opp.User.UserID,
			protocol.MustEnvelope(protocol.EventOpponentProgress, protocol.OpponentProgress{
				UserID:            userID,
				QuestionsAnswered: ps.QuestionsAnswered,
				Score:             ps.Score,
				CorrectAnswers:    ps.CorrectAnswers,
				WrongAnswers:      ps.WrongAnswers,
			}))
	}

	if s.allAnsweredLocked(st) {
		s.finishLocked(ctx, st, domain.ResultWin, "")
	}

	return result, nil
}

func (s *Service) allAnsweredLocked(st *state) bool {
	if !st.session.Full() {
		return false
	}
	for _, p := range st.session.Players {
		if p.QuestionsAnswered < len(st.session.Questions) {
			return false
		}
	}
	return true
}

// CheckDeadline finishes the session if its time budget is spent. Invoked
// by the server's own timer and by advisory sessionTimeout messages from
// clients; a client can only ask, never end.
func (s *Service) CheckDeadline(ctx context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok || st.session.Status != domain.StatusOngoing {
		return
	}
	if s.clock.Now().Before(st.deadline) {
		return
	}

	s.finishLocked(ctx, st, domain.ResultWin, "")
}

// Leave removes a player deliberately. A waiting session cancels; an
// ongoing one finishes as a forfeit in the opponent's favor.
func (s *Service) Leave(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return nil // already terminal and evicted, leaving is a no-op
	}
	if st.session.PlayerIndex(userID) < 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("user %s is not a participant of session %s", userID, sessionID))
	}

	s.notifier.Broadcast(sessionID, protocol.MustEnvelope(protocol.EventOpponentLeft, protocol.OpponentLeft{
		Message: st.session.PlayerState(userID).User.Username + " left the match",
	}))

	switch st.session.Status {
	case domain.StatusWaiting:
		s.cancelLocked(ctx, st)
	case domain.StatusOngoing:
		winner := ""
		if opp := st.session.Opponent(userID); opp != nil {
			winner = opp.User.UserID
		}
		s.finishLocked(ctx, st, domain.ResultForfeit, winner)
	}

	return nil
}

func (s *Service) cancelLocked(ctx context.Context, st *state) {
	now := s.clock.Now()
	st.session.Status = domain.StatusCancelled
	st.session.EndedAt = &now

	s.notifier.Broadcast(st.session.SessionID,
		protocol.MustEnvelope(protocol.EventSessionState, s.snapshotLocked(st)))

	s.eb.Publish(ctx, domain.EventSessionCancelled{Session: *st.session.Clone()})
	s.evictLocked(st)
}

// finishLocked settles and broadcasts the end of a match. forcedWinner is
// set only for forfeits; otherwise the winner falls out of the scores.
func (s *Service) finishLocked(ctx context.Context, st *state, result domain.Result, forcedWinner string) {
	ss := st.session
	now := s.clock.Now()

	winner := forcedWinner
	if result != domain.ResultForfeit && len(ss.Players) == domain.MaxPlayers {
		switch ss.Players[0].Score.Cmp(ss.Players[1].Score) {
		case 1:
			winner = ss.Players[0].User.UserID
		case -1:
			winner = ss.Players[1].User.UserID
		default:
			result = domain.ResultDraw
		}
	}

	ss.Status = domain.StatusFinished
	ss.EndedAt = &now
	ss.WinnerUserID = winner
	ss.Result = result

	if st.timer != nil {
		st.timer.Stop()
	}

	if len(ss.Players) == domain.MaxPlayers {
		settlement, err := s.rating.Settle(ctx, ratingRequest(ss))
		if err != nil {
			// The match outcome stands even when settlement fails;
			// ratings are reconciled out of band.
			slog.ErrorContext(ctx, "match: rating settlement failed",
				"session_id", ss.SessionID,
				"error", err,
			)
		} else {
			for i := range ss.Players {
				if ps := settlement.ByUser(ss.Players[i].User.UserID); ps != nil {
					after, change := ps.After, ps.Change
					ss.Players[i].RatingAfter = &after
					ss.Players[i].RatingChange = &change
				}
			}
		}
	}

	slog.InfoContext(ctx, "match: session finished",
		"session_id", ss.SessionID,
		"result", string(ss.Result),
		"winner", ss.WinnerUserID,
	)

	final := s.snapshotLocked(st)
	s.notifier.Broadcast(ss.SessionID, protocol.MustEnvelope(protocol.EventSessionFinished, protocol.SessionFinished{
		WinnerUserID:  ss.WinnerUserID,
		Result:        ss.Result,
		FinalSnapshot: final,
	}))

	s.eb.Publish(ctx, domain.EventSessionFinished{Session: *ss.Clone()})
	s.evictLocked(st)
}

func ratingRequest(ss *domain.GameSession) rating.SettleRequest {
	return rating.SettleRequest{
		UserA:    ss.Players[0].User.UserID,
		UserB:    ss.Players[1].User.UserID,
		WinnerID: ss.WinnerUserID,
	}
}

// evictLocked drops a terminal session from the live registry. Clients keep
// the final snapshot; the server is done with it.
func (s *Service) evictLocked(st *state) {
	ss := st.session
	delete(s.sessions, ss.SessionID)
	if ss.RoomCode != "" {
		delete(s.rooms, ss.RoomCode)
	}
	for _, p := range ss.Players {
		if s.byUser[p.User.UserID] == ss.SessionID {
			delete(s.byUser, p.User.UserID)
		}
	}
}
