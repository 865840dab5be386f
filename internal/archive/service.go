package archive

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
	"github.com/pallavi191/codecraft-sub001/internal/event"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

// Service persists terminal sessions to postgres. It is write-only: the
// engine never reads a match back, history queries belong to the CRUD side
// of the platform.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{db: c.DB}

	c.EventBus.Subscribe(domain.EventNameSessionFinished, func(ctx context.Context, e event.Event) error {
		return s.StoreMatch(ctx, e.(domain.EventSessionFinished).Session)
	})

	return s
}

// StoreMatch inserts the finished session and its per-player results in one
// transaction.
func (s *Service) StoreMatch(ctx context.Context, ss domain.GameSession) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("archive: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insMatchStmt = `
INSERT INTO matches (session_id, room_code, result, winner_user_id, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6);`
		insPlayerStmt = `
INSERT INTO match_players (session_id, user_id, username, score, correct_answers, wrong_answers,
	questions_answered, rating_before, rating_after, rating_change)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`
	)

	_, err = tx.Exec(ctx, insMatchStmt,
		ss.SessionID, nilIfEmpty(ss.RoomCode), string(ss.Result), nilIfEmpty(ss.WinnerUserID),
		ss.StartedAt, ss.EndedAt)
	if err != nil {
		return fmt.Errorf("archive: insert match: %w", err)
	}

	for _, p := range ss.Players {
		_, err = tx.Exec(ctx, insPlayerStmt,
			ss.SessionID, p.User.UserID, p.User.Username, p.Score,
			p.CorrectAnswers, p.WrongAnswers, p.QuestionsAnswered,
			p.User.RatingBefore, p.RatingAfter, p.RatingChange)
		if err != nil {
			return fmt.Errorf("archive: insert player %s: %w", p.User.UserID, err)
		}
	}

	return tx.Commit(ctx)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
