package rating

import (
	"context"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"

	"github.com/pallavi191/codecraft-sub001/internal/errors"
)

const (
	// DefaultRating is assigned to players with no match history.
	DefaultRating = 1200
	kFactor       = 32
)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

// Service owns player ratings. Ratings live in a redis sorted set so the
// store doubles as the platform leaderboard.
type Service struct {
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	return &Service{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

// Rating returns the player's current rating, or DefaultRating for an
// unrated player.
func (s *Service) Rating(ctx context.Context, userID string) (int, error) {
	score, err := s.redis.ZScore(ctx, s.ratingsKey(), userID).Result()
	if err == redis.Nil {
		return DefaultRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rating: zscore: %w", err)
	}

	return int(math.Round(score)), nil
}

type SettleRequest struct {
	UserA string
	UserB string
	// WinnerID is UserA, UserB, or empty for a draw.
	WinnerID string
}

type PlayerSettlement struct {
	UserID string
	Before int
	After  int
	Change int
}

type Settlement struct {
	A PlayerSettlement
	B PlayerSettlement
}

// ByUser returns the settlement entry for userID.
func (st *Settlement) ByUser(userID string) *PlayerSettlement {
	switch userID {
	case st.A.UserID:
		return &st.A
	case st.B.UserID:
		return &st.B
	}
	return nil
}

// Settle applies an Elo update (K=32) for one finished match and persists
// both new ratings. Called exactly once per finished session.
//
// The read-then-write is not atomic. The match engine is the only settler
// and serializes finishes, so no concurrent Settle can interleave on the
// same pair of ratings.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*Settlement, error) {
	ra, err := s.Rating(ctx, req.UserA)
	if err != nil {
		return nil, err
	}
	rb, err := s.Rating(ctx, req.UserB)
	if err != nil {
		return nil, err
	}

	var scoreA float64
	switch req.WinnerID {
	case req.UserA:
		scoreA = 1
	case req.UserB:
		scoreA = 0
	case "":
		scoreA = 0.5
	default:
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("winner %q is not a participant", req.WinnerID))
	}

	expectedA := 1 / (1 + math.Pow(10, float64(rb-ra)/400))
	change := int(math.Round(kFactor * (scoreA - expectedA)))

	st := &Settlement{
		A: PlayerSettlement{UserID: req.UserA, Before: ra, After: ra + change, Change: change},
		B: PlayerSettlement{UserID: req.UserB, Before: rb, After: rb - change, Change: -change},
	}

	err = s.redis.ZAdd(ctx, s.ratingsKey(),
		redis.Z{Score: float64(st.A.After), Member: st.A.UserID},
		redis.Z{Score: float64(st.B.After), Member: st.B.UserID},
	).Err()
	if err != nil {
		return nil, fmt.Errorf("rating: persist settlement: %w", err)
	}

	return st, nil
}

type LeaderboardEntry struct {
	UserID string
	Rating int
}

// Leaderboard returns the top n rated players, highest first.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.ratingsKey(), 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("rating: leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, LeaderboardEntry{
			UserID: z.Member.(string),
			Rating: int(math.Round(z.Score)),
		})
	}

	return entries, nil
}

func (s *Service) ratingsKey() string {
	return fmt.Sprintf("%s:ratings", s.prefix)
}
