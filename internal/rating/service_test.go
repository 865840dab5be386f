package rating_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pallavi191/codecraft-sub001/internal/rating"
)

func newService(t *testing.T) *rating.Service {
	t.Helper()

	mr := miniredis.RunT(t)
	return rating.NewService(rating.Config{
		Redis:  redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Prefix: "test",
	})
}

func TestRating_DefaultForUnrated(t *testing.T) {
	s := newService(t)

	r, err := s.Rating(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, rating.DefaultRating, r)
}

func TestSettle(t *testing.T) {
	ctx := context.Background()

	t.Run("equal ratings, decisive result", func(t *testing.T) {
		s := newService(t)

		st, err := s.Settle(ctx, rating.SettleRequest{UserA: "a", UserB: "b", WinnerID: "a"})
		require.NoError(t, err)

		// Evenly matched: the winner takes exactly half the K factor.
		assert.Equal(t, 16, st.A.Change)
		assert.Equal(t, -16, st.B.Change)
		assert.Equal(t, st.A.Change, -st.B.Change, "rating is zero-sum")
	})

	t.Run("equal ratings, draw changes nothing", func(t *testing.T) {
		s := newService(t)

		st, err := s.Settle(ctx, rating.SettleRequest{UserA: "a", UserB: "b", WinnerID: ""})
		require.NoError(t, err)
		assert.Zero(t, st.A.Change)
		assert.Zero(t, st.B.Change)
	})

	t.Run("underdog win pays more than a favorite win", func(t *testing.T) {
		s := newService(t)

		// Give "a" a head start.
		_, err := s.Settle(ctx, rating.SettleRequest{UserA: "a", UserB: "b", WinnerID: "a"})
		require.NoError(t, err)

		st, err := s.Settle(ctx, rating.SettleRequest{UserA: "a", UserB: "b", WinnerID: "b"})
		require.NoError(t, err)
		assert.Greater(t, st.B.Change, 16, "beating a higher-rated player pays extra")
	})

	t.Run("settlement persists", func(t *testing.T) {
		s := newService(t)

		st, err := s.Settle(ctx, rating.SettleRequest{UserA: "a", UserB: "b", WinnerID: "a"})
		require.NoError(t, err)

		ra, err := s.Rating(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, st.A.After, ra)

		rb, err := s.Rating(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, st.B.After, rb)
	})

	t.Run("winner must be a participant", func(t *testing.T) {
		s := newService(t)

		_, err := s.Settle(ctx, rating.SettleRequest{UserA: "a", UserB: "b", WinnerID: "x"})
		assert.Error(t, err)
	})
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	_, err := s.Settle(ctx, rating.SettleRequest{UserA: "a", UserB: "b", WinnerID: "a"})
	require.NoError(t, err)
	_, err = s.Settle(ctx, rating.SettleRequest{UserA: "a", UserB: "c", WinnerID: "a"})
	require.NoError(t, err)

	entries, err := s.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].UserID, "highest rating first")

	top, err := s.Leaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}
