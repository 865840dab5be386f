//go:build integration_test

package demo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pallavi191/codecraft-sub001/client"
	"github.com/pallavi191/codecraft-sub001/internal/api"
	"github.com/pallavi191/codecraft-sub001/internal/domain"
)

const (
	baseURL = "http://localhost:8080"
	// secret must match AUTH_SECRET of the running server.
	secret = "local-secret"
)

// TestRapidFireMatch plays one full match between two clients against a
// locally running server: random matchmaking, all ten questions, settlement.
func TestRapidFireMatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	alice := makeClient(t, "u-alice", "alice")
	bob := makeClient(t, "u-bob", "bob")

	finished := watchForFinish(t, alice, "alice")

	_, err := alice.FindRandomMatch(ctx)
	require.NoError(t, err)
	snap, err := bob.FindRandomMatch(ctx)
	require.NoError(t, err)
	t.Logf("matched into session %s", snap.SessionID)

	var eg errgroup.Group
	eg.Go(func() error { return playThrough(t, alice, "alice") })
	eg.Go(func() error { return playThrough(t, bob, "bob") })
	require.NoError(t, eg.Wait())

	select {
	case <-finished:
	case <-ctx.Done():
		t.Fatal("match never finished")
	}

	t.Logf("winner: %q", alice.Winner())
}

// playThrough answers every question as soon as the engine allows it.
func playThrough(t *testing.T, c *client.Client, name string) error {
	deadline := time.After(80 * time.Second)

	for {
		snap := c.Snapshot()
		if snap.Session != nil && snap.Session.Status.Terminal() {
			return nil
		}

		err := c.Submit(snap.Cursor % 4)
		switch err {
		case nil:
			t.Logf("%s answered question %d", name, snap.Cursor)
		case client.ErrAlreadyAnswered, client.ErrNotOngoing:
			// waiting for the verdict or for the match to start
		default:
			return fmt.Errorf("%s submit: %w", name, err)
		}

		select {
		case <-deadline:
			return fmt.Errorf("%s: match still running after 80s", name)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func watchForFinish(t *testing.T, c *client.Client, name string) <-chan struct{} {
	finished := make(chan struct{})
	var once sync.Once

	c.Subscribe(func(s client.Snapshot) {
		if s.Session == nil {
			return
		}
		if s.LastResult != nil {
			t.Logf("%s: question %d correct=%v score=%s",
				name, s.LastResult.QuestionIndex, s.LastResult.IsCorrect, s.LastResult.UpdatedScore)
		}
		if s.Session.Status == domain.StatusFinished {
			once.Do(func() { close(finished) })
		}
	})

	return finished
}

func makeClient(t *testing.T, userID, username string) *client.Client {
	token := api.NewHMACAuthenticator(secret).IssueToken(api.Identity{
		UserID:   userID,
		Username: username,
	})

	c := client.New(client.Config{
		BaseURL:  baseURL,
		Token:    token,
		UserID:   userID,
		Username: username,
	})
	t.Cleanup(func() { c.Close() })

	return c
}
