package client_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pallavi191/codecraft-sub001/client"
	"github.com/pallavi191/codecraft-sub001/internal/domain"
	"github.com/pallavi191/codecraft-sub001/internal/errors"
	"github.com/pallavi191/codecraft-sub001/internal/protocol"
)

const (
	me  = "me"
	opp = "opp"
)

func TestFindRandomMatch_DialsAndJoinsOnce(t *testing.T) {
	f := newFixture(t, clockwork.NewFakeClock())
	ch := f.dialer.queue()
	f.respond(waitingSnap("s1"))

	snap, err := f.client.FindRandomMatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.SessionID)

	assert.Equal(t, 1, f.dialer.count())
	joins := ch.written(protocol.ControlJoinSession)
	require.Len(t, joins, 1, "exactly one joinSession per connect")

	var join protocol.JoinSession
	require.NoError(t, joins[0].Decode(&join))
	assert.Equal(t, "s1", join.SessionID)

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "s1", stored, "session id persisted for resume")

	assert.Equal(t, client.ConnConnected, f.client.Snapshot().Conn)
}

func TestJoinRoom_RoomFullDoesNotDial(t *testing.T) {
	f := newFixture(t, clockwork.NewFakeClock())
	f.respondError(http.StatusConflict, errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(errors.ReasonRoomFull),
		errors.WithMessagef("room is full")))

	_, err := f.client.JoinRoom(context.Background(), "ABC123")
	assert.True(t, errors.HasReason(err, errors.ReasonRoomFull))
	assert.Zero(t, f.dialer.count(), "no channel for a failed join")
	assert.Nil(t, f.client.Snapshot().Session)
}

func TestSubmit_AtMostOncePerQuestion(t *testing.T) {
	f := newFixture(t, clockwork.NewFakeClock())
	ch := f.connect(t)
	f.serverSend(t, ch, protocol.EventSessionStarted, ongoingSnap("s1", 0, 0, 60))
	f.waitStatus(t, domain.StatusOngoing)

	require.NoError(t, f.client.Submit(1))

	// Rapid re-taps before the verdict collapse into nothing.
	assert.ErrorIs(t, f.client.Submit(2), client.ErrAlreadyAnswered)
	assert.ErrorIs(t, f.client.Submit(1), client.ErrAlreadyAnswered)
	assert.Len(t, ch.written(protocol.ControlSubmitAnswer), 1, "one wire message per question")

	f.serverSend(t, ch, protocol.EventAnswerResult, protocol.AnswerResult{
		QuestionIndex:     0,
		IsCorrect:         true,
		ScoreDelta:        decimal.NewFromFloat(1.0),
		UpdatedScore:      decimal.NewFromFloat(1.0),
		QuestionsAnswered: 1,
	})
	f.waitCursor(t, 1)

	// The verdict for question 0 does not unlock question 0, it unlocks 1.
	require.NoError(t, f.client.Submit(0))
	subs := ch.written(protocol.ControlSubmitAnswer)
	require.Len(t, subs, 2)

	var sub protocol.SubmitAnswer
	require.NoError(t, subs[1].Decode(&sub))
	assert.Equal(t, 1, sub.QuestionIndex)
}

func TestSubmit_GuardsOutsideOngoing(t *testing.T) {
	f := newFixture(t, clockwork.NewFakeClock())
	f.connect(t)

	// Session is still waiting.
	assert.ErrorIs(t, f.client.Submit(0), client.ErrNotOngoing)
}

func TestAnswerResult_AdvancesCursorExactlyOnce(t *testing.T) {
	f := newFixture(t, clockwork.NewFakeClock())
	ch := f.connect(t)
	f.serverSend(t, ch, protocol.EventSessionStarted, ongoingSnap("s1", 0, 0, 60))
	f.waitStatus(t, domain.StatusOngoing)

	require.NoError(t, f.client.Submit(1))
	res := protocol.AnswerResult{
		QuestionIndex:     0,
		IsCorrect:         false,
		ScoreDelta:        decimal.NewFromFloat(-0.5),
		UpdatedScore:      decimal.NewFromFloat(-0.5),
		QuestionsAnswered: 1,
	}
	f.serverSend(t, ch, protocol.EventAnswerResult, res)
	f.waitCursor(t, 1)

	// A replayed verdict moves nothing.
	f.serverSend(t, ch, protocol.EventAnswerResult, res)
	f.serverSend(t, ch, protocol.EventOpponentLeft, protocol.OpponentLeft{Message: "sync"})
	f.waitNotice(t, "sync")
	assert.Equal(t, 1, f.client.Snapshot().Cursor)
}

func TestSnapshot_IdempotentAndOrdered(t *testing.T) {
	f := newFixture(t, clockwork.NewFakeClock())
	ch := f.connect(t)

	fresh := ongoingSnap("s1", 2, 3, 40)
	f.serverSend(t, ch, protocol.EventSessionState, fresh)
	f.waitCursor(t, 2)

	// Same snapshot again: a no-op.
	f.serverSend(t, ch, protocol.EventSessionState, fresh)
	// A stale snapshot from before the last two answers: dropped.
	f.serverSend(t, ch, protocol.EventSessionState, ongoingSnap("s1", 0, 1, 55))
	f.serverSend(t, ch, protocol.EventOpponentLeft, protocol.OpponentLeft{Message: "sync"})
	f.waitNotice(t, "sync")

	got := f.client.Snapshot()
	assert.Equal(t, 2, got.Cursor, "cursor never regresses")
	assert.Equal(t, 5, got.Session.Progress())
}

func TestOpponentProgress_NeverTouchesLocalPlayer(t *testing.T) {
	f := newFixture(t, clockwork.NewFakeClock())
	ch := f.connect(t)
	f.serverSend(t, ch, protocol.EventSessionState, ongoingSnap("s1", 1, 0, 50))
	f.waitCursor(t, 1)

	f.serverSend(t, ch, protocol.EventOpponentProgress, protocol.OpponentProgress{
		UserID:            opp,
		QuestionsAnswered: 4,
		Score:             decimal.NewFromFloat(2.5),
	})

	require.Eventually(t, func() bool {
		return playerOf(f.client.Snapshot(), opp).QuestionsAnswered == 4
	}, time.Second, 5*time.Millisecond)

	local := playerOf(f.client.Snapshot(), me)
	assert.Equal(t, 1, local.QuestionsAnswered)
	assert.Equal(t, 1, f.client.Snapshot().Cursor)
}

func TestSessionFinished_ServerVerdictWins(t *testing.T) {
	f := newFixture(t, clockwork.NewFakeClock())
	ch := f.connect(t)
	f.serverSend(t, ch, protocol.EventSessionState, ongoingSnap("s1", 5, 2, 30))
	f.waitCursor(t, 5)

	// Local bookkeeping says "me" leads, the server says otherwise.
	final := finishedSnap("s1", opp)
	f.serverSend(t, ch, protocol.EventSessionFinished, protocol.SessionFinished{
		WinnerUserID:  opp,
		Result:        domain.ResultWin,
		FinalSnapshot: final,
	})
	f.waitStatus(t, domain.StatusFinished)

	assert.Equal(t, opp, f.client.Winner())

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, stored, "a finished session is not resumable")
}

func TestTimer_CountsDownAndNudgesOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := newFixture(t, clock)
	ch := f.connect(t)
	f.serverSend(t, ch, protocol.EventSessionStarted, ongoingSnap("s1", 0, 0, 3))
	f.waitStatus(t, domain.StatusOngoing)
	f.waitRemaining(t, 3)

	clock.BlockUntil(1) // countdown ticker is armed
	clock.Advance(time.Second)
	f.waitRemaining(t, 2)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	f.waitRemaining(t, 1)

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return len(ch.written(protocol.ControlSessionTimeout)) == 1
	}, time.Second, 5*time.Millisecond)

	// The local clock never decides: still ongoing until the server says so.
	assert.Equal(t, domain.StatusOngoing, f.client.Snapshot().Session.Status)

	f.serverSend(t, ch, protocol.EventSessionFinished, protocol.SessionFinished{
		WinnerUserID:  me,
		Result:        domain.ResultWin,
		FinalSnapshot: finishedSnap("s1", me),
	})
	f.waitStatus(t, domain.StatusFinished)
	assert.Len(t, ch.written(protocol.ControlSessionTimeout), 1, "a single nudge per run")
}

func TestTimer_FinishBeforeLocalTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := newFixture(t, clock)
	ch := f.connect(t)
	f.serverSend(t, ch, protocol.EventSessionStarted, ongoingSnap("s1", 0, 0, 5))
	f.waitStatus(t, domain.StatusOngoing)
	f.waitRemaining(t, 5)

	f.serverSend(t, ch, protocol.EventSessionFinished, protocol.SessionFinished{
		WinnerUserID:  me,
		Result:        domain.ResultWin,
		FinalSnapshot: finishedSnap("s1", me),
	})
	f.waitStatus(t, domain.StatusFinished)

	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, ch.written(protocol.ControlSessionTimeout),
		"the countdown died with the session")
}

func TestReconnect_RearmsFromAuthoritativeRemaining(t *testing.T) {
	f := newFixtureWithDelay(t, clockwork.NewRealClock(), time.Millisecond)
	ch1 := f.connect(t)
	ch2 := f.dialer.queue()

	f.serverSend(t, ch1, protocol.EventSessionStarted, ongoingSnap("s1", 0, 0, 60))
	f.waitStatus(t, domain.StatusOngoing)

	ch1.kill()

	require.Eventually(t, func() bool { return f.dialer.count() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(ch2.written(protocol.ControlJoinSession)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, ch1.written(protocol.ControlJoinSession), 1, "old channel is never rejoined")

	// The server replies to the rejoin with the true clock.
	f.serverSend(t, ch2, protocol.EventSessionState, ongoingSnap("s1", 0, 0, 22))
	require.Eventually(t, func() bool {
		r := f.client.Snapshot().Remaining
		return r <= 22 && r >= 21
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, client.ConnConnected, f.client.Snapshot().Conn)
}

func TestReconnect_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixtureWithDelay(t, clockwork.NewRealClock(), time.Millisecond)
	ch := f.connect(t)

	// Nothing queued on the dialer: every redial fails.
	ch.kill()

	require.Eventually(t, func() bool {
		return f.client.Snapshot().Conn == client.ConnFailed
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 6, f.dialer.count(), "initial dial plus five retries")

	got := f.client.Snapshot()
	require.NotNil(t, got.Session, "session state survives a dead connection")
	assert.Equal(t, "s1", got.Session.SessionID)
}

func TestReconnect_SessionEndedWhileDisconnected(t *testing.T) {
	f := newFixtureWithDelay(t, clockwork.NewRealClock(), time.Millisecond)
	ch1 := f.connect(t)
	ch2 := f.dialer.queue()

	f.serverSend(t, ch1, protocol.EventSessionStarted, ongoingSnap("s1", 0, 0, 60))
	f.waitStatus(t, domain.StatusOngoing)

	// While we are away the engine settles and evicts s1, so both the rejoin
	// on the new channel and the REST lookup come back not-found.
	f.respondError(http.StatusNotFound, errors.New(errors.CodeNotFound,
		errors.WithReason(errors.ReasonSessionNotFound),
		errors.WithMessagef("session s1 not found")))
	ch1.kill()

	require.Eventually(t, func() bool { return f.dialer.count() == 2 }, time.Second, 5*time.Millisecond)
	f.serverSend(t, ch2, protocol.EventError, protocol.ErrorPayload{
		Reason:  string(errors.ReasonSessionNotFound),
		Message: "session s1 not found",
	})

	f.waitStatus(t, domain.StatusFinished)
	f.waitNotice(t, "match ended while you were disconnected")

	id, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, id, "a settled session is not resumable")
}

func TestLeave_TearsDownAndForgets(t *testing.T) {
	f := newFixture(t, clockwork.NewFakeClock())
	ch := f.connect(t)
	f.serverSend(t, ch, protocol.EventSessionStarted, ongoingSnap("s1", 0, 0, 60))
	f.waitStatus(t, domain.StatusOngoing)

	require.NoError(t, f.client.Leave(context.Background()))

	leaves := ch.written(protocol.ControlLeaveSession)
	require.Len(t, leaves, 1)

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, client.ConnDisconnected, f.client.Snapshot().Conn)
}

// --- fixture ---

type fixture struct {
	t      *testing.T
	client *client.Client
	dialer *fakeDialer
	store  *client.MemoryStore

	mu     sync.Mutex
	status int
	body   []byte
}

func newFixture(t *testing.T, clock clockwork.Clock) *fixture {
	return newFixtureWithDelay(t, clock, 0)
}

func newFixtureWithDelay(t *testing.T, clock clockwork.Clock, delay time.Duration) *fixture {
	t.Helper()

	f := &fixture{
		t:      t,
		dialer: &fakeDialer{},
		store:  client.NewMemoryStore(),
		status: http.StatusOK,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.WriteHeader(f.status)
		w.Write(f.body)
	}))
	t.Cleanup(srv.Close)

	f.client = client.New(client.Config{
		BaseURL:            srv.URL,
		Token:              "token",
		UserID:             me,
		Username:           "me",
		Dialer:             f.dialer,
		Store:              f.store,
		Clock:              clock,
		ReconnectBaseDelay: delay,
	})
	t.Cleanup(func() { f.client.Close() })
	return f
}

func (f *fixture) respond(snap protocol.SessionSnapshot) {
	b, err := json.Marshal(snap)
	require.NoError(f.t, err)

	f.mu.Lock()
	f.status = http.StatusOK
	f.body = b
	f.mu.Unlock()
}

func (f *fixture) respondError(status int, e *errors.Error) {
	b, err := json.Marshal(e)
	require.NoError(f.t, err)

	f.mu.Lock()
	f.status = status
	f.body = b
	f.mu.Unlock()
}

// connect brings the client into session s1 over a fresh fake channel.
func (f *fixture) connect(t *testing.T) *fakeChannel {
	t.Helper()

	ch := f.dialer.queue()
	f.respond(waitingSnap("s1"))
	_, err := f.client.FindRandomMatch(context.Background())
	require.NoError(t, err)
	return ch
}

func (f *fixture) serverSend(t *testing.T, ch *fakeChannel, event string, payload any) {
	t.Helper()
	require.NoError(t, ch.push(protocol.MustEnvelope(event, payload)))
}

func (f *fixture) waitStatus(t *testing.T, status domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := f.client.Snapshot()
		return s.Session != nil && s.Session.Status == status
	}, time.Second, 5*time.Millisecond)
}

func (f *fixture) waitCursor(t *testing.T, cursor int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.client.Snapshot().Cursor == cursor
	}, time.Second, 5*time.Millisecond)
}

func (f *fixture) waitNotice(t *testing.T, notice string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.client.Snapshot().Notice == notice
	}, time.Second, 5*time.Millisecond)
}

func (f *fixture) waitRemaining(t *testing.T, remaining int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.client.Snapshot().Remaining == remaining
	}, time.Second, 5*time.Millisecond)
}

// --- fakes ---

type fakeDialer struct {
	mu    sync.Mutex
	ready []*fakeChannel
	dials int
}

// queue prepares one channel for the next dial. Dials beyond the prepared
// set fail.
func (d *fakeDialer) queue() *fakeChannel {
	ch := newFakeChannel()

	d.mu.Lock()
	d.ready = append(d.ready, ch)
	d.mu.Unlock()
	return ch
}

func (d *fakeDialer) Dial(context.Context, string) (client.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if len(d.ready) == 0 {
		return nil, stderrors.New("dial refused")
	}
	ch := d.ready[0]
	d.ready = d.ready[1:]
	return ch, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeChannel struct {
	in   chan protocol.Envelope
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	wrote []protocol.Envelope
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:   make(chan protocol.Envelope, 32),
		done: make(chan struct{}),
	}
}

func (c *fakeChannel) Read() (protocol.Envelope, error) {
	select {
	case env := <-c.in:
		return env, nil
	case <-c.done:
		return protocol.Envelope{}, stderrors.New("channel closed")
	}
}

func (c *fakeChannel) Write(env protocol.Envelope) error {
	select {
	case <-c.done:
		return stderrors.New("channel closed")
	default:
	}

	c.mu.Lock()
	c.wrote = append(c.wrote, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// kill severs the channel from the server side.
func (c *fakeChannel) kill() { c.Close() }

func (c *fakeChannel) push(env protocol.Envelope) error {
	select {
	case c.in <- env:
		return nil
	case <-c.done:
		return stderrors.New("channel closed")
	}
}

func (c *fakeChannel) written(event string) []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []protocol.Envelope
	for _, env := range c.wrote {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// --- snapshot builders ---

func waitingSnap(id string) protocol.SessionSnapshot {
	return protocol.SessionSnapshot{
		SessionID:        id,
		Status:           domain.StatusWaiting,
		Players:          []protocol.PlayerSnapshot{{UserID: me, Username: "me", Score: decimal.Zero}},
		TotalQuestions:   domain.TotalQuestions,
		TimeLimitSeconds: domain.TimeLimitSeconds,
		TimeRemainingSec: domain.TimeLimitSeconds,
	}
}

func ongoingSnap(id string, meAnswered, oppAnswered, remaining int) protocol.SessionSnapshot {
	snap := protocol.SessionSnapshot{
		SessionID: id,
		Status:    domain.StatusOngoing,
		Players: []protocol.PlayerSnapshot{
			{UserID: me, Username: "me", Score: decimal.Zero, QuestionsAnswered: meAnswered},
			{UserID: opp, Username: "opp", Score: decimal.Zero, QuestionsAnswered: oppAnswered},
		},
		TotalQuestions:   domain.TotalQuestions,
		TimeLimitSeconds: domain.TimeLimitSeconds,
		TimeRemainingSec: remaining,
	}
	for i := 0; i < domain.TotalQuestions; i++ {
		snap.Questions = append(snap.Questions, protocol.QuestionView{
			QuestionID: "q",
			Text:       "?",
			Options:    []string{"a", "b", "c", "d"},
		})
	}
	return snap
}

func finishedSnap(id, winner string) protocol.SessionSnapshot {
	snap := ongoingSnap(id, domain.TotalQuestions, domain.TotalQuestions, 0)
	snap.Status = domain.StatusFinished
	snap.WinnerUserID = winner
	snap.Result = domain.ResultWin
	return snap
}

func playerOf(s client.Snapshot, userID string) protocol.PlayerSnapshot {
	for _, p := range s.Session.Players {
		if p.UserID == userID {
			return p
		}
	}
	return protocol.PlayerSnapshot{}
}
