package client

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// countdown is the local 1 Hz session clock. It exists for display and for
// nudging the server near the deadline; it never decides anything. The
// server's timeRemainingSec always wins: every authoritative snapshot
// re-arms the countdown, discarding local drift.
type countdown struct {
	clock     clockwork.Clock
	onTick    func(remaining int)
	onTimeout func()

	mu        sync.Mutex
	remaining int
	fired     bool
	running   bool
	cancel    chan struct{}
}

func newCountdown(clock clockwork.Clock, onTick func(int), onTimeout func()) *countdown {
	return &countdown{clock: clock, onTick: onTick, onTimeout: onTimeout}
}

// Arm sets the remaining seconds and starts ticking if needed. Re-arming a
// running countdown just moves its remaining value; it never produces a
// second ticking loop, so at most one timeout can fire per armed period.
func (t *countdown) Arm(seconds int) {
	t.mu.Lock()
	t.remaining = seconds
	t.fired = false

	if seconds <= 0 {
		// Already past the deadline, e.g. a reconnect that landed after
		// the server clock ran out. Fired off the caller's goroutine:
		// Arm runs under the engine lock and the timeout wants it back.
		t.stopLocked()
		t.fired = true
		t.mu.Unlock()
		go t.onTimeout()
		return
	}

	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.cancel = make(chan struct{})
	cancel := t.cancel
	t.mu.Unlock()

	go t.run(cancel)
}

// Stop halts ticking. Idempotent; a stop racing a timeout means at most one
// of the two takes effect.
func (t *countdown) Stop() {
	t.mu.Lock()
	t.stopLocked()
	t.mu.Unlock()
}

func (t *countdown) stopLocked() {
	if t.running {
		close(t.cancel)
		t.running = false
	}
}

func (t *countdown) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *countdown) run(cancel chan struct{}) {
	ticker := t.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.Chan():
			t.mu.Lock()
			if !t.running || t.cancel != cancel {
				t.mu.Unlock()
				return
			}
			t.remaining--
			remaining := t.remaining
			if remaining <= 0 {
				if t.fired {
					t.mu.Unlock()
					return
				}
				t.fired = true
				t.stopLocked()
				t.mu.Unlock()
				t.onTimeout()
				return
			}
			t.mu.Unlock()
			t.onTick(remaining)
		}
	}
}
