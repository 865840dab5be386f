package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pallavi191/codecraft-sub001/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"subscriber receives only its event": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{named("e1"), named("e2")},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"e1"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{named("e1")}, out.received["s1"])
			},
		},

		"every publish reaches the subscriber": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{named("e1"), named("e1"), named("e1")},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"e1"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 3)
			},
		},

		"one event fans out to all subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{named("e1")},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"e1"}},
						{name: "s2", subscribeTo: []string{"e1", "e2"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{named("e1")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{named("e1")}, out.received["s2"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()
			for _, s := range in.subscribers {
				s := s
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_HandlerFailureIsIsolated(t *testing.T) {
	b := event.NewBusSize(4)

	var (
		mu    sync.Mutex
		calls int
	)
	b.Subscribe("e", func(context.Context, event.Event) error {
		return errors.New("boom")
	})
	b.Subscribe("e", func(context.Context, event.Event) error {
		panic("boom")
	})
	b.Subscribe("e", func(context.Context, event.Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), named("e"))
	b.Stop()

	assert.Equal(t, 1, calls, "healthy handler should still run")
}

type named string

func (e named) Name() string { return string(e) }

type subscriber struct {
	name        string
	subscribeTo []string
}
