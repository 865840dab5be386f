package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
	"github.com/pallavi191/codecraft-sub001/internal/event"
)

var (
	ChannelConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rapidfire_channel_connections",
		Help: "Open websocket channel connections.",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rapidfire_active_sessions",
		Help: "Live sessions, waiting or ongoing.",
	})

	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rapidfire_sessions_finished_total",
		Help: "Terminal sessions by result.",
	}, []string{"result"})

	answersScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rapidfire_answers_scored_total",
		Help: "Accepted answer submissions by verdict.",
	}, []string{"verdict"})
)

// ObserveEngine subscribes the engine metrics to the event bus.
func ObserveEngine(eb *event.Bus) {
	eb.Subscribe(domain.EventNameSessionCreated, func(context.Context, event.Event) error {
		activeSessions.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameSessionFinished, func(_ context.Context, e event.Event) error {
		activeSessions.Dec()
		sessionsFinished.WithLabelValues(string(e.(domain.EventSessionFinished).Session.Result)).Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameSessionCancelled, func(context.Context, event.Event) error {
		activeSessions.Dec()
		sessionsFinished.WithLabelValues("cancelled").Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameAnswerScored, func(_ context.Context, e event.Event) error {
		verdict := "wrong"
		if e.(domain.EventAnswerScored).Correct {
			verdict = "correct"
		}
		answersScored.WithLabelValues(verdict).Inc()
		return nil
	})
}
