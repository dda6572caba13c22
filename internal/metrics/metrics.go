// Package metrics exports session and stream counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dohr-michael/agentweb/internal/sessions"
)

const namespace = "agentweb"

// Stream kinds for the active streams gauge.
const (
	StreamPull = "pull"
	StreamPush = "push"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	chatTurns        *prometheus.CounterVec
	streamsActive    *prometheus.GaugeVec
}

// New registers the collectors on reg. A nil reg gets a fresh private
// registry, which keeps tests independent of each other.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Execution sessions that began running.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Execution sessions that reached a terminal status.",
		}, []string{"status"}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns persisted, by author.",
		}, []string{"role"}),
		streamsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Open client streams, by kind.",
		}, []string{"kind"}),
	}

	var err error
	if m.sessionsStarted, err = register(reg, m.sessionsStarted); err != nil {
		return nil, err
	}
	if m.sessionsFinished, err = register(reg, m.sessionsFinished); err != nil {
		return nil, err
	}
	if m.chatTurns, err = register(reg, m.chatTurns); err != nil {
		return nil, err
	}
	if m.streamsActive, err = register(reg, m.streamsActive); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// SessionStarted implements tasks.Observer.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

// SessionFinished implements tasks.Observer.
func (m *Metrics) SessionFinished(status sessions.Status) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(string(status)).Inc()
}

// ChatTurn counts a persisted chat turn.
func (m *Metrics) ChatTurn(role string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(role).Inc()
}

// StreamOpened increments the active gauge and returns the matching release.
func (m *Metrics) StreamOpened(kind string) func() {
	if m == nil {
		return func() {}
	}
	g := m.streamsActive.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
