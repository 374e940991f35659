// Package metrics exposes prometheus instrumentation for conversations,
// reasoning calls, delivery and the HTTP API. A nil *Collector is valid
// and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric mordecai exports.
type Collector struct {
	registry *prometheus.Registry

	conversationsStarted *prometheus.CounterVec
	conversationsEnded   *prometheus.CounterVec
	conversationsFailed  prometheus.Counter
	activeConversations  prometheus.Gauge
	rounds               prometheus.Counter
	turns                *prometheus.CounterVec
	reasonerDuration     *prometheus.HistogramVec
	clarifications       *prometheus.CounterVec
	deliveries           *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector registers all metrics under namespace on a private registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	c.conversationsStarted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_created_total",
			Help:      "Total number of conversations created",
		},
		[]string{"source"},
	)
	c.conversationsEnded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_ended_total",
			Help:      "Total number of conversations terminated, by final status",
		},
		[]string{"status"},
	)
	c.conversationsFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversations_failed_total",
		Help:      "Conversations evicted after a persistence failure",
	})
	c.activeConversations = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "conversations_active",
		Help:      "Conversations currently held in memory",
	})
	c.rounds = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_total",
		Help:      "Discussion rounds started",
	})
	c.turns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_turns_total",
			Help:      "Agent turns by outcome",
		},
		[]string{"outcome"}, // structured, plain, failed
	)
	c.reasonerDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reasoner_duration_seconds",
			Help:      "Reasoning call latency",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"purpose"}, // turn, extraction, alignment
	)
	c.clarifications = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clarifications_total",
			Help:      "Owner clarification requests by outcome",
		},
		[]string{"outcome"},
	)
	c.deliveries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound messages by result",
		},
		[]string{"result"}, // sent, failed, unresolved
	)
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's metrics in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ConversationCreated counts a new conversation and bumps the active gauge.
func (c *Collector) ConversationCreated(source string) {
	if c == nil {
		return
	}
	c.conversationsStarted.WithLabelValues(source).Inc()
	c.activeConversations.Inc()
}

// ConversationEnded records a terminal status.
func (c *Collector) ConversationEnded(status string) {
	if c == nil {
		return
	}
	c.conversationsEnded.WithLabelValues(status).Inc()
	c.activeConversations.Dec()
}

// ConversationFailed records an eviction after a persistence failure.
func (c *Collector) ConversationFailed() {
	if c == nil {
		return
	}
	c.conversationsFailed.Inc()
	c.activeConversations.Dec()
}

// RoundStarted counts a discussion round.
func (c *Collector) RoundStarted() {
	if c == nil {
		return
	}
	c.rounds.Inc()
}

// AgentTurn counts an agent turn by outcome.
func (c *Collector) AgentTurn(outcome string) {
	if c == nil {
		return
	}
	c.turns.WithLabelValues(outcome).Inc()
}

// ObserveReasoner records the latency of one reasoning call.
func (c *Collector) ObserveReasoner(purpose string, d time.Duration) {
	if c == nil {
		return
	}
	c.reasonerDuration.WithLabelValues(purpose).Observe(d.Seconds())
}

// Clarification counts a clarification by outcome.
func (c *Collector) Clarification(outcome string) {
	if c == nil {
		return
	}
	c.clarifications.WithLabelValues(outcome).Inc()
}

// Delivery counts an outbound message by result.
func (c *Collector) Delivery(result string) {
	if c == nil {
		return
	}
	c.deliveries.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
