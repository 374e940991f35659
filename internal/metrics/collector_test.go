package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ConversationLifecycle(t *testing.T) {
	c := NewCollector("test")

	c.ConversationCreated("api")
	c.ConversationCreated("api")
	c.ConversationEnded("consensus_reached")
	c.ConversationFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.conversationsStarted.WithLabelValues("api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conversationsEnded.WithLabelValues("consensus_reached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conversationsFailed))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeConversations))
}

func TestCollector_TurnsAndClarifications(t *testing.T) {
	c := NewCollector("test")

	c.RoundStarted()
	c.AgentTurn("structured")
	c.AgentTurn("failed")
	c.AgentTurn("failed")
	c.Clarification("timeout")
	c.Delivery("unresolved")
	c.ObserveReasoner("turn", 250*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.rounds))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.turns.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.clarifications.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveries.WithLabelValues("unresolved")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.reasonerDuration))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	// Two collectors with the same namespace must not collide.
	a := NewCollector("same")
	b := NewCollector("same")
	a.RoundStarted()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.rounds))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("mordecai")
	c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `mordecai_http_requests_total{method="GET",route="/health",status="200"} 1`))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ConversationCreated("api")
		c.ConversationEnded("cancelled")
		c.ConversationFailed()
		c.RoundStarted()
		c.AgentTurn("plain")
		c.ObserveReasoner("turn", time.Second)
		c.Clarification("answered")
		c.Delivery("sent")
		c.RecordHTTPRequest("GET", "/", 200, time.Second)
	})
	assert.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
