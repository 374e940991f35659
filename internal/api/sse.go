package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/iliagerman/mordecai-sub000/internal/events"
)

// handleSSE streams conversation events. ?conversation=<id> limits the
// stream to one conversation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.eventBus == nil {
		respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var eventCh <-chan events.Event
	conversationID := r.URL.Query().Get("conversation")
	if conversationID != "" {
		eventCh = s.eventBus.SubscribeConversation(conversationID)
	} else {
		eventCh = s.eventBus.Subscribe()
	}
	defer s.eventBus.Unsubscribe(eventCh)

	ctx := r.Context()
	s.logger.Info("SSE client connected", "remote_addr", r.RemoteAddr, "conversation_id", conversationID)
	s.sendSSEEvent(w, flusher, "connected", map[string]string{"status": "connected"})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			s.sendSSEEvent(w, flusher, event.EventType(), event)
		}
	}
}

// sendSSEEvent writes one event in SSE framing: "event: type\ndata: json\n\n".
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
