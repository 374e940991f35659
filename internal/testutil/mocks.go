package testutil

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultReply is what MockReasoner answers for unscripted users.
const DefaultReply = "Noted."

// ReasonerCall records one reasoning request.
type ReasonerCall struct {
	UserID    string
	Prompt    string
	Timestamp time.Time
}

// MockReasoner implements core.Reasoner with scripted per-user replies.
// Each user's replies are consumed in order; the last one repeats.
type MockReasoner struct {
	mu      sync.Mutex
	scripts map[string][]string
	fails   map[string]error
	handler func(ctx context.Context, userID, prompt string) (string, error)
	delay   time.Duration
	calls   []ReasonerCall
}

// NewMockReasoner creates an unscripted mock reasoner.
func NewMockReasoner() *MockReasoner {
	return &MockReasoner{
		scripts: make(map[string][]string),
		fails:   make(map[string]error),
	}
}

// Script queues replies for userID.
func (m *MockReasoner) Script(userID string, replies ...string) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[userID] = append(m.scripts[userID], replies...)
	return m
}

// FailFor makes every call for userID return err.
func (m *MockReasoner) FailFor(userID string, err error) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[userID] = err
	return m
}

// WithDelay delays every reply by d unless the context ends first.
func (m *MockReasoner) WithDelay(d time.Duration) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Handle routes every call through fn, bypassing scripts.
func (m *MockReasoner) Handle(fn func(ctx context.Context, userID, prompt string) (string, error)) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// Invoke implements core.Reasoner.
func (m *MockReasoner) Invoke(ctx context.Context, userID, prompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ReasonerCall{UserID: userID, Prompt: prompt, Timestamp: time.Now()})
	delay := m.delay
	handler := m.handler
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if handler != nil {
		return handler(ctx, userID, prompt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fails[userID]; err != nil {
		return "", err
	}
	script := m.scripts[userID]
	switch len(script) {
	case 0:
		return DefaultReply, nil
	case 1:
		return script[0], nil
	default:
		m.scripts[userID] = script[1:]
		return script[0], nil
	}
}

// Calls returns every recorded call.
func (m *MockReasoner) Calls() []ReasonerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReasonerCall(nil), m.calls...)
}

// CallsFor returns the calls made on behalf of userID.
func (m *MockReasoner) CallsFor(userID string) []ReasonerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReasonerCall
	for _, c := range m.calls {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// SentMessage records one delivered text.
type SentMessage struct {
	Address string
	Text    string
}

// MockMessenger implements core.Messenger. Every user resolves to
// "addr:<user id>" unless overridden or marked unknown.
type MockMessenger struct {
	mu        sync.Mutex
	addresses map[string]string
	unknown   map[string]bool
	sendErr   error
	sent      []SentMessage
}

// NewMockMessenger creates a messenger that accepts every send.
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{
		addresses: make(map[string]string),
		unknown:   make(map[string]bool),
	}
}

// AddressOf returns the address userID resolves to.
func AddressOf(userID string) string {
	return "addr:" + userID
}

// SetAddress overrides the address of userID.
func (m *MockMessenger) SetAddress(userID, address string) *MockMessenger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[userID] = address
	return m
}

// Unknown makes userID unresolvable.
func (m *MockMessenger) Unknown(userID string) *MockMessenger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unknown[userID] = true
	return m
}

// FailSends makes every Send return err.
func (m *MockMessenger) FailSends(err error) *MockMessenger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
	return m
}

// ResolveAddress implements core.Messenger.
func (m *MockMessenger) ResolveAddress(_ context.Context, userID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unknown[userID] {
		return "", false, nil
	}
	if addr, ok := m.addresses[userID]; ok {
		return addr, true, nil
	}
	return AddressOf(userID), true, nil
}

// Send implements core.Messenger.
func (m *MockMessenger) Send(_ context.Context, address, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, SentMessage{Address: address, Text: text})
	return nil
}

// Sent returns every delivered message.
func (m *MockMessenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// MessagesTo returns the texts delivered to address.
func (m *MockMessenger) MessagesTo(address string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.Address == address {
			out = append(out, s.Text)
		}
	}
	return out
}

// Received reports whether any text delivered to address contains substr.
func (m *MockMessenger) Received(address, substr string) bool {
	for _, text := range m.MessagesTo(address) {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}
