package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/logging"
)

// Sender transmits text to a resolved address.
type Sender interface {
	Send(ctx context.Context, address, text string) error
}

// Messenger implements core.Messenger over an address book and a sender.
type Messenger struct {
	book   *AddressBook
	sender Sender
}

// NewMessenger creates a Messenger.
func NewMessenger(book *AddressBook, sender Sender) *Messenger {
	return &Messenger{book: book, sender: sender}
}

var (
	_ core.Messenger        = (*Messenger)(nil)
	_ core.AddressSuggester = (*Messenger)(nil)
)

// Send forwards to the configured sender.
func (m *Messenger) Send(ctx context.Context, address, text string) error {
	return m.sender.Send(ctx, address, text)
}

// ResolveAddress looks userID up in the address book.
func (m *Messenger) ResolveAddress(_ context.Context, userID string) (string, bool, error) {
	e, ok := m.book.Lookup(userID)
	if !ok {
		return "", false, nil
	}
	return e.Address, true, nil
}

// SuggestUsers returns address book ids that fuzzily match userID.
func (m *Messenger) SuggestUsers(userID string, limit int) []string {
	return m.book.Suggest(userID, limit)
}

// Book returns the backing address book.
func (m *Messenger) Book() *AddressBook {
	return m.book
}

// LogSender writes every message to the log instead of a chat transport.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogSender{logger: logger.WithComponent("delivery")}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, address, text string) error {
	s.logger.Info("message delivered", "address", address, "text", text)
	return nil
}

// WebhookPayload is the JSON body posted for each message.
type WebhookPayload struct {
	Address string    `json:"address"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}

// WebhookSender posts each message to an HTTP endpoint that fronts the
// real chat transport.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a WebhookSender. A nil client uses a client
// with a ten second timeout.
func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSender{url: url, client: client}
}

// Send posts the message and treats any non-2xx response as a failure.
func (s *WebhookSender) Send(ctx context.Context, address, text string) error {
	body, err := json.Marshal(WebhookPayload{Address: address, Text: text, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return core.ErrExecution(core.CodeDeliveryFailed, "building webhook request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return core.ErrExecution(core.CodeDeliveryFailed, "posting webhook").WithCause(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.ErrExecution(core.CodeDeliveryFailed,
			fmt.Sprintf("webhook returned %d", resp.StatusCode))
	}
	return nil
}
