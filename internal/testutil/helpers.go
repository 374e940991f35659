package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// ErrTest is a generic test error.
var ErrTest = errors.New("test error")

// TempDir creates a temporary directory removed when the test ends.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mordecai-test-*")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

// TempFile writes content to dir/name and returns the path.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

// Seed describes a stored conversation for tests that read history
// without running the engine.
type Seed struct {
	ID            string
	CreatorID     string
	Topic         string
	MaxIterations int
	// Participants are user ids; the first one is the creator when
	// CreatorID is empty.
	Participants []string
	// Messages are "sender: text" lines, all stored in round 1.
	Messages []string
	// Status, when terminal, is applied after messages with ExitReason.
	Status     core.ConversationStatus
	ExitReason string
}

// SeedConversation writes s into st.
func SeedConversation(t *testing.T, st core.ConversationStore, s Seed) *core.Conversation {
	t.Helper()
	ctx := context.Background()
	if s.CreatorID == "" && len(s.Participants) > 0 {
		s.CreatorID = s.Participants[0]
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = core.DefaultMaxIterations
	}
	now := time.Now()
	conv := &core.Conversation{
		ID:            s.ID,
		CreatorID:     s.CreatorID,
		Topic:         s.Topic,
		MaxIterations: s.MaxIterations,
		Status:        core.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	AssertNoError(t, st.CreateConversation(ctx, conv))
	for _, uid := range s.Participants {
		AssertNoError(t, st.AddParticipant(ctx, &core.Participant{
			ConversationID: s.ID,
			UserID:         uid,
			JoinedAt:       time.Now(),
		}))
	}
	for _, line := range s.Messages {
		sender, text, ok := strings.Cut(line, ":")
		if !ok {
			t.Fatalf("seed message %q is not \"sender: text\"", line)
		}
		AssertNoError(t, st.AppendMessage(ctx, &core.Message{
			ConversationID: s.ID,
			SenderID:       strings.TrimSpace(sender),
			Content:        strings.TrimSpace(text),
			Iteration:      1,
		}))
	}
	if s.Status.IsTerminal() {
		AssertNoError(t, st.UpdateStatus(ctx, s.ID, s.Status, s.ExitReason))
	}
	got, err := st.GetConversation(ctx, s.ID)
	AssertNoError(t, err)
	return got
}

// AssertNoError fails if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertEqual fails if got != want.
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// AssertContains fails if s does not contain substr.
func AssertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("expected %q to contain %q", s, substr)
	}
}

// AssertNotContains fails if s contains substr.
func AssertNotContains(t *testing.T, s, substr string) {
	t.Helper()
	if strings.Contains(s, substr) {
		t.Fatalf("expected %q to not contain %q", s, substr)
	}
}

// AssertLen fails if len(s) != want.
func AssertLen[T any](t *testing.T, s []T, want int) {
	t.Helper()
	if len(s) != want {
		t.Fatalf("len() = %d, want %d", len(s), want)
	}
}

// AssertTrue fails if b is false.
func AssertTrue(t *testing.T, b bool, msg string) {
	t.Helper()
	if !b {
		t.Fatalf("expected true: %s", msg)
	}
}

// AssertFalse fails if b is true.
func AssertFalse(t *testing.T, b bool, msg string) {
	t.Helper()
	if b {
		t.Fatalf("expected false: %s", msg)
	}
}
