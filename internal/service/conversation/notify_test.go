package conversation

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliagerman/mordecai-sub000/internal/adapters/delivery"
	"github.com/iliagerman/mordecai-sub000/internal/adapters/store"
	"github.com/iliagerman/mordecai-sub000/internal/logging"
	"github.com/iliagerman/mordecai-sub000/internal/testutil"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNotify_UnknownInviteeLogsSuggestions(t *testing.T) {
	book := delivery.NewAddressBook(map[string]delivery.Entry{
		"alice": {Address: "telegram:1"},
		"bobby": {Address: "telegram:2"},
	})
	messenger := delivery.NewMessenger(book, delivery.NewLogSender(logging.NewNop()))

	logs := &lockedBuffer{}
	logger := logging.New(logging.Config{Level: "warn", Format: "json", Output: logs})

	svc := New(store.NewMemoryStore(), testutil.NewMockReasoner(), messenger,
		WithConfig(DefaultConfig()), WithLogger(logger))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	_, err := svc.Create(context.Background(), CreateRequest{
		CreatorID:    "alice",
		Topic:        "Team offsite",
		Participants: []string{"bob"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "no delivery address for user")
	}, waitFor, 10*time.Millisecond)
	assert.Contains(t, logs.String(), `"did_you_mean":"bobby"`)
}

func TestAddressHint_WithoutSuggester(t *testing.T) {
	svc := New(store.NewMemoryStore(), testutil.NewMockReasoner(), testutil.NewMockMessenger())
	assert.Empty(t, svc.addressHint("bob"))
}
