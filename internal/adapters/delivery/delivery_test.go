package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

const sampleBook = `
users:
  alice:
    address: "telegram:1001"
    name: Alice
  alicia:
    address: "telegram:1002"
  bob:
    address: "telegram:2001"
  ghost:
    name: No Address
`

func writeBook(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadAddressBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.yaml")
	writeBook(t, path, sampleBook)

	book, err := LoadAddressBook(path, nil)
	require.NoError(t, err)

	e, ok := book.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "telegram:1001", e.Address)
	assert.Equal(t, "Alice", e.Name)

	_, ok = book.Lookup("ghost")
	assert.False(t, ok, "entries without an address are skipped")
	assert.Equal(t, []string{"alice", "alicia", "bob"}, book.Users())
}

func TestLoadAddressBook_MissingFile(t *testing.T) {
	book, err := LoadAddressBook(filepath.Join(t.TempDir(), "none.yaml"), nil)
	require.NoError(t, err)
	assert.Empty(t, book.Users())
}

func TestLoadAddressBook_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.yaml")
	writeBook(t, path, "users: [")
	_, err := LoadAddressBook(path, nil)
	assert.Error(t, err)
}

func TestAddressBook_Suggest(t *testing.T) {
	book := NewAddressBook(map[string]Entry{
		"alice":  {Address: "a"},
		"alicia": {Address: "b"},
		"bob":    {Address: "c"},
	})
	got := book.Suggest("alc", 5)
	assert.Contains(t, got, "alice")
	assert.Contains(t, got, "alicia")
	assert.NotContains(t, got, "bob")

	assert.Len(t, book.Suggest("al", 1), 1)
	assert.Empty(t, book.Suggest("", 3))
	assert.NotContains(t, book.Suggest("bob", 3), "bob")
}

func TestAddressBook_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.yaml")
	writeBook(t, path, sampleBook)

	book, err := LoadAddressBook(path, nil)
	require.NoError(t, err)
	require.NoError(t, book.Watch())
	defer book.Close()

	writeBook(t, path, "users:\n  carol:\n    address: \"telegram:3001\"\n")

	require.Eventually(t, func() bool {
		_, ok := book.Lookup("carol")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	_, ok := book.Lookup("alice")
	assert.False(t, ok)
}

func TestMessenger_Resolve(t *testing.T) {
	m := NewMessenger(NewAddressBook(map[string]Entry{"alice": {Address: "telegram:1"}}), NewLogSender(nil))

	addr, ok, err := m.ResolveAddress(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "telegram:1", addr)

	_, ok, err = m.ResolveAddress(context.Background(), "zed")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, m.Send(context.Background(), addr, "hello"))
}

func TestWebhookSender(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, srv.Client())
	require.NoError(t, s.Send(context.Background(), "telegram:1", "Round 1"))
	assert.Equal(t, "telegram:1", got.Address)
	assert.Equal(t, "Round 1", got.Text)
	assert.False(t, got.SentAt.IsZero())
}

func TestWebhookSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, nil).Send(context.Background(), "a", "b")
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeDeliveryFailed))
}
