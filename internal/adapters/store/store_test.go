package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

type storeFactory func(t *testing.T) core.ConversationStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"sqlite": func(t *testing.T) core.ConversationStore {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"))
			require.NoError(t, err)
			return s
		},
		"json": func(t *testing.T) core.ConversationStore {
			s, err := NewJSONStore(filepath.Join(t.TempDir(), "conversations"))
			require.NoError(t, err)
			return s
		},
		"bolt": func(t *testing.T) core.ConversationStore {
			s, err := NewBoltStore(filepath.Join(t.TempDir(), "conversations.bolt"))
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) core.ConversationStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return NewRedisStoreWithClient(client, "test:")
		},
		"memory": func(t *testing.T) core.ConversationStore {
			return NewMemoryStore()
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s core.ConversationStore)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func newConversation(id string, createdAt time.Time) *core.Conversation {
	return &core.Conversation{
		ID:            id,
		CreatorID:     "creator",
		Topic:         "Team offsite",
		MaxIterations: 3,
		Status:        core.StatusActive,
		CreatedAt:     createdAt,
	}
}

func TestStore_ConversationLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.ConversationStore) {
		ctx := context.Background()
		require.NoError(t, s.CreateConversation(ctx, newConversation("c1", time.Now())))

		got, err := s.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Team offsite", got.Topic)
		assert.Equal(t, core.StatusActive, got.Status)
		assert.Zero(t, got.CurrentIteration)

		n, err := s.IncrementIteration(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = s.IncrementIteration(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, s.UpdateStatus(ctx, "c1", core.StatusCancelled, "Cancelled by user"))
		got, err = s.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, core.StatusCancelled, got.Status)
		assert.Equal(t, "Cancelled by user", got.ExitReason)
		assert.Equal(t, 2, got.CurrentIteration)

		err = s.UpdateStatus(ctx, "c1", core.StatusConsensusReached, "late")
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.CodeInvalidTransition), "got %v", err)
	})
}

func TestStore_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.ConversationStore) {
		ctx := context.Background()
		_, err := s.GetConversation(ctx, "missing")
		assert.True(t, core.IsNotFound(err), "get: %v", err)

		err = s.UpdateStatus(ctx, "missing", core.StatusCancelled, "x")
		assert.True(t, core.IsNotFound(err), "update: %v", err)

		_, err = s.IncrementIteration(ctx, "missing")
		assert.True(t, core.IsNotFound(err), "increment: %v", err)

		err = s.AddParticipant(ctx, &core.Participant{ConversationID: "missing", UserID: "u"})
		assert.True(t, core.IsNotFound(err), "add participant: %v", err)
	})
}

func TestStore_Participants(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.ConversationStore) {
		ctx := context.Background()
		require.NoError(t, s.CreateConversation(ctx, newConversation("c1", time.Now())))

		base := time.Now().UTC()
		for i, uid := range []string{"alice", "bob", "carol"} {
			require.NoError(t, s.AddParticipant(ctx, &core.Participant{
				ConversationID: "c1",
				UserID:         uid,
				DisplayName:    "Agent " + uid,
				JoinedAt:       base.Add(time.Duration(i) * time.Millisecond),
			}))
		}

		err := s.AddParticipant(ctx, &core.Participant{ConversationID: "c1", UserID: "bob"})
		assert.True(t, core.HasCode(err, core.CodeDuplicateParticipant), "got %v", err)

		ps, err := s.ListParticipants(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, ps, 3)
		assert.Equal(t, []string{"alice", "bob", "carol"}, []string{ps[0].UserID, ps[1].UserID, ps[2].UserID})
		assert.Equal(t, "Agent alice", ps[0].DisplayName)

		all, err := s.AllAgreed(ctx, "c1")
		require.NoError(t, err)
		assert.False(t, all)

		require.NoError(t, s.MarkAgreed(ctx, "c1", "bob"))
		pending, err := core.PendingParticipants(ctx, s, "c1")
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "alice", pending[0].UserID)
		assert.Equal(t, "carol", pending[1].UserID)

		require.NoError(t, s.MarkAgreed(ctx, "c1", "alice"))
		require.NoError(t, s.MarkAgreed(ctx, "c1", "carol"))
		all, err = s.AllAgreed(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, all)

		assert.True(t, core.IsNotFound(s.MarkAgreed(ctx, "c1", "dave")))
	})
}

func TestStore_Messages(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.ConversationStore) {
		ctx := context.Background()
		require.NoError(t, s.CreateConversation(ctx, newConversation("c1", time.Now())))

		msgs := []*core.Message{
			{ConversationID: "c1", SenderID: "alice", Content: "prefer Friday", IsPrivateInstruction: true},
			{ConversationID: "c1", SenderID: "alice", Content: "How about Friday?", Iteration: 1},
			{ConversationID: "c1", SenderID: "bob", Content: "I agree", Iteration: 1},
		}
		for _, m := range msgs {
			require.NoError(t, s.AppendMessage(ctx, m))
			assert.NotEmpty(t, m.ID)
			assert.False(t, m.CreatedAt.IsZero())
		}

		got, err := s.ListMessages(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "prefer Friday", got[0].Content)
		assert.True(t, got[0].IsPrivateInstruction)
		assert.Equal(t, "I agree", got[2].Content)
		assert.Equal(t, 1, got[2].Iteration)

		empty, err := s.ListMessages(ctx, "other")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestStore_ListConversationsNewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.ConversationStore) {
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)
		require.NoError(t, s.CreateConversation(ctx, newConversation("old", base)))
		require.NoError(t, s.CreateConversation(ctx, newConversation("new", base.Add(time.Minute))))

		convs, err := s.ListConversations(ctx)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, "new", convs[0].ID)
		assert.Equal(t, "old", convs[1].ID)
	})
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateConversation(ctx, newConversation("c1", time.Now())))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
}

func TestBoltStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.bolt")
	ctx := context.Background()

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateConversation(ctx, newConversation("c1", time.Now())))
	require.NoError(t, s.AppendMessage(ctx, &core.Message{ConversationID: "c1", SenderID: "alice", Content: "hi"}))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()
	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- comment\nCREATE TABLE a (x INT);\n\n-- another\nCREATE INDEX i ON a(x);\n")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x INT)", stmts[0])
}

func TestNew_Backends(t *testing.T) {
	s, err := New(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(Options{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "state.sqlite")})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLiteStore{}, s)

	b, err := New(Options{Backend: BackendBolt, Path: filepath.Join(t.TempDir(), "state.db")})
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &BoltStore{}, b)

	_, err = New(Options{Backend: "cassandra"})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}
