package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/fsutil"
)

// JSONStore persists each conversation as one JSON file under a directory.
// Every mutation rewrites the file atomically.
type JSONStore struct {
	mu  sync.RWMutex
	dir string
}

// NewJSONStore creates a JSON store rooted at dir.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating conversations directory: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

func (s *JSONStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *JSONStore) load(id string) (*conversationRecord, error) {
	data, err := fsutil.ReadFileScoped(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, conversationNotFound(id)
		}
		return nil, fmt.Errorf("reading conversation file: %w", err)
	}
	var rec conversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing conversation file: %w", err)
	}
	if rec.Conversation == nil {
		return nil, fmt.Errorf("parsing conversation file %s: missing conversation", id)
	}
	return &rec, nil
}

func (s *JSONStore) save(rec *conversationRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return core.ErrPersistence("encode conversation", err)
	}
	if err := fsutil.WriteFileAtomic(s.path(rec.Conversation.ID), data, 0o600); err != nil {
		return core.ErrPersistence("write conversation file", err)
	}
	return nil
}

// mutate loads, changes and atomically rewrites one conversation file.
func (s *JSONStore) mutate(id string, fn func(rec *conversationRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load(id)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	return s.save(rec)
}

func (s *JSONStore) read(id string) (*conversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(id)
}

func (s *JSONStore) CreateConversation(_ context.Context, conv *core.Conversation) error {
	if err := validateConversation(conv); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path(conv.ID)); err == nil {
		return core.ErrConflict("DUPLICATE_CONVERSATION", "conversation already exists: "+conv.ID)
	}
	return s.save(&conversationRecord{Version: 1, Conversation: copyConversation(conv)})
}

func (s *JSONStore) GetConversation(_ context.Context, id string) (*core.Conversation, error) {
	rec, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return rec.Conversation, nil
}

func (s *JSONStore) ListConversations(_ context.Context) ([]*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading conversations directory: %w", err)
	}
	var out []*core.Conversation
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		rec, err := s.load(id)
		if err != nil {
			continue // Skip unreadable files
		}
		out = append(out, rec.Conversation)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *JSONStore) UpdateStatus(_ context.Context, id string, status core.ConversationStatus, exitReason string) error {
	return s.mutate(id, func(rec *conversationRecord) error {
		return rec.updateStatus(status, exitReason)
	})
}

func (s *JSONStore) IncrementIteration(_ context.Context, id string) (int, error) {
	var next int
	err := s.mutate(id, func(rec *conversationRecord) error {
		rec.Conversation.CurrentIteration++
		rec.Conversation.UpdatedAt = time.Now().UTC()
		next = rec.Conversation.CurrentIteration
		return nil
	})
	return next, err
}

func (s *JSONStore) AddParticipant(_ context.Context, p *core.Participant) error {
	prepareParticipant(p)
	return s.mutate(p.ConversationID, func(rec *conversationRecord) error {
		return rec.addParticipant(p)
	})
}

func (s *JSONStore) ListParticipants(_ context.Context, conversationID string) ([]*core.Participant, error) {
	rec, err := s.read(conversationID)
	if core.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Participants, nil
}

func (s *JSONStore) MarkAgreed(_ context.Context, conversationID, userID string) error {
	return s.mutate(conversationID, func(rec *conversationRecord) error {
		return rec.markAgreed(userID)
	})
}

func (s *JSONStore) AllAgreed(_ context.Context, conversationID string) (bool, error) {
	rec, err := s.read(conversationID)
	if core.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return rec.allAgreed(), nil
}

func (s *JSONStore) AppendMessage(_ context.Context, msg *core.Message) error {
	prepareMessage(msg)
	return s.mutate(msg.ConversationID, func(rec *conversationRecord) error {
		cp := *msg
		rec.Messages = append(rec.Messages, &cp)
		rec.Conversation.UpdatedAt = msg.CreatedAt
		return nil
	})
}

func (s *JSONStore) ListMessages(_ context.Context, conversationID string) ([]*core.Message, error) {
	rec, err := s.read(conversationID)
	if core.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Messages, nil
}

func (s *JSONStore) Close() error { return nil }
