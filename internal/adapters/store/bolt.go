package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

var conversationsBucket = []byte("conversations")

// BoltStore keeps every conversation as one JSON record in a single bbolt
// file. Each mutation runs in its own read-write transaction, so a record
// is never observed half updated.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the bbolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(conversationsBucket)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func getRecord(tx *bolt.Tx, id string) (*conversationRecord, error) {
	v := tx.Bucket(conversationsBucket).Get([]byte(id))
	if v == nil {
		return nil, conversationNotFound(id)
	}
	var rec conversationRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decoding conversation %s: %w", id, err)
	}
	if rec.Conversation == nil {
		return nil, fmt.Errorf("decoding conversation %s: missing conversation", id)
	}
	return &rec, nil
}

func putRecord(tx *bolt.Tx, rec *conversationRecord) error {
	enc, err := json.Marshal(rec)
	if err != nil {
		return core.ErrPersistence("encode conversation", err)
	}
	if err := tx.Bucket(conversationsBucket).Put([]byte(rec.Conversation.ID), enc); err != nil {
		return core.ErrPersistence("write conversation", err)
	}
	return nil
}

func (s *BoltStore) mutate(id string, fn func(rec *conversationRecord) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		return putRecord(tx, rec)
	})
}

func (s *BoltStore) read(id string) (*conversationRecord, error) {
	var rec *conversationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var e error
		rec, e = getRecord(tx, id)
		return e
	})
	return rec, err
}

func (s *BoltStore) CreateConversation(_ context.Context, conv *core.Conversation) error {
	if err := validateConversation(conv); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(conversationsBucket).Get([]byte(conv.ID)) != nil {
			return core.ErrConflict("DUPLICATE_CONVERSATION", "conversation already exists: "+conv.ID)
		}
		return putRecord(tx, &conversationRecord{Version: 1, Conversation: copyConversation(conv)})
	})
}

func (s *BoltStore) GetConversation(_ context.Context, id string) (*core.Conversation, error) {
	rec, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return rec.Conversation, nil
}

func (s *BoltStore) ListConversations(_ context.Context) ([]*core.Conversation, error) {
	var out []*core.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).ForEach(func(_, v []byte) error {
			var rec conversationRecord
			if err := json.Unmarshal(v, &rec); err != nil || rec.Conversation == nil {
				return nil // Skip malformed
			}
			out = append(out, rec.Conversation)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *BoltStore) UpdateStatus(_ context.Context, id string, status core.ConversationStatus, exitReason string) error {
	return s.mutate(id, func(rec *conversationRecord) error {
		return rec.updateStatus(status, exitReason)
	})
}

func (s *BoltStore) IncrementIteration(_ context.Context, id string) (int, error) {
	var next int
	err := s.mutate(id, func(rec *conversationRecord) error {
		rec.Conversation.CurrentIteration++
		rec.Conversation.UpdatedAt = time.Now().UTC()
		next = rec.Conversation.CurrentIteration
		return nil
	})
	return next, err
}

func (s *BoltStore) AddParticipant(_ context.Context, p *core.Participant) error {
	prepareParticipant(p)
	return s.mutate(p.ConversationID, func(rec *conversationRecord) error {
		return rec.addParticipant(p)
	})
}

func (s *BoltStore) ListParticipants(_ context.Context, conversationID string) ([]*core.Participant, error) {
	rec, err := s.read(conversationID)
	if core.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Participants, nil
}

func (s *BoltStore) MarkAgreed(_ context.Context, conversationID, userID string) error {
	return s.mutate(conversationID, func(rec *conversationRecord) error {
		return rec.markAgreed(userID)
	})
}

func (s *BoltStore) AllAgreed(_ context.Context, conversationID string) (bool, error) {
	rec, err := s.read(conversationID)
	if core.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return rec.allAgreed(), nil
}

func (s *BoltStore) AppendMessage(_ context.Context, msg *core.Message) error {
	prepareMessage(msg)
	return s.mutate(msg.ConversationID, func(rec *conversationRecord) error {
		cp := *msg
		rec.Messages = append(rec.Messages, &cp)
		rec.Conversation.UpdatedAt = msg.CreatedAt
		return nil
	})
}

func (s *BoltStore) ListMessages(_ context.Context, conversationID string) ([]*core.Message, error) {
	rec, err := s.read(conversationID)
	if core.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Messages, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
