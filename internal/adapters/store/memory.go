package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// conversationRecord is the full persisted state of one conversation.
// MemoryStore keeps records in a map; JSONStore writes one per file.
type conversationRecord struct {
	Version      int                 `json:"version"`
	Conversation *core.Conversation  `json:"conversation"`
	Participants []*core.Participant `json:"participants"`
	Messages     []*core.Message     `json:"messages"`
}

func (r *conversationRecord) participant(userID string) *core.Participant {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *conversationRecord) updateStatus(status core.ConversationStatus, exitReason string) error {
	if err := core.ValidateTransition(r.Conversation.Status, status); err != nil {
		return err
	}
	r.Conversation.Status = status
	r.Conversation.ExitReason = exitReason
	r.Conversation.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *conversationRecord) addParticipant(p *core.Participant) error {
	if r.participant(p.UserID) != nil {
		return duplicateParticipant(p.ConversationID, p.UserID)
	}
	cp := *p
	r.Participants = append(r.Participants, &cp)
	return nil
}

func (r *conversationRecord) markAgreed(userID string) error {
	p := r.participant(userID)
	if p == nil {
		return participantNotFound(r.Conversation.ID, userID)
	}
	p.HasAgreed = true
	return nil
}

func (r *conversationRecord) allAgreed() bool {
	for _, p := range r.Participants {
		if !p.HasAgreed {
			return false
		}
	}
	return true
}

func copyConversation(c *core.Conversation) *core.Conversation {
	cp := *c
	return &cp
}

func copyParticipants(ps []*core.Participant) []*core.Participant {
	out := make([]*core.Participant, len(ps))
	for i, p := range ps {
		cp := *p
		out[i] = &cp
	}
	return out
}

func copyMessages(ms []*core.Message) []*core.Message {
	out := make([]*core.Message, len(ms))
	for i, m := range ms {
		cp := *m
		out[i] = &cp
	}
	return out
}

func sortNewestFirst(convs []*core.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*conversationRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*conversationRecord)}
}

func (s *MemoryStore) record(id string) (*conversationRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, conversationNotFound(id)
	}
	return rec, nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv *core.Conversation) error {
	if err := validateConversation(conv); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[conv.ID]; exists {
		return core.ErrConflict("DUPLICATE_CONVERSATION", "conversation already exists: "+conv.ID)
	}
	s.records[conv.ID] = &conversationRecord{Version: 1, Conversation: copyConversation(conv)}
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	return copyConversation(rec.Conversation), nil
}

func (s *MemoryStore) ListConversations(_ context.Context) ([]*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Conversation, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyConversation(rec.Conversation))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status core.ConversationStatus, exitReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(id)
	if err != nil {
		return err
	}
	return rec.updateStatus(status, exitReason)
}

func (s *MemoryStore) IncrementIteration(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(id)
	if err != nil {
		return 0, err
	}
	rec.Conversation.CurrentIteration++
	rec.Conversation.UpdatedAt = time.Now().UTC()
	return rec.Conversation.CurrentIteration, nil
}

func (s *MemoryStore) AddParticipant(_ context.Context, p *core.Participant) error {
	prepareParticipant(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(p.ConversationID)
	if err != nil {
		return err
	}
	return rec.addParticipant(p)
}

func (s *MemoryStore) ListParticipants(_ context.Context, conversationID string) ([]*core.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[conversationID]
	if !ok {
		return nil, nil
	}
	return copyParticipants(rec.Participants), nil
}

func (s *MemoryStore) MarkAgreed(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(conversationID)
	if err != nil {
		return err
	}
	return rec.markAgreed(userID)
}

func (s *MemoryStore) AllAgreed(_ context.Context, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[conversationID]
	if !ok {
		return true, nil
	}
	return rec.allAgreed(), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *core.Message) error {
	prepareMessage(msg)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(msg.ConversationID)
	if err != nil {
		return err
	}
	cp := *msg
	rec.Messages = append(rec.Messages, &cp)
	rec.Conversation.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[conversationID]
	if !ok {
		return nil, nil
	}
	return copyMessages(rec.Messages), nil
}

func (s *MemoryStore) Close() error { return nil }
