package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore implements core.ConversationStore on Redis. Conversations are
// hashes (so the iteration counter can use HINCRBY), participants a hash of
// JSON documents plus a list that preserves join order, and messages a list.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "mordecai:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Ping checks if the store is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) indexKey() string { return s.keyPrefix + "conversations" }
func (s *RedisStore) convKey(id string) string {
	return s.keyPrefix + "conv:" + id
}
func (s *RedisStore) participantsKey(id string) string {
	return s.keyPrefix + "conv:" + id + ":participants"
}
func (s *RedisStore) participantOrderKey(id string) string {
	return s.keyPrefix + "conv:" + id + ":participant_order"
}
func (s *RedisStore) messagesKey(id string) string {
	return s.keyPrefix + "conv:" + id + ":messages"
}

func (s *RedisStore) CreateConversation(ctx context.Context, conv *core.Conversation) error {
	if err := validateConversation(conv); err != nil {
		return err
	}
	created, err := s.client.HSetNX(ctx, s.convKey(conv.ID), "id", conv.ID).Result()
	if err != nil {
		return core.ErrPersistence("create conversation", err)
	}
	if !created {
		return core.ErrConflict("DUPLICATE_CONVERSATION", "conversation already exists: "+conv.ID)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.convKey(conv.ID), map[string]interface{}{
		"creator_id":        conv.CreatorID,
		"topic":             conv.Topic,
		"max_iterations":    conv.MaxIterations,
		"current_iteration": conv.CurrentIteration,
		"status":            string(conv.Status),
		"exit_reason":       conv.ExitReason,
		"created_at":        formatTime(conv.CreatedAt),
		"updated_at":        formatTime(conv.UpdatedAt),
	})
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(conv.CreatedAt.UnixNano()), Member: conv.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return core.ErrPersistence("create conversation", err)
	}
	return nil
}

func decodeConversation(fields map[string]string) *core.Conversation {
	maxIter, _ := strconv.Atoi(fields["max_iterations"])
	iter, _ := strconv.Atoi(fields["current_iteration"])
	return &core.Conversation{
		ID:               fields["id"],
		CreatorID:        fields["creator_id"],
		Topic:            fields["topic"],
		MaxIterations:    maxIter,
		CurrentIteration: iter,
		Status:           core.ConversationStatus(fields["status"]),
		ExitReason:       fields["exit_reason"],
		CreatedAt:        parseTime(fields["created_at"]),
		UpdatedAt:        parseTime(fields["updated_at"]),
	}
}

func (s *RedisStore) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	fields, err := s.client.HGetAll(ctx, s.convKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	if len(fields) == 0 {
		return nil, conversationNotFound(id)
	}
	return decodeConversation(fields), nil
}

func (s *RedisStore) ListConversations(ctx context.Context) ([]*core.Conversation, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.convKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("reading conversations: %w", err)
		}
	}

	out := make([]*core.Conversation, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, decodeConversation(fields))
	}
	return out, nil
}

func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status core.ConversationStatus, exitReason string) error {
	key := s.convKey(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "status").Result()
		if errors.Is(err, redis.Nil) {
			return conversationNotFound(id)
		}
		if err != nil {
			return err
		}
		if err := core.ValidateTransition(core.ConversationStatus(current), status); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "status", string(status), "exit_reason", exitReason, "updated_at", formatTime(time.Now()))
			return nil
		})
		return err
	}, key)
	return wrapRedisWrite("update status", err)
}

func (s *RedisStore) IncrementIteration(ctx context.Context, id string) (int, error) {
	key := s.convKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, core.ErrPersistence("increment iteration", err)
	}
	if exists == 0 {
		return 0, conversationNotFound(id)
	}

	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "current_iteration", 1)
	pipe.HSet(ctx, key, "updated_at", formatTime(time.Now()))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, core.ErrPersistence("increment iteration", err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) AddParticipant(ctx context.Context, p *core.Participant) error {
	prepareParticipant(p)
	exists, err := s.client.Exists(ctx, s.convKey(p.ConversationID)).Result()
	if err != nil {
		return core.ErrPersistence("add participant", err)
	}
	if exists == 0 {
		return conversationNotFound(p.ConversationID)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return core.ErrPersistence("encode participant", err)
	}
	added, err := s.client.HSetNX(ctx, s.participantsKey(p.ConversationID), p.UserID, data).Result()
	if err != nil {
		return core.ErrPersistence("add participant", err)
	}
	if !added {
		return duplicateParticipant(p.ConversationID, p.UserID)
	}
	if err := s.client.RPush(ctx, s.participantOrderKey(p.ConversationID), p.UserID).Err(); err != nil {
		return core.ErrPersistence("add participant", err)
	}
	return nil
}

func (s *RedisStore) ListParticipants(ctx context.Context, conversationID string) ([]*core.Participant, error) {
	order, err := s.client.LRange(ctx, s.participantOrderKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading participant order: %w", err)
	}
	if len(order) == 0 {
		return nil, nil
	}
	docs, err := s.client.HMGet(ctx, s.participantsKey(conversationID), order...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading participants: %w", err)
	}

	out := make([]*core.Participant, 0, len(docs))
	for _, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			continue
		}
		var p core.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decoding participant: %w", err)
		}
		out = append(out, &p)
	}
	return out, nil
}

func (s *RedisStore) MarkAgreed(ctx context.Context, conversationID, userID string) error {
	key := s.participantsKey(conversationID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, userID).Result()
		if errors.Is(err, redis.Nil) {
			return participantNotFound(conversationID, userID)
		}
		if err != nil {
			return err
		}
		var p core.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return err
		}
		p.HasAgreed = true
		data, err := json.Marshal(&p)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, userID, data)
			return nil
		})
		return err
	}, key)
	return wrapRedisWrite("mark agreed", err)
}

func (s *RedisStore) AllAgreed(ctx context.Context, conversationID string) (bool, error) {
	participants, err := s.ListParticipants(ctx, conversationID)
	if err != nil {
		return false, err
	}
	for _, p := range participants {
		if !p.HasAgreed {
			return false, nil
		}
	}
	return true, nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, msg *core.Message) error {
	prepareMessage(msg)
	exists, err := s.client.Exists(ctx, s.convKey(msg.ConversationID)).Result()
	if err != nil {
		return core.ErrPersistence("append message", err)
	}
	if exists == 0 {
		return conversationNotFound(msg.ConversationID)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return core.ErrPersistence("encode message", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.messagesKey(msg.ConversationID), data)
	pipe.HSet(ctx, s.convKey(msg.ConversationID), "updated_at", formatTime(msg.CreatedAt))
	if _, err := pipe.Exec(ctx); err != nil {
		return core.ErrPersistence("append message", err)
	}
	return nil
}

func (s *RedisStore) ListMessages(ctx context.Context, conversationID string) ([]*core.Message, error) {
	raws, err := s.client.LRange(ctx, s.messagesKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	out := make([]*core.Message, 0, len(raws))
	for _, raw := range raws {
		var m core.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decoding message: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func wrapRedisWrite(operation string, err error) error {
	if err == nil {
		return nil
	}
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		return err
	}
	return core.ErrPersistence(operation, err)
}
