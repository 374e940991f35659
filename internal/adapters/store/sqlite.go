package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

//go:embed migrations/002_add_indexes.sql
var migrationV2 string

// SQLiteStore implements core.ConversationStore on SQLite.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB // Write connection
	readDB *sql.DB // Read-only connection
	mu     sync.RWMutex

	maxRetries    int
	baseRetryWait time.Duration
}

// SQLiteStoreOption configures the store.
type SQLiteStoreOption func(*SQLiteStore)

// WithRetry overrides the busy-retry policy.
func WithRetry(maxRetries int, baseWait time.Duration) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		s.maxRetries = maxRetries
		s.baseRetryWait = baseWait
	}
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteStore(dbPath string, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		dbPath:        dbPath,
		maxRetries:    5,
		baseRetryWait: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening write database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	readDB, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&mode=ro&_pragma=busy_timeout(1000)")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	migrations := []string{migrationV1, migrationV2}
	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

// splitStatements splits a SQL script into statements, dropping comment lines.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		var sqlLines []string
		for _, line := range strings.Split(stmt, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				sqlLines = append(sqlLines, line)
			}
		}
		if len(sqlLines) > 0 {
			statements = append(statements, strings.Join(sqlLines, "\n"))
		}
	}
	return statements
}

// retryWrite executes a write with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := fn(); err != nil {
			if isSQLiteBusy(err) {
				lastErr = err
				wait := s.baseRetryWait * time.Duration(1<<attempt)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
					continue
				}
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d retries: %w", operation, s.maxRetries, lastErr)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// wrapWrite keeps domain errors intact and marks everything else as a
// persistence failure.
func wrapWrite(operation string, err error) error {
	if err == nil {
		return nil
	}
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		return err
	}
	return core.ErrPersistence(operation, err)
}

// CreateConversation inserts a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *core.Conversation) error {
	if err := validateConversation(conv); err != nil {
		return err
	}
	err := s.retryWrite(ctx, "CreateConversation", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (id, creator_id, topic, max_iterations, current_iteration, status, exit_reason, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			conv.ID,
			conv.CreatorID,
			conv.Topic,
			conv.MaxIterations,
			conv.CurrentIteration,
			string(conv.Status),
			nullString(conv.ExitReason),
			formatTime(conv.CreatedAt),
			formatTime(conv.UpdatedAt),
		)
		return err
	})
	return wrapWrite("create conversation", err)
}

const conversationColumns = `id, creator_id, topic, max_iterations, current_iteration, status, exit_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*core.Conversation, error) {
	var conv core.Conversation
	var status, createdAt, updatedAt string
	var exitReason sql.NullString
	if err := row.Scan(&conv.ID, &conv.CreatorID, &conv.Topic, &conv.MaxIterations, &conv.CurrentIteration,
		&status, &exitReason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	conv.Status = core.ConversationStatus(status)
	conv.ExitReason = exitReason.String
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.readDB.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns all conversations, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.readDB.QueryContext(ctx, `SELECT `+conversationColumns+` FROM conversations ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []*core.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// UpdateStatus moves an active conversation to a terminal status.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status core.ConversationStatus, exitReason string) error {
	err := s.retryWrite(ctx, "UpdateStatus", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var current string
		err = tx.QueryRowContext(ctx, `SELECT status FROM conversations WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return conversationNotFound(id)
		}
		if err != nil {
			return err
		}
		if err := core.ValidateTransition(core.ConversationStatus(current), status); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET status = ?, exit_reason = ?, updated_at = ? WHERE id = ?
		`, string(status), nullString(exitReason), formatTime(time.Now()), id); err != nil {
			return err
		}
		return tx.Commit()
	})
	return wrapWrite("update status", err)
}

// IncrementIteration bumps the iteration counter and returns the new value.
func (s *SQLiteStore) IncrementIteration(ctx context.Context, id string) (int, error) {
	var next int
	err := s.retryWrite(ctx, "IncrementIteration", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			UPDATE conversations SET current_iteration = current_iteration + 1, updated_at = ? WHERE id = ?
		`, formatTime(time.Now()), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return conversationNotFound(id)
		}
		if err := tx.QueryRowContext(ctx, `SELECT current_iteration FROM conversations WHERE id = ?`, id).Scan(&next); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, wrapWrite("increment iteration", err)
	}
	return next, nil
}

// AddParticipant registers a participant.
func (s *SQLiteStore) AddParticipant(ctx context.Context, p *core.Participant) error {
	prepareParticipant(p)
	err := s.retryWrite(ctx, "AddParticipant", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, p.ConversationID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return conversationNotFound(p.ConversationID)
		}
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?
		`, p.ConversationID, p.UserID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return duplicateParticipant(p.ConversationID, p.UserID)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, display_name, has_agreed, joined_at)
			VALUES (?, ?, ?, ?, ?)
		`, p.ConversationID, p.UserID, nullString(p.DisplayName), boolToInt(p.HasAgreed), formatTime(p.JoinedAt)); err != nil {
			return err
		}
		return tx.Commit()
	})
	return wrapWrite("add participant", err)
}

// ListParticipants returns participants in join order.
func (s *SQLiteStore) ListParticipants(ctx context.Context, conversationID string) ([]*core.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.readDB.QueryContext(ctx, `
		SELECT conversation_id, user_id, display_name, has_agreed, joined_at
		FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY joined_at ASC, rowid ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var out []*core.Participant
	for rows.Next() {
		var p core.Participant
		var name sql.NullString
		var agreed int
		var joinedAt string
		if err := rows.Scan(&p.ConversationID, &p.UserID, &name, &agreed, &joinedAt); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		p.DisplayName = name.String
		p.HasAgreed = agreed != 0
		p.JoinedAt = parseTime(joinedAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// MarkAgreed sets has_agreed for a participant.
func (s *SQLiteStore) MarkAgreed(ctx context.Context, conversationID, userID string) error {
	err := s.retryWrite(ctx, "MarkAgreed", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE conversation_participants SET has_agreed = 1 WHERE conversation_id = ? AND user_id = ?
		`, conversationID, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return participantNotFound(conversationID, userID)
		}
		return nil
	})
	return wrapWrite("mark agreed", err)
}

// AllAgreed reports whether no participant is still pending.
func (s *SQLiteStore) AllAgreed(ctx context.Context, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending int
	err := s.readDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND has_agreed = 0
	`, conversationID).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("counting pending participants: %w", err)
	}
	return pending == 0, nil
}

// AppendMessage stores a message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *core.Message) error {
	prepareMessage(msg)
	err := s.retryWrite(ctx, "AppendMessage", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_messages (id, conversation_id, sender_id, content, iteration, is_private_instruction, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			msg.ConversationID,
			msg.SenderID,
			msg.Content,
			msg.Iteration,
			boolToInt(msg.IsPrivateInstruction),
			formatTime(msg.CreatedAt),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
			formatTime(msg.CreatedAt), msg.ConversationID); err != nil {
			return err
		}
		return tx.Commit()
	})
	return wrapWrite("append message", err)
}

// ListMessages returns messages in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, iteration, is_private_instruction, created_at
		FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []*core.Message
	for rows.Next() {
		var m core.Message
		var private int
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Iteration, &private, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.IsPrivateInstruction = private != 0
		m.CreatedAt = parseTime(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Close closes both database connections.
func (s *SQLiteStore) Close() error {
	var errs []error
	if s.readDB != nil {
		if err := s.readDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing read connection: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing write connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
