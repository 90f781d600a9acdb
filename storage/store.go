package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"thinkchat/config"
	"thinkchat/model"
)

// ErrConversationNotFound is returned for operations on an unknown id.
var ErrConversationNotFound = errors.New("conversation not found")

// Store keeps conversations and messages in a sqlite database under the
// data directory. It backs the direct LLM backends, which have no server
// to persist to.
type Store struct {
	db *sql.DB
}

var (
	_ model.Store    = (*Store)(nil)
	_ model.Searcher = (*Store)(nil)
)

func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "thinkchat.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		steps TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds columns introduced after the first release.
func (s *Store) migrateSchema() error {
	hasStrategy, err := s.columnExists("messages", "strategy")
	if err != nil {
		return fmt.Errorf("failed to check for strategy column: %w", err)
	}

	if !hasStrategy {
		if _, err := s.db.Exec(`ALTER TABLE messages ADD COLUMN strategy TEXT DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add strategy column: %w", err)
		}
	}

	return nil
}

func (s *Store) columnExists(tableName, columnName string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}

		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ListConversations returns conversations newest first.
func (s *Store) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at
		FROM conversations
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, c)
	}

	return convs, rows.Err()
}

func (s *Store) CreateConversation(ctx context.Context, title string) (model.Conversation, error) {
	conv := model.Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at)
		VALUES (?, ?, ?)
	`, conv.ID, conv.Title, conv.CreatedAt)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Storage] created conversation %s", conv.ID)
	}
	return conv, nil
}

// DeleteConversation removes the conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrConversationNotFound
	}

	return tx.Commit()
}

func (s *Store) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, conversationID)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// CreateMessage stores msg under a new id and returns the stored copy.
func (s *Store) CreateMessage(ctx context.Context, conversationID string, msg model.Message) (model.Message, error) {
	steps := msg.Steps
	if steps == nil {
		steps = []model.Step{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to marshal steps: %w", err)
	}

	stored := msg
	stored.ID = uuid.New().String()
	stored.ConversationID = conversationID
	stored.Rendered = ""
	stored.Failed = false
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, steps, strategy, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM conversations WHERE id = ?)
	`, stored.ID, conversationID, string(stored.Role), stored.Content, string(stepsJSON), stored.Strategy, stored.Timestamp, conversationID)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to save message: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return model.Message{}, ErrConversationNotFound
	}

	return stored, nil
}

// GetMessages returns a conversation's messages oldest first.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, steps, strategy, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, rowid
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msg.ConversationID = conversationID
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}

func scanMessage(rows *sql.Rows) (model.Message, error) {
	var msg model.Message
	var role, stepsJSON string
	var strategy sql.NullString

	if err := rows.Scan(&msg.ID, &role, &msg.Content, &stepsJSON, &strategy, &msg.Timestamp); err != nil {
		return model.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.Role = model.Role(role)
	msg.Strategy = strategy.String

	if stepsJSON != "" {
		if err := json.Unmarshal([]byte(stepsJSON), &msg.Steps); err != nil {
			return model.Message{}, fmt.Errorf("failed to parse steps for message %s: %w", msg.ID, err)
		}
	}
	if len(msg.Steps) == 0 {
		msg.Steps = nil
	}
	return msg, nil
}
