package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var ErrInvalidRole = errors.New("invalid message role")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withForeignKeys(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL DEFAULT 'New Chat',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, id);

    CREATE TABLE IF NOT EXISTS upload_status (
        conversation_id TEXT PRIMARY KEY,
        status TEXT NOT NULL,
        doc_name TEXT,
        error TEXT,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Conversation methods
func (s *SQLiteStore) CreateConversationIfNotExists(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO conversations (id, title, created_at) VALUES (?, ?, ?)",
		conversationID, DefaultTitle, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create conversation %s: %w", conversationID, err)
	}
	return nil
}

// GetConversation returns nil when the conversation does not exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at FROM conversations WHERE id = ?", conversationID,
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the conversations that have at least one user
// message, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	query := `
        SELECT c.id, c.title, c.created_at
        FROM conversations c
        WHERE EXISTS (
            SELECT 1 FROM messages m
            WHERE m.conversation_id = c.id AND m.role = 'user'
        )
        ORDER BY c.created_at DESC, c.rowid DESC
    `
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// DeleteConversation removes the messages, the upload status and the
// conversation row. Deleting an unknown id is a no-op.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM messages WHERE conversation_id = ?",
		"DELETE FROM upload_status WHERE conversation_id = ?",
		"DELETE FROM conversations WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, conversationID); err != nil {
			return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
		}
	}
	return tx.Commit()
}

// Message methods

// AppendMessage stores a message. The first user message of a conversation
// also sets its title.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin message insert: %w", err)
	}
	defer tx.Rollback()

	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute message insert: %w", err)
	}
	msg.ID, _ = res.LastInsertId()

	if role == RoleUser {
		var userCount int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND role = 'user'", conversationID,
		).Scan(&userCount)
		if err != nil {
			return nil, fmt.Errorf("failed to count user messages: %w", err)
		}
		if userCount == 1 {
			if _, err := tx.ExecContext(ctx,
				"UPDATE conversations SET title = ? WHERE id = ?", TitleFromMessage(content), conversationID,
			); err != nil {
				return nil, fmt.Errorf("failed to set conversation title: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message insert: %w", err)
	}
	return msg, nil
}

// ListMessages returns the messages of a conversation in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Upload status methods
func (s *SQLiteStore) SetUploadStatus(ctx context.Context, status UploadStatus) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO upload_status (conversation_id, status, doc_name, error, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (conversation_id) DO UPDATE SET
            status = excluded.status,
            doc_name = excluded.doc_name,
            error = excluded.error,
            updated_at = excluded.updated_at`,
		status.ConversationID, string(status.Status), nullIfEmpty(status.DocName), nullIfEmpty(status.Error), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save upload status: %w", err)
	}
	return nil
}

// GetUploadStatus returns nil when the conversation has never uploaded.
func (s *SQLiteStore) GetUploadStatus(ctx context.Context, conversationID string) (*UploadStatus, error) {
	var (
		us              UploadStatus
		status          string
		docName, errMsg sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT conversation_id, status, doc_name, error, updated_at FROM upload_status WHERE conversation_id = ?",
		conversationID,
	).Scan(&us.ConversationID, &status, &docName, &errMsg, &us.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get upload status: %w", err)
	}
	us.Status = DocStatus(status)
	us.DocName = docName.String
	us.Error = errMsg.String
	return &us, nil
}

// TitleFromMessage derives a conversation title from its first user message.
func TitleFromMessage(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) > titleMaxLength {
		runes = runes[:titleMaxLength]
	}
	return string(runes)
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
