// Package sqlite stores chat transcripts in a SQLite database using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HugeFrog24/nini-artgallery/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	locale     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	tool_calls      TEXT,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations(tenant_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
`

const conversationColumns = `id, tenant_id, locale, created_at, updated_at`

// defaultListLimit applies when ListOptions.Limit is zero.
const defaultListLimit = 100

// Store implements storage.TranscriptStore.
type Store struct {
	db *sql.DB
}

var _ storage.TranscriptStore = (*Store)(nil)

// New opens the database at path (a file name or a "file:" URI) and
// creates the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create transcript schema: %w", err)
	}
	return &Store{db: db}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*storage.Conversation, error) {
	conv := new(storage.Conversation)
	if err := row.Scan(&conv.ID, &conv.TenantID, &conv.Locale, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Store) EnsureConversation(ctx context.Context, conv *storage.Conversation) error {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT tenant_id FROM conversations WHERE id = ?`, conv.ID).Scan(&owner)
	if err == nil {
		if owner != conv.TenantID {
			return fmt.Errorf("%w: %s", storage.ErrTenantMismatch, conv.ID)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("look up conversation %s: %w", conv.ID, err)
	}

	conv.CreatedAt = time.Now().UTC()
	conv.UpdatedAt = conv.CreatedAt
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.TenantID, conv.Locale, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return fmt.Errorf("insert conversation %s: %w", conv.ID, err)
	}
	return nil
}

// AddMessage appends msg, numbering it after the conversation's last message.
func (s *Store) AddMessage(ctx context.Context, convID string, msg *storage.StoredMessage) error {
	msg.CreatedAt = time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, msg.CreatedAt, convID)
		if err != nil {
			return fmt.Errorf("touch conversation %s: %w", convID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, convID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, seq, role, content, tool_calls, created_at)
			VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?), ?, ?, ?, ?)`,
			msg.ID, convID, convID, msg.Role, msg.Content, msg.ToolCalls, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
}

func (s *Store) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, COALESCE(tool_calls, ''), created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages of %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var m storage.StoredMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.ToolCalls, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	return conv, rows.Err()
}

func (s *Store) ListConversations(ctx context.Context, opts storage.ListOptions) ([]*storage.Conversation, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE tenant_id = ? ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		opts.TenantID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*storage.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// foreign_keys is off per connection, so the cascade cannot be relied on.
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("delete messages of %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete conversation %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}
