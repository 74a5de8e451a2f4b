package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/logger"
)

const DefaultSQLiteFileName = "pixel.db"

// SQLiteStore keeps the archive and preferences in a single SQLite file.
// Every write replaces the stored record inside one transaction.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY,
        position INTEGER NOT NULL,
        created_at TEXT NOT NULL DEFAULT ''
    );

    CREATE TABLE IF NOT EXISTS messages (
        conversation_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        role TEXT NOT NULL,
        content TEXT NOT NULL,
        PRIMARY KEY (conversation_id, seq),
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE TABLE IF NOT EXISTS preferences (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        body TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) ReadArchive() []Conversation {
	conversations, err := s.readArchive()
	if err != nil {
		logger.Warn("Archive is unreadable, starting empty", "error", apperr.Parse("invalid archive", err))
		return []Conversation{}
	}
	return conversations
}

func (s *SQLiteStore) readArchive() ([]Conversation, error) {
	rows, err := s.db.Query("SELECT id, created_at FROM conversations ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{}
	index := make(map[string]int)
	for rows.Next() {
		var c Conversation
		var createdAt string
		if err := rows.Scan(&c.ID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if createdAt != "" {
			t, err := time.Parse(time.RFC3339Nano, createdAt)
			if err != nil {
				return nil, fmt.Errorf("invalid created_at for conversation %s: %w", c.ID, err)
			}
			c.CreatedAt = NewTimestamp(t)
		}
		index[c.ID] = len(conversations)
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	msgRows, err := s.db.Query("SELECT conversation_id, role, content FROM messages ORDER BY conversation_id, seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var conversationID string
		var msg Message
		if err := msgRows.Scan(&conversationID, &msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		i, ok := index[conversationID]
		if !ok {
			logger.Warn("Skipping message of unknown conversation", "conversation_id", conversationID)
			continue
		}
		conversations[i].Messages = append(conversations[i].Messages, msg)
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return conversations, nil
}

func (s *SQLiteStore) WriteArchive(conversations []Conversation) error {
	if err := s.writeArchive(conversations); err != nil {
		return apperr.Store("failed to write conversation archive", err)
	}
	logger.Debug("Archive written", "backend", "sqlite", "conversations", len(conversations))
	return nil
}

func (s *SQLiteStore) writeArchive(conversations []Conversation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages"); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM conversations"); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}

	convStmt, err := tx.Prepare("INSERT INTO conversations (id, position, created_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare conversation insert: %w", err)
	}
	defer convStmt.Close()

	msgStmt, err := tx.Prepare("INSERT INTO messages (conversation_id, seq, role, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer msgStmt.Close()

	for pos, c := range conversations {
		createdAt := ""
		if !c.CreatedAt.IsZero() {
			createdAt = c.CreatedAt.Format(time.RFC3339Nano)
		}
		if _, err := convStmt.Exec(c.ID, pos, createdAt); err != nil {
			return fmt.Errorf("failed to insert conversation %s: %w", c.ID, err)
		}
		for seq, m := range c.Messages {
			if _, err := msgStmt.Exec(c.ID, seq, string(m.Role), m.Content); err != nil {
				return fmt.Errorf("failed to insert message %d of conversation %s: %w", seq, c.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadPreferences() *Preferences {
	var body string
	err := s.db.QueryRow("SELECT body FROM preferences WHERE id = 1").Scan(&body)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Warn("Failed to read preferences, using defaults", "error", err)
		}
		return NewPreferences()
	}

	p := NewPreferences()
	if err := json.Unmarshal([]byte(body), p); err != nil {
		logger.Warn("Preferences are unparseable, using defaults", "error", apperr.Parse("invalid preferences", err))
		return NewPreferences()
	}
	return p
}

func (s *SQLiteStore) WritePreferences(p *Preferences) error {
	body, err := p.MarshalJSON()
	if err != nil {
		return apperr.Store("failed to encode preferences", err)
	}
	_, err = s.db.Exec("INSERT INTO preferences (id, body) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET body = excluded.body", string(body))
	if err != nil {
		return apperr.Store("failed to write preferences", err)
	}
	return nil
}
