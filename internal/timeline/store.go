package timeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parlalabs/parla-core/internal/config"
	"github.com/parlalabs/parla-core/internal/protocol"
)

// Store keeps a SQLite-backed timeline of translated utterances per
// conversation. In ephemeral retention mode nothing touches disk and every
// operation is a no-op, honoring the default of no persistence.
type Store struct {
	db    *sql.DB
	cfg   config.TimelineConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the timeline according to config.
func Open(ctx context.Context, cfg config.TimelineConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("timeline prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS conversations (
    conversation_id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS utterances (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    source_text TEXT NOT NULL,
    source_language TEXT NOT NULL,
    translated_text TEXT NOT NULL,
    target_language TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_utterances_conversation_created ON utterances(conversation_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordUtterance appends one translated utterance. The conversation row is
// created on first use.
func (s *Store) RecordUtterance(ctx context.Context, u protocol.Utterance) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.clock().UTC()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations(conversation_id, created_at) VALUES(?, ?)
		 ON CONFLICT(conversation_id) DO NOTHING`,
		u.ConversationID, s.clock().UTC()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO utterances(conversation_id, source_text, source_language, translated_text, target_language, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		u.ConversationID, u.SourceText, u.SourceLanguage, u.TranslatedText, u.TargetLanguage, u.CreatedAt)
	return err
}

// Recent retrieves up to limit utterances for a conversation ordered
// ascending by time.
func (s *Store) Recent(ctx context.Context, conversationID string, limit int) ([]protocol.Utterance, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, source_text, source_language, translated_text, target_language, created_at
		 FROM utterances WHERE conversation_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var utterances []protocol.Utterance
	for rows.Next() {
		var u protocol.Utterance
		var created string
		if err := rows.Scan(&u.ConversationID, &u.SourceText, &u.SourceLanguage, &u.TranslatedText, &u.TargetLanguage, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			u.CreatedAt = ts
		}
		utterances = append(utterances, u)
	}
	return utterances, rows.Err()
}

// Prune caps the number of retained conversations, dropping the oldest first.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if s.cfg.MaxConversations <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id IN (
		SELECT conversation_id FROM conversations ORDER BY created_at DESC LIMIT -1 OFFSET ?
	)`, s.cfg.MaxConversations)
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}
