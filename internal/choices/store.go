// Package choices persists per-conversation persona and model selections so
// they survive across daemon sessions. Nothing else about a conversation is
// persisted.
package choices

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	KindPersona = "persona"
	KindModel   = "model"
)

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS choices (
		conversation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (conversation_id, kind)
	)`)
	if err != nil {
		return fmt.Errorf("init choices schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) set(conversationID, kind, value string) error {
	_, err := s.db.Exec(`INSERT INTO choices (conversation_id, kind, value, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT (conversation_id, kind) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		conversationID, kind, value)
	if err != nil {
		return fmt.Errorf("save %s choice: %w", kind, err)
	}
	return nil
}

// get returns "" when no choice has been stored.
func (s *Store) get(conversationID, kind string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM choices WHERE conversation_id = ? AND kind = ?`,
		conversationID, kind).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s choice: %w", kind, err)
	}
	return value, nil
}

func (s *Store) SetPersona(conversationID, personaID string) error {
	return s.set(conversationID, KindPersona, personaID)
}

func (s *Store) SetModel(conversationID, modelID string) error {
	return s.set(conversationID, KindModel, modelID)
}

func (s *Store) PersonaFor(conversationID string) (string, error) {
	return s.get(conversationID, KindPersona)
}

func (s *Store) ModelFor(conversationID string) (string, error) {
	return s.get(conversationID, KindModel)
}
