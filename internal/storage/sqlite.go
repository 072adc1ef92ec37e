// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/morganforge/palaver/internal/model"
)

// schema creates the conversation tables. Messages are stored as a JSON
// column rather than a relation; conversations are always read and
// written whole, so normalizing them buys nothing.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	messages   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated
	ON conversations(updated_at DESC);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const activeMetaKey = "active_conversation"

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore persists conversations in a single database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and initializes
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// List returns all conversations, most recently updated first.
func (s *SQLiteStore) List() ([]*model.Conversation, error) {
	rows, err := s.db.Query(
		`SELECT id, title, messages, created_at, updated_at
		 FROM conversations
		 ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := make([]*model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			continue // Skip rows with corrupt message JSON
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Get retrieves a conversation by ID.
func (s *SQLiteStore) Get(id string) (*model.Conversation, error) {
	row := s.db.QueryRow(
		`SELECT id, title, messages, created_at, updated_at
		 FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// Create makes a new conversation with the given title and marks it active.
func (s *SQLiteStore) Create(title string) (*model.Conversation, error) {
	conv := model.NewConversation(title)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := upsertConversation(tx, conv); err != nil {
		return nil, err
	}
	if err := setMeta(tx, activeMetaKey, conv.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return conv, nil
}

// Update persists a conversation, creating it if it doesn't exist yet.
func (s *SQLiteStore) Update(conv *model.Conversation) error {
	conv.Touch()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertConversation(tx, conv); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a conversation by ID. Deleting the active conversation
// clears the active pointer.
func (s *SQLiteStore) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(
		`DELETE FROM metadata WHERE key = ? AND value = ?`, activeMetaKey, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteAll removes every conversation and the active pointer.
func (s *SQLiteStore) DeleteAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM metadata WHERE key = ?`, activeMetaKey); err != nil {
		return err
	}
	return tx.Commit()
}

// SetActive marks the given conversation as active.
func (s *SQLiteStore) SetActive(id string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM conversations WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	_, err = s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		activeMetaKey, id)
	return err
}

// GetActive returns the active conversation, or (nil, nil) when no
// conversation is active.
func (s *SQLiteStore) GetActive() (*model.Conversation, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT value FROM metadata WHERE key = ?`, activeMetaKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	conv, err := s.Get(id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return conv, err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// ROW HELPERS
// =============================================================================

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		conv      model.Conversation
		messages  string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&conv.ID, &conv.Title, &messages, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return nil, err
	}

	var err error
	if conv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if conv.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &conv, nil
}

func upsertConversation(tx *sql.Tx, conv *model.Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO conversations (id, title, messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		conv.ID, conv.Title, string(messages),
		conv.CreatedAt.Format(time.RFC3339Nano),
		conv.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

func setMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}
