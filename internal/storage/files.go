// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/morganforge/palaver/internal/model"
	"github.com/morganforge/palaver/internal/util"
)

// activePointerFile names the file holding the active conversation ID.
const activePointerFile = "active"

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore persists conversations as one JSON file each under a base
// directory. Writes are atomic (temp file, fsync, rename) so a crash
// mid-save never corrupts an existing conversation.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore creates a store rooted at baseDir, creating the directory
// if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{baseDir: baseDir}, nil
}

// DefaultSessionsDir returns the default conversation directory,
// ~/.palaver/sessions/.
func DefaultSessionsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".palaver", "sessions"), nil
}

// List returns all conversations, most recently updated first.
// Unreadable or corrupt files are skipped rather than failing the whole
// listing.
func (s *FileStore) List() ([]*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Conversation{}, nil
		}
		return nil, err
	}

	convs := make([]*model.Conversation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue // Skip corrupted files
		}
		convs = append(convs, conv)
	}

	sortByUpdated(convs)
	return convs, nil
}

// Get retrieves a conversation by ID.
func (s *FileStore) Get(id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// Create makes a new conversation with the given title and marks it active.
func (s *FileStore) Create(title string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.NewConversation(title)
	if err := s.write(conv); err != nil {
		return nil, err
	}
	if err := s.writeActive(conv.ID); err != nil {
		return nil, err
	}
	return conv, nil
}

// Update persists a conversation, creating it if it doesn't exist yet.
func (s *FileStore) Update(conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.Touch()
	return s.write(conv)
}

// Delete removes a conversation by ID. Deleting the active conversation
// clears the active pointer.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}

	if active, _ := s.readActive(); active == id {
		os.Remove(filepath.Join(s.baseDir, activePointerFile))
	}
	return nil
}

// DeleteAll removes every conversation and the active pointer.
func (s *FileStore) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".json") || entry.Name() == activePointerFile {
			os.Remove(filepath.Join(s.baseDir, entry.Name()))
		}
	}
	return nil
}

// SetActive marks the given conversation as active.
func (s *FileStore) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return s.writeActive(id)
}

// GetActive returns the active conversation, or (nil, nil) when no
// conversation is active. A dangling pointer (active ID whose file was
// removed out of band) also reports no active conversation.
func (s *FileStore) GetActive() (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.readActive()
	if err != nil || id == "" {
		return nil, nil
	}

	conv, err := s.load(id)
	if err != nil {
		return nil, nil
	}
	return conv, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *FileStore) filePath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// load reads and decodes one conversation file. Caller holds the lock.
func (s *FileStore) load(id string) (*model.Conversation, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// write marshals and atomically persists one conversation. Caller holds
// the lock.
func (s *FileStore) write(conv *model.Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.filePath(conv.ID), data, 0644)
}

func (s *FileStore) writeActive(id string) error {
	return util.AtomicWriteFile(filepath.Join(s.baseDir, activePointerFile), []byte(id), 0644)
}

func (s *FileStore) readActive() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, activePointerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
