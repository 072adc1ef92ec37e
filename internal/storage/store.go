// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sort"

	"github.com/morganforge/palaver/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &StoreError{Message: "conversation not found"}

// StoreError represents a persistence-related error.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists conversations and tracks which one is active.
//
// Implementations must satisfy the following contract:
//
//   - List returns all conversations sorted by UpdatedAt, newest first.
//   - Create makes a new conversation with the given title and marks it
//     active.
//   - Update upserts: saving a conversation the store has never seen
//     succeeds and creates it.
//   - GetActive returns (nil, nil) when no conversation is active; this
//     is a normal state, not an error.
//   - Delete and SetActive return ErrNotFound for unknown IDs.
//   - Deleting the active conversation clears the active pointer.
type Store interface {
	// List returns all conversations, most recently updated first.
	List() ([]*model.Conversation, error)

	// Get retrieves a conversation by ID.
	Get(id string) (*model.Conversation, error)

	// Create makes a new conversation and marks it active.
	Create(title string) (*model.Conversation, error)

	// Update persists a conversation, creating it if it doesn't exist.
	Update(conv *model.Conversation) error

	// Delete removes a conversation by ID.
	Delete(id string) error

	// DeleteAll removes every conversation and clears the active pointer.
	DeleteAll() error

	// SetActive marks the given conversation as active.
	SetActive(id string) error

	// GetActive returns the active conversation, or (nil, nil) if none.
	GetActive() (*model.Conversation, error)

	// Close releases any resources held by the store.
	Close() error
}

// sortByUpdated orders conversations most recently updated first.
// Ties break on ID so the order is deterministic.
func sortByUpdated(convs []*model.Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
}
