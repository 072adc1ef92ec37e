// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morganforge/palaver/internal/util"
)

// DefaultTitle is the title of a conversation before a user message exists.
const DefaultTitle = "New conversation"

// titleMaxRunes bounds a derived title to the first 50 runes of the first
// user message (plus the ellipsis marker after word-boundary truncation).
const titleMaxRunes = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered message list with metadata. Invariant:
// UpdatedAt >= CreatedAt; UpdatedAt advances on every persisted mutation of
// the message list.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation(title string) *Conversation {
	if title == "" {
		title = DefaultTitle
	}
	now := time.Now()
	return &Conversation{
		ID:        "conv_" + uuid.NewString(),
		Title:     title,
		Messages:  make([]*Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and advances UpdatedAt.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.Touch()
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageIndex returns the position of the message with the given ID, or -1.
func (c *Conversation) MessageIndex(id string) int {
	for i, msg := range c.Messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// TruncateBefore discards the message at index and everything after it.
// Used by the edit protocol: regenerating after an edit permanently drops
// the edited message and all its successors.
func (c *Conversation) TruncateBefore(index int) {
	if index < 0 || index > len(c.Messages) {
		return
	}
	c.Messages = c.Messages[:index:index]
	c.Touch()
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Touch advances UpdatedAt, preserving UpdatedAt >= CreatedAt.
func (c *Conversation) Touch() {
	c.UpdatedAt = time.Now()
	if c.UpdatedAt.Before(c.CreatedAt) {
		c.UpdatedAt = c.CreatedAt
	}
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// DeriveTitle computes a title from the given text: newlines collapsed,
// first 50 runes, truncated at a word boundary with an ellipsis marker.
// Deriving twice from the same text yields the same string; text that
// already fits is returned unchanged.
func DeriveTitle(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultTitle
	}
	return util.TruncateAtWord(text, titleMaxRunes)
}

// RefreshTitle re-derives the title from the first user message. It only
// acts while the conversation still carries the default title, so the one
// transition from "no user messages yet" to "has user messages" names the
// conversation and later edits do not rename it.
func (c *Conversation) RefreshTitle() {
	if c.Title != "" && c.Title != DefaultTitle {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			c.Title = DeriveTitle(msg.Content)
			return
		}
	}
}

// =============================================================================
// COPYING
// =============================================================================

// Clone returns a deep copy of the conversation. The message slice and
// every message (attachments included) are copied, so the clone can be
// handed to another goroutine or serialized while the original mutates.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return clone
}

// CloneMessages returns a deep copy of just the message list.
func CloneMessages(messages []*Message) []*Message {
	out := make([]*Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.Clone()
	}
	return out
}
