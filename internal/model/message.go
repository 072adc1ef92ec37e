// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation. IDs are unique within
// a conversation, assigned at creation, and never reused.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Edited    bool      `json:"edited,omitempty"`

	Attachments []*Attachment `json:"attachments,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a new user message with optional attachments.
func NewUserMessage(content string, attachments ...*Attachment) *Message {
	msg := NewMessage(RoleUser, content)
	msg.Attachments = attachments
	return msg
}

// NewAssistantMessage creates an empty assistant message, used as the
// placeholder that streaming deltas are appended to.
func NewAssistantMessage() *Message {
	return NewMessage(RoleAssistant, "")
}

// EditedCopy returns a replacement message carrying the new text. The
// original is left untouched; the copy gets a fresh ID and Edited set.
func (m *Message) EditedCopy(newText string) *Message {
	clone := m.Clone()
	clone.ID = generateMessageID()
	clone.Content = newText
	clone.Edited = true
	clone.CreatedAt = time.Now()
	return clone
}

// Clone returns a deep copy of the message. Attachments are copied by
// value so mutations of the copy cannot race with the original.
func (m *Message) Clone() *Message {
	clone := *m
	if len(m.Attachments) > 0 {
		clone.Attachments = make([]*Attachment, len(m.Attachments))
		for i, att := range m.Attachments {
			clone.Attachments[i] = att.Clone()
		}
	}
	return &clone
}

// IsEmpty returns true if the message has no content and no attachments.
func (m *Message) IsEmpty() bool {
	return m.Content == "" && len(m.Attachments) == 0
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// generateMessageID creates a unique message ID.
func generateMessageID() string {
	return "msg_" + uuid.NewString()
}
