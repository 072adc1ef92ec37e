// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// ContentBlock is one element of a structured message content list.
// Type is either "text" or "image_url".
type ContentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries a data URL ("data:<mime>;base64,<data>").
type ImageURL struct {
	URL string `json:"url"`
}

// ChatMessage is the provider-consumable form of a message. Content is
// dual-shaped on the wire: a plain string for text-only turns, a block list
// when image attachments are present. Some providers reject a block list
// for text-only turns, so the simple shape must be preserved.
type ChatMessage struct {
	Role   string
	Text   string
	Blocks []ContentBlock
}

// MarshalJSON emits {"role": ..., "content": string | []ContentBlock}.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	if m.Blocks != nil {
		return json.Marshal(struct {
			Role    string         `json:"role"`
			Content []ContentBlock `json:"content"`
		}{Role: m.Role, Content: m.Blocks})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: m.Role, Content: m.Text})
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// fileWrapStart and fileWrapEnd delimit inlined text attachments in the
// prompt so the model can tell file content apart from the user's message.
const (
	fileWrapStart = "\n\n--- File: "
	fileWrapEnd   = "\n--- End file ---"
)

// BuildChatMessage serializes a message and its attachments into the
// provider payload fragment:
//
//  1. Text-like attachments are decoded and inlined into the text, wrapped
//     in file markers. Unreadable files contribute a placeholder naming the
//     failure instead of aborting the send.
//  2. Attachments that are neither text-like nor images are not inlined;
//     their names are appended as a bracketed note.
//  3. If any image attachments exist, the result is a structured content
//     list: a leading text block (when the accumulated text is non-empty)
//     followed by one image block per image. Otherwise the result is the
//     plain string shape.
func BuildChatMessage(msg *Message) ChatMessage {
	var text strings.Builder
	text.WriteString(msg.Content)

	var images []*Attachment
	var unprocessed []string

	for _, att := range msg.Attachments {
		switch {
		case att.IsTextLike():
			content, err := att.Text()
			if err != nil {
				content = "[failed to read " + att.DisplayName + ": " + err.Error() + "]"
			}
			text.WriteString(fileWrapStart)
			text.WriteString(att.DisplayName)
			text.WriteString(" ---\n")
			text.WriteString(content)
			text.WriteString(fileWrapEnd)

		case att.Kind == KindImage:
			images = append(images, att)

		default:
			unprocessed = append(unprocessed, att.DisplayName)
		}
	}

	if len(unprocessed) > 0 {
		text.WriteString("\n\n[Attached files not included: ")
		text.WriteString(strings.Join(unprocessed, ", "))
		text.WriteString("]")
	}

	out := ChatMessage{Role: msg.Role.String()}

	if len(images) == 0 {
		out.Text = text.String()
		return out
	}

	blocks := make([]ContentBlock, 0, len(images)+1)
	if accumulated := text.String(); accumulated != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: accumulated})
	}
	for _, img := range images {
		url, err := img.DataURL()
		if err != nil {
			// An unreadable image degrades to a text note rather than
			// aborting the whole message.
			blocks = append(blocks, ContentBlock{
				Type: "text",
				Text: "[failed to read " + img.DisplayName + ": " + err.Error() + "]",
			})
			continue
		}
		blocks = append(blocks, ContentBlock{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: url},
		})
	}
	out.Blocks = blocks
	return out
}

// BuildHistory serializes an ordered message list into the request payload
// form, skipping messages that are empty of both text and attachments.
func BuildHistory(messages []*Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.IsEmpty() {
			continue
		}
		out = append(out, BuildChatMessage(msg))
	}
	return out
}
