// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morganforge/palaver/internal/model"
)

func TestMarkdownFallsBackToRawText(t *testing.T) {
	// A renderer without a markdown backend must still produce output.
	r := &Renderer{markdown: nil}
	assert.Equal(t, "# heading", r.Markdown("# heading"))
}

func TestMessageIncludesEditMarker(t *testing.T) {
	r := New(80)

	msg := model.NewUserMessage("hello there")
	out := r.Message(msg)
	require.Contains(t, out, "hello there")
	assert.NotContains(t, out, "(edited)")

	edited := msg.EditedCopy("hello again")
	out = r.Message(edited)
	assert.Contains(t, out, "hello again")
	assert.Contains(t, out, "(edited)")
}

func TestMessageListsAttachments(t *testing.T) {
	r := New(80)

	msg := model.NewUserMessage("see attached")
	msg.Attachments = []*model.Attachment{
		{DisplayName: "notes.txt", MimeType: "text/plain"},
	}
	out := r.Message(msg)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "text/plain")
}

func TestError(t *testing.T) {
	r := New(80)
	out := r.Error(errors.New("connection refused"))
	assert.Contains(t, out, "connection refused")
}

func TestSessionListMarksActive(t *testing.T) {
	r := New(80)

	a := model.NewConversation("First chat")
	b := model.NewConversation("Second chat")
	out := r.SessionList([]*model.Conversation{a, b}, b.ID)

	require.Contains(t, out, "First chat")
	require.Contains(t, out, "Second chat")

	lines := strings.Split(out, "\n")
	var marked string
	for _, line := range lines {
		if strings.HasPrefix(line, "* ") {
			marked = line
		}
	}
	require.NotEmpty(t, marked, "active session should carry a marker")
	assert.Contains(t, marked, "Second chat")
}

func TestSessionListEmpty(t *testing.T) {
	r := New(80)
	assert.Contains(t, r.SessionList(nil, ""), "No sessions found")
}
