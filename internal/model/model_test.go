// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessage_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		msg := NewUserMessage("hello")
		if seen[msg.ID] {
			t.Fatalf("duplicate message ID: %s", msg.ID)
		}
		seen[msg.ID] = true
	}
}

func TestEditedCopy(t *testing.T) {
	orig := NewUserMessage("original text")
	edited := orig.EditedCopy("new text")

	if edited.ID == orig.ID {
		t.Error("edited copy must get a fresh ID")
	}
	if !edited.Edited {
		t.Error("edited copy must carry Edited=true")
	}
	if edited.Content != "new text" {
		t.Errorf("unexpected content: %s", edited.Content)
	}
	if orig.Content != "original text" || orig.Edited {
		t.Error("original message was mutated by EditedCopy")
	}
}

func TestMessageClone_DeepCopiesAttachments(t *testing.T) {
	path := writeTempFile(t, "notes.txt", "some notes")
	att, err := NewAttachment(path)
	if err != nil {
		t.Fatalf("NewAttachment failed: %v", err)
	}

	msg := NewUserMessage("see attached", att)
	clone := msg.Clone()

	if len(clone.Attachments) != 1 {
		t.Fatalf("expected 1 attachment in clone")
	}
	if clone.Attachments[0] == msg.Attachments[0] {
		t.Error("clone shares attachment pointer with original")
	}
	clone.Attachments[0].DisplayName = "changed"
	if msg.Attachments[0].DisplayName == "changed" {
		t.Error("mutating clone attachment affected original")
	}
}

// =============================================================================
// ATTACHMENT TESTS
// =============================================================================

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestNewAttachment_KindDerivation(t *testing.T) {
	tests := []struct {
		name string
		want AttachmentKind
	}{
		{"code.go", KindDocument},
		{"readme.md", KindDocument},
		{"config.json", KindDocument},
		{"photo.png", KindImage},
		{"pic.jpg", KindImage},
		{"archive.zip", KindOther},
		{"binary.bin", KindOther},
	}

	for _, tt := range tests {
		path := writeTempFile(t, tt.name, "x")
		att, err := NewAttachment(path)
		if err != nil {
			t.Fatalf("NewAttachment(%s) failed: %v", tt.name, err)
		}
		if att.Kind != tt.want {
			t.Errorf("kind for %s = %s, want %s (mime %s)", tt.name, att.Kind, tt.want, att.MimeType)
		}
	}
}

func TestAttachment_TextLatin1Fallback(t *testing.T) {
	// 0xE9 is "é" in Latin-1 but invalid standalone UTF-8
	path := filepath.Join(t.TempDir(), "legacy.txt")
	if err := os.WriteFile(path, []byte{'c', 'a', 'f', 0xE9}, 0644); err != nil {
		t.Fatal(err)
	}

	att, err := NewAttachment(path)
	if err != nil {
		t.Fatal(err)
	}
	text, err := att.Text()
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if text != "café" {
		t.Errorf("expected latin-1 fallback to produce %q, got %q", "café", text)
	}
}

func TestAttachment_MemoizedRead(t *testing.T) {
	path := writeTempFile(t, "data.txt", "first")
	att, err := NewAttachment(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := att.Bytes(); err != nil {
		t.Fatal(err)
	}

	// Change the file after the first read; the memoized bytes must win.
	if err := os.WriteFile(path, []byte("second"), 0644); err != nil {
		t.Fatal(err)
	}
	data, err := att.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Errorf("expected memoized content %q, got %q", "first", data)
	}
}

// =============================================================================
// SERIALIZATION SHAPE TESTS
// =============================================================================

func TestBuildChatMessage_PlainString(t *testing.T) {
	msg := NewUserMessage("hello there")
	cm := BuildChatMessage(msg)

	data, err := json.Marshal(cm)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected plain string content shape: %v (%s)", err, data)
	}
	if decoded.Role != "user" || decoded.Content != "hello there" {
		t.Errorf("unexpected payload: %s", data)
	}
}

func TestBuildChatMessage_TextFileInlined(t *testing.T) {
	path := writeTempFile(t, "main.go", "package main")
	att, _ := NewAttachment(path)
	msg := NewUserMessage("review this", att)

	cm := BuildChatMessage(msg)
	if cm.Blocks != nil {
		t.Fatal("text-file attachment must keep the plain string shape")
	}
	if !strings.Contains(cm.Text, "--- File: main.go ---") {
		t.Errorf("missing file start marker: %q", cm.Text)
	}
	if !strings.Contains(cm.Text, "package main") {
		t.Errorf("missing file content: %q", cm.Text)
	}
	if !strings.Contains(cm.Text, "--- End file ---") {
		t.Errorf("missing file end marker: %q", cm.Text)
	}
}

func TestBuildChatMessage_ImageOnly_NoTextBlock(t *testing.T) {
	path := writeTempPNG(t, 8, 8)
	att, err := NewAttachment(path)
	if err != nil {
		t.Fatal(err)
	}
	msg := NewUserMessage("", att)

	cm := BuildChatMessage(msg)
	if cm.Blocks == nil {
		t.Fatal("image attachment must produce the block list shape")
	}
	if len(cm.Blocks) != 1 {
		t.Fatalf("expected exactly one block, got %d", len(cm.Blocks))
	}
	if cm.Blocks[0].Type != "image_url" {
		t.Errorf("expected image_url block, got %s", cm.Blocks[0].Type)
	}
	if !strings.HasPrefix(cm.Blocks[0].ImageURL.URL, "data:image/") {
		t.Errorf("expected data URL, got %q", cm.Blocks[0].ImageURL.URL[:32])
	}
}

func TestBuildChatMessage_TextAndImage(t *testing.T) {
	path := writeTempPNG(t, 8, 8)
	att, _ := NewAttachment(path)
	msg := NewUserMessage("what is this?", att)

	cm := BuildChatMessage(msg)
	if len(cm.Blocks) != 2 {
		t.Fatalf("expected text block + image block, got %d blocks", len(cm.Blocks))
	}
	if cm.Blocks[0].Type != "text" || cm.Blocks[0].Text != "what is this?" {
		t.Errorf("unexpected leading text block: %+v", cm.Blocks[0])
	}
	if cm.Blocks[1].Type != "image_url" {
		t.Errorf("unexpected second block: %+v", cm.Blocks[1])
	}
}

func TestBuildChatMessage_UnprocessedFilesNote(t *testing.T) {
	path := writeTempFile(t, "archive.zip", "not really a zip")
	att, _ := NewAttachment(path)
	msg := NewUserMessage("see attachment", att)

	cm := BuildChatMessage(msg)
	if cm.Blocks != nil {
		t.Fatal("non-image attachments must keep the plain string shape")
	}
	if !strings.Contains(cm.Text, "[Attached files not included: archive.zip]") {
		t.Errorf("missing unprocessed files note: %q", cm.Text)
	}
}

func TestBuildHistory_SkipsEmptyMessages(t *testing.T) {
	msgs := []*Message{
		NewUserMessage("hi"),
		NewAssistantMessage(), // empty placeholder
	}
	history := BuildHistory(msgs)
	if len(history) != 1 {
		t.Fatalf("expected empty placeholder to be skipped, got %d entries", len(history))
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	// Idempotent
	long := "this is a fairly long first message that will get truncated somewhere"
	first := DeriveTitle(long)
	second := DeriveTitle(long)
	if first != second {
		t.Errorf("title derivation not idempotent: %q vs %q", first, second)
	}

	// Short text unchanged
	if got := DeriveTitle("short title"); got != "short title" {
		t.Errorf("short text must be unchanged, got %q", got)
	}

	// Truncated at a word boundary with ellipsis, bounded length
	if !strings.HasSuffix(first, "...") {
		t.Errorf("expected ellipsis marker: %q", first)
	}
	if n := len([]rune(first)); n > 53 {
		t.Errorf("derived title too long: %d runes", n)
	}
	if strings.Contains(first, "truncated somewhere") {
		t.Errorf("expected truncation: %q", first)
	}

	// Newlines collapsed
	if got := DeriveTitle("line one\nline two"); strings.Contains(got, "\n") {
		t.Errorf("newlines must be collapsed: %q", got)
	}
}

func TestRefreshTitle_OnceOnFirstUserMessage(t *testing.T) {
	conv := NewConversation("")
	if conv.Title != DefaultTitle {
		t.Fatalf("unexpected initial title: %s", conv.Title)
	}

	conv.AddMessage(NewUserMessage("how do goroutines work?"))
	conv.RefreshTitle()
	if conv.Title != "how do goroutines work?" {
		t.Errorf("unexpected derived title: %q", conv.Title)
	}

	// A later, different first message situation must not rename
	conv.Messages[0].Content = "something else entirely"
	conv.RefreshTitle()
	if conv.Title != "how do goroutines work?" {
		t.Errorf("title was re-derived after initial naming: %q", conv.Title)
	}
}

func TestTruncateBefore(t *testing.T) {
	conv := NewConversation("")
	m0 := NewUserMessage("m0")
	m1 := NewAssistantMessage()
	m2 := NewUserMessage("m2")
	m3 := NewAssistantMessage()
	for _, m := range []*Message{m0, m1, m2, m3} {
		conv.AddMessage(m)
	}

	idx := conv.MessageIndex(m1.ID)
	conv.TruncateBefore(idx)

	if conv.MessageCount() != 1 {
		t.Fatalf("expected 1 message after truncation, got %d", conv.MessageCount())
	}
	if conv.Messages[0].ID != m0.ID {
		t.Errorf("expected only m0 to remain")
	}
}

func TestConversation_UpdatedAtInvariant(t *testing.T) {
	conv := NewConversation("")
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Error("UpdatedAt must not precede CreatedAt")
	}
	before := conv.UpdatedAt
	conv.AddMessage(NewUserMessage("x"))
	if conv.UpdatedAt.Before(before) {
		t.Error("AddMessage must advance UpdatedAt")
	}
}

func TestConversationClone_Independent(t *testing.T) {
	conv := NewConversation("")
	conv.AddMessage(NewUserMessage("original"))

	clone := conv.Clone()
	clone.Messages[0].Content = "mutated"
	clone.AddMessage(NewUserMessage("extra"))

	if conv.Messages[0].Content != "original" {
		t.Error("clone mutation affected original message")
	}
	if conv.MessageCount() != 1 {
		t.Error("clone append affected original list")
	}
}
