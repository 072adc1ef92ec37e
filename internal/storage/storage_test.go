// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/morganforge/palaver/internal/model"
)

// backends builds one instance of each Store implementation so the
// contract tests run against both.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "palaver.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	stores := map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStore_RoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			conv, err := store.Create("Test conversation")
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			conv.AddMessage(model.NewUserMessage("hello world"))
			asst := model.NewAssistantMessage()
			asst.Content = "hi back"
			conv.AddMessage(asst)

			if err := store.Update(conv); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			loaded, err := store.Get(conv.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if loaded.Title != "Test conversation" {
				t.Errorf("title = %q", loaded.Title)
			}
			if loaded.MessageCount() != 2 {
				t.Fatalf("expected 2 messages, got %d", loaded.MessageCount())
			}
			if loaded.Messages[0].Content != "hello world" {
				t.Errorf("first message = %q", loaded.Messages[0].Content)
			}
			if loaded.Messages[1].Role != model.RoleAssistant {
				t.Errorf("second message role = %q", loaded.Messages[1].Role)
			}
			if loaded.Messages[0].ID != conv.Messages[0].ID {
				t.Error("message IDs must survive the round trip")
			}
		})
	}
}

func TestStore_ListOrder(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, _ := store.Create("first")
			second, _ := store.Create("second")

			// Updating the older conversation moves it to the front.
			time.Sleep(2 * time.Millisecond)
			first.AddMessage(model.NewUserMessage("bump"))
			if err := store.Update(first); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			convs, err := store.List()
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(convs) != 2 {
				t.Fatalf("expected 2 conversations, got %d", len(convs))
			}
			if convs[0].ID != first.ID {
				t.Errorf("expected most recently updated first, got %s", convs[0].Title)
			}
			if convs[1].ID != second.ID {
				t.Errorf("expected %s second, got %s", second.Title, convs[1].Title)
			}
		})
	}
}

func TestStore_UpdateIsUpsert(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			conv := model.NewConversation("never created")
			if err := store.Update(conv); err != nil {
				t.Fatalf("Update of an unseen conversation must succeed: %v", err)
			}
			if _, err := store.Get(conv.ID); err != nil {
				t.Fatalf("Get after upsert failed: %v", err)
			}
		})
	}
}

func TestStore_ActivePointer(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if active, err := store.GetActive(); err != nil || active != nil {
				t.Fatalf("empty store: GetActive = (%v, %v), want (nil, nil)", active, err)
			}

			first, _ := store.Create("first")
			second, _ := store.Create("second")

			active, err := store.GetActive()
			if err != nil {
				t.Fatalf("GetActive failed: %v", err)
			}
			if active.ID != second.ID {
				t.Error("Create must mark the new conversation active")
			}

			if err := store.SetActive(first.ID); err != nil {
				t.Fatalf("SetActive failed: %v", err)
			}
			active, _ = store.GetActive()
			if active.ID != first.ID {
				t.Error("SetActive did not take effect")
			}

			if err := store.SetActive("conv_nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("SetActive on unknown ID = %v, want ErrNotFound", err)
			}

			// Deleting the active conversation clears the pointer.
			if err := store.Delete(first.ID); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if active, err := store.GetActive(); err != nil || active != nil {
				t.Errorf("after deleting active: GetActive = (%v, %v), want (nil, nil)", active, err)
			}
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get("conv_missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get = %v, want ErrNotFound", err)
			}
			if err := store.Delete("conv_missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_DeleteAll(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store.Create("one")
			store.Create("two")

			if err := store.DeleteAll(); err != nil {
				t.Fatalf("DeleteAll failed: %v", err)
			}

			convs, err := store.List()
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(convs) != 0 {
				t.Errorf("expected empty store, got %d conversations", len(convs))
			}
			if active, _ := store.GetActive(); active != nil {
				t.Error("DeleteAll must clear the active pointer")
			}
		})
	}
}

func TestFileStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	good, _ := store.Create("good")
	if err := os.WriteFile(filepath.Join(dir, "conv_corrupt.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	convs, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != good.ID {
		t.Errorf("expected only the good conversation, got %d", len(convs))
	}
}

func TestStore_PreservesEditedFlag(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			conv, _ := store.Create("edits")
			original := model.NewUserMessage("first draft")
			conv.AddMessage(original.EditedCopy("second draft"))
			if err := store.Update(conv); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			loaded, err := store.Get(conv.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !loaded.Messages[0].Edited {
				t.Error("edited flag lost in round trip")
			}
			if loaded.Messages[0].Content != "second draft" {
				t.Errorf("content = %q", loaded.Messages[0].Content)
			}
		})
	}
}
