// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for palaver.
//
// Two backends implement the Store interface: a JSON-file store (one
// file per conversation, atomic writes) and an SQLite store backed by
// the pure-Go modernc.org/sqlite driver. The backend is selected by
// configuration; both honor the same contract.
//
// # Key Types
//
//   - Store: the persistence interface used by the chat orchestrator
//   - FileStore: JSON files under a directory, plus an active pointer
//   - SQLiteStore: single database file with an upsert-per-save model
//
// # Usage
//
//	store, err := storage.NewFileStore(dir)
//	conv, err := store.Create("New conversation")
//	err = store.Update(conv)
//	convs, err := store.List()
//
// # Storage Location
//
// The default data directory is ~/.palaver/sessions/.
package storage
