// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across palaver.
//
// It contains crash-safe file writing (AtomicWriteFile) and UTF-8 safe
// string truncation used by the conversation model and the stores.
package util
