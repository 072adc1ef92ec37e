// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and attachments, plus their serialization into provider request payloads.
//
// Messages are value types: edits never mutate an existing message, they
// produce a replacement with Edited set. Attachments read their backing
// file lazily and memoize the bytes, since a history resend serializes the
// same attachment more than once.
package model
