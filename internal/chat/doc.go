// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat orchestrates conversations: it owns the active
// conversation, drives streaming completions, enforces the
// edit-and-regenerate protocol, and autosaves after every completed
// turn.
//
// The orchestrator is a small state machine (Idle, Streaming, Editing)
// guarded by a single mutex. Streaming runs on its own goroutine; a
// generation counter ensures that deltas from a superseded stream are
// dropped rather than interleaved into the transcript. Frontends
// observe progress through Subscribe, which delivers deep-copied
// snapshots, so no caller ever holds a reference into live state.
package chat
