// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the palaver terminal client: an interactive
// REPL with readline-style editing, slash commands, and live streaming
// output, wired to the chat orchestrator and the session store.
package cli
