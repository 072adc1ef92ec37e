// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP transport for chat-completion providers.
//
// The client issues one-shot and streaming requests against a resolved
// provider descriptor. Both paths share request assembly and the HTTP
// status classifier, so errors carry the same taxonomy regardless of how
// the request was made. Streaming responses are parsed as server-sent
// events; a malformed frame is skipped, never fatal.
package api
