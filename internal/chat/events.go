// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/log"
)

// =============================================================================
// EVENT SINK
// =============================================================================

// EventSink receives orchestrator lifecycle notifications. Implementations
// must be safe for concurrent use and must not block: events fire from the
// streaming goroutine.
type EventSink interface {
	// SendStart fires when a request is dispatched to the provider.
	SendStart(convID, modelName string)

	// StreamDone fires when a stream completes normally.
	StreamDone(convID string, chars int)

	// StreamError fires when a stream fails. Partial content is retained.
	StreamError(convID string, err error)

	// StreamCanceled fires when the user aborts a stream.
	StreamCanceled(convID string)

	// ModelFallback fires when the configured model fails validation and
	// the provider default is used instead.
	ModelFallback(requested, fallback string)

	// Autosaved fires after each persistence attempt; err is nil on success.
	Autosaved(convID string, err error)
}

// =============================================================================
// LOG SINK
// =============================================================================

// LogSink emits orchestrator events as structured log records.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink wraps a logger as an event sink.
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) SendStart(convID, modelName string) {
	s.logger.Debug("dispatching request", "conversation", convID, "model", modelName)
}

func (s *LogSink) StreamDone(convID string, chars int) {
	s.logger.Debug("stream complete", "conversation", convID, "chars", chars)
}

func (s *LogSink) StreamError(convID string, err error) {
	s.logger.Error("stream failed", "conversation", convID, "error", err)
}

func (s *LogSink) StreamCanceled(convID string) {
	s.logger.Info("stream canceled", "conversation", convID)
}

func (s *LogSink) ModelFallback(requested, fallback string) {
	s.logger.Warn("model rejected, using provider default",
		"requested", requested, "fallback", fallback)
}

func (s *LogSink) Autosaved(convID string, err error) {
	if err != nil {
		s.logger.Error("autosave failed", "conversation", convID, "error", err)
		return
	}
	s.logger.Debug("autosaved", "conversation", convID)
}

// =============================================================================
// NOP SINK
// =============================================================================

// NopSink discards all events.
type NopSink struct{}

func (NopSink) SendStart(string, string)     {}
func (NopSink) StreamDone(string, int)       {}
func (NopSink) StreamError(string, error)    {}
func (NopSink) StreamCanceled(string)        {}
func (NopSink) ModelFallback(string, string) {}
func (NopSink) Autosaved(string, error)      {}
