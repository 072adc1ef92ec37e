// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// =============================================================================
// STREAM EVENT TYPES
// =============================================================================

// StreamEvent is one incremental result of a streaming completion. A final
// event carries Final=true and an empty DeltaText.
type StreamEvent struct {
	DeltaText string
	Final     bool
}

// StreamCallback is invoked for each event, in delivery order, from a
// single goroutine. It is never invoked after ChatStream returns.
type StreamCallback func(StreamEvent)

// streamChunk is the wire form of one SSE data frame.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// content returns the incremental text of the first choice.
func (c *streamChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// done reports whether the frame carries a finish reason.
func (c *streamChunk) done() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}

// doneSentinel terminates the event stream.
var doneSentinel = []byte("[DONE]")

// =============================================================================
// SSE READER
// =============================================================================

// sseReader parses server-sent events from a response body. Only the data
// field matters for chat completions; other fields are ignored.
type sseReader struct {
	reader *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReader(r)}
}

// readData returns the payload of the next data frame. io.EOF signals the
// end of the body.
func (s *sseReader) readData() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line ends the event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore event:, id:, retry: and comment lines
	}
}

// =============================================================================
// STREAMING COMPLETION
// =============================================================================

// ChatStream performs a streaming chat completion request. The callback
// receives one event per content delta and a terminal Final event. A
// malformed frame is skipped. Cancelling the context aborts the underlying
// request; no callback fires after ChatStream returns.
//
// The client timeout doubles as a stall bound: it covers the wait for the
// response headers and resets on every frame, so a connection that stops
// producing chunks surfaces ErrTimeout rather than hanging.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	req.Stream = true
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stall watchdog: fires when no frame arrives within the timeout,
	// cancelling the in-flight request.
	var stalled atomic.Bool
	watchdog := time.AfterFunc(c.timeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.desc.ChatURL(), bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return c.wrapStreamError(ctx, err, &stalled)
	}
	defer resp.Body.Close()

	// Non-2xx before the first frame maps through the shared classifier.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return classifyStatus(resp.StatusCode, body)
	}

	watchdog.Reset(c.timeout)
	return c.processStream(ctx, resp.Body, callback, watchdog, &stalled)
}

// processStream reads SSE frames and dispatches callback events.
func (c *Client) processStream(ctx context.Context, body io.Reader, callback StreamCallback, watchdog *time.Timer, stalled *atomic.Bool) error {
	reader := newSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return c.wrapStreamError(ctx, ctx.Err(), stalled)
		default:
		}

		data, err := reader.readData()
		if err != nil {
			if err == io.EOF {
				// Body ended without a [DONE] frame; treat as completion.
				callback(StreamEvent{Final: true})
				return nil
			}
			return c.wrapStreamError(ctx, err, stalled)
		}
		watchdog.Reset(c.timeout)

		if bytes.Equal(data, doneSentinel) {
			callback(StreamEvent{Final: true})
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// A single corrupt frame must not abort the stream.
			continue
		}

		if delta := chunk.content(); delta != "" {
			callback(StreamEvent{DeltaText: delta})
		}
		if chunk.done() {
			callback(StreamEvent{Final: true})
			return nil
		}
	}
}

// wrapStreamError maps streaming failures onto the error taxonomy,
// distinguishing watchdog stalls from user cancellation.
func (c *Client) wrapStreamError(ctx context.Context, err error, stalled *atomic.Bool) error {
	if stalled.Load() {
		return fmt.Errorf("%w: no data for %v", ErrTimeout, c.timeout)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	return c.wrapTransportError(ctx, err)
}

// =============================================================================
// ACCUMULATED STREAMING
// =============================================================================

// ChatStreamAccumulate performs a streaming chat but returns the fully
// accumulated text. Useful where streaming is wanted for liveness but the
// caller only needs the complete response.
func (c *Client) ChatStreamAccumulate(ctx context.Context, req *ChatRequest) (string, error) {
	var accumulated bytes.Buffer
	err := c.ChatStream(ctx, req, func(ev StreamEvent) {
		accumulated.WriteString(ev.DeltaText)
	})
	return accumulated.String(), err
}
