// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// sseServer returns a test server replaying the given raw SSE lines.
func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("test server does not support flushing")
		}
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}))
}

func collectEvents(t *testing.T, client *Client, req *ChatRequest) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	err := client.ChatStream(context.Background(), req, func(ev StreamEvent) {
		events = append(events, ev)
	})
	return events, err
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestChatStream_AppendOnlyDeltas(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"A"}}]}`,
		`data: {"choices":[{"delta":{"content":"B"}}]}`,
		`data: [DONE]`,
	})
	defer server.Close()

	client := NewClient(testDescriptor(server.URL), "sk-test")
	events, err := collectEvents(t, client, NewChatRequest("m", userMessages("hi")))
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	var text string
	finals := 0
	for _, ev := range events {
		text += ev.DeltaText
		if ev.Final {
			finals++
			if ev.DeltaText != "" {
				t.Error("final event must carry empty delta")
			}
		}
	}
	if text != "AB" {
		t.Errorf("expected accumulated text AB, got %q", text)
	}
	if finals != 1 {
		t.Errorf("expected exactly one final event, got %d", finals)
	}
	if !events[len(events)-1].Final {
		t.Error("final event must be last")
	}
}

func TestChatStream_MalformedFrameSkipped(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"A"}}]}`,
		`data: {not json at all`,
		`data: {"choices":[{"delta":{"content":"B"}}]}`,
		`data: [DONE]`,
	})
	defer server.Close()

	client := NewClient(testDescriptor(server.URL), "sk-test")
	text, err := client.ChatStreamAccumulate(context.Background(), NewChatRequest("m", userMessages("hi")))
	if err != nil {
		t.Fatalf("a corrupt frame must not abort the stream: %v", err)
	}
	if text != "AB" {
		t.Errorf("expected AB, got %q", text)
	}
}

func TestChatStream_FinishReasonTerminates(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"done"},"finish_reason":"stop"}]}`,
	})
	defer server.Close()

	client := NewClient(testDescriptor(server.URL), "sk-test")
	events, err := collectEvents(t, client, NewChatRequest("m", userMessages("hi")))
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if !events[len(events)-1].Final {
		t.Error("finish_reason frame must terminate the stream")
	}
}

func TestChatStream_EOFWithoutDone(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"partial"}}]}`,
	})
	defer server.Close()

	client := NewClient(testDescriptor(server.URL), "sk-test")
	events, err := collectEvents(t, client, NewChatRequest("m", userMessages("hi")))
	if err != nil {
		t.Fatalf("clean EOF must complete the stream: %v", err)
	}
	if !events[len(events)-1].Final {
		t.Error("expected a final event on EOF")
	}
}

func TestChatStream_ErrorBeforeFirstFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"top up your account"}}`))
	}))
	defer server.Close()

	client := NewClient(testDescriptor(server.URL), "sk-test")
	called := false
	err := client.ChatStream(context.Background(), NewChatRequest("m", userMessages("hi")), func(StreamEvent) {
		called = true
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if called {
		t.Error("no callback must fire when the request fails before the first frame")
	}
}

func TestChatStream_NotConfigured(t *testing.T) {
	client := NewClient(testDescriptor("http://localhost:0"), "")
	err := client.ChatStream(context.Background(), NewChatRequest("m", nil), func(StreamEvent) {})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestChatStream_Cancellation(t *testing.T) {
	firstFrame := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\n")
		flusher.Flush()
		close(firstFrame)
		// Keep the connection open; the client should abort it.
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(testDescriptor(server.URL), "sk-test")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-firstFrame
		cancel()
	}()

	err := client.ChatStream(ctx, NewChatRequest("m", userMessages("hi")), func(StreamEvent) {})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestChatStream_StallTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\n")
		flusher.Flush()
		// Stall: no more frames until far past the client's bound.
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(testDescriptor(server.URL), "sk-test").WithTimeout(100 * time.Millisecond)
	err := client.ChatStream(context.Background(), NewChatRequest("m", userMessages("hi")), func(StreamEvent) {})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout on stalled stream, got %v", err)
	}
}
