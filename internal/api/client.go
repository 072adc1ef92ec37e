// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/morganforge/palaver/internal/model"
	"github.com/morganforge/palaver/internal/provider"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout is the default timeout for API requests. For streaming
	// it also bounds the stall between consecutive chunks.
	DefaultTimeout = 60 * time.Second

	// DefaultTemperature is used when the request does not set one.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is used when the request does not set a limit.
	DefaultMaxTokens = 4096

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

var (
	// sharedHTTPClient serves one-shot requests. Connection pooling reduces
	// TCP handshake overhead across sends.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}

	// sharedStreamingClient serves streaming requests. It carries no
	// client-level timeout; lifetimes are controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// ChatRequest is the JSON body for the chat completions endpoint.
type ChatRequest struct {
	Model       string              `json:"model"`
	Messages    []model.ChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
	Stream      bool                `json:"stream"`
}

// NewChatRequest builds a request with the default sampling parameters.
func NewChatRequest(modelName string, messages []model.ChatMessage) *ChatRequest {
	return &ChatRequest{
		Model:       modelName,
		Messages:    messages,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// ChatResponse is the decoded result of a one-shot completion.
type ChatResponse struct {
	Text         string
	FinishReason string
	UsedTokens   int
}

// chatEnvelope is the wire form of a non-streaming response.
type chatEnvelope struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues chat-completion requests against one provider endpoint.
// It holds no provider-specific logic beyond what the descriptor supplies.
type Client struct {
	desc       *provider.Descriptor
	credential string
	timeout    time.Duration
}

// NewClient creates a client for the given provider descriptor and bearer
// credential. An empty credential is allowed at construction; requests will
// fail with ErrNotConfigured.
func NewClient(desc *provider.Descriptor, credential string) *Client {
	return &Client{
		desc:       desc,
		credential: credential,
		timeout:    DefaultTimeout,
	}
}

// WithTimeout sets the request timeout (and the streaming stall bound).
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// Configured returns true if the client has a credential.
func (c *Client) Configured() bool {
	return c.credential != ""
}

// Provider returns the descriptor this client talks to.
func (c *Client) Provider() *provider.Descriptor {
	return c.desc
}

// setHeaders applies the provider's auth headers plus the content type.
func (c *Client) setHeaders(req *http.Request) {
	for k, v := range c.desc.Headers(c.credential) {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "palaver/0.1.0")
}

// =============================================================================
// ONE-SHOT COMPLETION
// =============================================================================

// Chat performs a non-streaming chat completion request.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req.Stream = false
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.desc.ChatURL(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := sharedHTTPClient.Do(httpReq)
	if err != nil {
		return nil, c.wrapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var envelope chatEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return nil, &APIError{Status: resp.StatusCode, Message: "response contained no choices"}
	}

	return &ChatResponse{
		Text:         envelope.Choices[0].Message.Content,
		FinishReason: envelope.Choices[0].FinishReason,
		UsedTokens:   envelope.Usage.TotalTokens,
	}, nil
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// wrapTransportError maps transport-level failures onto the error taxonomy.
// Cancellation passes through untouched so callers can distinguish a user
// cancel from a network fault.
func (c *Client) wrapTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v", ErrTimeout, c.timeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
