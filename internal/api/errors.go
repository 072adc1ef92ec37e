// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Sentinel errors for the provider API. Both the one-shot and the streaming
// path classify HTTP failures through classifyStatus, so callers can rely on
// errors.Is regardless of how the request was issued.
var (
	// ErrNotConfigured indicates the bearer credential is not set.
	ErrNotConfigured = errors.New("API credential not configured")

	// ErrAuth indicates authentication failed (HTTP 401).
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made (HTTP 429).
	ErrRateLimited = errors.New("rate limited")

	// ErrInsufficientBalance indicates the account has no credit (HTTP 402).
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidRequest indicates the server rejected the request body (HTTP 400).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNetwork indicates a transport-level failure before a status was read.
	ErrNetwork = errors.New("network error")

	// ErrTimeout indicates the configured duration elapsed before completion,
	// or a streaming response stalled between chunks.
	ErrTimeout = errors.New("request timed out")
)

// APIError represents an error response from the provider API. Non-2xx
// statuses with no more specific mapping (5xx and unexpected codes) surface
// as a bare *APIError.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("provider error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse is the error envelope providers return.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classifyStatus converts a non-2xx HTTP response into the typed error
// taxonomy. The body is parsed for a server-provided message when present.
func classifyStatus(statusCode int, body []byte) error {
	apiErr := &APIError{Status: statusCode, Message: string(body)}

	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, apiErr.Message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	default:
		return apiErr
	}
}
