// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider holds the static catalog of chat-completion backends.
//
// Each backend is described by a Descriptor: base URL, auth header builder,
// model validation rule, and default model. Adding a provider means adding
// one descriptor to the table; nothing else in the codebase branches on
// provider names.
package provider

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound indicates the requested provider ID is not in the registry.
	ErrNotFound = errors.New("provider not found")
)

// ModelError indicates a model name that the provider will not accept.
// Hint carries a human-readable correction (an example of a valid name)
// that callers may surface or use to pick a fallback.
type ModelError struct {
	Provider string
	Model    string
	Hint     string
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	return fmt.Sprintf("model %q is not valid for provider %s: %s", e.Model, e.Provider, e.Hint)
}

// =============================================================================
// DESCRIPTOR
// =============================================================================

// HeaderBuilder produces the auth and identification headers for a request,
// given the opaque bearer credential from the config surface.
type HeaderBuilder func(credential string) map[string]string

// ModelValidator reports whether a model name is acceptable to the provider.
// A nil return means the model is valid; otherwise a *ModelError is returned.
type ModelValidator func(model string) error

// Descriptor is a named backend configuration.
type Descriptor struct {
	ID            string
	DisplayName   string
	BaseURL       string
	ChatPath      string
	DefaultModel  string
	ExampleModels []string

	Headers       HeaderBuilder
	ValidateModel ModelValidator
}

// ChatURL returns the full chat-completions endpoint URL.
func (d *Descriptor) ChatURL() string {
	return strings.TrimSuffix(d.BaseURL, "/") + d.ChatPath
}

// =============================================================================
// REGISTRY TABLE
// =============================================================================

// openRouterVendors is the allow-list of namespaces accepted in
// vendor/model-name identifiers on OpenRouter.
var openRouterVendors = map[string]bool{
	"anthropic":  true,
	"openai":     true,
	"google":     true,
	"meta-llama": true,
	"mistralai":  true,
	"deepseek":   true,
	"qwen":       true,
	"openrouter": true,
}

// registry is the static descriptor table. Order of IDs in registryOrder is
// the order List returns them in.
var registry = map[string]*Descriptor{
	"openrouter": {
		ID:           "openrouter",
		DisplayName:  "OpenRouter",
		BaseURL:      "https://openrouter.ai/api/v1",
		ChatPath:     "/chat/completions",
		DefaultModel: "anthropic/claude-3.5-sonnet",
		ExampleModels: []string{
			"anthropic/claude-3.5-sonnet",
			"openai/gpt-4o",
			"google/gemini-pro-1.5",
			"meta-llama/llama-3-70b-instruct",
		},
		Headers: func(credential string) map[string]string {
			return map[string]string{
				"Authorization": "Bearer " + credential,
				"HTTP-Referer":  "https://palaver.local",
				"X-Title":       "palaver",
			}
		},
		ValidateModel: validateNamespaced("openrouter", "anthropic/claude-3.5-sonnet"),
	},
	"deepseek": {
		ID:           "deepseek",
		DisplayName:  "DeepSeek",
		BaseURL:      "https://api.deepseek.com",
		ChatPath:     "/chat/completions",
		DefaultModel: "deepseek-chat",
		ExampleModels: []string{
			"deepseek-chat",
			"deepseek-reasoner",
		},
		Headers:       bearerOnly,
		ValidateModel: validatePrefixed("deepseek", "deepseek-chat", "deepseek-"),
	},
	"moonshot": {
		ID:           "moonshot",
		DisplayName:  "Moonshot AI",
		BaseURL:      "https://api.moonshot.cn/v1",
		ChatPath:     "/chat/completions",
		DefaultModel: "moonshot-v1-8k",
		ExampleModels: []string{
			"moonshot-v1-8k",
			"moonshot-v1-32k",
			"kimi-latest",
		},
		Headers:       bearerOnly,
		ValidateModel: validatePrefixed("moonshot", "moonshot-v1-8k", "moonshot-", "kimi-"),
	},
}

var registryOrder = []string{"openrouter", "deepseek", "moonshot"}

// defaultProviderID is used when the config surface names no provider.
const defaultProviderID = "openrouter"

// =============================================================================
// LOOKUP
// =============================================================================

// Get returns the descriptor for the given provider ID.
func Get(id string) (*Descriptor, error) {
	d, ok := registry[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// List returns all registered descriptors in a stable order.
func List() []*Descriptor {
	out := make([]*Descriptor, 0, len(registryOrder))
	for _, id := range registryOrder {
		out = append(out, registry[id])
	}
	return out
}

// Default returns the default provider descriptor.
func Default() *Descriptor {
	return registry[defaultProviderID]
}

// =============================================================================
// VALIDATORS
// =============================================================================

// validateNamespaced builds a validator for vendor/model-name identifiers
// where the vendor must be on the allow-list.
func validateNamespaced(providerID, example string) ModelValidator {
	return func(model string) error {
		vendor, name, found := strings.Cut(model, "/")
		if !found || vendor == "" || name == "" {
			return &ModelError{
				Provider: providerID,
				Model:    model,
				Hint:     "expected the form vendor/model-name, e.g. " + example,
			}
		}
		if !openRouterVendors[vendor] {
			return &ModelError{
				Provider: providerID,
				Model:    model,
				Hint:     fmt.Sprintf("unknown vendor %q, e.g. %s", vendor, example),
			}
		}
		return nil
	}
}

// validatePrefixed builds a validator for flat-namespace providers whose
// model names must carry one of the given prefixes.
func validatePrefixed(providerID, example string, prefixes ...string) ModelValidator {
	return func(model string) error {
		for _, p := range prefixes {
			if strings.HasPrefix(model, p) && len(model) > len(p) {
				return nil
			}
		}
		return &ModelError{
			Provider: providerID,
			Model:    model,
			Hint:     fmt.Sprintf("model names start with %q, e.g. %s", strings.Join(prefixes, `" or "`), example),
		}
	}
}

// bearerOnly is the header builder shared by providers that need nothing
// beyond the bearer credential.
func bearerOnly(credential string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + credential,
	}
}
