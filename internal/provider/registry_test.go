// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"errors"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	d, err := Get("openrouter")
	if err != nil {
		t.Fatalf("Get(openrouter) failed: %v", err)
	}
	if d.ID != "openrouter" {
		t.Errorf("unexpected ID: %s", d.ID)
	}
	if d.ChatURL() != "https://openrouter.ai/api/v1/chat/completions" {
		t.Errorf("unexpected chat URL: %s", d.ChatURL())
	}

	// Lookup is case-insensitive and trims whitespace
	if _, err := Get("  DeepSeek "); err != nil {
		t.Errorf("expected case-insensitive lookup to succeed: %v", err)
	}

	_, err = Get("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestList_StableOrder(t *testing.T) {
	first := List()
	second := List()

	if len(first) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("list order not stable at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestDefault(t *testing.T) {
	d := Default()
	if d == nil || d.ID != "openrouter" {
		t.Fatalf("unexpected default provider: %+v", d)
	}
	if err := d.ValidateModel(d.DefaultModel); err != nil {
		t.Errorf("default model must validate: %v", err)
	}
}

func TestValidateModel_Namespaced(t *testing.T) {
	d, _ := Get("openrouter")

	valid := []string{
		"anthropic/claude-3.5-sonnet",
		"openai/gpt-4o",
		"meta-llama/llama-3-8b-instruct",
	}
	for _, m := range valid {
		if err := d.ValidateModel(m); err != nil {
			t.Errorf("expected %q to validate: %v", m, err)
		}
	}

	invalid := []string{
		"claude-3.5-sonnet", // missing vendor
		"acme/some-model",   // unknown vendor
		"anthropic/",        // empty name
		"/gpt-4o",           // empty vendor
	}
	for _, m := range invalid {
		err := d.ValidateModel(m)
		if err == nil {
			t.Errorf("expected %q to be rejected", m)
			continue
		}
		var me *ModelError
		if !errors.As(err, &me) {
			t.Errorf("expected *ModelError for %q, got %T", m, err)
			continue
		}
		if me.Hint == "" {
			t.Errorf("expected a correction hint for %q", m)
		}
	}
}

func TestValidateModel_Prefixed(t *testing.T) {
	d, _ := Get("deepseek")

	if err := d.ValidateModel("deepseek-chat"); err != nil {
		t.Errorf("expected deepseek-chat to validate: %v", err)
	}
	if err := d.ValidateModel("gpt-4o"); err == nil {
		t.Error("expected gpt-4o to be rejected by deepseek")
	}
	// A bare prefix is not a model name
	if err := d.ValidateModel("deepseek-"); err == nil {
		t.Error("expected bare prefix to be rejected")
	}

	moonshot, _ := Get("moonshot")
	if err := moonshot.ValidateModel("kimi-latest"); err != nil {
		t.Errorf("expected kimi-latest to validate: %v", err)
	}
}

func TestHeaders(t *testing.T) {
	d, _ := Get("openrouter")
	h := d.Headers("sk-or-test")
	if h["Authorization"] != "Bearer sk-or-test" {
		t.Errorf("unexpected Authorization header: %s", h["Authorization"])
	}
	if h["X-Title"] == "" {
		t.Error("expected X-Title header for openrouter")
	}

	ds, _ := Get("deepseek")
	h = ds.Headers("sk-test")
	if !strings.HasPrefix(h["Authorization"], "Bearer ") {
		t.Errorf("unexpected Authorization header: %s", h["Authorization"])
	}
	if len(h) != 1 {
		t.Errorf("deepseek should only set Authorization, got %v", h)
	}
}
