// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strings"

// TruncateRunes truncates a string to a maximum number of runes.
// Safe for UTF-8 strings as it counts characters, not bytes.
// If the string is truncated, "..." is appended.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateAtWord truncates a string to at most maxRunes runes, backing up to
// the nearest preceding word boundary, and appends "...". Strings that
// already fit are returned unchanged. If the first maxRunes runes contain no
// space, the cut is made mid-word rather than returning an empty string.
func TruncateAtWord(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}

	cut := string(runes[:maxRunes])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ") + "..."
}
