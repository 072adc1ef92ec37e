// styles.go - Shared styling for the palaver REPL.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for the welcome banner and command headers.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// LabelStyle is used for field labels in status output.
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(14)

	// ValueStyle is used for field values in status output.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Off-white

	// SuccessStyle is used for confirmations.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// ErrorStyle is used for command failures.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// WarningStyle is used for cautions and hints after aborted actions.
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// MutedStyle is used for help text and secondary information.
	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")) // Gray
)
