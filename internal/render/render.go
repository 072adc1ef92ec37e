// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render formats conversation output for the terminal: markdown
// rendering for completed assistant turns and styled labels for roles and
// errors.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/palaver/internal/model"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Blue

	assistantLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("42")) // Green

	editedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")) // Gray

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	attachmentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

// =============================================================================
// RENDERER
// =============================================================================

// Renderer formats messages for terminal display. Markdown rendering
// degrades to plain text when the terminal renderer cannot initialize.
type Renderer struct {
	markdown *glamour.TermRenderer
}

// New creates a renderer with word wrap at the given width.
func New(wrapWidth int) *Renderer {
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		md = nil
	}
	return &Renderer{markdown: md}
}

// Markdown renders markdown content, falling back to the raw text.
func (r *Renderer) Markdown(content string) string {
	if r.markdown == nil {
		return content
	}
	rendered, err := r.markdown.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// Message formats one message with its role label, edit marker, and
// attachment list. Assistant content is rendered as markdown.
func (r *Renderer) Message(msg *model.Message) string {
	var sb strings.Builder

	sb.WriteString(r.RoleLabel(msg.Role))
	if msg.Edited {
		sb.WriteString(" " + editedStyle.Render("(edited)"))
	}
	sb.WriteString("\n")

	if msg.Role == model.RoleAssistant {
		sb.WriteString(r.Markdown(msg.Content))
	} else {
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}

	for _, att := range msg.Attachments {
		sb.WriteString(attachmentStyle.Render(fmt.Sprintf("  [attached: %s, %s]", att.DisplayName, att.MimeType)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RoleLabel returns the styled display name for a role.
func (r *Renderer) RoleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return userLabelStyle.Render(role.DisplayName())
	case model.RoleAssistant:
		return assistantLabelStyle.Render(role.DisplayName())
	default:
		return role.DisplayName()
	}
}

// Error formats an error for display.
func (r *Renderer) Error(err error) string {
	return errorStyle.Render("error: " + err.Error())
}

// SessionList formats conversations as a table for the /sessions command.
func (r *Renderer) SessionList(convs []*model.Conversation, activeID string) string {
	if len(convs) == 0 {
		return mutedStyle.Render("No sessions found.") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Sessions") + "\n")
	for i, conv := range convs {
		marker := "  "
		if conv.ID == activeID {
			marker = "* "
		}
		sb.WriteString(fmt.Sprintf("%s%2d. %-50s %s %3d msgs\n",
			marker, i+1, conv.Title,
			conv.UpdatedAt.Format("2006-01-02 15:04"),
			conv.MessageCount()))
	}
	sb.WriteString(mutedStyle.Render("Open one with /open <number>.") + "\n")
	return sb.String()
}
