// chat.go - Interactive chat REPL for palaver.
//
// Provides a readline-style loop with persistent input history, live
// streaming output, and slash commands:
//
//	/help, /h, /?       Show available commands
//	/new, /clear        Start a fresh conversation
//	/sessions, /ls      List saved conversations
//	/open <n>           Open a conversation from the session list
//	/delete <n>         Delete a conversation from the session list
//	/history            Show the current conversation
//	/edit <n>           Edit a user message and regenerate from there
//	/attach <path>      Attach a file to the next message
//	/cancel             Cancel the in-flight response
//	/status, /s         Show provider, model, and storage info
//	/quit, /q, /exit    Save and exit
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/peterh/liner"

	"github.com/morganforge/palaver/internal/chat"
	"github.com/morganforge/palaver/internal/config"
	"github.com/morganforge/palaver/internal/model"
	"github.com/morganforge/palaver/internal/provider"
	"github.com/morganforge/palaver/internal/render"
	"github.com/morganforge/palaver/internal/storage"
	"github.com/morganforge/palaver/internal/util"
)

// historyFileName is the input history file under the config directory.
const historyFileName = "chat_history"

// =============================================================================
// CHAT REPL
// =============================================================================

// ChatREPL is the interactive loop: it owns the liner state, the pending
// attachment queue, and the last session listing used for /open indices.
type ChatREPL struct {
	orch        *chat.Orchestrator
	store       storage.Store
	manager     *config.Manager
	logger      *log.Logger
	renderer    *render.Renderer
	line        *liner.State
	historyFile string

	// Collect-then-render markdown on capable terminals; stream raw
	// text everywhere else.
	useMarkdown bool

	// Attachments queued by /attach, consumed by the next send.
	pending []*model.Attachment

	// Snapshot of store.List() from the last /sessions, so /open and
	// /delete numbers stay stable until the list is reprinted.
	listing []*model.Conversation
}

// NewChatREPL creates the REPL and loads input history.
func NewChatREPL(orch *chat.Orchestrator, store storage.Store, manager *config.Manager, logger *log.Logger) *ChatREPL {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile := ""
	if dir, err := config.Dir(); err == nil {
		historyFile = filepath.Join(dir, historyFileName)
	}

	c := &ChatREPL{
		orch:        orch,
		store:       store,
		manager:     manager,
		logger:      logger,
		renderer:    render.New(80),
		line:        line,
		historyFile: historyFile,
		useMarkdown: liner.TerminalSupported(),
	}
	c.loadHistory()
	return c
}

// loadHistory loads input history from the history file.
func (c *ChatREPL) loadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// saveHistory persists input history with restrictive permissions.
func (c *ChatREPL) saveHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		c.logger.Warn("could not save input history", "error", err)
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves input history and restores the terminal.
func (c *ChatREPL) Close() {
	c.saveHistory()
	c.line.Close()
}

// readInput prompts for a line and records non-empty input in history.
func (c *ChatREPL) readInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Run executes the REPL until the user exits. The returned error is nil
// on a normal quit.
func (c *ChatREPL) Run() error {
	// Ctrl+C during streaming cancels the response instead of killing
	// the process. At the prompt liner handles it as ErrPromptAborted.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			c.orch.CancelStream()
		}
	}()

	c.printWelcome()

	for {
		input, err := c.readInput("> ")
		if err == liner.ErrPromptAborted {
			fmt.Println(WarningStyle.Render("Use /quit to exit."))
			continue
		}
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}
		if strings.HasPrefix(input, "/") {
			quit := c.handleSlashCommand(input)
			if quit {
				return nil
			}
			continue
		}

		c.send(input)
	}
}

// =============================================================================
// SENDING AND STREAMING OUTPUT
// =============================================================================

// send dispatches a user message with any queued attachments and prints
// the streamed reply.
func (c *ChatREPL) send(text string) {
	attachments := c.pending
	c.pending = nil

	if err := c.orch.Send(text, attachments...); err != nil {
		fmt.Println(c.renderer.Error(err))
		return
	}
	c.awaitReply()
}

// awaitReply follows the snapshot subscription until the orchestrator
// settles back to idle. On markdown-capable terminals the reply is
// collected and rendered whole; otherwise deltas are printed as they
// arrive. Errors are printed and acknowledged.
func (c *ChatREPL) awaitReply() {
	snapshots, unsubscribe := c.orch.Subscribe()
	defer unsubscribe()

	printed := 0
	content := ""
	for snap := range snapshots {
		if last := snap.Conversation.LastMessage(); last != nil && last.Role == model.RoleAssistant {
			content = last.Content
			if !c.useMarkdown && len(content) > printed {
				if printed == 0 {
					fmt.Print(c.renderer.RoleLabel(model.RoleAssistant) + " ")
				}
				fmt.Print(content[printed:])
				printed = len(content)
			}
		}
		if snap.State == chat.StateStreaming {
			continue
		}
		if c.useMarkdown && content != "" {
			fmt.Println(c.renderer.RoleLabel(model.RoleAssistant))
			fmt.Print(c.renderer.Markdown(content))
		}
		if printed > 0 {
			fmt.Println()
		}
		if snap.Err != nil {
			fmt.Println(c.renderer.Error(snap.Err))
			c.orch.AcknowledgeError()
		}
		fmt.Println()
		return
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand dispatches a slash command. It returns true when the
// REPL should exit.
func (c *ChatREPL) handleSlashCommand(input string) bool {
	fields := strings.Fields(input)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/help", "/h", "/?":
		c.printHelp()
	case "/new", "/clear", "/c":
		c.cmdNew()
	case "/sessions", "/ls":
		c.cmdSessions()
	case "/open", "/o":
		c.cmdOpen(args)
	case "/delete", "/rm":
		c.cmdDelete(args)
	case "/history":
		c.printConversation()
	case "/edit", "/e":
		c.cmdEdit(args)
	case "/attach", "/a":
		c.cmdAttach(input, args)
	case "/cancel":
		c.orch.CancelStream()
	case "/status", "/s":
		c.printStatus()
	case "/quit", "/q", "/exit":
		return true
	default:
		fmt.Println(WarningStyle.Render("Unknown command: " + cmd + " (try /help)"))
	}
	return false
}

func (c *ChatREPL) cmdNew() {
	if err := c.orch.Clear(); err != nil {
		fmt.Println(c.renderer.Error(err))
		return
	}
	c.pending = nil
	fmt.Println(SuccessStyle.Render("Started a new conversation."))
}

func (c *ChatREPL) cmdSessions() {
	convs, err := c.store.List()
	if err != nil {
		fmt.Println(c.renderer.Error(err))
		return
	}
	c.listing = convs
	fmt.Println(c.renderer.SessionList(convs, c.orch.Conversation().ID))
}

// resolveListing maps a 1-based /sessions index to a conversation,
// refreshing the listing if /sessions has not been run yet.
func (c *ChatREPL) resolveListing(args []string) (*model.Conversation, bool) {
	if len(args) != 1 {
		fmt.Println(WarningStyle.Render("Usage: <command> <number> (see /sessions)"))
		return nil, false
	}
	if c.listing == nil {
		convs, err := c.store.List()
		if err != nil {
			fmt.Println(c.renderer.Error(err))
			return nil, false
		}
		c.listing = convs
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(c.listing) {
		fmt.Println(WarningStyle.Render("No such session number (see /sessions)"))
		return nil, false
	}
	return c.listing[n-1], true
}

func (c *ChatREPL) cmdOpen(args []string) {
	conv, ok := c.resolveListing(args)
	if !ok {
		return
	}
	if err := c.orch.Open(conv.ID); err != nil {
		fmt.Println(c.renderer.Error(err))
		return
	}
	fmt.Println(SuccessStyle.Render("Opened: " + conv.Title))
	c.printConversation()
}

func (c *ChatREPL) cmdDelete(args []string) {
	conv, ok := c.resolveListing(args)
	if !ok {
		return
	}
	active := c.orch.Conversation().ID == conv.ID
	if err := c.store.Delete(conv.ID); err != nil {
		fmt.Println(c.renderer.Error(err))
		return
	}
	c.listing = nil
	fmt.Println(SuccessStyle.Render("Deleted: " + conv.Title))
	if active {
		c.cmdNew()
	}
}

// cmdEdit rewrites a user message in place and regenerates the reply.
// The history from the edited message onward is discarded.
func (c *ChatREPL) cmdEdit(args []string) {
	if len(args) != 1 {
		fmt.Println(WarningStyle.Render("Usage: /edit <number> (see /history)"))
		return
	}
	conv := c.orch.Conversation()
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(conv.Messages) {
		fmt.Println(WarningStyle.Render("No such message number (see /history)"))
		return
	}
	target := conv.Messages[n-1]

	if err := c.orch.StartEditing(target.ID); err != nil {
		switch {
		case errors.Is(err, chat.ErrBusy):
			fmt.Println(WarningStyle.Render("A response is streaming; /cancel it first."))
		case errors.Is(err, chat.ErrNotEditable):
			fmt.Println(WarningStyle.Render("Only your own messages can be edited."))
		default:
			fmt.Println(c.renderer.Error(err))
		}
		return
	}

	draft := target.Content
	edited, err := c.line.PromptWithSuggestion("edit> ", draft, len([]rune(draft)))
	if err != nil || strings.TrimSpace(edited) == "" {
		if cerr := c.orch.CancelEditing(); cerr != nil {
			fmt.Println(c.renderer.Error(cerr))
			return
		}
		fmt.Println(MutedStyle.Render("Edit canceled; history unchanged."))
		return
	}

	if err := c.orch.CommitEdit(edited); err != nil {
		fmt.Println(c.renderer.Error(err))
		return
	}
	c.awaitReply()
}

// cmdAttach queues a file for the next message. With no argument it
// lists what is already queued.
func (c *ChatREPL) cmdAttach(input string, args []string) {
	if len(args) == 0 {
		if len(c.pending) == 0 {
			fmt.Println(MutedStyle.Render("No attachments queued. Usage: /attach <path>"))
			return
		}
		for _, att := range c.pending {
			fmt.Printf("  %s (%s, %d bytes)\n", att.DisplayName, att.MimeType, att.SizeBytes)
		}
		return
	}

	// Paths may contain spaces; take everything after the command word.
	path := strings.TrimSpace(input[strings.Index(input, " ")+1:])

	att, err := model.NewAttachment(path)
	if err != nil {
		fmt.Println(c.renderer.Error(err))
		return
	}
	c.pending = append(c.pending, att)
	fmt.Println(SuccessStyle.Render("Attached: ") + fmt.Sprintf("%s (%s, %d bytes)", att.DisplayName, att.MimeType, att.SizeBytes))
}

// =============================================================================
// DISPLAY
// =============================================================================

func (c *ChatREPL) printWelcome() {
	cfg := c.manager.Current()
	conv := c.orch.Conversation()

	fmt.Println(TitleStyle.Render("palaver " + Version))
	fmt.Println(LabelStyle.Render("Provider") + ValueStyle.Render(cfg.Provider.Name))
	fmt.Println(LabelStyle.Render("Model") + ValueStyle.Render(modelDisplay(cfg)))
	fmt.Println(LabelStyle.Render("Session") + ValueStyle.Render(conv.Title))
	if cfg.Provider.APIKey == "" {
		fmt.Println(WarningStyle.Render("No API key configured. Set PALAVER_API_KEY or edit " + configHint()))
	}
	fmt.Println(MutedStyle.Render("Type a message, or /help for commands."))
	fmt.Println()

	if !conv.IsEmpty() {
		c.printConversation()
	}
}

// modelDisplay names the effective model when none is configured.
func modelDisplay(cfg *config.Config) string {
	if cfg.Provider.Model != "" {
		return cfg.Provider.Model
	}
	if desc, err := provider.Get(cfg.Provider.Name); err == nil {
		return desc.DefaultModel + " (provider default)"
	}
	return "(provider default)"
}

func configHint() string {
	path, err := config.Path()
	if err != nil {
		return "the config file"
	}
	return path
}

func (c *ChatREPL) printHelp() {
	commands := []struct{ cmd, desc string }{
		{"/help, /h", "Show this help"},
		{"/new, /clear", "Start a fresh conversation"},
		{"/sessions, /ls", "List saved conversations"},
		{"/open <n>", "Open a conversation from the list"},
		{"/delete <n>", "Delete a conversation from the list"},
		{"/history", "Show the current conversation"},
		{"/edit <n>", "Edit a message and regenerate from there"},
		{"/attach <path>", "Attach a file to the next message"},
		{"/cancel", "Cancel the in-flight response"},
		{"/status, /s", "Show provider, model, and storage info"},
		{"/quit, /q", "Save and exit"},
	}
	fmt.Println(TitleStyle.Render("Commands"))
	for _, entry := range commands {
		fmt.Printf("  %s %s\n", LabelStyle.Render(entry.cmd), MutedStyle.Render(entry.desc))
	}
	fmt.Println()
}

// printConversation renders the active conversation with message numbers
// usable by /edit.
func (c *ChatREPL) printConversation() {
	conv := c.orch.Conversation()
	if conv.IsEmpty() {
		fmt.Println(MutedStyle.Render("(empty conversation)"))
		return
	}
	fmt.Println(TitleStyle.Render(conv.Title))
	for i, msg := range conv.Messages {
		fmt.Printf("%s %s\n", MutedStyle.Render(fmt.Sprintf("[%d]", i+1)), c.renderer.Message(msg))
	}
}

func (c *ChatREPL) printStatus() {
	cfg := c.manager.Current()
	conv := c.orch.Conversation()

	key := "(not set)"
	if cfg.Provider.APIKey != "" {
		key = util.TruncateRunes(cfg.Provider.APIKey, 11)
	}

	fmt.Println(TitleStyle.Render("Status"))
	fmt.Println(LabelStyle.Render("Provider") + ValueStyle.Render(cfg.Provider.Name))
	fmt.Println(LabelStyle.Render("Model") + ValueStyle.Render(modelDisplay(cfg)))
	fmt.Println(LabelStyle.Render("API key") + ValueStyle.Render(key))
	fmt.Println(LabelStyle.Render("Timeout") + ValueStyle.Render(fmt.Sprintf("%ds", cfg.Request.TimeoutSecs)))
	fmt.Println(LabelStyle.Render("Storage") + ValueStyle.Render(cfg.Storage.Backend))
	fmt.Println(LabelStyle.Render("Session") + ValueStyle.Render(fmt.Sprintf("%s (%d messages)", conv.Title, conv.MessageCount())))
	fmt.Println()
}
