// cli.go - Process entrypoint: flag handling and dependency wiring.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/morganforge/palaver/internal/chat"
	"github.com/morganforge/palaver/internal/config"
	"github.com/morganforge/palaver/internal/storage"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// sessionsDBName is the SQLite database file under the storage directory.
const sessionsDBName = "palaver.db"

// Run parses arguments, wires the client together, and executes the REPL.
// It returns the process exit code.
func Run(args []string) int {
	cfgPath := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version", "-v":
			fmt.Printf("palaver %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
			return 0
		case "--help", "-h":
			printUsage()
			return 0
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, ErrorStyle.Render("--config requires a path"))
				return 2
			}
			i++
			cfgPath = args[i]
		default:
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Unknown argument: "+args[i]))
			printUsage()
			return 2
		}
	}

	if cfgPath == "" {
		path, err := config.Path()
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Cannot locate config: "+err.Error()))
			return 1
		}
		cfgPath = path
	}

	manager, err := config.NewManager(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Cannot load config: "+err.Error()))
		return 1
	}
	defer manager.Close()
	cfg := manager.Current()

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Cannot open log file: "+err.Error()))
		return 1
	}
	defer closeLog()

	// Config edits take effect on the next send without a restart.
	if err := manager.Watch(); err != nil {
		logger.Warn("config watch disabled", "error", err)
	}
	manager.OnReload(func(next *config.Config) {
		logger.Info("config reloaded",
			"provider", next.Provider.Name, "model", next.Provider.Model)
	})

	store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Cannot open session store: "+err.Error()))
		return 1
	}
	defer store.Close()

	orch, err := chat.New(store, manager)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Cannot start: "+err.Error()))
		return 1
	}
	orch.WithSink(chat.NewLogSink(logger))

	repl := NewChatREPL(orch, store, manager, logger)
	defer repl.Close()

	if err := repl.Run(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		return 1
	}
	return 0
}

// newLogger builds the structured logger from config. Logs go to the
// configured file, or to stderr when no file is set.
func newLogger(cfg config.LogConfig) (*log.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeLog := func() {}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closeLog = func() { f.Close() }
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "palaver",
	})
	return logger, closeLog, nil
}

// openStore selects the session store backend from config.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		dir := cfg.Storage.Dir
		if dir == "" {
			base, err := config.Dir()
			if err != nil {
				return nil, err
			}
			dir = base
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		return storage.NewSQLiteStore(filepath.Join(dir, sessionsDBName))
	default:
		dir := cfg.Storage.Dir
		if dir == "" {
			base, err := storage.DefaultSessionsDir()
			if err != nil {
				return nil, err
			}
			dir = base
		}
		return storage.NewFileStore(dir)
	}
}

func printUsage() {
	fmt.Println(TitleStyle.Render("palaver") + " " + MutedStyle.Render("- multi-provider AI chat for the terminal"))
	fmt.Println()
	fmt.Println("Usage: palaver [--config <path>] [--version] [--help]")
	fmt.Println()
	fmt.Println("Starts an interactive chat session. Type /help inside the")
	fmt.Println("session for the available commands.")
}
