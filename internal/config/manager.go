// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of filesystem events a single editor
// save produces into one reload.
const reloadDebounce = 250 * time.Millisecond

// =============================================================================
// MANAGER
// =============================================================================

// Manager holds the current configuration behind a read lock and serves
// the orchestrator's read contract. Watch replaces the held config when
// the file changes on disk, so credential or model changes apply to the
// next send without a restart.
type Manager struct {
	mu   sync.RWMutex
	cfg  *Config
	path string

	watcher  *fsnotify.Watcher
	onReload func(*Config)
	done     chan struct{}
}

// NewManager loads the config at path and wraps it.
func NewManager(path string) (*Manager, error) {
	cfg, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, path: path}, nil
}

// NewManagerWith wraps an already-loaded config. Watch is unavailable.
func NewManagerWith(cfg *Config) *Manager {
	return &Manager{cfg: cfg}
}

// Current returns the held configuration.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Replace swaps in a new configuration.
func (m *Manager) Replace(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// OnReload registers a callback invoked after each successful hot reload.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	m.onReload = fn
	m.mu.Unlock()
}

// =============================================================================
// READ CONTRACT
// =============================================================================

// Credential returns the configured API key, or empty.
func (m *Manager) Credential() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Provider.APIKey
}

// SelectedProvider returns the configured provider ID.
func (m *Manager) SelectedProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Provider.Name
}

// ModelName returns the configured model, or empty for the provider
// default.
func (m *Manager) ModelName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Provider.Model
}

// RequestTimeout returns the request timeout as a duration.
func (m *Manager) RequestTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.cfg.Request.TimeoutSecs) * time.Second
}

// Temperature returns the sampling temperature.
func (m *Manager) Temperature() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Request.Temperature
}

// MaxTokens returns the completion token cap.
func (m *Manager) MaxTokens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Request.MaxTokens
}

// =============================================================================
// FILE WATCHING
// =============================================================================

// Watch starts hot-reloading the config file. The parent directory is
// watched, not the file itself: editors and atomic writers replace the
// file by rename, which drops a direct file watch.
func (m *Manager) Watch() error {
	if m.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}

	m.mu.Lock()
	m.watcher = watcher
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.watchLoop(watcher)
	return nil
}

// Close stops the watcher, if running.
func (m *Manager) Close() error {
	m.mu.Lock()
	watcher := m.watcher
	done := m.done
	m.watcher = nil
	m.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	if done != nil {
		<-done
	}
	return err
}

func (m *Manager) watchLoop(watcher *fsnotify.Watcher) {
	defer close(m.done)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	target := filepath.Clean(m.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			m.reload()

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// reload re-reads the file; a config that fails to parse leaves the
// previous one in place.
func (m *Manager) reload() {
	cfg, err := LoadFromPath(m.path)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.cfg = cfg
	fn := m.onReload
	m.mu.Unlock()

	if fn != nil {
		fn(cfg)
	}
}
