// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL FUNCTION MANAGEMENT (THREAD-SAFE)
// =============================================================================

// cancelManager manages the active stream's cancel function with mutex
// protection, so cancellation can be requested from any goroutine while
// the streaming goroutine installs and clears it.
type cancelManager struct {
	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

func newCancelManager() *cancelManager {
	return &cancelManager{}
}

// set stores a new cancel function, cancelling any previous one first so
// a superseded stream's context is never leaked.
func (cm *cancelManager) set(fn context.CancelFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc()
	}
	cm.cancelFunc = fn
}

// cancel invokes the stored cancel function and clears it.
// Safe to call multiple times or with no cancel function set.
func (cm *cancelManager) cancel() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc()
		cm.cancelFunc = nil
	}
}
