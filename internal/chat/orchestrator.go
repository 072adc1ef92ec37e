// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/morganforge/palaver/internal/api"
	"github.com/morganforge/palaver/internal/model"
	"github.com/morganforge/palaver/internal/provider"
	"github.com/morganforge/palaver/internal/storage"
)

// =============================================================================
// STATE
// =============================================================================

// State is the orchestrator's current mode.
type State int

const (
	// StateIdle accepts sends, edits, and session operations.
	StateIdle State = iota
	// StateStreaming means a response is arriving; a new send supersedes it.
	StateStreaming
	// StateEditing means a message edit is being drafted.
	StateEditing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateEditing:
		return "editing"
	default:
		return "unknown"
	}
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEditing is returned when a send arrives while an edit is drafted.
	ErrEditing = errors.New("an edit is in progress")
	// ErrBusy is returned for edit operations attempted mid-stream.
	ErrBusy = errors.New("a response is still streaming")
	// ErrNotEditing is returned by commit/cancel without a started edit.
	ErrNotEditing = errors.New("no edit in progress")
	// ErrNotEditable is returned when the edit target is not a user message.
	ErrNotEditable = errors.New("only user messages can be edited")
	// ErrMessageNotFound is returned when an edit target does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrEmptyEdit is returned when a committed edit has no content. The
	// history is left untouched and the edit stays open.
	ErrEmptyEdit = errors.New("edited message is empty")
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Config is the read-only settings surface the orchestrator consumes.
type Config interface {
	Credential() string
	SelectedProvider() string
	ModelName() string
	RequestTimeout() time.Duration
	Temperature() float64
	MaxTokens() int
}

// Transport is the slice of the API client the orchestrator drives.
type Transport interface {
	ChatStream(ctx context.Context, req *api.ChatRequest, callback api.StreamCallback) error
}

// TransportFactory resolves a transport per send, so credential, provider,
// and timeout changes take effect without restarting the orchestrator.
type TransportFactory func(desc *provider.Descriptor, credential string, timeout time.Duration) Transport

func defaultTransportFactory(desc *provider.Descriptor, credential string, timeout time.Duration) Transport {
	return api.NewClient(desc, credential).WithTimeout(timeout)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// EditDraft is the in-progress edit, if any.
type EditDraft struct {
	TargetID string
	Draft    string
}

// Snapshot is an immutable view of orchestrator state. The conversation is
// a deep copy; holders can read it freely while streaming continues.
type Snapshot struct {
	State        State
	Conversation *model.Conversation
	Editing      *EditDraft
	Err          error
}

// snapshotBuffer bounds each subscriber channel. A slow subscriber loses
// intermediate delta snapshots, never the final one (publish after the
// terminal transition always follows).
const snapshotBuffer = 128

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns the active conversation and serializes every mutation
// of it behind one mutex.
type Orchestrator struct {
	mu    sync.Mutex
	state State
	conv  *model.Conversation

	store storage.Store
	cfg   Config
	dial  TransportFactory
	sink  EventSink

	cancelMgr *cancelManager

	// generation invalidates superseded streams: a delta or terminal event
	// carrying a stale generation is dropped without touching state.
	generation uint64

	editing *EditDraft
	lastErr error

	subs      map[int]chan Snapshot
	nextSubID int
}

// New creates an orchestrator bound to a store and config surface. The
// store's active conversation is resumed; if none exists a fresh one is
// created, so the orchestrator always starts with a working conversation.
func New(store storage.Store, cfg Config) (*Orchestrator, error) {
	conv, err := store.GetActive()
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv, err = store.Create("")
		if err != nil {
			return nil, err
		}
	}

	return &Orchestrator{
		state:     StateIdle,
		conv:      conv,
		store:     store,
		cfg:       cfg,
		dial:      defaultTransportFactory,
		sink:      NopSink{},
		cancelMgr: newCancelManager(),
		subs:      make(map[int]chan Snapshot),
	}, nil
}

// WithSink installs an event sink.
func (o *Orchestrator) WithSink(sink EventSink) *Orchestrator {
	o.sink = sink
	return o
}

// WithTransportFactory overrides how transports are resolved.
func (o *Orchestrator) WithTransportFactory(dial TransportFactory) *Orchestrator {
	o.dial = dial
	return o
}

// =============================================================================
// READ ACCESS
// =============================================================================

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the most recent operation error, or nil.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Conversation returns a deep copy of the working conversation.
func (o *Orchestrator) Conversation() *model.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conv.Clone()
}

// Subscribe registers a snapshot channel. The current state is delivered
// immediately; the returned function unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSubID
	o.nextSubID++
	ch := make(chan Snapshot, snapshotBuffer)
	o.subs[id] = ch
	ch <- o.snapshotLocked()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        o.state,
		Conversation: o.conv.Clone(),
		Err:          o.lastErr,
	}
	if o.editing != nil {
		draft := *o.editing
		snap.Editing = &draft
	}
	return snap
}

// publishLocked fans the current snapshot out to subscribers. Sends never
// block: a subscriber whose buffer is full misses this snapshot.
func (o *Orchestrator) publishLocked() {
	if len(o.subs) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// =============================================================================
// SENDING
// =============================================================================

// Send appends a user message and streams the assistant's reply. Sending
// while a stream is active supersedes it: the prior stream is canceled and
// its remaining deltas are discarded. Empty text with no attachments is a
// no-op.
func (o *Orchestrator) Send(text string, attachments ...*model.Attachment) error {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateEditing {
		return ErrEditing
	}
	return o.sendLocked(model.NewUserMessage(text, attachments...))
}

// sendLocked runs the shared dispatch path for Send and CommitEdit. The
// user message is appended optimistically before any validation: it stays
// in the transcript even when the send fails.
func (o *Orchestrator) sendLocked(userMsg *model.Message) error {
	// Supersede any in-flight stream before mutating history.
	o.generation++
	o.cancelMgr.cancel()

	o.conv.AddMessage(userMsg)

	credential := o.cfg.Credential()
	if credential == "" {
		o.state = StateIdle
		o.lastErr = api.ErrNotConfigured
		o.publishLocked()
		return api.ErrNotConfigured
	}

	desc, err := provider.Get(o.cfg.SelectedProvider())
	if err != nil {
		desc = provider.Default()
	}

	modelName := o.cfg.ModelName()
	if modelName == "" {
		modelName = desc.DefaultModel
	} else if err := desc.ValidateModel(modelName); err != nil {
		o.sink.ModelFallback(modelName, desc.DefaultModel)
		modelName = desc.DefaultModel
	}

	// Build the request from a deep-copied history snapshot, before the
	// placeholder exists, so lazy attachment reads cannot race with later
	// mutations of the working list.
	history := model.BuildHistory(model.CloneMessages(o.conv.Messages))

	placeholder := model.NewAssistantMessage()
	o.conv.AddMessage(placeholder)

	o.state = StateStreaming
	gen := o.generation

	ctx, cancel := context.WithCancel(context.Background())
	o.cancelMgr.set(cancel)

	transport := o.dial(desc, credential, o.cfg.RequestTimeout())
	req := api.NewChatRequest(modelName, history)
	req.Temperature = o.cfg.Temperature()
	req.MaxTokens = o.cfg.MaxTokens()

	o.sink.SendStart(o.conv.ID, modelName)
	o.publishLocked()

	go o.stream(ctx, transport, req, gen, placeholder.ID)
	return nil
}

// stream consumes one response on its own goroutine. Every state mutation
// re-checks the generation so a superseded stream can never touch the
// transcript.
func (o *Orchestrator) stream(ctx context.Context, transport Transport, req *api.ChatRequest, gen uint64, placeholderID string) {
	err := transport.ChatStream(ctx, req, func(ev api.StreamEvent) {
		if ev.DeltaText == "" {
			return
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.generation != gen {
			return
		}
		if msg := o.messageByIDLocked(placeholderID); msg != nil {
			msg.Content += ev.DeltaText
		}
		o.publishLocked()
	})

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.generation != gen {
		// Superseded or canceled; the winner already settled state.
		return
	}

	o.state = StateIdle
	o.cancelMgr.cancel()

	switch {
	case err == nil:
		o.lastErr = nil
		o.conv.RefreshTitle()
		o.autosaveLocked()
		chars := 0
		if msg := o.messageByIDLocked(placeholderID); msg != nil {
			chars = len(msg.Content)
		}
		o.sink.StreamDone(o.conv.ID, chars)
	case errors.Is(err, context.Canceled):
		o.sink.StreamCanceled(o.conv.ID)
	default:
		// Partial content stays in place; only the error is recorded.
		o.lastErr = err
		o.sink.StreamError(o.conv.ID, err)
	}

	o.publishLocked()
}

// CancelStream aborts the in-flight stream, if any. The partially-filled
// assistant message is retained.
func (o *Orchestrator) CancelStream() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateStreaming {
		return
	}
	o.generation++
	o.cancelMgr.cancel()
	o.state = StateIdle
	o.sink.StreamCanceled(o.conv.ID)
	o.publishLocked()
}

// =============================================================================
// EDITING
// =============================================================================

// StartEditing captures an edit draft for the given user message. The
// message list is not mutated until CommitEdit.
func (o *Orchestrator) StartEditing(messageID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateStreaming {
		return ErrBusy
	}

	msg := o.messageByIDLocked(messageID)
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.Role != model.RoleUser {
		return ErrNotEditable
	}

	o.editing = &EditDraft{TargetID: messageID, Draft: msg.Content}
	o.state = StateEditing
	o.publishLocked()
	return nil
}

// CancelEditing discards the draft without touching history.
func (o *Orchestrator) CancelEditing() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateEditing {
		return ErrNotEditing
	}
	o.editing = nil
	o.state = StateIdle
	o.publishLocked()
	return nil
}

// CommitEdit truncates the history at the edited message (the target and
// everything after it are discarded permanently), then dispatches the new
// text exactly like Send on the truncated history. The replacement message
// keeps the target's attachments and carries the edited flag.
func (o *Orchestrator) CommitEdit(newText string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateEditing {
		return ErrNotEditing
	}

	index := o.conv.MessageIndex(o.editing.TargetID)
	if index < 0 {
		o.editing = nil
		o.state = StateIdle
		return ErrMessageNotFound
	}

	target := o.conv.Messages[index]
	if strings.TrimSpace(newText) == "" && len(target.Attachments) == 0 {
		return ErrEmptyEdit
	}

	edited := target.EditedCopy(newText)
	o.conv.TruncateBefore(index)
	o.editing = nil
	o.state = StateIdle

	return o.sendLocked(edited)
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// Clear cancels any in-flight stream and replaces the working state with a
// fresh conversation created through the store.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.cancelMgr.cancel()

	conv, err := o.store.Create("")
	if err != nil {
		return err
	}

	o.conv = conv
	o.state = StateIdle
	o.lastErr = nil
	o.editing = nil
	o.publishLocked()
	return nil
}

// Open activates and loads an existing conversation. Any in-flight stream
// is canceled first.
func (o *Orchestrator) Open(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	conv, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if err := o.store.SetActive(id); err != nil {
		return err
	}

	o.generation++
	o.cancelMgr.cancel()

	o.conv = conv
	o.state = StateIdle
	o.lastErr = nil
	o.editing = nil
	o.publishLocked()
	return nil
}

// AcknowledgeError clears the recorded error.
func (o *Orchestrator) AcknowledgeError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastErr = nil
	o.publishLocked()
}

// =============================================================================
// HELPERS
// =============================================================================

// autosaveLocked persists the working conversation. Failures are reported
// through the sink and never revert in-memory state; the next natural save
// retries implicitly.
func (o *Orchestrator) autosaveLocked() {
	err := o.store.Update(o.conv)
	o.sink.Autosaved(o.conv.ID, err)
}

func (o *Orchestrator) messageByIDLocked(id string) *model.Message {
	index := o.conv.MessageIndex(id)
	if index < 0 {
		return nil
	}
	return o.conv.Messages[index]
}
