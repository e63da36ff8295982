// Package bridge runs the client side of the artist chat. It streams model
// turns from the chat endpoint, executes the tool calls the model emits with
// local handlers, and resubmits the conversation once every call in a turn
// has a result.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/HugeFrog24/nini-artgallery/internal/chat"
)

// State is the bridge's position in a conversation turn.
type State string

const (
	StateIdle            State = "idle"
	StateStreaming       State = "streaming"
	StateToolCallPending State = "tool-call-pending"
	StateReady           State = "ready"
	StateError           State = "error"
)

// DefaultMaxRoundTrips bounds automatic resubmissions within one Send.
const DefaultMaxRoundTrips = 8

var (
	// ErrAborted is returned by Send and Retry when the turn was aborted,
	// either through its context, Abort, or a newer Send.
	ErrAborted = errors.New("bridge: turn aborted")
	// ErrNothingToRetry is returned by Retry outside the error state.
	ErrNothingToRetry = errors.New("bridge: nothing to retry")
	// ErrTooManyRoundTrips is returned when the model keeps calling tools.
	ErrTooManyRoundTrips = errors.New("bridge: too many tool round trips")
)

// StreamError is an error part emitted by the chat endpoint.
type StreamError struct {
	Text string
}

func (e *StreamError) Error() string { return e.Text }

// Executor runs one tool call. *chat.Registry implements it.
type Executor interface {
	Execute(ctx context.Context, call chat.ToolCall) chat.ToolResult
}

// ClientState reports what the endpoint needs to know about the client
// with every request.
type ClientState interface {
	Locale() string
	ThemeJSON() json.RawMessage
}

// Bridge drives one conversation. All methods are safe for concurrent use;
// callbacks run on the goroutine that called Send or Retry, never while the
// bridge holds its lock.
type Bridge struct {
	transport Transport
	tools     Executor
	client    ClientState
	logger    *slog.Logger
	maxTrips  int

	onState    func(State)
	onPart     func(chat.Part)
	onReady    func(chat.Message)
	onNavigate func(target string)

	navigation PendingNavigation

	mu         sync.Mutex
	id         string
	messages   []chat.Message
	state      State
	lastErr    error
	generation uint64
	cancel     context.CancelFunc
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClientState attaches locale and theme to every request.
func WithClientState(s ClientState) Option {
	return func(b *Bridge) { b.client = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMaxRoundTrips overrides DefaultMaxRoundTrips.
func WithMaxRoundTrips(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.maxTrips = n
		}
	}
}

// OnStateChange is called on every state transition.
func OnStateChange(fn func(State)) Option {
	return func(b *Bridge) { b.onState = fn }
}

// OnPart is called for every part received, in stream order.
func OnPart(fn func(chat.Part)) Option {
	return func(b *Bridge) { b.onPart = fn }
}

// OnReady is called once per true completion with the final assistant
// message. It never fires for aborted, failed, or tool-call turns.
func OnReady(fn func(chat.Message)) Option {
	return func(b *Bridge) { b.onReady = fn }
}

// OnNavigate receives the pending navigation target after OnReady.
func OnNavigate(fn func(target string)) Option {
	return func(b *Bridge) { b.onNavigate = fn }
}

// New creates a bridge in StateIdle.
func New(transport Transport, tools Executor, opts ...Option) *Bridge {
	b := &Bridge{
		transport: transport,
		tools:     tools,
		logger:    slog.Default(),
		maxTrips:  DefaultMaxRoundTrips,
		id:        uuid.NewString(),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID is the conversation id sent with every request.
func (b *Bridge) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// State returns the current state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the error that moved the bridge to StateError.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Messages returns a copy of the conversation.
func (b *Bridge) Messages() []chat.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneMessages(b.messages)
}

// Navigation is the slot tool handlers use to defer a locale change until
// the turn truly completes.
func (b *Bridge) Navigation() *PendingNavigation {
	return &b.navigation
}

// Send appends a user message and runs the turn until the model answers
// without tool calls. A turn already in flight is aborted first.
func (b *Bridge) Send(ctx context.Context, text string) error {
	ctx, gen := b.begin(ctx)
	b.mu.Lock()
	b.messages = append(b.messages, chat.Message{ID: uuid.NewString(), Role: "user", Content: text})
	b.mu.Unlock()
	return b.run(ctx, gen)
}

// Retry reruns the last turn after a transport or stream error. A partial
// assistant reply from the failed attempt is discarded.
func (b *Bridge) Retry(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateError {
		b.mu.Unlock()
		return ErrNothingToRetry
	}
	if n := len(b.messages); n > 0 && b.messages[n-1].Role == "assistant" && !answered(b.messages[n-1]) {
		b.messages = b.messages[:n-1]
	}
	b.mu.Unlock()

	ctx, gen := b.begin(ctx)
	return b.run(ctx, gen)
}

// Abort cancels the turn in flight, if any. Results that arrive afterwards
// are discarded and no completion callbacks fire.
func (b *Bridge) Abort() {
	b.mu.Lock()
	b.generation++
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	inFlight := b.state == StateStreaming || b.state == StateToolCallPending
	if inFlight {
		b.state = StateIdle
	}
	b.mu.Unlock()
	if inFlight && b.onState != nil {
		b.onState(StateIdle)
	}
}

// Reset aborts any turn and starts a new, empty conversation.
func (b *Bridge) Reset() {
	b.Abort()
	b.navigation.Clear()
	b.mu.Lock()
	b.id = uuid.NewString()
	b.messages = nil
	b.lastErr = nil
	gen := b.generation
	b.mu.Unlock()
	b.setState(gen, StateIdle)
}

func (b *Bridge) begin(ctx context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	b.generation++
	b.cancel = cancel
	b.lastErr = nil
	return ctx, b.generation
}

// live reports whether gen is still the active turn and its context is live.
func (b *Bridge) live(ctx context.Context, gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ctx.Err() == nil && b.generation == gen
}

func (b *Bridge) setState(gen uint64, s State) bool {
	b.mu.Lock()
	if b.generation != gen {
		b.mu.Unlock()
		return false
	}
	changed := b.state != s
	b.state = s
	b.mu.Unlock()
	if changed && b.onState != nil {
		b.onState(s)
	}
	return true
}

func (b *Bridge) run(ctx context.Context, gen uint64) error {
	defer b.finishTurn(gen)

	for trip := 0; ; trip++ {
		if trip >= b.maxTrips {
			return b.fail(gen, ErrTooManyRoundTrips)
		}
		if !b.setState(gen, StateStreaming) {
			return ErrAborted
		}

		msg, barrier, err := b.streamTurn(ctx, gen)
		if !b.live(ctx, gen) {
			return b.aborted(gen)
		}
		if err != nil {
			return b.fail(gen, err)
		}

		if barrier == nil {
			// Plain text: the only true completion.
			if !b.setState(gen, StateReady) {
				return ErrAborted
			}
			b.complete(msg)
			return nil
		}

		select {
		case <-barrier.Done():
		case <-ctx.Done():
			return b.aborted(gen)
		}
		if !b.applyResults(gen, msg.ID, barrier.Results()) {
			return b.aborted(gen)
		}
	}
}

// streamTurn reads one model turn. It returns a nil barrier when the turn
// carried no tool calls. Tool handlers start as soon as their call arrives.
func (b *Bridge) streamTurn(ctx context.Context, gen uint64) (chat.Message, *joinBarrier, error) {
	req := b.request()
	stream, err := b.transport.Stream(ctx, req)
	if err != nil {
		return chat.Message{}, nil, err
	}
	defer stream.Close()

	msg := chat.Message{ID: uuid.NewString(), Role: "assistant"}
	b.appendMessage(gen, msg)

	var barrier *joinBarrier
	for {
		part, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return msg, barrier, fmt.Errorf("read chat stream: %w", err)
		}
		if b.onPart != nil && b.live(ctx, gen) {
			b.onPart(part)
		}

		switch part.Type {
		case chat.PartStart:
			if part.MessageID != "" {
				b.updateMessage(gen, msg.ID, func(m *chat.Message) { m.ID = part.MessageID })
				msg.ID = part.MessageID
			}
		case chat.PartTextDelta:
			msg.Content += part.Delta
			b.updateMessage(gen, msg.ID, func(m *chat.Message) { m.Content += part.Delta })
		case chat.PartToolCall:
			if barrier == nil {
				barrier = newJoinBarrier()
				b.setState(gen, StateToolCallPending)
			}
			call := chat.ToolCall{ID: part.ToolCallID, Name: part.ToolName, Input: part.Input}
			inv := chat.ToolInvocation{ID: call.ID, Name: call.Name, Input: call.Input}
			msg.ToolCalls = append(msg.ToolCalls, inv)
			b.updateMessage(gen, msg.ID, func(m *chat.Message) { m.ToolCalls = append(m.ToolCalls, inv) })
			barrier.Expect(call.ID)
			go b.executeCall(ctx, gen, barrier, call)
		case chat.PartError:
			return msg, barrier, &StreamError{Text: part.ErrorText}
		}
	}
	if barrier != nil {
		barrier.Seal()
	}
	return msg, barrier, nil
}

func (b *Bridge) executeCall(ctx context.Context, gen uint64, barrier *joinBarrier, call chat.ToolCall) {
	result := b.tools.Execute(ctx, call)
	if !b.live(ctx, gen) {
		b.logger.Debug("discarding tool result from aborted turn",
			slog.String("tool", call.Name),
			slog.String("tool_call_id", call.ID))
		return
	}
	barrier.Record(result)
}

// applyResults writes results into the assistant message by call id.
func (b *Bridge) applyResults(gen uint64, msgID string, results []chat.ToolResult) bool {
	byID := make(map[string]chat.ToolResult, len(results))
	for _, r := range results {
		byID[r.CallID] = r
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != gen {
		return false
	}
	for i := len(b.messages) - 1; i >= 0; i-- {
		if b.messages[i].ID != msgID {
			continue
		}
		for j := range b.messages[i].ToolCalls {
			inv := &b.messages[i].ToolCalls[j]
			if r, ok := byID[inv.ID]; ok {
				inv.Output = r.Output
				inv.IsError = r.IsError
			}
		}
		return true
	}
	return false
}

func (b *Bridge) complete(msg chat.Message) {
	if b.onReady != nil {
		b.onReady(msg)
	}
	if target, ok := b.navigation.Take(); ok && b.onNavigate != nil {
		b.onNavigate(target)
	}
}

func (b *Bridge) fail(gen uint64, err error) error {
	b.mu.Lock()
	if b.generation == gen {
		b.lastErr = err
	}
	b.mu.Unlock()
	b.logger.Warn("chat turn failed", slog.String("error", err.Error()))
	b.setState(gen, StateError)
	return err
}

func (b *Bridge) aborted(gen uint64) error {
	b.setState(gen, StateIdle)
	return ErrAborted
}

func (b *Bridge) finishTurn(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation == gen && b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *Bridge) request() chat.Request {
	b.mu.Lock()
	req := chat.Request{ID: b.id, Messages: cloneMessages(b.messages)}
	b.mu.Unlock()
	if b.client != nil {
		req.Locale = b.client.Locale()
		req.CurrentTheme = b.client.ThemeJSON()
	}
	return req
}

func (b *Bridge) appendMessage(gen uint64, msg chat.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation == gen {
		b.messages = append(b.messages, msg)
	}
}

func (b *Bridge) updateMessage(gen uint64, id string, fn func(*chat.Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != gen {
		return
	}
	for i := len(b.messages) - 1; i >= 0; i-- {
		if b.messages[i].ID == id {
			fn(&b.messages[i])
			return
		}
	}
}

// answered reports whether every tool call of m has a result.
func answered(m chat.Message) bool {
	if len(m.ToolCalls) == 0 {
		return false
	}
	for _, tc := range m.ToolCalls {
		if tc.Output == "" && !tc.IsError {
			return false
		}
	}
	return true
}

func cloneMessages(msgs []chat.Message) []chat.Message {
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		m.ToolCalls = slices.Clone(m.ToolCalls)
		out[i] = m
	}
	return out
}
