package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/HugeFrog24/nini-artgallery/internal/api/openai"
	"github.com/HugeFrog24/nini-artgallery/internal/content"
	"github.com/HugeFrog24/nini-artgallery/internal/locale"
	"github.com/HugeFrog24/nini-artgallery/internal/metrics"
	"github.com/HugeFrog24/nini-artgallery/internal/server"
	"github.com/HugeFrog24/nini-artgallery/internal/storage"
	"github.com/HugeFrog24/nini-artgallery/internal/tenant"
	"github.com/HugeFrog24/nini-artgallery/internal/tokens"
)

// DefaultModel is the OpenRouter model used when none is configured.
const DefaultModel = "openai/gpt-4o-mini"

const maxRequestBytes = 1 << 20

// Client-facing error texts. Upstream details never reach the visitor.
const (
	msgNotConfigured   = "Chat is not configured yet."
	msgUnknownTenant   = "Unknown tenant."
	msgInvalidRequest  = "Invalid request."
	msgUnreachable     = "Unable to reach the AI service. Please try again later."
	msgSomethingFailed = "Something went wrong. Please try again."
)

// Config configures the chat endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxChars is the reply length hint given to the model.
	MaxChars int
	// TokenBudget bounds the prompt; older turns are dropped to fit.
	// Zero disables trimming.
	TokenBudget int
}

// Completer streams chat completions from an OpenAI-compatible API.
type Completer interface {
	StreamChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest) (<-chan openai.StreamResult, error)
}

// API serves POST /api/chat.
type API struct {
	cfg         Config
	completer   Completer
	tenants     *tenant.Resolver
	content     *content.Resolver
	counter     tokens.Counter
	transcripts storage.TranscriptStore
	metrics     metrics.Recorder
	logger      *slog.Logger
	tracer      trace.Tracer
	tools       []openai.Tool
}

// Option configures an API.
type Option func(*API)

// WithCompleter overrides the upstream client.
func WithCompleter(c Completer) Option {
	return func(a *API) { a.completer = c }
}

// WithTranscripts records every exchange to store.
func WithTranscripts(store storage.TranscriptStore) Option {
	return func(a *API) { a.transcripts = store }
}

// WithMetrics sets the recorder for turns.
func WithMetrics(rec metrics.Recorder) Option {
	return func(a *API) {
		if rec != nil {
			a.metrics = rec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAPI creates the chat endpoint.
func NewAPI(cfg Config, tenants *tenant.Resolver, resolver *content.Resolver, opts ...Option) *API {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = MaxReplyChars
	}
	a := &API{
		cfg:     cfg,
		tenants: tenants,
		content: resolver,
		metrics: metrics.Noop{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/HugeFrog24/nini-artgallery/internal/chat"),
		tools:   OpenAITools(Declarations()),
	}
	a.counter = tokens.ForModel(cfg.Model)
	for _, opt := range opts {
		opt(a)
	}
	if a.completer == nil && cfg.APIKey != "" {
		a.completer = openai.NewClient(cfg.APIKey, openai.WithBaseURL(cfg.BaseURL))
	}
	return a
}

// Configured reports whether an upstream is available.
func (a *API) Configured() bool {
	return a.completer != nil
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !a.Configured() {
		a.logger.Warn("chat API key is not set; chat disabled")
		writeError(w, http.StatusServiceUnavailable, msgNotConfigured)
		return
	}

	tenantID, err := a.tenants.ResolveFromRequest(r)
	if err != nil {
		server.AddError(ctx, err)
		if errors.Is(err, tenant.ErrUnresolved) {
			writeError(w, http.StatusNotFound, msgUnknownTenant)
			return
		}
		writeError(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
		return
	}

	var req Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		server.AddError(ctx, err)
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	loc := req.Locale
	if !locale.IsSupported(loc) {
		loc = locale.Default
	}
	theme := ParseClientTheme(req.CurrentTheme)
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	server.AddLogField(ctx, "conversation_id", req.ID)

	ctx, span := a.tracer.Start(ctx, "chat.Turn", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("locale", loc),
		attribute.String("model", a.cfg.Model),
	))
	defer span.End()

	system, err := a.systemPrompt(ctx, tenantID, loc, theme)
	if err != nil {
		a.fail(ctx, w, err)
		return
	}

	upstream := &openai.ChatCompletionRequest{
		Model:    a.cfg.Model,
		Messages: append([]openai.ChatCompletionMessage{{Role: openai.RoleSystem, Content: system}}, ToOpenAIMessages(req.Messages)...),
		Tools:    a.tools,
	}
	if dropped, err := tokens.TrimHistory(a.counter, upstream, a.cfg.TokenBudget); err != nil {
		a.logger.Warn("token count failed", slog.String("error", err.Error()))
	} else if dropped > 0 {
		server.AddLogField(ctx, "history_dropped", strconv.Itoa(dropped))
	}

	stream, err := a.completer.StreamChatCompletion(ctx, upstream)
	if err != nil {
		span.RecordError(err)
		a.fail(ctx, w, err)
		return
	}

	turn := a.relay(ctx, NewPartWriter(w), stream)
	a.metrics.IncChatTurn(turn.outcome)
	for _, call := range turn.calls {
		a.metrics.IncToolCall(call.Function.Name, "requested")
	}
	a.record(ctx, tenantID, loc, req, turn)
}

func (a *API) systemPrompt(ctx context.Context, tenantID, loc string, theme Theme) (string, error) {
	var (
		artist  content.ArtistProfile
		catalog []content.CategorySection
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		artist, err = a.content.Artist(gctx, tenantID, loc)
		return err
	})
	g.Go(func() error {
		var err error
		// The prompt tolerates gaps in a translation table.
		catalog, err = a.content.Catalog(gctx, tenantID, loc, content.UseKeyOnMissing)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	return SystemPrompt(PromptInput{
		Artist:   artist,
		Catalog:  catalog,
		Theme:    theme,
		Locale:   loc,
		MaxChars: a.cfg.MaxChars,
	}), nil
}

// fail answers a turn that failed before streaming started.
func (a *API) fail(ctx context.Context, w http.ResponseWriter, err error) {
	a.logger.Error("chat request failed", slog.String("error", err.Error()))
	server.AddError(ctx, err)
	a.metrics.IncChatTurn("error")
	writeError(w, http.StatusBadGateway, sanitize(err))
}

func sanitize(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.IsAuthentication() {
		return msgUnreachable
	}
	if strings.Contains(err.Error(), "authenticate") {
		return msgUnreachable
	}
	return msgSomethingFailed
}

type turnResult struct {
	messageID string
	text      strings.Builder
	calls     []openai.ToolCall
	outcome   string
}

// relay converts upstream chunks to parts. Tool-call fragments are joined
// by index and emitted whole after the upstream stream ends.
func (a *API) relay(ctx context.Context, pw *PartWriter, stream <-chan openai.StreamResult) *turnResult {
	turn := &turnResult{messageID: uuid.NewString(), outcome: "ok"}
	pw.Write(Part{Type: PartStart, MessageID: turn.messageID})

	type pending struct {
		id, name string
		args     strings.Builder
	}
	byIndex := map[int]*pending{}
	finish := FinishStop

	for res := range stream {
		if res.Err != nil {
			a.logger.Error("chat stream error", slog.String("error", res.Err.Error()))
			server.AddError(ctx, res.Err)
			turn.outcome = "error"
			pw.Write(Part{Type: PartError, ErrorText: sanitize(res.Err)})
			pw.Done()
			return turn
		}
		for _, choice := range res.Chunk.Choices {
			if choice.Delta.Content != "" {
				turn.text.WriteString(choice.Delta.Content)
				pw.Write(Part{Type: PartTextDelta, Delta: choice.Delta.Content})
			}
			for _, tc := range choice.Delta.ToolCalls {
				p, ok := byIndex[tc.Index]
				if !ok {
					p = &pending{}
					byIndex[tc.Index] = p
				}
				if tc.ID != "" {
					p.id = tc.ID
				}
				if tc.Function != nil {
					if tc.Function.Name != "" {
						p.name = tc.Function.Name
					}
					p.args.WriteString(tc.Function.Arguments)
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason == "length" {
				finish = FinishLength
			}
		}
	}
	if ctx.Err() != nil {
		turn.outcome = "aborted"
		return turn
	}

	indexes := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		p := byIndex[i]
		if p.id == "" {
			p.id = "call_" + uuid.NewString()
		}
		input := json.RawMessage(p.args.String())
		if len(input) == 0 || !json.Valid(input) {
			a.logger.Warn("model sent malformed tool arguments", slog.String("tool", p.name))
			input = json.RawMessage(`{}`)
		}
		turn.calls = append(turn.calls, openai.ToolCall{
			ID:       p.id,
			Type:     "function",
			Function: openai.FunctionCall{Name: p.name, Arguments: string(input)},
		})
		pw.Write(Part{Type: PartToolCall, ToolCallID: p.id, ToolName: p.name, Input: input})
	}
	if len(turn.calls) > 0 {
		finish = FinishToolCalls
	}
	pw.Write(Part{Type: PartFinish, FinishReason: finish})
	pw.Done()
	return turn
}

// record appends the visitor's newest message and the assistant's reply to
// the transcript. Failures are logged; the visitor already has the reply.
func (a *API) record(ctx context.Context, tenantID, loc string, req Request, turn *turnResult) {
	if a.transcripts == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	logErr := func(err error) {
		a.logger.Warn("transcript write failed",
			slog.String("conversation_id", req.ID),
			slog.String("error", err.Error()))
	}

	if err := a.transcripts.EnsureConversation(ctx, &storage.Conversation{ID: req.ID, TenantID: tenantID, Locale: loc}); err != nil {
		logErr(err)
		return
	}

	if n := len(req.Messages); n > 0 {
		last := req.Messages[n-1]
		msg := &storage.StoredMessage{ID: uuid.NewString(), Role: last.Role, Content: last.Content}
		switch {
		case last.Role == openai.RoleUser:
		case last.Role == openai.RoleAssistant && len(last.ToolCalls) > 0:
			// A resubmission: record the client's tool results.
			data, _ := json.Marshal(last.ToolCalls)
			msg.Role = openai.RoleTool
			msg.Content = ""
			msg.ToolCalls = string(data)
		default:
			msg = nil
		}
		if msg != nil {
			if err := a.transcripts.AddMessage(ctx, req.ID, msg); err != nil {
				logErr(err)
			}
		}
	}

	reply := &storage.StoredMessage{ID: turn.messageID, Role: openai.RoleAssistant, Content: turn.text.String()}
	if len(turn.calls) > 0 {
		data, _ := json.Marshal(turn.calls)
		reply.ToolCalls = string(data)
	}
	if reply.Content == "" && reply.ToolCalls == "" {
		return
	}
	if err := a.transcripts.AddMessage(ctx, req.ID, reply); err != nil {
		logErr(err)
	}
}

// ToOpenAIMessages converts client messages to the upstream form. Client
// supplied system messages are dropped. Each answered tool call is followed
// by a tool message carrying its result.
func ToOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case openai.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.RoleUser, Content: m.Content})
		case openai.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.RoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				args := string(tc.Input)
				if args == "" {
					args = "{}"
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: openai.FunctionCall{Name: tc.Name, Arguments: args},
				})
			}
			out = append(out, msg)
			for _, tc := range m.ToolCalls {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.RoleTool,
					ToolCallID: tc.ID,
					Content:    tc.Output,
				})
			}
		}
	}
	return out
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
