package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/HugeFrog24/nini-artgallery/internal/api/openai"
	"github.com/HugeFrog24/nini-artgallery/internal/locale"
)

// Tool names.
const (
	ToolSetTheme    = "setTheme"
	ToolGetTheme    = "getTheme"
	ToolSetLanguage = "setLanguage"
	ToolGetLanguage = "getLanguage"
)

// ToolExecutionFailed is the result text fed back to the model when a
// handler fails. Handler error details are logged, not sent.
const ToolExecutionFailed = "Tool execution failed."

// Declaration describes a tool to the model. The server declares tools but
// never executes them; the client bridge does.
type Declaration struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Declarations returns the client tools offered to the model. Every
// color, scheme and locale input is a closed enum.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name: ToolSetTheme,
			Description: "Change the gallery's visual theme (accent color and/or color scheme). " +
				"Call when the visitor asks to change colors, switch to dark mode, etc.",
			Schema: objectSchema(map[string]any{
				"accent":      enumProperty(AccentColors, "Gallery accent color"),
				"colorScheme": enumProperty(ColorSchemes, "Color scheme / appearance preference"),
			}),
		},
		{
			Name: ToolGetTheme,
			Description: "Return the gallery's current visual theme (accent color and resolved color scheme). " +
				"Call to check the current theme before suggesting or confirming changes.",
			Schema: objectSchema(map[string]any{}),
		},
		{
			Name: ToolSetLanguage,
			Description: "Switch the gallery's display language. The page will navigate to the " +
				"new locale and the chat conversation will be preserved. " +
				"Call when the visitor asks to change language.",
			Schema: objectSchema(map[string]any{
				"locale": enumProperty(locale.Codes(), `Target locale code (e.g. "en", "de", "es")`),
			}, "locale"),
		},
		{
			Name: ToolGetLanguage,
			Description: "Return the gallery's current display language (locale code and name). " +
				"Call to check the current language before suggesting or confirming changes.",
			Schema: objectSchema(map[string]any{}),
		},
	}
}

func enumProperty(values []string, description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"enum":        values,
		"description": description,
	}
}

func objectSchema(properties map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("chat: encode tool schema: %v", err))
	}
	return data
}

// OpenAITools converts declarations to the function-tool wire form.
func OpenAITools(decls []Declaration) []openai.Tool {
	tools := make([]openai.Tool, len(decls))
	for i, d := range decls {
		tools[i] = openai.Tool{
			Type: "function",
			Function: openai.FunctionTool{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Schema,
			},
		}
	}
	return tools
}

// ToolCall is one invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the outcome of a ToolCall, keyed by its call id.
type ToolResult struct {
	CallID  string
	Name    string
	Output  string
	IsError bool
}

// Handler executes one tool on the client.
type Handler interface {
	Call(ctx context.Context, input json.RawMessage) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, input json.RawMessage) (string, error)

func (f HandlerFunc) Call(ctx context.Context, input json.RawMessage) (string, error) {
	return f(ctx, input)
}

// ErrUnknownTool is returned when registering or calling an undeclared tool.
var ErrUnknownTool = errors.New("chat: unknown tool")

// Registry maps declared tool names to handlers and validates each call's
// input against the declared schema before dispatch.
type Registry struct {
	decls    []Declaration
	schemas  map[string]*jsonschema.Schema
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRegistry compiles the schemas of decls.
func NewRegistry(decls []Declaration, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		decls:    slices.Clone(decls),
		schemas:  make(map[string]*jsonschema.Schema, len(decls)),
		handlers: make(map[string]Handler, len(decls)),
		logger:   logger,
	}
	for _, d := range decls {
		id := "inmemory://tools/" + d.Name
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(id, bytes.NewReader(d.Schema)); err != nil {
			return nil, fmt.Errorf("add schema for %s: %w", d.Name, err)
		}
		compiled, err := compiler.Compile(id)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", d.Name, err)
		}
		r.schemas[d.Name] = compiled
	}
	return r, nil
}

// Declarations returns the declarations the registry was built from.
func (r *Registry) Declarations() []Declaration {
	return slices.Clone(r.decls)
}

// Register binds h to a declared tool name.
func (r *Registry) Register(name string, h Handler) error {
	if _, ok := r.schemas[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	r.handlers[name] = h
	return nil
}

// Validate checks input against the schema declared for name.
func (r *Registry) Validate(name string, input json.RawMessage) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage(`{}`)
	}
	var value any
	if err := json.Unmarshal(input, &value); err != nil {
		return fmt.Errorf("decode %s input: %w", name, err)
	}
	if err := schema.Validate(value); err != nil {
		return &InputError{Tool: name, Reason: validationReason(err), Err: err}
	}
	return nil
}

// InputError reports tool input rejected by the declared schema. Reason is
// short enough to hand back to the model.
type InputError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *InputError) Error() string { return e.Tool + " input: " + e.Err.Error() }

func (e *InputError) Unwrap() error { return e.Err }

// validationReason picks the first leaf of a schema validation error.
func validationReason(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return ve.Message
	}
	return ve.InstanceLocation + ": " + ve.Message
}

// Execute runs the handler for call and always returns a result: unknown
// tools, invalid input, handler errors and handler panics become error
// results so one failing tool never aborts the turn.
func (r *Registry) Execute(ctx context.Context, call ToolCall) (result ToolResult) {
	result = ToolResult{CallID: call.ID, Name: call.Name}
	fail := func(err error) ToolResult {
		r.logger.Warn("tool call failed",
			slog.String("tool", call.Name),
			slog.String("tool_call_id", call.ID),
			slog.String("error", err.Error()))
		result.Output = ToolExecutionFailed
		result.IsError = true
		return result
	}

	if err := r.Validate(call.Name, call.Input); err != nil {
		result = fail(err)
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			result.Output = fmt.Sprintf("Invalid input for %s (%s). Call it again with valid arguments.", call.Name, inputErr.Reason)
		}
		return result
	}
	h, ok := r.handlers[call.Name]
	if !ok {
		return fail(fmt.Errorf("%w: no handler for %s", ErrUnknownTool, call.Name))
	}

	defer func() {
		if p := recover(); p != nil {
			result = fail(fmt.Errorf("handler panic: %v", p))
		}
	}()

	input := call.Input
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage(`{}`)
	}
	out, err := h.Call(ctx, input)
	if err != nil {
		return fail(err)
	}
	result.Output = out
	return result
}
