package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HugeFrog24/nini-artgallery/internal/content"
)

func TestParseClientTheme(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Theme
	}{
		{"empty", ``, DefaultTheme()},
		{"not an object", `"dark"`, DefaultTheme()},
		{"null", `null`, DefaultTheme()},
		{"valid", `{"accent":"green","colorScheme":"system","resolvedColorScheme":"dark"}`,
			Theme{Accent: "green", ColorScheme: "system", ResolvedColorScheme: "dark"}},
		{"per field fallback", `{"accent":"purple","colorScheme":"dark","resolvedColorScheme":"system"}`,
			Theme{Accent: "pink", ColorScheme: "dark", ResolvedColorScheme: "light"}},
		{"wrong types", `{"accent":1,"colorScheme":true}`, DefaultTheme()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseClientTheme(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("ParseClientTheme(%s) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestPartWriterReader(t *testing.T) {
	rec := httptest.NewRecorder()
	pw := NewPartWriter(rec)
	parts := []Part{
		{Type: PartStart, MessageID: "m1"},
		{Type: PartTextDelta, Delta: "Hello"},
		{Type: PartToolCall, ToolCallID: "c1", ToolName: ToolGetTheme, Input: json.RawMessage(`{}`)},
		{Type: PartFinish, FinishReason: FinishToolCalls},
	}
	for _, p := range parts {
		if err := pw.Write(p); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	pw.Done()

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	pr := NewPartReader(rec.Body)
	for i, want := range parts {
		got, err := pr.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if got.Type != want.Type || got.Delta != want.Delta || got.ToolCallID != want.ToolCallID || got.FinishReason != want.FinishReason {
			t.Errorf("Next() #%d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := pr.Next(); err != io.EOF {
		t.Errorf("Next() after [DONE] error = %v, want io.EOF", err)
	}
}

func TestPartReader_Truncated(t *testing.T) {
	pr := NewPartReader(strings.NewReader("data: {\"type\":\"start\"}\n\n"))
	if _, err := pr.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if _, err := pr.Next(); !errors.Is(err, ErrStreamTruncated) {
		t.Errorf("Next() error = %v, want ErrStreamTruncated", err)
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(Declarations(), nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func TestRegistry_Validate(t *testing.T) {
	r := newTestRegistry(t)
	tests := []struct {
		tool    string
		input   string
		wantErr bool
	}{
		{ToolSetTheme, `{"accent":"green"}`, false},
		{ToolSetTheme, `{}`, false},
		{ToolSetTheme, `{"accent":"purple"}`, true},
		{ToolSetTheme, `{"colorScheme":"dark","extra":1}`, false},
		{ToolGetTheme, ``, false},
		{ToolSetLanguage, `{"locale":"de"}`, false},
		{ToolSetLanguage, `{"locale":"fr"}`, true},
		{ToolSetLanguage, `{}`, true},
		{ToolSetLanguage, `not json`, true},
		{"deleteGallery", `{}`, true},
	}
	for _, tt := range tests {
		err := r.Validate(tt.tool, json.RawMessage(tt.input))
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%s, %s) error = %v, wantErr %v", tt.tool, tt.input, err, tt.wantErr)
		}
	}
}

func TestRegistry_Execute(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register("deleteGallery", HandlerFunc(nil)); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Register(undeclared) error = %v, want ErrUnknownTool", err)
	}
	r.Register(ToolGetTheme, HandlerFunc(func(ctx context.Context, input json.RawMessage) (string, error) {
		return `{"accent":"pink"}`, nil
	}))
	r.Register(ToolSetTheme, HandlerFunc(func(ctx context.Context, input json.RawMessage) (string, error) {
		return "", errors.New("storage full")
	}))
	r.Register(ToolGetLanguage, HandlerFunc(func(ctx context.Context, input json.RawMessage) (string, error) {
		panic("boom")
	}))

	tests := []struct {
		name      string
		call      ToolCall
		wantOut   string
		wantError bool
	}{
		{"success", ToolCall{ID: "1", Name: ToolGetTheme}, `{"accent":"pink"}`, false},
		{"handler error", ToolCall{ID: "2", Name: ToolSetTheme, Input: json.RawMessage(`{}`)}, ToolExecutionFailed, true},
		{"handler panic", ToolCall{ID: "3", Name: ToolGetLanguage}, ToolExecutionFailed, true},
		{"no handler", ToolCall{ID: "5", Name: ToolSetLanguage, Input: json.RawMessage(`{"locale":"ka"}`)}, ToolExecutionFailed, true},
		{"unknown tool", ToolCall{ID: "6", Name: "deleteGallery"}, ToolExecutionFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Execute(context.Background(), tt.call)
			if got.CallID != tt.call.ID {
				t.Errorf("CallID = %q, want %q", got.CallID, tt.call.ID)
			}
			if got.Output != tt.wantOut || got.IsError != tt.wantError {
				t.Errorf("Execute() = %+v, want output %q error %v", got, tt.wantOut, tt.wantError)
			}
		})
	}
}

func TestRegistry_ExecuteInvalidInput(t *testing.T) {
	r := newTestRegistry(t)
	called := false
	r.Register(ToolSetLanguage, HandlerFunc(func(ctx context.Context, input json.RawMessage) (string, error) {
		called = true
		return "", nil
	}))

	got := r.Execute(context.Background(), ToolCall{ID: "7", Name: ToolSetLanguage, Input: json.RawMessage(`{"locale":"xx"}`)})
	if called {
		t.Error("handler ran for input outside the declared enum")
	}
	if !got.IsError {
		t.Errorf("Execute() IsError = false, want true")
	}
	for _, want := range []string{"Invalid input for setLanguage", "/locale", "ka", "en"} {
		if !strings.Contains(got.Output, want) {
			t.Errorf("Execute() output = %q, want it to contain %q", got.Output, want)
		}
	}

	var inputErr *InputError
	if err := r.Validate(ToolSetTheme, json.RawMessage(`{"accent":"blue"}`)); !errors.As(err, &inputErr) || inputErr.Tool != ToolSetTheme {
		t.Errorf("Validate(setTheme blue) error = %v, want *InputError", err)
	}
}

func TestOpenAITools(t *testing.T) {
	tools := OpenAITools(Declarations())
	if len(tools) != 4 {
		t.Fatalf("len(tools) = %d, want 4", len(tools))
	}
	for _, tool := range tools {
		if tool.Type != "function" || tool.Function.Name == "" || !json.Valid(tool.Function.Parameters) {
			t.Errorf("tool = %+v", tool)
		}
	}
}

func testCatalog() []content.CategorySection {
	return []content.CategorySection{
		{ID: "origami", Title: "Origami", Artworks: []content.Artwork{
			{ID: "crane", Title: "Crane", Medium: "Paper", Dimensions: "10x10", Year: 2021},
			{ID: "frog", Title: "Frog", Medium: "Paper", Dimensions: "5x5", Year: 2019},
		}},
		{ID: "painting", Title: "Painting", Artworks: []content.Artwork{
			{ID: "sunset", Title: "Sunset", Medium: "Oil", Dimensions: "40x60", Year: 2021},
		}},
	}
}

func TestCompactCatalog(t *testing.T) {
	got := CompactCatalog(testCatalog())
	want := `Origami: "Crane" (Paper, 10x10, 2021); "Frog" (Paper, 5x5, 2019)` + "\n" +
		`Painting: "Sunset" (Oil, 40x60, 2021)`
	if got != want {
		t.Errorf("CompactCatalog() =\n%s\nwant\n%s", got, want)
	}
}

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt(PromptInput{
		Artist:  content.ArtistProfile{Name: "Nini", Description: "Paper folder"},
		Catalog: testCatalog(),
		Theme:   Theme{Accent: "green", ColorScheme: "system", ResolvedColorScheme: "dark"},
		Locale:  "de",
	})
	for _, want := range []string{
		"You ARE Nini",
		"introduce yourself by name (Nini)",
		"About you: Paper folder",
		`"Crane" (Paper, 10x10, 2021)`,
		`"green" accent color and "dark" appearance (user preference: "system")`,
		"pink, orange, green",
		"en, de, es, ka, ru, tr",
		"256 characters",
		"(Deutsch)",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("SystemPrompt() missing %q", want)
		}
	}

	unknown := SystemPrompt(PromptInput{Locale: "xx", MaxChars: 100})
	if !strings.Contains(unknown, "(English)") || !strings.Contains(unknown, "100 characters") {
		t.Errorf("SystemPrompt(unknown locale) = %s", unknown)
	}
}
