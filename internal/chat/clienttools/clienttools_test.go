package clienttools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/HugeFrog24/nini-artgallery/internal/chat"
)

type slot struct {
	target string
	set    bool
}

func (s *slot) Set(target string) { s.target, s.set = target, true }

func call(t *testing.T, h chat.HandlerFunc, input string) string {
	t.Helper()
	out, err := h(context.Background(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("handler(%s) error = %v", input, err)
	}
	return out
}

func TestSetTheme(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		theme chat.Theme
	}{
		{"accent only", `{"accent":"orange"}`, "Theme updated: accent → orange.",
			chat.Theme{Accent: "orange", ColorScheme: "light", ResolvedColorScheme: "light"}},
		{"both", `{"accent":"green","colorScheme":"dark"}`, "Theme updated: accent → green, color scheme → dark.",
			chat.Theme{Accent: "green", ColorScheme: "dark", ResolvedColorScheme: "dark"}},
		{"system scheme", `{"colorScheme":"system"}`, "Theme updated: color scheme → system.",
			chat.Theme{Accent: "pink", ColorScheme: "system", ResolvedColorScheme: "light"}},
		{"nothing", `{}`, "No changes — neither accent nor colorScheme was provided.", chat.DefaultTheme()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState("en")
			tools := New(state, nil)
			if got := call(t, tools.SetTheme, tt.input); got != tt.want {
				t.Errorf("SetTheme() = %q, want %q", got, tt.want)
			}
			if got := state.Theme(); got != tt.theme {
				t.Errorf("Theme() = %+v, want %+v", got, tt.theme)
			}
		})
	}
}

func TestSetTheme_RejectsUnknownValues(t *testing.T) {
	tools := New(NewState("en"), nil)
	if _, err := tools.SetTheme(context.Background(), json.RawMessage(`{"accent":"purple"}`)); err == nil {
		t.Error("SetTheme(purple) error = nil")
	}
}

func TestGetTheme(t *testing.T) {
	state := NewState("en")
	state.SetSystemScheme("dark")
	tools := New(state, nil)
	call(t, tools.SetTheme, `{"accent":"green","colorScheme":"system"}`)

	got := call(t, tools.GetTheme, `{}`)
	if want := `{"accent":"green","colorScheme":"system","resolvedColorScheme":"dark"}`; got != want {
		t.Errorf("GetTheme() = %s, want %s", got, want)
	}
}

func TestSetLanguage(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		want       string
		wantTarget string
	}{
		{"switch", `{"locale":"de"}`, "Language switched to Deutsch (de).", "de"},
		{"already active", `{"locale":"en"}`, "Already using English (en).", ""},
		{"unsupported", `{"locale":"xx"}`, `Unsupported locale "xx". Supported: en, de, es, ka, ru, tr.`, ""},
		{"missing", `{}`, `Unsupported locale "". Supported: en, de, es, ka, ru, tr.`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState("en")
			nav := &slot{}
			tools := New(state, nav)
			if got := call(t, tools.SetLanguage, tt.input); got != tt.want {
				t.Errorf("SetLanguage() = %q, want %q", got, tt.want)
			}
			if nav.set != (tt.wantTarget != "") || nav.target != tt.wantTarget {
				t.Errorf("pending navigation = %q (set %v), want %q", nav.target, nav.set, tt.wantTarget)
			}
			if state.Locale() != "en" {
				t.Errorf("Locale() = %q; the switch must wait for navigation", state.Locale())
			}
		})
	}
}

func TestGetLanguage(t *testing.T) {
	tools := New(NewState("ka"), nil)
	if got, want := call(t, tools.GetLanguage, `{}`), `{"locale":"ka","name":"ქართული"}`; got != want {
		t.Errorf("GetLanguage() = %s, want %s", got, want)
	}
}

func TestNewState(t *testing.T) {
	s := NewState("fr")
	if s.Locale() != "en" {
		t.Errorf("NewState(fr).Locale() = %q, want en", s.Locale())
	}
	if s.SetLocale("xx") || s.Locale() != "en" {
		t.Error("SetLocale(xx) accepted")
	}
	if !s.SetLocale("tr") || s.Locale() != "tr" {
		t.Error("SetLocale(tr) rejected")
	}
}

func TestNewRegistry(t *testing.T) {
	state := NewState("en")
	r, err := New(state, &slot{}).NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	res := r.Execute(context.Background(), chat.ToolCall{ID: "1", Name: chat.ToolSetTheme, Input: json.RawMessage(`{"accent":"orange"}`)})
	if res.IsError || res.Output != "Theme updated: accent → orange." {
		t.Errorf("Execute(setTheme) = %+v", res)
	}
	// The declared enum rejects the value before the handler runs.
	res = r.Execute(context.Background(), chat.ToolCall{ID: "2", Name: chat.ToolSetLanguage, Input: json.RawMessage(`{"locale":"xx"}`)})
	if !res.IsError || !strings.Contains(res.Output, "Invalid input for setLanguage") {
		t.Errorf("Execute(setLanguage xx) = %+v, want input error result", res)
	}
}

func TestLocalizedPath(t *testing.T) {
	tests := []struct {
		path, code, want string
	}{
		{"/en/artwork/crane", "de", "/de/artwork/crane"},
		{"/en", "ka", "/ka"},
		{"/", "ru", "/ru"},
		{"/artwork/crane", "tr", "/tr/artwork/crane"},
		{"/es/", "en", "/en"},
	}
	for _, tt := range tests {
		if got := LocalizedPath(tt.path, tt.code); got != tt.want {
			t.Errorf("LocalizedPath(%q, %q) = %q, want %q", tt.path, tt.code, got, tt.want)
		}
	}
}
