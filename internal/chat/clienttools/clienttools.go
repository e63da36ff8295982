// Package clienttools implements the gallery's client-side chat tools:
// theme and language control over locally held state.
package clienttools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/HugeFrog24/nini-artgallery/internal/chat"
	"github.com/HugeFrog24/nini-artgallery/internal/locale"
)

// State is the client's theme and locale.
type State struct {
	mu     sync.RWMutex
	theme  chat.Theme
	locale string
	// systemScheme resolves the "system" color scheme.
	systemScheme string
}

// NewState starts from the default theme in loc, or the default locale when
// loc is unsupported.
func NewState(loc string) *State {
	if !locale.IsSupported(loc) {
		loc = locale.Default
	}
	return &State{theme: chat.DefaultTheme(), locale: loc, systemScheme: "light"}
}

// Theme returns the current theme with its resolved color scheme.
func (s *State) Theme() chat.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.theme
	t.ResolvedColorScheme = s.resolveLocked()
	return t
}

// ThemeJSON is the theme as sent with every chat request.
func (s *State) ThemeJSON() json.RawMessage {
	data, _ := json.Marshal(s.Theme())
	return data
}

// Locale returns the active locale code.
func (s *State) Locale() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locale
}

// SetLocale switches the active locale. Unsupported codes are ignored.
func (s *State) SetLocale(code string) bool {
	if !locale.IsSupported(code) {
		return false
	}
	s.mu.Lock()
	s.locale = code
	s.mu.Unlock()
	return true
}

// SetSystemScheme records the operating system's appearance.
func (s *State) SetSystemScheme(scheme string) {
	if !slices.Contains(chat.ResolvedColorSchemes, scheme) {
		return
	}
	s.mu.Lock()
	s.systemScheme = scheme
	s.mu.Unlock()
}

func (s *State) resolveLocked() string {
	if s.theme.ColorScheme == "system" {
		return s.systemScheme
	}
	return s.theme.ColorScheme
}

// Navigation receives deferred locale changes. *bridge.PendingNavigation
// implements it.
type Navigation interface {
	Set(target string)
}

// Tools holds the handlers bound to one State.
type Tools struct {
	state      *State
	navigation Navigation
}

// New binds handlers to state. setLanguage stashes its target in nav.
func New(state *State, nav Navigation) *Tools {
	return &Tools{state: state, navigation: nav}
}

// Register adds every handler to r.
func (t *Tools) Register(r *chat.Registry) error {
	handlers := map[string]chat.HandlerFunc{
		chat.ToolSetTheme:    t.SetTheme,
		chat.ToolGetTheme:    t.GetTheme,
		chat.ToolSetLanguage: t.SetLanguage,
		chat.ToolGetLanguage: t.GetLanguage,
	}
	for name, h := range handlers {
		if err := r.Register(name, h); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// NewRegistry returns a registry with the gallery declarations and every
// handler of t registered.
func (t *Tools) NewRegistry(logger *slog.Logger) (*chat.Registry, error) {
	r, err := chat.NewRegistry(chat.Declarations(), logger)
	if err != nil {
		return nil, err
	}
	if err := t.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

type setThemeInput struct {
	Accent      string `json:"accent"`
	ColorScheme string `json:"colorScheme"`
}

// SetTheme changes the accent color and/or color scheme.
func (t *Tools) SetTheme(ctx context.Context, input json.RawMessage) (string, error) {
	var in setThemeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("decode setTheme input: %w", err)
	}
	if in.Accent != "" && !slices.Contains(chat.AccentColors, in.Accent) {
		return "", fmt.Errorf("unknown accent %q", in.Accent)
	}
	if in.ColorScheme != "" && !slices.Contains(chat.ColorSchemes, in.ColorScheme) {
		return "", fmt.Errorf("unknown color scheme %q", in.ColorScheme)
	}

	var changes []string
	t.state.mu.Lock()
	if in.Accent != "" {
		t.state.theme.Accent = in.Accent
		changes = append(changes, "accent → "+in.Accent)
	}
	if in.ColorScheme != "" {
		t.state.theme.ColorScheme = in.ColorScheme
		changes = append(changes, "color scheme → "+in.ColorScheme)
	}
	t.state.mu.Unlock()

	if len(changes) == 0 {
		return "No changes — neither accent nor colorScheme was provided.", nil
	}
	return "Theme updated: " + strings.Join(changes, ", ") + ".", nil
}

// GetTheme reports the current theme as JSON.
func (t *Tools) GetTheme(ctx context.Context, _ json.RawMessage) (string, error) {
	data, err := json.Marshal(t.state.Theme())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type setLanguageInput struct {
	Locale string `json:"locale"`
}

// SetLanguage validates the target locale and defers the switch to the
// navigation slot. The active locale changes only when the navigation runs.
func (t *Tools) SetLanguage(ctx context.Context, input json.RawMessage) (string, error) {
	var in setLanguageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("decode setLanguage input: %w", err)
	}
	target := in.Locale
	l, ok := locale.Lookup(target)
	if !ok {
		return fmt.Sprintf("Unsupported locale %q. Supported: %s.", target, strings.Join(locale.Codes(), ", ")), nil
	}
	if target == t.state.Locale() {
		return fmt.Sprintf("Already using %s (%s).", l.Name, target), nil
	}
	if t.navigation != nil {
		t.navigation.Set(target)
	}
	return fmt.Sprintf("Language switched to %s (%s).", l.Name, target), nil
}

// GetLanguage reports the active locale and its native name as JSON.
func (t *Tools) GetLanguage(ctx context.Context, _ json.RawMessage) (string, error) {
	code := t.state.Locale()
	name := locale.NameOf(code)
	data, err := json.Marshal(struct {
		Locale string `json:"locale"`
		Name   string `json:"name"`
	}{code, name})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LocalizedPath swaps the locale prefix of path for code, adding one when
// path has none.
func LocalizedPath(path, code string) string {
	trimmed := strings.TrimPrefix(path, "/")
	seg, rest, _ := strings.Cut(trimmed, "/")
	if locale.IsSupported(seg) {
		trimmed = rest
	}
	if trimmed == "" {
		return "/" + code
	}
	return "/" + code + "/" + trimmed
}
