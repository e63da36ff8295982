package chat

import (
	"encoding/json"
	"slices"
)

// Closed theme vocabularies. The first entry of each is the default.
var (
	AccentColors         = []string{"pink", "orange", "green"}
	ColorSchemes         = []string{"light", "dark", "system"}
	ResolvedColorSchemes = []string{"light", "dark"}
)

// Theme is the visitor's current gallery appearance as reported by the client.
type Theme struct {
	Accent              string `json:"accent"`
	ColorScheme         string `json:"colorScheme"`
	ResolvedColorScheme string `json:"resolvedColorScheme"`
}

// DefaultTheme is used for any value the client omits or gets wrong.
func DefaultTheme() Theme {
	return Theme{
		Accent:              AccentColors[0],
		ColorScheme:         ColorSchemes[0],
		ResolvedColorScheme: ResolvedColorSchemes[0],
	}
}

// ParseClientTheme sanitizes a client-supplied theme. Each field outside its
// vocabulary falls back to the default independently; anything that is not
// a JSON object yields DefaultTheme.
func ParseClientTheme(raw json.RawMessage) Theme {
	theme := DefaultTheme()
	var fields map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil || fields == nil {
		return theme
	}
	pick := func(key string, allowed []string, dst *string) {
		if s, ok := fields[key].(string); ok && slices.Contains(allowed, s) {
			*dst = s
		}
	}
	pick("accent", AccentColors, &theme.Accent)
	pick("colorScheme", ColorSchemes, &theme.ColorScheme)
	pick("resolvedColorScheme", ResolvedColorSchemes, &theme.ResolvedColorScheme)
	return theme
}
