package content

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingTranslation is matched by every MissingTranslationError.
var ErrMissingTranslation = errors.New("content: missing translation")

// MissingTranslationError reports a translation key absent for a locale.
type MissingTranslationError struct {
	Locale string
	Key    string
	Source string
}

func (e *MissingTranslationError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("content: missing translation %q for locale %q in %s", e.Key, e.Locale, e.Source)
	}
	return fmt.Sprintf("content: missing translation %q for locale %q", e.Key, e.Locale)
}

func (e *MissingTranslationError) Unwrap() error {
	return ErrMissingTranslation
}

// Messages is a flattened string table: nested JSON objects become dotted
// keys ("Categories.origami.title").
type Messages map[string]string

// ParseMessages flattens a JSON message document. Non-string leaves are
// ignored.
func ParseMessages(data []byte) (Messages, error) {
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}
	out := make(Messages)
	flatten(out, "", tree)
	return out, nil
}

func flatten(out Messages, prefix string, node map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]any:
			flatten(out, key, val)
		}
	}
}

// Lookup returns the string for key. The bool reports presence; callers
// decide whether absence is fatal.
func (m Messages) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Merge copies other into m under prefix.
func (m Messages) Merge(prefix string, other Messages) {
	for k, v := range other {
		if prefix != "" {
			k = prefix + "." + k
		}
		m[k] = v
	}
}
