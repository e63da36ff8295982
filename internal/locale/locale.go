// Package locale owns the closed set of display languages and the per-request
// negotiation of which one to render.
package locale

import (
	"context"
	"net/http"
	"time"
)

// Locale is one supported display language.
type Locale struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

const (
	// Default is served when no other signal selects a locale.
	Default = "en"
	// CookieName persists the last resolved locale.
	CookieName = "locale"
	// CookieMaxAge is the lifetime of the persisted preference.
	CookieMaxAge = 365 * 24 * time.Hour
	// HeaderName carries the resolved locale to downstream handlers.
	HeaderName = "X-Locale"
)

var supported = []Locale{
	{Code: "en", Name: "English", Flag: "🇺🇸"},
	{Code: "de", Name: "Deutsch", Flag: "🇩🇪"},
	{Code: "es", Name: "Español", Flag: "🇪🇸"},
	{Code: "ka", Name: "ქართული", Flag: "🇬🇪"},
	{Code: "ru", Name: "Русский", Flag: "🇷🇺"},
	{Code: "tr", Name: "Türkçe", Flag: "🇹🇷"},
}

var byCode = func() map[string]Locale {
	m := make(map[string]Locale, len(supported))
	for _, l := range supported {
		m[l.Code] = l
	}
	return m
}()

// Supported returns the supported locales in display order.
func Supported() []Locale {
	out := make([]Locale, len(supported))
	copy(out, supported)
	return out
}

// Codes returns the supported locale codes in display order.
func Codes() []string {
	codes := make([]string, len(supported))
	for i, l := range supported {
		codes[i] = l.Code
	}
	return codes
}

// Lookup returns the locale for an exact code.
func Lookup(code string) (Locale, bool) {
	l, ok := byCode[code]
	return l, ok
}

// IsSupported reports whether code is an exact member of the supported set.
func IsSupported(code string) bool {
	_, ok := byCode[code]
	return ok
}

// NameOf returns the display name of code, or code itself when unknown.
func NameOf(code string) string {
	if l, ok := byCode[code]; ok {
		return l.Name
	}
	return code
}

type contextKey struct{}

// WithLocale returns a copy of ctx carrying the resolved locale.
func WithLocale(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, contextKey{}, code)
}

// FromContext returns the locale attached by WithLocale.
func FromContext(ctx context.Context) (string, bool) {
	code, ok := ctx.Value(contextKey{}).(string)
	return code, ok && code != ""
}

// SetCookie persists code as the visitor's preference.
func SetCookie(w http.ResponseWriter, code string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    code,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}
