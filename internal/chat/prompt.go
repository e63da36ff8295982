package chat

import (
	"fmt"
	"strings"

	"github.com/HugeFrog24/nini-artgallery/internal/content"
	"github.com/HugeFrog24/nini-artgallery/internal/locale"
)

// MaxReplyChars is the reply length the model is told the chat window can
// display. It is a hint, not a truncation.
const MaxReplyChars = 256

// PromptInput carries everything the system prompt is built from.
type PromptInput struct {
	Artist   content.ArtistProfile
	Catalog  []content.CategorySection
	Theme    Theme
	Locale   string
	MaxChars int
}

// CompactCatalog renders one line per section:
//
//	Origami: "Crane" (Paper, 10x10, 2021); "Frog" (Paper, 5x5, 2019)
func CompactCatalog(sections []content.CategorySection) string {
	lines := make([]string, 0, len(sections))
	for _, s := range sections {
		works := make([]string, 0, len(s.Artworks))
		for _, a := range s.Artworks {
			works = append(works, fmt.Sprintf("%q (%s, %s, %d)", a.Title, a.Medium, a.Dimensions, a.Year))
		}
		lines = append(lines, s.Title+": "+strings.Join(works, "; "))
	}
	return strings.Join(lines, "\n")
}

// SystemPrompt builds the artist persona prompt.
func SystemPrompt(in PromptInput) string {
	maxChars := in.MaxChars
	if maxChars <= 0 {
		maxChars = MaxReplyChars
	}
	languageName := "English"
	if l, ok := locale.Lookup(in.Locale); ok {
		languageName = l.Name
	}
	name := in.Artist.Name

	var b strings.Builder
	fmt.Fprintf(&b, "You ARE %s, the artist whose gallery the visitor is browsing. ", name)
	b.WriteString("Always speak in first person. When greeting a visitor or starting a conversation, ")
	fmt.Fprintf(&b, "introduce yourself by name (%s) so they know who they're talking to.\n\n", name)
	fmt.Fprintf(&b, "About you: %s\n\n", in.Artist.Description)
	fmt.Fprintf(&b, "Your gallery catalog:\n%s\n\n", CompactCatalog(in.Catalog))
	b.WriteString("Use this catalog when visitors ask about your artworks. " +
		"Share your passion for art, your creative process, techniques, " +
		"and the stories behind your pieces. Keep responses concise and warm. " +
		"If asked about something unrelated to art, gently steer the " +
		"conversation back to your art.\n\n")
	fmt.Fprintf(&b, "The gallery currently uses the %q accent color and %q appearance (user preference: %q).\n\n",
		in.Theme.Accent, in.Theme.ResolvedColorScheme, in.Theme.ColorScheme)
	fmt.Fprintf(&b, "You have a `%s` tool that can change the gallery's accent color (%s) and color scheme (%s). ",
		ToolSetTheme, strings.Join(AccentColors, ", "), strings.Join(ColorSchemes, ", "))
	b.WriteString("Use it when the visitor asks to change the appearance. " +
		"After calling the tool, confirm the change briefly. ")
	fmt.Fprintf(&b, "You also have a `%s` tool that returns the current theme state; "+
		"call it to verify the theme after making changes.\n\n", ToolGetTheme)
	fmt.Fprintf(&b, "You have a `%s` tool that can switch the gallery's display language (%s). ",
		ToolSetLanguage, strings.Join(locale.Codes(), ", "))
	b.WriteString("Use it when the visitor asks to change language. " +
		"After calling the tool, confirm the change briefly. ")
	fmt.Fprintf(&b, "You also have a `%s` tool that returns the current locale; "+
		"call it to check before suggesting or confirming changes.\n\n", ToolGetLanguage)
	fmt.Fprintf(&b, "The chat interface is very small and can only display %d characters per message. ", maxChars)
	b.WriteString("Keep every reply within that limit. Be concise and conversational.\n\n")
	fmt.Fprintf(&b, "Always respond in the user's language (%s).", languageName)
	return b.String()
}
