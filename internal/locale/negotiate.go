package locale

import (
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// Kind classifies a routing decision.
type Kind int

const (
	// Continue serves the request under Decision.Locale without a rewrite.
	Continue Kind = iota
	// Redirect sends the visitor to Decision.Target.
	Redirect
	// NotFound rejects a path whose locale segment is not supported.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Redirect:
		return "redirect"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Decision is the single routing outcome computed for a request.
type Decision struct {
	Kind   Kind
	Locale string
	// Target is the redirect location, including the query string.
	Target string
	// SetCookie asks the caller to persist Locale as the preference.
	SetCookie bool
}

// Input holds the signals consulted during negotiation.
type Input struct {
	Path           string
	RawQuery       string
	Cookie         string
	AcceptLanguage string
}

// localeSegment recognizes a first path segment that claims to be a locale.
var localeSegment = regexp.MustCompile(`^[A-Za-z]{2}$`)

// Negotiator decides the locale for a request. It is safe for concurrent use.
type Negotiator struct {
	codes   []string
	matcher language.Matcher
}

// NewNegotiator builds a negotiator over the supported locale set.
func NewNegotiator() *Negotiator {
	codes := Codes()
	tags := make([]language.Tag, len(codes))
	for i, code := range codes {
		tags[i] = language.Make(code)
	}
	return &Negotiator{
		codes:   codes,
		matcher: language.NewMatcher(tags),
	}
}

// Negotiate runs the decision procedure once.
//
// A supported locale prefix in the path always wins. A two-letter prefix that
// is not supported is NotFound. Without a prefix the preferred locale is the
// cookie, then Accept-Language, then Default, and the visitor is redirected
// to the prefixed path.
func (n *Negotiator) Negotiate(in Input) Decision {
	first, rest := splitFirstSegment(in.Path)

	if localeSegment.MatchString(first) {
		lower := strings.ToLower(first)
		if !IsSupported(lower) {
			return Decision{Kind: NotFound}
		}
		if lower != first {
			return Decision{
				Kind:      Redirect,
				Locale:    lower,
				Target:    withQuery("/"+lower+rest, in.RawQuery),
				SetCookie: in.Cookie != lower,
			}
		}
		return Decision{
			Kind:      Continue,
			Locale:    first,
			SetCookie: in.Cookie != first,
		}
	}

	chosen := n.preferred(in)
	target := "/" + chosen
	if in.Path != "" && in.Path != "/" {
		target += in.Path
	}
	return Decision{
		Kind:      Redirect,
		Locale:    chosen,
		Target:    withQuery(target, in.RawQuery),
		SetCookie: true,
	}
}

// NegotiateRequest is Negotiate over the signals carried by r.
func (n *Negotiator) NegotiateRequest(r *http.Request) Decision {
	in := Input{
		Path:           r.URL.Path,
		RawQuery:       r.URL.RawQuery,
		AcceptLanguage: r.Header.Get("Accept-Language"),
	}
	if c, err := r.Cookie(CookieName); err == nil {
		in.Cookie = c.Value
	}
	return n.Negotiate(in)
}

// MatchAcceptLanguage returns the best supported locale for an
// Accept-Language header. Unmatched or malformed headers report false.
func (n *Negotiator) MatchAcceptLanguage(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, index, confidence := n.matcher.Match(tags...)
	if confidence == language.No || index < 0 || index >= len(n.codes) {
		return "", false
	}
	return n.codes[index], true
}

func (n *Negotiator) preferred(in Input) string {
	if IsSupported(in.Cookie) {
		return in.Cookie
	}
	if code, ok := n.MatchAcceptLanguage(in.AcceptLanguage); ok {
		return code
	}
	return Default
}

// splitFirstSegment splits "/de/artwork/1" into "de" and "/artwork/1".
func splitFirstSegment(path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i], trimmed[i:]
	}
	return trimmed, ""
}

func withQuery(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	return path + "?" + rawQuery
}
