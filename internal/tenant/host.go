package tenant

import (
	"regexp"
	"strings"
)

var portSuffix = regexp.MustCompile(`:\d+$`)

// NormalizeHost maps a raw Host header value to the key used for directory
// lookups: lowercased, without a trailing :port and without a single trailing
// root dot.
func NormalizeHost(raw string) string {
	host := strings.ToLower(raw)
	host = portSuffix.ReplaceAllString(host, "")
	return strings.TrimSuffix(host, ".")
}
