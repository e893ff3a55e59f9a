package types

import (
	"html"
	"regexp"
	"strings"
	"time"
)

// AnonymousName is the display name assigned to connections and authors that
// never declared one, or declared one that sanitizes to nothing.
const AnonymousName = "Anonymous"

// Compiled once at package initialization; names and bodies are stripped of
// markup before they reach storage or the roster.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// SanitizeName trims and strips a declared display name. Blank input is
// corrected to AnonymousName rather than rejected.
func SanitizeName(raw string) string {
	name := strings.TrimSpace(tagPattern.ReplaceAllString(raw, ""))
	if name == "" {
		return AnonymousName
	}
	return name
}

// SanitizeBody strips markup from message text and escapes what remains.
// Applied exactly once, before storage.
func SanitizeBody(raw string) string {
	return html.EscapeString(tagPattern.ReplaceAllString(raw, ""))
}

// ParseTimestamp interprets a client-declared RFC 3339 timestamp, falling
// back to the supplied server clock when the field is absent or malformed.
func ParseTimestamp(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fallback
	}
	return ts
}
