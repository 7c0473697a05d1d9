// Package ivorn builds namespaced VOEvent identifiers for the 4 Pi Sky bot.
package ivorn

import "strings"

// BaseDomain is the authority for every identifier the bot publishes.
const BaseDomain = "voevent.4pisky.org"

// StreamPrefix returns "ivo://<base>/<substream>#".
func StreamPrefix(substream string) string {
	return "ivo://" + BaseDomain + "/" + substream + "#"
}

// AuthorIVORN identifies the bot itself in the Who section of a packet.
func AuthorIVORN() string {
	return "ivo://" + BaseDomain + "/robots"
}

// New joins a substream and a raw feed id into a full identifier.
func New(substream, feedID string) string {
	return StreamPrefix(substream) + Sanitize(feedID)
}

// Sanitize maps a feed id onto the characters allowed in the local part of an
// IVORN: letters, digits and "_-:.+". Path and fragment separators and spaces
// become "_", everything else is dropped, and the result never starts with ".".
func Sanitize(id string) string {
	id = strings.TrimPrefix(id, ".")

	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r == '/' || r == '\\' || r == '#' || r == ' ':
			b.WriteByte('_')
		case allowed(r):
			b.WriteRune(r)
		}
	}
	// Filtering can expose a dot that used to sit behind a dropped character.
	return strings.TrimLeft(b.String(), ".")
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-' || r == ':' || r == '.' || r == '+':
		return true
	}
	return false
}

// Valid reports whether s could have been produced by Sanitize.
func Valid(s string) bool {
	if strings.HasPrefix(s, ".") {
		return false
	}
	for _, r := range s {
		if !allowed(r) {
			return false
		}
	}
	return true
}
