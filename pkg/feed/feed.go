// Package feed contains the core domain types shared by feed adapters, the
// deduplication resolver and the runner.
package feed

import (
	"time"

	"fourpisky-feeds/pkg/ivorn"
	"fourpisky-feeds/voevent"
)

// ID is a feed-local event identifier. Ids of one feed type sort in the
// chronological order of the underlying detections.
type ID string

// Record is one immutable event record parsed from feed content.
type Record interface {
	// Fields returns a flat view of the record for diagnostics.
	Fields() map[string]string
}

// ByteRange is an inclusive byte range for partial fetches.
type ByteRange struct {
	Start int64
	End   int64
}

// Identity is the per-feed-type contract implemented by every adapter.
type Identity interface {
	Name() string
	URL() string
	Substream() string
	// HashRange returns the byte range digested for change detection,
	// or nil to digest the full body.
	HashRange() *ByteRange
	Parse(content []byte) ([]Record, error)
	FeedID(rec Record) (ID, error)
	DuplicatePrefixes(id ID) []string
	BuildEvent(rec Record, id ID, now time.Time) (*voevent.VOEvent, error)
}

// IVORN returns the namespaced identifier for id within f's substream.
func IVORN(f Identity, id ID) string {
	return ivorn.New(f.Substream(), string(id))
}

// StreamID returns the sanitized local part of the identifier.
func StreamID(id ID) string {
	return ivorn.Sanitize(string(id))
}

// Match classifies a candidate against the event store.
type Match int

// Classification outcomes.
const (
	Absent Match = iota
	ExactMatch
	PrefixMatch
)

func (m Match) String() string {
	switch m {
	case Absent:
		return "absent"
	case ExactMatch:
		return "exact_match"
	case PrefixMatch:
		return "prefix_match"
	default:
		return "unknown"
	}
}

// Event is one outbound packet ready for delivery.
type Event struct {
	Feed   string
	FeedID ID
	IVORN  string
	Packet *voevent.VOEvent
}
