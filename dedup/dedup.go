// Package dedup decides which feed identifiers are new to the event store.
package dedup

import (
	"context"
	"log/slog"
	"sort"

	"fourpisky-feeds/metrics"
	"fourpisky-feeds/pkg/feed"
)

// Store answers identifier queries against the event store.
type Store interface {
	ExistsExact(ctx context.Context, ivorn string) (bool, error)
	ExistsPrefix(ctx context.Context, prefix string) (bool, error)
}

// Resolver classifies feed ids against the event store.
type Resolver struct {
	store  Store
	seen   SeenCache
	logger *slog.Logger
}

// New creates a resolver. A nil seen cache disables caching.
func New(store Store, seen SeenCache, logger *slog.Logger) *Resolver {
	if seen == nil {
		seen = nopCache{}
	}
	return &Resolver{store: store, seen: seen, logger: logger}
}

// Classify checks the exact identifier, then each duplicate prefix.
func (r *Resolver) Classify(ctx context.Context, f feed.Identity, id feed.ID) (feed.Match, error) {
	ivorn := feed.IVORN(f, id)

	seen, err := r.seen.Seen(ctx, ivorn)
	if err != nil {
		// The cache is an optimisation; fall through to the store.
		r.logger.Warn("Seen cache lookup failed", "ivorn", ivorn, "error", err)
	}
	if seen {
		return feed.ExactMatch, nil
	}

	exists, err := r.store.ExistsExact(ctx, ivorn)
	if err != nil {
		return feed.Absent, &feed.StoreError{Op: "exists exact", Err: err}
	}
	if exists {
		if err := r.seen.Remember(ctx, ivorn); err != nil {
			r.logger.Warn("Seen cache update failed", "ivorn", ivorn, "error", err)
		}
		return feed.ExactMatch, nil
	}

	for _, prefix := range f.DuplicatePrefixes(id) {
		if prefix == ivorn {
			continue
		}
		exists, err := r.store.ExistsPrefix(ctx, prefix)
		if err != nil {
			return feed.Absent, &feed.StoreError{Op: "exists prefix", Err: err}
		}
		if exists {
			return feed.PrefixMatch, nil
		}
	}
	return feed.Absent, nil
}

// FindNew returns the ids absent from the store, sorted by sanitized id.
// Prefix matches are suppressed and logged.
func (r *Resolver) FindNew(ctx context.Context, f feed.Identity, ids []feed.ID) ([]feed.ID, error) {
	var fresh []feed.ID
	for _, id := range ids {
		match, err := r.Classify(ctx, f, id)
		if err != nil {
			return nil, err
		}
		switch match {
		case feed.Absent:
			fresh = append(fresh, id)
		case feed.PrefixMatch:
			r.logger.Warn("Possible duplicate prefix detected",
				"feed", f.Name(),
				"feed_id", id,
				"ivorn", feed.IVORN(f, id),
				"prefixes", f.DuplicatePrefixes(id))
			metrics.DuplicatesSuspected.WithLabelValues(f.Name()).Inc()
		case feed.ExactMatch:
		}
	}

	sort.Slice(fresh, func(i, j int) bool {
		return feed.StreamID(fresh[i]) < feed.StreamID(fresh[j])
	})
	r.logger.Debug("Resolved new ids", "feed", f.Name(), "candidates", len(ids), "new", len(fresh))
	return fresh, nil
}
