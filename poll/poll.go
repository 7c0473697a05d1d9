// Package poll runs the fetch, hash-check, parse, resolve and dispatch cycle
// for each feed.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"fourpisky-feeds/hashcache"
	"fourpisky-feeds/metrics"
	"fourpisky-feeds/pkg/feed"
)

// State is the position of a feed in its check cycle.
type State int

// Feed cycle states. Unchanged and HashCommitted are terminal.
const (
	Idle State = iota
	ContentFetched
	HashChecked
	Unchanged
	Parsed
	Resolved
	Dispatched
	HashCommitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ContentFetched:
		return "content_fetched"
	case HashChecked:
		return "hash_checked"
	case Unchanged:
		return "unchanged"
	case Parsed:
		return "parsed"
	case Resolved:
		return "resolved"
	case Dispatched:
		return "dispatched"
	case HashCommitted:
		return "hash_committed"
	default:
		return "unknown"
	}
}

// Fetcher retrieves feed content.
type Fetcher interface {
	FetchFull(ctx context.Context, url string) ([]byte, error)
	FetchRange(ctx context.Context, url string, start, end int64) ([]byte, error)
}

// HashChecker detects content changes.
type HashChecker interface {
	Check(ctx context.Context, key string, data []byte) (hashcache.Result, error)
	Commit(ctx context.Context, key, digest string) error
}

// Resolver filters feed ids down to those absent from the event store.
type Resolver interface {
	FindNew(ctx context.Context, f feed.Identity, ids []feed.ID) ([]feed.ID, error)
}

// Sink delivers one outbound event.
type Sink interface {
	Deliver(ctx context.Context, ev *feed.Event) error
}

// Alerter notifies maintainers of failures that need a human.
type Alerter interface {
	SendParseFailure(ctx context.Context, feedName, url string, err error) error
	SendDeliveryFailures(ctx context.Context, feedName string, failures []*feed.DeliveryError) error
}

// Options tunes the monitor.
type Options struct {
	// Pacing is the pause between successive deliveries.
	Pacing time.Duration
	// FetchTimeout bounds each content fetch. Zero means no bound.
	FetchTimeout time.Duration
	// Now stamps outbound packets; defaults to time.Now.
	Now func() time.Time
}

// Report summarises one feed check.
type Report struct {
	Feed      string
	State     State
	New       []feed.ID
	Delivered int
	Failed    []*feed.DeliveryError
	// Skipped counts records that yielded no feed id.
	Skipped int
}

// Monitor handles feed polling logic.
type Monitor struct {
	fetcher  Fetcher
	hashes   HashChecker
	resolver Resolver
	sink     Sink
	alerter  Alerter
	logger   *slog.Logger
	opts     Options
}

// New creates a new poll monitor. alerter may be nil.
func New(fetcher Fetcher, hashes HashChecker, resolver Resolver, sink Sink, alerter Alerter, logger *slog.Logger, opts Options) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		fetcher:  fetcher,
		hashes:   hashes,
		resolver: resolver,
		sink:     sink,
		alerter:  alerter,
		logger:   logger,
		opts:     opts,
	}
}

// CheckAll checks each feed in turn. A failing feed does not stop the
// others; the returned error joins every per-feed failure.
func (m *Monitor) CheckAll(ctx context.Context, feeds []feed.Identity) ([]Report, error) {
	logger := m.logger.With("run_id", uuid.NewString())
	metrics.Cycles.Inc()
	logger.Info("Checking feeds", "count", len(feeds), "timestamp", m.opts.Now().UTC().Format(time.RFC3339))

	var (
		reports []Report
		errs    []error
	)
	for _, f := range feeds {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping feed checks", "error", ctx.Err())
			return reports, errors.Join(append(errs, ctx.Err())...)
		default:
		}

		report, err := m.checkFeed(ctx, logger, f)
		reports = append(reports, report)
		if err != nil {
			logger.Error("Feed check failed", "feed", f.Name(), "state", report.State.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
		}
	}

	var delivered, failed int
	for _, r := range reports {
		delivered += r.Delivered
		failed += len(r.Failed)
	}
	logger.Info("Feed check completed",
		"feeds", len(feeds),
		"failed_feeds", len(errs),
		"delivered", delivered,
		"delivery_failures", failed)
	return reports, errors.Join(errs...)
}

// CheckFeed runs one cycle for a single feed.
func (m *Monitor) CheckFeed(ctx context.Context, f feed.Identity) (Report, error) {
	return m.checkFeed(ctx, m.logger, f)
}

func (m *Monitor) fetch(ctx context.Context, f feed.Identity, byteRange *feed.ByteRange) ([]byte, error) {
	if m.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.FetchTimeout)
		defer cancel()
	}
	if byteRange != nil {
		return m.fetcher.FetchRange(ctx, f.URL(), byteRange.Start, byteRange.End)
	}
	return m.fetcher.FetchFull(ctx, f.URL())
}

func (m *Monitor) checkFeed(ctx context.Context, logger *slog.Logger, f feed.Identity) (Report, error) {
	report := Report{Feed: f.Name(), State: Idle}
	logger = logger.With("feed", f.Name())
	logger.Info("Starting feed check", "url", f.URL())

	// The digest covers either the configured byte range or the whole body.
	hashRange := f.HashRange()
	content, err := m.fetch(ctx, f, hashRange)
	if err != nil {
		metrics.FeedChecks.WithLabelValues(f.Name(), metrics.OutcomeFetchError).Inc()
		return report, err
	}
	report.State = ContentFetched

	digest, err := m.hashes.Check(ctx, f.URL(), content)
	if err != nil {
		metrics.FeedChecks.WithLabelValues(f.Name(), metrics.OutcomeStoreError).Inc()
		return report, err
	}
	report.State = HashChecked

	if !digest.Changed() {
		report.State = Unchanged
		metrics.FeedChecks.WithLabelValues(f.Name(), metrics.OutcomeUnchanged).Inc()
		logger.Info("Feed unchanged", "old_hash", digest.Old, "new_hash", digest.New)
		return report, nil
	}
	logger.Info("Feed changed", "old_hash", digest.Old, "new_hash", digest.New)

	if hashRange != nil {
		if content, err = m.fetch(ctx, f, nil); err != nil {
			metrics.FeedChecks.WithLabelValues(f.Name(), metrics.OutcomeFetchError).Inc()
			return report, err
		}
	}

	records, err := f.Parse(content)
	if err != nil {
		metrics.FeedChecks.WithLabelValues(f.Name(), metrics.OutcomeParseError).Inc()
		logger.Error("Feed content could not be parsed, needs attention", "url", f.URL(), "error", err)
		if m.alerter != nil {
			if alertErr := m.alerter.SendParseFailure(ctx, f.Name(), f.URL(), err); alertErr != nil {
				logger.Error("Failed to send parse failure alert", "error", alertErr)
			}
		}
		return report, err
	}
	report.State = Parsed

	byID := make(map[feed.ID]feed.Record, len(records))
	ids := make([]feed.ID, 0, len(records))
	for _, rec := range records {
		id, err := f.FeedID(rec)
		if err != nil {
			var idErr *feed.IdentityError
			if errors.As(err, &idErr) {
				logger.Warn("Skipping record without a feed id", "reason", idErr.Reason, "fields", idErr.Fields)
			} else {
				logger.Warn("Skipping record without a feed id", "error", err)
			}
			metrics.IdentityFailures.WithLabelValues(f.Name()).Inc()
			report.Skipped++
			continue
		}
		if _, dup := byID[id]; dup {
			logger.Warn("Feed id repeated within one page, keeping the last record", "feed_id", id)
		} else {
			ids = append(ids, id)
		}
		byID[id] = rec
	}
	logger.Debug("Parsed feed", "records", len(records), "ids", len(ids), "skipped", report.Skipped)

	fresh, err := m.resolver.FindNew(ctx, f, ids)
	if err != nil {
		metrics.FeedChecks.WithLabelValues(f.Name(), metrics.OutcomeStoreError).Inc()
		return report, err
	}
	sort.Slice(fresh, func(i, j int) bool { return feed.StreamID(fresh[i]) < feed.StreamID(fresh[j]) })
	report.New = fresh
	report.State = Resolved
	metrics.NewEvents.WithLabelValues(f.Name()).Add(float64(len(fresh)))
	logger.Info("New events found", "count", len(fresh))

	for i, id := range fresh {
		if i > 0 && m.opts.Pacing > 0 {
			if err := sleep(ctx, m.opts.Pacing); err != nil {
				// The hash stays uncommitted so the whole batch is retried.
				logger.Warn("Dispatch interrupted", "delivered", report.Delivered, "remaining", len(fresh)-i, "error", err)
				return report, err
			}
		}
		if derr := m.dispatch(ctx, f, id, byID[id]); derr != nil {
			logger.Error("Event delivery failed", "feed_id", id, "ivorn", derr.IVORN, "error", derr.Err)
			metrics.DeliveryFailures.WithLabelValues(f.Name()).Inc()
			report.Failed = append(report.Failed, derr)
			continue
		}
		report.Delivered++
		metrics.Delivered.WithLabelValues(f.Name()).Inc()
	}
	report.State = Dispatched

	if err := m.hashes.Commit(ctx, f.URL(), digest.New); err != nil {
		metrics.FeedChecks.WithLabelValues(f.Name(), metrics.OutcomeStoreError).Inc()
		return report, err
	}
	report.State = HashCommitted
	metrics.FeedChecks.WithLabelValues(f.Name(), metrics.OutcomeProcessed).Inc()

	if len(report.Failed) > 0 && m.alerter != nil {
		if err := m.alerter.SendDeliveryFailures(ctx, f.Name(), report.Failed); err != nil {
			logger.Error("Failed to send delivery failure alert", "error", err)
		}
	}

	logger.Info("Feed check completed",
		"new", len(fresh),
		"delivered", report.Delivered,
		"failed", len(report.Failed),
		"skipped", report.Skipped)
	return report, nil
}

func (m *Monitor) dispatch(ctx context.Context, f feed.Identity, id feed.ID, rec feed.Record) *feed.DeliveryError {
	ivorn := feed.IVORN(f, id)
	packet, err := f.BuildEvent(rec, id, m.opts.Now())
	if err != nil {
		return &feed.DeliveryError{IVORN: ivorn, Err: fmt.Errorf("build event: %w", err)}
	}
	ev := &feed.Event{Feed: f.Name(), FeedID: id, IVORN: ivorn, Packet: packet}
	if err := m.sink.Deliver(ctx, ev); err != nil {
		return &feed.DeliveryError{IVORN: ivorn, Err: err}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
