// Package metrics holds the Prometheus counters for feed scraping.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Feed check outcomes.
const (
	OutcomeUnchanged   = "unchanged"
	OutcomeProcessed   = "processed"
	OutcomeFetchError  = "fetch_error"
	OutcomeParseError  = "parse_error"
	OutcomeStoreError  = "store_error"
	OutcomeCycleFailed = "cycle_failed"
)

// Counts scrape cycles started.
var Cycles = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fourpisky_feed_cycles_total",
	Help: "Total number of scrape cycles started",
})

// Counts feed checks by outcome.
var FeedChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fourpisky_feed_checks_total",
	Help: "Feed checks by outcome",
}, []string{"feed", "outcome"})

var (
	NewEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fourpisky_feed_new_events_total",
		Help: "Events found absent from the event store",
	}, []string{"feed"})

	Delivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fourpisky_feed_delivered_total",
		Help: "Events handed to the sink successfully",
	}, []string{"feed"})

	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fourpisky_feed_delivery_failures_total",
		Help: "Events that could not be built or delivered",
	}, []string{"feed"})

	DuplicatesSuspected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fourpisky_feed_duplicates_suspected_total",
		Help: "Events suppressed because an identifier prefix already exists",
	}, []string{"feed"})

	IdentityFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fourpisky_feed_identity_failures_total",
		Help: "Records skipped because no identifier could be derived",
	}, []string{"feed"})
)

// Push sends the default registry to a Pushgateway, for one-shot runs.
func Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
