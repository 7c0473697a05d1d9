package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"fourpisky-feeds/cfg"
	"fourpisky-feeds/dedup"
	"fourpisky-feeds/email"
	"fourpisky-feeds/eventstore"
	"fourpisky-feeds/feeds"
	"fourpisky-feeds/hashcache"
	"fourpisky-feeds/metrics"
	"fourpisky-feeds/pkg/feed"
	"fourpisky-feeds/poll"
	"fourpisky-feeds/scraper"
	"fourpisky-feeds/sink"
)

const swiftTriggersLabel = "swift_triggers"

// app holds the long-lived components of one process.
type app struct {
	cfg     *cfg.Cfg
	logger  *slog.Logger
	store   *eventstore.DB
	monitor *poll.Monitor
	opts    feeds.Options
	now     func() time.Time
	closers []func()
}

func newApp(ctx context.Context, c *cfg.Cfg, logger *slog.Logger) (*app, error) {
	a := &app{cfg: c, logger: logger, now: time.Now}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	a.opts = feeds.Options{Author: c.Feeds.Author, Role: c.Feeds.Role, Logger: logger}

	var err error
	a.store, err = eventstore.Open(ctx, c.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	a.onClose(func() error { return a.store.Close() })
	if c.Migrate {
		if _, _, err := a.store.Migrate(); err != nil {
			return nil, err
		}
	}

	hashes, err := a.hashStore(ctx)
	if err != nil {
		return nil, err
	}
	seen, err := a.seenCache(ctx)
	if err != nil {
		return nil, err
	}
	out, err := a.sink()
	if err != nil {
		return nil, err
	}
	provider, err := a.emailProvider(ctx)
	if err != nil {
		return nil, err
	}

	a.monitor = poll.New(
		scraper.New(&http.Client{Timeout: c.FetchTimeout}, logger),
		hashcache.NewChecker(hashes, logger),
		dedup.New(a.store, seen, logger),
		out,
		email.New(provider, logger, c.AlertTo, c.SubjectPrefix()),
		logger,
		poll.Options{
			Pacing:       c.Pacing,
			FetchTimeout: c.FetchTimeout,
			Now:          func() time.Time { return a.now() },
		},
	)
	ready = true
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, func() {
		if err := fn(); err != nil {
			a.logger.Warn("Failed to close resource", "error", err)
		}
	})
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) hashStore(ctx context.Context) (hashcache.Store, error) {
	if a.cfg.HashBucket == "" {
		a.logger.Info("Using local hash database", "path", a.cfg.HashDBPath)
		return hashcache.NewBadgerStore(hashcache.BadgerConfig{Path: a.cfg.HashDBPath, Logger: a.logger})
	}

	var opts []option.ClientOption
	if a.cfg.GoogleCredentials != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(a.cfg.GoogleCredentials)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	a.onClose(client.Close)
	a.logger.Info("Using GCS hash store", "bucket", a.cfg.HashBucket)
	return hashcache.NewGCSStore(client, a.cfg.HashBucket, a.logger), nil
}

func (a *app) seenCache(ctx context.Context) (dedup.SeenCache, error) {
	if a.cfg.RedisAddr == "" {
		return dedup.NewMemoryCache(), nil
	}
	c, err := dedup.NewRedisCache(ctx, a.cfg.RedisAddr, dedup.DefaultRedisKey)
	if err != nil {
		return nil, err
	}
	a.onClose(c.Close)
	return c, nil
}

func (a *app) sink() (sink.Sink, error) {
	switch {
	case a.cfg.DryRun:
		a.logger.Info("Dry run: writing packets to disk", "dir", a.cfg.DryRunDir)
		return sink.NewDryRun(a.cfg.DryRunDir, a.logger)
	case a.cfg.DirectStore:
		a.logger.Info("Inserting packets directly into the event store")
		return sink.NewDirect(a.store, a.logger), nil
	default:
		b, err := sink.NewBroadcast(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(b.Close)
		return b, nil
	}
}

func (a *app) emailProvider(ctx context.Context) (email.Provider, error) {
	switch a.cfg.EmailProvider {
	case cfg.ProviderGmail:
		var opts []option.ClientOption
		if a.cfg.GoogleCredentials != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(a.cfg.GoogleCredentials)))
		}
		svc, err := gmail.NewService(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create gmail service: %w", err)
		}
		return email.NewGmailProvider(svc, a.logger), nil
	case cfg.ProviderBrevo:
		return email.NewBrevoProvider(a.cfg.BrevoAPIKey, a.cfg.AlertFrom, "4PiSky feeds", a.logger), nil
	default:
		a.logger.Info("Mock email mode enabled")
		return email.NewMockProvider(a.logger), nil
	}
}

// staticFeeds returns the enabled fixed-URL feeds.
func (a *app) staticFeeds() []feed.Identity {
	var out []feed.Identity
	if a.cfg.Feeds.AsassnEnabled {
		out = append(out, feeds.NewAsassn(a.cfg.Feeds.Asassn, a.opts))
	}
	if a.cfg.Feeds.GaiaEnabled {
		out = append(out, feeds.NewGaia(a.cfg.Feeds.Gaia, a.opts))
	}
	return out
}

// runCycle checks the static feeds followed by one burst-analysis page per
// recent Swift trigger. A failed trigger lookup does not stop the static feeds.
func (a *app) runCycle(ctx context.Context) ([]poll.Report, error) {
	list := a.staticFeeds()

	var triggerErr error
	if a.cfg.Feeds.SwiftEnabled {
		triggers, err := feeds.SwiftTriggers(ctx, a.store, a.cfg.Feeds.Swift, a.opts, a.now())
		if err != nil {
			metrics.FeedChecks.WithLabelValues(swiftTriggersLabel, metrics.OutcomeCycleFailed).Inc()
			a.logger.Error("Failed to list Swift triggers", "error", err)
			triggerErr = fmt.Errorf("swift triggers: %w", err)
		}
		for _, t := range triggers {
			list = append(list, t)
		}
	}

	reports, err := a.monitor.CheckAll(ctx, list)
	return reports, errors.Join(triggerErr, err)
}
