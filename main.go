// Package main scrapes astronomical transient feeds, turns previously unseen
// entries into VOEvent packets and hands them to the broker.
//
// By default one cycle runs and the process exits. With --listen it serves
// /pollz so a scheduler can trigger cycles over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fourpisky-feeds/cfg"
	"fourpisky-feeds/metrics"
	"fourpisky-feeds/server"
)

const metricsJob = "scrape_feeds"

func main() {
	c, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if c == nil {
		return
	}

	logger, closeLogs, err := newLogger(os.Stdout, c.LogFile, c.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, c, logger)
	stop()
	closeLogs()
	os.Exit(code)
}

func run(ctx context.Context, c *cfg.Cfg, logger *slog.Logger) int {
	logger.Info("Starting feed scraper", "version", c.Version, "dry_run", c.DryRun, "direct_store", c.DirectStore)

	a, err := newApp(ctx, c, logger)
	if err != nil {
		logger.Error("Failed to initialise", "error", err)
		return 1
	}
	defer a.close()

	if c.Listen != "" {
		srv := server.New(server.Config{
			Cycle:   a.runCycle,
			Packets: a.store,
			Logger:  logger,
			Version: c.Version,
		})
		if err := srv.ListenAndServe(ctx, c.Listen); err != nil {
			logger.Error("Server failed", "error", err)
			return 1
		}
		return 0
	}

	_, cycleErr := a.runCycle(ctx)

	if c.Pushgateway != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metrics.Push(pushCtx, c.Pushgateway, metricsJob); err != nil {
			logger.Warn("Failed to push metrics", "error", err)
		}
		cancel()
	}

	if cycleErr != nil {
		logger.Error("Scrape cycle finished with errors", "error", cycleErr)
		return 1
	}
	logger.Info("Scrape cycle finished")
	return 0
}
