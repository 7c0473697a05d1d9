package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// teeHandler fans each record out to every handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// newLogger writes JSON to stdout, to logFile at info level and to
// logFile+".debug" at debug level. An empty logFile logs to stdout only.
func newLogger(stdout io.Writer, logFile string, debug bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handlers := teeHandler{slog.NewJSONHandler(stdout, &slog.HandlerOptions{Level: level})}

	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close() //nolint:errcheck // nothing left to log to
		}
	}

	if logFile != "" {
		for _, target := range []struct {
			path  string
			level slog.Level
		}{
			{logFile, slog.LevelInfo},
			{logFile + ".debug", slog.LevelDebug},
		} {
			f, err := os.OpenFile(target.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("open log file: %w", err)
			}
			files = append(files, f)
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: target.level}))
		}
	}

	return slog.New(handlers), closeAll, nil
}
