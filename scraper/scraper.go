// Package scraper fetches raw feed content over HTTP.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"fourpisky-feeds/pkg/feed"
)

const (
	maxBodyBytes     = 64 << 20
	defaultUserAgent = "fourpisky-feeds/1.0 (+https://4pisky.org)"
)

// StatusError indicates a non-success HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.URL)
}

// IsClientError checks if an error is a 4xx response, which is never retried.
func IsClientError(err error) bool {
	var status *StatusError
	return errors.As(err, &status) && status.Code >= 400 && status.Code < 500
}

// Scraper fetches feed pages and CSV files.
type Scraper struct {
	client     *http.Client
	logger     *slog.Logger
	userAgent  string
	attempts   uint
	retryDelay time.Duration
}

// New creates a new scraper.
func New(client *http.Client, logger *slog.Logger) *Scraper {
	return &Scraper{
		client:     client,
		logger:     logger,
		userAgent:  defaultUserAgent,
		attempts:   5,
		retryDelay: time.Second,
	}
}

// FetchFull downloads the whole resource.
func (s *Scraper) FetchFull(ctx context.Context, url string) ([]byte, error) {
	return s.fetch(ctx, url, nil)
}

// FetchRange downloads bytes start..end (inclusive). Servers that ignore the
// Range header have their response truncated to the same length.
func (s *Scraper) FetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, &feed.FetchError{URL: url, Err: fmt.Errorf("invalid byte range %d-%d", start, end)}
	}
	return s.fetch(ctx, url, &feed.ByteRange{Start: start, End: end})
}

func (s *Scraper) fetch(ctx context.Context, url string, byteRange *feed.ByteRange) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", s.userAgent)
			if byteRange != nil {
				req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", byteRange.Start, byteRange.End))
			}

			s.logger.Debug("HTTP request starting", "method", "GET", "url", url, "range", req.Header.Get("Range"))

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)
			if err != nil {
				s.logger.Warn("HTTP request failed, will retry",
					"url", url,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("HTTP request completed",
				"url", url,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds(),
				"content_length", resp.ContentLength)

			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
				return &StatusError{URL: url, Code: resp.StatusCode}
			}

			limit := int64(maxBodyBytes)
			if byteRange != nil {
				limit = byteRange.End - byteRange.Start + 1
			}
			data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			body = data
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(s.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "url", url, "attempt", n, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return !IsClientError(err)
		}),
	)
	if err != nil {
		return nil, &feed.FetchError{URL: url, Err: err}
	}

	return body, nil
}
