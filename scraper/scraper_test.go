package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fourpisky-feeds/pkg/feed"
)

func newTestScraper() *Scraper {
	s := New(&http.Client{Timeout: 5 * time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.retryDelay = time.Millisecond
	return s
}

func TestFetchRangeSendsHeader(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	body, err := newTestScraper().FetchRange(context.Background(), srv.URL, 0, 9)
	if err != nil {
		t.Fatalf("FetchRange() error = %v", err)
	}
	if gotRange != "bytes=0-9" {
		t.Errorf("Range header = %q, want bytes=0-9", gotRange)
	}
	if string(body) != "0123456789" {
		t.Errorf("body = %q", body)
	}
}

func TestFetchRangeTruncatesIgnoredRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	body, err := newTestScraper().FetchRange(context.Background(), srv.URL, 0, 9)
	if err != nil {
		t.Fatalf("FetchRange() error = %v", err)
	}
	if len(body) != 10 {
		t.Errorf("len(body) = %d, want 10", len(body))
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestScraper().FetchFull(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchFull() error = %v", err)
	}
	if string(body) != "ok" || hits.Load() != 3 {
		t.Errorf("body = %q after %d hits, want ok after 3", body, hits.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestScraper().FetchFull(context.Background(), srv.URL)
	if !feed.IsFetchError(err) {
		t.Fatalf("FetchFull() error = %v, want FetchError", err)
	}
	if !IsClientError(err) {
		t.Errorf("error %v does not unwrap to a 4xx StatusError", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestFetchRangeRejectsInvalidRange(t *testing.T) {
	_, err := newTestScraper().FetchRange(context.Background(), "http://example.invalid", 10, 5)
	if !feed.IsFetchError(err) || !strings.Contains(err.Error(), "invalid byte range 10-5") {
		t.Errorf("FetchRange() error = %v, want FetchError for the range", err)
	}
	var status *StatusError
	if errors.As(err, &status) {
		t.Errorf("unexpected status error %v", status)
	}
}
