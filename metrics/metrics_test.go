package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(DuplicatesSuspected.WithLabelValues("test feed"))
	DuplicatesSuspected.WithLabelValues("test feed").Inc()
	if got := testutil.ToFloat64(DuplicatesSuspected.WithLabelValues("test feed")); got != before+1 {
		t.Errorf("DuplicatesSuspected = %v, want %v", got, before+1)
	}
}

func TestPush(t *testing.T) {
	var body string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	Cycles.Inc()
	if err := Push(context.Background(), srv.URL, "scrape_feeds"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if path != "/metrics/job/scrape_feeds" {
		t.Errorf("push path = %q", path)
	}
	if body == "" {
		t.Error("empty push body")
	}
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := Push(context.Background(), srv.URL, "scrape_feeds")
	if err == nil || !strings.Contains(err.Error(), "push metrics") {
		t.Errorf("Push() error = %v", err)
	}
}
