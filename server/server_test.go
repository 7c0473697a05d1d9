package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fourpisky-feeds/eventstore"
	"fourpisky-feeds/pkg/feed"
	"fourpisky-feeds/poll"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLister struct {
	packets []eventstore.Packet
	err     error
	got     eventstore.Filter
}

func (f *fakeLister) RecentPackets(_ context.Context, filter eventstore.Filter) ([]eventstore.Packet, error) {
	f.got = filter
	return f.packets, f.err
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s %s: %v", method, target, err)
		}
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s := New(Config{Logger: testLogger(), Version: "v1.2.3"})
	rec, body := do(t, s.Handler(), http.MethodGet, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "healthy" || body["version"] != "v1.2.3" {
		t.Errorf("body = %v", body)
	}
}

func TestPoll(t *testing.T) {
	s := New(Config{
		Logger: testLogger(),
		Cycle: func(context.Context) ([]poll.Report, error) {
			return []poll.Report{{
				Feed:      "GAIA science alerts",
				State:     poll.HashCommitted,
				New:       []feed.ID{"Gaia20aaa", "Gaia20aab"},
				Delivered: 2,
			}}, nil
		},
	})

	rec, body := do(t, s.Handler(), http.MethodPost, "/pollz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	feeds, ok := body["feeds"].([]any)
	if !ok || len(feeds) != 1 {
		t.Fatalf("feeds = %v", body["feeds"])
	}
	report := feeds[0].(map[string]any)
	if report["new"] != float64(2) || report["delivered"] != float64(2) || report["state"] != poll.HashCommitted.String() {
		t.Errorf("report = %v", report)
	}
}

func TestPollFailure(t *testing.T) {
	s := New(Config{
		Logger: testLogger(),
		Cycle: func(context.Context) ([]poll.Report, error) {
			return nil, errors.New("asassn: parse failed")
		},
	})

	rec, body := do(t, s.Handler(), http.MethodPost, "/pollz")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "failed" {
		t.Errorf("body = %v", body)
	}
}

func TestPollRejectsGet(t *testing.T) {
	s := New(Config{Logger: testLogger(), Cycle: func(context.Context) ([]poll.Report, error) {
		t.Error("cycle should not run")
		return nil, nil
	}})

	rec, _ := do(t, s.Handler(), http.MethodGet, "/pollz")
	if rec.Code == http.StatusOK {
		t.Errorf("GET /pollz status = %d", rec.Code)
	}
}

func TestPollSerialised(t *testing.T) {
	var running, peak atomic.Int32
	s := New(Config{
		Logger: testLogger(),
		Cycle: func(context.Context) ([]poll.Report, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		},
	})
	h := s.Handler()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/pollz", http.NoBody)
			h.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("peak concurrent cycles = %d, want 1", peak.Load())
	}
}

func TestRecent(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{packets: []eventstore.Packet{
		{IVORN: "ivo://voevent.4pisky.org/GAIA#Gaia24a", Stream: "voevent.4pisky.org/GAIA", Role: "observation", AuthorDatetime: at},
		{IVORN: "ivo://voevent.4pisky.org/GAIA#Gaia24b", Stream: "voevent.4pisky.org/GAIA", Role: "observation", AuthorDatetime: at.Add(time.Hour)},
	}}
	s := New(Config{Logger: testLogger(), Packets: lister})

	rec, body := do(t, s.Handler(), http.MethodGet, "/recent?stream=voevent.4pisky.org/GAIA&role=observation&since=2024-01-01T00:00:00Z&limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if lister.got.Stream != "voevent.4pisky.org/GAIA" || lister.got.Role != "observation" || lister.got.Limit != 1 {
		t.Errorf("filter = %+v", lister.got)
	}
	if !lister.got.Since.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Since = %s", lister.got.Since)
	}
	packets := body["packets"].([]any)
	if len(packets) != 1 {
		t.Fatalf("packets = %v", packets)
	}
	if got := packets[0].(map[string]any)["ivorn"]; got != "ivo://voevent.4pisky.org/GAIA#Gaia24b" {
		t.Errorf("limit should keep the newest packet, got %v", got)
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	lister := &fakeLister{}
	s := New(Config{Logger: testLogger(), Packets: lister})

	if rec, _ := do(t, s.Handler(), http.MethodGet, "/recent"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if lister.got.Limit != 100 {
		t.Errorf("Limit = %d, want 100", lister.got.Limit)
	}
}

func TestRecentErrors(t *testing.T) {
	tests := []struct {
		name   string
		lister PacketLister
		target string
		want   int
	}{
		{"no store", nil, "/recent", http.StatusNotFound},
		{"bad since", &fakeLister{}, "/recent?since=yesterday", http.StatusBadRequest},
		{"bad limit", &fakeLister{}, "/recent?limit=0", http.StatusBadRequest},
		{"limit too large", &fakeLister{}, "/recent?limit=100000", http.StatusBadRequest},
		{"store error", &fakeLister{err: errors.New("connection refused")}, "/recent", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{Logger: testLogger(), Packets: tt.lister})
			rec, _ := do(t, s.Handler(), http.MethodGet, tt.target)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	rec, _ := do(t, s.Handler(), http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing default collectors")
	}
}
