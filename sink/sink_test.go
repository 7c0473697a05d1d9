package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"fourpisky-feeds/eventstore"
	"fourpisky-feeds/pkg/feed"
	"fourpisky-feeds/voevent"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() *feed.Event {
	ivorn := "ivo://voevent.4pisky.org/GAIA#Gaia16aaa"
	now := time.Date(2016, 1, 4, 5, 6, 7, 0, time.UTC)
	v := voevent.New(ivorn, voevent.RoleObservation, voevent.Author{ShortName: "4PiSky"}, "ivo://voevent.4pisky.org/robots", now)
	return &feed.Event{Feed: "GAIA science alerts", FeedID: "Gaia16aaa", IVORN: ivorn, Packet: v}
}

func TestDryRunWritesPacket(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scratch")
	d, err := NewDryRun(dir, discardLogger())
	if err != nil {
		t.Fatalf("NewDryRun() error = %v", err)
	}
	if err := d.Deliver(context.Background(), testEvent()); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "Gaia16aaa_") {
		t.Fatalf("unexpected scratch files %v", entries)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	v, err := voevent.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if v.IVORN != "ivo://voevent.4pisky.org/GAIA#Gaia16aaa" {
		t.Errorf("IVORN = %q", v.IVORN)
	}
}

type fakeInserter struct {
	got []eventstore.Packet
	err error
}

func (f *fakeInserter) Insert(_ context.Context, p eventstore.Packet) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, p)
	return nil
}

func TestDirectInsertsPacket(t *testing.T) {
	store := &fakeInserter{}
	d := NewDirect(store, discardLogger())
	if err := d.Deliver(context.Background(), testEvent()); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(store.got) != 1 {
		t.Fatalf("got %d inserts, want 1", len(store.got))
	}
	p := store.got[0]
	if p.Stream != "voevent.4pisky.org/GAIA" || p.Role != "observation" {
		t.Errorf("unexpected packet %+v", p)
	}
	if !p.AuthorDatetime.Equal(time.Date(2016, 1, 4, 5, 6, 7, 0, time.UTC)) {
		t.Errorf("AuthorDatetime = %v", p.AuthorDatetime)
	}

	store.err = eventstore.ErrDuplicate
	if err := d.Deliver(context.Background(), testEvent()); !errors.Is(err, eventstore.ErrDuplicate) {
		t.Errorf("Deliver() error = %v, want ErrDuplicate", err)
	}
}

type fakeWriter struct {
	msgs     []kafka.Message
	failures int
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestBroadcastDeliver(t *testing.T) {
	w := &fakeWriter{failures: 1}
	b := &Broadcast{writer: w, topic: "voevents", logger: discardLogger(), attempts: 3, delay: time.Millisecond}

	if err := b.Deliver(context.Background(), testEvent()); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "ivo://voevent.4pisky.org/GAIA#Gaia16aaa" {
		t.Errorf("Key = %q", msg.Key)
	}
	if !strings.Contains(string(msg.Value), `ivorn="ivo://voevent.4pisky.org/GAIA#Gaia16aaa"`) {
		t.Errorf("Value does not carry the packet: %s", msg.Value)
	}

	w.failures = 5
	if err := b.Deliver(context.Background(), testEvent()); err == nil {
		t.Error("Deliver() succeeded despite persistent failures")
	}

	if err := b.Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed = %v", err, w.closed)
	}
}

func TestNewBroadcastValidation(t *testing.T) {
	if _, err := NewBroadcast(" , ", "voevents", discardLogger()); err == nil {
		t.Error("expected error for empty broker list")
	}
	if _, err := NewBroadcast("localhost:9092", "", discardLogger()); err == nil {
		t.Error("expected error for empty topic")
	}
	b, err := NewBroadcast("localhost:9092, localhost:9093", "voevents", discardLogger())
	if err != nil {
		t.Fatalf("NewBroadcast() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
