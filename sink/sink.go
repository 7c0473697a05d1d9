// Package sink delivers outbound VOEvent packets.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fourpisky-feeds/eventstore"
	"fourpisky-feeds/pkg/feed"
	"fourpisky-feeds/voevent"
)

// Sink delivers one event.
type Sink interface {
	Deliver(ctx context.Context, ev *feed.Event) error
}

// Inserter stores packets directly.
type Inserter interface {
	Insert(ctx context.Context, p eventstore.Packet) error
}

// Direct inserts packets straight into the event store, bypassing the
// broker.
type Direct struct {
	store  Inserter
	logger *slog.Logger
}

// NewDirect creates a direct-insert sink.
func NewDirect(store Inserter, logger *slog.Logger) *Direct {
	return &Direct{store: store, logger: logger}
}

// Deliver inserts the event.
func (d *Direct) Deliver(ctx context.Context, ev *feed.Event) error {
	p, err := packetFor(ev)
	if err != nil {
		return err
	}
	if err := d.store.Insert(ctx, p); err != nil {
		return fmt.Errorf("insert %s: %w", ev.IVORN, err)
	}
	d.logger.Info("Inserted event directly", "feed", ev.Feed, "ivorn", ev.IVORN)
	return nil
}

func packetFor(ev *feed.Event) (eventstore.Packet, error) {
	data, err := voevent.Marshal(ev.Packet)
	if err != nil {
		return eventstore.Packet{}, err
	}
	p := eventstore.Packet{
		IVORN:  ev.IVORN,
		Stream: eventstore.StreamOf(ev.IVORN),
		Role:   string(ev.Packet.Role),
		XML:    data,
	}
	if ev.Packet.Who != nil {
		if t, err := time.Parse(voevent.TimeFormat, ev.Packet.Who.Date); err == nil {
			p.AuthorDatetime = t
		}
	}
	return p, nil
}

// DryRun writes each packet to a scratch directory instead of sending it.
type DryRun struct {
	dir    string
	logger *slog.Logger
}

// NewDryRun creates the directory if needed.
func NewDryRun(dir string, logger *slog.Logger) (*DryRun, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create dry run directory: %w", err)
	}
	return &DryRun{dir: dir, logger: logger}, nil
}

// Deliver writes the packet to "<stream id>_<uuid>.xml".
func (d *DryRun) Deliver(_ context.Context, ev *feed.Event) error {
	data, err := voevent.Marshal(ev.Packet)
	if err != nil {
		return err
	}
	path := filepath.Join(d.dir, fmt.Sprintf("%s_%s.xml", feed.StreamID(ev.FeedID), uuid.NewString()))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write dry run packet: %w", err)
	}
	d.logger.Info("Dry run: packet written instead of sent", "feed", ev.Feed, "ivorn", ev.IVORN, "path", path)
	return nil
}
