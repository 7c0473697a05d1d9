package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/segmentio/kafka-go"

	"fourpisky-feeds/pkg/feed"
	"fourpisky-feeds/voevent"
)

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Broadcast publishes packets to the alert broker's Kafka topic, keyed by
// identifier.
type Broadcast struct {
	writer   messageWriter
	topic    string
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

// NewBroadcast configures a synchronous writer for the comma separated
// broker list.
func NewBroadcast(brokers, topic string, logger *slog.Logger) (*Broadcast, error) {
	var brokerList []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}
	if len(brokerList) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	if topic == "" {
		return nil, errors.New("no kafka topic configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	logger.Info("Kafka broadcast sink configured", "brokers", brokerList, "topic", topic)

	return &Broadcast{writer: writer, topic: topic, logger: logger, attempts: 3, delay: time.Second}, nil
}

func buildMessage(ev *feed.Event) (kafka.Message, error) {
	payload, err := voevent.Marshal(ev.Packet)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.IVORN),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "ivorn", Value: []byte(ev.IVORN)},
			{Key: "role", Value: []byte(ev.Packet.Role)},
			{Key: "feed", Value: []byte(ev.Feed)},
		},
		Time: time.Now(),
	}, nil
}

// Deliver publishes the packet and waits for the leader's ack.
func (b *Broadcast) Deliver(ctx context.Context, ev *feed.Event) error {
	msg, err := buildMessage(ev)
	if err != nil {
		return err
	}

	err = retry.Do(
		func() error {
			return b.writer.WriteMessages(ctx, msg)
		},
		retry.Attempts(b.attempts),
		retry.Delay(b.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Warn("Retrying kafka write", "ivorn", ev.IVORN, "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("write %s to kafka topic %s: %w", ev.IVORN, b.topic, err)
	}

	b.logger.Info("Broadcast event", "feed", ev.Feed, "ivorn", ev.IVORN, "topic", b.topic)
	return nil
}

// Close flushes and closes the writer.
func (b *Broadcast) Close() error {
	return b.writer.Close()
}
