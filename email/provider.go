// Package email sends maintainer alerts through pluggable providers.
package email

import (
	"context"
	"log/slog"
	"strings"

	"fourpisky-feeds/pkg/feed"
)

// Message is one outgoing HTML email.
type Message struct {
	To       []string
	Subject  string
	HTMLBody string
}

// Provider defines the interface for email sending implementations.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// Sender alerts maintainers about feeds that need attention.
type Sender struct {
	provider      Provider
	logger        *slog.Logger
	to            []string
	subjectPrefix string
}

// New creates a sender. subjectPrefix is prepended to every subject, e.g.
// "[4PiSky] " or "[TEST][4PiSky] ".
func New(provider Provider, logger *slog.Logger, to []string, subjectPrefix string) *Sender {
	return &Sender{
		provider:      provider,
		logger:        logger,
		to:            to,
		subjectPrefix: subjectPrefix,
	}
}

func (s *Sender) send(ctx context.Context, subject, body string) error {
	if len(s.to) == 0 {
		s.logger.Warn("No alert recipients configured, dropping alert", "subject", subject)
		return nil
	}
	subject = s.subjectPrefix + subject
	s.logger.Info("Sending maintainer alert", "to", strings.Join(s.to, ","), "subject", subject)
	return s.provider.Send(ctx, Message{To: s.to, Subject: subject, HTMLBody: body})
}

// SendParseFailure reports that a feed's content no longer matches the
// expected layout.
func (s *Sender) SendParseFailure(ctx context.Context, feedName, url string, err error) error {
	return s.send(ctx, "Feed parse failure: "+feedName, formatParseFailureBody(feedName, url, err))
}

// SendDeliveryFailures reports events that were found but could not be sent.
func (s *Sender) SendDeliveryFailures(ctx context.Context, feedName string, failures []*feed.DeliveryError) error {
	if len(failures) == 0 {
		return nil
	}
	return s.send(ctx, "Delivery failures: "+feedName, formatDeliveryFailureBody(feedName, failures))
}
