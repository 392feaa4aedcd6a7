package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubjectPrefix is used when NATS_SUBJECT_PREFIX is empty.
const DefaultSubjectPrefix = "freebox.hub"

// natsPublisher is the subset of *nats.Conn used by the sink.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink mirrors bus events onto NATS subjects `{prefix}.{type}`.
type NATSSink struct {
	pub    natsPublisher
	prefix string
	logger zerolog.Logger
}

// ConnectNATS dials the server with reconnect settings suited to a
// long-running hub.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, error) {
	logger = logger.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name("freebox-hub"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNATSSink wraps a connection. An empty prefix uses DefaultSubjectPrefix.
func NewNATSSink(pub natsPublisher, prefix string, logger zerolog.Logger) *NATSSink {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{
		pub:    pub,
		prefix: prefix,
		logger: logger.With().Str("component", "nats").Logger(),
	}
}

// Subject returns the subject an event type is published on.
func (s *NATSSink) Subject(eventType Type) string {
	return s.prefix + "." + string(eventType)
}

// Publish encodes and sends one event. nats.go buffers the write, so this
// does not wait on the network.
func (s *NATSSink) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.pub.Publish(s.Subject(event.Type), payload); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Run forwards bus events until ctx is done or the bus closes.
func (s *NATSSink) Run(ctx context.Context, bus *Bus) {
	ch, cancel := bus.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := s.Publish(event); err != nil {
				s.logger.Warn().Err(err).Msg("failed to forward event")
			}
		}
	}
}
