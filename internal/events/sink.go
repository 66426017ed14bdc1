// Package events fans lifecycle events out to external observers. The core
// produces events as return values; sinks append them to logs, Kafka or
// metrics. Nothing here feeds back into the core.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ampere/internal/core"
)

type Sink interface {
	Publish(ctx context.Context, events []core.Event) error
	Close() error
}

// Multi publishes to every sink in order. The first error wins but does not
// stop the remaining sinks.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, events []core.Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, events); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Log writes each event as one structured log line.
type Log struct{}

func (Log) Publish(_ context.Context, events []core.Event) error {
	for _, e := range events {
		log.Info().Str("kind", e.Kind()).Interface("event", e).Msg("event")
	}
	return nil
}

func (Log) Close() error { return nil }

// envelope is the wire form of an event on the stream.
type envelope struct {
	Kind    string     `json:"kind"`
	At      time.Time  `json:"at"`
	Payload core.Event `json:"payload"`
}

// Kafka publishes events to a topic, keyed by kind so consumers can
// partition by event type.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, events []core.Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(envelope{Kind: e.Kind(), At: time.Now().UTC(), Payload: e})
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.Kind()), Value: b})
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
