// Package kafka forwards log records to a Kafka topic as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"femtoclaw/pkg/platform/logging"
)

// Sink is a Kafka-backed logging.Logger. Records are keyed by source so one
// producer's records stay in one partition.
type Sink struct {
	client *kgo.Client
	topic  string
}

// New connects a producer for topic. Extra client options are appended after
// the defaults.
func New(brokers []string, topic string, opts ...kgo.Opt) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka sink: topic is required")
	}

	clientOpts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerLinger(0),
	}, opts...)

	client, err := kgo.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: create client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// Log produces the record and waits for the broker acknowledgement or ctx.
func (s *Sink) Log(ctx context.Context, level slog.Level, source, message string, fields map[string]any) error {
	value, err := json.Marshal(logging.NewRecord(level, source, message, fields))
	if err != nil {
		return fmt.Errorf("kafka sink: encode record: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(source),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka sink: produce to %s: %w", s.topic, err)
	}
	return nil
}

// Ping checks broker connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (s *Sink) Close(ctx context.Context) error {
	if err := s.client.Flush(ctx); err != nil {
		s.client.Close()
		return fmt.Errorf("kafka sink: flush: %w", err)
	}
	s.client.Close()
	return nil
}
