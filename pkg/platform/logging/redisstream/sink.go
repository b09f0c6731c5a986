// Package redisstream forwards log records to a capped Redis stream.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"femtoclaw/pkg/platform/logging"
)

const (
	// DefaultStream is the stream key used when none is configured.
	DefaultStream = "femtoclaw:logs"
	// DefaultMaxLen approximately caps the stream length.
	DefaultMaxLen int64 = 10000
)

// Sink is a Redis-backed logging.Logger. Each record becomes one stream entry
// with a JSON-encoded fields value.
type Sink struct {
	client     *redis.Client
	stream     string
	maxLen     int64
	registerer prometheus.Registerer
	namespace  string

	xaddDurationMs prometheus.Histogram
}

// Option configures a Sink.
type Option func(*Sink)

// WithStream sets the stream key.
func WithStream(stream string) Option {
	return func(s *Sink) {
		if stream != "" {
			s.stream = stream
		}
	}
}

// WithMaxLen sets the approximate stream cap.
func WithMaxLen(n int64) Option {
	return func(s *Sink) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// WithRegisterer registers the sink's latency histogram on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Sink) {
		s.registerer = reg
	}
}

// WithNamespace sets the metric name prefix. Defaults to
// logging.DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(s *Sink) {
		if namespace != "" {
			s.namespace = namespace
		}
	}
}

// New constructs a sink on an existing client.
func New(client *redis.Client, opts ...Option) *Sink {
	s := &Sink{
		client:    client,
		stream:    DefaultStream,
		maxLen:    DefaultMaxLen,
		namespace: logging.DefaultNamespace,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.xaddDurationMs = promauto.With(s.registerer).NewHistogram(prometheus.HistogramOpts{
		Namespace: s.namespace,
		Name:      "redis_stream_xadd_duration_ms",
		Help:      "Latency of XADD calls forwarding log records in milliseconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
	})
	return s
}

// Log appends the record with XADD ... MAXLEN ~ n.
func (s *Sink) Log(ctx context.Context, level slog.Level, source, message string, fields map[string]any) error {
	start := time.Now()
	defer func() {
		s.xaddDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	rec := logging.NewRecord(level, source, message, fields)
	encoded, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("redis stream: encode fields: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"timestamp": rec.Timestamp.Format(time.RFC3339Nano),
			"level":     rec.Level,
			"source":    rec.Source,
			"message":   rec.Message,
			"fields":    string(encoded),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis stream: xadd %s: %w", s.stream, err)
	}
	return nil
}

// Stream returns the stream key records are appended to.
func (s *Sink) Stream() string {
	return s.stream
}
