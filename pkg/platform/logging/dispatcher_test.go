package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"femtoclaw/pkg/platform/sentinel"
	"femtoclaw/pkg/requestcontext"
)

type recordingSink struct {
	mu      sync.Mutex
	records []Record
	err     error
	block   chan struct{}
}

func (s *recordingSink) Log(_ context.Context, level slog.Level, source, message string, fields map[string]any) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, NewRecord(level, source, message, fields))
	return s.err
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Message
	}
	return out
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink)

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, d.Log(context.Background(), slog.LevelInfo, "src", msg, nil))
	}
	closeDispatcher(t, d)

	assert.Equal(t, []string{"a", "b", "c"}, sink.messages())
	assert.Equal(t, 3.0, testutil.ToFloat64(d.Metrics().Forwarded))
	assert.Zero(t, d.Pending())
}

func TestDispatcher_AddsRequestID(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink)

	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	fields := map[string]any{"k": "v"}
	require.NoError(t, d.Log(ctx, slog.LevelInfo, "src", "msg", fields))
	closeDispatcher(t, d)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "req-1", sink.records[0].Fields["request_id"])
	assert.Equal(t, "v", sink.records[0].Fields["k"])
	assert.NotContains(t, fields, "request_id", "caller map is not modified")
}

func TestDispatcher_LogNeverBlocksOnSlowSink(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, WithQueueSize(4))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			_ = d.Log(context.Background(), slog.LevelInfo, "src", "msg", nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a stalled sink")
	}

	assert.LessOrEqual(t, d.Pending(), 4)
	assert.Positive(t, d.QueueDropped())

	close(sink.block)
	closeDispatcher(t, d)
}

func TestDispatcher_TimesOutHungSink(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)
	sink := &recordingSink{block: hang}
	d := NewDispatcher(sink, WithTimeout(20*time.Millisecond))

	require.NoError(t, d.Log(context.Background(), slog.LevelInfo, "src", "msg", nil))
	closeDispatcher(t, d)

	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().Failures))
	assert.Zero(t, testutil.ToFloat64(d.Metrics().Forwarded))
}

func TestDispatcher_FailuresOpenBreaker(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	d := NewDispatcher(sink, WithCircuitBreaker(NewCircuitBreaker(2, time.Hour)))

	for range 5 {
		require.NoError(t, d.Log(context.Background(), slog.LevelInfo, "src", "msg", nil))
	}
	closeDispatcher(t, d)

	assert.Len(t, sink.messages(), 2, "sink is not called once the breaker opens")
	assert.Equal(t, 2.0, testutil.ToFloat64(d.Metrics().Failures))
	assert.Equal(t, 3.0, testutil.ToFloat64(d.Metrics().BreakerDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().BreakerState))
}

func TestDispatcher_LogAfterClose(t *testing.T) {
	d := NewDispatcher(&recordingSink{})
	closeDispatcher(t, d)
	closeDispatcher(t, d)

	err := d.Log(context.Background(), slog.LevelInfo, "src", "msg", nil)
	assert.ErrorIs(t, err, sentinel.ErrClosed)
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	block := make(chan struct{})
	sink := &recordingSink{block: block}
	d := NewDispatcher(sink, WithTimeout(time.Hour))
	require.NoError(t, d.Log(context.Background(), slog.LevelInfo, "src", "msg", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(block)
	closeDispatcher(t, d)
}

func TestDispatcher_LogsBreakerRecovery(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return time.Unix(0, now.Load()) }

	var logs bytes.Buffer
	sink := &recordingSink{err: errors.New("sink down")}
	d := NewDispatcher(sink,
		WithCircuitBreaker(cb),
		WithErrorLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	require.NoError(t, d.Log(context.Background(), slog.LevelInfo, "src", "first", nil))
	require.Eventually(t, cb.IsOpen, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	now.Add(int64(2 * time.Minute))

	require.NoError(t, d.Log(context.Background(), slog.LevelInfo, "src", "second", nil))
	closeDispatcher(t, d)

	assert.Equal(t, []string{"first", "second"}, sink.messages())
	assert.False(t, cb.IsOpen())
	assert.Zero(t, testutil.ToFloat64(d.Metrics().BreakerState))
	assert.Contains(t, logs.String(), "log sink circuit opened")
	assert.Contains(t, logs.String(), "log sink circuit closed")
}

func TestDispatcher_NoRecoveryLogWhileHealthy(t *testing.T) {
	var logs bytes.Buffer
	d := NewDispatcher(&recordingSink{}, WithErrorLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	require.NoError(t, d.Log(context.Background(), slog.LevelInfo, "src", "msg", nil))
	closeDispatcher(t, d)

	assert.Empty(t, logs.String())
}

func TestDispatcher_BatchSize(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, WithBatchSize(2))

	want := []string{"a", "b", "c", "d", "e"}
	for _, msg := range want {
		require.NoError(t, d.Log(context.Background(), slog.LevelInfo, "src", msg, nil))
	}
	closeDispatcher(t, d)

	assert.Equal(t, want, sink.messages())
	assert.Zero(t, d.Pending())
}

func TestDispatcher_RegistersMetrics(t *testing.T) {
	tests := []struct {
		name   string
		opts   []DispatcherOption
		prefix string
	}{
		{"default namespace", nil, DefaultNamespace},
		{"custom namespace", []DispatcherOption{WithNamespace("agent")}, "agent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			d := NewDispatcher(&recordingSink{}, append([]DispatcherOption{WithRegisterer(reg)}, tt.opts...)...)
			closeDispatcher(t, d)

			count, err := testutil.GatherAndCount(reg,
				tt.prefix+"_log_dispatch_forwarded_total",
				tt.prefix+"_log_dispatch_failures_total",
				tt.prefix+"_log_dispatch_circuit_breaker_dropped_total",
				tt.prefix+"_log_dispatch_circuit_breaker_state",
				tt.prefix+"_log_dispatch_queue_dropped_total",
			)
			require.NoError(t, err)
			assert.Equal(t, 5, count)
		})
	}
}
