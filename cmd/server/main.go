package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"femtoclaw/internal/platform/config"
	"femtoclaw/internal/platform/httpserver"
	"femtoclaw/internal/platform/logger"
	redisclient "femtoclaw/internal/platform/redis"
	httptransport "femtoclaw/internal/transport/http"
	"femtoclaw/pkg/platform/events"
	"femtoclaw/pkg/platform/logging"
	"femtoclaw/pkg/platform/logging/kafka"
	"femtoclaw/pkg/platform/logging/redisstream"
	"femtoclaw/pkg/platform/metrics"
	"femtoclaw/pkg/platform/telemetry"
)

// main wires the telemetry core, its log sinks and the inspection API, and
// keeps the process lifecycle small.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(cfg.Telemetry.MetricsNamespace)

	sinks, err := buildSinks(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer sinks.close()

	tel := telemetry.New(
		telemetry.WithAuditCapacity(cfg.Telemetry.AuditCapacity),
		telemetry.WithEventCapacity(cfg.Telemetry.EventCapacity),
		telemetry.WithSink(sinks.logger),
		telemetry.WithMetrics(m),
		telemetry.WithDispatcherOptions(
			logging.WithQueueSize(cfg.Telemetry.ForwardQueue),
			logging.WithBatchSize(cfg.Telemetry.ForwardBatch),
			logging.WithTimeout(cfg.Telemetry.ForwardTimeout),
			logging.WithCircuitBreaker(logging.NewCircuitBreaker(cfg.Telemetry.BreakerThreshold, cfg.Telemetry.BreakerCooldown)),
			logging.WithErrorLogger(log),
		),
	)

	router := httptransport.NewRouter(httptransport.NewHandler(tel.Audit(), tel.Events(), m.Handler(), log, sinks.healthChecks...))
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadTimeout)

	tel.EmitAndLog(ctx, events.New(events.TypeStateTransition, map[string]any{
		"component": "server",
		"to":        "listening",
		"addr":      cfg.Server.Addr,
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting femtoclaw inspection server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := tel.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry close: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// sinkSet is the assembled log sinks plus what the process needs to check and
// release them.
type sinkSet struct {
	logger       logging.Logger
	healthChecks []httptransport.HandlerOption
	closers      []func()
}

func (s *sinkSet) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildSinks assembles the log sinks forwarded events are delivered to. The
// process logger is always a sink; Redis and Kafka join when configured.
func buildSinks(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) (*sinkSet, error) {
	fanout := logging.Fanout{logging.NewSlogLogger(log)}
	set := &sinkSet{}

	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis sink: %w", err)
	}
	if client != nil {
		sink := redisstream.New(client.Client,
			redisstream.WithStream(cfg.Redis.Stream),
			redisstream.WithMaxLen(cfg.Redis.StreamMaxLen),
			redisstream.WithRegisterer(m.Registry()),
			redisstream.WithNamespace(m.Namespace()),
		)
		fanout = append(fanout, sink)
		set.healthChecks = append(set.healthChecks, httptransport.WithHealthCheck("redis", client.Health))
		set.closers = append(set.closers, func() {
			if err := client.Close(); err != nil {
				log.Warn("close redis client", "error", err)
			}
		})
		log.Info("redis stream sink enabled", "stream", sink.Stream())
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			set.close()
			return nil, err
		}
		fanout = append(fanout, producer)
		set.healthChecks = append(set.healthChecks, httptransport.WithHealthCheck("kafka", producer.Ping))
		set.closers = append(set.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := producer.Close(closeCtx); err != nil {
				log.Warn("close kafka sink", "error", err)
			}
		})
		log.Info("kafka sink enabled", "topic", cfg.Kafka.Topic)
	}

	set.logger = fanout
	return set, nil
}
