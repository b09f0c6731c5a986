package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, loaded from the environment.
type Config struct {
	Server    Server
	Log       Log
	Telemetry Telemetry
	Redis     RedisConfig
	Kafka     KafkaConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"FEMTOCLAW_ADDR"             envDefault:":8080"`
	ReadTimeout     time.Duration `env:"FEMTOCLAW_READ_TIMEOUT"     envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"FEMTOCLAW_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Log selects the process log handler.
type Log struct {
	Level  string `env:"FEMTOCLAW_LOG_LEVEL"  envDefault:"info"`
	Format string `env:"FEMTOCLAW_LOG_FORMAT" envDefault:"json"`
}

// Telemetry sizes the buffers and the forwarder in front of the log sinks.
type Telemetry struct {
	AuditCapacity    int           `env:"FEMTOCLAW_AUDIT_CAPACITY"     envDefault:"10000"`
	EventCapacity    int           `env:"FEMTOCLAW_EVENT_CAPACITY"     envDefault:"1000"`
	ForwardQueue     int           `env:"FEMTOCLAW_FORWARD_QUEUE"      envDefault:"1024"`
	ForwardBatch     int           `env:"FEMTOCLAW_FORWARD_BATCH"      envDefault:"64"`
	ForwardTimeout   time.Duration `env:"FEMTOCLAW_FORWARD_TIMEOUT"    envDefault:"2s"`
	BreakerThreshold int           `env:"FEMTOCLAW_BREAKER_THRESHOLD"  envDefault:"5"`
	BreakerCooldown  time.Duration `env:"FEMTOCLAW_BREAKER_COOLDOWN"   envDefault:"30s"`
	MetricsNamespace string        `env:"FEMTOCLAW_METRICS_NAMESPACE"  envDefault:"femtoclaw"`
}

// RedisConfig enables the Redis stream log sink when URL is set.
type RedisConfig struct {
	URL          string        `env:"FEMTOCLAW_REDIS_URL"`
	Stream       string        `env:"FEMTOCLAW_REDIS_STREAM"         envDefault:"femtoclaw:logs"`
	StreamMaxLen int64         `env:"FEMTOCLAW_REDIS_STREAM_MAXLEN"  envDefault:"10000"`
	PoolSize     int           `env:"FEMTOCLAW_REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"FEMTOCLAW_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"FEMTOCLAW_REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"FEMTOCLAW_REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"FEMTOCLAW_REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
}

// KafkaConfig enables the Kafka log sink when Brokers is set.
type KafkaConfig struct {
	Brokers []string `env:"FEMTOCLAW_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"FEMTOCLAW_KAFKA_TOPIC"   envDefault:"femtoclaw-logs"`
}

// FromEnv builds the configuration from environment variables so main stays
// lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Telemetry.AuditCapacity <= 0 {
		return Config{}, fmt.Errorf("FEMTOCLAW_AUDIT_CAPACITY must be positive, got %d", cfg.Telemetry.AuditCapacity)
	}
	if cfg.Telemetry.EventCapacity <= 0 {
		return Config{}, fmt.Errorf("FEMTOCLAW_EVENT_CAPACITY must be positive, got %d", cfg.Telemetry.EventCapacity)
	}
	return cfg, nil
}
