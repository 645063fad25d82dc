package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all configuration for the relay process
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Watchdog WatchdogConfig `mapstructure:"watchdog"`
}

type AppConfig struct {
	Port      string `mapstructure:"port"`
	Env       string `mapstructure:"env"` // e.g., "local", "prod"
	AuthToken string `mapstructure:"auth_token"`
}

type UpstreamConfig struct {
	Mode         string        `mapstructure:"mode"` // "ws" or "kafka"
	URL          string        `mapstructure:"url"`
	SubscribeMsg string        `mapstructure:"subscribe_msg"` // optional payload sent after connect
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	EventBuffer  int           `mapstructure:"event_buffer"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type RedisConfig struct {
	Addr       string        `mapstructure:"addr"` // empty disables the rate limiter
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	RateMax    int           `mapstructure:"rate_max"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

type StreamConfig struct {
	SendBuffer        int           `mapstructure:"send_buffer"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type WatchdogConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"` // 0 disables
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment first (if present) so the
	// bindings below see the same values in dev and prod.
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.auth_token", "")

	v.SetDefault("upstream.mode", "ws")
	v.SetDefault("upstream.url", "")
	v.SetDefault("upstream.subscribe_msg", "")
	v.SetDefault("upstream.read_timeout", 60*time.Second)
	v.SetDefault("upstream.ping_interval", 30*time.Second)
	v.SetDefault("upstream.event_buffer", 1024)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_events")
	v.SetDefault("kafka.group_id", "quotes-relay-group")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.rate_max", 30)
	v.SetDefault("redis.rate_window", time.Minute)

	v.SetDefault("stream.send_buffer", 256)
	v.SetDefault("stream.keepalive_interval", 25*time.Second)
	v.SetDefault("stream.write_timeout", 5*time.Second)

	v.SetDefault("watchdog.poll_interval", 10*time.Second)
	v.SetDefault("watchdog.staleness_threshold", 120*time.Second)

	// Map dot-notation keys to underscore env vars (e.g., "app.port" -> "APP_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "app.port", "app.env", "app.auth_token")
	bindEnv(v, "upstream.mode", "upstream.url", "upstream.subscribe_msg",
		"upstream.read_timeout", "upstream.ping_interval", "upstream.event_buffer")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "redis.addr", "redis.password", "redis.db", "redis.rate_max", "redis.rate_window")
	bindEnv(v, "stream.send_buffer", "stream.keepalive_interval", "stream.write_timeout")
	bindEnv(v, "watchdog.poll_interval", "watchdog.staleness_threshold")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	switch cfg.Upstream.Mode {
	case "ws":
		if cfg.Upstream.URL == "" {
			return nil, fmt.Errorf("upstream.url is required in ws mode")
		}
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("kafka brokers cannot be empty")
		}
	default:
		return nil, fmt.Errorf("unknown upstream mode %q", cfg.Upstream.Mode)
	}

	return &cfg, nil
}

// NewLogger builds the process logger for the configured environment.
func NewLogger(cfg AppConfig) (*zap.Logger, error) {
	if cfg.Env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
