// Package config loads pricefeed configuration from YAML files and
// PRICEFEED_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Aidin1998/pricefeed/internal/counter"
	"github.com/Aidin1998/pricefeed/internal/feed"
	"github.com/Aidin1998/pricefeed/internal/market"
	"github.com/Aidin1998/pricefeed/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// PRICEFEED_QUEUE_CAPACITY.
const EnvPrefix = "PRICEFEED"

// Config is the complete process configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Extract ExtractConfig `mapstructure:"extract"`
	Status  StatusConfig  `mapstructure:"status"`
	Sinks   SinksConfig   `mapstructure:"sinks"`
	Race    RaceConfig    `mapstructure:"race"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"loglevel"`
}

// FeedConfig selects the message source.
type FeedConfig struct {
	BaseURL          string        `mapstructure:"base_url" validate:"required,url"`
	Streams          []string      `mapstructure:"streams" validate:"required,min=1,dive,required"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gte=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	// ReplayFile, when set, replaces the websocket with recorded frames.
	ReplayFile     string        `mapstructure:"replay_file"`
	ReplayInterval time.Duration `mapstructure:"replay_interval" validate:"gte=0"`
}

// URL is the combined-stream endpoint for the configured streams.
func (f FeedConfig) URL() string {
	return feed.StreamURL(f.BaseURL, f.Streams)
}

// QueueConfig sizes the queue between source and consumer.
type QueueConfig struct {
	// Capacity of zero makes the queue unbounded.
	Capacity         int `mapstructure:"capacity" validate:"gte=0"`
	LagWarnThreshold int `mapstructure:"lag_warn_threshold" validate:"gte=0"`
}

// ExtractConfig names where symbol and price live in a frame.
type ExtractConfig struct {
	SymbolPath string `mapstructure:"symbol_path" validate:"required"`
	PricePath  string `mapstructure:"price_path" validate:"required"`
}

// Extractor parses the configured paths.
func (e ExtractConfig) Extractor() (market.Extractor, error) {
	return market.NewExtractor(e.SymbolPath, e.PricePath)
}

// StatusConfig configures the HTTP status server; an empty address disables it.
type StatusConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// SinksConfig enables optional fan-out of price updates.
type SinksConfig struct {
	Log          bool     `mapstructure:"log"`
	RedisAddr    string   `mapstructure:"redis_addr"`
	RedisChannel string   `mapstructure:"redis_channel" validate:"required_with=RedisAddr"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic" validate:"required_with=KafkaBrokers"`
}

// TracingConfig enables OpenTelemetry spans for the status server and the
// consumer loop, exported to stdout.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
	PrettyPrint bool   `mapstructure:"pretty_print"`
}

// RaceConfig drives the shared counter demonstration.
type RaceConfig struct {
	Workers int    `mapstructure:"workers" validate:"gte=1"`
	Amount  int64  `mapstructure:"amount" validate:"gte=1"`
	Repeats int    `mapstructure:"repeats" validate:"gte=1"`
	Trials  int    `mapstructure:"trials" validate:"gte=1"`
	Locking string `mapstructure:"locking" validate:"oneof=none unsynchronized mutex both"`
}

// Modes returns the locking modes to run, in order.
func (r RaceConfig) Modes() ([]counter.Locking, error) {
	if r.Locking == "both" {
		return []counter.Locking{counter.Unsynchronized, counter.Mutex}, nil
	}
	mode, err := counter.ParseLocking(r.Locking)
	if err != nil {
		return nil, err
	}
	return []counter.Locking{mode}, nil
}

// DefaultPaths are searched when Load is called without paths.
var DefaultPaths = []string{
	"./config.yaml",
	"./configs/config.yaml",
	"/etc/pricefeed/config.yaml",
}

var validate = newValidator()

// newValidator registers loglevel, which accepts exactly what the logger parses.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := logger.ParseLevel(fl.Field().String())
		return err == nil
	})
	return v
}

// Load merges defaults, every existing file in paths (DefaultPaths when
// empty) and environment overrides, then validates the result.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(paths) == 0 {
		paths = DefaultPaths
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that the extraction paths parse.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if _, err := c.Extract.Extractor(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if _, err := c.Race.Modes(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("feed.base_url", "wss://stream.binance.com:443")
	v.SetDefault("feed.streams", []string{"ethusdt@kline_1m", "btcusdt@kline_1m", "adausdt@kline_1m"})
	v.SetDefault("feed.handshake_timeout", 10*time.Second)
	v.SetDefault("feed.write_timeout", 5*time.Second)
	v.SetDefault("feed.replay_file", "")
	v.SetDefault("feed.replay_interval", time.Duration(0))

	v.SetDefault("queue.capacity", 1024)
	v.SetDefault("queue.lag_warn_threshold", 512)

	v.SetDefault("extract.symbol_path", "data.k.s")
	v.SetDefault("extract.price_path", "data.k.c")

	v.SetDefault("status.addr", ":8080")
	v.SetDefault("status.shutdown_timeout", 5*time.Second)

	v.SetDefault("sinks.log", true)
	v.SetDefault("sinks.redis_addr", "")
	v.SetDefault("sinks.redis_channel", "pricefeed:prices")
	v.SetDefault("sinks.kafka_brokers", []string{})
	v.SetDefault("sinks.kafka_topic", "pricefeed.prices")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "pricefeed")
	v.SetDefault("tracing.pretty_print", false)

	v.SetDefault("race.workers", 1)
	v.SetDefault("race.amount", 100)
	v.SetDefault("race.repeats", 1_000_000)
	v.SetDefault("race.trials", 1)
	v.SetDefault("race.locking", "both")
}
