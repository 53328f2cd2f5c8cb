package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"rift-rewind/internal/constants"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	RiotAPIKey string `koanf:"riot_api_key"`
	DBPath     string `koanf:"db_path"`
	ServerPort string `koanf:"server_port"`
	LogLevel   string `koanf:"log_level"`

	// Coaching consumer endpoint; empty disables the windowed-delta
	// invocation entirely.
	CoachingURL string `koanf:"coaching_url"`

	RequestsPerSecond float64       `koanf:"requests_per_second"`
	LimiterFraction   float64       `koanf:"limiter_fraction"`
	WindowSize        time.Duration `koanf:"window_size"`
	WindowLimit       int           `koanf:"window_limit"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay"`
	RetryBudget       int           `koanf:"retry_budget"`

	PageSize  int           `koanf:"page_size"`
	PageDelay time.Duration `koanf:"page_delay"`

	ProbeBatchSize int           `koanf:"probe_batch_size"`
	ProbeDelay     time.Duration `koanf:"probe_delay"`

	QueueBatchSize    int           `koanf:"queue_batch_size"`
	QueueMaxReceive   int           `koanf:"queue_max_receive"`
	QueueDedupeWindow time.Duration `koanf:"queue_dedupe_window"`

	WorkerCount        int `koanf:"worker_count"`
	CheckpointInterval int `koanf:"checkpoint_interval"`

	StreamPollInterval time.Duration `koanf:"stream_poll_interval"`
	StreamTimeout      time.Duration `koanf:"stream_timeout"`
}

func defaults() *Config {
	return &Config{
		DBPath:             "rewind.db",
		ServerPort:         "8080",
		LogLevel:           "info",
		RequestsPerSecond:  constants.RiotRequestsPerSecond,
		LimiterFraction:    constants.RiotLimiterFraction,
		WindowSize:         constants.RiotWindowSize,
		WindowLimit:        constants.RiotWindowLimit,
		RetryBaseDelay:     constants.RiotRetryBaseDelay,
		RetryMaxDelay:      constants.RiotRetryMaxDelay,
		RetryBudget:        constants.RiotRetryBudget,
		PageSize:           constants.DiscoveryPageSize,
		PageDelay:          constants.DiscoveryPageDelay,
		ProbeBatchSize:     constants.CacheProbeBatchSize,
		ProbeDelay:         constants.CacheProbeDelay,
		QueueBatchSize:     constants.QueueBatchSize,
		QueueMaxReceive:    constants.QueueMaxReceive,
		QueueDedupeWindow:  constants.QueueDedupeWindow,
		WorkerCount:        constants.WorkerCount,
		CheckpointInterval: constants.CheckpointInterval,
		StreamPollInterval: constants.StreamPollInterval,
		StreamTimeout:      constants.StreamTimeout,
	}
}

// Load builds the config by layering defaults, an optional YAML file
// (REWIND_CONFIG), and REWIND_-prefixed environment variables, in that
// order of precedence.
func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	k := koanf.New(".")

	if path := os.Getenv("REWIND_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("REWIND_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "REWIND_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.RiotAPIKey == "" {
		cfg.RiotAPIKey = os.Getenv("RIOT_API_KEY")
	}
	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("RIOT_API_KEY is required")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker_count must be positive")
	}
	if cfg.CheckpointInterval < 1 {
		return nil, fmt.Errorf("checkpoint_interval must be positive")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("worker_count", cfg.WorkerCount).
		Float64("requests_per_second", cfg.RequestsPerSecond).
		Msg("configuration loaded")

	return cfg, nil
}

var Module = fx.Provide(Load)
