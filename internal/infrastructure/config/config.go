package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Broker    BrokerConfig    `koanf:"broker"`
	Security  SecurityConfig  `koanf:"security"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Risk      RiskConfig      `koanf:"risk"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	QueryTimeout    time.Duration `koanf:"query_timeout"`
}

type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type BrokerConfig struct {
	Channel string `koanf:"channel"`
}

type SecurityConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
	Audience  string `koanf:"audience"`
}

type IngestConfig struct {
	MaxFrameBytes   int64         `koanf:"max_frame_bytes"`
	ReadDeadline    time.Duration `koanf:"read_deadline"`
	FramesPerSecond int           `koanf:"frames_per_second"`
	FrameBurst      int           `koanf:"frame_burst"`
}

type RiskConfig struct {
	WindowSize    int           `koanf:"window_size"`
	MinEvents     int           `koanf:"min_events"`
	MinVectors    int           `koanf:"min_vectors"`
	TreeCount     int           `koanf:"tree_count"`
	SampleSize    int           `koanf:"sample_size"`
	Contamination float64       `koanf:"contamination"`
	RandomSeed    int64         `koanf:"random_seed"`
	Workers       int           `koanf:"workers"`
	ModelCacheTTL time.Duration `koanf:"model_cache_ttl"`
}

type TelemetryConfig struct {
	Enabled      bool          `koanf:"enabled"`
	OTLPEndpoint string        `koanf:"otlp_endpoint"`
	SamplingRate float64       `koanf:"sampling_rate"`
	BatchTimeout time.Duration `koanf:"batch_timeout"`
}

// Load builds the configuration from defaults, an optional YAML file,
// and BG_-prefixed environment variables, in that precedence order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Broker: BrokerConfig{
			Channel: "behavioral-stream",
		},
		Ingest: IngestConfig{
			MaxFrameBytes:   4096,
			ReadDeadline:    60 * time.Second,
			FramesPerSecond: 200,
			FrameBurst:      400,
		},
		Risk: RiskConfig{
			WindowSize:    10,
			MinEvents:     50,
			MinVectors:    10,
			TreeCount:     100,
			SampleSize:    256,
			Contamination: 0.1,
			RandomSeed:    42,
			Workers:       4,
			ModelCacheTTL: 15 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
			BatchTimeout: 5 * time.Second,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := k.Load(file.Provider("configs/config.yaml"), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading configs/config.yaml: %w", err)
		}
	}

	// Override with environment variables. Double underscore nests, so
	// BG_SECURITY__JWT_SECRET maps to security.jwt_secret.
	if err := k.Load(env.Provider("BG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "BG_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that have no usable zero value.
func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	if c.Broker.Channel == "" {
		return fmt.Errorf("broker.channel is required")
	}
	if c.Risk.WindowSize < 1 {
		return fmt.Errorf("risk.window_size must be at least 1")
	}
	if c.Risk.Contamination <= 0 || c.Risk.Contamination >= 0.5 {
		return fmt.Errorf("risk.contamination must be in (0, 0.5)")
	}
	return nil
}
