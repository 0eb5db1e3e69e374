package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultWSPath        = "/ws"
	DefaultWriteTimeout  = 10 * time.Second
	DefaultPongWait      = 60 * time.Second
	DefaultReadLimit     = 64 * 1024
	DefaultInitialDelay  = 1 * time.Second
	DefaultPeriod        = 2 * time.Second
	DefaultConcurrency   = 32
	DefaultLogLevel      = "info"
	minPongWait          = time.Second
	maxBroadcastParallel = 1024
)

// Config is the full datastream configuration parsed from config.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Stream    StreamConfig    `yaml:"stream"`
	Generator GeneratorConfig `yaml:"generator"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the HTTP and WebSocket listener settings.
type ServerConfig struct {
	// HTTPPort is the port the WebSocket endpoint, REST API and /metrics
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// WSPath is the path of the WebSocket endpoint (default /ws).
	WSPath string `yaml:"ws_path"`

	// WriteTimeout bounds a single write to a client.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PongWait is how long to wait for a pong before the connection is
	// treated as dead. Pings go out at 9/10 of this value.
	PongWait time.Duration `yaml:"pong_wait"`

	// ReadLimit is the maximum inbound message size in bytes.
	ReadLimit int64 `yaml:"read_limit"`

	// AllowedOrigins restricts the Origin header on upgrade requests.
	// Empty accepts every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StreamConfig controls the per-session sample cadence.
type StreamConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	Period       time.Duration `yaml:"period"`
}

// GeneratorConfig controls the mock sample generator.
type GeneratorConfig struct {
	// Countries is the list of ISO codes samples are drawn from.
	Countries []string `yaml:"countries"`

	// Seed fixes the random sequence; 0 seeds from the current time.
	Seed uint64 `yaml:"seed"`
}

// BroadcastConfig controls broadcast fan-out.
type BroadcastConfig struct {
	// Concurrency caps the number of sessions written to in parallel.
	Concurrency int `yaml:"concurrency"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel returns the slog level named by Level.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     DefaultHTTPPort,
			WSPath:       DefaultWSPath,
			WriteTimeout: DefaultWriteTimeout,
			PongWait:     DefaultPongWait,
			ReadLimit:    DefaultReadLimit,
		},
		Stream: StreamConfig{
			InitialDelay: DefaultInitialDelay,
			Period:       DefaultPeriod,
		},
		Broadcast: BroadcastConfig{
			Concurrency: DefaultConcurrency,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		return fmt.Errorf("server.ws_path %q must start with /", cfg.Server.WSPath)
	}
	if cfg.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}
	if cfg.Server.PongWait < minPongWait {
		return fmt.Errorf("server.pong_wait must be at least %v", minPongWait)
	}
	if cfg.Server.ReadLimit <= 0 {
		return fmt.Errorf("server.read_limit must be positive")
	}
	if cfg.Stream.InitialDelay < 0 {
		return fmt.Errorf("stream.initial_delay must not be negative")
	}
	if cfg.Stream.Period <= 0 {
		return fmt.Errorf("stream.period must be positive")
	}
	for _, c := range cfg.Generator.Countries {
		if len(c) != 2 || strings.ToUpper(c) != c {
			return fmt.Errorf("generator.countries: %q is not an upper-case ISO 3166-1 alpha-2 code", c)
		}
	}
	if cfg.Broadcast.Concurrency <= 0 || cfg.Broadcast.Concurrency > maxBroadcastParallel {
		return fmt.Errorf("broadcast.concurrency %d is out of range [1, %d]", cfg.Broadcast.Concurrency, maxBroadcastParallel)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}
