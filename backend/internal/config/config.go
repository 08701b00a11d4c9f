// Package config loads relay settings from flags, the environment and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultPort              = 3007
	DefaultSweepInterval     = 5 * time.Minute
	DefaultRoomRetention     = 24 * time.Hour
	DefaultMaxMessageBytes   = 64 * 1024
	DefaultMessagesPerSecond = 50
	DefaultLogLevel          = "info"
)

// Config holds the relay configuration.
type Config struct {
	Port int

	// AllowedOrigins is empty when every origin is accepted.
	AllowedOrigins []string

	SweepInterval time.Duration
	RoomRetention time.Duration

	MaxMessageBytes   int64
	MessagesPerSecond int

	// Advertise announces the relay over mDNS.
	Advertise bool

	LogLevel string
}

// Options carries command-line overrides. Zero values fall through to the
// environment and then to the defaults.
type Options struct {
	Port              int
	AllowedOrigins    string
	SweepInterval     time.Duration
	RoomRetention     time.Duration
	MaxMessageBytes   int64
	MessagesPerSecond int
	Advertise         bool
	LogLevel          string
}

// Load resolves each setting with the priority flag > env > default.
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		Port:              opts.Port,
		SweepInterval:     opts.SweepInterval,
		RoomRetention:     opts.RoomRetention,
		MaxMessageBytes:   opts.MaxMessageBytes,
		MessagesPerSecond: opts.MessagesPerSecond,
		Advertise:         opts.Advertise,
		LogLevel:          opts.LogLevel,
	}

	var err error
	if cfg.Port == 0 {
		if cfg.Port, err = envInt("PORT", DefaultPort); err != nil {
			return nil, err
		}
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range", cfg.Port)
	}

	origins := opts.AllowedOrigins
	if origins == "" {
		origins = os.Getenv("ALLOWED_ORIGINS")
	}
	cfg.AllowedOrigins = splitOrigins(origins)

	if cfg.SweepInterval == 0 {
		if cfg.SweepInterval, err = envDuration("SWEEP_INTERVAL", DefaultSweepInterval); err != nil {
			return nil, err
		}
	}
	if cfg.RoomRetention == 0 {
		if cfg.RoomRetention, err = envDuration("ROOM_RETENTION", DefaultRoomRetention); err != nil {
			return nil, err
		}
	}
	if cfg.SweepInterval <= 0 || cfg.RoomRetention <= 0 {
		return nil, fmt.Errorf("sweep interval and room retention must be positive")
	}

	if cfg.MaxMessageBytes == 0 {
		n, err := envInt("MAX_MESSAGE_BYTES", DefaultMaxMessageBytes)
		if err != nil {
			return nil, err
		}
		cfg.MaxMessageBytes = int64(n)
	}
	if cfg.MessagesPerSecond == 0 {
		if cfg.MessagesPerSecond, err = envInt("MESSAGES_PER_SECOND", DefaultMessagesPerSecond); err != nil {
			return nil, err
		}
	}
	if cfg.MaxMessageBytes <= 0 || cfg.MessagesPerSecond <= 0 {
		return nil, fmt.Errorf("message size and rate limits must be positive")
	}

	if !cfg.Advertise {
		if v := os.Getenv("RELAY_ADVERTISE"); v != "" {
			if cfg.Advertise, err = strconv.ParseBool(v); err != nil {
				return nil, fmt.Errorf("RELAY_ADVERTISE: %w", err)
			}
		}
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = os.Getenv("LOG_LEVEL")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// OriginAllowed reports whether a browser Origin header is acceptable.
func (c *Config) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func splitOrigins(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
