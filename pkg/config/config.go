// Package config loads the YAML configuration of indi-bridge.
//
// A configuration file looks like:
//
//	server:
//	  address: localhost:7624
//	  devices: ["CCD Simulator", "Telescope Simulator"]
//	backoff:
//	  initial: 500ms
//	  max: 30s
//	blob:
//	  mode: Never
//	nats:
//	  url: nats://localhost:4222
//	  prefix: indi
//	redis:
//	  addr: localhost:6379
//	  ttl: 24h
//	log:
//	  level: info
//
// Missing fields take the values of Default. Selected fields can be
// overridden from the environment (see ApplyEnv).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/indi-protocol/indi-go/pkg/connection"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Validation errors.
var (
	ErrMissingAddress = errors.New("server address is required")
	ErrInvalidValue   = errors.New("invalid configuration value")
)

// Config is the bridge configuration.
type Config struct {
	Server  ServerConfig             `yaml:"server"`
	Backoff connection.BackoffConfig `yaml:"backoff"`
	BLOB    BLOBConfig               `yaml:"blob"`
	NATS    NATSConfig               `yaml:"nats"`
	Redis   RedisConfig              `yaml:"redis"`
	Log     LogConfig                `yaml:"log"`
}

// ServerConfig selects the INDI server and the devices to follow.
type ServerConfig struct {
	// Address is host:port of the INDI server.
	Address string `yaml:"address"`

	// Devices limits getProperties to these devices. Empty means all.
	Devices []string `yaml:"devices"`

	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// MaxBufferSize bounds stream reassembly in bytes.
	MaxBufferSize int `yaml:"max_buffer_size"`

	// WriteTimeout bounds each command write.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// BLOBConfig controls BLOB delivery.
type BLOBConfig struct {
	// Mode is sent in enableBLOB for every followed device: Never, Also or Only.
	Mode string `yaml:"mode"`

	// MaxPublishSize drops BLOB payloads above this size from published
	// updates. Zero publishes metadata only.
	MaxPublishSize int `yaml:"max_publish_size"`
}

// NATSConfig configures the uplink and command subjects.
type NATSConfig struct {
	// URL of the NATS server. Empty disables NATS.
	URL string `yaml:"url"`

	// Prefix is the first subject token, e.g. "indi" publishes
	// indi.<device>.<property> and listens on indi.cmd.
	Prefix string `yaml:"prefix"`

	// Name is the client connection name.
	Name string `yaml:"name"`
}

// RedisConfig configures the property state cache.
type RedisConfig struct {
	// Addr is host:port of the Redis server. Empty disables the cache.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix is the key prefix: <prefix>:prop:<device>:<property>.
	Prefix string `yaml:"prefix"`

	// TTL expires cached properties not refreshed in time.
	TTL time.Duration `yaml:"ttl"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// ProtocolFile, when set, captures protocol events to a CBOR .ilog file.
	ProtocolFile string `yaml:"protocol_file"`

	// SkipFrames leaves raw stream reads and writes out of the capture.
	SkipFrames bool `yaml:"skip_frames"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        transport.Address("localhost", transport.DefaultPort),
			ConnectTimeout: 10 * time.Second,
			MaxBufferSize:  transport.DefaultMaxBufferSize,
		},
		Backoff: connection.BackoffConfig{
			Initial:    connection.InitialBackoff,
			Max:        connection.MaxBackoff,
			Multiplier: connection.BackoffMultiplier,
			Jitter:     connection.JitterFactor,
		},
		BLOB: BLOBConfig{
			Mode: wire.BLOBNever,
		},
		NATS: NATSConfig{
			URL:    "nats://localhost:4222",
			Prefix: "indi",
			Name:   "indi-bridge",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "indi",
			TTL:    24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a configuration file, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvServerAddress = "INDI_SERVER"
	EnvNATSURL       = "INDI_BRIDGE_NATS_URL"
	EnvRedisAddr     = "INDI_BRIDGE_REDIS_ADDR"
	EnvRedisPassword = "INDI_BRIDGE_REDIS_PASSWORD"
	EnvRedisDB       = "INDI_BRIDGE_REDIS_DB"
	EnvLogLevel      = "INDI_BRIDGE_LOG_LEVEL"
)

// ApplyEnv overrides fields from environment variables and revalidates.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvServerAddress, &c.Server.Address)
	set(EnvNATSURL, &c.NATS.URL)
	set(EnvRedisAddr, &c.Redis.Addr)
	set(EnvRedisPassword, &c.Redis.Password)
	set(EnvLogLevel, &c.Log.Level)

	if v, ok := lookup(EnvRedisDB); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, EnvRedisDB, v)
		}
		c.Redis.DB = db
	}
	return c.Validate()
}

// Validate checks the configuration and normalises keyword fields.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return ErrMissingAddress
	}
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		// A bare host gets the default port.
		c.Server.Address = transport.Address(c.Server.Address, transport.DefaultPort)
	}
	if c.Server.ConnectTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("%w: negative server timeout", ErrInvalidValue)
	}
	if c.Server.MaxBufferSize < 0 {
		return fmt.Errorf("%w: max_buffer_size %d", ErrInvalidValue, c.Server.MaxBufferSize)
	}

	mode, err := wire.CheckBLOBMode(c.BLOB.Mode)
	if err != nil {
		return fmt.Errorf("blob.mode: %w", err)
	}
	c.BLOB.Mode = mode.(string)
	if c.BLOB.MaxPublishSize < 0 {
		return fmt.Errorf("%w: blob.max_publish_size %d", ErrInvalidValue, c.BLOB.MaxPublishSize)
	}

	if c.Backoff.Initial < 0 || c.Backoff.Max < 0 {
		return fmt.Errorf("%w: negative backoff", ErrInvalidValue)
	}
	if c.Backoff.Jitter > 1 {
		return fmt.Errorf("%w: backoff.jitter %v above 1", ErrInvalidValue, c.Backoff.Jitter)
	}

	if c.NATS.URL != "" && strings.ContainsAny(c.NATS.Prefix, " *>") {
		return fmt.Errorf("%w: nats.prefix %q", ErrInvalidValue, c.NATS.Prefix)
	}
	if c.NATS.URL != "" && c.NATS.Prefix == "" {
		return fmt.Errorf("%w: nats.prefix is empty", ErrInvalidValue)
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("%w: redis.ttl %v", ErrInvalidValue, c.Redis.TTL)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: log level %q", ErrInvalidValue, s)
}

// TransportConfig returns the client transport settings.
func (c *Config) TransportConfig() transport.ClientConfig {
	cfg := transport.DefaultClientConfig()
	if c.Server.ConnectTimeout > 0 {
		cfg.ConnectTimeout = c.Server.ConnectTimeout
	}
	if c.Server.MaxBufferSize > 0 {
		cfg.MaxBufferSize = c.Server.MaxBufferSize
	}
	cfg.WriteTimeout = c.Server.WriteTimeout
	return cfg
}
