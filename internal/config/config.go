// Package config decodes the YAML-driven settings for a marketstream
// session: reconnect/backoff and backpressure tuning shared by every
// ExchangeStream, plus per-exchange connection-pool knobs, mirroring the
// teacher's config.Config layout.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cryptostream/stream"
)

// Config is the top-level decoded document.
type Config struct {
	Stream   StreamConfig            `yaml:"stream"`
	Logging  LoggingConfig            `yaml:"logging"`
	Metrics  MetricsConfig            `yaml:"metrics"`
	Source   map[string]ExchangeConf  `yaml:"source"`
}

// StreamConfig holds the reconnect/backoff/backpressure knobs applied to
// every ExchangeStream, matching stream.Config field-for-field so it can
// be decoded straight from YAML and converted with ToStreamConfig.
type StreamConfig struct {
	ReconnectBaseMS    int    `yaml:"reconnect_base_ms"`
	ReconnectCapMS     int    `yaml:"reconnect_cap_ms"`
	ChannelCapacity    int    `yaml:"channel_capacity"`
	OnFull             string `yaml:"on_full"` // "block", "drop_oldest", "drop_newest"
	LivenessTimeoutMS  int    `yaml:"liveness_timeout_ms"`
	SubscribeBufferCap int    `yaml:"subscribe_buffer_cap"`
}

// ToStreamConfig converts the decoded YAML shape into stream.Config,
// falling back to stream.DefaultConfig for any zero-valued field.
func (c StreamConfig) ToStreamConfig() stream.Config {
	def := stream.DefaultConfig()
	out := def
	if c.ReconnectBaseMS != 0 {
		out.ReconnectBaseMS = c.ReconnectBaseMS
	}
	if c.ReconnectCapMS != 0 {
		out.ReconnectCapMS = c.ReconnectCapMS
	}
	if c.ChannelCapacity != 0 {
		out.ChannelCapacity = c.ChannelCapacity
	}
	if c.LivenessTimeoutMS != 0 {
		out.LivenessTimeoutMS = c.LivenessTimeoutMS
	}
	if c.SubscribeBufferCap != 0 {
		out.SubscribeBufferCap = c.SubscribeBufferCap
	}
	switch c.OnFull {
	case "drop_oldest":
		out.OnFull = stream.DropOldest
	case "drop_newest":
		out.OnFull = stream.DropNewest
	case "block", "":
		out.OnFull = stream.Block
	}
	return out
}

// LoggingConfig mirrors logger.Log.Configure's parameters.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or a file path
	MaxAge int    `yaml:"max_age_days"`
}

// MetricsConfig controls the Prometheus HTTP endpoint. Addr is decoded but
// nothing reads it; metrics.Init always listens on :2112.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ExchangeConf is the per-exchange connection-pool tuning, mirroring the
// teacher's SourceConfig/ConnectionPoolConfig nesting.
type ExchangeConf struct {
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

// ConnectionPoolConfig tunes the http.Transport used for any REST calls a
// connector's handshake needs (Kucoin's bullet-token bootstrap).
type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// Load reads and decodes a YAML config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
