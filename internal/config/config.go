// Package config loads the vdemux YAML configuration and resolves the user
// configuration directory.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/stream"
)

// FileName is the configuration file looked up in Dir.
const FileName = "config.yaml"

// Config is the application configuration.
type Config struct {
	Demux    DemuxConfig   `yaml:"demux"`
	Stream   StreamConfig  `yaml:"stream"`
	Metrics  MetricsConfig `yaml:"metrics"`
	LogLevel string        `yaml:"log_level"`
}

type DemuxConfig struct {
	ReadaheadPackets int           `yaml:"readahead_packets"`
	MaxPackets       int           `yaml:"max_packets"`
	MaxBytes         int           `yaml:"max_bytes"`
	MaxTracks        int           `yaml:"max_tracks"`
	UpdateInterval   time.Duration `yaml:"update_interval"`
	IdleWait         time.Duration `yaml:"idle_wait"`
	Threaded         bool          `yaml:"threaded"`
	Format           string        `yaml:"format"` // forced format, "+name" to skip probing
}

type StreamConfig struct {
	CacheSize   int           `yaml:"cache_size"` // bytes, 0 disables the cache
	Readahead   int           `yaml:"readahead"`  // bytes
	SRTLatency  time.Duration `yaml:"srt_latency"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	lim := demux.DefaultLimits()
	return &Config{
		Demux: DemuxConfig{
			ReadaheadPackets: lim.Readahead,
			MaxPackets:       lim.MaxPackets,
			MaxBytes:         lim.MaxBytes,
			MaxTracks:        lim.MaxTracks,
			UpdateInterval:   lim.UpdateInterval,
			IdleWait:         lim.IdleWait,
			Threaded:         true,
		},
		Stream: StreamConfig{
			CacheSize:   8 << 20,
			Readahead:   1 << 20,
			SRTLatency:  120 * time.Millisecond,
			DialTimeout: 10 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the demuxer cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Demux.ReadaheadPackets < 0, c.Demux.MaxPackets < 0, c.Demux.MaxBytes < 0, c.Demux.MaxTracks < 0:
		return errors.New("demux limits must not be negative")
	case c.Stream.CacheSize < 0 || c.Stream.Readahead < 0:
		return errors.New("stream cache sizes must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Limits converts the demux section. Zero values fall back to the demuxer
// defaults.
func (c *Config) Limits() demux.Limits {
	return demux.Limits{
		MaxPackets:     c.Demux.MaxPackets,
		MaxBytes:       c.Demux.MaxBytes,
		MaxTracks:      c.Demux.MaxTracks,
		Readahead:      c.Demux.ReadaheadPackets,
		UpdateInterval: c.Demux.UpdateInterval,
		IdleWait:       c.Demux.IdleWait,
	}
}

// OpenOptions converts the stream section.
func (c *Config) OpenOptions(log *slog.Logger) stream.OpenOptions {
	return stream.OpenOptions{
		CacheSize:      c.Stream.CacheSize,
		CacheReadahead: c.Stream.Readahead,
		SRTLatency:     c.Stream.SRTLatency,
		DialTimeout:    c.Stream.DialTimeout,
		Logger:         log,
	}
}
