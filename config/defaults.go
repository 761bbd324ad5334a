package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		CacheDir:          filepath.Join("~", ".assettile", "tiles"),
		TileSize:          128,
		AdmissionCapacity: 8,
		ReadbackFrames:    2,
		ReadbackLatency:   2,
		TickInterval:      16 * time.Millisecond,
		Filter:            "lanczos",
		Manifest:          true,
		WatchDebounce:     250 * time.Millisecond,
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
		},
	}
}

// ApplyDefaults fills zero values with defaults and normalizes enums.
// ReadbackLatency and the booleans keep their zero values.
func ApplyDefaults(cfg *Config) {
	d := Default()
	if cfg.CacheDir == "" {
		cfg.CacheDir = d.CacheDir
	}
	if cfg.TileSize == 0 {
		cfg.TileSize = d.TileSize
	}
	if cfg.AdmissionCapacity == 0 {
		cfg.AdmissionCapacity = d.AdmissionCapacity
	}
	if cfg.ReadbackFrames == 0 {
		cfg.ReadbackFrames = d.ReadbackFrames
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = d.TickInterval
	}
	if cfg.WatchDebounce == 0 {
		cfg.WatchDebounce = d.WatchDebounce
	}
	cfg.Filter = strings.ToLower(cfg.Filter)
	if cfg.Filter == "" {
		cfg.Filter = d.Filter
	}

	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = d.Metrics.Listen
	}
}
