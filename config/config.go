// Package config loads the assettile configuration from a YAML file,
// ASSETTILE_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/assettile/internal/resample"
	"github.com/gogpu/assettile/tile"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "ASSETTILE"

// Config is the assettile configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (ASSETTILE_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// CacheDir is where tiles are written. A leading ~ is expanded.
	CacheDir string `mapstructure:"cache_dir" validate:"required" yaml:"cache_dir"`

	// TileSize is the tile edge length in pixels.
	TileSize int `mapstructure:"tile_size" validate:"min=4,max=1024,multiple4" yaml:"tile_size"`

	// AdmissionCapacity is the render admission ring size.
	AdmissionCapacity int `mapstructure:"admission_capacity" validate:"min=1,max=1024" yaml:"admission_capacity"`

	// ReadbackFrames is how many ticks the pipeline waits for a read-back.
	ReadbackFrames int `mapstructure:"readback_frames" validate:"min=1,max=16,gtefield=ReadbackLatency" yaml:"readback_frames"`

	// ReadbackLatency is the software renderer's read-back latency in frames.
	ReadbackLatency int `mapstructure:"readback_latency" validate:"min=0,max=16" yaml:"readback_latency"`

	// TickInterval is the host tick period.
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"gt=0" yaml:"tick_interval"`

	// Filter is the image resampling filter.
	Filter string `mapstructure:"filter" validate:"oneof=lanczos catmullrom catmull-rom bicubic box" yaml:"filter"`

	// Placeholders optionally replaces generated placeholder tiles.
	Placeholders PlaceholderConfig `mapstructure:"placeholders" yaml:"placeholders"`

	// Manifest enables skipping unchanged sources across runs.
	Manifest bool `mapstructure:"manifest" yaml:"manifest"`

	// WatchDebounce is the quiet period before a changed file is refreshed.
	WatchDebounce time.Duration `mapstructure:"watch_debounce" validate:"gte=0" yaml:"watch_debounce"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// PlaceholderConfig holds optional DDS files used as placeholders.
type PlaceholderConfig struct {
	Image    string `mapstructure:"image" validate:"omitempty,file" yaml:"image"`
	Model    string `mapstructure:"model" validate:"omitempty,file" yaml:"model"`
	Material string `mapstructure:"material" validate:"omitempty,file" yaml:"material"`
	Shader   string `mapstructure:"shader" validate:"omitempty,file" yaml:"shader"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the host:port the metrics server binds.
	Listen string `mapstructure:"listen" validate:"omitempty,hostname_port" yaml:"listen"`
}

// Load reads the configuration at configPath, or the default location when
// configPath is empty. A missing file yields the defaults with environment
// overrides applied.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper registers defaults, environment overrides and the file to read.
func setupViper(v *viper.Viper, configPath string) {
	d := Default()
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("tile_size", d.TileSize)
	v.SetDefault("admission_capacity", d.AdmissionCapacity)
	v.SetDefault("readback_frames", d.ReadbackFrames)
	v.SetDefault("readback_latency", d.ReadbackLatency)
	v.SetDefault("tick_interval", d.TickInterval)
	v.SetDefault("filter", d.Filter)
	v.SetDefault("placeholders.image", "")
	v.SetDefault("placeholders.model", "")
	v.SetDefault("placeholders.material", "")
	v.SetDefault("placeholders.shader", "")
	v.SetDefault("manifest", d.Manifest)
	v.SetDefault("watch_debounce", d.WatchDebounce)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)

	// ASSETTILE_LOGGING_LEVEL=DEBUG overrides logging.level.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reports whether a configuration file was read. A missing
// file is not an error.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

// expandPaths resolves ~ in every path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.CacheDir,
		&c.Placeholders.Image,
		&c.Placeholders.Model,
		&c.Placeholders.Material,
		&c.Placeholders.Shader,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("config: expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("multiple4", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%4 == 0
	})
	return v
}

// Validate checks cfg against its field constraints.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

// ConfigDir returns the configuration directory: $ASSETTILE_HOME if set,
// otherwise ~/.assettile, or the current directory when the home directory
// is unknown.
func ConfigDir() string {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir
	}
	home, err := homedir.Dir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".assettile")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ResampleFilter returns the configured filter.
func (c *Config) ResampleFilter() (resample.Filter, error) {
	return resample.ParseFilter(c.Filter)
}

// PlaceholderFiles returns the configured placeholder files by kind.
func (c *Config) PlaceholderFiles() map[tile.Kind]string {
	files := make(map[tile.Kind]string)
	for k, p := range map[tile.Kind]string{
		tile.KindImage:    c.Placeholders.Image,
		tile.KindModel:    c.Placeholders.Model,
		tile.KindPrefab:   c.Placeholders.Model,
		tile.KindMaterial: c.Placeholders.Material,
		tile.KindShader:   c.Placeholders.Shader,
	} {
		if p != "" {
			files[k] = p
		}
	}
	return files
}

// ManifestDir returns where the freshness manifest is kept.
func (c *Config) ManifestDir() string {
	return filepath.Join(c.CacheDir, ".manifest")
}

// LogLevel returns the slog level for Logging.Level.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel()}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
