package assettile

import (
	"image/color"
	"log/slog"
	"time"

	"github.com/gogpu/assettile/cache"
	"github.com/gogpu/assettile/internal/resample"
	"github.com/gogpu/assettile/metrics"
	"github.com/gogpu/assettile/render"
	"github.com/gogpu/assettile/tile"
)

// Option configures a Router during creation.
//
// Example:
//
//	r, err := assettile.New("tiles",
//	    assettile.WithTileSize(256),
//	    assettile.WithFilter(resample.FilterCatmullRom),
//	)
type Option func(*options)

// options holds optional configuration for Router creation.
type options struct {
	tileSize         int
	capacity         int
	readbackFrames   int
	readbackLatency  int
	filter           resample.Filter
	placeholderFiles map[tile.Kind]string
	manifest         *cache.Manifest
	device           render.DeviceHandle
	clearColor       color.NRGBA
	watchDebounce    time.Duration
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

// defaultOptions returns the default router options.
func defaultOptions() options {
	return options{
		tileSize:        DefaultTileSize,
		capacity:        DefaultCapacity,
		readbackFrames:  DefaultReadbackFrames,
		readbackLatency: render.DefaultReadbackLatency,
		filter:          resample.FilterLanczos,
	}
}

// WithTileSize sets the tile edge length in pixels. It must be a positive
// multiple of 4.
func WithTileSize(n int) Option {
	return func(o *options) {
		o.tileSize = n
	}
}

// WithCapacity sets the render admission ring size.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithReadbackFrames sets how many ticks the pipeline waits for a read-back.
// It must be at least the renderer's read-back latency.
func WithReadbackFrames(n int) Option {
	return func(o *options) {
		o.readbackFrames = n
	}
}

// WithReadbackLatency sets the software renderer's read-back latency in
// frames.
func WithReadbackLatency(n int) Option {
	return func(o *options) {
		o.readbackLatency = n
	}
}

// WithFilter selects the image resampling filter.
func WithFilter(f resample.Filter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// WithPlaceholderFile uses the DDS file at path as the placeholder for kind
// instead of the generated one.
func WithPlaceholderFile(kind tile.Kind, path string) Option {
	return func(o *options) {
		if o.placeholderFiles == nil {
			o.placeholderFiles = make(map[tile.Kind]string)
		}
		o.placeholderFiles[kind] = path
	}
}

// WithManifest enables cross-session freshness checks. The router takes
// ownership of m and closes it in Close.
func WithManifest(m *cache.Manifest) Option {
	return func(o *options) {
		o.manifest = m
	}
}

// WithDevice passes the host's GPU device provider to the offscreen
// renderer.
func WithDevice(d render.DeviceHandle) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithClearColor sets the rendered tile background. Default transparent.
func WithClearColor(c color.NRGBA) Option {
	return func(o *options) {
		o.clearColor = c
	}
}

// WithLogger sets the router logger. Without it the package logger
// (see SetLogger) is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records submissions and tile outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithWatchDebounce sets the quiet period the watcher waits for before
// refreshing a changed file.
func WithWatchDebounce(d time.Duration) Option {
	return func(o *options) {
		o.watchDebounce = d
	}
}
