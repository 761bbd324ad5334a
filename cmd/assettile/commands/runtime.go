package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gogpu/assettile"
	"github.com/gogpu/assettile/cache"
	"github.com/gogpu/assettile/config"
	"github.com/gogpu/assettile/metrics"
	"github.com/gogpu/assettile/tile"
)

// shutdownTimeout bounds the metrics server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// runtime bundles what a long-running command needs.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	router   *assettile.Router
	registry *prometheus.Registry
}

// loadRuntime loads the configuration and builds a router from it.
// cacheDir, when non-empty, overrides the configured cache directory.
func loadRuntime(stderr io.Writer, cacheDir string) (*runtime, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}

	log := cfg.NewLogger(stderr)
	assettile.SetLogger(log)

	filter, err := cfg.ResampleFilter()
	if err != nil {
		return nil, err
	}

	opts := []assettile.Option{
		assettile.WithLogger(log),
		assettile.WithTileSize(cfg.TileSize),
		assettile.WithCapacity(cfg.AdmissionCapacity),
		assettile.WithReadbackFrames(cfg.ReadbackFrames),
		assettile.WithReadbackLatency(cfg.ReadbackLatency),
		assettile.WithFilter(filter),
		assettile.WithWatchDebounce(cfg.WatchDebounce),
	}
	for kind, path := range cfg.PlaceholderFiles() {
		opts = append(opts, assettile.WithPlaceholderFile(kind, path))
	}

	rt := &runtime{cfg: cfg, log: log}
	if cfg.Metrics.Enabled {
		rt.registry = prometheus.NewRegistry()
		opts = append(opts, assettile.WithMetrics(metrics.New(rt.registry)))
	}

	var manifest *cache.Manifest
	if cfg.Manifest {
		manifest, err = cache.OpenManifest(cfg.ManifestDir(), log)
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		opts = append(opts, assettile.WithManifest(manifest))
	}

	rt.router, err = assettile.New(cfg.CacheDir, opts...)
	if err != nil {
		if manifest != nil {
			_ = manifest.Close()
		}
		return nil, err
	}
	return rt, nil
}

// tick drives the router every interval until ctx is done, or until the
// router is idle when untilIdle is set.
func tick(ctx context.Context, r *assettile.Router, interval time.Duration, untilIdle bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick()
			if untilIdle && r.Idle() {
				return nil
			}
		}
	}
}

// newMetricsHandler serves the registry and a liveness probe.
func newMetricsHandler(reg *prometheus.Registry, r *assettile.Router) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if r != nil && r.Idle() {
			_, _ = io.WriteString(w, "ok idle\n")
			return
		}
		_, _ = io.WriteString(w, "ok\n")
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// serveMetrics runs the metrics server on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}

// collectFiles expands paths into asset files. Directories are walked,
// skipping hidden entries and files of unknown kind. Files named explicitly
// are always returned.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != p && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && tile.KindFromPath(path).IsValid() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
