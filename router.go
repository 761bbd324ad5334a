package assettile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/assettile/asset"
	"github.com/gogpu/assettile/cache"
	"github.com/gogpu/assettile/internal/placeholder"
	"github.com/gogpu/assettile/metrics"
	"github.com/gogpu/assettile/pipeline"
	"github.com/gogpu/assettile/render"
	"github.com/gogpu/assettile/scene"
	"github.com/gogpu/assettile/tile"
	"github.com/gogpu/assettile/watch"
	"github.com/gogpu/assettile/worker"
)

// Defaults used when the corresponding option is not given.
const (
	DefaultTileSize       = pipeline.DefaultTileSize
	DefaultCapacity       = pipeline.DefaultCapacity
	DefaultReadbackFrames = pipeline.DefaultReadbackFrames
)

var (
	// ErrInvalidOption is returned by New for out-of-range options.
	ErrInvalidOption = errors.New("assettile: invalid option")

	// ErrClosed is returned by Watch after Close.
	ErrClosed = errors.New("assettile: router closed")
)

// Router is the single entry point for tile requests. It routes images to
// the background worker, models and prefabs to the render pipeline, and
// writes static placeholders for materials and shaders.
//
// Submit, SubmitFile and Refresh are safe for concurrent use. Advance,
// EndFrame, Tick and Close belong to the host tick goroutine.
type Router struct {
	opts options
	log  *slog.Logger

	store        *cache.Store
	manifest     *cache.Manifest
	placeholders *placeholder.Set
	loader       *asset.Loader
	scene        *scene.Scene
	renderer     *render.SoftwareRenderer
	worker       *worker.Worker
	pipeline     *pipeline.Pipeline

	mu     sync.Mutex
	marks  map[uint32]struct{}
	closed bool

	ctx     context.Context
	stop    context.CancelFunc
	watches sync.WaitGroup
}

// Stats is a snapshot of router activity.
type Stats struct {
	Worker      worker.State
	WorkerQueue int
	Pipeline    pipeline.Stats
	Digests     cache.Stats
	Marked      int
}

// New creates a router writing tiles below cacheDir and starts its worker
// goroutine.
func New(cacheDir string, opts ...Option) (*Router, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.tileSize <= 0 || o.tileSize%4 != 0 {
		return nil, fmt.Errorf("%w: tile size %d is not a positive multiple of 4", ErrInvalidOption, o.tileSize)
	}
	if o.readbackFrames < max(o.readbackLatency, 1) {
		return nil, fmt.Errorf("%w: readback frames %d below renderer latency %d",
			ErrInvalidOption, o.readbackFrames, o.readbackLatency)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	store, err := cache.NewStore(cacheDir, cache.WithLogger(log))
	if err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	r := &Router{
		opts:         o,
		log:          log.With("component", "router"),
		store:        store,
		manifest:     o.manifest,
		placeholders: placeholder.New(o.tileSize, o.placeholderFiles),
		loader:       asset.NewLoader(log),
		marks:        make(map[uint32]struct{}),
		ctx:          ctx,
		stop:         stop,
	}
	r.scene = scene.New(r.loader)

	ropts := []render.SoftwareOption{
		render.WithReadbackLatency(o.readbackLatency),
		render.WithClearColor(o.clearColor),
	}
	if o.device != nil {
		ropts = append(ropts, render.WithDevice(o.device))
	}
	r.renderer = render.NewSoftwareRenderer(r.scene, ropts...)

	r.worker = worker.New(worker.Config{
		Sink:         store,
		Placeholders: r.placeholders,
		TileSize:     o.tileSize,
		Filter:       o.filter,
		OnDone:       r.workerDone,
		Logger:       log,
		Metrics:      o.metrics,
	})
	r.pipeline = pipeline.New(pipeline.Config{
		Loader:         r.loader,
		Scene:          r.scene,
		Renderer:       r.renderer,
		Sink:           store,
		Placeholders:   r.placeholders,
		TileSize:       o.tileSize,
		Capacity:       o.capacity,
		ReadbackFrames: o.readbackFrames,
		OnDone:         r.pipelineDone,
		Logger:         log,
		Metrics:        o.metrics,
	})

	r.log.Info("router started", "cache_dir", store.Dir(), "tile_size", o.tileSize,
		"capacity", o.capacity, "filter", o.filter, "manifest", o.manifest != nil)
	return r, nil
}

// Submit requests a tile for the asset at path. It returns false for
// unknown kinds, after Close, and when a material or shader placeholder
// cannot be written. Duplicate submissions of a tile already pending or
// written this session return true without doing anything.
func (r *Router) Submit(path string, kind tile.Kind) bool {
	if !kind.IsValid() {
		r.log.Debug("rejected request", "path", path, "reason", tile.Reason(tile.ErrUnknownKind))
		r.opts.metrics.Submitted(kind, metrics.RouteRejected)
		return false
	}
	req := tile.NewRequest(path, kind)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.marks[req.Hash]; ok {
		r.mu.Unlock()
		r.opts.metrics.Submitted(kind, metrics.RouteDuplicate)
		return true
	}
	r.marks[req.Hash] = struct{}{}
	r.mu.Unlock()

	if r.fresh(req) {
		r.log.Debug("tile up to date", "path", req.Path, "hash", req.Hash)
		r.opts.metrics.Submitted(kind, metrics.RouteFresh)
		return true
	}

	switch {
	case kind == tile.KindImage:
		if !r.worker.Enqueue(req) {
			r.unmark(req.Hash)
			return false
		}
		r.opts.metrics.Submitted(kind, metrics.RouteWorker)
	case kind.IsRendered():
		route := metrics.RouteOverflow
		if r.pipeline.Submit(req) {
			route = metrics.RouteAdmission
		}
		r.opts.metrics.Submitted(kind, route)
	default:
		r.opts.metrics.Submitted(kind, metrics.RoutePlaceholder)
		return r.writePlaceholder(req)
	}
	r.log.Debug("request queued", "path", req.Path, "hash", req.Hash, "kind", kind)
	return true
}

// SubmitFile submits path classified by its extension.
func (r *Router) SubmitFile(path string) bool {
	return r.Submit(path, tile.KindFromPath(path))
}

// Refresh forgets everything known about the tile for path and submits it
// again. The watcher calls it when a source file changes.
func (r *Router) Refresh(path string, kind tile.Kind) bool {
	if !kind.IsValid() {
		return r.Submit(path, kind)
	}
	hash := tile.Hash(path)
	r.unmark(hash)
	r.store.Forget(hash)
	if r.manifest != nil {
		if err := r.manifest.Forget(hash); err != nil {
			r.log.Warn("manifest forget failed", "path", path, "hash", hash, "error", err)
		}
	}
	return r.Submit(path, kind)
}

// fresh reports whether the cached tile for req is newer than its source.
func (r *Router) fresh(req tile.Request) bool {
	if r.manifest == nil || !r.store.Exists(req.Hash) {
		return false
	}
	src, err := cache.StatSource(req.Path)
	if err != nil {
		return false
	}
	return r.manifest.Fresh(req.Hash, src)
}

func (r *Router) writePlaceholder(req tile.Request) bool {
	data, err := r.placeholders.Bytes(req.Kind)
	if err == nil {
		_, err = r.store.Write(req.Hash, data)
	}
	if err != nil {
		r.log.Error("placeholder write failed", "path", req.Path, "hash", req.Hash, "error", err)
		r.opts.metrics.ObserveTile(req.Kind, "io", 0)
		r.unmark(req.Hash)
		return false
	}
	r.opts.metrics.Placeholder(req.Kind)
	r.opts.metrics.ObserveTile(req.Kind, "ok", 0)
	r.record(req)
	return true
}

func (r *Router) workerDone(res worker.Result) {
	r.finish(res.Request, res.WriteErr == nil)
}

func (r *Router) pipelineDone(res pipeline.Result) {
	r.finish(res.Request, !res.Dropped && res.WriteErr == nil)
}

// finish records a written tile, or releases the session mark so a later
// submission can retry.
func (r *Router) finish(req tile.Request, written bool) {
	if !written {
		r.unmark(req.Hash)
		return
	}
	r.record(req)
}

func (r *Router) record(req tile.Request) {
	if r.manifest == nil {
		return
	}
	src, err := cache.StatSource(req.Path)
	if err != nil {
		return
	}
	if err := r.manifest.Record(req.Hash, src); err != nil {
		r.log.Warn("manifest record failed", "path", req.Path, "hash", req.Hash, "error", err)
	}
}

func (r *Router) unmark(hash uint32) {
	r.mu.Lock()
	delete(r.marks, hash)
	r.mu.Unlock()
}

// Advance performs one render pipeline step. Call it once per host tick,
// followed by EndFrame, or use Tick. A model whose read-back was not
// delivered by EndFrame gets the placeholder tile.
func (r *Router) Advance() {
	r.pipeline.Advance()
}

// EndFrame completes the renderer frame, delivering due read-backs.
func (r *Router) EndFrame() {
	r.renderer.EndFrame()
}

// Tick runs Advance followed by EndFrame.
func (r *Router) Tick() {
	r.Advance()
	r.EndFrame()
}

// Idle reports whether the worker and the pipeline have nothing left to do.
func (r *Router) Idle() bool {
	return r.worker.Idle() && r.pipeline.Idle()
}

// Store returns the tile store.
func (r *Router) Store() *cache.Store {
	return r.store
}

// Stats returns a snapshot of router activity.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	marked := len(r.marks)
	r.mu.Unlock()
	return Stats{
		Worker:      r.worker.State(),
		WorkerQueue: r.worker.Len(),
		Pipeline:    r.pipeline.Stats(),
		Digests:     r.store.Stats(),
		Marked:      marked,
	}
}

// Watch starts watching dirs for changed sources until Close.
func (r *Router) Watch(dirs ...string) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	w, err := watch.New(r, watch.WithDebounce(r.opts.watchDebounce), watch.WithLogger(r.log))
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return err
		}
	}
	r.watches.Add(1)
	go func() {
		defer r.watches.Done()
		if err := w.Run(r.ctx); err != nil {
			r.log.Error("watcher stopped", "error", err)
		}
	}()
	return nil
}

// Close stops the watchers and the worker, releases pipeline resources and
// closes the manifest. Queued requests are dropped. Close is idempotent.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.stop()
	r.watches.Wait()
	r.worker.Close()
	r.pipeline.Close()
	r.loader.Wait()

	var err error
	if r.manifest != nil {
		err = r.manifest.Close()
	}
	r.log.Info("router stopped")
	return err
}
