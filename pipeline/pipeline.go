// Package pipeline implements the staged render pipeline that turns 3D
// models and prefabs into tiles.
//
// The pipeline is driven by the host tick: each call to Advance performs at
// most one stage step for the single in-flight request, so render, blit and
// read-back work is spread over several frames and never blocks the caller.
// Requests wait in a bounded admission ring whose resources are loading in
// the background; excess requests queue in an unbounded overflow list and
// are admitted as ring slots free up.
//
//	Empty -> Rendering -> Blitting -> Draining -> (finalize) -> Empty
//
// Submit may be called from any goroutine. Advance, Close and the renderer
// belong to the tick goroutine.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/assettile/asset"
	"github.com/gogpu/assettile/dds"
	"github.com/gogpu/assettile/geom"
	"github.com/gogpu/assettile/metrics"
	"github.com/gogpu/assettile/render"
	"github.com/gogpu/assettile/scene"
	"github.com/gogpu/assettile/tile"
)

// DefaultReadbackFrames is the number of Advance calls spent in Draining.
const DefaultReadbackFrames = 2

// DefaultTileSize is the default tile edge length in pixels.
const DefaultTileSize = 128

// Errors reported in Result.Err.
var (
	// ErrNoRenderable is returned when a prefab has no model to draw.
	ErrNoRenderable = errors.New("pipeline: prefab has no renderable model")

	// ErrReadbackPending is returned when the read-back wait ends before
	// the renderer delivered the pixels, as when EndFrame is not called
	// between Advance calls.
	ErrReadbackPending = errors.New("pipeline: read-back not delivered")
)

// Stage is the step the in-flight request is waiting on.
type Stage uint32

const (
	// StageEmpty means no request is in flight.
	StageEmpty Stage = iota

	// StageRendering means the entity is instantiated or waiting for its
	// primary model.
	StageRendering

	// StageBlitting means the colour target has been copied to a readable
	// texture and the read-back is next.
	StageBlitting

	// StageDraining means the read-back is in progress.
	StageDraining
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "Empty"
	case StageRendering:
		return "Rendering"
	case StageBlitting:
		return "Blitting"
	case StageDraining:
		return "Draining"
	default:
		return fmt.Sprintf("Stage(%d)", uint32(s))
	}
}

// Loader starts and tracks asynchronous resource loads.
// Implemented by *asset.Loader.
type Loader interface {
	Load(path string, kind tile.Kind) asset.Handle
	Unload(h asset.Handle)
	IsReady(h asset.Handle) bool
	IsFailure(h asset.Handle) bool
}

// Scene holds the entities being rendered. Implemented by *scene.Scene.
type Scene interface {
	Instantiate(h asset.Handle) (scene.Entity, error)
	PrimaryRenderable(e scene.Entity) (asset.Handle, bool)
	Destroy(e scene.Entity)
	SetCamera(view geom.Mat4)
	Bounds(h asset.Handle) (geom.AABB, bool)
}

// Sink persists encoded tiles. Implemented by *cache.Store.
type Sink interface {
	Write(hash uint32, data []byte) (bool, error)
}

// Placeholders supplies the fallback tile for a kind.
type Placeholders interface {
	Bytes(k tile.Kind) ([]byte, error)
}

// Encoder compresses tightly packed straight-alpha RGBA8 pixels into a tile.
type Encoder func(pixels []byte, width, height int) ([]byte, error)

// Result describes a request that left the pipeline.
type Result struct {
	Request tile.Request

	// Err is the failure that caused a drop or a placeholder, if any.
	Err error

	// Dropped is true when nothing was written because the resource could
	// not be loaded.
	Dropped bool

	// Placeholder is true when the model placeholder was written instead.
	Placeholder bool

	// WriteErr is set when nothing could be persisted.
	WriteErr error
}

// Config configures a Pipeline.
type Config struct {
	Loader       Loader
	Scene        Scene
	Renderer     render.Offscreen
	Sink         Sink
	Placeholders Placeholders

	// Encoder defaults to dds.Encode.
	Encoder Encoder

	// TileSize is the edge length of rendered tiles. Default 128.
	TileSize int

	// Capacity is the admission ring size. Default 8.
	Capacity int

	// ReadbackFrames is the number of Advance calls between issuing the
	// read-back and finalizing. It must cover the renderer's read-back
	// latency. Default 2.
	ReadbackFrames int

	// OnDone, if set, is called on the tick goroutine for every request
	// that leaves the pipeline.
	OnDone func(Result)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// InFlight is the request currently moving through the stages.
type InFlight struct {
	Request tile.Request

	// Resource is the admitted model or prefab.
	Resource asset.Handle

	// Model is the mesh being drawn: Resource itself for models, the
	// primary renderable for prefabs.
	Model asset.Handle

	Stage     Stage
	Entity    scene.Entity
	Texture   render.Texture
	Countdown int
	Pixels    []byte

	started time.Time
}

// Stats is a snapshot of pipeline occupancy.
type Stats struct {
	Admission int
	Overflow  int
	InFlight  int
	Capacity  int
	Stage     Stage
}

// Pipeline is the staged render pipeline.
type Pipeline struct {
	cfg       Config
	log       *slog.Logger
	admission *Admission

	job   *InFlight
	stage atomic.Uint32

	mu     sync.Mutex
	closed bool
}

// New creates a pipeline. Loader, Scene, Renderer, Sink and Placeholders
// are required.
func New(cfg Config) *Pipeline {
	if cfg.TileSize <= 0 {
		cfg.TileSize = DefaultTileSize
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.ReadbackFrames <= 0 {
		cfg.ReadbackFrames = DefaultReadbackFrames
	}
	if cfg.Encoder == nil {
		cfg.Encoder = dds.Encode
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Pipeline{
		cfg: cfg,
		log: log.With("component", "pipeline"),
	}
	p.admission = NewAdmission(cfg.Capacity, func(req tile.Request) asset.Handle {
		return cfg.Loader.Load(req.Path, req.Kind)
	})
	return p
}

// Submit queues a model or prefab request. The resource load starts at once
// if the ring has room. It reports whether req was admitted to the ring
// rather than parked in overflow. Submit after Close is ignored.
func (p *Pipeline) Submit(req tile.Request) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	admitted := p.admission.Push(req)
	p.mu.Unlock()

	p.publishGauges(p.Stage())
	return admitted
}

// Advance performs one stage step. It must be called from the tick
// goroutine, once per host frame, followed by the renderer's EndFrame.
// Read-backs still pending when the wait ends get the model placeholder.
func (p *Pipeline) Advance() {
	defer p.publish()

	if p.job == nil {
		p.stepEmpty()
		return
	}
	switch p.job.Stage {
	case StageRendering:
		p.stepRendering(p.job)
	case StageBlitting:
		p.stepBlitting(p.job)
	case StageDraining:
		p.stepDraining(p.job)
	}
}

func (p *Pipeline) stepEmpty() {
	front, ok := p.admission.Front()
	if !ok {
		return
	}
	switch {
	case p.cfg.Loader.IsFailure(front.handle):
		p.admission.Pop()
		p.cfg.Loader.Unload(front.handle)
		err := fmt.Errorf("%w: %s", tile.ErrLoad, front.req.Path)
		p.log.Warn("resource load failed, dropping request",
			"path", front.req.Path, "hash", front.req.Hash, "reason", tile.Reason(err))
		p.cfg.Metrics.ObserveTile(front.req.Kind, tile.Reason(err), 0)
		p.done(Result{Request: front.req, Err: err, Dropped: true})
	case p.cfg.Loader.IsReady(front.handle):
		p.admission.Pop()
		p.job = &InFlight{
			Request:  front.req,
			Resource: front.handle,
			Stage:    StageRendering,
			started:  time.Now(),
		}
		p.log.Debug("render started", "path", front.req.Path, "hash", front.req.Hash)
	}
}

func (p *Pipeline) stepRendering(j *InFlight) {
	if j.Entity == 0 {
		e, err := p.cfg.Scene.Instantiate(j.Resource)
		if err != nil {
			p.drop(j, fmt.Errorf("%w: %w", tile.ErrLoad, err))
			return
		}
		j.Entity = e
	}

	if j.Model == 0 {
		if j.Request.Kind == tile.KindPrefab {
			h, ok := p.cfg.Scene.PrimaryRenderable(j.Entity)
			if !ok {
				p.drop(j, fmt.Errorf("%w: %w", tile.ErrLoad, ErrNoRenderable))
				return
			}
			j.Model = h
		} else {
			j.Model = j.Resource
		}
	}

	if j.Model != j.Resource {
		if p.cfg.Loader.IsFailure(j.Model) {
			p.drop(j, fmt.Errorf("%w: primary model of %s", tile.ErrLoad, j.Request.Path))
			return
		}
		if !p.cfg.Loader.IsReady(j.Model) {
			return
		}
	}

	bounds, ok := p.cfg.Scene.Bounds(j.Model)
	if !ok {
		bounds = geom.EmptyAABB()
	}
	p.cfg.Scene.SetCamera(FrameBounds(bounds).View())

	size := p.cfg.TileSize
	p.cfg.Renderer.Resize(size, size)
	if err := p.cfg.Renderer.Render(); err != nil {
		p.fail(j, fmt.Errorf("%w: render: %w", tile.ErrEncode, err))
		return
	}
	tex, err := p.cfg.Renderer.BlitToReadableTexture()
	if err != nil {
		p.fail(j, fmt.Errorf("%w: blit: %w", tile.ErrEncode, err))
		return
	}
	j.Texture = tex
	j.Stage = StageBlitting
}

func (p *Pipeline) stepBlitting(j *InFlight) {
	size := p.cfg.TileSize
	j.Pixels = make([]byte, size*size*4)
	if err := p.cfg.Renderer.Readback(j.Texture, j.Pixels); err != nil {
		p.fail(j, fmt.Errorf("%w: readback: %w", tile.ErrEncode, err))
		return
	}
	j.Countdown = p.cfg.ReadbackFrames
	j.Stage = StageDraining
}

func (p *Pipeline) stepDraining(j *InFlight) {
	j.Countdown--
	if j.Countdown > 0 {
		return
	}
	p.finalize(j)
}

// finalize encodes the read-back pixels and persists the tile.
func (p *Pipeline) finalize(j *InFlight) {
	if rt, ok := p.cfg.Renderer.(render.ReadbackTracker); ok && rt.ReadbackPending(j.Texture) {
		p.fail(j, fmt.Errorf("%w: %w", tile.ErrEncode, ErrReadbackPending))
		return
	}
	size := p.cfg.TileSize
	render.Unpremultiply(j.Pixels)
	data, err := p.cfg.Encoder(j.Pixels, size, size)
	if err != nil {
		p.fail(j, fmt.Errorf("%w: %w", tile.ErrEncode, err))
		return
	}

	res := Result{Request: j.Request}
	if _, err := p.cfg.Sink.Write(j.Request.Hash, data); err != nil {
		p.log.Warn("tile write failed, using placeholder",
			"path", j.Request.Path, "hash", j.Request.Hash, "reason", "io", "error", err)
		res = p.writePlaceholder(j.Request, fmt.Errorf("write tile %d: %w", j.Request.Hash, err))
	} else {
		p.log.Debug("tile done", "path", j.Request.Path, "hash", j.Request.Hash)
	}
	p.release(j)
	p.complete(j, res)
}

// fail writes the model placeholder for j and releases it.
func (p *Pipeline) fail(j *InFlight, err error) {
	p.log.Warn("tile generation failed, using placeholder",
		"path", j.Request.Path, "hash", j.Request.Hash, "reason", tile.Reason(err), "error", err)
	res := p.writePlaceholder(j.Request, err)
	p.release(j)
	p.complete(j, res)
}

// drop releases j without writing anything.
func (p *Pipeline) drop(j *InFlight, err error) {
	p.log.Warn("resource load failed, dropping request",
		"path", j.Request.Path, "hash", j.Request.Hash, "reason", tile.Reason(err), "error", err)
	p.release(j)
	p.complete(j, Result{Request: j.Request, Err: err, Dropped: true})
}

func (p *Pipeline) writePlaceholder(req tile.Request, cause error) Result {
	res := Result{Request: req, Err: cause}
	data, err := p.cfg.Placeholders.Bytes(tile.KindModel)
	if err == nil {
		_, err = p.cfg.Sink.Write(req.Hash, data)
	}
	if err != nil {
		res.WriteErr = err
		p.log.Error("placeholder write failed", "path", req.Path, "hash", req.Hash, "error", err)
		return res
	}
	res.Placeholder = true
	p.cfg.Metrics.Placeholder(req.Kind)
	return res
}

// release destroys everything j owns and returns the pipeline to Empty.
func (p *Pipeline) release(j *InFlight) {
	if j.Texture != nil {
		j.Texture.Destroy()
		j.Texture = nil
	}
	if j.Entity != 0 {
		p.cfg.Scene.Destroy(j.Entity)
		j.Entity = 0
	}
	if j.Model != 0 && j.Model != j.Resource {
		p.cfg.Loader.Unload(j.Model)
	}
	p.cfg.Loader.Unload(j.Resource)
	j.Model, j.Resource = 0, 0
	j.Pixels = nil
	j.Stage = StageEmpty
	p.job = nil
}

func (p *Pipeline) complete(j *InFlight, res Result) {
	outcome := tile.Reason(res.Err)
	if res.WriteErr != nil {
		outcome = "io"
	}
	p.cfg.Metrics.ObserveTile(j.Request.Kind, outcome, time.Since(j.started))
	p.done(res)
}

func (p *Pipeline) done(res Result) {
	if p.cfg.OnDone != nil {
		p.cfg.OnDone(res)
	}
}

// publish stores the in-flight stage. It reads p.job and so belongs to the
// tick goroutine.
func (p *Pipeline) publish() {
	stage := StageEmpty
	if p.job != nil {
		stage = p.job.Stage
	}
	p.stage.Store(uint32(stage))
	p.publishGauges(stage)
}

// publishGauges updates the occupancy gauges. It is safe for concurrent use.
func (p *Pipeline) publishGauges(stage Stage) {
	if p.cfg.Metrics != nil {
		ring, overflow := p.admission.Len()
		inFlight := 0
		if stage != StageEmpty {
			inFlight = 1
		}
		p.cfg.Metrics.SetPipeline(ring, overflow, inFlight)
	}
}

// InFlight returns a copy of the in-flight request, if any. It must be
// called from the tick goroutine.
func (p *Pipeline) InFlight() (InFlight, bool) {
	if p.job == nil {
		return InFlight{}, false
	}
	return *p.job, true
}

// Stage returns the current stage. It is safe for concurrent use.
func (p *Pipeline) Stage() Stage {
	return Stage(p.stage.Load())
}

// Stats returns ring, overflow and in-flight counts. It is safe for
// concurrent use.
func (p *Pipeline) Stats() Stats {
	ring, overflow := p.admission.Len()
	st := Stats{
		Admission: ring,
		Overflow:  overflow,
		Capacity:  p.admission.Capacity(),
		Stage:     p.Stage(),
	}
	if st.Stage != StageEmpty {
		st.InFlight = 1
	}
	return st
}

// Idle reports whether nothing is queued or in flight.
func (p *Pipeline) Idle() bool {
	st := p.Stats()
	return st.Admission == 0 && st.Overflow == 0 && st.InFlight == 0
}

// Close releases the in-flight request and unloads every admitted
// resource. Queued requests are dropped without a callback. It must be
// called from the tick goroutine.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if p.job != nil {
		p.release(p.job)
	}
	handles := p.admission.Drain()
	for _, h := range handles {
		p.cfg.Loader.Unload(h)
	}
	if len(handles) > 0 {
		p.log.Info("dropped admitted requests at shutdown", "count", len(handles))
	}
	p.publish()
}
