// Package worker runs the background resize worker: a single goroutine that
// turns queued 2D image requests into cached tiles without touching the
// renderer.
package worker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/assettile/dds"
	"github.com/gogpu/assettile/internal/resample"
	"github.com/gogpu/assettile/metrics"
	"github.com/gogpu/assettile/tile"
)

// State is the lifecycle state of the worker goroutine.
type State uint32

const (
	// StateIdle means the worker is waiting for a request.
	StateIdle State = iota

	// StateProcessing means a request is being decoded, resized or written.
	StateProcessing

	// StateShuttingDown is terminal. Queued requests are dropped.
	StateShuttingDown
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateProcessing:
		return "Processing"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Sink persists encoded tiles. Implemented by *cache.Store.
type Sink interface {
	Write(hash uint32, data []byte) (bool, error)
}

// Placeholders supplies the fallback tile for a kind.
// Implemented by *placeholder.Set.
type Placeholders interface {
	Bytes(k tile.Kind) ([]byte, error)
}

// Result describes a finished request.
type Result struct {
	Request tile.Request

	// Err is the processing failure that caused a placeholder, if any.
	Err error

	// Placeholder is true when the placeholder tile was written instead.
	Placeholder bool

	// WriteErr is set when nothing could be persisted.
	WriteErr error
}

// Config configures a Worker.
type Config struct {
	Sink         Sink
	Placeholders Placeholders

	// TileSize is the edge length of generated tiles. Default 128.
	TileSize int

	// Filter selects the resampling kernel.
	Filter resample.Filter

	// OnDone, if set, is called on the worker goroutine after each request.
	OnDone func(Result)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Worker owns the pending image request queue and the goroutine draining it.
type Worker struct {
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	queue []tile.Request
	state State

	sem       semaphore
	shutdown  atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// New starts a worker goroutine. Close must be called to stop it.
func New(cfg Config) *Worker {
	if cfg.TileSize <= 0 {
		cfg.TileSize = 128
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	w := &Worker{
		cfg:  cfg,
		log:  log.With("component", "worker"),
		done: make(chan struct{}),
	}
	w.sem.init()
	go w.run()
	return w
}

// Enqueue appends req to the queue and wakes the worker. It reports false
// once the worker is shutting down.
func (w *Worker) Enqueue(req tile.Request) bool {
	w.mu.Lock()
	if w.state == StateShuttingDown {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, req)
	n := len(w.queue)
	w.mu.Unlock()

	w.cfg.Metrics.SetWorkerQueue(n)
	w.sem.release()
	return true
}

// Len returns the number of queued requests not yet picked up.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// State returns the current worker state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Idle reports whether the queue is empty and no request is being processed.
func (w *Worker) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) == 0 && w.state == StateIdle
}

// Close flags shutdown, wakes the worker and waits for its goroutine to
// exit. A request already being processed is finished first; queued ones are
// dropped. Close is idempotent.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		dropped := len(w.queue)
		w.state = StateShuttingDown
		w.queue = nil
		w.mu.Unlock()

		w.shutdown.Store(true)
		w.sem.release()
		<-w.done

		if dropped > 0 {
			w.log.Info("dropped queued requests at shutdown", "count", dropped)
		}
		w.cfg.Metrics.SetWorkerQueue(0)
	})
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		w.sem.acquire()
		if w.shutdown.Load() {
			return
		}

		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			continue
		}
		req := w.queue[0]
		w.queue[0] = tile.Request{}
		w.queue = w.queue[1:]
		n := len(w.queue)
		w.state = StateProcessing
		w.mu.Unlock()

		w.cfg.Metrics.SetWorkerQueue(n)
		res := w.Process(req)
		if w.cfg.OnDone != nil {
			w.cfg.OnDone(res)
		}

		w.mu.Lock()
		if w.state == StateProcessing {
			w.state = StateIdle
		}
		w.mu.Unlock()
	}
}

// Process generates and persists the tile for req on the calling goroutine.
// A load, decode or encode failure writes the image placeholder instead.
func (w *Worker) Process(req tile.Request) Result {
	start := time.Now()
	res := Result{Request: req}

	data, err := w.generate(req.Path)
	if err != nil {
		res.Err = err
		w.log.Warn("tile generation failed, using placeholder",
			"path", req.Path, "hash", req.Hash, "reason", tile.Reason(err), "error", err)
		data, err = w.cfg.Placeholders.Bytes(tile.KindImage)
		if err != nil {
			res.WriteErr = err
			w.log.Error("placeholder unavailable", "path", req.Path, "hash", req.Hash, "error", err)
			w.cfg.Metrics.ObserveTile(tile.KindImage, "io", time.Since(start))
			return res
		}
		res.Placeholder = true
		w.cfg.Metrics.Placeholder(tile.KindImage)
	}

	if _, err := w.cfg.Sink.Write(req.Hash, data); err != nil {
		res.WriteErr = err
		w.log.Error("tile write failed", "path", req.Path, "hash", req.Hash, "error", err)
	} else {
		w.log.Debug("tile done", "path", req.Path, "hash", req.Hash, "placeholder", res.Placeholder)
	}

	outcome := tile.Reason(res.Err)
	if res.WriteErr != nil {
		outcome = "io"
	}
	w.cfg.Metrics.ObserveTile(tile.KindImage, outcome, time.Since(start))
	return res
}

// generate reads, decodes, resizes and encodes the source at path.
func (w *Worker) generate(path string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tile.ErrLoad, err)
	}
	img, err := resample.Decode(raw, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tile.ErrDecode, err)
	}
	size := w.cfg.TileSize
	out, err := dds.Encode(resample.Tile(img, size, w.cfg.Filter), size, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tile.ErrEncode, err)
	}
	return out, nil
}
