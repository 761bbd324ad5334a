// Package asset loads the resources tiles are rendered from: binary meshes
// and YAML prefabs. Loads run asynchronously; callers poll readiness through
// the handle returned by Load.
package asset

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gogpu/assettile/tile"
)

// Handle identifies a resource load. The zero Handle is never issued.
type Handle uint32

// Status is the load state of a resource.
type Status int32

const (
	// StatusLoading means the load has not finished.
	StatusLoading Status = iota

	// StatusReady means the resource is available.
	StatusReady

	// StatusFailed means the load failed. See Loader.Err.
	StatusFailed

	// StatusUnknown is reported for handles the loader does not know.
	StatusUnknown
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "Loading"
	case StatusReady:
		return "Ready"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type resource struct {
	path   string
	kind   tile.Kind
	status atomic.Int32

	// Written once before status leaves StatusLoading.
	mesh   *Mesh
	prefab *Prefab
	err    error
}

// Loader runs resource loads on background goroutines.
// It is safe for concurrent use.
type Loader struct {
	log *slog.Logger

	mu        sync.Mutex
	next      Handle
	resources map[Handle]*resource

	wg sync.WaitGroup
}

// NewLoader returns an empty Loader. A nil logger discards output.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		log:       logger.With("component", "loader"),
		resources: make(map[Handle]*resource),
	}
}

// Load starts loading path as kind and returns its handle immediately.
// Only KindModel and KindPrefab are loadable; other kinds fail.
func (l *Loader) Load(path string, kind tile.Kind) Handle {
	res := &resource{path: path, kind: kind}

	l.mu.Lock()
	l.next++
	h := l.next
	l.resources[h] = res
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.load(h, res)
	}()
	return h
}

func (l *Loader) load(h Handle, res *resource) {
	err := res.read()
	if err != nil {
		res.err = fmt.Errorf("%w: %s: %w", tile.ErrLoad, res.path, err)
		res.status.Store(int32(StatusFailed))
		l.log.Debug("load failed", "handle", h, "path", res.path, "error", err)
		return
	}
	res.status.Store(int32(StatusReady))
	l.log.Debug("loaded", "handle", h, "path", res.path, "kind", res.kind)
}

func (res *resource) read() error {
	if res.kind != tile.KindModel && res.kind != tile.KindPrefab {
		return tile.ErrUnknownKind
	}
	data, err := os.ReadFile(filepath.Clean(res.path))
	if err != nil {
		return err
	}
	if res.kind == tile.KindPrefab {
		res.prefab, err = ParsePrefab(data)
		return err
	}
	res.mesh, err = ReadMesh(bytes.NewReader(data))
	return err
}

func (l *Loader) lookup(h Handle) *resource {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resources[h]
}

// Status returns the load state of h.
func (l *Loader) Status(h Handle) Status {
	res := l.lookup(h)
	if res == nil {
		return StatusUnknown
	}
	return Status(res.status.Load())
}

// IsReady reports whether h finished loading successfully.
func (l *Loader) IsReady(h Handle) bool { return l.Status(h) == StatusReady }

// IsFailure reports whether h failed to load. Unknown handles count as failed.
func (l *Loader) IsFailure(h Handle) bool {
	s := l.Status(h)
	return s == StatusFailed || s == StatusUnknown
}

// Err returns the load error of a failed handle.
func (l *Loader) Err(h Handle) error {
	res := l.lookup(h)
	if res == nil {
		return errors.New("asset: unknown handle")
	}
	if Status(res.status.Load()) != StatusFailed {
		return nil
	}
	return res.err
}

// Path returns the source path of h.
func (l *Loader) Path(h Handle) string {
	if res := l.lookup(h); res != nil {
		return res.path
	}
	return ""
}

// Mesh returns the mesh of a ready model handle.
func (l *Loader) Mesh(h Handle) (*Mesh, bool) {
	res := l.lookup(h)
	if res == nil || Status(res.status.Load()) != StatusReady || res.mesh == nil {
		return nil, false
	}
	return res.mesh, true
}

// Prefab returns the document of a ready prefab handle.
func (l *Loader) Prefab(h Handle) (*Prefab, bool) {
	res := l.lookup(h)
	if res == nil || Status(res.status.Load()) != StatusReady || res.prefab == nil {
		return nil, false
	}
	return res.prefab, true
}

// Unload forgets h. A load still running completes and is discarded.
func (l *Loader) Unload(h Handle) {
	l.mu.Lock()
	delete(l.resources, h)
	l.mu.Unlock()
}

// Len returns the number of handles not yet unloaded.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.resources)
}

// Wait blocks until every load started so far has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}
