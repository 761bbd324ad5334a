// Package scene is the dedicated offscreen scene tiles are rendered from.
// It is separate from any editing scene: entities exist only for the
// duration of one render job.
package scene

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/assettile/asset"
	"github.com/gogpu/assettile/geom"
	"github.com/gogpu/assettile/render"
	"github.com/gogpu/assettile/tile"
)

// Errors returned by Instantiate.
var (
	// ErrNotReady is returned when the resource has not finished loading.
	ErrNotReady = errors.New("scene: resource not ready")
)

// Entity identifies an instantiated resource. The zero Entity is invalid.
type Entity uint32

type node struct {
	resource asset.Handle
	prefab   bool

	// primary is the model resolved from a prefab, loaded on demand.
	primary asset.Handle
}

// Scene holds instantiated resources and the camera used to render them.
// It is safe for concurrent use, though the pipeline drives it from a
// single goroutine.
type Scene struct {
	loader *asset.Loader

	mu       sync.Mutex
	next     Entity
	entities map[Entity]*node
	view     geom.Mat4
}

// New returns an empty scene resolving resources through loader.
func New(loader *asset.Loader) *Scene {
	return &Scene{
		loader:   loader,
		entities: make(map[Entity]*node),
		view:     geom.Identity(),
	}
}

// Instantiate adds a ready model or prefab resource at the origin.
func (s *Scene) Instantiate(h asset.Handle) (Entity, error) {
	n := &node{resource: h}
	switch {
	case s.hasMesh(h):
	case s.hasPrefab(h):
		n.prefab = true
	default:
		return 0, fmt.Errorf("%w: handle %d (%v)", ErrNotReady, h, s.loader.Status(h))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.entities[s.next] = n
	return s.next, nil
}

func (s *Scene) hasMesh(h asset.Handle) bool {
	_, ok := s.loader.Mesh(h)
	return ok
}

func (s *Scene) hasPrefab(h asset.Handle) bool {
	_, ok := s.loader.Prefab(h)
	return ok
}

// PrimaryRenderable returns the model handle that represents e in a tile.
// For a model entity this is its own resource. For a prefab it is the first
// entity with a model; that model's load is started on the first call and
// the same handle is returned afterwards. The caller owns the returned
// prefab model handle and unloads it when done.
func (s *Scene) PrimaryRenderable(e Entity) (asset.Handle, bool) {
	s.mu.Lock()
	n, ok := s.entities[e]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	if !n.prefab {
		return n.resource, true
	}
	if n.primary != 0 {
		return n.primary, true
	}

	p, ok := s.loader.Prefab(n.resource)
	if !ok {
		return 0, false
	}
	ent, ok := p.Primary()
	if !ok {
		return 0, false
	}
	path := asset.ResolveModel(s.loader.Path(n.resource), ent.Model)
	h := s.loader.Load(path, tile.KindModel)

	s.mu.Lock()
	n.primary = h
	s.mu.Unlock()
	return h, true
}

// Destroy removes e. Resource handles are not unloaded.
func (s *Scene) Destroy(e Entity) {
	s.mu.Lock()
	delete(s.entities, e)
	s.mu.Unlock()
}

// Len returns the number of live entities.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

// SetCamera sets the view matrix used for the next render.
func (s *Scene) SetCamera(view geom.Mat4) {
	s.mu.Lock()
	s.view = view
	s.mu.Unlock()
}

// View returns the current view matrix.
func (s *Scene) View() geom.Mat4 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Bounds returns the bounds of a ready model resource.
func (s *Scene) Bounds(h asset.Handle) (geom.AABB, bool) {
	m, ok := s.loader.Mesh(h)
	if !ok || len(m.Vertices) == 0 {
		return geom.AABB{}, false
	}
	return m.Bounds(), true
}

// Drawables returns the meshes to render, in entity creation order.
// Prefabs contribute their primary model once it is ready, placed at the
// origin like a plain model.
func (s *Scene) Drawables() []render.Drawable {
	s.mu.Lock()
	ids := make([]Entity, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	handles := make([]asset.Handle, 0, len(ids))
	for _, id := range ids {
		n := s.entities[id]
		if n.prefab {
			handles = append(handles, n.primary)
		} else {
			handles = append(handles, n.resource)
		}
	}
	s.mu.Unlock()

	out := make([]render.Drawable, 0, len(handles))
	for _, h := range handles {
		m, ok := s.loader.Mesh(h)
		if !ok {
			continue
		}
		out = append(out, render.Drawable{
			Vertices:  m.Vertices,
			Indices:   m.Indices,
			Color:     m.Color,
			Transform: geom.Identity(),
		})
	}
	return out
}

var _ render.Source = (*Scene)(nil)
