package scene

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/assettile/asset"
	"github.com/gogpu/assettile/geom"
	"github.com/gogpu/assettile/tile"
)

var red = color.NRGBA{R: 255, A: 255}

func writeMesh(t *testing.T, path string, m *asset.Mesh) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := asset.WriteMesh(f, m); err != nil {
		t.Fatal(err)
	}
}

func load(t *testing.T, l *asset.Loader, path string, kind tile.Kind) asset.Handle {
	t.Helper()
	h := l.Load(path, kind)
	l.Wait()
	if !l.IsReady(h) {
		t.Fatalf("load %s: %v", path, l.Err(h))
	}
	return h
}

func TestInstantiateModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cube.msh")
	writeMesh(t, path, asset.Cube(2, red))

	l := asset.NewLoader(nil)
	s := New(l)
	h := load(t, l, path, tile.KindModel)

	e, err := s.Instantiate(h)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if e == 0 {
		t.Error("Instantiate returned the zero entity")
	}
	if got, ok := s.PrimaryRenderable(e); !ok || got != h {
		t.Errorf("PrimaryRenderable = %d, %v; want %d, true", got, ok, h)
	}

	b, ok := s.Bounds(h)
	if !ok {
		t.Fatal("Bounds = false")
	}
	if !b.Min.ApproxEqual(geom.V3(-1, -1, -1), 1e-9) || !b.Max.ApproxEqual(geom.V3(1, 1, 1), 1e-9) {
		t.Errorf("Bounds = %+v, want unit cube", b)
	}

	ds := s.Drawables()
	if len(ds) != 1 {
		t.Fatalf("Drawables = %d, want 1", len(ds))
	}
	if len(ds[0].Indices) != 36 || ds[0].Color != red {
		t.Errorf("drawable = %d indices, color %v", len(ds[0].Indices), ds[0].Color)
	}
	if ds[0].Transform != geom.Identity() {
		t.Errorf("Transform = %v, want identity", ds[0].Transform)
	}

	s.Destroy(e)
	if s.Len() != 0 || len(s.Drawables()) != 0 {
		t.Errorf("after Destroy Len = %d", s.Len())
	}
	if _, ok := s.PrimaryRenderable(e); ok {
		t.Error("PrimaryRenderable of destroyed entity = true")
	}
}

func TestInstantiateNotReady(t *testing.T) {
	l := asset.NewLoader(nil)
	s := New(l)
	h := l.Load(filepath.Join(t.TempDir(), "missing.msh"), tile.KindModel)
	l.Wait()

	if _, err := s.Instantiate(h); !errors.Is(err, ErrNotReady) {
		t.Errorf("Instantiate(failed) err = %v, want ErrNotReady", err)
	}
	if _, err := s.Instantiate(999); !errors.Is(err, ErrNotReady) {
		t.Errorf("Instantiate(unknown) err = %v, want ErrNotReady", err)
	}
	if _, ok := s.Bounds(h); ok {
		t.Error("Bounds of failed resource = true")
	}
}

func TestPrefabPrimaryRenderable(t *testing.T) {
	dir := t.TempDir()
	writeMesh(t, filepath.Join(dir, "models", "box.msh"), asset.Cube(1, red))
	prefab := filepath.Join(dir, "crate.fab")
	doc := "entities:\n  - name: pivot\n  - name: body\n    model: models/box.msh\n"
	if err := os.WriteFile(prefab, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	l := asset.NewLoader(nil)
	s := New(l)
	h := load(t, l, prefab, tile.KindPrefab)

	e, err := s.Instantiate(h)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if len(s.Drawables()) != 0 {
		t.Error("prefab drawable before primary model resolved")
	}

	m, ok := s.PrimaryRenderable(e)
	if !ok || m == h {
		t.Fatalf("PrimaryRenderable = %d, %v; want a new model handle", m, ok)
	}
	if again, _ := s.PrimaryRenderable(e); again != m {
		t.Errorf("second PrimaryRenderable = %d, want cached %d", again, m)
	}
	if l.Len() != 2 {
		t.Errorf("loader holds %d resources, want 2", l.Len())
	}
	if want := filepath.Join(dir, "models", "box.msh"); l.Path(m) != want {
		t.Errorf("primary path = %q, want %q", l.Path(m), want)
	}

	l.Wait()
	if !l.IsReady(m) {
		t.Fatalf("primary model not ready: %v", l.Err(m))
	}
	if len(s.Drawables()) != 1 {
		t.Errorf("Drawables = %d, want the primary model", len(s.Drawables()))
	}
	if b, ok := s.Bounds(m); !ok || b.Diagonal() == 0 {
		t.Errorf("Bounds(primary) = %+v, %v", b, ok)
	}
}

func TestPrefabWithoutModel(t *testing.T) {
	prefab := filepath.Join(t.TempDir(), "empty.fab")
	if err := os.WriteFile(prefab, []byte("entities:\n  - name: marker\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := asset.NewLoader(nil)
	s := New(l)
	e, err := s.Instantiate(load(t, l, prefab, tile.KindPrefab))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.PrimaryRenderable(e); ok {
		t.Error("PrimaryRenderable of model-less prefab = true")
	}
}

func TestSetCamera(t *testing.T) {
	s := New(asset.NewLoader(nil))
	if s.View() != geom.Identity() {
		t.Error("initial View is not identity")
	}
	v := geom.LookAt(geom.V3(0, 0, 5), geom.V3(0, 0, 0), geom.V3(0, 1, 0))
	s.SetCamera(v)
	if s.View() != v {
		t.Errorf("View = %v, want %v", s.View(), v)
	}
}
