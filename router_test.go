package assettile

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gogpu/assettile/asset"
	"github.com/gogpu/assettile/cache"
	"github.com/gogpu/assettile/dds"
	"github.com/gogpu/assettile/internal/placeholder"
	"github.com/gogpu/assettile/internal/tga"
	"github.com/gogpu/assettile/metrics"
	"github.com/gogpu/assettile/pipeline"
	"github.com/gogpu/assettile/tile"
)

func newTestRouter(t *testing.T, opts ...Option) *Router {
	t.Helper()
	r, err := New(filepath.Join(t.TempDir(), "tiles"), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func writeTGA(t *testing.T, path string, size int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := tga.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeCube(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := asset.WriteMesh(&buf, asset.Cube(2, asset.DefaultMeshColor)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// waitIdle ticks r until both the worker and the pipeline are idle.
func waitIdle(t *testing.T, r *Router) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !r.Idle() {
		if time.Now().After(deadline) {
			t.Fatalf("router not idle: %+v", r.Stats())
		}
		r.Tick()
		time.Sleep(time.Millisecond)
	}
}

func readTile(t *testing.T, r *Router, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(r.Store().Path(tile.Hash(path)))
	if err != nil {
		t.Fatalf("tile for %s: %v", path, err)
	}
	return data
}

func TestImageTileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.tga")
	writeTGA(t, src, 64, color.NRGBA{R: 255, A: 255})

	r := newTestRouter(t)
	if !r.Submit(src, tile.KindImage) {
		t.Fatal("Submit(image) = false")
	}
	waitIdle(t, r)

	if got, want := filepath.Base(r.Store().Path(tile.Hash(src))), tile.FileName(tile.Hash(src)); got != want {
		t.Errorf("tile file = %s, want %s", got, want)
	}
	img, err := dds.DecodeBytes(readTile(t, r, src))
	if err != nil {
		t.Fatalf("decode tile: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 128 || b.Dy() != 128 {
		t.Fatalf("tile size = %v, want 128x128", b)
	}
	for _, p := range []image.Point{{0, 0}, {64, 64}, {127, 127}} {
		if c := img.NRGBAAt(p.X, p.Y); c.R < 250 || c.G > 5 || c.B > 5 || c.A != 255 {
			t.Errorf("pixel %v = %v, want opaque red", p, c)
		}
	}
}

func TestModelTileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "b.msh")
	writeCube(t, src)

	r := newTestRouter(t)
	if !r.Submit(src, tile.KindModel) {
		t.Fatal("Submit(model) = false")
	}

	deadline := time.Now().Add(10 * time.Second)
	for r.pipeline.Stage() != pipeline.StageDraining {
		if time.Now().After(deadline) {
			t.Fatalf("never reached Draining: %+v", r.Stats())
		}
		r.Tick()
		time.Sleep(time.Millisecond)
	}
	path := r.Store().Path(tile.Hash(src))
	if _, err := os.Stat(path); err == nil {
		t.Fatal("tile written before the read-back wait")
	}

	r.Tick()
	r.Tick()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("tile after two draining ticks: %v", err)
	}
	if info.Size() == 0 {
		t.Error("tile is empty")
	}
	if !r.Idle() {
		t.Errorf("router not idle after finalize: %+v", r.Stats())
	}
}

func TestSubmitWhileTicking(t *testing.T) {
	dir := t.TempDir()
	const n = 40
	srcs := make([]string, n)
	for i := range srcs {
		srcs[i] = filepath.Join(dir, fmt.Sprintf("m%02d.msh", i))
		writeCube(t, srcs[i])
	}

	r := newTestRouter(t, WithCapacity(3), WithMetrics(metrics.New(prometheus.NewRegistry())))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, src := range srcs {
			r.Submit(src, tile.KindModel)
			_ = r.Stats()
			time.Sleep(time.Millisecond)
		}
	}()

	deadline := time.Now().Add(20 * time.Second)
	submitting := true
	for submitting || !r.Idle() {
		if time.Now().After(deadline) {
			t.Fatalf("router not idle: %+v", r.Stats())
		}
		select {
		case <-done:
			submitting = false
		default:
		}
		r.Tick()
	}

	want, err := placeholder.New(DefaultTileSize, nil).Bytes(tile.KindModel)
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range srcs {
		if got := readTile(t, r, src); len(got) == 0 || bytes.Equal(got, want) {
			t.Errorf("%s: rendered tile missing", filepath.Base(src))
		}
	}
}

func TestAdvanceWithoutEndFrameWritesPlaceholder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "b.msh")
	writeCube(t, src)

	r := newTestRouter(t)
	r.Submit(src, tile.KindModel)
	deadline := time.Now().Add(10 * time.Second)
	for !r.Idle() {
		if time.Now().After(deadline) {
			t.Fatalf("router not idle: %+v", r.Stats())
		}
		r.Advance()
		time.Sleep(time.Millisecond)
	}

	want, err := placeholder.New(DefaultTileSize, nil).Bytes(tile.KindModel)
	if err != nil {
		t.Fatal(err)
	}
	if got := readTile(t, r, src); !bytes.Equal(got, want) {
		t.Error("tile for an undelivered read-back is not the model placeholder")
	}
	if n := r.renderer.LiveTextures(); n != 0 {
		t.Errorf("LiveTextures = %d, want 0", n)
	}
}

func TestPrefabTile(t *testing.T) {
	dir := t.TempDir()
	writeCube(t, filepath.Join(dir, "crate.msh"))
	src := filepath.Join(dir, "crate.fab")
	doc := "entities:\n  - name: crate\n    model: crate.msh\n"
	if err := os.WriteFile(src, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newTestRouter(t)
	if !r.SubmitFile(src) {
		t.Fatal("SubmitFile(prefab) = false")
	}
	waitIdle(t, r)
	if len(readTile(t, r, src)) == 0 {
		t.Error("prefab tile is empty")
	}
}

func TestPlaceholderKinds(t *testing.T) {
	r := newTestRouter(t)
	set := placeholder.New(DefaultTileSize, nil)

	for _, tt := range []struct {
		path string
		kind tile.Kind
	}{
		{"stone.mat", tile.KindMaterial},
		{"water.shd", tile.KindShader},
	} {
		if !r.SubmitFile(tt.path) {
			t.Errorf("SubmitFile(%s) = false", tt.path)
			continue
		}
		want, err := set.Bytes(tt.kind)
		if err != nil {
			t.Fatal(err)
		}
		if got := readTile(t, r, tt.path); !bytes.Equal(got, want) {
			t.Errorf("%s tile differs from the %v placeholder", tt.path, tt.kind)
		}
	}
}

func TestMissingImageWritesPlaceholder(t *testing.T) {
	r := newTestRouter(t)
	src := filepath.Join(t.TempDir(), "missing.png")
	if !r.Submit(src, tile.KindImage) {
		t.Fatal("Submit = false")
	}
	waitIdle(t, r)

	want, err := placeholder.New(DefaultTileSize, nil).Bytes(tile.KindImage)
	if err != nil {
		t.Fatal(err)
	}
	if got := readTile(t, r, src); !bytes.Equal(got, want) {
		t.Error("tile for missing image is not the image placeholder")
	}
}

func TestRejectsUnknownKind(t *testing.T) {
	r := newTestRouter(t)
	if r.Submit("notes.txt", tile.KindUnknown) {
		t.Error("Submit(unknown) = true")
	}
	if r.SubmitFile("notes.txt") {
		t.Error("SubmitFile(.txt) = true")
	}
	if r.Refresh("notes.txt", tile.KindUnknown) {
		t.Error("Refresh(unknown) = true")
	}
	if st := r.Stats(); st.Marked != 0 || st.WorkerQueue != 0 || st.Pipeline.Admission != 0 {
		t.Errorf("Stats after rejects = %+v", st)
	}
}

func TestDuplicateAndRefresh(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRouter(t, WithMetrics(metrics.New(reg)))
	src := filepath.Join(t.TempDir(), "a.tga")
	writeTGA(t, src, 16, color.NRGBA{G: 255, A: 255})

	r.Submit(src, tile.KindImage)
	if !r.Submit(src, tile.KindImage) {
		t.Error("duplicate Submit = false, want true")
	}
	waitIdle(t, r)
	r.Submit(src, tile.KindImage)

	expect := func(want string, names ...string) {
		t.Helper()
		if err := testutil.GatherAndCompare(reg, strings.NewReader(want), names...); err != nil {
			t.Error(err)
		}
	}
	expect(`
# HELP assettile_submissions_total Tile requests received by kind and where they were routed
# TYPE assettile_submissions_total counter
assettile_submissions_total{kind="image",route="duplicate"} 2
assettile_submissions_total{kind="image",route="worker"} 1
`, "assettile_submissions_total")

	if !r.Refresh(src, tile.KindImage) {
		t.Fatal("Refresh = false")
	}
	waitIdle(t, r)
	expect(`
# HELP assettile_tiles_total Completed tile requests by kind and outcome
# TYPE assettile_tiles_total counter
assettile_tiles_total{kind="image",outcome="ok"} 2
`, "assettile_tiles_total")
}

func TestManifestSkipsUnchangedSources(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "tiles")
	manifestDir := filepath.Join(dir, "manifest")
	same := filepath.Join(dir, "same.tga")
	changed := filepath.Join(dir, "changed.tga")
	writeTGA(t, same, 8, color.NRGBA{B: 255, A: 255})
	writeTGA(t, changed, 8, color.NRGBA{B: 255, A: 255})

	open := func(reg prometheus.Registerer) *Router {
		t.Helper()
		m, err := cache.OpenManifest(manifestDir, nil)
		if err != nil {
			t.Fatal(err)
		}
		r, err := New(cacheDir, WithManifest(m), WithMetrics(metrics.New(reg)))
		if err != nil {
			t.Fatal(err)
		}
		return r
	}

	r := open(prometheus.NewRegistry())
	r.Submit(same, tile.KindImage)
	r.Submit(changed, tile.KindImage)
	waitIdle(t, r)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	writeTGA(t, changed, 16, color.NRGBA{R: 255, A: 255})

	reg := prometheus.NewRegistry()
	r = open(reg)
	defer func() { _ = r.Close() }()
	r.Submit(same, tile.KindImage)
	r.Submit(changed, tile.KindImage)
	waitIdle(t, r)

	want := `
# HELP assettile_submissions_total Tile requests received by kind and where they were routed
# TYPE assettile_submissions_total counter
assettile_submissions_total{kind="image",route="fresh"} 1
assettile_submissions_total{kind="image",route="worker"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "assettile_submissions_total"); err != nil {
		t.Error(err)
	}
}

func TestModelLoadFailureReleasesMark(t *testing.T) {
	r := newTestRouter(t)
	src := filepath.Join(t.TempDir(), "gone.msh")
	r.Submit(src, tile.KindModel)
	waitIdle(t, r)

	if _, err := os.Stat(r.Store().Path(tile.Hash(src))); err == nil {
		t.Error("tile written for a model that failed to load")
	}
	if n := r.Stats().Marked; n != 0 {
		t.Errorf("Marked = %d after drop, want 0", n)
	}
}

func TestOptionValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		opts []Option
	}{
		{"tile size not multiple of 4", []Option{WithTileSize(6)}},
		{"zero tile size", []Option{WithTileSize(0)}},
		{"readback frames below latency", []Option{WithReadbackFrames(1), WithReadbackLatency(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(dir, tt.opts...); !errors.Is(err, ErrInvalidOption) {
				t.Errorf("New err = %v, want ErrInvalidOption", err)
			}
		})
	}
	if _, err := New(""); err == nil {
		t.Error("New with empty cache dir should fail")
	}
}

func TestCustomOptions(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.tga")
	writeTGA(t, src, 32, color.NRGBA{R: 255, G: 255, A: 255})

	r := newTestRouter(t,
		WithTileSize(32),
		WithCapacity(2),
		WithReadbackFrames(1),
		WithReadbackLatency(0),
		WithClearColor(color.NRGBA{A: 255}),
		WithLogger(nil),
	)
	r.Submit(src, tile.KindImage)
	waitIdle(t, r)
	cfg, err := dds.DecodeConfig(bytes.NewReader(readTile(t, r, src)))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 32 || cfg.Height != 32 {
		t.Errorf("tile = %dx%d, want 32x32", cfg.Width, cfg.Height)
	}
	if c := r.Stats().Pipeline.Capacity; c != 2 {
		t.Errorf("pipeline capacity = %d, want 2", c)
	}
}

func TestWatchRefreshesChangedFiles(t *testing.T) {
	dir := t.TempDir()
	r := newTestRouter(t, WithWatchDebounce(20*time.Millisecond))
	if err := r.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	src := filepath.Join(dir, "new.tga")
	writeTGA(t, src, 8, color.NRGBA{R: 255, A: 255})

	path := r.Store().Path(tile.Hash(src))
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher did not produce a tile")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClose(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if r.Submit("a.png", tile.KindImage) {
		t.Error("Submit after Close = true")
	}
	if err := r.Watch(t.TempDir()); !errors.Is(err, ErrClosed) {
		t.Errorf("Watch after Close = %v, want ErrClosed", err)
	}
}
