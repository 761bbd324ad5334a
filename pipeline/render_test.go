package pipeline_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/assettile/asset"
	"github.com/gogpu/assettile/cache"
	"github.com/gogpu/assettile/dds"
	"github.com/gogpu/assettile/internal/placeholder"
	"github.com/gogpu/assettile/pipeline"
	"github.com/gogpu/assettile/render"
	"github.com/gogpu/assettile/scene"
	"github.com/gogpu/assettile/tile"
)

const tileSize = 64

func writeCube(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := asset.WriteMesh(f, asset.Cube(2, asset.DefaultMeshColor)); err != nil {
		t.Fatal(err)
	}
}

func TestRenderTilesEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeCube(t, filepath.Join(dir, "cube.msh"))
	prefab := "entities:\n  - name: root\n  - name: body\n    model: cube.msh\n    position: [0, 0, 0]\n"
	if err := os.WriteFile(filepath.Join(dir, "box.fab"), []byte(prefab), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := cache.NewStore(filepath.Join(dir, "tiles"))
	if err != nil {
		t.Fatal(err)
	}
	loader := asset.NewLoader(nil)
	sc := scene.New(loader)
	r := render.NewSoftwareRenderer(sc)
	p := pipeline.New(pipeline.Config{
		Loader:       loader,
		Scene:        sc,
		Renderer:     r,
		Sink:         store,
		Placeholders: placeholder.New(tileSize, nil),
		TileSize:     tileSize,
	})
	defer p.Close()

	reqs := []tile.Request{
		tile.NewRequest(filepath.Join(dir, "cube.msh"), tile.KindModel),
		tile.NewRequest(filepath.Join(dir, "box.fab"), tile.KindPrefab),
	}
	for _, req := range reqs {
		p.Submit(req)
	}

	for i := 0; !p.Idle(); i++ {
		if i > 1000 {
			t.Fatalf("pipeline not idle: %+v", p.Stats())
		}
		loader.Wait()
		p.Advance()
		r.EndFrame()
	}

	for _, req := range reqs {
		data, err := os.ReadFile(store.Path(req.Hash))
		if err != nil {
			t.Fatalf("%s: %v", req.Path, err)
		}
		img, err := dds.DecodeBytes(data)
		if err != nil {
			t.Fatalf("%s: decode tile: %v", req.Path, err)
		}
		if b := img.Bounds(); b.Dx() != tileSize || b.Dy() != tileSize {
			t.Errorf("%s: tile size = %v, want %dx%d", req.Path, b, tileSize, tileSize)
		}
		if a := img.NRGBAAt(0, 0).A; a != 0 {
			t.Errorf("%s: corner alpha = %d, want transparent background", req.Path, a)
		}
		opaque := 0
		for i := 3; i < len(img.Pix); i += 4 {
			if img.Pix[i] == 0xff {
				opaque++
			}
		}
		if opaque < tileSize*tileSize/4 {
			t.Errorf("%s: %d opaque pixels, want the cube to cover a quarter of the tile", req.Path, opaque)
		}
	}

	if sc.Len() != 0 {
		t.Errorf("scene has %d entities after finishing", sc.Len())
	}
	if r.LiveTextures() != 0 {
		t.Errorf("renderer has %d live textures", r.LiveTextures())
	}
	if loader.Len() != 0 {
		t.Errorf("loader holds %d resources", loader.Len())
	}
}
