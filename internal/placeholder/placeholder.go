// Package placeholder provides the static tiles written when a real tile
// cannot be produced, and for asset kinds that are never rendered.
package placeholder

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/assettile/dds"
	"github.com/gogpu/assettile/tile"
)

type style struct {
	label string
	bg    color.NRGBA
}

var styles = map[tile.Kind]style{
	tile.KindImage:    {"TEX", color.NRGBA{R: 88, G: 88, B: 104, A: 255}},
	tile.KindModel:    {"MDL", color.NRGBA{R: 64, G: 104, B: 152, A: 255}},
	tile.KindPrefab:   {"MDL", color.NRGBA{R: 64, G: 104, B: 152, A: 255}},
	tile.KindMaterial: {"MAT", color.NRGBA{R: 144, G: 96, B: 56, A: 255}},
	tile.KindShader:   {"SHD", color.NRGBA{R: 96, G: 144, B: 72, A: 255}},
}

// Set holds one encoded placeholder per asset kind. Tiles are produced on
// first use and then reused. Safe for concurrent use.
type Set struct {
	size  int
	files map[tile.Kind]string

	mu    sync.Mutex
	tiles map[tile.Kind][]byte
}

// New returns a Set producing size x size placeholders. files optionally maps
// a kind to a pre-made DDS file that is used verbatim instead of the
// generated tile.
func New(size int, files map[tile.Kind]string) *Set {
	return &Set{
		size:  size,
		files: files,
		tiles: make(map[tile.Kind][]byte),
	}
}

// Bytes returns the encoded placeholder for k. Callers must not modify the
// returned slice.
func (s *Set) Bytes(k tile.Kind) ([]byte, error) {
	if _, ok := styles[k]; !ok {
		return nil, fmt.Errorf("placeholder: %w: %v", tile.ErrUnknownKind, k)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.tiles[k]; ok {
		return b, nil
	}

	var (
		b   []byte
		err error
	)
	if path := s.files[k]; path != "" {
		b, err = os.ReadFile(filepath.Clean(path))
		if err == nil && len(b) == 0 {
			err = fmt.Errorf("placeholder: %s is empty", path)
		}
	} else {
		b, err = dds.Encode(Render(k, s.size).Pix, s.size, s.size)
	}
	if err != nil {
		return nil, fmt.Errorf("placeholder: %v: %w", k, err)
	}
	s.tiles[k] = b
	return b, nil
}

// Render draws the placeholder image for k: a flat tile with a one pixel
// frame and a short centred label.
func Render(k tile.Kind, size int) *image.NRGBA {
	st, ok := styles[k]
	if !ok {
		st = style{label: "?", bg: color.NRGBA{R: 128, G: 0, B: 128, A: 255}}
	}
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Rect, image.NewUniform(st.bg), image.Point{}, draw.Src)

	frame := color.NRGBA{R: st.bg.R / 2, G: st.bg.G / 2, B: st.bg.B / 2, A: 255}
	for i := range size {
		img.SetNRGBA(i, 0, frame)
		img.SetNRGBA(i, size-1, frame)
		img.SetNRGBA(0, i, frame)
		img.SetNRGBA(size-1, i, frame)
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
	}
	w := d.MeasureString(st.label).Ceil()
	m := basicfont.Face7x13.Metrics()
	h := (m.Ascent + m.Descent).Ceil()
	d.Dot = fixed.P((size-w)/2, (size-h)/2+m.Ascent.Ceil())
	d.DrawString(st.label)
	return img
}
