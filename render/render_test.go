// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/assettile/geom"
)

type staticSource struct {
	drawables []Drawable
	view      geom.Mat4
}

func (s staticSource) Drawables() []Drawable { return s.drawables }
func (s staticSource) View() geom.Mat4       { return s.view }

var orange = color.NRGBA{R: 240, G: 140, B: 20, A: 255}

func cube() Drawable {
	d := Drawable{Color: orange, Transform: geom.Identity()}
	for i := range 8 {
		v := geom.V3(-0.5, -0.5, -0.5)
		if i&1 != 0 {
			v.X = 0.5
		}
		if i&2 != 0 {
			v.Y = 0.5
		}
		if i&4 != 0 {
			v.Z = 0.5
		}
		d.Vertices = append(d.Vertices, v)
	}
	d.Indices = []uint32{
		0, 2, 3, 0, 3, 1,
		4, 5, 7, 4, 7, 6,
		0, 1, 5, 0, 5, 4,
		2, 6, 7, 2, 7, 3,
		0, 4, 6, 0, 6, 2,
		1, 3, 7, 1, 7, 5,
	}
	return d
}

func cubeSource() staticSource {
	return staticSource{
		drawables: []Drawable{cube()},
		view:      geom.LookAt(geom.V3(2, 2, 2), geom.Vec3{}, geom.V3(0, 1, 0)),
	}
}

func pixelAt(t *PixmapTarget, x, y int) color.RGBA {
	return t.Image().RGBAAt(x, y)
}

func TestRenderRequiresTarget(t *testing.T) {
	r := NewSoftwareRenderer(cubeSource())
	if err := r.Render(); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Render before Resize err = %v, want ErrNoTarget", err)
	}
	if _, err := r.BlitToReadableTexture(); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Blit before Resize err = %v, want ErrNoTarget", err)
	}
}

func TestRenderCube(t *testing.T) {
	r := NewSoftwareRenderer(cubeSource())
	r.Resize(64, 64)
	if err := r.Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}
	target := r.Target()
	if target.Format() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("Format = %v, want RGBA8Unorm", target.Format())
	}

	top := pixelAt(target, 29, 28)
	if top.A != 255 {
		t.Errorf("top face alpha = %d, want 255", top.A)
	}
	if top.R <= top.B {
		t.Errorf("top face = %v, want an orange shade", top)
	}
	if corner := pixelAt(target, 0, 0); corner.A != 0 {
		t.Errorf("corner = %v, want transparent", corner)
	}

	// The three visible faces get different shading.
	shades := map[color.RGBA]bool{}
	for _, p := range [][2]int{{29, 28}, {27, 31}, {36, 31}} {
		shades[pixelAt(target, p[0], p[1])] = true
	}
	if len(shades) < 2 {
		t.Errorf("visible faces share one shade: %v", shades)
	}
}

func TestRenderCullsAndClips(t *testing.T) {
	tri := Drawable{
		Vertices:  []geom.Vec3{geom.V3(-1, -1, -3), geom.V3(1, -1, -3), geom.V3(0, 1, -3)},
		Color:     orange,
		Transform: geom.Identity(),
	}
	tests := []struct {
		name    string
		indices []uint32
		z       float64
		want    uint8
	}{
		{"front facing", []uint32{0, 1, 2}, 0, 255},
		{"back facing", []uint32{0, 2, 1}, 0, 0},
		{"behind camera", []uint32{0, 1, 2}, 6, 0},
		{"bad index", []uint32{0, 1, 9}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tri
			d.Indices = tt.indices
			d.Transform = geom.Translate(geom.V3(0, 0, tt.z))
			r := NewSoftwareRenderer(staticSource{drawables: []Drawable{d}, view: geom.Identity()})
			r.Resize(32, 32)
			if err := r.Render(); err != nil {
				t.Fatal(err)
			}
			if got := pixelAt(r.Target(), 16, 16).A; got != tt.want {
				t.Errorf("centre alpha = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRenderDepthOrder(t *testing.T) {
	quad := func(z float64, c color.NRGBA) Drawable {
		return Drawable{
			Vertices:  []geom.Vec3{geom.V3(-2, -2, z), geom.V3(2, -2, z), geom.V3(2, 2, z), geom.V3(-2, 2, z)},
			Indices:   []uint32{0, 1, 2, 0, 2, 3},
			Color:     c,
			Transform: geom.Identity(),
		}
	}
	near := quad(-2, color.NRGBA{R: 255, A: 255})
	far := quad(-4, color.NRGBA{B: 255, A: 255})

	// Submission order must not matter.
	r := NewSoftwareRenderer(staticSource{drawables: []Drawable{near, far}, view: geom.Identity()})
	r.Resize(16, 16)
	if err := r.Render(); err != nil {
		t.Fatal(err)
	}
	if c := pixelAt(r.Target(), 8, 8); c.R == 0 || c.B != 0 {
		t.Errorf("centre = %v, want the near (red) quad", c)
	}
}

func TestReadbackLatency(t *testing.T) {
	r := NewSoftwareRenderer(cubeSource(), WithReadbackLatency(2), WithClearColor(color.NRGBA{G: 255, A: 255}))
	r.Resize(8, 8)
	if err := r.Render(); err != nil {
		t.Fatal(err)
	}
	tex, err := r.BlitToReadableTexture()
	if err != nil {
		t.Fatal(err)
	}
	if tex.Width() != 8 || tex.Height() != 8 || tex.Format() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("texture = %dx%d %v", tex.Width(), tex.Height(), tex.Format())
	}

	dst := make([]byte, 8*8*4)
	if err := r.Readback(tex, dst); err != nil {
		t.Fatalf("Readback: %v", err)
	}
	zero := make([]byte, len(dst))

	r.EndFrame()
	if !bytes.Equal(dst, zero) {
		t.Error("readback visible after one frame")
	}
	if r.PendingReadbacks() != 1 {
		t.Errorf("PendingReadbacks = %d, want 1", r.PendingReadbacks())
	}
	if !r.ReadbackPending(tex) {
		t.Error("ReadbackPending after one frame = false")
	}

	r.EndFrame()
	if !bytes.Equal(dst, r.Target().Pixels()) {
		t.Error("readback not complete after two frames")
	}
	if r.ReadbackPending(tex) {
		t.Error("ReadbackPending after two frames = true")
	}
	if r.PendingReadbacks() != 0 || r.Frame() != 2 {
		t.Errorf("pending = %d, frame = %d", r.PendingReadbacks(), r.Frame())
	}

	tex.Destroy()
	tex.Destroy()
	if r.LiveTextures() != 0 {
		t.Errorf("LiveTextures = %d, want 0", r.LiveTextures())
	}
}

func TestReadbackImmediate(t *testing.T) {
	r := NewSoftwareRenderer(nil, WithReadbackLatency(0), WithClearColor(color.NRGBA{R: 9, A: 255}))
	r.Resize(2, 2)
	if err := r.Render(); err != nil {
		t.Fatal(err)
	}
	tex, _ := r.BlitToReadableTexture()
	dst := make([]byte, 16)
	if err := r.Readback(tex, dst); err != nil {
		t.Fatal(err)
	}
	if dst[0] != 9 || dst[3] != 255 {
		t.Errorf("dst = %v, want immediate copy", dst[:4])
	}
}

func TestReadbackErrors(t *testing.T) {
	r := NewSoftwareRenderer(nil)
	r.Resize(4, 4)
	other := NewSoftwareRenderer(nil)
	other.Resize(4, 4)

	tex, _ := r.BlitToReadableTexture()
	foreign, _ := other.BlitToReadableTexture()

	if err := r.Readback(foreign, make([]byte, 64)); !errors.Is(err, ErrForeignTexture) {
		t.Errorf("foreign err = %v, want ErrForeignTexture", err)
	}
	if err := r.Readback(tex, make([]byte, 63)); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("short err = %v, want ErrBufferTooSmall", err)
	}
	tex.Destroy()
	if err := r.Readback(tex, make([]byte, 64)); !errors.Is(err, ErrTextureDestroyed) {
		t.Errorf("destroyed err = %v, want ErrTextureDestroyed", err)
	}
}

func TestDestroyCancelsReadback(t *testing.T) {
	r := NewSoftwareRenderer(nil, WithClearColor(color.NRGBA{R: 1, A: 255}))
	r.Resize(2, 2)
	_ = r.Render()
	tex, _ := r.BlitToReadableTexture()
	dst := make([]byte, 16)
	if err := r.Readback(tex, dst); err != nil {
		t.Fatal(err)
	}
	tex.Destroy()
	r.EndFrame()
	r.EndFrame()
	if !bytes.Equal(dst, make([]byte, 16)) {
		t.Error("destroyed texture was still read back")
	}
	if r.PendingReadbacks() != 0 {
		t.Errorf("PendingReadbacks = %d, want 0", r.PendingReadbacks())
	}
}

func TestOptionsAndDevice(t *testing.T) {
	r := NewSoftwareRenderer(nil, WithDevice(nil), WithFieldOfView(4), WithReadbackLatency(-3))
	if _, ok := r.Device().(NullDeviceHandle); !ok {
		t.Errorf("Device = %T, want NullDeviceHandle", r.Device())
	}
	if r.fovY != 3.141592653589793/2 {
		t.Errorf("fovY = %v, invalid option should be ignored", r.fovY)
	}
	if r.latency != 0 {
		t.Errorf("latency = %d, want 0", r.latency)
	}

	var h NullDeviceHandle
	if h.Device() != nil || h.Queue() != nil || h.Adapter() != nil {
		t.Error("NullDeviceHandle should return nil resources")
	}
	if h.SurfaceFormat() != gputypes.TextureFormatUndefined {
		t.Error("NullDeviceHandle surface format should be undefined")
	}
	if got := h.AdapterInfo().Type; got != gpucontext.AdapterTypeUnknown {
		t.Errorf("AdapterInfo().Type = %v, want %v", got, gpucontext.AdapterTypeUnknown)
	}
}

func TestPixmapTarget(t *testing.T) {
	p := NewPixmapTarget(3, 2)
	if p.Width() != 3 || p.Height() != 2 || p.Stride() != 12 {
		t.Errorf("target = %dx%d stride %d", p.Width(), p.Height(), p.Stride())
	}
	p.Clear(color.RGBA{R: 1, G: 2, B: 3, A: 4})
	if c := p.Image().RGBAAt(2, 1); c != (color.RGBA{R: 1, G: 2, B: 3, A: 4}) {
		t.Errorf("Clear pixel = %v", c)
	}
	pix := p.Pixels()
	p.Resize(3, 2)
	if &p.Pixels()[0] != &pix[0] {
		t.Error("same-size Resize reallocated")
	}
	p.Resize(5, 5)
	if p.Width() != 5 || len(p.Pixels()) != 100 {
		t.Errorf("Resize(5,5) = %dx%d", p.Width(), p.Height())
	}
}

func TestUnpremultiply(t *testing.T) {
	pix := []byte{64, 32, 0, 128, 10, 20, 30, 255, 5, 5, 5, 0}
	Unpremultiply(pix)
	want := []byte{128, 64, 0, 128, 10, 20, 30, 255, 5, 5, 5, 0}
	if !bytes.Equal(pix, want) {
		t.Errorf("Unpremultiply = %v, want %v", pix, want)
	}
}
