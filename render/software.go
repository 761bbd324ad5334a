// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"image"
	"image/color"
	"math"
	"slices"

	"golang.org/x/image/vector"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/assettile/geom"
)

// DefaultReadbackLatency is the number of EndFrame calls after which a
// scheduled readback is complete.
const DefaultReadbackLatency = 2

const (
	nearPlane = 1e-3
	farPlane  = 1e6
	ambient   = 0.35
)

// SoftwareRenderer is a CPU implementation of Offscreen.
//
// Triangles are flat shaded with a fixed view-space light, back faces are
// culled and the rest are drawn far to near with anti-aliased edges.
// Readbacks complete after the configured number of frames.
type SoftwareRenderer struct {
	source  Source
	device  DeviceHandle
	target  *PixmapTarget
	raster  *vector.Rasterizer
	latency int
	fovY    float64
	clear   color.NRGBA
	light   geom.Vec3

	frame     uint64
	readbacks []pendingReadback
	textures  map[*cpuTexture]struct{}
}

type pendingReadback struct {
	tex *cpuTexture
	dst []byte
	due uint64
}

// SoftwareOption configures a SoftwareRenderer.
type SoftwareOption func(*SoftwareRenderer)

// WithReadbackLatency sets how many EndFrame calls a readback takes.
// Zero completes readbacks immediately.
func WithReadbackLatency(frames int) SoftwareOption {
	return func(r *SoftwareRenderer) {
		r.latency = max(0, frames)
	}
}

// WithDevice records the host device handle.
func WithDevice(d DeviceHandle) SoftwareOption {
	return func(r *SoftwareRenderer) {
		if d != nil {
			r.device = d
		}
	}
}

// WithClearColor sets the background colour. The default is transparent.
func WithClearColor(c color.NRGBA) SoftwareOption {
	return func(r *SoftwareRenderer) {
		r.clear = c
	}
}

// WithFieldOfView sets the vertical field of view in radians.
func WithFieldOfView(fovY float64) SoftwareOption {
	return func(r *SoftwareRenderer) {
		if fovY > 0 && fovY < math.Pi {
			r.fovY = fovY
		}
	}
}

// NewSoftwareRenderer creates a renderer drawing src.
func NewSoftwareRenderer(src Source, opts ...SoftwareOption) *SoftwareRenderer {
	r := &SoftwareRenderer{
		source:   src,
		device:   NullDeviceHandle{},
		latency:  DefaultReadbackLatency,
		fovY:     math.Pi / 2,
		light:    geom.V3(0.4, 0.6, 1).Normalize(),
		textures: make(map[*cpuTexture]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Device returns the host device handle.
func (r *SoftwareRenderer) Device() DeviceHandle { return r.device }

// Target returns the colour target, or nil before Resize.
func (r *SoftwareRenderer) Target() *PixmapTarget { return r.target }

// Frame returns the number of completed frames.
func (r *SoftwareRenderer) Frame() uint64 { return r.frame }

// LiveTextures returns the number of readable textures not yet destroyed.
func (r *SoftwareRenderer) LiveTextures() int { return len(r.textures) }

// PendingReadbacks returns the number of readbacks not yet complete.
func (r *SoftwareRenderer) PendingReadbacks() int { return len(r.readbacks) }

// Resize sets the colour target size.
func (r *SoftwareRenderer) Resize(width, height int) {
	if r.target == nil {
		r.target = NewPixmapTarget(width, height)
	} else {
		r.target.Resize(width, height)
	}
	if r.raster == nil {
		r.raster = vector.NewRasterizer(width, height)
	}
}

type triangle struct {
	pts   [3]vector2
	depth float64
	color color.NRGBA
}

type vector2 struct{ x, y float32 }

// Render clears the target and draws the source's drawables.
func (r *SoftwareRenderer) Render() error {
	if r.target == nil {
		return ErrNoTarget
	}
	r.target.Clear(r.clear)
	if r.source == nil {
		return nil
	}

	w, h := r.target.Width(), r.target.Height()
	if w == 0 || h == 0 {
		return nil
	}
	view := r.source.View()
	proj := geom.Perspective(r.fovY, float64(w)/float64(h), nearPlane, farPlane)

	var tris []triangle
	for _, d := range r.source.Drawables() {
		tris = r.appendTriangles(tris, d, view.Mul(d.Transform), proj, w, h)
	}
	// Far to near.
	slices.SortStableFunc(tris, func(a, b triangle) int {
		switch {
		case a.depth < b.depth:
			return -1
		case a.depth > b.depth:
			return 1
		}
		return 0
	})

	img := r.target.Image()
	for _, t := range tris {
		r.raster.Reset(w, h)
		r.raster.MoveTo(t.pts[0].x, t.pts[0].y)
		r.raster.LineTo(t.pts[1].x, t.pts[1].y)
		r.raster.LineTo(t.pts[2].x, t.pts[2].y)
		r.raster.ClosePath()
		r.raster.Draw(img, img.Bounds(), image.NewUniform(t.color), image.Point{})
	}
	return nil
}

func (r *SoftwareRenderer) appendTriangles(tris []triangle, d Drawable, modelView, proj geom.Mat4, w, h int) []triangle {
	n := len(d.Vertices)
	for i := 0; i+2 < len(d.Indices); i += 3 {
		i0, i1, i2 := int(d.Indices[i]), int(d.Indices[i+1]), int(d.Indices[i+2])
		if i0 >= n || i1 >= n || i2 >= n {
			continue
		}
		a := modelView.TransformPoint(d.Vertices[i0])
		b := modelView.TransformPoint(d.Vertices[i1])
		c := modelView.TransformPoint(d.Vertices[i2])

		normal := b.Sub(a).Cross(c.Sub(a))
		if normal.Dot(a.Neg()) <= 0 {
			continue // back face or edge-on
		}

		var t triangle
		visible := true
		for k, p := range [3]geom.Vec3{a, b, c} {
			clip, cw := proj.Project(p)
			if cw <= nearPlane {
				visible = false
				break
			}
			t.pts[k] = vector2{
				x: float32((clip.X/cw + 1) / 2 * float64(w)),
				y: float32((1 - clip.Y/cw) / 2 * float64(h)),
			}
		}
		if !visible {
			continue
		}
		t.depth = (a.Z + b.Z + c.Z) / 3
		t.color = shade(d.Color, ambient+(1-ambient)*math.Max(0, normal.Normalize().Dot(r.light)))
		tris = append(tris, t)
	}
	return tris
}

func shade(c color.NRGBA, k float64) color.NRGBA {
	scale := func(v uint8) uint8 {
		return uint8(math.Min(255, math.Round(float64(v)*k)))
	}
	return color.NRGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: c.A}
}

// BlitToReadableTexture copies the colour target into a new texture.
func (r *SoftwareRenderer) BlitToReadableTexture() (Texture, error) {
	if r.target == nil {
		return nil, ErrNoTarget
	}
	w, h := r.target.Width(), r.target.Height()
	tex := &cpuTexture{
		owner: r,
		desc:  ReadableTextureDescriptor(uint32(w), uint32(h), r.target.Format()),
		pix:   make([]byte, w*h*4),
	}
	src, stride := r.target.Pixels(), r.target.Stride()
	for y := range h {
		copy(tex.pix[y*w*4:(y+1)*w*4], src[y*stride:])
	}
	r.textures[tex] = struct{}{}
	return tex, nil
}

// Readback schedules a copy of tex into dst, completed after the configured
// latency. Pixels are RGBA8 with premultiplied alpha.
func (r *SoftwareRenderer) Readback(tex Texture, dst []byte) error {
	ct, ok := tex.(*cpuTexture)
	if !ok || ct.owner != r {
		return ErrForeignTexture
	}
	if ct.destroyed {
		return ErrTextureDestroyed
	}
	if len(dst) < len(ct.pix) {
		return ErrBufferTooSmall
	}
	if r.latency == 0 {
		copy(dst, ct.pix)
		return nil
	}
	r.readbacks = append(r.readbacks, pendingReadback{tex: ct, dst: dst, due: r.frame + uint64(r.latency)})
	return nil
}

// ReadbackPending reports whether a read-back of tex awaits EndFrame.
func (r *SoftwareRenderer) ReadbackPending(tex Texture) bool {
	return slices.ContainsFunc(r.readbacks, func(p pendingReadback) bool {
		return Texture(p.tex) == tex
	})
}

// EndFrame advances the frame counter and completes due readbacks.
func (r *SoftwareRenderer) EndFrame() {
	r.frame++
	r.readbacks = slices.DeleteFunc(r.readbacks, func(p pendingReadback) bool {
		if p.tex.destroyed {
			return true
		}
		if p.due > r.frame {
			return false
		}
		copy(p.dst, p.tex.pix)
		return true
	})
}

type cpuTexture struct {
	owner     *SoftwareRenderer
	desc      TextureDescriptor
	pix       []byte
	destroyed bool
}

func (t *cpuTexture) Width() uint32                  { return t.desc.Width }
func (t *cpuTexture) Height() uint32                 { return t.desc.Height }
func (t *cpuTexture) Format() gputypes.TextureFormat { return t.desc.Format }

func (t *cpuTexture) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	t.pix = nil
	delete(t.owner.textures, t)
}

var (
	_ Offscreen       = (*SoftwareRenderer)(nil)
	_ ReadbackTracker = (*SoftwareRenderer)(nil)
)
