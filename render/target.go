// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/gogpu/gputypes"
)

// RenderTarget is a colour buffer the renderer draws into.
type RenderTarget interface {
	// Width returns the target width in pixels.
	Width() int

	// Height returns the target height in pixels.
	Height() int

	// Format returns the pixel format of the target.
	Format() gputypes.TextureFormat

	// Pixels returns direct access to pixel data, 4 bytes per pixel.
	Pixels() []byte

	// Stride returns the number of bytes per row.
	Stride() int
}

// PixmapTarget is a CPU-backed render target using *image.RGBA.
type PixmapTarget struct {
	img *image.RGBA
}

// NewPixmapTarget creates a new CPU-backed render target.
func NewPixmapTarget(width, height int) *PixmapTarget {
	return &PixmapTarget{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Width returns the target width in pixels.
func (t *PixmapTarget) Width() int {
	return t.img.Bounds().Dx()
}

// Height returns the target height in pixels.
func (t *PixmapTarget) Height() int {
	return t.img.Bounds().Dy()
}

// Format returns the pixel format (RGBA8).
func (t *PixmapTarget) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// Pixels returns direct access to the pixel data.
func (t *PixmapTarget) Pixels() []byte {
	return t.img.Pix
}

// Stride returns the number of bytes per row.
func (t *PixmapTarget) Stride() int {
	return t.img.Stride
}

// Image returns the underlying *image.RGBA.
// The returned image shares memory with the target.
func (t *PixmapTarget) Image() *image.RGBA {
	return t.img
}

// Clear fills the entire target with c.
func (t *PixmapTarget) Clear(c color.Color) {
	draw.Draw(t.img, t.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// Resize reallocates the target if the size changed.
// The contents are not preserved.
func (t *PixmapTarget) Resize(width, height int) {
	if t.Width() == width && t.Height() == height {
		return
	}
	t.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

var _ RenderTarget = (*PixmapTarget)(nil)

// Unpremultiply converts tightly packed premultiplied RGBA8 pixels to
// straight alpha in place.
func Unpremultiply(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		a := uint32(pix[i+3])
		if a == 0 || a == 255 {
			continue
		}
		pix[i] = uint8(min(255, (uint32(pix[i])*255+a/2)/a))
		pix[i+1] = uint8(min(255, (uint32(pix[i+1])*255+a/2)/a))
		pix[i+2] = uint8(min(255, (uint32(pix[i+2])*255+a/2)/a))
	}
}
