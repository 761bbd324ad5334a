// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"image/color"

	"github.com/gogpu/assettile/geom"
)

// Errors returned by Offscreen implementations.
var (
	// ErrNoTarget is returned when rendering before Resize.
	ErrNoTarget = errors.New("render: no render target")

	// ErrForeignTexture is returned for textures not created by the renderer.
	ErrForeignTexture = errors.New("render: texture not owned by this renderer")

	// ErrTextureDestroyed is returned when reading back a destroyed texture.
	ErrTextureDestroyed = errors.New("render: texture destroyed")

	// ErrBufferTooSmall is returned when the readback destination is short.
	ErrBufferTooSmall = errors.New("render: readback buffer too small")
)

// Offscreen renders a scene into an offscreen colour target and reads the
// result back to the CPU asynchronously.
//
// Offscreen implementations are driven from the host tick and are not
// required to be safe for concurrent use.
type Offscreen interface {
	// Resize sets the colour target size in pixels.
	Resize(width, height int)

	// Render draws the current scene into the colour target.
	Render() error

	// BlitToReadableTexture copies the colour target into a new
	// CPU-readable texture. The caller destroys the texture.
	BlitToReadableTexture() (Texture, error)

	// Readback schedules a copy of tex into dst as tightly packed RGBA8.
	// dst is valid only after the implementation's frame latency has
	// elapsed, counted in EndFrame calls.
	Readback(tex Texture, dst []byte) error

	// EndFrame marks the end of a host frame.
	EndFrame()
}

// ReadbackTracker is implemented by Offscreen renderers that can report
// whether a scheduled read-back has been delivered.
type ReadbackTracker interface {
	// ReadbackPending reports whether a read-back of tex is scheduled but
	// not yet copied to its destination.
	ReadbackPending(tex Texture) bool
}

// Drawable is one mesh instance to render.
type Drawable struct {
	Vertices  []geom.Vec3
	Indices   []uint32
	Color     color.NRGBA
	Transform geom.Mat4
}

// Source supplies what a renderer draws.
type Source interface {
	Drawables() []Drawable
	View() geom.Mat4
}
