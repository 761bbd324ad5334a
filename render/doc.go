// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render defines the offscreen rendering boundary used to produce
// model tiles, and a CPU implementation of it.
//
// # Key Principle
//
// The pipeline never waits on the renderer. Pixels copied into a readable
// texture become visible to the CPU only after a number of EndFrame calls,
// as with a GPU readback through a staging buffer, and the caller polls for
// them on later ticks.
//
// # Core Interfaces
//
//   - Offscreen: resize, render, blit to a readable texture, read back
//   - Source: the meshes and camera a renderer draws
//   - DeviceHandle: GPU device access from a host application
//
// # Implementations
//
//   - SoftwareRenderer: flat-shaded triangles rasterized with
//     golang.org/x/image/vector into a PixmapTarget
//
// # Usage
//
//	r := render.NewSoftwareRenderer(scn, render.WithReadbackLatency(2))
//	r.Resize(128, 128)
//	if err := r.Render(); err != nil { ... }
//	tex, _ := r.BlitToReadableTexture()
//	_ = r.Readback(tex, pixels)
//	r.EndFrame()
//	r.EndFrame() // pixels now hold the frame
//	tex.Destroy()
package render
