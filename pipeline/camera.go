package pipeline

import (
	"math"

	"github.com/gogpu/assettile/geom"
)

var (
	viewDir = geom.V3(1, 1, 1).Normalize()
	viewUp  = geom.V3(-1, 1, -1).Normalize()
)

// Camera is a look-at camera.
type Camera struct {
	Eye, Center, Up geom.Vec3
}

// View returns the view matrix of c.
func (c Camera) View() geom.Mat4 {
	return geom.LookAt(c.Eye, c.Center, c.Up)
}

// FrameBounds places a camera on the (1,1,1) diagonal of b looking at its
// centre, at a distance of half the diagonal times √2 so the bounding sphere
// fills a 90° field of view. Empty or degenerate bounds use distance 1.
func FrameBounds(b geom.AABB) Camera {
	center := geom.Vec3{}
	dist := 1.0
	if !b.IsEmpty() {
		center = b.Center()
		if d := b.Diagonal() / math.Sqrt2; d > 1e-9 && !math.IsInf(d, 0) {
			dist = d
		}
	}
	return Camera{
		Eye:    center.Add(viewDir.Mul(dist)),
		Center: center,
		Up:     viewUp,
	}
}
