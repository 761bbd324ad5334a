package geom

import "math"

// Mat4 is a 4x4 matrix in row-major order. Vectors are treated as columns:
//
//	p' = M * p
type Mat4 [16]float64

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate creates a translation matrix.
func Translate(t Vec3) Mat4 {
	return Mat4{
		1, 0, 0, t.X,
		0, 1, 0, t.Y,
		0, 0, 1, t.Z,
		0, 0, 0, 1,
	}
}

// Scale creates a scaling matrix.
func Scale(s Vec3) Mat4 {
	return Mat4{
		s.X, 0, 0, 0,
		0, s.Y, 0, 0,
		0, 0, s.Z, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row r, column c.
func (m Mat4) At(r, c int) float64 {
	return m[r*4+c]
}

// Mul returns the product m * o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for r := range 4 {
		for c := range 4 {
			var sum float64
			for k := range 4 {
				sum += m[r*4+k] * o[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

// TransformPoint applies m to p (w = 1) and performs the perspective divide.
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	v, w := m.Project(p)
	if w != 0 && w != 1 {
		return v.Mul(1 / w)
	}
	return v
}

// Project applies m to p (w = 1) and returns the xyz result with its w,
// without dividing.
func (m Mat4) Project(p Vec3) (Vec3, float64) {
	x := m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3]
	y := m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7]
	z := m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11]
	w := m[12]*p.X + m[13]*p.Y + m[14]*p.Z + m[15]
	return Vec3{X: x, Y: y, Z: z}, w
}

// TransformDir applies the upper 3x3 of m to d.
func (m Mat4) TransformDir(d Vec3) Vec3 {
	return Vec3{
		X: m[0]*d.X + m[1]*d.Y + m[2]*d.Z,
		Y: m[4]*d.X + m[5]*d.Y + m[6]*d.Z,
		Z: m[8]*d.X + m[9]*d.Y + m[10]*d.Z,
	}
}

// LookAt builds a right-handed view matrix for a camera at eye looking at
// center. The camera looks down its local -Z axis.
//
// If up is parallel to the view direction an alternative up axis is used.
func LookAt(eye, center, up Vec3) Mat4 {
	f := center.Sub(eye).Normalize()
	if f == (Vec3{}) {
		f = V3(0, 0, -1)
	}
	s := f.Cross(up.Normalize())
	if s.Length() < 1e-9 {
		alt := V3(0, 1, 0)
		if math.Abs(f.Y) > 0.9 {
			alt = V3(0, 0, 1)
		}
		s = f.Cross(alt)
	}
	s = s.Normalize()
	u := s.Cross(f)

	return Mat4{
		s.X, s.Y, s.Z, -s.Dot(eye),
		u.X, u.Y, u.Z, -u.Dot(eye),
		-f.X, -f.Y, -f.Z, f.Dot(eye),
		0, 0, 0, 1,
	}
}

// Perspective builds an OpenGL-style projection matrix mapping the view
// frustum to clip space with z in [-1, 1].
// fovy is the vertical field of view in radians.
func Perspective(fovy, aspect, near, far float64) Mat4 {
	f := 1 / math.Tan(fovy/2)
	nf := 1 / (near - far)
	return Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) * nf, 2 * far * near * nf,
		0, 0, -1, 0,
	}
}
